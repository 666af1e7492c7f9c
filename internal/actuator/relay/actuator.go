package relay

import (
	"context"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Actuator drives covers wired directly to relay pairs, keyed by parent.
type Actuator struct {
	pairs map[string]*Pair
}

func NewActuator(pairs map[string]*Pair) *Actuator {
	return &Actuator{pairs: pairs}
}

func (a *Actuator) Open(ctx context.Context, parent string) error {
	p, err := a.pair(parent)
	if err != nil {
		return err
	}
	logrus.Debugf("%s: relay up", parent)

	return p.Up(ctx)
}

func (a *Actuator) Close(ctx context.Context, parent string) error {
	p, err := a.pair(parent)
	if err != nil {
		return err
	}
	logrus.Debugf("%s: relay down", parent)

	return p.Down(ctx)
}

func (a *Actuator) Stop(_ context.Context, parent string) error {
	p, err := a.pair(parent)
	if err != nil {
		return err
	}
	logrus.Debugf("%s: relays off", parent)

	return p.Stop()
}

// StopAll releases every relay, used on shutdown.
func (a *Actuator) StopAll() {
	for parent, p := range a.pairs {
		if err := p.Stop(); err != nil {
			logrus.Errorf("%s: relays off failed: %s", parent, err)
		}
	}
}

func (a *Actuator) pair(parent string) (*Pair, error) {
	p, found := a.pairs[parent]
	if !found {
		return nil, errors.Wrapf(cover.ErrActuator, "%s: no relay pair configured", parent)
	}

	return p, nil
}
