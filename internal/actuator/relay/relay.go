package relay

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrPoolExhausted = errors.New("relay pool exhausted")

type Relay interface {
	Enable(ctx context.Context) error
	Disable() error
	IsEnabled() bool
}

// PoolProxy limits how many relays sharing a pool are energized at once.
// Enabling beyond the limit fails instead of waiting, a cover must never
// start late.
type PoolProxy struct {
	r Relay
	c chan struct{}
}

func NewPoolProxy(r Relay, pool chan struct{}) *PoolProxy {
	return &PoolProxy{r: r, c: pool}
}

func (p *PoolProxy) Enable(ctx context.Context) error {
	if p.r.IsEnabled() {
		return nil
	}

	select {
	case p.c <- struct{}{}:
	default:
		return errors.Wrapf(ErrPoolExhausted, "%d relays enabled", cap(p.c))
	}

	if err := p.r.Enable(ctx); err != nil {
		<-p.c
		return err
	}

	return nil
}

func (p *PoolProxy) Disable() error {
	if !p.r.IsEnabled() {
		return p.r.Disable()
	}

	// the slot stays taken while the relay may still be energized
	if err := p.r.Disable(); err != nil {
		return err
	}

	select {
	case <-p.c:
	default:
	}

	return nil
}

func (p *PoolProxy) IsEnabled() bool {
	return p.r.IsEnabled()
}

// Dumb only logs, for covers driven by something else or dry runs.
type Dumb struct {
	Name string

	isEnabled bool
}

func (r *Dumb) Enable(_ context.Context) error {
	if !r.isEnabled {
		logrus.Warnf("%s: dumb relay enabled", r.Name)
	}
	r.isEnabled = true

	return nil
}

func (r *Dumb) Disable() error {
	if r.isEnabled {
		logrus.Warnf("%s: dumb relay disabled", r.Name)
	}
	r.isEnabled = false

	return nil
}

func (r *Dumb) IsEnabled() bool {
	return r.isEnabled
}
