package relay

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Pair drives one motor through an up and a down relay. The two are never
// enabled together.
type Pair struct {
	l    sync.Mutex
	up   Relay
	down Relay
}

func NewPair(up, down Relay) *Pair {
	return &Pair{up: up, down: down}
}

func (p *Pair) Up(ctx context.Context) error {
	p.l.Lock()
	defer p.l.Unlock()

	return switchOver(ctx, p.down, p.up)
}

func (p *Pair) Down(ctx context.Context) error {
	p.l.Lock()
	defer p.l.Unlock()

	return switchOver(ctx, p.up, p.down)
}

func (p *Pair) Stop() error {
	p.l.Lock()
	defer p.l.Unlock()

	upErr := p.up.Disable()
	downErr := p.down.Disable()
	if upErr != nil {
		return errors.Wrap(upErr, "up relay")
	}
	if downErr != nil {
		return errors.Wrap(downErr, "down relay")
	}

	return nil
}

func switchOver(ctx context.Context, from, to Relay) error {
	if err := from.Disable(); err != nil {
		return err
	}

	return to.Enable(ctx)
}
