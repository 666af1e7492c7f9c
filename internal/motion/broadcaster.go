package motion

import (
	"time"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/sirupsen/logrus"
)

const PublishMovingPositionEvery = time.Second

// Broadcaster publishes the estimated position of moving covers on a fixed
// cadence. It is armed on demand and lapses once nothing moves.
type Broadcaster struct {
	controller *Controller
	interval   time.Duration

	timer Timer
}

func newBroadcaster(controller *Controller, interval time.Duration) *Broadcaster {
	return &Broadcaster{controller: controller, interval: interval}
}

// Kick runs a tick as soon as possible unless one is already scheduled.
func (b *Broadcaster) Kick() {
	b.arm(0)
}

func (b *Broadcaster) Armed() bool {
	return b.timer != nil
}

func (b *Broadcaster) arm(d time.Duration) {
	if b.timer != nil {
		return
	}

	logrus.Tracef("broadcaster: tick in %s", d)
	b.timer = b.controller.clock.AfterFunc(d, func() {
		b.controller.post(b.tick)
	})
}

func (b *Broadcaster) tick() {
	b.timer = nil

	moving := 0
	for _, c := range b.controller.registry.Moving() {
		b.controller.Refresh(c)
		if !c.IsMoving() {
			continue
		}

		moving++
		if c.MovingPosition != cover.UnsetPosition {
			b.controller.publishPosition(c, c.MovingPosition)
		}
	}

	b.controller.metrics.Moving(moving)
	logrus.Tracef("broadcaster: %d covers moving", moving)

	if moving > 0 {
		b.arm(b.interval)
	}
}
