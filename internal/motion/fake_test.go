package motion

import (
	"context"
	"time"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
)

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true

	return true
}

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)

	return t
}

// Advance moves the clock forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.pending() {
			if t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}

		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fired = true
		next.fn()
	}
	c.now = target
}

func (c *fakeClock) pending() []*fakeTimer {
	var pending []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			pending = append(pending, t)
		}
	}

	return pending
}

type recordingActuator struct {
	calls []string
	err   error
}

func (a *recordingActuator) Open(_ context.Context, parent string) error {
	a.calls = append(a.calls, "open "+parent)
	return a.err
}

func (a *recordingActuator) Close(_ context.Context, parent string) error {
	a.calls = append(a.calls, "close "+parent)
	return a.err
}

func (a *recordingActuator) Stop(_ context.Context, parent string) error {
	a.calls = append(a.calls, "stop "+parent)
	return a.err
}

type statusUpdate struct {
	status    cover.Status
	direction cover.Direction
	invert    bool
}

type recordingPublisher struct {
	positions []int
	statuses  []statusUpdate
}

func (p *recordingPublisher) PublishPosition(_ *cover.Cover, position int) {
	p.positions = append(p.positions, position)
}

func (p *recordingPublisher) PublishStatus(c *cover.Cover) {
	p.statuses = append(p.statuses, statusUpdate{c.Status, c.Direction, c.Invert})
}

func (p *recordingPublisher) lastPosition() int {
	if len(p.positions) == 0 {
		return -1
	}

	return p.positions[len(p.positions)-1]
}
