package motion

import (
	"context"
	"fmt"
	"time"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/jkaflik/tbcover2mqtt/internal/metrics"
	"github.com/jkaflik/tbcover2mqtt/internal/registry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const actuatorTimeout = 5 * time.Second

// Actuator drives the physical motor of a cover addressed by its parent.
type Actuator interface {
	Open(ctx context.Context, parent string) error
	Close(ctx context.Context, parent string) error
	Stop(ctx context.Context, parent string) error
}

type Publisher interface {
	PublishPosition(c *cover.Cover, position int)
	PublishStatus(c *cover.Cover)
}

type Option func(*Controller)

func WithClock(clock Clock) Option {
	return func(m *Controller) { m.clock = clock }
}

// WithPost sets how timer callbacks get back onto the goroutine owning the
// registry.
func WithPost(post func(func())) Option {
	return func(m *Controller) { m.post = post }
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Controller) { m.metrics = metrics }
}

func WithContext(ctx context.Context) Option {
	return func(m *Controller) { m.ctx = ctx }
}

type movement struct {
	timer      Timer
	generation uint64
}

// Controller runs the stopped/moving state machine of every registered
// cover. All methods must be called from a single goroutine.
type Controller struct {
	registry  *registry.Registry
	actuator  Actuator
	publisher Publisher

	clock   Clock
	post    func(func())
	metrics *metrics.Metrics
	ctx     context.Context

	movements  map[string]movement
	generation uint64

	broadcaster *Broadcaster
}

func NewController(registry *registry.Registry, actuator Actuator, publisher Publisher, opts ...Option) *Controller {
	m := &Controller{
		registry:  registry,
		actuator:  actuator,
		publisher: publisher,
		clock:     systemClock{},
		post:      func(f func()) { f() },
		ctx:       context.Background(),
		movements: map[string]movement{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.broadcaster = newBroadcaster(m, PublishMovingPositionEvery)

	return m
}

func (m *Controller) Broadcaster() *Broadcaster {
	return m.broadcaster
}

func (m *Controller) Handle(cmd Command) error {
	c, found := m.registry.Get(cmd.CoverID())
	if !found {
		err := errors.Wrapf(cover.ErrUnknownCover, "%s", cmd.CoverID())
		logrus.Errorf("%s: command %T dropped: %s", cmd.CoverID(), cmd, err)
		return err
	}

	switch cmd := cmd.(type) {
	case SetCover:
		m.metrics.Command("set_cover")
		logrus.Debugf("%s: set cover %s", c.ID, cmd.Action)
		switch cmd.Action {
		case ActionStop:
			m.Stop(c)
		case ActionOpen:
			m.SetPosition(c, cover.OpenPosition)
		default:
			m.SetPosition(c, cover.ClosedPosition)
		}
	case SetPosition:
		m.metrics.Command("set_cover_position")
		m.SetPosition(c, cmd.Position)
	case SetInvert:
		m.metrics.Command("set_invert")
		m.SetInvert(c, cmd.Invert)
	default:
		return errors.Errorf("%s: unsupported command %T", c.ID, cmd)
	}

	return nil
}

// SetPosition moves c towards target, stopping any movement in flight
// first. Full open and close runs get extra time to reach the end stop.
func (m *Controller) SetPosition(c *cover.Cover, target int) {
	if clamped := cover.ClampPosition(target); clamped != target {
		logrus.Warnf("%s: position %d out of range, using %d", c.ID, target, clamped)
		target = clamped
	}
	logrus.Infof("%s: set position to %d", c.ID, target)

	if c.IsMoving() {
		m.Stop(c)
	}

	var timeToRun time.Duration
	switch {
	case target == cover.OpenPosition:
		timeToRun = c.TimeToOpen + cover.ExtraTimeForFullRun
		m.start(c, cover.DirectionOpening)
	case target == cover.ClosedPosition:
		timeToRun = c.TimeToClose + cover.ExtraTimeForFullRun
		m.start(c, cover.DirectionClosing)
	case target == c.Position:
		logrus.Debugf("%s: already on position %d", c.ID, target)
		return
	case target < c.Position:
		timeToRun = partialRun(c.TimeToClose, c.Position-target)
		logrus.Debugf("%s: time to run for closing: %s", c.ID, timeToRun)
		m.start(c, cover.DirectionClosing)
	default:
		timeToRun = partialRun(c.TimeToOpen, target-c.Position)
		logrus.Debugf("%s: time to run for opening: %s", c.ID, timeToRun)
		m.start(c, cover.DirectionOpening)
	}

	m.armMovement(c, timeToRun)
	c.RunMotorFor = timeToRun
}

func partialRun(fullRun time.Duration, delta int) time.Duration {
	return time.Duration(float64(fullRun) / cover.OpenPosition * float64(delta))
}

// Stop halts c. Stopping a stopped cover only republishes its state.
func (m *Controller) Stop(c *cover.Cover) {
	m.cancelMovement(c.ID)

	if !c.IsMoving() {
		logrus.Infof("%s: cover was already stopped", c.ID)
	} else {
		logrus.Infof("%s: stop", c.ID)
		c.LastMotorStop = m.clock.Now()
		c.Status = cover.StatusStopped
		m.actuate(c, "stop", m.actuator.Stop)
	}

	c.Apply(cover.EstimatePosition(c, m.clock.Now()))
	m.publishPosition(c, c.Position)
	m.publisher.PublishStatus(c)
}

func (m *Controller) SetInvert(c *cover.Cover, invert bool) {
	c.Invert = invert
	logrus.Infof("%s: invert set to %t", c.ID, invert)
	m.publisher.PublishStatus(c)
}

// Refresh re-estimates the position of c. A moving cover that ran past
// any possible traverse is force-stopped.
func (m *Controller) Refresh(c *cover.Cover) {
	e := cover.EstimatePosition(c, m.clock.Now())
	if c.IsMoving() && e.Overrun {
		logrus.Warnf("%s: maximum run time exceeded (%s), stopping cover %q", c.ID, e.Elapsed, c.FriendlyName)
		m.metrics.Overrun()
		m.Stop(c)
		return
	}

	c.Apply(e)
}

// Pending reports whether c has a movement timer armed.
func (m *Controller) Pending(id string) bool {
	_, found := m.movements[id]
	return found
}

func (m *Controller) start(c *cover.Cover, direction cover.Direction) {
	logrus.Debugf("%s: start %s", c.ID, direction)

	c.StartPosition = c.Position
	c.LastMotorStart = m.clock.Now().Add(c.ReactionTime)
	c.Status = cover.StatusMoving
	c.Direction = direction
	c.MovingPosition = cover.UnsetPosition
	c.MotorRanFor = 0
	m.metrics.MotorStart(c.ID, string(direction))

	// an inverted motor is wired the other way round
	if (direction == cover.DirectionOpening) != c.Invert {
		m.actuate(c, "open", m.actuator.Open)
	} else {
		m.actuate(c, "close", m.actuator.Close)
	}

	m.publisher.PublishStatus(c)
	m.broadcaster.Kick()
}

func (m *Controller) actuate(c *cover.Cover, command string, fn func(context.Context, string) error) {
	ctx, cancel := context.WithTimeout(m.ctx, actuatorTimeout)
	defer cancel()

	if err := fn(ctx, c.ParentID); err != nil {
		m.metrics.ActuatorError(command)
		logrus.Errorf("%s: %s %s failed: %s", c.ID, command, c.ParentID, errors.Wrap(cover.ErrActuator, err.Error()))
	}
}

func (m *Controller) publishPosition(c *cover.Cover, position int) {
	m.metrics.Position(c.ID, position)
	m.publisher.PublishPosition(c, position)
}

func (m *Controller) armMovement(c *cover.Cover, d time.Duration) {
	m.cancelMovement(c.ID)

	m.generation++
	generation := m.generation
	id := c.ID

	timer := m.clock.AfterFunc(d, func() {
		m.post(func() { m.onMovementDone(id, generation) })
	})
	m.movements[id] = movement{timer: timer, generation: generation}
	logrus.Debugf("%s: movement timer armed for %s", id, d)
}

func (m *Controller) cancelMovement(id string) {
	mv, found := m.movements[id]
	if !found {
		return
	}

	delete(m.movements, id)
	if mv.timer.Stop() {
		logrus.Debugf("%s: movement timer canceled", id)
	}
}

// onMovementDone resolves the live cover by id; a timer replaced in the
// meantime is ignored.
func (m *Controller) onMovementDone(id string, generation uint64) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("%s: stopping cover failed: %s", id, fmt.Sprint(r))
		}
	}()

	mv, found := m.movements[id]
	if !found || mv.generation != generation {
		logrus.Debugf("%s: stale movement timer ignored", id)
		return
	}
	delete(m.movements, id)

	c, found := m.registry.Get(id)
	if !found {
		logrus.Errorf("%s: movement done: %s", id, cover.ErrUnknownCover)
		return
	}

	m.Stop(c)
}
