package motion

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/jkaflik/tbcover2mqtt/internal/registry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	clock    *fakeClock
	actuator *recordingActuator
	pub      *recordingPublisher
	registry *registry.Registry
	ctrl     *Controller
	cover    *cover.Cover
}

func newHarness(t *testing.T, cfg cover.Config) *harness {
	t.Helper()

	if cfg.Parent == "" {
		cfg.Parent = "cover.window"
	}
	if cfg.FriendlyName == "" {
		cfg.FriendlyName = "Window"
	}

	h := &harness{
		clock:    newFakeClock(),
		actuator: &recordingActuator{},
		pub:      &recordingPublisher{},
		registry: registry.New(nil, nil),
	}
	h.ctrl = NewController(h.registry, h.actuator, h.pub, WithClock(h.clock))

	c, err := h.registry.Register(cfg)
	require.NoError(t, err)
	h.cover = c

	return h
}

func (h *harness) placeAt(position int) {
	h.cover.Position = position
	h.cover.StartPosition = position
}

func TestSetPositionProportionalRun(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 20 * time.Second, TimeToClose: 10 * time.Second})
	h.placeAt(cover.OpenPosition)

	h.ctrl.SetPosition(h.cover, 5000)

	assert.Equal(t, 5*time.Second, h.cover.RunMotorFor)
	assert.Equal(t, cover.StatusMoving, h.cover.Status)
	assert.Equal(t, cover.DirectionClosing, h.cover.Direction)
	assert.Equal(t, []string{"close cover.window"}, h.actuator.calls)
	assert.True(t, h.ctrl.Pending("window"))

	h.clock.Advance(5 * time.Second)

	assert.Equal(t, cover.StatusStopped, h.cover.Status)
	assert.Equal(t, 5000, h.cover.Position)
	assert.Equal(t, 5*time.Second, h.cover.MotorRanFor)
	assert.Equal(t, cover.UnsetPosition, h.cover.MovingPosition)
	assert.Equal(t, []string{"close cover.window", "stop cover.window"}, h.actuator.calls)
	assert.Equal(t, 5000, h.pub.lastPosition())
	assert.False(t, h.ctrl.Pending("window"))

	t.Run("moving positions are broadcast while moving", func(t *testing.T) {
		assert.Contains(t, h.pub.positions, 9000)
		assert.Contains(t, h.pub.positions, 6000)
	})

	t.Run("broadcaster lapses once nothing moves", func(t *testing.T) {
		h.clock.Advance(2 * time.Second)
		assert.False(t, h.ctrl.Broadcaster().Armed())
		assert.Empty(t, h.clock.pending())
	})
}

func TestSetPositionFullRangeAddsExtraTime(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 20 * time.Second, TimeToClose: 10 * time.Second})

	for _, from := range []int{cover.OpenPosition, 5000, 1} {
		h.placeAt(from)
		h.ctrl.SetPosition(h.cover, cover.ClosedPosition)
		assert.Equal(t, 11500*time.Millisecond, h.cover.RunMotorFor, "from %d", from)
		h.ctrl.Stop(h.cover)
	}

	h.ctrl.SetPosition(h.cover, cover.OpenPosition)
	assert.Equal(t, 21500*time.Millisecond, h.cover.RunMotorFor)
	assert.Equal(t, cover.DirectionOpening, h.cover.Direction)
}

func TestSetPositionReachesEndStop(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 10 * time.Second, TimeToClose: 10 * time.Second})
	h.placeAt(3000)

	h.ctrl.SetPosition(h.cover, cover.OpenPosition)
	h.clock.Advance(time.Minute)

	assert.Equal(t, cover.StatusStopped, h.cover.Status)
	assert.Equal(t, cover.OpenPosition, h.cover.Position)
	assert.Equal(t, 11500*time.Millisecond, h.cover.MotorRanFor)
}

func TestReactionTimeDelaysMotorStart(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 10 * time.Second, TimeToClose: 10 * time.Second, ReactionTime: time.Second})
	start := h.clock.Now()

	h.ctrl.SetPosition(h.cover, 5000)

	assert.Equal(t, start.Add(time.Second), h.cover.LastMotorStart)
	assert.Equal(t, 5*time.Second, h.cover.RunMotorFor)

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 4000, h.cover.Position)
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 10 * time.Second, TimeToClose: 10 * time.Second})

	h.ctrl.SetPosition(h.cover, 8000)
	h.clock.Advance(3 * time.Second)

	h.ctrl.Stop(h.cover)
	first := h.pub.lastPosition()
	statuses := len(h.pub.statuses)

	h.clock.Advance(time.Minute)
	h.ctrl.Stop(h.cover)

	assert.Equal(t, 3000, first)
	assert.Equal(t, first, h.pub.lastPosition())
	assert.Equal(t, statuses+1, len(h.pub.statuses), "status is republished")
	assert.Equal(t, []string{"open cover.window", "stop cover.window"}, h.actuator.calls)
}

func TestSingleMovementInFlight(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 10 * time.Second, TimeToClose: 10 * time.Second})

	h.ctrl.SetPosition(h.cover, 8000)
	h.clock.Advance(2 * time.Second)
	second := h.clock.Now()

	h.ctrl.SetPosition(h.cover, 5000)

	assert.Len(t, h.ctrl.movements, 1)
	assert.Len(t, h.clock.pending(), 2, "one movement timer and the broadcaster")
	assert.Equal(t, second, h.cover.LastMotorStart)
	assert.Equal(t, 2000, h.cover.StartPosition)
	assert.Equal(t, 3*time.Second, h.cover.RunMotorFor)

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, cover.StatusStopped, h.cover.Status)
	assert.Equal(t, 5000, h.cover.Position)

	h.clock.Advance(time.Minute)
	assert.Equal(t, 5000, h.cover.Position)
	assert.Equal(t, []string{
		"open cover.window",
		"stop cover.window",
		"open cover.window",
		"stop cover.window",
	}, h.actuator.calls)
}

func TestInvertSwapsActuatorCommands(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 10 * time.Second, TimeToClose: 10 * time.Second})
	h.ctrl.SetInvert(h.cover, true)

	h.ctrl.SetPosition(h.cover, cover.OpenPosition)
	assert.Equal(t, []string{"close cover.window"}, h.actuator.calls)
	assert.Equal(t, cover.DirectionOpening, h.cover.Direction)

	last := h.pub.statuses[len(h.pub.statuses)-1]
	assert.Equal(t, statusUpdate{cover.StatusMoving, cover.DirectionOpening, true}, last)

	h.clock.Advance(time.Minute)
	assert.Equal(t, cover.OpenPosition, h.cover.Position)

	h.ctrl.SetPosition(h.cover, cover.ClosedPosition)
	assert.Equal(t, "open cover.window", h.actuator.calls[len(h.actuator.calls)-1])
	assert.Equal(t, cover.DirectionClosing, h.cover.Direction)
}

func TestOverrunForcesStop(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 5 * time.Second, TimeToClose: 5 * time.Second})
	h.placeAt(cover.OpenPosition)

	// a restored cover that never got its stop
	h.cover.Status = cover.StatusMoving
	h.cover.Direction = cover.DirectionClosing
	h.cover.LastMotorStart = h.clock.Now()
	h.ctrl.Broadcaster().Kick()

	h.clock.Advance(6 * time.Second)
	assert.Equal(t, cover.StatusMoving, h.cover.Status)
	assert.Empty(t, h.actuator.calls)

	h.clock.Advance(time.Second)
	assert.Equal(t, cover.StatusStopped, h.cover.Status)
	assert.Equal(t, cover.ClosedPosition, h.cover.Position)
	assert.Equal(t, []string{"stop cover.window"}, h.actuator.calls)
	assert.False(t, h.ctrl.Broadcaster().Armed())
}

func TestSetPositionToCurrentDoesNotMove(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 10 * time.Second, TimeToClose: 10 * time.Second})
	h.placeAt(4000)

	h.ctrl.SetPosition(h.cover, 4000)

	assert.Equal(t, cover.StatusStopped, h.cover.Status)
	assert.Empty(t, h.actuator.calls)
	assert.False(t, h.ctrl.Pending("window"))
}

func TestPositionStaysInRange(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 17 * time.Second, TimeToClose: 13 * time.Second, ReactionTime: 300 * time.Millisecond})
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		h.ctrl.SetPosition(h.cover, rnd.Intn(cover.OpenPosition+1))
		h.clock.Advance(time.Duration(rnd.Int63n(int64(20 * time.Second))))
		h.ctrl.Stop(h.cover)

		require.GreaterOrEqual(t, h.cover.Position, cover.ClosedPosition)
		require.LessOrEqual(t, h.cover.Position, cover.OpenPosition)
	}
}

func TestActuatorFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 10 * time.Second, TimeToClose: 10 * time.Second})
	h.actuator.err = errors.New("unreachable")

	h.ctrl.SetPosition(h.cover, cover.OpenPosition)
	assert.Equal(t, cover.StatusMoving, h.cover.Status)

	h.clock.Advance(time.Minute)
	assert.Equal(t, cover.StatusStopped, h.cover.Status)
}

func TestHandle(t *testing.T) {
	h := newHarness(t, cover.Config{TimeToOpen: 10 * time.Second, TimeToClose: 10 * time.Second})

	t.Run("unknown cover", func(t *testing.T) {
		err := h.ctrl.Handle(SetCover{ID: "nope", Action: ActionOpen})
		assert.True(t, errors.Is(err, cover.ErrUnknownCover))
		assert.Empty(t, h.actuator.calls)
	})

	t.Run("open then stop", func(t *testing.T) {
		require.NoError(t, h.ctrl.Handle(SetCover{ID: "window", Action: ActionOpen}))
		assert.Equal(t, cover.DirectionOpening, h.cover.Direction)

		h.clock.Advance(time.Second)
		require.NoError(t, h.ctrl.Handle(SetCover{ID: "window", Action: ActionStop}))
		assert.Equal(t, cover.StatusStopped, h.cover.Status)
		assert.Equal(t, 1000, h.cover.Position)
	})

	t.Run("close", func(t *testing.T) {
		require.NoError(t, h.ctrl.Handle(SetCover{ID: "window", Action: ActionClose}))
		assert.Equal(t, cover.DirectionClosing, h.cover.Direction)
		assert.Equal(t, 11500*time.Millisecond, h.cover.RunMotorFor)
		h.clock.Advance(time.Minute)
	})

	t.Run("position", func(t *testing.T) {
		require.NoError(t, h.ctrl.Handle(SetPosition{ID: "window", Position: 2500}))
		assert.Equal(t, 2500*time.Millisecond, h.cover.RunMotorFor)
		h.clock.Advance(time.Minute)
		assert.Equal(t, 2500, h.cover.Position)
	})

	t.Run("invert", func(t *testing.T) {
		require.NoError(t, h.ctrl.Handle(SetInvert{ID: "window", Invert: true}))
		assert.True(t, h.cover.Invert)
	})
}

func TestParseAction(t *testing.T) {
	assert.Equal(t, ActionOpen, ParseAction("OPEN"))
	assert.Equal(t, ActionStop, ParseAction("STOP"))
	assert.Equal(t, ActionClose, ParseAction("CLOSE"))
	assert.Equal(t, ActionClose, ParseAction("whatever"))
}
