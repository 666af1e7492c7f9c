package cover

import (
	"time"
)

const (
	OpenPosition   = 10000
	ClosedPosition = 0

	// UnsetPosition marks a moving position that has not been estimated.
	UnsetPosition = -1

	// ExtraTimeForFullRun is added to full open/close runs so the cover
	// reaches its end stop despite estimation error.
	ExtraTimeForFullRun = 1500 * time.Millisecond
)

type Status string

const (
	StatusStopped Status = "stopped"
	StatusMoving  Status = "moving"
)

type Direction string

const (
	DirectionNone    Direction = "none"
	DirectionOpening Direction = "opening"
	DirectionClosing Direction = "closing"
)

// Config is a single configured cover.
type Config struct {
	Parent       string
	FriendlyName string
	UniqueID     string
	TimeToOpen   time.Duration
	TimeToClose  time.Duration
	ReactionTime time.Duration
}

// Cover is the tracked state of one physical actuator.
type Cover struct {
	ID           string
	ParentID     string
	FriendlyName string

	TimeToOpen   time.Duration
	TimeToClose  time.Duration
	ReactionTime time.Duration

	Invert    bool
	Status    Status
	Direction Direction

	// StartPosition is the position the current or last movement
	// started from. Estimates are always based on it.
	StartPosition  int
	Position       int
	MovingPosition int

	LastMotorStart time.Time
	LastMotorStop  time.Time
	RunMotorFor    time.Duration
	MotorRanFor    time.Duration
}

// New returns a stopped, fully closed cover built from cfg.
func New(id string, cfg Config) *Cover {
	return &Cover{
		ID:             id,
		ParentID:       cfg.Parent,
		FriendlyName:   cfg.FriendlyName,
		TimeToOpen:     cfg.TimeToOpen,
		TimeToClose:    cfg.TimeToClose,
		ReactionTime:   cfg.ReactionTime,
		Status:         StatusStopped,
		Direction:      DirectionNone,
		StartPosition:  ClosedPosition,
		Position:       ClosedPosition,
		MovingPosition: UnsetPosition,
	}
}

func (c *Cover) IsMoving() bool {
	return c.Status == StatusMoving
}

// TimeFor returns the full traverse duration for the given direction.
func (c *Cover) TimeFor(d Direction) time.Duration {
	if d == DirectionOpening {
		return c.TimeToOpen
	}

	return c.TimeToClose
}

// Apply commits an estimate. A stopped cover gets its authoritative
// position updated, a moving one only its moving position.
func (c *Cover) Apply(e Estimate) {
	c.MotorRanFor = e.MotorRanFor
	if c.IsMoving() {
		c.MovingPosition = e.MovingPosition
		return
	}

	c.Position = e.Position
	c.MovingPosition = UnsetPosition
}

// CurrentPosition is the moving position while moving, otherwise the
// stored one.
func (c *Cover) CurrentPosition() int {
	if c.IsMoving() && c.MovingPosition != UnsetPosition {
		return c.MovingPosition
	}

	return c.Position
}

func ClampPosition(position int) int {
	if position > OpenPosition {
		return OpenPosition
	}
	if position < ClosedPosition {
		return ClosedPosition
	}

	return position
}
