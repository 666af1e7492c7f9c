package cover

import (
	"math"
	"time"
)

// Record is the persisted form of a Cover. Timestamps are seconds since
// epoch and durations are seconds.
type Record struct {
	ID             string    `json:"id"`
	ParentID       string    `json:"parent_id"`
	FriendlyName   string    `json:"friendly_name"`
	StartPosition  *int      `json:"start_position,omitempty"`
	Position       int       `json:"position"`
	MovingPosition int       `json:"moving_position"`
	LastMotorStart float64   `json:"last_motor_start"`
	LastMotorStop  float64   `json:"last_motor_stop"`
	RunMotorFor    float64   `json:"run_motor_for"`
	MotorRanFor    float64   `json:"motor_ran_for"`
	Direction      Direction `json:"direction"`
	Status         Status    `json:"status"`
	Invert         bool      `json:"invert"`
	TimeToOpen     float64   `json:"time_to_open"`
	TimeToClose    float64   `json:"time_to_close"`
	ReactionTime   float64   `json:"reaction_time"`
}

func (c *Cover) Record() Record {
	start := c.StartPosition
	return Record{
		ID:             c.ID,
		ParentID:       c.ParentID,
		FriendlyName:   c.FriendlyName,
		StartPosition:  &start,
		Position:       c.Position,
		MovingPosition: c.MovingPosition,
		LastMotorStart: EpochSeconds(c.LastMotorStart),
		LastMotorStop:  EpochSeconds(c.LastMotorStop),
		RunMotorFor:    c.RunMotorFor.Seconds(),
		MotorRanFor:    c.MotorRanFor.Seconds(),
		Direction:      c.Direction,
		Status:         c.Status,
		Invert:         c.Invert,
		TimeToOpen:     c.TimeToOpen.Seconds(),
		TimeToClose:    c.TimeToClose.Seconds(),
		ReactionTime:   c.ReactionTime.Seconds(),
	}
}

// Restore merges the mutable fields of a persisted record into c.
// Traversal times always stay as configured.
func (c *Cover) Restore(r Record) {
	c.Position = ClampPosition(r.Position)
	c.StartPosition = c.Position
	if r.StartPosition != nil {
		c.StartPosition = ClampPosition(*r.StartPosition)
	}
	c.MovingPosition = r.MovingPosition
	c.LastMotorStart = FromEpochSeconds(r.LastMotorStart)
	c.LastMotorStop = FromEpochSeconds(r.LastMotorStop)
	c.RunMotorFor = Seconds(r.RunMotorFor)
	c.MotorRanFor = Seconds(r.MotorRanFor)
	c.Invert = r.Invert

	switch r.Direction {
	case DirectionOpening, DirectionClosing:
		c.Direction = r.Direction
	default:
		c.Direction = DirectionNone
	}

	if r.Status == StatusMoving {
		c.Status = StatusMoving
	} else {
		c.Status = StatusStopped
		c.MovingPosition = UnsetPosition

		// without a start position the last run is already in Position
		if r.StartPosition == nil {
			c.Direction = DirectionNone
		}
	}
}

func EpochSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}

	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

func FromEpochSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}

	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second))))
}

func Seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
