package cover

import (
	"math"
	"time"
)

type Estimate struct {
	Position       int
	MovingPosition int
	MotorRanFor    time.Duration
	Elapsed        time.Duration

	// Overrun is set when a moving cover ran longer than any full
	// traverse plus the extra time. The motor must be stopped.
	Overrun bool
}

// EstimatePosition computes the position of c at now from its recorded
// motion. It does not modify c.
func EstimatePosition(c *Cover, now time.Time) Estimate {
	e := Estimate{Position: c.Position, MovingPosition: UnsetPosition}

	if c.IsMoving() {
		e.Elapsed = now.Sub(c.LastMotorStart)
		e.Overrun = e.Elapsed > c.TimeToOpen+ExtraTimeForFullRun &&
			e.Elapsed > c.TimeToClose+ExtraTimeForFullRun
	} else {
		e.Elapsed = c.LastMotorStop.Sub(c.LastMotorStart)
	}

	// the motor start is recorded after the reaction time
	elapsed := e.Elapsed
	if elapsed < 0 {
		elapsed = 0
	}
	if !c.IsMoving() {
		e.MotorRanFor = elapsed
	}

	position := c.StartPosition
	if full := c.TimeFor(c.Direction); full > 0 && c.Direction != DirectionNone {
		distance := int(math.Round(elapsed.Seconds() / full.Seconds() * OpenPosition))
		if c.Direction == DirectionOpening {
			position += distance
		} else {
			position -= distance
		}
	}
	position = ClampPosition(position)

	if c.IsMoving() {
		e.MovingPosition = position
	} else {
		e.Position = position
	}

	return e
}
