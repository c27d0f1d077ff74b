package engine

import (
	"errors"
	"math"
	"time"
)

// DefaultSecondsPerDay matches one simulated day per second of wall time at speed 1.
const DefaultSecondsPerDay = 1.0

// ErrInvalidSecondsPerDay is returned for a non-positive day length.
var ErrInvalidSecondsPerDay = errors.New("seconds per day must be positive and finite")

// Clock converts scaled wall time into whole simulated days.
// It does NOT know about hosts or inoculations - only time progression.
// Progress is counted in whole nanoseconds so splitting a frame never changes
// which day it lands on.
type Clock struct {
	day         uint32
	accumulated time.Duration
	dayLength   time.Duration
}

// NewClock creates a clock at day 0.
func NewClock(secondsPerDay float64) (*Clock, error) {
	length, ok := toDuration(secondsPerDay)
	if !ok || length <= 0 {
		return nil, ErrInvalidSecondsPerDay
	}
	return &Clock{dayLength: length}, nil
}

// toDuration rounds seconds to the nearest nanosecond.
func toDuration(seconds float64) (time.Duration, bool) {
	if !(seconds > 0) || math.IsInf(seconds, 0) {
		return 0, false
	}
	ns := math.Round(seconds * float64(time.Second))
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64), true
	}
	return time.Duration(ns), true
}

// Advance accumulates wallDelta*speed and returns how many day boundaries were
// crossed. Each boundary increments Day by exactly one, so a large step can
// cross several days in one call.
func (c *Clock) Advance(wallDelta, speed float64) uint32 {
	step, ok := toDuration(wallDelta * speed)
	if !ok || step == 0 {
		return 0
	}

	// Divide before adding so a huge step cannot overflow the accumulator.
	crossed := uint32(step / c.dayLength)
	c.accumulated += step % c.dayLength
	if c.accumulated >= c.dayLength {
		c.accumulated -= c.dayLength
		crossed++
	}
	c.day += crossed
	return crossed
}

// Day returns whole days elapsed.
func (c *Clock) Day() uint32 {
	return c.day
}

// Accumulated returns the progress into the current day, in scaled seconds.
func (c *Clock) Accumulated() float64 {
	return c.accumulated.Seconds()
}

// SecondsPerDay returns the day length threshold.
func (c *Clock) SecondsPerDay() float64 {
	return c.dayLength.Seconds()
}
