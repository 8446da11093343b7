package netlog

import (
	"sync/atomic"
	"time"
)

// Clock provides the current time and converts NetLog ticks to wall time
type Clock interface {
	Now() time.Time
	TicksToTime(ticks int64) time.Time
}

// TickClock converts ticks using the capture's timeTickOffset, the number
// of milliseconds to add to a tick value to get milliseconds since the epoch.
//
// When Frozen is set, Now returns it instead of the wall clock. Loaded
// captures freeze the clock at the time the capture was taken so that
// still-active sources get a meaningful duration.
type TickClock struct {
	Offset int64
	Frozen time.Time
}

// Now returns the frozen time if set, otherwise the wall clock
func (c TickClock) Now() time.Time {
	if !c.Frozen.IsZero() {
		return c.Frozen
	}
	return time.Now()
}

// TicksToTime converts a tick value to wall time
func (c TickClock) TicksToTime(ticks int64) time.Time {
	return time.UnixMilli(ticks + c.Offset)
}

// AdjustableClock is a wall clock whose tick offset can change after the
// sources using it were created. Tailed captures only learn the offset
// once the constants header has been read.
type AdjustableClock struct {
	offset atomic.Int64
}

// NewAdjustableClock returns a clock starting at offset
func NewAdjustableClock(offset int64) *AdjustableClock {
	c := &AdjustableClock{}
	c.offset.Store(offset)
	return c
}

// SetOffset replaces the tick offset
func (c *AdjustableClock) SetOffset(offset int64) {
	c.offset.Store(offset)
}

// Offset returns the current tick offset
func (c *AdjustableClock) Offset() int64 {
	return c.offset.Load()
}

func (c *AdjustableClock) Now() time.Time {
	return time.Now()
}

func (c *AdjustableClock) TicksToTime(ticks int64) time.Time {
	return time.UnixMilli(ticks + c.offset.Load())
}
