package client

import (
	"math"
	"sync/atomic"
	"time"
)

// MaxIntervalSeconds is the longest interval that still fits a time.Duration.
const MaxIntervalSeconds = int(math.MaxInt64 / int64(time.Second))

// Interval is the report period in seconds, written by the receive loop and read by the report loop.
type Interval struct {
	seconds atomic.Int64
}

// NewInterval falls back to 5 seconds for non-positive values and clamps to MaxIntervalSeconds.
func NewInterval(seconds int) *Interval {
	if seconds <= 0 {
		seconds = 5
	}
	if seconds > MaxIntervalSeconds {
		seconds = MaxIntervalSeconds
	}
	i := &Interval{}
	i.seconds.Store(int64(seconds))
	return i
}

func (i *Interval) Seconds() int {
	return int(i.seconds.Load())
}

// Set ignores values outside 1..MaxIntervalSeconds and reports whether the interval changed.
func (i *Interval) Set(seconds int) bool {
	if seconds <= 0 || seconds > MaxIntervalSeconds {
		return false
	}
	return i.seconds.Swap(int64(seconds)) != int64(seconds)
}

// Duration converts the interval using unit, saturating instead of overflowing.
func (i *Interval) Duration(unit time.Duration) time.Duration {
	seconds := time.Duration(i.Seconds())
	if unit > 0 && seconds > time.Duration(math.MaxInt64)/unit {
		return time.Duration(math.MaxInt64)
	}
	return seconds * unit
}
