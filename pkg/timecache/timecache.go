// Package timecache provides a cache for the system clock, to avoid calls to
// time.Now() on hot paths.
// The time is stored as one int64 holding the nanoseconds since the Unix
// Epoch and is accessed with atomic primitives, without locking.
// The package runs a global singleton cache that is updated every second.
package timecache

import (
	"sync/atomic"
	"time"
)

var clock int64

func init() {
	atomic.StoreInt64(&clock, time.Now().UnixNano())

	go func() {
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for now := range tick.C {
			atomic.StoreInt64(&clock, now.UnixNano())
		}
	}()
}

// Now returns the cached time as a time.Time value.
func Now() time.Time {
	return time.Unix(0, atomic.LoadInt64(&clock))
}

// NowUnixNano returns the cached time as nanoseconds since the Unix Epoch.
func NowUnixNano() int64 {
	return atomic.LoadInt64(&clock)
}

// NowUnix returns the cached time as seconds since the Unix Epoch.
func NowUnix() int64 {
	nsec := atomic.LoadInt64(&clock)
	sec := nsec / 1e9
	if nsec-sec*1e9 < 0 {
		sec--
	}
	return sec
}
