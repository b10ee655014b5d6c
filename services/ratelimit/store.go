// Package ratelimit implements sliding-window attempt limiting for the
// authentication endpoints.
//
// An AttemptStore keeps the timestamps of accepted attempts per key. A hit is
// accepted while fewer than limit attempts fall inside the window ending at
// now; rejected hits are not recorded, so a client that keeps retrying is
// released as soon as its oldest accepted attempt ages out.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Decision is the outcome of one hit
type Decision struct {
	Allowed bool
	// Count is the number of attempts inside the window after this hit
	Count int
	// RetryAfter is how long until the oldest attempt leaves the window,
	// rounded up to whole seconds. Zero when Allowed.
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter as an integer number of seconds
func (d Decision) RetryAfterSeconds() int {
	return int(d.RetryAfter / time.Second)
}

// AttemptStore records attempts and decides hits atomically per key
type AttemptStore interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Decision, error)
}

// retryAfter computes oldest + window - now rounded up to a whole second,
// never less than one second
func retryAfter(oldest, now time.Time, window time.Duration) time.Duration {
	wait := oldest.Add(window).Sub(now)
	secs := math.Ceil(wait.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// inWindow reports whether an attempt at t still counts at now
func inWindow(t, now time.Time, window time.Duration) bool {
	return now.Sub(t) < window
}
