package ratelimit

import "time"

// Clock abstracts time so bucket behavior is deterministic under test.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
