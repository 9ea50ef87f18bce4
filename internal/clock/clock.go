package clock

import "time"

// Clock abstracts time so the rate limiter and the response cache can be
// driven by a virtual clock in tests.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// Real delegates to the standard time package.
type Real struct{}

func NewReal() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) Since(t time.Time) time.Duration { return time.Since(t) }
