package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides fixed-window rate limit checks. Windows are aligned to
// multiples of window since the Unix epoch.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Scope indicates which dimension the rate limit applies to.
type Scope int

const (
	ScopeNone Scope = iota
	// ScopeUser counts per signed-in user; anonymous requests are not limited.
	ScopeUser
	// ScopeIP counts per client address.
	ScopeIP
	// ScopeUserOrIP counts per user when signed in, otherwise per address.
	ScopeUserOrIP
)

// Policy is a named limit over a window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
	Scope  Scope
}

// windowIndex returns the fixed window containing now and when it ends.
func windowIndex(now time.Time, window time.Duration) (int64, time.Time) {
	if window <= 0 {
		window = time.Second
	}
	idx := now.UnixNano() / int64(window)
	return idx, time.Unix(0, (idx+1)*int64(window)).UTC()
}
