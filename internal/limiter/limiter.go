// Package limiter throttles login attempts per account email and client address.
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login for email from ipHash may proceed, and if not, for how long it is blocked.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets the failure counter.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt and reports whether it triggered a block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// Policy configures the failure window and lockout.
type Policy struct {
	Window   time.Duration // failures older than this start a fresh count
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy locks an email/address pair for 15 minutes after 5 failures within 15 minutes.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}
