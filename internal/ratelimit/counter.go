package ratelimit

import (
	"context"
	"time"
)

// Counter answers whether an admission key is under quota for a sliding
// window. Implementations must never fail a request on their own error
// paths; an unknown key counts as zero usage.
//
// The in-memory implementation is correct for a single process only.
// Horizontally scaled deployments select the Redis-backed implementation
// at configuration time so quota state is shared across instances.
type Counter interface {
	// Allow prunes the key's window, then either records the request and
	// returns true, or returns false without consuming. Rejected requests
	// never advance the window, so a sustained flood cannot keep itself
	// exhausted once legitimate traffic resumes.
	Allow(ctx context.Context, key string, window time.Duration, max int) bool

	// Count reports how many admitted requests the key has inside the
	// window, without recording anything. The progressive delay stage
	// reads this to compute a soft-throttle duration.
	Count(ctx context.Context, key string, window time.Duration) int

	// RetryAfter reports how long until the key's oldest in-window
	// request expires, freeing a slot. Zero when the key has no usage.
	RetryAfter(ctx context.Context, key string, window time.Duration) time.Duration
}
