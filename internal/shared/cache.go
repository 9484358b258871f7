package shared

import "context"

// CacheInvalidator drops derived read-side caches after a write changes a
// balance or status. A nil invalidator is a no-op.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}
