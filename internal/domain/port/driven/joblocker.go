package driven

import (
	"context"
	"time"
)

// JobLocker defines the driven port for named advisory locks shared by every
// process using the same store. A lock whose lease expired may be taken over.
type JobLocker interface {
	// TryAcquireLock returns false without error when another holder owns a
	// live lease on name.
	TryAcquireLock(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, holder string) error
}
