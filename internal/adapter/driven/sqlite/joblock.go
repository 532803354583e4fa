package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobLocker = (*JobLockRepo)(nil)

// JobLockRepo emulates advisory locks with lease rows in activity_job_locks.
// A lease is taken over once it expires, so a crashed holder never blocks a
// job for longer than its TTL.
type JobLockRepo struct {
	db  *DB
	now func() time.Time
}

// NewJobLockRepo creates a new JobLockRepo backed by the given DB.
func NewJobLockRepo(db *DB) *JobLockRepo {
	return &JobLockRepo{db: db, now: time.Now}
}

// TryAcquireLock takes or renews the lease on name. It returns false when
// another holder owns a live lease.
func (r *JobLockRepo) TryAcquireLock(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	const query = `
		INSERT INTO activity_job_locks (name, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE activity_job_locks.holder = excluded.holder
		   OR activity_job_locks.expires_at <= excluded.acquired_at
	`

	now := r.now()
	res, err := r.db.Writer.ExecContext(ctx, query, name, holder, formatTime(now), formatTime(now.Add(ttl)))
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseLock drops the lease on name if holder still owns it.
func (r *JobLockRepo) ReleaseLock(ctx context.Context, name, holder string) error {
	const query = `DELETE FROM activity_job_locks WHERE name = ? AND holder = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, name, holder); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
