package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SyncLockRepository implements the per-athlete advisory lock that keeps
// concurrent sync runs from double-processing the same activities. The lock
// is a plain row with a timestamp: a holder that dies without releasing is
// simply overtaken once the TTL passes.
type SyncLockRepository struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewSyncLockRepository constructs a SyncLockRepository.
func NewSyncLockRepository(pool *pgxpool.Pool, ttl time.Duration) *SyncLockRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SyncLockRepository{pool: pool, ttl: ttl}
}

// Acquire attempts to take the lock for an athlete. On success it returns a
// holder token that must be passed back to Release; an empty token with a
// false result means a live holder exists.
func (r *SyncLockRepository) Acquire(ctx context.Context, athleteID string) (string, bool, error) {
	const stmt = `INSERT INTO sync_locks (athlete_id, holder, acquired_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (athlete_id) DO UPDATE SET holder = $2, acquired_at = NOW()
        WHERE sync_locks.acquired_at < NOW() - $3::interval`

	token := uuid.NewString()
	tag, err := r.pool.Exec(ctx, stmt, athleteID, token, r.ttl)
	if err != nil {
		return "", false, err
	}
	if tag.RowsAffected() == 0 {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the lock only if this runner still holds it. A holder that
// ran past the TTL and was overtaken must not delete the new holder's row,
// so the delete is keyed on the token. Missing rows are not an error.
func (r *SyncLockRepository) Release(ctx context.Context, athleteID, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sync_locks WHERE athlete_id=$1 AND holder=$2`, athleteID, token)
	return err
}

// Status reports whether a live (non-expired) lock exists for the athlete
// and when it was acquired. The zero time means no lock is held.
func (r *SyncLockRepository) Status(ctx context.Context, athleteID string) (bool, time.Time, error) {
	const query = `SELECT acquired_at FROM sync_locks
        WHERE athlete_id=$1 AND acquired_at >= NOW() - $2::interval`

	var acquiredAt time.Time
	err := r.pool.QueryRow(ctx, query, athleteID, r.ttl).Scan(&acquiredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}
	return true, acquiredAt, nil
}
