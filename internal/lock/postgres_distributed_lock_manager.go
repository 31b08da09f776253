package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresDistributedLockManager stores leases in the job_lock table. Expiry is
// judged by the database clock so nodes with skewed clocks still agree.
type PostgresDistributedLockManager struct {
	db *sql.DB
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{
		db: db,
	}
}

func (l *PostgresDistributedLockManager) Acquire(ctx context.Context, jobID, nodeID string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO job_lock (job_id, node_id, locked_at, expires_at)
		VALUES ($1, $2, now(), now() + $3::double precision * interval '1 millisecond')
		ON CONFLICT (job_id) DO UPDATE
		SET node_id = EXCLUDED.node_id,
		    locked_at = EXCLUDED.locked_at,
		    expires_at = EXCLUDED.expires_at
		WHERE job_lock.expires_at <= now()
	`
	result, err := l.db.ExecContext(ctx, query, jobID, nodeID, ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease for job %s: %w", jobID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease for job %s: %w", jobID, err)
	}

	return affected == 1, nil
}

func (l *PostgresDistributedLockManager) Release(ctx context.Context, jobID, nodeID string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM job_lock WHERE job_id = $1 AND node_id = $2`, jobID, nodeID)
	if err != nil {
		return fmt.Errorf("failed to release lease for job %s: %w", jobID, err)
	}
	return nil
}

func (l *PostgresDistributedLockManager) Refresh(ctx context.Context, jobID, nodeID string, ttl time.Duration) (bool, error) {
	query := `
		UPDATE job_lock
		SET expires_at = now() + $3::double precision * interval '1 millisecond'
		WHERE job_id = $1 AND node_id = $2 AND expires_at > now()
	`
	result, err := l.db.ExecContext(ctx, query, jobID, nodeID, ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("failed to refresh lease for job %s: %w", jobID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to refresh lease for job %s: %w", jobID, err)
	}

	return affected == 1, nil
}
