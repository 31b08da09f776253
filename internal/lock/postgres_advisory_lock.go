package lock

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresAdvisoryLock wraps pg_advisory_lock. Session-level advisory locks
// belong to a connection, so the lock pins one connection from the pool
// between Acquire and Release.
type PostgresAdvisoryLock struct {
	db   *sql.DB
	conn *sql.Conn
}

func NewPostgresAdvisoryLock(db *sql.DB) *PostgresAdvisoryLock {
	return &PostgresAdvisoryLock{
		db: db,
	}
}

func (l *PostgresAdvisoryLock) Acquire(ctx context.Context, lockID int) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.conn = conn
	return nil
}

func (l *PostgresAdvisoryLock) Release(ctx context.Context, lockID int) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		_ = l.conn.Close()
		l.conn = nil
	}()

	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}
