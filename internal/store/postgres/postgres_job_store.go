package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zed-io/fineract-sub004/custom_errors"
	"github.com/zed-io/fineract-sub004/internal/state"
	"github.com/zed-io/fineract-sub004/types"
)

const jobColumns = `
		id, name, job_type, cron_expression, status, priority, parameters,
		next_run_time, last_run_time, last_completion_time, last_failure_time,
		retry_count, max_retries, timeout_seconds, lock_id, lock_expires_at,
		version, is_active, tenant_id, created_at, updated_at`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

func (r *PostgresJobStore) Get(ctx context.Context, jobID string) (*types.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM job WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", custom_errors.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return job, nil
}

func (r *PostgresJobStore) List(ctx context.Context, filter types.JobFilter) ([]types.Job, error) {
	var (
		conds []string
		args  []any
	)
	argIndex := 1
	if !filter.IncludeInactive {
		conds = append(conds, "is_active = TRUE")
	}
	if filter.JobType != "" {
		conds = append(conds, fmt.Sprintf("job_type = $%d", argIndex))
		args = append(args, filter.JobType)
		argIndex++
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.TenantID != "" {
		conds = append(conds, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, filter.TenantID)
		argIndex++
	}

	where := "TRUE"
	if len(conds) > 0 {
		where = strings.Join(conds, " AND ")
	}
	query := `SELECT ` + jobColumns + ` FROM job WHERE ` + where + ` ORDER BY created_at ASC`
	return r.queryJobs(ctx, query, args...)
}

func (r *PostgresJobStore) AddOrUpdate(ctx context.Context, job *types.Job) error {
	params, err := marshalPayload(job.Parameters)
	if err != nil {
		return err
	}
	if job.Version == 0 {
		return r.insert(ctx, job, params)
	}
	return r.update(ctx, job, params)
}

func (r *PostgresJobStore) insert(ctx context.Context, job *types.Job, params any) error {
	query := `
		INSERT INTO job (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $18, now(), now())
		ON CONFLICT (id) DO NOTHING
		RETURNING version, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		job.ID, job.Name, job.JobType, nullString(job.CronExpression), job.Status, job.Priority, params,
		job.NextRunTime, job.LastRunTime, job.LastCompletionTime, job.LastFailureTime,
		job.RetryCount, job.MaxRetries, job.TimeoutSeconds, job.LockID, job.LockExpiresAt,
		job.IsActive, job.TenantID,
	).Scan(&job.Version, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: job %s already exists", custom_errors.ErrConflict, job.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

func (r *PostgresJobStore) update(ctx context.Context, job *types.Job, params any) error {
	query := `
		UPDATE job SET
			name = $2, job_type = $3, cron_expression = $4, status = $5, priority = $6, parameters = $7,
			next_run_time = $8, last_run_time = $9, last_completion_time = $10, last_failure_time = $11,
			retry_count = $12, max_retries = $13, timeout_seconds = $14, lock_id = $15, lock_expires_at = $16,
			is_active = $17, tenant_id = $18,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $19
		RETURNING version, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		job.ID, job.Name, job.JobType, nullString(job.CronExpression), job.Status, job.Priority, params,
		job.NextRunTime, job.LastRunTime, job.LastCompletionTime, job.LastFailureTime,
		job.RetryCount, job.MaxRetries, job.TimeoutSeconds, job.LockID, job.LockExpiresAt,
		job.IsActive, job.TenantID, job.Version,
	).Scan(&job.Version, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: job %s at version %d", custom_errors.ErrConflict, job.ID, job.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	return nil
}

func (r *PostgresJobStore) FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]types.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job j
		WHERE j.status = $1
		  AND j.is_active = TRUE
		  AND j.next_run_time IS NOT NULL
		  AND j.next_run_time <= $2
		  AND NOT EXISTS (
		      SELECT 1 FROM job_lock l WHERE l.job_id = j.id AND l.expires_at > $2
		  )
		ORDER BY j.priority DESC, j.next_run_time ASC
		LIMIT $3
	`
	return r.queryJobs(ctx, query, state.StatusScheduled, now, limit)
}

func (r *PostgresJobStore) FindRunningByNode(ctx context.Context, nodeID string) ([]types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM job WHERE status = $1 AND lock_id = $2`
	return r.queryJobs(ctx, query, state.StatusRunning, nodeID)
}

func (r *PostgresJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) AS count
		FROM job
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int)
	for rows.Next() {
		var status state.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, status := range state.AllStatuses {
		if _, ok := result[status]; !ok {
			result[status] = 0
		}
	}

	return result, nil
}

func (r *PostgresJobStore) Close() error {
	return r.db.Close()
}

func (r *PostgresJobStore) queryJobs(ctx context.Context, query string, args ...any) ([]types.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job      types.Job
		cronExpr sql.NullString
		params   []byte
	)
	err := row.Scan(
		&job.ID, &job.Name, &job.JobType, &cronExpr, &job.Status, &job.Priority, &params,
		&job.NextRunTime, &job.LastRunTime, &job.LastCompletionTime, &job.LastFailureTime,
		&job.RetryCount, &job.MaxRetries, &job.TimeoutSeconds, &job.LockID, &job.LockExpiresAt,
		&job.Version, &job.IsActive, &job.TenantID, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.CronExpression = cronExpr.String
	if job.Parameters, err = unmarshalPayload(params); err != nil {
		return nil, err
	}
	return &job, nil
}
