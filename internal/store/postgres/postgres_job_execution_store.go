package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zed-io/fineract-sub004/types"
)

type PostgresJobExecutionStore struct {
	db *sql.DB
}

func NewPostgresJobExecutionStore(db *sql.DB) *PostgresJobExecutionStore {
	return &PostgresJobExecutionStore{db: db}
}

func (r *PostgresJobExecutionStore) Insert(ctx context.Context, execution *types.JobExecution) error {
	params, err := marshalPayload(execution.Parameters)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO job_execution (id, job_id, start_time, status, parameters, node_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, execution.ID, execution.JobID, execution.StartTime, execution.Status, params, execution.NodeID)
	if err != nil {
		return fmt.Errorf("failed to insert execution %s: %w", execution.ID, err)
	}
	return nil
}

func (r *PostgresJobExecutionStore) Finish(ctx context.Context, execution *types.JobExecution) error {
	result, err := marshalPayload(execution.Result)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE job_execution
		SET end_time = $2,
		    status = $3,
		    error_message = $4,
		    error_stack = $5,
		    result = $6,
		    processing_time_ms = $7
		WHERE id = $1 AND end_time IS NULL
	`, execution.ID, execution.EndTime, execution.Status, execution.ErrorMessage, execution.ErrorStack,
		result, execution.ProcessingTimeMs)
	if err != nil {
		return fmt.Errorf("failed to finish execution %s: %w", execution.ID, err)
	}
	return nil
}

func (r *PostgresJobExecutionStore) History(ctx context.Context, jobID string, limit int) ([]types.JobExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, start_time, end_time, status, error_message, error_stack,
		       parameters, result, processing_time_ms, node_id
		FROM job_execution
		WHERE job_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions of job %s: %w", jobID, err)
	}
	defer rows.Close()

	var executions []types.JobExecution
	for rows.Next() {
		var (
			e              types.JobExecution
			params, result []byte
			processingMs   sql.NullInt64
		)
		if err := rows.Scan(
			&e.ID, &e.JobID, &e.StartTime, &e.EndTime, &e.Status, &e.ErrorMessage, &e.ErrorStack,
			&params, &result, &processingMs, &e.NodeID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.ProcessingTimeMs = processingMs.Int64
		if e.Parameters, err = unmarshalPayload(params); err != nil {
			return nil, err
		}
		if e.Result, err = unmarshalPayload(result); err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return executions, nil
}
