package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskQueue is a Postgres-backed queue for deferred apply-rules runs.
// Claims use FOR UPDATE SKIP LOCKED so concurrent workers never contend on
// the same row.
type TaskQueue struct {
	pool *pgxpool.Pool
}

// New creates a task queue backed by the given pool.
func New(pool *pgxpool.Pool) *TaskQueue {
	return &TaskQueue{pool: pool}
}

// ScheduleApplyRules enqueues an apply-rules run and returns the task ID.
func (q *TaskQueue) ScheduleApplyRules(ctx context.Context, payload ApplyRulesPayload, maxRetries int) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task payload: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	id := uuid.NewString()
	_, err = q.pool.Exec(ctx, `
		INSERT INTO engine_tasks (id, task_type, payload, status, scheduled_for, max_retries)
		VALUES ($1, $2, $3, 'pending', NOW(), $4)
	`, id, TaskTypeApplyRules, data, maxRetries)
	if err != nil {
		return "", fmt.Errorf("failed to schedule task: %w", err)
	}
	return id, nil
}

// ClaimTasks atomically claims up to maxTasks due tasks for a worker.
func (q *TaskQueue) ClaimTasks(ctx context.Context, workerID string, maxTasks int) ([]ClaimedTask, error) {
	rows, err := q.pool.Query(ctx, `
		UPDATE engine_tasks
		SET status = 'claimed', worker_id = $1, started_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM engine_tasks
			WHERE status = 'pending' AND scheduled_for <= NOW()
			ORDER BY scheduled_for
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, task_type, payload
	`, workerID, maxTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]ClaimedTask, 0)
	for rows.Next() {
		var t ClaimedTask
		if err := rows.Scan(&t.ID, &t.TaskType, &t.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan claimed task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkProcessing transitions a claimed task to processing.
func (q *TaskQueue) MarkProcessing(ctx context.Context, taskID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE engine_tasks
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1
	`, taskID)
	return err
}

// CompleteTask marks a task completed, storing the run ID it produced.
func (q *TaskQueue) CompleteTask(ctx context.Context, taskID, runID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE engine_tasks
		SET status = 'completed', run_id = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, taskID, runID)
	return err
}

// FailTask records a failure. Retryable failures go back to pending with a
// backoff until retries are exhausted.
func (q *TaskQueue) FailTask(ctx context.Context, taskID, errorMessage string, shouldRetry bool) error {
	if shouldRetry {
		_, err := q.pool.Exec(ctx, `
			UPDATE engine_tasks
			SET status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
			    retry_count = retry_count + 1,
			    scheduled_for = NOW() + (INTERVAL '30 seconds' * (retry_count + 1)),
			    error_message = $2,
			    worker_id = NULL,
			    updated_at = NOW()
			WHERE id = $1
		`, taskID, errorMessage)
		return err
	}

	_, err := q.pool.Exec(ctx, `
		UPDATE engine_tasks
		SET status = 'failed', error_message = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, taskID, errorMessage)
	return err
}

// GetTask returns the full task record.
func (q *TaskQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var t Task
	err := q.pool.QueryRow(ctx, `
		SELECT id, task_type, payload, status, scheduled_for, started_at,
		       completed_at, worker_id, retry_count, max_retries, error_message,
		       created_at, updated_at
		FROM engine_tasks
		WHERE id = $1
	`, taskID).Scan(
		&t.ID, &t.TaskType, &t.Payload, &t.Status, &t.ScheduledFor, &t.StartedAt,
		&t.CompletedAt, &t.WorkerID, &t.RetryCount, &t.MaxRetries, &t.ErrorMessage,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RecoverOrphanedTasks returns tasks stuck in claimed/processing back to
// pending. Tasks out of retries are failed instead.
func (q *TaskQueue) RecoverOrphanedTasks(ctx context.Context, staleAfterMinutes int) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE engine_tasks
		SET status = CASE WHEN retry_count >= max_retries THEN 'failed' ELSE 'pending' END,
		    retry_count = retry_count + 1,
		    worker_id = NULL,
		    error_message = 'recovered from stale claim',
		    updated_at = NOW()
		WHERE status IN ('claimed', 'processing')
		  AND updated_at < NOW() - ($1 * INTERVAL '1 minute')
	`, staleAfterMinutes)
	if err != nil {
		return 0, fmt.Errorf("failed to recover orphaned tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
