package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupQueueTestDB creates a test database container with the task table
func setupQueueTestDB(ctx context.Context, t testing.TB) (*pgxpool.Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "start container")

	host, err := container.Host(ctx)
	require.NoError(t, err, "get host")
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err, "get port")

	pool, err := pgxpool.New(ctx, fmt.Sprintf(
		"postgres://test:test@%s:%s/test?sslmode=disable", host, port.Port()))
	require.NoError(t, err, "connect")

	_, err = pool.Exec(ctx, `
		CREATE TABLE engine_tasks (
			id TEXT PRIMARY KEY,
			task_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			scheduled_for TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			worker_id TEXT,
			run_id TEXT,
			retry_count INT NOT NULL DEFAULT 0,
			max_retries INT NOT NULL DEFAULT 3,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	require.NoError(t, err, "migrate")

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func TestTaskQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupQueueTestDB(ctx, t)
	defer cleanup()

	queue := New(pool)

	taskID, err := queue.ScheduleApplyRules(ctx, ApplyRulesPayload{
		PriceListID: "pl-1",
		DryRun:      true,
		Quantity:    5,
	}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	claimed, err := queue.ClaimTasks(ctx, "worker-a", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, taskID, claimed[0].ID)
	assert.Equal(t, TaskTypeApplyRules, claimed[0].TaskType)

	var payload ApplyRulesPayload
	require.NoError(t, json.Unmarshal(claimed[0].Payload, &payload))
	assert.Equal(t, "pl-1", payload.PriceListID)
	assert.True(t, payload.DryRun)
	assert.Equal(t, 5.0, payload.Quantity)

	// A second claim finds nothing: the row is locked away from other workers.
	again, err := queue.ClaimTasks(ctx, "worker-b", 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, queue.MarkProcessing(ctx, taskID))
	require.NoError(t, queue.CompleteTask(ctx, taskID, "run-42"))

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
}

func TestTaskQueueRetryThenFail(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupQueueTestDB(ctx, t)
	defer cleanup()

	queue := New(pool)

	taskID, err := queue.ScheduleApplyRules(ctx, ApplyRulesPayload{PriceListID: "pl-1"}, 2)
	require.NoError(t, err)

	// First failure goes back to pending with a backoff.
	require.NoError(t, queue.FailTask(ctx, taskID, "transient db error", true))
	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, 1, task.RetryCount)

	// Second failure exhausts the retries.
	require.NoError(t, queue.FailTask(ctx, taskID, "transient db error", true))
	task, err = queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)

	// Non-retryable failures terminate immediately.
	otherID, err := queue.ScheduleApplyRules(ctx, ApplyRulesPayload{PriceListID: "pl-2"}, 0)
	require.NoError(t, err)
	require.NoError(t, queue.FailTask(ctx, otherID, "payload parse error", false))
	other, err := queue.GetTask(ctx, otherID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, other.Status)
	require.NotNil(t, other.ErrorMessage)
	assert.Equal(t, "payload parse error", *other.ErrorMessage)
}

func TestTaskQueueRecoverOrphanedTasks(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupQueueTestDB(ctx, t)
	defer cleanup()

	queue := New(pool)

	taskID, err := queue.ScheduleApplyRules(ctx, ApplyRulesPayload{PriceListID: "pl-1"}, 0)
	require.NoError(t, err)

	claimed, err := queue.ClaimTasks(ctx, "worker-crashed", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Backdate the claim so it looks stale.
	_, err = pool.Exec(ctx, `
		UPDATE engine_tasks SET updated_at = NOW() - INTERVAL '1 hour' WHERE id = $1
	`, taskID)
	require.NoError(t, err)

	recovered, err := queue.RecoverOrphanedTasks(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
	assert.Nil(t, task.WorkerID)

	// Fresh claims are left alone.
	reclaimed, err := queue.ClaimTasks(ctx, "worker-b", 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	recovered, err = queue.RecoverOrphanedTasks(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, recovered)
}
