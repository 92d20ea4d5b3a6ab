// Package workers runs deferred apply-rules tasks claimed from the engine
// task queue. Large price lists are applied here so the admin UI gets an
// immediate 202 instead of holding a request open.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opsdesk/pricing-engine/internal/engine"
	"github.com/opsdesk/pricing-engine/internal/taskqueue"
)

// Config tunes the apply-rules worker.
type Config struct {
	WorkerID   string
	NumWorkers int
	MaxTasks   int
	PollDelay  time.Duration
}

// Worker polls the task queue and executes apply-rules runs.
type Worker struct {
	queue    *taskqueue.TaskQueue
	engine   *engine.Engine
	config   Config
	logger   zerolog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a worker bound to a queue and an engine.
func New(queue *taskqueue.TaskQueue, eng *engine.Engine, config Config) *Worker {
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	if config.MaxTasks < 1 {
		config.MaxTasks = 1
	}
	return &Worker{
		queue:    queue,
		engine:   eng,
		config:   config,
		logger:   log.With().Str("component", "apply_worker").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start launches the polling goroutines.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().
		Str("worker_id", w.config.WorkerID).
		Int("num_workers", w.config.NumWorkers).
		Msg("Starting apply-rules workers")

	for i := 0; i < w.config.NumWorkers; i++ {
		go w.loop(ctx, i)
	}
}

// Stop signals the workers to stop and waits for in-flight tasks.
func (w *Worker) Stop() {
	close(w.stopChan)
	w.logger.Info().
		Str("worker_id", w.config.WorkerID).
		Msg("Worker stopping, waiting for in-flight tasks")
	w.wg.Wait()
	w.logger.Info().
		Str("worker_id", w.config.WorkerID).
		Msg("Worker stopped")
}

func (w *Worker) loop(ctx context.Context, workerNum int) {
	workerID := fmt.Sprintf("%s-%d", w.config.WorkerID, workerNum)

	ticker := time.NewTicker(w.config.PollDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("worker_id", workerID).Msg("Worker shutting down")
			return
		case <-w.stopChan:
			w.logger.Info().Str("worker_id", workerID).Msg("Worker received stop signal")
			return
		case <-ticker.C:
			w.poll(ctx, workerID)
		}
	}
}

func (w *Worker) poll(ctx context.Context, workerID string) {
	tasks, err := w.queue.ClaimTasks(ctx, workerID, w.config.MaxTasks)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to claim tasks")
		return
	}
	if len(tasks) == 0 {
		return
	}

	w.logger.Info().
		Str("worker_id", workerID).
		Int("task_count", len(tasks)).
		Msg("Worker claimed tasks")

	for _, task := range tasks {
		w.run(ctx, workerID, task)
	}
}

func (w *Worker) run(ctx context.Context, workerID string, task taskqueue.ClaimedTask) {
	w.wg.Add(1)
	defer w.wg.Done()

	if task.TaskType != taskqueue.TaskTypeApplyRules {
		w.logger.Warn().Str("task_type", task.TaskType).Msg("No handler for task type")
		w.queue.FailTask(ctx, task.ID, "no handler registered", false)
		return
	}

	var payload taskqueue.ApplyRulesPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		w.queue.FailTask(ctx, task.ID, fmt.Sprintf("payload parse error: %v", err), false)
		return
	}

	if err := w.queue.MarkProcessing(ctx, task.ID); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("Failed to mark task as processing")
		w.queue.FailTask(ctx, task.ID, fmt.Sprintf("status update failed: %v", err), false)
		return
	}

	w.logger.Info().
		Str("worker_id", workerID).
		Str("task_id", task.ID).
		Str("price_list_id", payload.PriceListID).
		Msg("Worker applying rules")

	result, err := w.engine.ApplyRules(ctx, payload.PriceListID, engine.ApplyOptions{
		DryRun:   payload.DryRun,
		Quantity: payload.Quantity,
	})
	if err != nil {
		w.queue.FailTask(ctx, task.ID, err.Error(), true)
		w.logger.Error().
			Str("task_id", task.ID).
			Err(err).
			Msg("Apply-rules task failed")
		return
	}

	if err := w.queue.CompleteTask(ctx, task.ID, result.RunID); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("Failed to mark task as completed")
		return
	}

	w.logger.Info().
		Str("worker_id", workerID).
		Str("task_id", task.ID).
		Str("run_id", result.RunID).
		Int("affected", result.AffectedItemCount).
		Msg("Worker completed apply-rules task")
}
