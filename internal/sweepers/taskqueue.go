package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsdesk/pricing-engine/internal/taskqueue"
)

// staleAfterMinutes is how long a claimed task may sit before the sweeper
// assumes its worker died.
const staleAfterMinutes = 10

// TaskQueueSweeper periodically recovers tasks orphaned by crashed workers
type TaskQueueSweeper struct {
	queue    *taskqueue.TaskQueue
	logger   *zerolog.Logger
	interval time.Duration
	stopChan chan struct{}
}

// NewTaskQueueSweeper creates a new sweeper for task queue maintenance
func NewTaskQueueSweeper(queue *taskqueue.TaskQueue, logger *zerolog.Logger, interval time.Duration) *TaskQueueSweeper {
	return &TaskQueueSweeper{
		queue:    queue,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic recovery sweep
func (s *TaskQueueSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting task queue sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Task queue sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Task queue sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			recovered, err := s.queue.RecoverOrphanedTasks(ctx, staleAfterMinutes)
			if err != nil {
				s.logger.Error().Err(err).Msg("Failed to recover orphaned tasks")
				continue
			}
			if recovered > 0 {
				s.logger.Info().Int("recovered", recovered).Msg("Recovered orphaned tasks")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *TaskQueueSweeper) Stop() {
	close(s.stopChan)
}
