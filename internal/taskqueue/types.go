package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskTypeApplyRules is the only task type this service schedules: a
// deferred apply-rules run for one price list.
const TaskTypeApplyRules = "apply_rules"

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusClaimed    TaskStatus = "claimed"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// ApplyRulesPayload is the payload of an apply_rules task.
type ApplyRulesPayload struct {
	PriceListID string  `json:"priceListId"`
	DryRun      bool    `json:"dryRun,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
}

// ClaimedTask is a task handed to a worker.
type ClaimedTask struct {
	ID       string
	TaskType string
	Payload  json.RawMessage
}

// Task is the full task record.
type Task struct {
	ID           string          `json:"id"`
	TaskType     string          `json:"taskType"`
	Payload      json.RawMessage `json:"payload"`
	Status       TaskStatus      `json:"status"`
	ScheduledFor time.Time       `json:"scheduledFor"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	WorkerID     *string         `json:"workerId,omitempty"`
	RetryCount   int             `json:"retryCount"`
	MaxRetries   int             `json:"maxRetries"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
