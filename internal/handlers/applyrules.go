package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opsdesk/pricing-engine/internal/engine"
	"github.com/opsdesk/pricing-engine/internal/stores"
	"github.com/opsdesk/pricing-engine/internal/taskqueue"
)

// Global instances (initialized by the application)
var (
	ruleEngine     *engine.Engine
	runStore       *stores.RunStore
	priceListStore *stores.PriceListStore
	applyQueue     *taskqueue.TaskQueue
)

// Init wires the handler package to its collaborators.
// This should be called during application startup.
func Init(eng *engine.Engine, runs *stores.RunStore, priceLists *stores.PriceListStore, queue *taskqueue.TaskQueue) {
	ruleEngine = eng
	runStore = runs
	priceListStore = priceLists
	applyQueue = queue
}

// ApplyRulesRequest represents the apply-rules request body
type ApplyRulesRequest struct {
	DryRun   bool    `json:"dryRun" jsonschema:"default=false"`
	Quantity float64 `json:"quantity" binding:"min=0" jsonschema:"minimum=0"`
	Async    bool    `json:"async" jsonschema:"default=false"`
}

// ApplyRulesAccepted represents the async apply-rules response
type ApplyRulesAccepted struct {
	TaskID string `json:"taskId" jsonschema:"required"`
	Status string `json:"status" jsonschema:"required"`
}

// ApplyRules evaluates the active rule set against a price list
// @Summary Apply pricing rules
// @Description Evaluates the active pricing rules against every item of a price list. Synchronous by default; async=true schedules a background run and returns a task ID.
// @Tags rules
// @Accept json
// @Produce json
// @Param priceListId path string true "Price list ID"
// @Param request body ApplyRulesRequest false "Apply options"
// @Success 200 {object} engine.EvaluationResult
// @Success 202 {object} ApplyRulesAccepted "Async run scheduled"
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 404 {object} map[string]string "Price list not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/price-lists/{priceListId}/apply-rules [post]
func ApplyRules(c *gin.Context) {
	priceListID := c.Param("priceListId")
	if priceListID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priceListId is required"})
		return
	}

	var req ApplyRulesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if ruleEngine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Engine not initialized"})
		return
	}

	if req.Async {
		if applyQueue == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Task queue not initialized"})
			return
		}
		taskID, err := applyQueue.ScheduleApplyRules(c.Request.Context(), taskqueue.ApplyRulesPayload{
			PriceListID: priceListID,
			DryRun:      req.DryRun,
			Quantity:    req.Quantity,
		}, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule run: " + err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, ApplyRulesAccepted{TaskID: taskID, Status: string(taskqueue.StatusPending)})
		return
	}

	result, err := ruleEngine.ApplyRules(c.Request.Context(), priceListID, engine.ApplyOptions{
		DryRun:   req.DryRun,
		Quantity: req.Quantity,
	})
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTask returns the status of a scheduled apply-rules task
// @Summary Get apply-rules task
// @Description Returns a scheduled apply-rules task, including the run ID once completed
// @Tags rules
// @Accept json
// @Produce json
// @Param taskId path string true "Task ID"
// @Success 200 {object} taskqueue.Task
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 404 {object} map[string]string "Task not found"
// @Router /internal/tasks/{taskId} [get]
func GetTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "taskId is required"})
		return
	}

	if applyQueue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Task queue not initialized"})
		return
	}

	task, err := applyQueue.GetTask(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}
