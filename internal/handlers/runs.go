package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opsdesk/pricing-engine/internal/export"
	"github.com/opsdesk/pricing-engine/internal/stores"
)

// ListRunsRequest represents query parameters for listing engine runs
type ListRunsRequest struct {
	Limit int `form:"limit" json:"limit" binding:"min=0,max=100" jsonschema:"minimum=0,maximum=100"`
}

// ListRunsResponse represents the response for listing engine runs
type ListRunsResponse struct {
	Runs  []stores.RunSummary `json:"runs" jsonschema:"required"`
	Total int                 `json:"total" jsonschema:"required"`
}

// ListRuns returns the most recent apply-rules runs for a price list
// @Summary List engine runs
// @Description Returns the most recent apply-rules runs for a price list, newest first
// @Tags runs
// @Accept json
// @Produce json
// @Param priceListId path string true "Price list ID"
// @Param limit query int false "Number of runs to return" default(20) minimum(1) maximum(100)
// @Success 200 {object} ListRunsResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/price-lists/{priceListId}/runs [get]
func ListRuns(c *gin.Context) {
	priceListID := c.Param("priceListId")
	if priceListID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priceListId is required"})
		return
	}

	var req ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if runStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run store not initialized"})
		return
	}

	runs, err := runStore.ListRuns(c.Request.Context(), priceListID, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
		return
	}
	if runs == nil {
		runs = []stores.RunSummary{}
	}

	c.JSON(http.StatusOK, ListRunsResponse{Runs: runs, Total: len(runs)})
}

// GetRun returns a single apply-rules run by ID
// @Summary Get engine run
// @Description Returns the full evaluation result of an apply-rules run, including per-item outcomes
// @Tags runs
// @Accept json
// @Produce json
// @Param runId path string true "Run ID"
// @Success 200 {object} engine.EvaluationResult
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 404 {object} map[string]string "Run not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/runs/{runId} [get]
func GetRun(c *gin.Context) {
	runID := c.Param("runId")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "runId is required"})
		return
	}

	if runStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run store not initialized"})
		return
	}

	result, err := runStore.GetRun(c.Request.Context(), runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExportRun streams an apply-rules run as an XLSX workbook
// @Summary Export engine run
// @Description Renders the full evaluation result of a run as an XLSX workbook download
// @Tags runs
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param runId path string true "Run ID"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 404 {object} map[string]string "Run not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/runs/{runId}/export [get]
func ExportRun(c *gin.Context) {
	runID := c.Param("runId")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "runId is required"})
		return
	}

	if runStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run store not initialized"})
		return
	}

	result, err := runStore.GetRun(c.Request.Context(), runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run"})
		return
	}

	// Currency lives on the price list; a deleted list still exports, just
	// without the currency prefix.
	currencyCode := ""
	if priceListStore != nil {
		if pl, err := priceListStore.GetPriceList(c.Request.Context(), result.PriceListID); err == nil {
			currencyCode = pl.Currency
		}
	}

	workbook, err := export.RunWorkbook(result, currencyCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render export: " + err.Error()})
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(runID)+`"`)
	if err := workbook.Write(c.Writer); err != nil {
		// Headers are already out; nothing useful left to send.
		return
	}
}
