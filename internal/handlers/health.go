package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsdesk/pricing-engine/internal/database"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Database    string `json:"database"`
	Connections int32  `json:"connections,omitempty"`
}

// HealthCheck handles the health check endpoint
func HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Service: "pricing-engine",
	}

	// Check database connection
	if database.Pool() != nil {
		err := database.Status(c.Request.Context())
		if err != nil {
			response.Database = "disconnected"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Database = "connected"
		if stats := database.Stats(); stats != nil {
			response.Connections = stats.TotalConns()
		}
	} else {
		response.Database = "not configured"
	}

	c.JSON(http.StatusOK, response)
}
