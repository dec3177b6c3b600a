package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/lookout/models"
	"github.com/use-agent/lookout/session"
)

// Health returns a handler for GET /api/v1/health.
//
// Degraded means the browser is currently down; the next request relaunches
// it, so degraded is not fatal, just slower.
func Health(co *session.Coordinator, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		alive := co.Alive()

		status := "healthy"
		if !alive {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			SessionAlive: alive,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			Version:      "0.1.0",
		})
	}
}
