package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/topdf/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports conversion slot utilisation and degrades status when every slot
// is taken.
func Health(r *Runner, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		running, capacity := r.Running(), r.Capacity()

		status := "healthy"
		if running >= capacity {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Version:    Version,
			ActiveJobs: running,
			MaxJobs:    capacity,
		})
	}
}
