package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheckHandler serves /internal/healthz: a liveness-only endpoint
// that always reports ok and checks no dependency, not a monitored health
// surface.
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "solrelay",
	})
}
