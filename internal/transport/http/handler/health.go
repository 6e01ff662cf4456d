package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health is the API-port liveness probe. Dependency readiness lives on
// the metrics server.
func Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"message":   "Server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
