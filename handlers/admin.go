package handlers

import (
	"net/http"

	"voltslot/services/scheduler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler encapsulates operator-only maintenance operations.
type AdminHandler struct {
	Scheduler scheduler.Scheduler
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(sched scheduler.Scheduler) *AdminHandler {
	return &AdminHandler{Scheduler: sched}
}

// DeadLettersHandler lists jobs that exhausted their retries.
func (ah *AdminHandler) DeadLettersHandler(c *gin.Context) {
	jobs, err := ah.Scheduler.DeadLetters(c.Request.Context())
	if err != nil {
		zap.L().Error("Failed to fetch dead-lettered jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch dead-lettered jobs"})
		return
	}
	if jobs == nil {
		jobs = []scheduler.DeadLetter{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
