package handlers

import (
	"net/http"

	"netlynx/internal/database"

	"github.com/gin-gonic/gin"
)

// MaintenanceHandler exposes the retention cleanup
type MaintenanceHandler struct {
	cleanup *database.CleanupService
}

func NewMaintenanceHandler(cleanup *database.CleanupService) *MaintenanceHandler {
	return &MaintenanceHandler{cleanup: cleanup}
}

// GetCleanupStats returns the outcome of the last cleanup and when the
// next one runs
func (h *MaintenanceHandler) GetCleanupStats(c *gin.Context) {
	stats := h.cleanup.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"last_run":        stats.LastRunTime,
		"records_deleted": stats.RecordsDeleted,
		"duration_ms":     stats.CleanupDuration.Milliseconds(),
		"next_run":        stats.NextScheduledRun,
	})
}

// TriggerCleanup starts a cleanup now. It answers 409 when retention is
// disabled.
func (h *MaintenanceHandler) TriggerCleanup(c *gin.Context) {
	if err := h.cleanup.ManualCleanup(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cleanup started"})
}
