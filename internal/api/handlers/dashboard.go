package handlers

import (
	"net/http"
	"strconv"

	"netlynx/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// DashboardHandler serves aggregate statistics over stored sources
type DashboardHandler struct {
	statsRepo repositories.StatsRepository
	logger    *pterm.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(statsRepo repositories.StatsRepository, logger *pterm.Logger) *DashboardHandler {
	return &DashboardHandler{
		statsRepo: statsRepo,
		logger:    logger,
	}
}

// GetSummary returns the headline numbers of a capture, or of all
// captures without a capture parameter
func (h *DashboardHandler) GetSummary(c *gin.Context) {
	summary, err := h.statsRepo.GetSummary(c.Query("capture"))
	if err != nil {
		h.logger.WithCaller().Error("Failed to get summary", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetSourceTypeDistribution returns source counts per source type
func (h *DashboardHandler) GetSourceTypeDistribution(c *gin.Context) {
	dist, err := h.statsRepo.GetSourceTypeDistribution(c.Query("capture"))
	if err != nil {
		h.logger.WithCaller().Error("Failed to get source type distribution", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get source type distribution"})
		return
	}

	c.JSON(http.StatusOK, dist)
}

// GetTopDescriptions returns the most frequent source descriptions
func (h *DashboardHandler) GetTopDescriptions(c *gin.Context) {
	limit := 10
	if limitParam := c.Query("limit"); limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	errorsOnly := c.Query("errors") == "true"

	top, err := h.statsRepo.GetTopDescriptions(c.Query("capture"), limit, errorsOnly)
	if err != nil {
		h.logger.WithCaller().Error("Failed to get top descriptions", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get top descriptions"})
		return
	}

	c.JSON(http.StatusOK, top)
}

// GetCaptureStats returns the ingestion progress of every capture
func (h *DashboardHandler) GetCaptureStats(c *gin.Context) {
	stats, err := h.statsRepo.GetCaptureStats()
	if err != nil {
		h.logger.WithCaller().Error("Failed to get capture stats", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get capture stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
