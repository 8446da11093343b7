package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"netlynx/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// RealtimeHandler handles real-time streaming endpoints
type RealtimeHandler struct {
	collector *realtime.MetricsCollector
	interval  time.Duration
	logger    *pterm.Logger
}

// NewRealtimeHandler creates a new realtime handler. interval is the SSE
// update period.
func NewRealtimeHandler(collector *realtime.MetricsCollector, interval time.Duration, logger *pterm.Logger) *RealtimeHandler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &RealtimeHandler{
		collector: collector,
		interval:  interval,
		logger:    logger,
	}
}

// StreamMetrics streams real-time metrics via Server-Sent Events
func (h *RealtimeHandler) StreamMetrics(c *gin.Context) {
	captureName := c.Query("capture")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Debug("Client connected to real-time metrics stream",
		h.logger.Args("client_ip", c.ClientIP(), "capture", captureName))

	for {
		select {
		case <-c.Request.Context().Done():
			h.logger.Debug("Client disconnected from real-time stream",
				h.logger.Args("client_ip", c.ClientIP()))
			return

		case <-ticker.C:
			metrics := h.collector.GetMetricsForCapture(captureName)

			data, err := json.Marshal(metrics)
			if err != nil {
				h.logger.Error("Failed to marshal metrics", h.logger.Args("error", err))
				continue
			}

			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
				h.logger.Debug("Failed to write SSE data", h.logger.Args("error", err))
				return
			}
			c.Writer.Flush()
		}
	}
}

// GetCurrentMetrics returns a single snapshot of current metrics
func (h *RealtimeHandler) GetCurrentMetrics(c *gin.Context) {
	c.JSON(200, h.collector.GetMetricsForCapture(c.Query("capture")))
}

// GetPerCaptureMetrics returns current metrics for each capture
func (h *RealtimeHandler) GetPerCaptureMetrics(c *gin.Context) {
	c.JSON(200, h.collector.GetPerCaptureMetrics())
}
