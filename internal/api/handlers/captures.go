package handlers

import (
	"errors"
	"io"
	"net/http"

	"netlynx/internal/database/repositories"
	"netlynx/internal/ingestion"
	"netlynx/internal/views"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// CaptureHandler manages captures
type CaptureHandler struct {
	coordinator *ingestion.Coordinator
	statsRepo   repositories.StatsRepository
	views       *views.Registry
	logger      *pterm.Logger
}

// NewCaptureHandler creates a new capture handler
func NewCaptureHandler(
	coordinator *ingestion.Coordinator,
	statsRepo repositories.StatsRepository,
	viewRegistry *views.Registry,
	logger *pterm.Logger,
) *CaptureHandler {
	return &CaptureHandler{
		coordinator: coordinator,
		statsRepo:   statsRepo,
		views:       viewRegistry,
		logger:      logger,
	}
}

type createCaptureRequest struct {
	Name string `json:"name"`
}

// ListCaptures returns the stored captures and the progress of their
// processors
func (h *CaptureHandler) ListCaptures(c *gin.Context) {
	captures, err := h.statsRepo.GetCaptureStats()
	if err != nil {
		h.logger.WithCaller().Error("Failed to list captures", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list captures"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"captures":   captures,
		"processors": h.coordinator.Stats(),
	})
}

// CreateLiveCapture opens a capture fed through the ingest websocket
func (h *CaptureHandler) CreateLiveCapture(c *gin.Context) {
	var req createCaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	capture, err := h.coordinator.CreateLiveCapture(req.Name)
	if err != nil {
		if errors.Is(err, ingestion.ErrCaptureExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithCaller().Error("Failed to create live capture",
			h.logger.Args("name", req.Name, "error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create capture"})
		return
	}

	c.JSON(http.StatusCreated, capture)
}

// DeleteCapture stops a capture's processor and removes everything stored
// for it
func (h *CaptureHandler) DeleteCapture(c *gin.Context) {
	name := c.Param("capture")

	if _, ok := h.coordinator.Processor(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Capture not found"})
		return
	}

	if err := h.coordinator.DeleteCapture(name); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		h.logger.WithCaller().Error("Failed to delete capture",
			h.logger.Args("capture", name, "error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete capture"})
		return
	}
	h.views.Remove(name)

	c.Status(http.StatusNoContent)
}
