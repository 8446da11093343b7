package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"netlynx/internal/database/models"
	"netlynx/internal/database/repositories"
	"netlynx/internal/ingestion"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

const (
	defaultSourceLimit = 100
	maxSourceLimit     = 1000
)

// SourceHandler serves the classified sources of a capture
type SourceHandler struct {
	sourceRepo  repositories.SourceRepository
	eventRepo   repositories.EventRepository
	coordinator *ingestion.Coordinator
	logger      *pterm.Logger
}

// NewSourceHandler creates a new source handler
func NewSourceHandler(
	sourceRepo repositories.SourceRepository,
	eventRepo repositories.EventRepository,
	coordinator *ingestion.Coordinator,
	logger *pterm.Logger,
) *SourceHandler {
	return &SourceHandler{
		sourceRepo:  sourceRepo,
		eventRepo:   eventRepo,
		coordinator: coordinator,
		logger:      logger,
	}
}

// eventView is a stored event with its params left as JSON
type eventView struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Phase     int             `json:"phase"`
	Ticks     int64           `json:"time"`
	Timestamp time.Time       `json:"timestamp"`
	Params    json.RawMessage `json:"params,omitempty"`
}

func toEventViews(rows []*models.EventRecord) []eventView {
	out := make([]eventView, len(rows))
	for i, r := range rows {
		out[i] = eventView{
			Seq:       r.Seq,
			Type:      r.Type,
			Phase:     r.Phase,
			Ticks:     r.Ticks,
			Timestamp: r.Timestamp,
		}
		if r.Params != "" {
			out[i].Params = json.RawMessage(r.Params)
		}
	}
	return out
}

// parseBool reads an optional true/false query parameter
func parseBool(c *gin.Context, key string) (*bool, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func parseSourceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source id"})
		return 0, false
	}
	return id, true
}

// ListSources returns a page of the capture's stored sources
func (h *SourceHandler) ListSources(c *gin.Context) {
	filter := repositories.SourceFilter{
		CaptureName: c.Param("capture"),
		SourceType:  c.Query("type"),
		Search:      c.Query("q"),
		Limit:       defaultSourceLimit,
	}

	var err error
	if filter.Active, err = parseBool(c, "active"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid active parameter"})
		return
	}
	if filter.Error, err = parseBool(c, "error"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid error parameter"})
		return
	}
	if limitParam := c.Query("limit"); limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil && l > 0 {
			filter.Limit = min(l, maxSourceLimit)
		}
	}
	if offsetParam := c.Query("offset"); offsetParam != "" {
		if o, err := strconv.Atoi(offsetParam); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	records, total, err := h.sourceRepo.Find(filter)
	if err != nil {
		h.logger.WithCaller().Error("Failed to list sources",
			h.logger.Args("capture", filter.CaptureName, "error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sources"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": records,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// GetSource returns a source's classification and events. A source the
// tracker holds is reported as tracked, with its current classification,
// even before it was first written.
func (h *SourceHandler) GetSource(c *gin.Context) {
	name := c.Param("capture")
	id, ok := parseSourceID(c)
	if !ok {
		return
	}

	response := gin.H{}
	tracked := false
	if p, ok := h.coordinator.Processor(name); ok {
		if summary, ok := p.Tracker().Summary(id); ok {
			tracked = true
			response["summary"] = summary
		}
	}
	response["tracked"] = tracked

	record, err := h.sourceRepo.FindByID(name, id)
	switch {
	case err == nil:
		response["source"] = record
		rows, err := h.eventRepo.FindBySource(name, id)
		if err != nil {
			h.logger.WithCaller().Error("Failed to load source events",
				h.logger.Args("capture", name, "source_id", id, "error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load source events"})
			return
		}
		response["events"] = toEventViews(rows)
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !tracked {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
			return
		}
	default:
		h.logger.WithCaller().Error("Failed to load source",
			h.logger.Args("capture", name, "source_id", id, "error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load source"})
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetSourceText returns the text log of a source
func (h *SourceHandler) GetSourceText(c *gin.Context) {
	name := c.Param("capture")
	id, ok := parseSourceID(c)
	if !ok {
		return
	}

	p, ok := h.coordinator.Processor(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Capture not found"})
		return
	}

	text, found, err := p.Text(id)
	if err != nil {
		h.logger.WithCaller().Error("Failed to render source text",
			h.logger.Args("capture", name, "source_id", id, "error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render source"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	c.String(http.StatusOK, text)
}

type deleteSourcesRequest struct {
	IDs []int64 `json:"ids"`
}

// DeleteSources removes the sources listed in the ids parameter or body,
// or every source of the capture when none are listed
func (h *SourceHandler) DeleteSources(c *gin.Context) {
	name := c.Param("capture")

	var ids []int64
	if idsParam := c.Query("ids"); idsParam != "" {
		for _, s := range strings.Split(idsParam, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source id"})
				return
			}
			ids = append(ids, id)
		}
	} else if c.Request.ContentLength > 0 {
		var req deleteSourcesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		ids = req.IDs
	}

	p, ok := h.coordinator.Processor(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Capture not found"})
		return
	}

	if len(ids) == 0 {
		if err := p.DeleteAll(); err != nil {
			h.logger.WithCaller().Error("Failed to delete sources",
				h.logger.Args("capture", name, "error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete sources"})
			return
		}
		h.logger.Info("Deleted all sources", h.logger.Args("capture", name))
		c.JSON(http.StatusOK, gin.H{"deleted": "all"})
		return
	}

	removed, err := p.DeleteSources(ids)
	if err != nil {
		h.logger.WithCaller().Error("Failed to delete sources",
			h.logger.Args("capture", name, "error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete sources"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": ids, "tracked": removed})
}
