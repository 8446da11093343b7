package handlers

import (
	"errors"
	"net/http"
	"strings"

	"netlynx/internal/ingestion"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"
)

// maxMessageSize bounds one websocket message; the constants header
// alone is a few hundred kilobytes
const maxMessageSize = 32 * 1024 * 1024

// IngestHandler streams NetLog lines from a websocket into a live capture
type IngestHandler struct {
	coordinator *ingestion.Coordinator
	upgrader    websocket.Upgrader
	logger      *pterm.Logger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(coordinator *ingestion.Coordinator, logger *pterm.Logger) *IngestHandler {
	return &IngestHandler{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ingestAck acknowledges a message once its lines are queued
type ingestAck struct {
	Lines int    `json:"lines"`
	Error string `json:"error,omitempty"`
}

// Ingest upgrades the connection and submits every received line to the
// capture's processor. Each text message holds one or more lines, the
// first message of a session being the constants header. With create=true
// a missing live capture is created.
func (h *IngestHandler) Ingest(c *gin.Context) {
	name := c.Param("capture")

	p, ok := h.coordinator.Processor(name)
	if !ok && c.Query("create") == "true" {
		if _, err := h.coordinator.CreateLiveCapture(name); err != nil && !errors.Is(err, ingestion.ErrCaptureExists) {
			h.logger.WithCaller().Error("Failed to create live capture",
				h.logger.Args("capture", name, "error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create capture"})
			return
		}
		p, ok = h.coordinator.Processor(name)
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Capture not found"})
		return
	}
	if !p.Capture().Live {
		c.JSON(http.StatusConflict, gin.H{"error": "Capture is not a live capture"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", h.logger.Args("capture", name, "error", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	h.logger.Info("Live ingest connected",
		h.logger.Args("capture", name, "client_ip", c.ClientIP()))

	total := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("Live ingest connection lost",
					h.logger.Args("capture", name, "error", err))
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		lines := splitLines(string(data))
		if err := p.Submit(lines); err != nil {
			_ = conn.WriteJSON(ingestAck{Error: err.Error()})
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "capture stopped"))
			break
		}
		total += len(lines)

		if err := conn.WriteJSON(ingestAck{Lines: len(lines)}); err != nil {
			break
		}
	}

	h.logger.Info("Live ingest disconnected",
		h.logger.Args("capture", name, "lines", total))
}

func splitLines(data string) []string {
	raw := strings.Split(data, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimRight(l, "\r"); strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
