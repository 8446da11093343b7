package handlers

import (
	"net/http"

	"netlynx/internal/views"

	"github.com/gin-gonic/gin"
)

// ViewsHandler serves the status views of a capture
type ViewsHandler struct {
	views *views.Registry
}

func NewViewsHandler(viewRegistry *views.Registry) *ViewsHandler {
	return &ViewsHandler{views: viewRegistry}
}

// GetProxy returns proxy settings, bad proxies and the resolver log
func (h *ViewsHandler) GetProxy(c *gin.Context) {
	cv, ok := h.views.Get(c.Param("capture"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Capture not found"})
		return
	}
	c.JSON(http.StatusOK, cv.Proxy.Snapshot())
}

// GetHTTPCache returns the HTTP cache statistics
func (h *ViewsHandler) GetHTTPCache(c *gin.Context) {
	cv, ok := h.views.Get(c.Param("capture"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Capture not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": cv.HTTPCache.Lines()})
}
