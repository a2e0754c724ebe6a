package handler

import (
	"github.com/gin-gonic/gin"

	"shorturl/internal/live"
	"shorturl/internal/service"
	"shorturl/pkg/logger"
)

// LiveHandler upgrades owners to the live click feed of a link
type LiveHandler struct {
	links  service.LinkService
	hub    *live.Hub
	logger *logger.Logger
}

// NewLiveHandler creates a new live handler with dependencies
func NewLiveHandler(links service.LinkService, hub *live.Hub, logger *logger.Logger) *LiveHandler {
	return &LiveHandler{links: links, hub: hub, logger: logger}
}

// Subscribe handles GET /api/v1/links/:code/live
func (h *LiveHandler) Subscribe(c *gin.Context) {
	entry, err := h.links.GetLink(c.Request.Context(), UserID(c), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// the upgrader writes its own error response
	if err := h.hub.ServeWS(c.Writer, c.Request, entry.Code); err != nil {
		h.logger.Warnw("Live subscription failed", "code", entry.Code, "error", err)
	}
}
