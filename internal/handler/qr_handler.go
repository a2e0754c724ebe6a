package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shorturl/internal/qr"
	"shorturl/internal/service"
	"shorturl/pkg/logger"
)

const maxQRSize = 1024

// QRHandler renders QR images of short links
type QRHandler struct {
	resolver *service.Resolver
	links    service.LinkService
	logger   *logger.Logger
}

// NewQRHandler creates a new QR handler with dependencies
func NewQRHandler(resolver *service.Resolver, links service.LinkService, logger *logger.Logger) *QRHandler {
	return &QRHandler{resolver: resolver, links: links, logger: logger}
}

// QRCode handles GET /qr/:code?size=n
func (h *QRHandler) QRCode(c *gin.Context) {
	entry, err := h.resolver.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	size := qr.DefaultSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > maxQRSize {
			badRequest(c, "size must be between 64 and 1024")
			return
		}
		size = n
	}

	png, err := qr.EncodePNG(h.links.ShortURL(entry.Code), size)
	if err != nil {
		h.logger.Errorw("Failed to render QR code", "code", entry.Code, "error", err)
		respondError(c, h.logger, err)
		return
	}

	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}
