package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shorturl/internal/domain"
	"shorturl/internal/service"
	"shorturl/pkg/logger"
)

// LinkHandler handles HTTP requests for short link management
type LinkHandler struct {
	service service.LinkService
	logger  *logger.Logger
}

// NewLinkHandler creates a new link handler with dependencies
func NewLinkHandler(service service.LinkService, logger *logger.Logger) *LinkHandler {
	return &LinkHandler{
		service: service,
		logger:  logger,
	}
}

// CreateLink handles POST /api/v1/links
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req domain.CreateLinkRequest

	// Bind and validate request body
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("Invalid request body", "error", err)
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	response, err := h.service.CreateLink(c.Request.Context(), UserID(c), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// GetLink handles GET /api/v1/links/:code
func (h *LinkHandler) GetLink(c *gin.Context) {
	entry, err := h.service.GetLink(c.Request.Context(), UserID(c), c.Param("code"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// ReplaceDestinations handles PUT /api/v1/links/:code/destinations
func (h *LinkHandler) ReplaceDestinations(c *gin.Context) {
	var req domain.ReplaceDestinationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	entry, err := h.service.ReplaceDestinations(c.Request.Context(), UserID(c), c.Param("code"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// ReplaceMetadata handles PUT /api/v1/links/:code/metadata
func (h *LinkHandler) ReplaceMetadata(c *gin.Context) {
	var req domain.ReplaceMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	entry, err := h.service.ReplaceMetadata(c.Request.Context(), UserID(c), c.Param("code"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// RenameLink handles PATCH /api/v1/links/:code
func (h *LinkHandler) RenameLink(c *gin.Context) {
	var req domain.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	entry, err := h.service.RenameCode(c.Request.Context(), UserID(c), c.Param("code"), req.Code)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// DeleteLink handles DELETE /api/v1/links/:code
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	code := c.Param("code")
	if err := h.service.DeleteLink(c.Request.Context(), UserID(c), code); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Link deleted successfully",
		"code":    code,
	})
}

// GetStats handles GET /api/v1/links/:code/stats?from=&to=
// Bounds accept RFC 3339 timestamps or YYYY-MM-DD dates (UTC, inclusive)
func (h *LinkHandler) GetStats(c *gin.Context) {
	var rng domain.StatsRange
	var err error
	if rng.From, err = parseBound(c.Query("from"), false); err != nil {
		badRequest(c, "Invalid from: "+err.Error())
		return
	}
	if rng.To, err = parseBound(c.Query("to"), true); err != nil {
		badRequest(c, "Invalid to: "+err.Error())
		return
	}

	stats, err := h.service.GetStats(c.Request.Context(), UserID(c), c.Param("code"), rng)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CheckSlug handles GET /api/check-slug/:slug
func (h *LinkHandler) CheckSlug(c *gin.Context) {
	res, err := h.service.CheckSlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// UpdateScreenResolution handles POST /api/update-screen-resolution
func (h *LinkHandler) UpdateScreenResolution(c *gin.Context) {
	var req domain.ScreenResolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.service.UpdateScreenResolution(c.Request.Context(), &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func parseBound(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
