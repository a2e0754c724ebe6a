package handler

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shorturl/internal/domain"
	"shorturl/internal/rotation"
	"shorturl/internal/service"
	"shorturl/pkg/logger"
)

// Tracking consent cookie set by the landing pages
const (
	consentCookie   = "privacy-consent"
	consentAccepted = "accepted"
)

const previewTemplateName = "preview.html"

var previewTemplate = template.Must(template.New(previewTemplateName).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta property="og:type" content="website">
<meta property="og:url" content="{{.URL}}">
<meta property="og:title" content="{{.Title}}">
<meta property="og:description" content="{{.Description}}">
{{- if .Image}}
<meta property="og:image" content="{{.Image}}">
<meta name="twitter:card" content="summary_large_image">
{{- else}}
<meta name="twitter:card" content="summary">
{{- end}}
<meta name="twitter:title" content="{{.Title}}">
<meta name="twitter:description" content="{{.Description}}">
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Description}}</p>
</body>
</html>
`))

type previewData struct {
	URL         string
	Title       string
	Description string
	Image       string
}

// RedirectHandler serves the public short link endpoints
type RedirectHandler struct {
	resolver *service.Resolver
	links    service.LinkService
	logger   *logger.Logger
}

// NewRedirectHandler creates a new redirect handler with dependencies
func NewRedirectHandler(resolver *service.Resolver, links service.LinkService, logger *logger.Logger) *RedirectHandler {
	return &RedirectHandler{
		resolver: resolver,
		links:    links,
		logger:   logger,
	}
}

// Redirect handles GET /:code
func (h *RedirectHandler) Redirect(c *gin.Context) {
	req := resolveRequest(c)
	if v, err := strconv.Atoi(c.Query("var")); err == nil {
		req.VariantOverride = &v
	}

	res, err := h.resolver.Resolve(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, res.Location)
}

// PasswordPrompt handles GET /password/:code
func (h *RedirectHandler) PasswordPrompt(c *gin.Context) {
	entry, err := h.resolver.Lookup(c.Request.Context(), c.Param("code"))
	if errors.Is(err, domain.ErrInvalidLink) {
		c.Redirect(http.StatusFound, service.InvalidLocation)
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":             entry.Code,
		"passwordRequired": entry.HasPassword(),
	})
}

// SubmitPassword handles POST /password/:code
func (h *RedirectHandler) SubmitPassword(c *gin.Context) {
	var body domain.PasswordRequest
	if err := c.ShouldBind(&body); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.resolver.ResolveWithPassword(c.Request.Context(), resolveRequest(c), body.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if res.Outcome == service.OutcomePasswordRejected {
		c.JSON(http.StatusUnauthorized, domain.ErrorResponse{
			Error:   "invalid_password",
			Message: "Incorrect password",
			Code:    http.StatusUnauthorized,
		})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, res.Location)
}

// Preview handles GET /preview/:code?var=i
// Renders the Open Graph tags of one metadata variant
func (h *RedirectHandler) Preview(c *gin.Context) {
	entry, err := h.resolver.Lookup(c.Request.Context(), c.Param("code"))
	if errors.Is(err, domain.ErrInvalidLink) {
		c.Redirect(http.StatusFound, service.InvalidLocation)
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	data := previewData{
		URL:   h.links.ShortURL(entry.Code),
		Title: entry.Code,
	}
	if n := len(entry.Metadata); n > 0 {
		idx := rotation.Mod(entry.CurrentOgIndex, n)
		if v, err := strconv.Atoi(c.Query("var")); err == nil && v >= 0 && v < n {
			idx = v
		}
		m := entry.Metadata[idx]
		data.Title = m.Title
		data.Description = m.Description
		data.Image = domain.Deref(m.Image)
	}

	c.HTML(http.StatusOK, previewTemplateName, data)
}

// Invalid handles GET /invalid
func (h *RedirectHandler) Invalid(c *gin.Context) {
	c.JSON(http.StatusNotFound, domain.ErrorResponse{
		Error:   "invalid_link",
		Message: "This link does not exist or has expired",
		Code:    http.StatusNotFound,
	})
}

func resolveRequest(c *gin.Context) service.ResolveRequest {
	consent, _ := c.Cookie(consentCookie)
	return service.ResolveRequest{
		Code:           c.Param("code"),
		UserAgent:      c.Request.UserAgent(),
		IP:             c.ClientIP(),
		Referrer:       c.Request.Referer(),
		AcceptLanguage: c.GetHeader("Accept-Language"),
		Consent:        consent == consentAccepted,
	}
}
