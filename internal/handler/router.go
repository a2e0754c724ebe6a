package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shorturl/internal/auth"
	"shorturl/internal/config"
	"shorturl/internal/domain"
	"shorturl/internal/live"
	"shorturl/internal/ratelimit"
	"shorturl/internal/service"
	"shorturl/pkg/logger"
)

// Dependencies groups everything the HTTP layer needs
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Resolver *service.Resolver
	Links    service.LinkService
	Limiter  ratelimit.Limiter
	Tokens   *auth.TokenManager
	Hub      *live.Hub
}

// SetupRouter configures the Gin router with middleware and routes
func SetupRouter(d Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if d.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.SetHTMLTemplate(previewTemplate)

	// Apply global middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(d.Logger))
	router.Use(CORSMiddleware(d.Config))
	router.Use(SecurityHeadersMiddleware())
	router.Use(IdentityMiddleware(d.Tokens))

	redirects := NewRedirectHandler(d.Resolver, d.Links, d.Logger)
	links := NewLinkHandler(d.Links, d.Logger)
	qrCodes := NewQRHandler(d.Resolver, d.Links, d.Logger)
	feed := NewLiveHandler(d.Links, d.Hub, d.Logger)

	limit := func(class ratelimit.Class) gin.HandlerFunc {
		return RateLimitMiddleware(d.Limiter, class, d.Logger)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "shorturl",
		})
	})
	router.GET(service.InvalidLocation, redirects.Invalid)

	api := router.Group("/api")
	{
		api.GET("/check-slug/:slug", limit(ratelimit.ClassAPI), links.CheckSlug)
		api.POST("/update-screen-resolution", limit(ratelimit.ClassAPI), links.UpdateScreenResolution)
	}

	// Link management (authenticated)
	v1 := router.Group("/api/v1/links", RequireUser())
	{
		v1.POST("", limit(ratelimit.ClassCreation), links.CreateLink)
		v1.GET("/:code", limit(ratelimit.ClassAPI), links.GetLink)
		v1.PATCH("/:code", limit(ratelimit.ClassAPI), links.RenameLink)
		v1.DELETE("/:code", limit(ratelimit.ClassAPI), links.DeleteLink)
		v1.PUT("/:code/destinations", limit(ratelimit.ClassAPI), links.ReplaceDestinations)
		v1.PUT("/:code/metadata", limit(ratelimit.ClassAPI), links.ReplaceMetadata)
		v1.GET("/:code/stats", limit(ratelimit.ClassAPI), links.GetStats)
		if d.Hub != nil {
			v1.GET("/:code/live", limit(ratelimit.ClassAPI), feed.Subscribe)
		}
	}

	router.GET("/qr/:code", limit(ratelimit.ClassQR), qrCodes.QRCode)
	router.GET("/preview/:code", limit(ratelimit.ClassRedirect), redirects.Preview)
	router.GET("/password/:code", limit(ratelimit.ClassRedirect), redirects.PasswordPrompt)
	router.POST("/password/:code", limit(ratelimit.ClassRedirect), redirects.SubmitPassword)

	// Short link redirection (public endpoint)
	router.GET("/:code", limit(ratelimit.ClassRedirect), redirects.Redirect)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, domain.ErrorResponse{
			Error:   "not_found",
			Message: "endpoint not found",
			Code:    http.StatusNotFound,
		})
	})

	return router
}
