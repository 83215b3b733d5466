package router

import (
	"net/http"
	"slices"

	"whatsapp-agent/backend/internal/api"
	"whatsapp-agent/backend/pkg/config"
	"whatsapp-agent/backend/pkg/di"
	"whatsapp-agent/backend/pkg/errors"
	"whatsapp-agent/backend/pkg/jwt"
	"whatsapp-agent/backend/pkg/logger"
	"whatsapp-agent/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config

	limiter gin.HandlerFunc
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config
	logger.SetGlobal(container.Logger)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.LogError(err, "Invalid trusted proxies, trusting none")
		_ = engine.SetTrustedProxies(nil)
	}

	// Request id first so the request logger carries it
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(bodyLimit(cfg.Security.MaxBodySize))

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
		// probes stay unlimited; admin routes are keyed by token subject after auth
		limiter: middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
			Limit: rate.Limit(cfg.Security.RateLimit),
			Burst: cfg.Security.RateLimitBurst,
		}).Middleware(),
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container
	r.setupHealthRoutes()

	api.NewWebhookHandler(c.Dispatcher, r.Config.WhatsApp.VerifyToken, r.Config.WhatsApp.AppSecret, r.Logger).
		RegisterRoutes(r.Engine.Group("", r.limiter))

	jwtAuth := middleware.JWTAuthMiddleware(c.JWTService, r.Logger)
	authHandler := api.NewAuthHandler(r.Config.Admin.KeyHash, c.JWTService, r.Logger)

	v1 := r.Engine.Group("/api/v1")
	admin := v1.Group("/admin")
	{
		admin.POST("/login", r.limiter, authHandler.Login)
	}

	protected := admin.Group("")
	protected.Use(jwtAuth, r.limiter)
	if spec := r.Config.Admin.OpenAPISpec; spec != "" {
		r.AddOpenAPIValidation(protected, spec)
	}
	{
		api.NewApprovalHandler(c.Approvals, c.Pipeline, r.Logger).RegisterRoutes(protected,
			middleware.RequirePermission(jwt.PermReadApprovals),
			middleware.RequirePermission(jwt.PermWriteApprovals),
		)
		api.NewMessageHandler(c.Tracking).RegisterRoutes(protected,
			middleware.RequirePermission(jwt.PermReadMessages),
		)
		api.NewDocumentHandler(c.Docs, r.Config.Docs.ChunkSize, r.Config.Docs.ChunkOverlap, r.Logger).RegisterRoutes(protected,
			middleware.RequirePermission(jwt.PermReadDocuments),
			middleware.RequirePermission(jwt.PermWriteDocuments),
		)
	}

	// Live event feed; browsers pass the token as ?token= on the upgrade request
	r.Engine.GET("/ws", jwtAuth, middleware.RequirePermission(jwt.PermReadEvents), c.Hub.ServeWs)
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0 || slices.Contains(allowed, "*")
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowed, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Authorization, Origin, Upgrade, Connection, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
