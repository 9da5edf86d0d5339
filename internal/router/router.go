package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/intervue/internal/config"
	"github.com/stemsi/intervue/internal/handler"
	"github.com/stemsi/intervue/internal/metrics"
	"github.com/stemsi/intervue/internal/middleware"
	"github.com/stemsi/intervue/internal/response"
	"github.com/stemsi/intervue/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Question *handler.QuestionHandler
	Recovery *handler.RecoveryHandler
	Session  *handler.SessionHandler
	WS       *handler.WSHandler
	System   *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.Middleware())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api/v1")
	api.Use(middleware.Brotli())

	// Rate limiter for login (10 attempts per minute per IP).
	loginLimiter := middleware.NewRateLimiter(10, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	api.POST("/auth/login", loginLimiter.Middleware(), handlers.Auth.Login)

	// ─── 2. Signed-in Group ────────────────────────────────────────────
	authed := api.Group("")
	authed.Use(middleware.RequireAuth(authService))
	{
		authed.POST("/auth/logout", handlers.Auth.Logout)
		authed.GET("/auth/me", handlers.Auth.Me)

		// Question bank. Catalog lists change rarely.
		authed.GET("/questions", handlers.Question.List)
		authed.GET("/technologies", middleware.CacheControl(5*time.Minute), handlers.Question.Technologies)
		authed.GET("/categories", middleware.CacheControl(5*time.Minute), handlers.Question.Categories)
		authed.POST("/questions/bulk-upload", handlers.Question.BulkUpload)

		// Recovery prompt shown on the interview entry page.
		authed.GET("/recovery", handlers.Recovery.Get)
		authed.POST("/recovery/resume", handlers.Recovery.Resume)
		authed.POST("/recovery/end", handlers.Recovery.End)
	}

	// ─── 3. Session Group ──────────────────────────────────────────────
	// Proctoring signals arrive in bursts from focus/visibility listeners.
	proctorLimiter := middleware.NewRateLimiter(120, time.Minute)

	session := authed.Group("/session")
	{
		session.POST("", handlers.Session.Start)
		session.GET("", handlers.Session.Get)
		session.DELETE("", handlers.Session.End)
		session.POST("/answer", handlers.Session.Answer)
		session.POST("/proctoring", proctorLimiter.Middleware(), handlers.Session.Proctoring)
		session.POST("/acknowledge", handlers.Session.Acknowledge)
	}

	// ─── 4. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAuth(authService))
	{
		ws.GET("/session/stream", handlers.WS.SessionStream)
	}

	return router
}
