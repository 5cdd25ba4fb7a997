package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Health *handler.HealthHandler
	Exam   *handler.ExamHandler
	WS     *handler.WSHandler
	Report *handler.ReportHandler
	// SubmitLimiter guards POST /exams/submit; WS is given the same one.
	SubmitLimiter *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID, middleware.HeaderTenant}
	corsConfig.ExposeHeaders = []string{
		response.HeaderRequestID,
		"Content-Disposition",
		"X-RateLimit-Limit",
		"X-RateLimit-Remaining",
		"Retry-After",
	}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the access log can carry it.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.AccessLog(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.Health.Health)

	// ─── 1. Student Group (JWT + tenant) ───────────────────────────────
	studentAPI := router.Group("/api/v1")
	studentAPI.Use(
		middleware.RequireJWT(authService),
		middleware.RequireStudent(),
	)
	{
		studentAPI.GET("/exams/:id", handlers.Exam.GetExam)
		studentAPI.POST("/exams/submit", handlers.SubmitLimiter.Middleware(), handlers.Exam.SubmitExam)
	}

	// ─── 2. WebSocket Group (query-string auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireWSAuth(authService),
		middleware.RequireStudent(),
	)
	{
		ws.GET("/exams/:id/stream", handlers.WS.ExamStream)
	}

	// ─── 3. Staff Group (teachers and admins) ──────────────────────────
	staffAPI := router.Group("/api/v1/admin")
	staffAPI.Use(
		middleware.RequireJWT(authService),
		middleware.RequireStaff(),
	)
	{
		staffAPI.GET("/exams/:id/results", handlers.Report.ListResults)
		staffAPI.GET("/exams/:id/results/export", handlers.Report.ExportResults)
	}

	return router
}
