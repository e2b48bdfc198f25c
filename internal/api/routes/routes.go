package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/0xabdo/the-market/internal/api/handlers"
	"github.com/0xabdo/the-market/internal/api/middleware"
	"github.com/0xabdo/the-market/internal/config"
	"github.com/0xabdo/the-market/internal/metrics"
	"github.com/0xabdo/the-market/internal/models"
	"github.com/0xabdo/the-market/internal/ratelimit"
	"github.com/0xabdo/the-market/internal/security"
	"github.com/0xabdo/the-market/internal/services"
)

// Groups are the gated route groups business handlers mount onto. The
// auth and upload groups carry their stricter rate budgets already.
type Groups struct {
	API    *gin.RouterGroup
	Auth   *gin.RouterGroup
	Upload *gin.RouterGroup
}

// Register wires up API routes, the admission gate and migrations, and
// returns the gated groups for business-route registration.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config, counter ratelimit.Counter) (*Groups, error) {
	if err := db.AutoMigrate(&models.SecurityEvent{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	scanner := security.DefaultScanner()
	notifier := services.NewNotifier(cfg.NotifyURLs)
	eventSvc := services.NewSecurityLogService(db, services.RiskThresholds{
		Medium:   cfg.RiskMediumCount,
		High:     cfg.RiskHighCount,
		Critical: cfg.RiskCriticalCount,
	}, notifier)

	authSvc, err := services.NewAuthService(cfg)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery(cfg.Environment == "development"))
	router.Use(middleware.SecurityHeaders())

	router.GET("/api/v1/health", handlers.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	gate := middleware.NewGate(cfg, counter, scanner, eventSvc)

	// Admission pipeline: every /api/v1 request passes the full gate
	// before any business handler runs. Requests carrying the shared API
	// key skip rate and speed limiting inside the gate.
	api := router.Group("/api/v1")
	api.Use(
		gate.BlockedCheck(),
		gate.SizeLimit(),
		gate.ValidateRequest(),
		gate.ValidateAPIKey(),
		gate.ValidateOrigin(),
		gate.RateLimit(cfg.GeneralLimit),
		gate.SpeedLimit(),
	)

	authHandler := handlers.NewAuthHandler(authSvc)
	auth := api.Group("/auth")
	auth.Use(gate.RateLimit(cfg.AuthLimit))
	auth.POST("/login", authHandler.Login)

	upload := api.Group("/upload")
	upload.Use(gate.RateLimit(cfg.UploadLimit))

	securityHandler := handlers.NewSecurityHandler(eventSvc)
	admin := api.Group("/security")
	admin.Use(middleware.AuthMiddleware(authSvc), middleware.RequireRole("admin"))
	{
		admin.GET("/dashboard", securityHandler.Dashboard)
		admin.GET("/events", securityHandler.ListEvents)
		admin.GET("/events/:id", securityHandler.GetEvent)
		admin.GET("/ip/:address", securityHandler.AnalyzeAddress)
		admin.POST("/ip/:address/block", securityHandler.BlockAddress)
		admin.GET("/stats", securityHandler.Stats)
	}

	return &Groups{API: api, Auth: auth, Upload: upload}, nil
}
