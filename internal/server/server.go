package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/0xabdo/the-market/internal/api/routes"
	"github.com/0xabdo/the-market/internal/config"
	"github.com/0xabdo/the-market/internal/logger"
	"github.com/0xabdo/the-market/internal/ratelimit"
)

// Server wraps the HTTP engine and shared dependencies for easier testing.
type Server struct {
	Engine *gin.Engine
	Groups *routes.Groups
	cfg    config.Config
	sweep  *cron.Cron
}

// New wires up the HTTP router, the rate counter backend and the sweep
// schedule, and registers versioned routes.
func New(db *gorm.DB, cfg config.Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}

	counter, sweep, err := newCounter(cfg)
	if err != nil {
		return nil, err
	}

	router := gin.New()

	groups, err := routes.Register(router, db, cfg, counter)
	if err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	return &Server{Engine: router, Groups: groups, cfg: cfg, sweep: sweep}, nil
}

// newCounter selects the rate counter backend. The in-memory counter
// gets a cron-driven sweep so abandoned keys don't accumulate; Redis
// expires its own keys.
func newCounter(cfg config.Config) (ratelimit.Counter, *cron.Cron, error) {
	if cfg.RateLimitStore == "redis" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		counter, err := ratelimit.NewRedisCounter(ctx, cfg.RedisURL, cfg.RetentionHorizon)
		if err != nil {
			return nil, nil, fmt.Errorf("redis rate counter: %w", err)
		}
		logger.Log().Info("using redis rate counter")
		return counter, nil, nil
	}

	counter := ratelimit.NewMemoryCounter(cfg.RetentionHorizon)
	sweep := cron.New()
	if _, err := sweep.AddFunc(fmt.Sprintf("@every %s", cfg.SweepInterval), counter.Sweep); err != nil {
		return nil, nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return counter, sweep, nil
}

// Run starts the HTTP server with proper shutdown semantics.
func (s *Server) Run(ctx context.Context) error {
	if s.sweep != nil {
		s.sweep.Start()
		defer s.sweep.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.HTTPPort),
		Handler: s.Engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
