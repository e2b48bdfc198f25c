package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/0xabdo/the-market/internal/config"
	"github.com/0xabdo/the-market/internal/database"
	"github.com/0xabdo/the-market/internal/logger"
	"github.com/0xabdo/the-market/internal/server"
	"github.com/0xabdo/the-market/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(false, os.Stderr)
		logger.WithError(err).Fatal("load config")
	}

	// Log to both stdout and a rotated file next to the database.
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(filepath.Dir(cfg.DatabasePath), "logs", "market.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.Init(cfg.Environment == "development", io.MultiWriter(os.Stdout, rotator))

	logger.Log().Infof("starting %s backend version %s", version.Name, version.Full())

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("open database")
	}

	srv, err := server.New(db, cfg)
	if err != nil {
		logger.WithError(err).Fatal("build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log().Infof("listening on :%s", cfg.HTTPPort)
	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}
