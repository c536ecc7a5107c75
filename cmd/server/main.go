package main

import (
	"context"
	"log"
	"os"

	"catalog-backend/internal/cache"
	"catalog-backend/internal/config"
	"catalog-backend/internal/database"
	"catalog-backend/internal/logging"
	"catalog-backend/internal/mailer"
	"catalog-backend/internal/photo"
	"catalog-backend/internal/server"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg)
	defer logger.Sync()
	cfg.Warn()

	if err := database.Init(cfg); err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}

	listCache, err := cache.New(context.Background(), cfg)
	if err != nil {
		// Lists still work without Redis, just uncached.
		logger.Warn("redis unavailable, list cache disabled", zap.Error(err))
	}

	photos, err := photo.NewDiskStore(cfg.PhotoPath)
	if err != nil {
		logger.Fatal("photo store init failed", zap.Error(err))
	}

	app := server.New(server.Deps{
		Config: cfg,
		Cache:  listCache,
		Mailer: mailer.New(cfg),
		Photos: photos,
	})

	go func() {
		logger.Info("server starting", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
		if err := app.Listen(":" + cfg.HTTPPort); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				return app.ShutdownWithContext(ctx)
			},
			"cache": func(ctx context.Context) error {
				return listCache.Close()
			},
		},
	)

	exitCode := <-wait
	if sqlDB, err := database.DB.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info("server exited", zap.Int("code", exitCode))
	os.Exit(exitCode)
}
