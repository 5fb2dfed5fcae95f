package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jericodaag/Horizon-sub000/internal/cache"
	"github.com/jericodaag/Horizon-sub000/internal/config"
	"github.com/jericodaag/Horizon-sub000/internal/engine"
	"github.com/jericodaag/Horizon-sub000/internal/handlers"
	"github.com/jericodaag/Horizon-sub000/internal/middleware"
	"github.com/jericodaag/Horizon-sub000/internal/routes"
	"github.com/jericodaag/Horizon-sub000/internal/store"
	"github.com/jericodaag/Horizon-sub000/internal/transport"
	"github.com/jericodaag/Horizon-sub000/pkg/logger"
	"github.com/jericodaag/Horizon-sub000/pkg/utils"
)

func main() {
	config.Load()

	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}
	logger.Init(env)

	logger.Info().Str("environment", env).Msg("Starting Horizon sync gateway...")

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := config.AppConfig

	if cfg.AuthToken == "" {
		logger.Fatal().Msg("AUTH_TOKEN is required")
	}
	userID, err := utils.UserIDFromToken(cfg.AuthToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid session token")
	}

	snapshots, err := cache.Open(cfg.CachePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CachePath).Msg("Failed to open snapshot cache")
	}
	logger.Info().Str("path", cfg.CachePath).Msg("Snapshot cache ready")

	factory := func() (*engine.Session, error) {
		client := store.New(cfg.BackendURL, cfg.AuthToken, cfg.StoreTimeout())
		manager := transport.NewManager(cfg.SocketURL, cfg.AuthToken, cfg.ReconnectDelay(), cfg.ReconnectMaxAttempts)
		opts := engine.Options{
			StoreTimeout:   cfg.StoreTimeout(),
			TypingQuiet:    cfg.TypingQuiet(),
			DedupBucket:    cfg.DedupBucket(),
			DedupTolerance: cfg.DedupTolerance(),
			MarkReadDelay:  cfg.MarkReadDelay(),
		}
		return engine.NewSession(userID, client, snapshots, manager, opts), nil
	}

	r := gin.New()
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.ErrorHandlerMiddleware())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.GeneralRateLimit())

	syncHandler := handlers.NewSyncHandler(factory)

	api := r.Group("/api/sync")
	routes.RegisterSyncRoutes(api, syncHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("user_id", userID).Msg("Gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Forced shutdown")
	}

	logger.Info().Msg("Gateway stopped")
}
