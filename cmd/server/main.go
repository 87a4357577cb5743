package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/sparkchat/adapters/spark"
	"github.com/satriahrh/sparkchat/internal/api"
	"github.com/satriahrh/sparkchat/internal/auth"
	"github.com/satriahrh/sparkchat/internal/config"
	"github.com/satriahrh/sparkchat/internal/metrics"
	"github.com/satriahrh/sparkchat/internal/websocket"
	"github.com/satriahrh/sparkchat/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	creds, err := spark.NewCredentials(cfg.Spark, logger)
	if err != nil {
		logger.Fatal("Invalid spark configuration", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize usecase services
	chatService := usecase.NewChatService(creds, metrics.New(registry), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize WebSocket hub with the chat service
	hub := websocket.NewHub(chatService, logger)
	go hub.Run(ctx)

	reaper := websocket.NewIdleReaper(hub, cfg.IdleTimeout, logger)
	reaper.Start()
	defer reaper.Stop()

	// Initialize API routes
	api.InitRoutes(e, hub, chatService, auth.NewIssuer(cfg.JWTSecret), api.Options{
		RelayAPIKey:    cfg.RelayAPIKey,
		RateLimitRPS:   cfg.RateLimitRPS,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Spark chat relay started",
		zap.String("port", cfg.Port),
		zap.String("domain", creds.Domain))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
