package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/carwash-scan-terminal/internal/backend"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/config"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/handler"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/service"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/validator"
	"github.com/fairyhunter13/carwash-scan-terminal/pkg/retry"
)

func main() {
	// A missing .env is fine, the environment may already be set
	envErr := godotenv.Load()

	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	// Create context for startup
	ctx := context.Background()

	client := backend.NewClient(cfg.Backend)

	// Wait for the loyalty platform, but keep serving if it stays down:
	// scans then render error cards and /health reports unhealthy
	if err := retry.Do(ctx, "backend ping", cfg.Backend.ConnectRetries, time.Second, client.Ping); err != nil {
		log.Warn().Err(err).Str("base_url", cfg.Backend.BaseURL).Msg("loyalty platform not reachable at startup")
	} else {
		log.Info().Str("base_url", cfg.Backend.BaseURL).Msg("loyalty platform reachable")
	}

	merchantID := cfg.Merchant.ID
	if merchantID == "" && cfg.Merchant.UserID != "" {
		err := retry.Do(ctx, "resolve merchant", cfg.Backend.ConnectRetries, time.Second, func(ctx context.Context) error {
			id, err := client.MerchantIDByUserID(ctx, cfg.Merchant.UserID)
			if err != nil {
				return err
			}
			merchantID = id
			return nil
		})
		if err != nil {
			log.Fatal().Err(err).Str("user_id", cfg.Merchant.UserID).Msg("failed to resolve merchant for user")
		}
		log.Info().Str("merchant_id", merchantID).Msg("merchant resolved from user")
	}
	if merchantID == "" {
		log.Warn().Msg("no default merchant configured, requests must send " + handler.HeaderMerchantID)
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Car Wash Scan Terminal",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    64 * 1024,         // Scan and wash payloads are small
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Initialize validator with custom validations
	validate := validator.New()

	// Initialize terminal components (layered architecture)
	terminalService := service.NewTerminalService(client, validate)
	terminalHandler := handler.NewTerminalHandler(terminalService, validate, merchantID)

	// Health and metrics
	healthHandler := handler.NewHealthHandler(client)
	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Terminal routes
	terminalHandler.Register(app.Group("/api"))

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// In-flight wash and redeem calls finish before the process exits
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
