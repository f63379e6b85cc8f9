package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/orjancarlsen/stock-price-prediction/internal/auth"
	"github.com/orjancarlsen/stock-price-prediction/internal/config"
	"github.com/orjancarlsen/stock-price-prediction/internal/database"
	"github.com/orjancarlsen/stock-price-prediction/internal/engine"
	"github.com/orjancarlsen/stock-price-prediction/internal/fees"
	"github.com/orjancarlsen/stock-price-prediction/internal/generator"
	"github.com/orjancarlsen/stock-price-prediction/internal/ledger"
	"github.com/orjancarlsen/stock-price-prediction/internal/market"
	"github.com/orjancarlsen/stock-price-prediction/internal/reconciler"
	"github.com/orjancarlsen/stock-price-prediction/internal/strategy"
	"github.com/orjancarlsen/stock-price-prediction/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the trading simulator with graceful shutdown
// support: the read-only portfolio API plus the scheduled daily engine.
func main() {
	// Load .env in development; ignore if absent
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	if key := os.Getenv("API_KEY"); key != "" {
		authService.RegisterAPICredentials(key, os.Getenv("API_SECRET"))
	}

	ledgerService := ledger.NewService(db)
	if err := ledgerService.EnsureCashPosition(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize cash position")
	}
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	schedule := fees.Schedule{Rate: cfg.FeeRate, Minimum: cfg.MinimumFee}
	prices := market.NewYahooProvider()
	forecasts := market.NewForecastClient(cfg.ForecastBaseURL)

	rec := reconciler.New(ledgerService, prices, schedule, cfg.OrderTTLDays)
	ranker := strategy.NewRanker(ledgerService, strategy.Params{
		MinSpread:    cfg.MinSpread,
		MaxPositions: cfg.MaxPositions,
		BuyBuffer:    cfg.BuyBuffer,
		SellBuffer:   cfg.SellBuffer,
		Fees:         schedule,
	}, nil)
	gen := generator.New(ledgerService, schedule)

	eng := engine.New(ledgerService, rec, ranker, gen, prices, forecasts)
	engineHandlers := engine.NewGinHandlers(eng)

	// Create and start the daily engine processor
	processor := engine.NewProcessor(eng, cfg.RunInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go processor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg, authHandlers, ledgerHandlers, engineHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers.
// - Auth routes: public endpoints for authentication
// - Portfolio and order routes: read-only, protected by JWT authentication
// - Internal routes: run trigger and external cash events, protected by
//   internal network authentication
func setupRoutes(
	router *gin.Engine,
	cfg config.Config,
	authHandlers *auth.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	engineHandlers *engine.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Read-only portfolio routes
		portfolio := v1.Group("/portfolio")
		portfolio.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			portfolio.GET("/positions", ledgerHandlers.PositionsHandler())
			portfolio.GET("/transactions", ledgerHandlers.TransactionsHandler())
			portfolio.GET("/value-history", ledgerHandlers.PortfolioValuesHandler())
		}

		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			orders.GET("", ledgerHandlers.OrdersHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(cfg.JWTSecret))
		{
			internal.POST("/run", engineHandlers.RunHandler())
			internal.POST("/cash/deposit", ledgerHandlers.DepositHandler())
			internal.POST("/cash/withdraw", ledgerHandlers.WithdrawHandler())
			internal.POST("/cash/dividend", ledgerHandlers.DividendHandler())
		}
	}
}
