package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-news-trader/internal/trader/bootstrap"
	"golang-news-trader/internal/trader/config"
	"golang-news-trader/internal/trader/delivery/consumer"
	delivery "golang-news-trader/internal/trader/delivery/http"
	"golang-news-trader/internal/trader/delivery/scheduler"
	_ "golang-news-trader/internal/trader/docs"
	"golang-news-trader/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	swagger "github.com/swaggo/echo-swagger"
)

var (
	configPath  string
	autoMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the trader service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Trader Service", logger.Field("name", cfg.App.Name), logger.Field("env", cfg.App.Env))

	app, err := bootstrap.New(ctx, cfg, appLogger, bootstrap.Options{AutoMigrate: autoMigrate})
	if err != nil {
		appLogger.Fatal("Failed to initialize trader", logger.ErrorField(err))
	}
	defer app.Close()

	// Startup reconciliation repairs whatever the previous process left behind
	if report, err := app.ReconcileService.Reconcile(ctx, false); err != nil {
		appLogger.Error("Startup reconciliation failed", logger.ErrorField(err))
	} else {
		appLogger.Info("Startup reconciliation finished", logger.IntField("corrections", report.Changed()))
	}

	// Periodic jobs
	tradingCfg, err := app.ConfigService.Active(ctx)
	if err != nil {
		appLogger.Fatal("Failed to load trading config", logger.ErrorField(err))
	}
	cronScheduler := scheduler.NewCronScheduler(cfg.Trader.JobTimeout, appLogger)
	for _, job := range scheduler.EngineJobs(cfg, tradingCfg.MonitoringInterval(), app.MonitorService, app.OrderSyncService, app.ReconcileService, appLogger) {
		if err := cronScheduler.Register(job); err != nil {
			appLogger.Fatal("Failed to register job", logger.ErrorField(err))
		}
	}
	cronScheduler.Start()

	// Signal stream consumer
	redisConsumer := consumer.NewRedisConsumer(cfg, app.SignalStreamService, appLogger)
	redisConsumer.Start(ctx)

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true
	e.Validator = delivery.NewRequestValidator()

	e.GET("/swagger/*", swagger.WrapHandler)

	apiV1 := e.Group("/api/v1")
	delivery.NewTradeHandler(app.PositionService, appLogger).RegisterRoutes(apiV1.Group("/trades"))
	delivery.NewSignalHandler(app.SignalService, app.SignalStreamService, appLogger).RegisterRoutes(apiV1.Group("/signals"))
	delivery.NewOpsHandler(app.ReconcileService, app.MonitorService, app.OrderSyncService, appLogger).RegisterRoutes(apiV1.Group("/ops"))
	delivery.NewActivityHandler(app.ActivityLog, appLogger).RegisterRoutes(apiV1.Group("/activities"))
	delivery.NewConfigHandler(app.ConfigService, appLogger).RegisterRoutes(apiV1.Group("/config"))

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop() // trigger shutdown
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down trader service...")

	redisConsumer.Stop()
	cronScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Trader service exiting")
}

// @title News Trader API
// @version 1.0
// @description Position management and reconciliation for the news-driven trading bot.
// @BasePath /api/v1
func main() {
	rootCmd := &cobra.Command{Use: "trader-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-trader.yaml", "Path to the configuration file")
	serveCmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Create tables with gorm AutoMigrate instead of relying on cmd/migrate")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing trader-service CLI: %s\n", err)
		os.Exit(1)
	}
}
