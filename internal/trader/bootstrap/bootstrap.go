// Package bootstrap wires the engine's repositories and services from configuration.
// Both the long-running service and the operator CLI build on it.
package bootstrap

import (
	"context"
	"fmt"

	"golang-news-trader/internal/trader/activity"
	"golang-news-trader/internal/trader/config"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/internal/trader/service"
	"golang-news-trader/pkg/common"
	"golang-news-trader/pkg/logger"
	"golang-news-trader/pkg/postgres"
	"golang-news-trader/pkg/redis"
	"golang-news-trader/pkg/telegram"

	"gorm.io/gorm"
)

// App holds every wired dependency of the engine.
type App struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *gorm.DB
	Redis       *redis.Client
	Notifier    telegram.Notifier
	Publisher   activity.Publisher
	TradeRepo   repository.TradeRepository
	ActivityLog repository.ActivityLogRepository
	Broker      repository.BrokerRepository

	ConfigService       service.ConfigService
	CompanyService      service.CompanyService
	SignalService       service.SignalService
	SignalStreamService service.SignalStreamService
	MonitorService      service.MonitorService
	OrderSyncService    service.OrderSyncService
	PositionService     service.PositionService
	ReconcileService    service.ReconcileService
}

// Options tweak how New prepares storage.
type Options struct {
	AutoMigrate bool
}

// New connects to PostgreSQL and Redis and builds the service graph.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	db, err := postgres.NewDB(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if opts.AutoMigrate {
		if err := repository.AutoMigrate(db.DB); err != nil {
			return nil, err
		}
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize redis: %w", err)
	}
	if err := redisClient.EnsureGroup(ctx, common.RedisStreamTradeSignal, common.RedisStreamGroup); err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	notifier := telegram.NewNopNotifier()
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("initialize telegram: %w", err)
		}
	}

	app := &App{
		Config:   cfg,
		Logger:   log,
		DB:       db.DB,
		Redis:    redisClient,
		Notifier: notifier,
	}
	app.wire()
	return app, nil
}

func (a *App) wire() {
	cfg, log := a.Config, a.Logger

	channel := cfg.Trader.ActivityChannel
	if channel == "" {
		channel = common.RedisChannelActivity
	}

	a.TradeRepo = repository.NewTradeRepository(a.DB)
	a.ActivityLog = repository.NewActivityLogRepository(a.DB)
	companyRepo := repository.NewTrackedCompanyRepository(a.DB)
	configRepo := repository.NewTradingConfigRepository(a.DB)
	analysisRepo := repository.NewAnalysisRepository(a.DB)
	a.Broker = repository.NewAlpacaBrokerRepository(cfg, log)

	a.Publisher = activity.NewPublisher(a.ActivityLog, a.Redis.Client, channel, a.Notifier, log)

	a.ConfigService = service.NewConfigService(configRepo, log)
	a.CompanyService = service.NewCompanyService(companyRepo, cfg.Trader.CompanyCacheTTL, log)
	a.ReconcileService = service.NewReconcileService(a.TradeRepo, a.CompanyService, a.Broker, a.Publisher, log)
	a.MonitorService = service.NewMonitorService(a.ConfigService, a.TradeRepo, a.Broker, a.Publisher, log)
	a.OrderSyncService = service.NewOrderSyncService(a.TradeRepo, a.Broker, a.Publisher, cfg.Trader.OrderFillTimeout, log)
	a.PositionService = service.NewPositionService(a.ConfigService, a.TradeRepo, a.Broker, a.ReconcileService, a.Publisher, cfg.App.IsStrict(), log)
	a.SignalService = service.NewSignalService(a.ConfigService, a.CompanyService, analysisRepo, a.TradeRepo, a.Broker, a.Publisher, cfg.Trader.RiskBudget, log)
	a.SignalStreamService = service.NewSignalStreamService(cfg, a.Redis.Client, a.SignalService, a.Notifier, log)
}

// Close releases the database pool and the Redis connection.
func (a *App) Close() {
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}
