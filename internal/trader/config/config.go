package config

import (
	"time"

	"golang-news-trader/pkg/config"
)

// Trader holds the engine's process settings. The risk policy itself lives in the
// trading_configs table and is read per evaluation.
type Trader struct {
	SignalStreamTimeout         time.Duration `mapstructure:"signal_stream_timeout"`
	SignalStreamRetryInterval   time.Duration `mapstructure:"signal_stream_retry_interval"`
	SignalStreamMaxIdleDuration time.Duration `mapstructure:"signal_stream_max_idle_duration"`
	SignalStreamMaxRetry        int           `mapstructure:"signal_stream_max_retry"`

	// Cron expressions; an empty MonitorSchedule follows monitoring_frequency_minutes.
	MonitorSchedule    string        `mapstructure:"monitor_schedule"`
	OrderSyncSchedule  string        `mapstructure:"order_sync_schedule"`
	ReconcileSchedule  string        `mapstructure:"reconcile_schedule"`
	BrokerSyncSchedule string        `mapstructure:"broker_sync_schedule"`
	JobTimeout         time.Duration `mapstructure:"job_timeout"`

	OrderFillTimeout time.Duration `mapstructure:"order_fill_timeout"`
	CompanyCacheTTL  time.Duration `mapstructure:"company_cache_ttl"`
	ActivityChannel  string        `mapstructure:"activity_channel"`
	RiskBudget       float64       `mapstructure:"risk_budget"`
}

// Alpaca holds brokerage credentials and client tuning.
type Alpaca struct {
	APIKey               string        `mapstructure:"api_key"`
	APISecret            string        `mapstructure:"api_secret"`
	BaseURL              string        `mapstructure:"base_url"`
	DataURL              string        `mapstructure:"data_url"`
	Feed                 string        `mapstructure:"feed"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRetry             int           `mapstructure:"max_retry"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	MaxRequestPerMinute  int           `mapstructure:"max_request_per_minute"`
}

// Telegram holds configuration for the Telegram notifier.
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Config holds the full configuration for the trader service and CLI.
type Config struct {
	App      config.App      `mapstructure:"app"`
	Logger   config.Logger   `mapstructure:"logger"`
	Database config.Database `mapstructure:"database"`
	Redis    config.Redis    `mapstructure:"redis"`
	API      config.API      `mapstructure:"api"`
	Alpaca   Alpaca          `mapstructure:"alpaca"`
	Telegram Telegram        `mapstructure:"telegram"`
	Trader   Trader          `mapstructure:"trader"`
}

var defaults = map[string]interface{}{
	"app.name":                               "trader-service",
	"app.env":                                "development",
	"logger.level":                           "info",
	"logger.encoding":                        "json",
	"api.port":                               8080,
	"alpaca.base_url":                        "https://paper-api.alpaca.markets",
	"alpaca.data_url":                        "https://data.alpaca.markets",
	"alpaca.feed":                            "iex",
	"alpaca.timeout":                         10 * time.Second,
	"alpaca.max_retry":                       3,
	"alpaca.retry_initial_interval":          500 * time.Millisecond,
	"alpaca.max_request_per_minute":          180,
	"trader.signal_stream_timeout":           2 * time.Minute,
	"trader.signal_stream_retry_interval":    30 * time.Second,
	"trader.signal_stream_max_idle_duration": time.Minute,
	"trader.signal_stream_max_retry":         3,
	"trader.order_sync_schedule":             "@every 30s",
	"trader.reconcile_schedule":              "*/15 * * * *",
	"trader.broker_sync_schedule":            "@every 5m",
	"trader.job_timeout":                     2 * time.Minute,
	"trader.order_fill_timeout":              15 * time.Minute,
	"trader.company_cache_ttl":               10 * time.Minute,
	"trader.risk_budget":                     20.0,
}

// Load loads the trader configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg, defaults); err != nil {
		return nil, err
	}
	return &cfg, nil
}
