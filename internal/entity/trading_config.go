package entity

import "time"

// PositionSizingMethod selects how the notional size of a new position is computed.
type PositionSizingMethod string

const (
	SizingFixed      PositionSizingMethod = "fixed"
	SizingPercentage PositionSizingMethod = "percentage"
	SizingRiskBased  PositionSizingMethod = "risk_based"
)

// TradingConfig is the risk policy. Exactly one row is expected to have IsActive set;
// that is enforced by the repository, not by the schema.
type TradingConfig struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"type:varchar(255);not null" json:"name"`

	DefaultPositionSize  float64              `gorm:"not null" json:"default_position_size"`
	MaxPositionSize      float64              `gorm:"not null" json:"max_position_size"`
	PositionSizingMethod PositionSizingMethod `gorm:"type:varchar(20);not null" json:"position_sizing_method"`

	StopLossPercentage   float64 `gorm:"not null" json:"stop_loss_percentage"`
	TakeProfitPercentage float64 `gorm:"not null" json:"take_profit_percentage"`

	TrailingStopEnabled                    bool    `gorm:"not null" json:"trailing_stop_enabled"`
	TrailingStopDistancePercentage         float64 `gorm:"not null" json:"trailing_stop_distance_percentage"`
	TrailingStopActivationProfitPercentage float64 `gorm:"not null" json:"trailing_stop_activation_profit_percentage"`

	MaxDailyTrades          int     `gorm:"not null" json:"max_daily_trades"`
	MaxConcurrentOpenTrades int     `gorm:"not null" json:"max_concurrent_open_trades"`
	MaxTotalOpenExposure    float64 `gorm:"not null" json:"max_total_open_exposure"`
	MinConfidenceThreshold  float64 `gorm:"not null" json:"min_confidence_threshold"`

	MaxPositionHoldTimeHours     int     `gorm:"not null" json:"max_position_hold_time_hours"`
	MinConfidenceForAdjustment   float64 `gorm:"not null" json:"min_confidence_for_adjustment"`
	ConservativeAdjustmentFactor float64 `gorm:"not null" json:"conservative_adjustment_factor"`
	AllowPositionAdjustments     bool    `gorm:"not null" json:"allow_position_adjustments"`
	MonitoringFrequencyMinutes   int     `gorm:"not null" json:"monitoring_frequency_minutes"`

	TradingEnabled  bool `gorm:"not null" json:"trading_enabled"`
	MarketHoursOnly bool `gorm:"not null" json:"market_hours_only"`
	BotEnabled      bool `gorm:"not null" json:"bot_enabled"`

	IsActive  bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TradingConfig) TableName() string {
	return "trading_configs"
}

// DefaultTradingConfig returns the policy installed when no active config exists.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		Name:                                   "Default Config",
		DefaultPositionSize:                    100,
		MaxPositionSize:                        1000,
		PositionSizingMethod:                   SizingFixed,
		StopLossPercentage:                     2,
		TakeProfitPercentage:                   10,
		TrailingStopEnabled:                    false,
		TrailingStopDistancePercentage:         1,
		TrailingStopActivationProfitPercentage: 0,
		MaxDailyTrades:                         10,
		MaxConcurrentOpenTrades:                5,
		MaxTotalOpenExposure:                   5000,
		MinConfidenceThreshold:                 0.7,
		MaxPositionHoldTimeHours:               24,
		MinConfidenceForAdjustment:             0.8,
		ConservativeAdjustmentFactor:           0.5,
		AllowPositionAdjustments:               true,
		MonitoringFrequencyMinutes:             1,
		TradingEnabled:                         true,
		MarketHoursOnly:                        true,
		BotEnabled:                             false,
		IsActive:                               true,
	}
}

// MaxHoldDuration is the hold-time limit as a duration; zero disables the limit.
func (c TradingConfig) MaxHoldDuration() time.Duration {
	if c.MaxPositionHoldTimeHours <= 0 {
		return 0
	}
	return time.Duration(c.MaxPositionHoldTimeHours) * time.Hour
}

// MonitoringInterval is the position monitor cadence, at least one minute.
func (c TradingConfig) MonitoringInterval() time.Duration {
	if c.MonitoringFrequencyMinutes < 1 {
		return time.Minute
	}
	return time.Duration(c.MonitoringFrequencyMinutes) * time.Minute
}
