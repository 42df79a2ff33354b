// Package risk decides whether a signal may open a position and with what size and levels.
// Everything here is pure; callers gather the inputs and persist the outcome.
package risk

import (
	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/dto"
)

// EvaluationInput is a point-in-time view of everything the policy reads.
type EvaluationInput struct {
	Signal            dto.Signal
	Config            entity.TradingConfig
	Portfolio         dto.PortfolioSnapshot
	Controls          dto.Controls
	MarketOpen        bool
	HasActivePosition bool
	Equity            float64
	EntryPrice        float64
	RiskBudget        float64
}

// Screen applies the rules that need no broker data (gates, confidence, direction,
// duplicates, concurrency and daily limits). It returns the first failing reason.
func Screen(in EvaluationInput) (dto.RejectReason, bool) {
	cfg := in.Config

	if !in.Controls.BotEnabled || !in.Controls.TradingEnabled {
		return dto.RejectBotDisabled, false
	}
	if in.Signal.Confidence < cfg.MinConfidenceThreshold {
		return dto.RejectLowConfidence, false
	}
	if !in.Signal.Direction.IsTradable() {
		return dto.RejectNoActionDirection, false
	}
	if in.HasActivePosition {
		return dto.RejectDuplicateActivePosition, false
	}
	if in.Portfolio.OpenTradeCount >= int64(cfg.MaxConcurrentOpenTrades) {
		return dto.RejectConcurrencyLimit, false
	}
	if in.Portfolio.DailyTradeCount >= int64(cfg.MaxDailyTrades) {
		return dto.RejectDailyLimit, false
	}
	return "", true
}

// Evaluate applies every rule in order and rejects on the first failure.
func Evaluate(in EvaluationInput) dto.Decision {
	cfg := in.Config
	if reason, ok := Screen(in); !ok {
		return dto.Reject(reason)
	}

	size := SizerFor(cfg.PositionSizingMethod).Size(SizingInput{
		Config:     cfg,
		Equity:     in.Equity,
		RiskBudget: in.RiskBudget,
	})
	if in.Portfolio.TotalOpenExposure+size > cfg.MaxTotalOpenExposure {
		return dto.Reject(dto.RejectExposureLimit)
	}
	if cfg.MarketHoursOnly && !in.MarketOpen {
		return dto.Reject(dto.RejectMarketClosed)
	}
	if in.EntryPrice <= 0 {
		return dto.Reject(dto.RejectInvalidPrice)
	}

	dir := in.Signal.Direction
	return dto.Accept(
		size,
		Quantity(size, in.EntryPrice),
		StopLossPrice(in.EntryPrice, cfg.StopLossPercentage, dir),
		TakeProfitPrice(in.EntryPrice, cfg.TakeProfitPercentage, dir),
		cfg.StopLossPercentage,
		cfg.TakeProfitPercentage,
	)
}
