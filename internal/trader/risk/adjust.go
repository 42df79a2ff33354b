package risk

import (
	"math"

	"golang-news-trader/internal/entity"
)

// Adjustment is the damped TP/SL move computed for a supporting signal.
type Adjustment struct {
	Factor     float64
	TakeProfit *float64
	StopLoss   *float64
}

// CanAdjust reports whether a supporting signal of confidence may adjust trade under cfg.
func CanAdjust(trade *entity.Trade, confidence float64, cfg entity.TradingConfig) bool {
	return cfg.AllowPositionAdjustments &&
		!trade.HasBeenAdjusted &&
		confidence >= cfg.MinConfidenceForAdjustment
}

// AdjustLevels extends take-profit by up to 10% of its distance and tightens stop-loss by
// up to 30% of its distance, both scaled by confidence*conservative_adjustment_factor.
func AdjustLevels(trade *entity.Trade, confidence float64, cfg entity.TradingConfig) Adjustment {
	adj := Adjustment{Factor: confidence * cfg.ConservativeAdjustmentFactor}
	if trade.EntryPrice <= 0 {
		return adj
	}
	sign := trade.Direction.Sign()

	if trade.TakeProfitPrice != nil {
		distance := math.Abs(*trade.TakeProfitPrice - trade.EntryPrice)
		tp := *trade.TakeProfitPrice + sign*distance*adj.Factor*0.1
		adj.TakeProfit = &tp
	}
	if trade.StopLossPrice != nil {
		distance := math.Abs(*trade.StopLossPrice - trade.EntryPrice)
		sl := trade.EntryPrice - sign*distance*(1-adj.Factor*0.3)
		adj.StopLoss = &sl
	}
	return adj
}

// ApplyAdjustment snapshots the current levels into original_*, installs the adjusted
// levels and their percentages, and closes the one-shot gate.
func ApplyAdjustment(trade *entity.Trade, adj Adjustment) {
	if trade.StopLossPrice != nil {
		v := *trade.StopLossPrice
		trade.OriginalStopLossPrice = &v
	}
	if trade.TakeProfitPrice != nil {
		v := *trade.TakeProfitPrice
		trade.OriginalTakeProfitPrice = &v
	}
	if adj.StopLoss != nil {
		trade.StopLossPrice = adj.StopLoss
		pct := PercentFromPrice(trade.EntryPrice, *adj.StopLoss)
		trade.StopLossPricePercentage = &pct
	}
	if adj.TakeProfit != nil {
		trade.TakeProfitPrice = adj.TakeProfit
		pct := PercentFromPrice(trade.EntryPrice, *adj.TakeProfit)
		trade.TakeProfitPricePercentage = &pct
	}
	trade.HasBeenAdjusted = true
}
