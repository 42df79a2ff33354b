package risk

import (
	"math"

	"golang-news-trader/internal/entity"
)

// SizingInput carries everything a sizing variant may read.
type SizingInput struct {
	Config     entity.TradingConfig
	Equity     float64
	RiskBudget float64
}

// Sizer is the sizing variant selected once per evaluation.
type Sizer struct {
	Method entity.PositionSizingMethod
	size   func(SizingInput) float64
}

var sizers = map[entity.PositionSizingMethod]func(SizingInput) float64{
	entity.SizingFixed:      fixedSize,
	entity.SizingPercentage: percentageSize,
	entity.SizingRiskBased:  riskBasedSize,
}

// SizerFor returns the variant for method; unknown methods size as fixed.
func SizerFor(method entity.PositionSizingMethod) Sizer {
	fn, ok := sizers[method]
	if !ok {
		return Sizer{Method: entity.SizingFixed, size: fixedSize}
	}
	return Sizer{Method: method, size: fn}
}

// NeedsEquity reports whether the variant reads account equity.
func (s Sizer) NeedsEquity() bool {
	return s.Method == entity.SizingPercentage
}

// Size returns the notional size, clamped to max_position_size.
func (s Sizer) Size(in SizingInput) float64 {
	size := s.size(in)
	if in.Config.MaxPositionSize > 0 && size > in.Config.MaxPositionSize {
		size = in.Config.MaxPositionSize
	}
	if size < 0 {
		return 0
	}
	return size
}

func fixedSize(in SizingInput) float64 {
	return in.Config.DefaultPositionSize
}

// percentageSize treats default_position_size as a percent of equity.
func percentageSize(in SizingInput) float64 {
	if in.Equity <= 0 {
		return fixedSize(in)
	}
	return in.Equity * in.Config.DefaultPositionSize / 100
}

// riskBasedSize sizes the position so hitting the stop loses RiskBudget:
// size * stop_loss_pct/100 = risk_budget.
func riskBasedSize(in SizingInput) float64 {
	if in.RiskBudget <= 0 || in.Config.StopLossPercentage <= 0 {
		return fixedSize(in)
	}
	return in.RiskBudget / (in.Config.StopLossPercentage / 100)
}

// Quantity converts a notional size into whole shares, at least one.
func Quantity(size, price float64) float64 {
	if price <= 0 {
		return 0
	}
	qty := math.Floor(size / price)
	if qty < 1 {
		return 1
	}
	return qty
}
