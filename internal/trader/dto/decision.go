package dto

type RejectReason string

const (
	RejectBotDisabled             RejectReason = "bot_disabled"
	RejectLowConfidence           RejectReason = "low_confidence"
	RejectNoActionDirection       RejectReason = "no_action_direction"
	RejectDuplicateActivePosition RejectReason = "duplicate_active_position"
	RejectConcurrencyLimit        RejectReason = "concurrency_limit"
	RejectDailyLimit              RejectReason = "daily_limit"
	RejectExposureLimit           RejectReason = "exposure_limit"
	RejectMarketClosed            RejectReason = "market_closed"
	RejectInvalidPrice            RejectReason = "invalid_price"
)

// Decision is the outcome of a risk evaluation. When Accepted is false only Reason is set.
type Decision struct {
	Accepted      bool         `json:"accepted"`
	Reason        RejectReason `json:"reason,omitempty"`
	Size          float64      `json:"size,omitempty"`
	Quantity      float64      `json:"quantity,omitempty"`
	StopLoss      float64      `json:"stop_loss,omitempty"`
	TakeProfit    float64      `json:"take_profit,omitempty"`
	StopLossPct   float64      `json:"stop_loss_pct,omitempty"`
	TakeProfitPct float64      `json:"take_profit_pct,omitempty"`
}

func Accept(size, quantity, stopLoss, takeProfit, stopLossPct, takeProfitPct float64) Decision {
	return Decision{
		Accepted:      true,
		Size:          size,
		Quantity:      quantity,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		StopLossPct:   stopLossPct,
		TakeProfitPct: takeProfitPct,
	}
}

func Reject(reason RejectReason) Decision {
	return Decision{Reason: reason}
}

// PortfolioSnapshot is read from the position store at evaluation time.
type PortfolioSnapshot struct {
	OpenTradeCount    int64   `json:"open_trade_count"`
	TotalOpenExposure float64 `json:"total_open_exposure"`
	DailyTradeCount   int64   `json:"daily_trade_count"`
}

// Controls are the administrative switches read at the start of an evaluation.
type Controls struct {
	BotEnabled     bool `json:"bot_enabled"`
	TradingEnabled bool `json:"trading_enabled"`
}
