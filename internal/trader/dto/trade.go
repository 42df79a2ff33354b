package dto

import (
	"time"

	"golang-news-trader/internal/entity"
)

// GetTradesParam filters trade queries; zero values are ignored.
type GetTradesParam struct {
	IDs               []uint
	Statuses          []entity.TradeStatus
	Symbols           []string
	TrackedCompanyIDs []uint
	Untracked         bool
	CreatedAfter      *time.Time
	Preload           bool
	OrderBy           string
	Limit             int
	Offset            int
}

type SymbolCount struct {
	Symbol string `json:"symbol"`
	Count  int64  `json:"count"`
}

// TradeSummary aggregates the whole trade history.
type TradeSummary struct {
	TotalTrades        int64         `json:"total_trades"`
	OpenTrades         int64         `json:"open_trades"`
	ClosedTrades       int64         `json:"closed_trades"`
	TotalPnL           float64       `json:"total_pnl"`
	WinningTrades      int64         `json:"winning_trades"`
	WinRate            float64       `json:"win_rate"`
	AvgDurationMinutes float64       `json:"avg_duration_minutes"`
	TopSymbols         []SymbolCount `json:"top_symbols"`
}

// DuplicateGroup lists the active trades sharing one instrument key, newest first.
type DuplicateGroup struct {
	Key    string
	Trades []entity.Trade
}
