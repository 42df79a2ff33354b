package entity

import (
	"math"
	"time"

	"gorm.io/gorm"
)

type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

// Sign is +1 for long, -1 for short and 0 for hold.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionBuy:
		return 1
	case DirectionSell:
		return -1
	}
	return 0
}

// Opposite returns the order side that closes a position in direction d.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuy:
		return DirectionSell
	case DirectionSell:
		return DirectionBuy
	}
	return d
}

func (d Direction) IsTradable() bool {
	return d == DirectionBuy || d == DirectionSell
}

type TradeStatus string

const (
	TradeStatusPending      TradeStatus = "pending"
	TradeStatusOpen         TradeStatus = "open"
	TradeStatusPendingClose TradeStatus = "pending_close"
	TradeStatusClosed       TradeStatus = "closed"
	TradeStatusCancelled    TradeStatus = "cancelled"
	TradeStatusFailed       TradeStatus = "failed"
)

// ActiveTradeStatuses consume risk budget and are covered by the active uniqueness indexes.
var ActiveTradeStatuses = []TradeStatus{TradeStatusOpen, TradeStatusPending, TradeStatusPendingClose}

// TerminalTradeStatuses never transition again.
var TerminalTradeStatuses = []TradeStatus{TradeStatusClosed, TradeStatusCancelled, TradeStatusFailed}

func (s TradeStatus) IsActive() bool {
	return s == TradeStatusOpen || s == TradeStatusPending || s == TradeStatusPendingClose
}

func (s TradeStatus) IsTerminal() bool {
	return s == TradeStatusClosed || s == TradeStatusCancelled || s == TradeStatusFailed
}

type CloseReason string

const (
	CloseReasonManual              CloseReason = "manual"
	CloseReasonStopLoss            CloseReason = "stop_loss"
	CloseReasonTakeProfit          CloseReason = "take_profit"
	CloseReasonTrailingStop        CloseReason = "trailing_stop"
	CloseReasonTimeLimit           CloseReason = "time_limit"
	CloseReasonMarketClose         CloseReason = "market_close"
	CloseReasonMarketConsensusLost CloseReason = "market_consensus_lost"
	CloseReasonDuplicateSync       CloseReason = "duplicate_sync"
)

// Trade is one position from order submission to close.
type Trade struct {
	ID uint `gorm:"primaryKey" json:"id"`

	AnalysisID       *uint           `gorm:"index" json:"analysis_id,omitempty"`
	Analysis         *Analysis       `gorm:"foreignKey:AnalysisID" json:"analysis,omitempty"`
	TrackedCompanyID *uint           `gorm:"index" json:"tracked_company_id,omitempty"`
	TrackedCompany   *TrackedCompany `gorm:"foreignKey:TrackedCompanyID" json:"tracked_company,omitempty"`
	Symbol           string          `gorm:"type:varchar(16);not null;index" json:"symbol"`

	Direction  Direction   `gorm:"type:varchar(4);not null" json:"direction"`
	Quantity   float64     `gorm:"not null" json:"quantity"`
	EntryPrice float64     `gorm:"not null" json:"entry_price"`
	ExitPrice  *float64    `json:"exit_price,omitempty"`
	Status     TradeStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	// Version increments on every write; optimistic writers match on it.
	Version uint `gorm:"not null;default:0" json:"version"`

	AlpacaOrderID *string `gorm:"type:varchar(64);index" json:"alpaca_order_id,omitempty"`
	CloseOrderID  *string `gorm:"type:varchar(64)" json:"close_order_id,omitempty"`

	StopLossPrice             *float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice           *float64 `json:"take_profit_price,omitempty"`
	StopLossPricePercentage   *float64 `json:"stop_loss_price_percentage,omitempty"`
	TakeProfitPricePercentage *float64 `json:"take_profit_price_percentage,omitempty"`
	OriginalStopLossPrice     *float64 `json:"original_stop_loss_price,omitempty"`
	OriginalTakeProfitPrice   *float64 `json:"original_take_profit_price,omitempty"`
	HasBeenAdjusted           bool     `gorm:"not null" json:"has_been_adjusted"`

	HighestPriceSinceOpen *float64 `json:"highest_price_since_open,omitempty"`
	LowestPriceSinceOpen  *float64 `json:"lowest_price_since_open,omitempty"`

	UnrealizedPnL float64  `gorm:"column:unrealized_pnl;not null" json:"unrealized_pnl"`
	RealizedPnL   *float64 `gorm:"column:realized_pnl" json:"realized_pnl,omitempty"`
	Commission    float64  `gorm:"not null" json:"commission"`

	CloseReason *CloseReason `gorm:"type:varchar(32)" json:"close_reason,omitempty"`

	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

func (Trade) TableName() string {
	return "trades"
}

func (t *Trade) BeforeSave(tx *gorm.DB) error {
	t.Symbol = NormalizeSymbol(t.Symbol)
	return nil
}

func (t *Trade) IsActive() bool {
	return t.Status.IsActive()
}

// CurrentPnL is the realized P&L once closed, otherwise the last unrealized P&L.
func (t *Trade) CurrentPnL() float64 {
	if t.Status == TradeStatusClosed && t.RealizedPnL != nil {
		return *t.RealizedPnL
	}
	return t.UnrealizedPnL
}

// DurationMinutes is the time between open and close (or now when still open).
func (t *Trade) DurationMinutes(now time.Time) *int {
	if t.OpenedAt == nil {
		return nil
	}
	end := now
	if t.ClosedAt != nil {
		end = *t.ClosedAt
	}
	minutes := int(end.Sub(*t.OpenedAt).Minutes())
	return &minutes
}

// Exposure is the notional value committed at entry.
func (t *Trade) Exposure() float64 {
	return math.Abs(t.Quantity * t.EntryPrice)
}

// InitLevels stores the percentages, derives the absolute levels and snapshots them as originals.
func (t *Trade) InitLevels(stopLossPct, takeProfitPct float64) {
	t.StopLossPricePercentage = &stopLossPct
	t.TakeProfitPricePercentage = &takeProfitPct
	t.RecomputeLevels()
	t.OriginalStopLossPrice = copyFloat(t.StopLossPrice)
	t.OriginalTakeProfitPrice = copyFloat(t.TakeProfitPrice)
}

// RecomputeLevels rebuilds absolute levels from the entry price. Percentages win over
// stored absolute values; an absolute level without a percentage gets one derived from it.
func (t *Trade) RecomputeLevels() {
	if t.EntryPrice <= 0 {
		return
	}
	if t.StopLossPricePercentage != nil {
		sl := StopLossLevel(t.EntryPrice, *t.StopLossPricePercentage, t.Direction)
		t.StopLossPrice = &sl
	} else if t.StopLossPrice != nil {
		pct := math.Abs(LevelPercent(t.EntryPrice, *t.StopLossPrice))
		t.StopLossPricePercentage = &pct
	}
	if t.TakeProfitPricePercentage != nil {
		tp := TakeProfitLevel(t.EntryPrice, *t.TakeProfitPricePercentage, t.Direction)
		t.TakeProfitPrice = &tp
	} else if t.TakeProfitPrice != nil {
		pct := math.Abs(LevelPercent(t.EntryPrice, *t.TakeProfitPrice))
		t.TakeProfitPricePercentage = &pct
	}
}

// UpdateWatermarks widens the high/low watermarks to include price.
func (t *Trade) UpdateWatermarks(price float64) {
	if t.HighestPriceSinceOpen == nil || price > *t.HighestPriceSinceOpen {
		t.HighestPriceSinceOpen = &price
	}
	if t.LowestPriceSinceOpen == nil || price < *t.LowestPriceSinceOpen {
		t.LowestPriceSinceOpen = &price
	}
}

// FavorableWatermark is the best price seen for the position's direction.
func (t *Trade) FavorableWatermark() *float64 {
	if t.Direction == DirectionSell {
		return t.LowestPriceSinceOpen
	}
	return t.HighestPriceSinceOpen
}

// MarkToMarket refreshes unrealized P&L at price.
func (t *Trade) MarkToMarket(price float64) {
	t.UnrealizedPnL = (price - t.EntryPrice) * t.Quantity * t.Direction.Sign()
}

// StopLossLevel places the stop pct percent against the position.
func StopLossLevel(entry, pct float64, dir Direction) float64 {
	if dir == DirectionSell {
		return entry * (1 + pct/100)
	}
	return entry * (1 - pct/100)
}

// TakeProfitLevel places the target pct percent in favour of the position.
func TakeProfitLevel(entry, pct float64, dir Direction) float64 {
	if dir == DirectionSell {
		return entry * (1 - pct/100)
	}
	return entry * (1 + pct/100)
}

// LevelPercent is the signed distance of price from entry in percent.
func LevelPercent(entry, price float64) float64 {
	if entry == 0 {
		return 0
	}
	return (price - entry) / entry * 100
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
