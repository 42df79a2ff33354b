package dto

import "golang-news-trader/internal/entity"

// ErrorResponse represents a generic error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

type ListTradesRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=pending open pending_close closed cancelled failed"`
	Symbol string `query:"symbol" validate:"omitempty,max=16"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=500"`
	Offset int    `query:"offset" validate:"omitempty,min=0"`
}

type CloseTradeRequest struct {
	Reason entity.CloseReason `json:"reason" validate:"omitempty,oneof=manual market_close time_limit"`
}

type ToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type ListActivitiesRequest struct {
	Type  string `query:"type" validate:"omitempty,max=50"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=500"`
}

// TradeResponse exposes derived values next to the stored record.
type TradeResponse struct {
	entity.Trade
	CurrentPnL      float64 `json:"current_pnl"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
}

type BulkCloseResponse struct {
	Requested []uint   `json:"requested"`
	Errors    []string `json:"errors,omitempty"`
}

type AdjustTradeRequest struct {
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

type EnqueueSignalResponse struct {
	MessageID string `json:"message_id"`
}
