package dto

import (
	"time"

	"golang-news-trader/internal/entity"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPendingNew      OrderStatus = "pending_new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusPendingCancel   OrderStatus = "pending_cancel"
)

// IsDead reports an order that will never fill.
func (s OrderStatus) IsDead() bool {
	return s == OrderStatusCanceled || s == OrderStatusExpired || s == OrderStatusRejected
}

// OrderRequest is a market order submission.
type OrderRequest struct {
	Symbol        string
	Quantity      float64
	Side          entity.Direction
	ClientOrderID string
}

type BrokerOrder struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           entity.Direction
	Quantity       float64
	FilledQuantity float64
	FilledAvgPrice *float64
	Status         OrderStatus
	SubmittedAt    time.Time
	FilledAt       *time.Time
}

// BrokerPosition is a live position; Quantity is negative for shorts.
type BrokerPosition struct {
	Symbol        string
	Quantity      float64
	AvgEntryPrice float64
	UnrealizedPL  float64
	CurrentPrice  *float64
	MarketValue   float64
}

// Direction infers the position side from the sign of its quantity.
func (p BrokerPosition) Direction() entity.Direction {
	if p.Quantity < 0 {
		return entity.DirectionSell
	}
	return entity.DirectionBuy
}

type Account struct {
	Equity      float64
	LastEquity  float64
	BuyingPower float64
	Status      string
}

type Clock struct {
	IsOpen    bool
	Timestamp time.Time
	NextOpen  time.Time
	NextClose time.Time
}
