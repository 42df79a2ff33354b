// Package lifecycle owns every trade status change. Callers describe what happened as an
// Event and Transition applies the legal move together with its bookkeeping.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"golang-news-trader/internal/entity"

	"github.com/shopspring/decimal"
)

type Event string

const (
	EventFillConfirmed  Event = "fill_confirmed"
	EventExitTriggered  Event = "exit_triggered"
	EventCloseConfirmed Event = "close_confirmed"
	EventBrokerRejected Event = "broker_rejected"
	EventManualCancel   Event = "manual_cancel"
	EventCloseCancelled Event = "close_cancelled"
	// EventForceClose is reserved for reconciliation.
	EventForceClose Event = "force_close"
)

var (
	ErrIllegalTransition = errors.New("illegal trade transition")
	ErrMissingReason     = errors.New("close reason required")
	ErrMissingExitPrice  = errors.New("exit price required")
)

var transitions = map[entity.TradeStatus]map[Event]entity.TradeStatus{
	entity.TradeStatusPending: {
		EventFillConfirmed:  entity.TradeStatusOpen,
		EventBrokerRejected: entity.TradeStatusFailed,
		EventManualCancel:   entity.TradeStatusCancelled,
		EventForceClose:     entity.TradeStatusClosed,
	},
	entity.TradeStatusOpen: {
		EventExitTriggered: entity.TradeStatusPendingClose,
		EventForceClose:    entity.TradeStatusClosed,
	},
	entity.TradeStatusPendingClose: {
		EventCloseConfirmed: entity.TradeStatusClosed,
		EventCloseCancelled: entity.TradeStatusOpen,
		EventForceClose:     entity.TradeStatusClosed,
	},
}

// Options carries the facts an event needs.
type Options struct {
	Now          time.Time
	Reason       entity.CloseReason
	FillPrice    *float64
	ExitPrice    *float64
	Commission   *float64
	CloseOrderID *string
}

// Target returns the status ev moves from to, or ErrIllegalTransition.
func Target(from entity.TradeStatus, ev Event) (entity.TradeStatus, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
	}
	return to, nil
}

func CanTransition(from entity.TradeStatus, ev Event) bool {
	_, err := Target(from, ev)
	return err == nil
}

// Transition applies ev to t in memory. Nothing is modified when it returns an error;
// persisting the result with an optimistic status check is the caller's job.
func Transition(t *entity.Trade, ev Event, opts Options) error {
	to, err := Target(t.Status, ev)
	if err != nil {
		return err
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	switch ev {
	case EventExitTriggered, EventForceClose:
		if opts.Reason == "" {
			return ErrMissingReason
		}
	case EventCloseConfirmed:
		if opts.ExitPrice == nil {
			return ErrMissingExitPrice
		}
	}

	switch ev {
	case EventFillConfirmed:
		if opts.FillPrice != nil && *opts.FillPrice > 0 {
			t.EntryPrice = *opts.FillPrice
			t.RecomputeLevels()
		}
		if t.OpenedAt == nil {
			t.OpenedAt = &now
		}

	case EventExitTriggered:
		reason := opts.Reason
		t.CloseReason = &reason
		if opts.CloseOrderID != nil {
			t.CloseOrderID = opts.CloseOrderID
		}

	case EventCloseConfirmed:
		if opts.Commission != nil {
			t.Commission = *opts.Commission
		}
		settle(t, *opts.ExitPrice, now)
		if t.CloseReason == nil {
			reason := entity.CloseReasonManual
			t.CloseReason = &reason
		}

	case EventForceClose:
		reason := opts.Reason
		t.CloseReason = &reason
		if opts.ExitPrice != nil {
			settle(t, *opts.ExitPrice, now)
		} else {
			realized := t.UnrealizedPnL
			t.RealizedPnL = &realized
			t.ClosedAt = &now
		}

	case EventCloseCancelled:
		t.CloseReason = nil
		t.CloseOrderID = nil
		restoreLevels(t)
	}

	t.Status = to
	return nil
}

// RealizedPnL is (exit-entry)*qty*sign - commission, computed in decimal.
func RealizedPnL(t *entity.Trade, exitPrice float64) float64 {
	pnl := decimal.NewFromFloat(exitPrice).
		Sub(decimal.NewFromFloat(t.EntryPrice)).
		Mul(decimal.NewFromFloat(t.Quantity)).
		Mul(decimal.NewFromFloat(t.Direction.Sign())).
		Sub(decimal.NewFromFloat(t.Commission))
	return pnl.Round(6).InexactFloat64()
}

func settle(t *entity.Trade, exitPrice float64, now time.Time) {
	exit := exitPrice
	realized := RealizedPnL(t, exitPrice)
	t.ExitPrice = &exit
	t.RealizedPnL = &realized
	t.ClosedAt = &now
}

// restoreLevels reinstates TP/SL from percentages, or from the original snapshot when a
// level has no percentage.
func restoreLevels(t *entity.Trade) {
	t.RecomputeLevels()
	if t.StopLossPricePercentage == nil && t.OriginalStopLossPrice != nil {
		v := *t.OriginalStopLossPrice
		t.StopLossPrice = &v
	}
	if t.TakeProfitPricePercentage == nil && t.OriginalTakeProfitPrice != nil {
		v := *t.OriginalTakeProfitPrice
		t.TakeProfitPrice = &v
	}
}
