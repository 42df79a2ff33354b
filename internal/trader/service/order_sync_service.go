package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/activity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/lifecycle"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/pkg/logger"

	"go.uber.org/zap"
)

// OrderSyncService follows submitted orders until the broker settles them.
type OrderSyncService interface {
	SyncOrders(ctx context.Context) (dto.OrderSyncReport, error)
}

type orderSyncService struct {
	tradeRepo   repository.TradeRepository
	broker      repository.BrokerRepository
	publisher   activity.Publisher
	mover       *transitioner
	fillTimeout time.Duration
	log         *logger.Logger
	now         func() time.Time
}

func NewOrderSyncService(
	tradeRepo repository.TradeRepository,
	broker repository.BrokerRepository,
	publisher activity.Publisher,
	fillTimeout time.Duration,
	log *logger.Logger,
) OrderSyncService {
	if fillTimeout <= 0 {
		fillTimeout = 15 * time.Minute
	}
	return &orderSyncService{
		tradeRepo:   tradeRepo,
		broker:      broker,
		publisher:   publisher,
		mover:       newTransitioner(tradeRepo, broker, publisher, log),
		fillTimeout: fillTimeout,
		log:         log,
		now:         time.Now,
	}
}

func (s *orderSyncService) SyncOrders(ctx context.Context) (dto.OrderSyncReport, error) {
	var report dto.OrderSyncReport

	trades, err := s.tradeRepo.Get(ctx, dto.GetTradesParam{
		Statuses: []entity.TradeStatus{entity.TradeStatusPending, entity.TradeStatusPendingClose},
		OrderBy:  "id ASC",
	})
	if err != nil {
		return report, fmt.Errorf("load trades awaiting orders: %w", err)
	}

	for i := range trades {
		trade := &trades[i]
		report.Checked++

		var err error
		switch trade.Status {
		case entity.TradeStatusPending:
			err = s.syncEntry(ctx, trade, &report)
		case entity.TradeStatusPendingClose:
			err = s.syncExit(ctx, trade, &report)
		}
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("trade %d: %v", trade.ID, err))
			s.log.WarnContext(ctx, "Order sync failed", append(tradeFields(trade), logger.ErrorField(err))...)
		}
	}

	s.log.DebugContext(ctx, "Order sync finished",
		logger.IntField("checked", report.Checked),
		logger.IntField("opened", report.Opened),
		logger.IntField("closed", report.Closed),
		logger.IntField("failed", report.Failed),
	)
	return report, nil
}

func (s *orderSyncService) expired(since time.Time) bool {
	return s.now().Sub(since) > s.fillTimeout
}

func (s *orderSyncService) syncEntry(ctx context.Context, trade *entity.Trade, report *dto.OrderSyncReport) error {
	if trade.AlpacaOrderID == nil {
		return s.resolveUnconfirmedEntry(ctx, trade, report)
	}

	order, err := s.broker.GetOrder(ctx, *trade.AlpacaOrderID)
	if err != nil {
		if repository.IsNotFound(err) {
			return s.fail(ctx, trade, "entry order unknown to broker")
		}
		return err
	}

	switch {
	case order.Status == dto.OrderStatusFilled:
		return s.fill(ctx, trade, order.FilledQuantity, order.FilledAvgPrice, report)

	case order.Status.IsDead():
		if order.FilledQuantity > 0 {
			return s.fill(ctx, trade, order.FilledQuantity, order.FilledAvgPrice, report)
		}
		return s.fail(ctx, trade, fmt.Sprintf("entry order %s", order.Status))

	case s.expired(trade.CreatedAt):
		if err := s.broker.CancelOrder(ctx, order.ID); err != nil && !repository.IsNotFound(err) {
			return fmt.Errorf("cancel stale entry order %s: %w", order.ID, err)
		}
		if order.FilledQuantity > 0 {
			return s.fill(ctx, trade, order.FilledQuantity, order.FilledAvgPrice, report)
		}
		return s.fail(ctx, trade, "entry order not filled in time")
	}
	return nil
}

// resolveUnconfirmedEntry settles a reservation whose submission outcome was never known.
func (s *orderSyncService) resolveUnconfirmedEntry(ctx context.Context, trade *entity.Trade, report *dto.OrderSyncReport) error {
	if !s.expired(trade.CreatedAt) {
		return nil
	}

	orders, err := s.broker.ListOpenOrders(ctx, trade.Symbol)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.Side == trade.Direction {
			id := o.ID
			trade.AlpacaOrderID = &id
			return s.mover.save(ctx, trade)
		}
	}

	position, err := s.broker.GetPosition(ctx, trade.Symbol)
	if err != nil {
		if repository.IsNotFound(err) {
			return s.fail(ctx, trade, "no order or position found at broker")
		}
		return err
	}
	if position.Direction() != trade.Direction {
		return s.fail(ctx, trade, fmt.Sprintf("broker holds an opposite %s position", position.Direction()))
	}
	avg := position.AvgEntryPrice
	return s.fill(ctx, trade, math.Abs(position.Quantity), &avg, report)
}

func (s *orderSyncService) fill(ctx context.Context, trade *entity.Trade, qty float64, price *float64, report *dto.OrderSyncReport) error {
	if qty > 0 {
		trade.Quantity = qty
	}
	if err := s.mover.apply(ctx, trade, lifecycle.EventFillConfirmed, lifecycle.Options{FillPrice: price}); err != nil {
		return err
	}
	report.Opened++
	s.publisher.Publish(ctx, entity.ActivityTradeOpened,
		fmt.Sprintf("%s %s opened at %.2f", trade.Direction, trade.Symbol, trade.EntryPrice),
		tradePayload(trade, nil))
	return nil
}

func (s *orderSyncService) fail(ctx context.Context, trade *entity.Trade, detail string) error {
	if err := s.mover.apply(ctx, trade, lifecycle.EventBrokerRejected, lifecycle.Options{}); err != nil {
		return err
	}
	s.publisher.Publish(ctx, entity.ActivityTradeFailed,
		fmt.Sprintf("%s %s failed: %s", trade.Direction, trade.Symbol, detail),
		tradePayload(trade, map[string]interface{}{"detail": detail}))
	return nil
}

func (s *orderSyncService) syncExit(ctx context.Context, trade *entity.Trade, report *dto.OrderSyncReport) error {
	if trade.CloseOrderID == nil {
		if !s.expired(trade.UpdatedAt) {
			return nil
		}
		orders, err := s.broker.ListOpenOrders(ctx, trade.Symbol)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.Side == trade.Direction.Opposite() {
				id := o.ID
				trade.CloseOrderID = &id
				return s.mover.save(ctx, trade)
			}
		}
		return s.reopenIfHeld(ctx, trade, "no close order found at broker")
	}

	order, err := s.broker.GetOrder(ctx, *trade.CloseOrderID)
	if err != nil {
		if repository.IsNotFound(err) {
			return s.reopenIfHeld(ctx, trade, "close order unknown to broker")
		}
		return err
	}

	switch {
	case order.Status == dto.OrderStatusFilled:
		exit := trade.EntryPrice
		if order.FilledAvgPrice != nil {
			exit = *order.FilledAvgPrice
		}
		if err := s.mover.confirmClose(ctx, trade, exit); err != nil {
			return err
		}
		report.Closed++
	case order.Status.IsDead():
		return s.reopenIfHeld(ctx, trade, fmt.Sprintf("close order %s", order.Status))
	}
	return nil
}

// reopenIfHeld returns a pending_close trade to open when its close never executed and
// the broker still holds the position. A position that is gone is left to reconciliation.
func (s *orderSyncService) reopenIfHeld(ctx context.Context, trade *entity.Trade, detail string) error {
	if _, err := s.broker.GetPosition(ctx, trade.Symbol); err != nil {
		if repository.IsNotFound(err) {
			s.log.InfoContext(ctx, "Close unresolved, position already gone",
				append(tradeFields(trade), logger.StringField("detail", detail))...)
			return nil
		}
		return err
	}

	if err := s.mover.apply(ctx, trade, lifecycle.EventCloseCancelled, lifecycle.Options{}); err != nil {
		return err
	}
	s.publisher.Publish(ctx, entity.ActivityTradeStatus,
		fmt.Sprintf("Close of %s did not execute (%s), position reopened", trade.Symbol, detail),
		tradePayload(trade, map[string]interface{}{"detail": detail}))
	return nil
}

func tradeFields(trade *entity.Trade) []zap.Field {
	return []zap.Field{
		logger.IntField("trade_id", int(trade.ID)),
		logger.StringField("symbol", trade.Symbol),
		logger.StringField("status", string(trade.Status)),
	}
}
