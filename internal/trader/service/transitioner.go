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

	"github.com/google/uuid"
)

// transitioner is the single write path for status changes: apply the event in memory,
// then persist it only if nobody moved the trade in the meantime.
type transitioner struct {
	tradeRepo repository.TradeRepository
	broker    repository.BrokerRepository
	publisher activity.Publisher
	log       *logger.Logger
	now       func() time.Time
}

func newTransitioner(
	tradeRepo repository.TradeRepository,
	broker repository.BrokerRepository,
	publisher activity.Publisher,
	log *logger.Logger,
) *transitioner {
	return &transitioner{
		tradeRepo: tradeRepo,
		broker:    broker,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// apply moves trade through ev. It returns ErrStaleTrade when the stored status changed
// since trade was read; trade is only updated in memory when the write succeeded.
func (tr *transitioner) apply(ctx context.Context, trade *entity.Trade, ev lifecycle.Event, opts lifecycle.Options) error {
	from := trade.Status
	next := *trade
	if opts.Now.IsZero() {
		opts.Now = tr.now()
	}
	if err := lifecycle.Transition(&next, ev, opts); err != nil {
		return err
	}
	ok, err := tr.tradeRepo.UpdateIfStatus(ctx, &next, from)
	if err != nil {
		return fmt.Errorf("persist %s for trade %d: %w", ev, trade.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: trade %d left %s", ErrStaleTrade, trade.ID, from)
	}
	*trade = next

	tr.log.InfoContext(ctx, "Trade transitioned",
		logger.IntField("trade_id", int(trade.ID)),
		logger.StringField("symbol", trade.Symbol),
		logger.StringField("event", string(ev)),
		logger.StringField("from", string(from)),
		logger.StringField("status", string(trade.Status)),
	)
	return nil
}

// save persists non-status fields (watermarks, marks) while the trade keeps its status.
func (tr *transitioner) save(ctx context.Context, trade *entity.Trade) error {
	ok, err := tr.tradeRepo.UpdateIfStatus(ctx, trade, trade.Status)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: trade %d", ErrStaleTrade, trade.ID)
	}
	return nil
}

// requestClose claims an open trade for closing and then submits the opposing market
// order. The claim comes first so two closers never both reach the broker. qty <= 0
// closes the recorded quantity.
func (tr *transitioner) requestClose(ctx context.Context, trade *entity.Trade, reason entity.CloseReason, qty float64) error {
	if err := tr.apply(ctx, trade, lifecycle.EventExitTriggered, lifecycle.Options{Reason: reason}); err != nil {
		return err
	}

	if qty <= 0 {
		qty = trade.Quantity
	}
	order, err := tr.broker.SubmitOrder(ctx, dto.OrderRequest{
		Symbol:        trade.Symbol,
		Quantity:      math.Abs(qty),
		Side:          trade.Direction.Opposite(),
		ClientOrderID: uuid.New().String(),
	})
	if err != nil {
		if repository.IsTransient(err) {
			// the order may exist; order sync resolves the outcome
			tr.log.WarnContext(ctx, "Close order submission unconfirmed",
				logger.IntField("trade_id", int(trade.ID)),
				logger.StringField("symbol", trade.Symbol),
				logger.StringField("status", string(trade.Status)),
				logger.ErrorField(err),
			)
			tr.publisher.Publish(ctx, entity.ActivityTradeCloseRequested,
				fmt.Sprintf("Close of %s requested (%s), broker confirmation pending", trade.Symbol, reason),
				tradePayload(trade, map[string]interface{}{"error": err.Error()}))
			return nil
		}

		if revertErr := tr.apply(ctx, trade, lifecycle.EventCloseCancelled, lifecycle.Options{}); revertErr != nil {
			tr.log.ErrorContext(ctx, "Failed to reinstate trade after rejected close",
				logger.IntField("trade_id", int(trade.ID)),
				logger.StringField("symbol", trade.Symbol),
				logger.StringField("status", string(trade.Status)),
				logger.ErrorField(revertErr),
			)
		}
		tr.publisher.Publish(ctx, entity.ActivityTradeFailed,
			fmt.Sprintf("Close order for %s rejected: %v", trade.Symbol, err),
			tradePayload(trade, map[string]interface{}{"close_reason": reason, "error": err.Error()}))
		return fmt.Errorf("submit close order for trade %d: %w", trade.ID, err)
	}

	trade.CloseOrderID = &order.ID
	if err := tr.save(ctx, trade); err != nil {
		tr.log.ErrorContext(ctx, "Failed to store close order id",
			logger.IntField("trade_id", int(trade.ID)),
			logger.StringField("symbol", trade.Symbol),
			logger.StringField("status", string(trade.Status)),
			logger.StringField("close_order_id", order.ID),
			logger.ErrorField(err),
		)
	}

	tr.publisher.Publish(ctx, entity.ActivityTradeCloseRequested,
		fmt.Sprintf("Close of %s %s requested: %s", trade.Direction, trade.Symbol, reason),
		tradePayload(trade, map[string]interface{}{"close_order_id": order.ID}))
	return nil
}

// confirmClose settles a pending_close trade at exitPrice.
func (tr *transitioner) confirmClose(ctx context.Context, trade *entity.Trade, exitPrice float64) error {
	if err := tr.apply(ctx, trade, lifecycle.EventCloseConfirmed, lifecycle.Options{ExitPrice: &exitPrice}); err != nil {
		return err
	}
	tr.publisher.Publish(ctx, entity.ActivityTradeClosed,
		fmt.Sprintf("%s %s closed at %.2f", trade.Direction, trade.Symbol, exitPrice),
		tradePayload(trade, nil))
	return nil
}

func tradePayload(trade *entity.Trade, extra map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"trade_id":    trade.ID,
		"symbol":      trade.Symbol,
		"direction":   trade.Direction,
		"quantity":    trade.Quantity,
		"entry_price": trade.EntryPrice,
		"status":      trade.Status,
	}
	if trade.StopLossPrice != nil {
		payload["stop_loss_price"] = *trade.StopLossPrice
	}
	if trade.TakeProfitPrice != nil {
		payload["take_profit_price"] = *trade.TakeProfitPrice
	}
	if trade.CloseReason != nil {
		payload["close_reason"] = *trade.CloseReason
	}
	if trade.ExitPrice != nil {
		payload["exit_price"] = *trade.ExitPrice
	}
	if trade.RealizedPnL != nil {
		payload["realized_pnl"] = *trade.RealizedPnL
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}
