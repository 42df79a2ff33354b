package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/activity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/lifecycle"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/internal/trader/risk"
	"golang-news-trader/pkg/logger"
)

const summaryTopSymbols = 5

// PositionService exposes the manual operations on individual trades.
type PositionService interface {
	List(ctx context.Context, req dto.ListTradesRequest) ([]dto.TradeResponse, error)
	Get(ctx context.Context, id uint) (*dto.TradeResponse, error)
	Close(ctx context.Context, id uint, reason entity.CloseReason) (*entity.Trade, error)
	Cancel(ctx context.Context, id uint) (*entity.Trade, error)
	CancelClose(ctx context.Context, id uint) (*entity.Trade, error)
	CloseAll(ctx context.Context) (dto.BulkCloseResponse, error)
	Adjust(ctx context.Context, id uint, confidence float64) (*entity.Trade, error)
	Summary(ctx context.Context) (dto.TradeSummary, error)
}

// BrokerSyncer brings local records in line with the broker's open positions.
type BrokerSyncer interface {
	SyncBroker(ctx context.Context, dryRun bool) (dto.ReconcileReport, error)
}

type positionService struct {
	configSvc ConfigService
	tradeRepo repository.TradeRepository
	broker    repository.BrokerRepository
	syncer    BrokerSyncer
	publisher activity.Publisher
	mover     *transitioner
	strict    bool
	log       *logger.Logger
	now       func() time.Time
}

// NewPositionService builds the manual operations. strict turns contract violations such
// as a second adjustment into panics.
func NewPositionService(
	configSvc ConfigService,
	tradeRepo repository.TradeRepository,
	broker repository.BrokerRepository,
	syncer BrokerSyncer,
	publisher activity.Publisher,
	strict bool,
	log *logger.Logger,
) PositionService {
	return &positionService{
		configSvc: configSvc,
		tradeRepo: tradeRepo,
		broker:    broker,
		syncer:    syncer,
		publisher: publisher,
		mover:     newTransitioner(tradeRepo, broker, publisher, log),
		strict:    strict,
		log:       log,
		now:       time.Now,
	}
}

func (s *positionService) List(ctx context.Context, req dto.ListTradesRequest) ([]dto.TradeResponse, error) {
	param := dto.GetTradesParam{
		Preload: true,
		Limit:   req.Limit,
		Offset:  req.Offset,
	}
	if param.Limit == 0 {
		param.Limit = 100
	}
	if req.Status != "" {
		param.Statuses = []entity.TradeStatus{entity.TradeStatus(req.Status)}
	}
	if req.Symbol != "" {
		param.Symbols = []string{req.Symbol}
	}

	trades, err := s.tradeRepo.Get(ctx, param)
	if err != nil {
		return nil, err
	}
	now := s.now()
	result := make([]dto.TradeResponse, 0, len(trades))
	for _, t := range trades {
		result = append(result, toTradeResponse(t, now))
	}
	return result, nil
}

func (s *positionService) Get(ctx context.Context, id uint) (*dto.TradeResponse, error) {
	trade, err := s.tradeRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toTradeResponse(*trade, s.now())
	return &resp, nil
}

func toTradeResponse(t entity.Trade, now time.Time) dto.TradeResponse {
	return dto.TradeResponse{
		Trade:           t,
		CurrentPnL:      t.CurrentPnL(),
		DurationMinutes: t.DurationMinutes(now),
	}
}

func (s *positionService) Close(ctx context.Context, id uint, reason entity.CloseReason) (*entity.Trade, error) {
	trade, err := s.tradeRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trade.Status != entity.TradeStatusOpen {
		return trade, fmt.Errorf("%w: close on %s", ErrInvalidStatus, trade.Status)
	}
	if reason == "" {
		reason = entity.CloseReasonManual
	}
	if err := s.mover.requestClose(ctx, trade, reason, 0); err != nil {
		return trade, err
	}
	return trade, nil
}

// Cancel withdraws the entry order of a pending trade. The trade is only cancelled
// locally once the broker accepted the cancellation.
func (s *positionService) Cancel(ctx context.Context, id uint) (*entity.Trade, error) {
	trade, err := s.tradeRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trade.Status != entity.TradeStatusPending {
		return trade, fmt.Errorf("%w: cancel on %s", ErrInvalidStatus, trade.Status)
	}

	orderIDs := []string{}
	if trade.AlpacaOrderID != nil {
		orderIDs = append(orderIDs, *trade.AlpacaOrderID)
	} else {
		orders, err := s.openOrders(ctx, trade.Symbol, trade.Direction)
		if err != nil {
			return trade, err
		}
		for _, o := range orders {
			orderIDs = append(orderIDs, o.ID)
		}
	}
	for _, orderID := range orderIDs {
		if err := s.broker.CancelOrder(ctx, orderID); err != nil && !repository.IsNotFound(err) {
			return trade, fmt.Errorf("cancel order %s: %w", orderID, err)
		}
	}

	if err := s.mover.apply(ctx, trade, lifecycle.EventManualCancel, lifecycle.Options{}); err != nil {
		return trade, err
	}
	s.publisher.Publish(ctx, entity.ActivityTradeCancelled,
		fmt.Sprintf("Pending %s %s cancelled", trade.Direction, trade.Symbol),
		tradePayload(trade, map[string]interface{}{"order_ids": orderIDs}))
	return trade, nil
}

// CancelClose withdraws an outstanding close order and returns the trade to open with
// its stop-loss and take-profit restored. When no close order can be cancelled the
// trade stays pending_close.
func (s *positionService) CancelClose(ctx context.Context, id uint) (*entity.Trade, error) {
	trade, err := s.tradeRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trade.Status != entity.TradeStatusPendingClose {
		return trade, fmt.Errorf("%w: cancel-close on %s", ErrInvalidStatus, trade.Status)
	}

	orderID := ""
	if trade.CloseOrderID != nil {
		orderID = *trade.CloseOrderID
	} else {
		orders, err := s.openOrders(ctx, trade.Symbol, trade.Direction.Opposite())
		if err != nil {
			return trade, err
		}
		if len(orders) > 0 {
			orderID = orders[0].ID
		}
	}
	if orderID == "" {
		return trade, ErrNoCloseOrder
	}

	if err := s.broker.CancelOrder(ctx, orderID); err != nil {
		s.log.WarnContext(ctx, "Failed to cancel close order",
			logger.IntField("trade_id", int(trade.ID)),
			logger.StringField("symbol", trade.Symbol),
			logger.StringField("close_order_id", orderID),
			logger.ErrorField(err),
		)
		if repository.IsNotFound(err) {
			return trade, fmt.Errorf("%w: %v", ErrNoCloseOrder, err)
		}
		return trade, fmt.Errorf("cancel close order %s: %w", orderID, err)
	}

	if err := s.mover.apply(ctx, trade, lifecycle.EventCloseCancelled, lifecycle.Options{}); err != nil {
		return trade, err
	}
	s.publisher.Publish(ctx, entity.ActivityTradeStatus,
		fmt.Sprintf("Close of %s cancelled, position reopened", trade.Symbol),
		tradePayload(trade, map[string]interface{}{"cancelled_order_id": orderID}))
	return trade, nil
}

func (s *positionService) openOrders(ctx context.Context, symbol string, side entity.Direction) ([]dto.BrokerOrder, error) {
	orders, err := s.broker.ListOpenOrders(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("list open orders for %s: %w", symbol, err)
	}
	matched := make([]dto.BrokerOrder, 0, len(orders))
	for _, o := range orders {
		if o.Side == side {
			matched = append(matched, o)
		}
	}
	return matched, nil
}

// CloseAll first syncs with the broker so stale records are not closed twice, then
// requests a close for every open trade.
func (s *positionService) CloseAll(ctx context.Context) (dto.BulkCloseResponse, error) {
	resp := dto.BulkCloseResponse{Requested: []uint{}}

	if _, err := s.syncer.SyncBroker(ctx, false); err != nil {
		return resp, fmt.Errorf("sync broker before close-all: %w", err)
	}

	trades, err := s.tradeRepo.Get(ctx, dto.GetTradesParam{
		Statuses: []entity.TradeStatus{entity.TradeStatusOpen},
		OrderBy:  "id ASC",
	})
	if err != nil {
		return resp, err
	}
	for i := range trades {
		trade := &trades[i]
		if err := s.mover.requestClose(ctx, trade, entity.CloseReasonManual, 0); err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("trade %d: %v", trade.ID, err))
			continue
		}
		resp.Requested = append(resp.Requested, trade.ID)
	}

	s.log.InfoContext(ctx, "Close-all requested",
		logger.IntField("requested", len(resp.Requested)),
		logger.IntField("failed", len(resp.Errors)),
	)
	return resp, nil
}

// Adjust applies the one-shot take-profit/stop-loss adjustment for a supporting signal.
// A second adjustment is a contract violation: it panics in strict mode and returns
// ErrAlreadyAdjusted otherwise.
func (s *positionService) Adjust(ctx context.Context, id uint, confidence float64) (*entity.Trade, error) {
	cfg, err := s.configSvc.Active(ctx)
	if err != nil {
		return nil, err
	}
	trade, err := s.tradeRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trade.Status != entity.TradeStatusOpen {
		return trade, fmt.Errorf("%w: adjust on %s", ErrInvalidStatus, trade.Status)
	}
	if trade.HasBeenAdjusted {
		if s.strict {
			panic(fmt.Sprintf("trade %d adjusted twice", trade.ID))
		}
		s.log.WarnContext(ctx, "Ignoring second adjustment",
			logger.IntField("trade_id", int(trade.ID)),
			logger.StringField("symbol", trade.Symbol),
		)
		return trade, ErrAlreadyAdjusted
	}
	return adjustTrade(ctx, s.tradeRepo, s.publisher, s.log, trade, confidence, cfg)
}

// adjustTrade applies the damped level adjustment. The storage write only succeeds on an
// open trade that was never adjusted, so a concurrent adjuster gets ErrAlreadyAdjusted.
func adjustTrade(
	ctx context.Context,
	tradeRepo repository.TradeRepository,
	publisher activity.Publisher,
	log *logger.Logger,
	trade *entity.Trade,
	confidence float64,
	cfg entity.TradingConfig,
) (*entity.Trade, error) {
	if trade.HasBeenAdjusted {
		return trade, ErrAlreadyAdjusted
	}
	if !risk.CanAdjust(trade, confidence, cfg) {
		return trade, ErrAdjustRefused
	}

	adjusted := *trade
	adj := risk.AdjustLevels(&adjusted, confidence, cfg)
	risk.ApplyAdjustment(&adjusted, adj)

	ok, err := tradeRepo.SaveAdjustment(ctx, &adjusted)
	if err != nil {
		return trade, fmt.Errorf("save adjustment for trade %d: %w", trade.ID, err)
	}
	if !ok {
		return trade, ErrAlreadyAdjusted
	}

	log.InfoContext(ctx, "Position adjusted",
		logger.IntField("trade_id", int(adjusted.ID)),
		logger.StringField("symbol", adjusted.Symbol),
		logger.FloatField("factor", adj.Factor),
	)
	publisher.Publish(ctx, entity.ActivityPositionAdjusted,
		fmt.Sprintf("Adjusted %s levels on supporting signal (confidence %.2f)", adjusted.Symbol, confidence),
		tradePayload(&adjusted, map[string]interface{}{
			"factor":                     adj.Factor,
			"original_stop_loss_price":   adjusted.OriginalStopLossPrice,
			"original_take_profit_price": adjusted.OriginalTakeProfitPrice,
		}))
	return &adjusted, nil
}

func (s *positionService) Summary(ctx context.Context) (dto.TradeSummary, error) {
	return s.tradeRepo.Summary(ctx, summaryTopSymbols)
}

// IsClientError reports errors caused by the request rather than the engine.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrAlreadyAdjusted) ||
		errors.Is(err, ErrAdjustRefused) ||
		errors.Is(err, ErrNoCloseOrder) ||
		errors.Is(err, ErrStaleTrade) ||
		errors.Is(err, ErrInvalidSignal) ||
		errors.Is(err, ErrInvalidCSVHeader)
}
