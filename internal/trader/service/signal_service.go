package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/activity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/lifecycle"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/internal/trader/risk"
	"golang-news-trader/pkg/logger"
	"golang-news-trader/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// SignalService turns classified signals into position changes.
type SignalService interface {
	HandleSignal(ctx context.Context, signal dto.Signal) (dto.SignalResult, error)
}

type signalService struct {
	configSvc    ConfigService
	companySvc   CompanyService
	analysisRepo repository.AnalysisRepository
	tradeRepo    repository.TradeRepository
	broker       repository.BrokerRepository
	publisher    activity.Publisher
	mover        *transitioner
	validate     *validator.Validate
	riskBudget   float64
	log          *logger.Logger
	now          func() time.Time
}

func NewSignalService(
	configSvc ConfigService,
	companySvc CompanyService,
	analysisRepo repository.AnalysisRepository,
	tradeRepo repository.TradeRepository,
	broker repository.BrokerRepository,
	publisher activity.Publisher,
	riskBudget float64,
	log *logger.Logger,
) SignalService {
	return &signalService{
		configSvc:    configSvc,
		companySvc:   companySvc,
		analysisRepo: analysisRepo,
		tradeRepo:    tradeRepo,
		broker:       broker,
		publisher:    publisher,
		mover:        newTransitioner(tradeRepo, broker, publisher, log),
		validate:     validator.New(),
		riskBudget:   riskBudget,
		log:          log,
		now:          time.Now,
	}
}

// HandleSignal evaluates one signal against the active policy. A supporting signal on an
// open position may adjust it once, an opposing one closes it. Otherwise an accepted
// signal reserves a pending trade before the order is sent, so concurrent signals for
// the same instrument cannot both reach the broker.
func (s *signalService) HandleSignal(ctx context.Context, signal dto.Signal) (dto.SignalResult, error) {
	signal.Symbol = entity.NormalizeSymbol(signal.Symbol)
	signal.Direction = entity.Direction(strings.ToLower(strings.TrimSpace(string(signal.Direction))))
	if err := s.validate.StructCtx(ctx, signal); err != nil {
		return dto.SignalResult{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}

	fields := []zap.Field{
		logger.StringField("symbol", signal.Symbol),
		logger.StringField("direction", string(signal.Direction)),
		logger.FloatField("confidence", signal.Confidence),
	}

	analysis, err := s.recordAnalysis(ctx, signal)
	if err != nil {
		return dto.SignalResult{}, err
	}
	result := dto.SignalResult{AnalysisID: analysis.ID}

	company, err := s.companySvc.Resolve(ctx, signal.Symbol)
	if err != nil {
		return result, fmt.Errorf("resolve company %s: %w", signal.Symbol, err)
	}
	var companyID *uint
	if company != nil {
		companyID = &company.ID
	}

	cfg, err := s.configSvc.Active(ctx)
	if err != nil {
		return result, err
	}

	active, err := s.tradeRepo.FindActive(ctx, companyID, signal.Symbol)
	if err != nil {
		return result, fmt.Errorf("find active trade for %s: %w", signal.Symbol, err)
	}

	in := risk.EvaluationInput{
		Signal:            signal,
		Config:            cfg,
		Controls:          s.configSvc.Controls(cfg),
		HasActivePosition: active != nil,
		RiskBudget:        s.riskBudget,
	}

	// gates first with an empty portfolio, then again once the limits are loaded
	reason, ok := risk.Screen(in)
	if !ok {
		if reason == dto.RejectDuplicateActivePosition {
			return s.handleExisting(ctx, result, signal, active, cfg)
		}
		return s.reject(ctx, result, signal, reason, fields), nil
	}

	if in.Portfolio, err = s.portfolio(ctx); err != nil {
		return result, err
	}
	if reason, ok := risk.Screen(in); !ok {
		return s.reject(ctx, result, signal, reason, fields), nil
	}

	if cfg.MarketHoursOnly {
		clock, err := s.broker.GetClock(ctx)
		if err != nil {
			return result, fmt.Errorf("get market clock: %w", err)
		}
		in.MarketOpen = clock.IsOpen
	} else {
		in.MarketOpen = true
	}
	if risk.SizerFor(cfg.PositionSizingMethod).NeedsEquity() {
		account, err := s.broker.GetAccount(ctx)
		if err != nil {
			return result, fmt.Errorf("get account: %w", err)
		}
		in.Equity = account.Equity
	}
	price, err := s.broker.GetLatestTrade(ctx, signal.Symbol)
	if err != nil {
		return result, fmt.Errorf("get latest price for %s: %w", signal.Symbol, err)
	}
	in.EntryPrice = price

	decision := risk.Evaluate(in)
	if !decision.Accepted {
		return s.reject(ctx, result, signal, decision.Reason, fields), nil
	}
	return s.open(ctx, result, signal, analysis, companyID, decision, price, fields)
}

func (s *signalService) recordAnalysis(ctx context.Context, signal dto.Signal) (*entity.Analysis, error) {
	raw, err := json.Marshal(signal)
	if err != nil {
		return nil, err
	}
	analysis := &entity.Analysis{
		Symbol:     signal.Symbol,
		Direction:  signal.Direction,
		Confidence: signal.Confidence,
		Reason:     signal.Reason,
		Raw:        datatypes.JSON(raw),
	}
	if err := s.analysisRepo.Create(ctx, analysis); err != nil {
		return nil, fmt.Errorf("store analysis: %w", err)
	}
	return analysis, nil
}

// portfolio reads the limits straight from the store so concurrent evaluations see each
// other's reservations.
func (s *signalService) portfolio(ctx context.Context) (dto.PortfolioSnapshot, error) {
	var snap dto.PortfolioSnapshot
	var err error

	if snap.OpenTradeCount, err = s.tradeRepo.CountActive(ctx); err != nil {
		return snap, fmt.Errorf("count active trades: %w", err)
	}
	if snap.TotalOpenExposure, err = s.tradeRepo.SumActiveExposure(ctx); err != nil {
		return snap, fmt.Errorf("sum open exposure: %w", err)
	}
	if snap.DailyTradeCount, err = s.tradeRepo.CountCreatedSince(ctx, utils.StartOfDayET(s.now())); err != nil {
		return snap, fmt.Errorf("count daily trades: %w", err)
	}
	return snap, nil
}

// handleExisting decides what a tradable signal does to the instrument's active trade.
func (s *signalService) handleExisting(
	ctx context.Context,
	result dto.SignalResult,
	signal dto.Signal,
	active *entity.Trade,
	cfg entity.TradingConfig,
) (dto.SignalResult, error) {
	result.TradeID = active.ID
	fields := []zap.Field{
		logger.IntField("trade_id", int(active.ID)),
		logger.StringField("symbol", active.Symbol),
		logger.StringField("status", string(active.Status)),
		logger.StringField("direction", string(signal.Direction)),
	}

	if active.Status != entity.TradeStatusOpen {
		return s.reject(ctx, result, signal, dto.RejectDuplicateActivePosition, fields), nil
	}

	if signal.Direction != active.Direction {
		if err := s.mover.requestClose(ctx, active, entity.CloseReasonMarketConsensusLost, 0); err != nil {
			if errors.Is(err, ErrStaleTrade) {
				return s.reject(ctx, result, signal, dto.RejectDuplicateActivePosition, fields), nil
			}
			return result, err
		}
		result.Outcome = dto.SignalConsensusLost
		result.Message = fmt.Sprintf("opposing %s signal closes %s %s", signal.Direction, active.Direction, active.Symbol)
		return result, nil
	}

	if !risk.CanAdjust(active, signal.Confidence, cfg) {
		return s.reject(ctx, result, signal, dto.RejectDuplicateActivePosition, fields), nil
	}
	if _, err := adjustTrade(ctx, s.tradeRepo, s.publisher, s.log, active, signal.Confidence, cfg); err != nil {
		if errors.Is(err, ErrAlreadyAdjusted) || errors.Is(err, ErrAdjustRefused) {
			return s.reject(ctx, result, signal, dto.RejectDuplicateActivePosition, fields), nil
		}
		return result, err
	}
	result.Outcome = dto.SignalAdjusted
	result.Message = fmt.Sprintf("supporting signal adjusted %s levels", active.Symbol)
	return result, nil
}

func (s *signalService) reject(
	ctx context.Context,
	result dto.SignalResult,
	signal dto.Signal,
	reason dto.RejectReason,
	fields []zap.Field,
) dto.SignalResult {
	result.RejectReason = reason
	if reason == dto.RejectNoActionDirection {
		result.Outcome = dto.SignalNoActionNeeded
		s.log.DebugContext(ctx, "Signal needs no action", fields...)
		return result
	}

	result.Outcome = dto.SignalRejected
	result.Message = fmt.Sprintf("%s %s rejected: %s", signal.Direction, signal.Symbol, reason)
	s.log.InfoContext(ctx, "Signal rejected", append(fields, logger.StringField("reason", string(reason)))...)
	s.publisher.Publish(ctx, entity.ActivityTradeRejected, result.Message, map[string]interface{}{
		"symbol":      signal.Symbol,
		"direction":   signal.Direction,
		"confidence":  signal.Confidence,
		"reason":      reason,
		"analysis_id": result.AnalysisID,
		"trade_id":    result.TradeID,
	})
	return result
}

// open reserves the trade, then submits the entry order. A definitive rejection fails
// the reservation; an unconfirmed submission leaves it pending for order sync.
func (s *signalService) open(
	ctx context.Context,
	result dto.SignalResult,
	signal dto.Signal,
	analysis *entity.Analysis,
	companyID *uint,
	decision dto.Decision,
	price float64,
	fields []zap.Field,
) (dto.SignalResult, error) {
	trade := &entity.Trade{
		AnalysisID:       &analysis.ID,
		TrackedCompanyID: companyID,
		Symbol:           signal.Symbol,
		Direction:        signal.Direction,
		Quantity:         decision.Quantity,
		EntryPrice:       price,
		Status:           entity.TradeStatusPending,
	}
	trade.InitLevels(decision.StopLossPct, decision.TakeProfitPct)

	created, existing, err := s.tradeRepo.CreateActive(ctx, trade)
	if err != nil {
		return result, fmt.Errorf("reserve trade for %s: %w", signal.Symbol, err)
	}
	if !created {
		result.TradeID = existing.ID
		return s.reject(ctx, result, signal, dto.RejectDuplicateActivePosition, fields), nil
	}
	result.TradeID = trade.ID
	fields = append(fields, logger.IntField("trade_id", int(trade.ID)))

	order, err := s.broker.SubmitOrder(ctx, dto.OrderRequest{
		Symbol:        trade.Symbol,
		Quantity:      trade.Quantity,
		Side:          trade.Direction,
		ClientOrderID: uuid.New().String(),
	})
	if err != nil {
		if repository.IsTransient(err) {
			s.log.WarnContext(ctx, "Entry order submission unconfirmed", append(fields, logger.ErrorField(err))...)
			result.Outcome = dto.SignalAccepted
			result.Message = fmt.Sprintf("%s %s reserved, broker confirmation pending", trade.Direction, trade.Symbol)
			s.publisher.Publish(ctx, entity.ActivityTradeExecuted, result.Message,
				tradePayload(trade, map[string]interface{}{"error": err.Error()}))
			return result, nil
		}

		s.log.ErrorContext(ctx, "Entry order rejected", append(fields, logger.ErrorField(err))...)
		if ferr := s.mover.apply(ctx, trade, lifecycle.EventBrokerRejected, lifecycle.Options{}); ferr != nil {
			s.log.ErrorContext(ctx, "Failed to mark trade failed", append(fields, logger.ErrorField(ferr))...)
		}
		result.Outcome = dto.SignalSubmitFailed
		result.Message = fmt.Sprintf("%s %s order rejected: %v", trade.Direction, trade.Symbol, err)
		s.publisher.Publish(ctx, entity.ActivityTradeFailed, result.Message,
			tradePayload(trade, map[string]interface{}{"error": err.Error()}))
		return result, nil
	}

	trade.AlpacaOrderID = &order.ID
	if err := s.mover.save(ctx, trade); err != nil {
		// order sync can still match the order by symbol and side
		s.log.ErrorContext(ctx, "Failed to store broker order id",
			append(fields, logger.StringField("order_id", order.ID), logger.ErrorField(err))...)
	}

	result.Outcome = dto.SignalAccepted
	result.Message = fmt.Sprintf("%s %.0f %s at ~%.2f", trade.Direction, trade.Quantity, trade.Symbol, price)
	s.publisher.Publish(ctx, entity.ActivityTradeExecuted, result.Message,
		tradePayload(trade, map[string]interface{}{"order_id": order.ID, "confidence": signal.Confidence}))

	if order.Status == dto.OrderStatusFilled {
		if err := s.mover.apply(ctx, trade, lifecycle.EventFillConfirmed, lifecycle.Options{FillPrice: order.FilledAvgPrice}); err != nil {
			s.log.WarnContext(ctx, "Fill not recorded, order sync will retry", append(fields, logger.ErrorField(err))...)
			return result, nil
		}
		s.publisher.Publish(ctx, entity.ActivityTradeOpened,
			fmt.Sprintf("%s %s opened at %.2f", trade.Direction, trade.Symbol, trade.EntryPrice),
			tradePayload(trade, nil))
	}
	return result, nil
}
