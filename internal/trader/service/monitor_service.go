package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/activity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/pkg/logger"

	"go.uber.org/zap"
)

type MonitorService interface {
	Tick(ctx context.Context) (dto.MonitorReport, error)
}

type monitorService struct {
	configSvc ConfigService
	tradeRepo repository.TradeRepository
	broker    repository.BrokerRepository
	mover     *transitioner
	log       *logger.Logger
	now       func() time.Time
}

func NewMonitorService(
	configSvc ConfigService,
	tradeRepo repository.TradeRepository,
	broker repository.BrokerRepository,
	publisher activity.Publisher,
	log *logger.Logger,
) MonitorService {
	return &monitorService{
		configSvc: configSvc,
		tradeRepo: tradeRepo,
		broker:    broker,
		mover:     newTransitioner(tradeRepo, broker, publisher, log),
		log:       log,
		now:       time.Now,
	}
}

// Tick evaluates exit rules for every open trade once. A trade whose price cannot be read
// is skipped for this cycle.
func (s *monitorService) Tick(ctx context.Context) (dto.MonitorReport, error) {
	var report dto.MonitorReport

	cfg, err := s.configSvc.Active(ctx)
	if err != nil {
		return report, err
	}
	trades, err := s.tradeRepo.Get(ctx, dto.GetTradesParam{
		Statuses: []entity.TradeStatus{entity.TradeStatusOpen},
		OrderBy:  "id ASC",
	})
	if err != nil {
		return report, fmt.Errorf("load open trades: %w", err)
	}

	for i := range trades {
		trade := &trades[i]
		report.Checked++

		fields := []zap.Field{
			logger.IntField("trade_id", int(trade.ID)),
			logger.StringField("symbol", trade.Symbol),
			logger.StringField("status", string(trade.Status)),
		}

		price, err := s.broker.GetLatestTrade(ctx, trade.Symbol)
		if err != nil {
			report.Skipped++
			s.log.WarnContext(ctx, "Skipping trade, price unavailable", append(fields, logger.ErrorField(err))...)
			continue
		}

		trade.UpdateWatermarks(price)
		trade.MarkToMarket(price)

		reason, triggered := EvaluateExit(trade, price, cfg, s.now())
		if !triggered {
			if err := s.mover.save(ctx, trade); err != nil && !errors.Is(err, ErrStaleTrade) {
				report.Failed++
				report.Errors = append(report.Errors, err.Error())
				s.log.ErrorContext(ctx, "Failed to store price watermarks", append(fields, logger.ErrorField(err))...)
			}
			continue
		}

		s.log.InfoContext(ctx, "Exit triggered", append(fields,
			logger.StringField("close_reason", string(reason)),
			logger.FloatField("price", price),
		)...)
		if err := s.mover.requestClose(ctx, trade, reason, 0); err != nil {
			if errors.Is(err, ErrStaleTrade) {
				continue
			}
			report.Failed++
			report.Errors = append(report.Errors, err.Error())
			s.log.ErrorContext(ctx, "Failed to close trade", append(fields, logger.ErrorField(err))...)
			continue
		}
		report.Triggered++
		report.TradeIDs = append(report.TradeIDs, trade.ID)
	}

	s.log.DebugContext(ctx, "Monitor tick finished",
		logger.IntField("checked", report.Checked),
		logger.IntField("skipped", report.Skipped),
		logger.IntField("triggered", report.Triggered),
		logger.IntField("failed", report.Failed),
	)
	return report, nil
}

// EvaluateExit returns the first exit rule that fires, in precedence order: stop-loss,
// take-profit, trailing stop, time limit. Watermarks must already include price.
func EvaluateExit(trade *entity.Trade, price float64, cfg entity.TradingConfig, now time.Time) (entity.CloseReason, bool) {
	long := trade.Direction != entity.DirectionSell

	if sl := trade.StopLossPrice; sl != nil {
		if (long && price <= *sl) || (!long && price >= *sl) {
			return entity.CloseReasonStopLoss, true
		}
	}
	if tp := trade.TakeProfitPrice; tp != nil {
		if (long && price >= *tp) || (!long && price <= *tp) {
			return entity.CloseReasonTakeProfit, true
		}
	}
	if trailingStopHit(trade, price, cfg) {
		return entity.CloseReasonTrailingStop, true
	}
	if limit := cfg.MaxHoldDuration(); limit > 0 && trade.OpenedAt != nil && now.Sub(*trade.OpenedAt) > limit {
		return entity.CloseReasonTimeLimit, true
	}
	return "", false
}

// trailingStopHit arms once the favourable watermark is activation% in profit and fires
// when price retreats distance% from that watermark.
func trailingStopHit(trade *entity.Trade, price float64, cfg entity.TradingConfig) bool {
	if !cfg.TrailingStopEnabled || cfg.TrailingStopDistancePercentage <= 0 || trade.EntryPrice <= 0 {
		return false
	}
	mark := trade.FavorableWatermark()
	if mark == nil {
		return false
	}
	sign := trade.Direction.Sign()
	peakProfitPct := (*mark - trade.EntryPrice) / trade.EntryPrice * 100 * sign
	if peakProfitPct <= 0 || peakProfitPct < cfg.TrailingStopActivationProfitPercentage {
		return false
	}
	stop := *mark * (1 - sign*cfg.TrailingStopDistancePercentage/100)
	if sign > 0 {
		return price <= stop
	}
	return price >= stop
}
