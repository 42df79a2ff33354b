package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/activity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/lifecycle"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/pkg/logger"

	"gorm.io/gorm"
)

// ReconcileService aligns the position store with the broker. Every step is idempotent:
// a second run without intervening changes reports no corrections.
type ReconcileService interface {
	Dedupe(ctx context.Context, dryRun bool) (dto.ReconcileReport, error)
	ResolveIdentities(ctx context.Context, dryRun bool) (dto.ReconcileReport, error)
	SyncBroker(ctx context.Context, dryRun bool) (dto.ReconcileReport, error)
	Reconcile(ctx context.Context, dryRun bool) (dto.ReconcileReport, error)
}

type reconcileService struct {
	tradeRepo  repository.TradeRepository
	companySvc CompanyService
	broker     repository.BrokerRepository
	publisher  activity.Publisher
	mover      *transitioner
	log        *logger.Logger
	now        func() time.Time
}

func NewReconcileService(
	tradeRepo repository.TradeRepository,
	companySvc CompanyService,
	broker repository.BrokerRepository,
	publisher activity.Publisher,
	log *logger.Logger,
) ReconcileService {
	return &reconcileService{
		tradeRepo:  tradeRepo,
		companySvc: companySvc,
		broker:     broker,
		publisher:  publisher,
		mover:      newTransitioner(tradeRepo, broker, publisher, log),
		log:        log,
		now:        time.Now,
	}
}

// Reconcile runs duplicate collapsing, identity resolution and broker sync in that order.
// Records created from the broker go through identity resolution again so one call
// reaches a fixed point.
func (s *reconcileService) Reconcile(ctx context.Context, dryRun bool) (dto.ReconcileReport, error) {
	report := dto.ReconcileReport{DryRun: dryRun, Corrections: []dto.Correction{}}

	dedupe, err := s.Dedupe(ctx, dryRun)
	report.Merge(dedupe)
	if err != nil {
		return s.abort(ctx, report, "dedupe", err)
	}

	identities, err := s.ResolveIdentities(ctx, dryRun)
	report.Merge(identities)
	if err != nil {
		return s.abort(ctx, report, "resolve identities", err)
	}

	brokerSync, err := s.SyncBroker(ctx, dryRun)
	report.Merge(brokerSync)
	if err != nil {
		// SyncBroker already escalated when local trades were left unverified
		s.log.ErrorContext(ctx, "Reconciliation step failed", logger.StringField("step", "broker sync"), logger.ErrorField(err))
		return report, fmt.Errorf("reconcile broker sync: %w", err)
	}

	if needsIdentityPass(brokerSync) {
		again, err := s.ResolveIdentities(ctx, dryRun)
		report.Merge(again)
		if err != nil {
			return s.abort(ctx, report, "resolve identities", err)
		}
	}

	if len(report.Errors) > 0 {
		s.publisher.Escalate(ctx, "Reconciliation incomplete",
			fmt.Errorf("%d record(s) could not be reconciled", len(report.Errors)),
			fmt.Sprintf("%v", report.Errors))
	}

	s.log.InfoContext(ctx, "Reconciliation finished",
		logger.Field("dry_run", dryRun),
		logger.IntField("corrections", report.Changed()),
		logger.IntField("errors", len(report.Errors)),
	)
	return report, nil
}

// needsIdentityPass reports whether broker sync produced open trades that may lack a
// tracked company: untracked adoptions and pending entries it just opened.
func needsIdentityPass(r dto.ReconcileReport) bool {
	for _, c := range r.Corrections {
		if c.Action == dto.ActionCreatedFromBroker && c.Detail == "untracked" {
			return true
		}
		if c.Action == dto.ActionAdoptedFill {
			return true
		}
	}
	return false
}

func (s *reconcileService) abort(ctx context.Context, report dto.ReconcileReport, step string, err error) (dto.ReconcileReport, error) {
	s.log.ErrorContext(ctx, "Reconciliation step failed",
		logger.StringField("step", step),
		logger.ErrorField(err),
	)
	s.publisher.Escalate(ctx, "Reconciliation "+step, err, fmt.Sprintf("corrections so far: %d", report.Changed()))
	return report, fmt.Errorf("reconcile %s: %w", step, err)
}

// correct records one correction: a log line always, an activity entry when applied.
func (s *reconcileService) correct(ctx context.Context, report *dto.ReconcileReport, c dto.Correction) {
	report.Add(c)
	s.log.InfoContext(ctx, "Reconciliation correction",
		logger.StringField("action", string(c.Action)),
		logger.IntField("trade_id", int(c.TradeID)),
		logger.StringField("symbol", c.Symbol),
		logger.StringField("from", string(c.From)),
		logger.StringField("to", string(c.To)),
		logger.StringField("detail", c.Detail),
		logger.Field("dry_run", report.DryRun),
	)
	if report.DryRun {
		return
	}
	s.publisher.Publish(ctx, entity.ActivityReconciliation,
		fmt.Sprintf("Reconciliation %s on %s (trade %d)", c.Action, c.Symbol, c.TradeID),
		map[string]interface{}{
			"action":   c.Action,
			"trade_id": c.TradeID,
			"symbol":   c.Symbol,
			"from":     c.From,
			"to":       c.To,
			"detail":   c.Detail,
		})
}

func (s *reconcileService) fail(ctx context.Context, report *dto.ReconcileReport, trade *entity.Trade, err error) {
	report.Errors = append(report.Errors, fmt.Sprintf("trade %d (%s): %v", trade.ID, trade.Symbol, err))
	s.log.WarnContext(ctx, "Reconciliation could not correct trade", append(tradeFields(trade), logger.ErrorField(err))...)
}

// Dedupe keeps the newest active trade per instrument and force-closes the rest.
func (s *reconcileService) Dedupe(ctx context.Context, dryRun bool) (dto.ReconcileReport, error) {
	report := dto.ReconcileReport{DryRun: dryRun, Corrections: []dto.Correction{}}

	groups, err := s.tradeRepo.ActiveDuplicates(ctx)
	if err != nil {
		return report, fmt.Errorf("find duplicate active trades: %w", err)
	}
	for _, group := range groups {
		keep := group.Trades[0]
		for i := 1; i < len(group.Trades); i++ {
			s.collapse(ctx, &report, &group.Trades[i], keep.ID)
		}
	}
	return report, nil
}

func (s *reconcileService) collapse(ctx context.Context, report *dto.ReconcileReport, older *entity.Trade, keptID uint) {
	c := dto.Correction{
		Action:  dto.ActionCollapsedDuplicate,
		TradeID: older.ID,
		Symbol:  older.Symbol,
		From:    older.Status,
		To:      entity.TradeStatusClosed,
		Detail:  fmt.Sprintf("kept trade %d", keptID),
	}
	if !report.DryRun {
		err := s.mover.apply(ctx, older, lifecycle.EventForceClose, lifecycle.Options{Reason: entity.CloseReasonDuplicateSync})
		if errors.Is(err, ErrStaleTrade) {
			return
		}
		if err != nil {
			s.fail(ctx, report, older, err)
			return
		}
	}
	s.correct(ctx, report, c)
}

// ResolveIdentities links untracked trades to their company by symbol. Trades that still
// match no company are closed at the broker when active and deleted when terminal.
func (s *reconcileService) ResolveIdentities(ctx context.Context, dryRun bool) (dto.ReconcileReport, error) {
	report := dto.ReconcileReport{DryRun: dryRun, Corrections: []dto.Correction{}}

	trades, err := s.tradeRepo.Get(ctx, dto.GetTradesParam{Untracked: true, OrderBy: "created_at DESC, id DESC"})
	if err != nil {
		return report, fmt.Errorf("load untracked trades: %w", err)
	}

	for i := range trades {
		trade := &trades[i]
		company, err := s.companySvc.Resolve(ctx, trade.Symbol)
		if err != nil {
			s.fail(ctx, &report, trade, err)
			continue
		}
		if company != nil {
			s.link(ctx, &report, trade, company)
			continue
		}

		switch {
		case trade.Status.IsTerminal():
			if !dryRun {
				if err := s.tradeRepo.Delete(ctx, trade.ID); err != nil {
					s.fail(ctx, &report, trade, err)
					continue
				}
			}
			s.correct(ctx, &report, dto.Correction{
				Action:  dto.ActionDeletedOrphan,
				TradeID: trade.ID,
				Symbol:  trade.Symbol,
				From:    trade.Status,
				Detail:  "no tracked company",
			})
		case trade.Status == entity.TradeStatusOpen:
			s.closeOrphan(ctx, &report, trade)
		}
		// pending belongs to order sync, pending_close is already closing
	}
	return report, nil
}

func (s *reconcileService) link(ctx context.Context, report *dto.ReconcileReport, trade *entity.Trade, company *entity.TrackedCompany) {
	c := dto.Correction{
		Action:  dto.ActionLinkedCompany,
		TradeID: trade.ID,
		Symbol:  trade.Symbol,
		From:    trade.Status,
		To:      trade.Status,
		Detail:  fmt.Sprintf("tracked company %d", company.ID),
	}
	if report.DryRun {
		s.correct(ctx, report, c)
		return
	}

	err := s.tradeRepo.UpdateFields(ctx, trade.ID, map[string]interface{}{"tracked_company_id": company.ID})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// the company already holds an active trade: collapse the pair, then link
		existing, ferr := s.tradeRepo.FindActive(ctx, &company.ID, "")
		if ferr != nil || existing == nil {
			s.fail(ctx, report, trade, fmt.Errorf("link to company %d: %w", company.ID, err))
			return
		}
		if existing.CreatedAt.After(trade.CreatedAt) || (existing.CreatedAt.Equal(trade.CreatedAt) && existing.ID > trade.ID) {
			s.collapse(ctx, report, trade, existing.ID)
		} else {
			s.collapse(ctx, report, existing, trade.ID)
		}
		err = s.tradeRepo.UpdateFields(ctx, trade.ID, map[string]interface{}{"tracked_company_id": company.ID})
	}
	if err != nil {
		s.fail(ctx, report, trade, err)
		return
	}
	s.correct(ctx, report, c)
}

// closeOrphan closes an open trade nobody tracks: at the broker when a live position
// exists, locally otherwise.
func (s *reconcileService) closeOrphan(ctx context.Context, report *dto.ReconcileReport, trade *entity.Trade) {
	position, err := s.broker.GetPosition(ctx, trade.Symbol)
	if err != nil && !repository.IsNotFound(err) {
		s.fail(ctx, report, trade, err)
		return
	}

	if position == nil || position.Quantity == 0 {
		s.markClosed(ctx, report, trade, dto.ActionMarkedClosed, "no live broker quantity")
		return
	}

	c := dto.Correction{
		Action:  dto.ActionBrokerClose,
		TradeID: trade.ID,
		Symbol:  trade.Symbol,
		From:    trade.Status,
		To:      entity.TradeStatusPendingClose,
		Detail:  fmt.Sprintf("closing live quantity %.4f", math.Abs(position.Quantity)),
	}
	if !report.DryRun {
		err := s.mover.requestClose(ctx, trade, entity.CloseReasonMarketClose, math.Abs(position.Quantity))
		if errors.Is(err, ErrStaleTrade) {
			return
		}
		if err != nil {
			s.fail(ctx, report, trade, err)
			return
		}
	}
	s.correct(ctx, report, c)
}

// markClosed force-closes a trade with market_close at the best known exit price.
func (s *reconcileService) markClosed(ctx context.Context, report *dto.ReconcileReport, trade *entity.Trade, action dto.ReconcileAction, detail string) {
	c := dto.Correction{
		Action:  action,
		TradeID: trade.ID,
		Symbol:  trade.Symbol,
		From:    trade.Status,
		To:      entity.TradeStatusClosed,
		Detail:  detail,
	}
	if !report.DryRun {
		opts := lifecycle.Options{Reason: entity.CloseReasonMarketClose, ExitPrice: s.exitPrice(ctx, trade)}
		err := s.mover.apply(ctx, trade, lifecycle.EventForceClose, opts)
		if errors.Is(err, ErrStaleTrade) {
			return
		}
		if err != nil {
			s.fail(ctx, report, trade, err)
			return
		}
		s.publisher.Publish(ctx, entity.ActivityTradeClosed,
			fmt.Sprintf("%s %s closed by reconciliation: %s", trade.Direction, trade.Symbol, detail),
			tradePayload(trade, nil))
	}
	s.correct(ctx, report, c)
}

// exitPrice prefers the fill of a known close order, then the latest trade price.
func (s *reconcileService) exitPrice(ctx context.Context, trade *entity.Trade) *float64 {
	if trade.CloseOrderID != nil {
		order, err := s.broker.GetOrder(ctx, *trade.CloseOrderID)
		if err == nil && order.FilledAvgPrice != nil && order.FilledQuantity > 0 {
			return order.FilledAvgPrice
		}
	}
	price, err := s.broker.GetLatestTrade(ctx, trade.Symbol)
	if err != nil || price <= 0 {
		return nil
	}
	return &price
}

// SyncBroker makes the store agree with the broker's open positions: every live
// position gets an active record, every open record without a live position is closed.
func (s *reconcileService) SyncBroker(ctx context.Context, dryRun bool) (dto.ReconcileReport, error) {
	report := dto.ReconcileReport{DryRun: dryRun, Corrections: []dto.Correction{}}

	active, err := s.tradeRepo.Get(ctx, dto.GetTradesParam{
		Statuses: entity.ActiveTradeStatuses,
		OrderBy:  "created_at DESC, id DESC",
	})
	if err != nil {
		return report, fmt.Errorf("load active trades: %w", err)
	}

	positions, err := s.broker.ListPositions(ctx)
	if err != nil {
		if len(active) > 0 {
			s.publisher.Escalate(ctx, "Broker sync blocked", err,
				fmt.Sprintf("%d local active trade(s) cannot be verified", len(active)))
		}
		return report, fmt.Errorf("list broker positions: %w", err)
	}

	bySymbol := map[string][]*entity.Trade{}
	for i := range active {
		t := &active[i]
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
	}

	live := map[string]bool{}
	for _, position := range positions {
		symbol := entity.NormalizeSymbol(position.Symbol)
		if position.Quantity == 0 {
			continue
		}
		live[symbol] = true

		local := bySymbol[symbol]
		if len(local) == 0 {
			s.createFromBroker(ctx, &report, position)
			continue
		}
		for _, trade := range local {
			if trade.Status == entity.TradeStatusPending {
				s.adoptFill(ctx, &report, trade, position)
			}
		}
	}

	for i := range active {
		trade := &active[i]
		if trade.Status == entity.TradeStatusPending || live[trade.Symbol] {
			continue
		}
		s.markClosed(ctx, &report, trade, dto.ActionClosedMissing, "no live broker position")
	}
	return report, nil
}

func (s *reconcileService) createFromBroker(ctx context.Context, report *dto.ReconcileReport, position dto.BrokerPosition) {
	symbol := entity.NormalizeSymbol(position.Symbol)
	company, err := s.companySvc.Resolve(ctx, symbol)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", symbol, err))
		return
	}

	now := s.now()
	trade := &entity.Trade{
		Symbol:     symbol,
		Direction:  position.Direction(),
		Quantity:   math.Abs(position.Quantity),
		EntryPrice: position.AvgEntryPrice,
		Status:     entity.TradeStatusOpen,
		OpenedAt:   &now,
	}
	detail := "untracked"
	if company != nil {
		trade.TrackedCompanyID = &company.ID
		detail = fmt.Sprintf("tracked company %d", company.ID)
	}
	if position.CurrentPrice != nil {
		trade.UpdateWatermarks(*position.CurrentPrice)
		trade.MarkToMarket(*position.CurrentPrice)
	}

	if !report.DryRun {
		created, _, err := s.tradeRepo.CreateActive(ctx, trade)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", symbol, err))
			return
		}
		if !created {
			// a signal or another reconciler got there first
			return
		}
		s.publisher.Publish(ctx, entity.ActivityTradeOpened,
			fmt.Sprintf("%s %s adopted from broker at %.2f", trade.Direction, trade.Symbol, trade.EntryPrice),
			tradePayload(trade, nil))
	}
	s.correct(ctx, report, dto.Correction{
		Action:  dto.ActionCreatedFromBroker,
		TradeID: trade.ID,
		Symbol:  symbol,
		To:      entity.TradeStatusOpen,
		Detail:  detail,
	})
}

// adoptFill opens a pending trade the broker already holds a position for.
func (s *reconcileService) adoptFill(ctx context.Context, report *dto.ReconcileReport, trade *entity.Trade, position dto.BrokerPosition) {
	if position.Direction() != trade.Direction {
		return
	}
	c := dto.Correction{
		Action:  dto.ActionAdoptedFill,
		TradeID: trade.ID,
		Symbol:  trade.Symbol,
		From:    trade.Status,
		To:      entity.TradeStatusOpen,
		Detail:  fmt.Sprintf("broker avg entry %.4f", position.AvgEntryPrice),
	}
	if !report.DryRun {
		avg := position.AvgEntryPrice
		trade.Quantity = math.Abs(position.Quantity)
		err := s.mover.apply(ctx, trade, lifecycle.EventFillConfirmed, lifecycle.Options{FillPrice: &avg})
		if errors.Is(err, ErrStaleTrade) {
			return
		}
		if err != nil {
			s.fail(ctx, report, trade, err)
			return
		}
	}
	s.correct(ctx, report, c)
}
