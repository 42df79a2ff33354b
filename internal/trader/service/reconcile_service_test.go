package service

import (
	"errors"
	"testing"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actions(report dto.ReconcileReport) map[dto.ReconcileAction]int {
	result := map[dto.ReconcileAction]int{}
	for _, c := range report.Corrections {
		result[c.Action]++
	}
	return result
}

// storeTrade inserts a trade with an explicit creation time.
func (e *testEnv) storeTrade(t *testing.T, companyID *uint, symbol string, status entity.TradeStatus, createdAt time.Time) *entity.Trade {
	t.Helper()
	trade := &entity.Trade{
		TrackedCompanyID: companyID,
		Symbol:           symbol,
		Direction:        entity.DirectionBuy,
		Quantity:         10,
		EntryPrice:       100,
		Status:           status,
		CreatedAt:        createdAt,
	}
	if status != entity.TradeStatusPending {
		trade.OpenedAt = &createdAt
	}
	if status == entity.TradeStatusClosed {
		trade.ClosedAt = &createdAt
	}
	trade.InitLevels(2, 10)
	require.NoError(t, e.trades.Create(e.ctx, trade))
	return trade
}

func TestReconcileCollapsesDuplicates(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, env.db.Exec("DROP INDEX ux_trades_active_company").Error)
	aapl := env.company(t, "AAPL")
	older := env.storeTrade(t, &aapl.ID, "AAPL", entity.TradeStatusOpen, time.Now().Add(-2*time.Hour))
	newer := env.storeTrade(t, &aapl.ID, "AAPL", entity.TradeStatusOpen, time.Now().Add(-time.Hour))
	env.broker.setPosition("AAPL", 10, 100)

	report, err := env.reconciler.Reconcile(env.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, map[dto.ReconcileAction]int{dto.ActionCollapsedDuplicate: 1}, actions(report))

	closed := env.reload(t, older.ID)
	assert.Equal(t, entity.TradeStatusClosed, closed.Status)
	require.NotNil(t, closed.CloseReason)
	assert.Equal(t, entity.CloseReasonDuplicateSync, *closed.CloseReason)
	assert.NotNil(t, closed.ClosedAt)
	assert.Equal(t, entity.TradeStatusOpen, env.reload(t, newer.ID).Status)
	assert.Equal(t, 1, env.publisher.count(entity.ActivityReconciliation))
	assert.Zero(t, env.broker.submitCount())

	again, err := env.reconciler.Reconcile(env.ctx, false)
	require.NoError(t, err)
	assert.Zero(t, again.Changed())
}

func TestReconcileCreatesMissingBrokerPosition(t *testing.T) {
	env := newTestEnv(t, true)
	tsla := env.company(t, "TSLA")
	env.broker.setPosition("TSLA", -5, 250)

	report, err := env.reconciler.Reconcile(env.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, map[dto.ReconcileAction]int{dto.ActionCreatedFromBroker: 1}, actions(report))

	trades := activeTrades(t, env)
	require.Len(t, trades, 1)
	got := trades[0]
	assert.Equal(t, "TSLA", got.Symbol)
	assert.Equal(t, entity.DirectionSell, got.Direction)
	assert.Equal(t, entity.TradeStatusOpen, got.Status)
	assert.InDelta(t, 5.0, got.Quantity, 1e-9)
	assert.InDelta(t, 250.0, got.EntryPrice, 1e-9)
	require.NotNil(t, got.TrackedCompanyID)
	assert.Equal(t, tsla.ID, *got.TrackedCompanyID)
	assert.NotNil(t, got.OpenedAt)

	again, err := env.reconciler.Reconcile(env.ctx, false)
	require.NoError(t, err)
	assert.Zero(t, again.Changed())
}

func TestSyncBrokerCreatesUntrackedRecord(t *testing.T) {
	env := newTestEnv(t, true)
	env.broker.setPosition("NFLX", 3, 400)

	report, err := env.reconciler.SyncBroker(env.ctx, false)
	require.NoError(t, err)
	require.Len(t, report.Corrections, 1)
	assert.Equal(t, "untracked", report.Corrections[0].Detail)

	trades := activeTrades(t, env)
	require.Len(t, trades, 1)
	assert.Equal(t, entity.DirectionBuy, trades[0].Direction)
	assert.Nil(t, trades[0].TrackedCompanyID)
}

func TestReconcileUntrackedBrokerPositionReachesFixedPoint(t *testing.T) {
	env := newTestEnv(t, true)
	env.broker.setPosition("NFLX", 3, 400)

	report, err := env.reconciler.Reconcile(env.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, map[dto.ReconcileAction]int{
		dto.ActionCreatedFromBroker: 1,
		dto.ActionBrokerClose:       1,
	}, actions(report))
	require.Equal(t, 1, env.broker.submitCount())
	assert.Equal(t, 3.0, env.broker.submitted[0].Quantity)
	assert.Equal(t, entity.DirectionSell, env.broker.submitted[0].Side)

	again, err := env.reconciler.Reconcile(env.ctx, false)
	require.NoError(t, err)
	assert.Zero(t, again.Changed())
	assert.Equal(t, 1, env.broker.submitCount())
}

func TestResolveIdentities(t *testing.T) {
	env := newTestEnv(t, true)
	env.company(t, "AAPL")
	now := time.Now()
	linked := env.storeTrade(t, nil, "AAPL", entity.TradeStatusOpen, now.Add(-time.Hour))
	deleted := env.storeTrade(t, nil, "ZZZ", entity.TradeStatusClosed, now.Add(-time.Hour))
	flat := env.storeTrade(t, nil, "OLD", entity.TradeStatusOpen, now.Add(-time.Hour))
	live := env.storeTrade(t, nil, "ORPH", entity.TradeStatusOpen, now.Add(-time.Hour))
	pending := env.storeTrade(t, nil, "NEW", entity.TradeStatusPending, now)
	env.broker.setPosition("ORPH", 4, 10)
	env.broker.setPrice("OLD", 101)

	report, err := env.reconciler.ResolveIdentities(env.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, map[dto.ReconcileAction]int{
		dto.ActionLinkedCompany: 1,
		dto.ActionDeletedOrphan: 1,
		dto.ActionMarkedClosed:  1,
		dto.ActionBrokerClose:   1,
	}, actions(report))

	assert.NotNil(t, env.reload(t, linked.ID).TrackedCompanyID)

	_, err = env.trades.FindByID(env.ctx, deleted.ID)
	assert.ErrorIs(t, err, repository.ErrTradeNotFound)

	closed := env.reload(t, flat.ID)
	assert.Equal(t, entity.TradeStatusClosed, closed.Status)
	assert.Equal(t, entity.CloseReasonMarketClose, *closed.CloseReason)
	assert.InDelta(t, 101.0, *closed.ExitPrice, 1e-9)

	closing := env.reload(t, live.ID)
	assert.Equal(t, entity.TradeStatusPendingClose, closing.Status)
	assert.Equal(t, 4.0, env.broker.submitted[0].Quantity)

	assert.Equal(t, entity.TradeStatusPending, env.reload(t, pending.ID).Status)
}

func TestResolveIdentitiesCollapsesOnLinkConflict(t *testing.T) {
	env := newTestEnv(t, true)
	aapl := env.company(t, "AAPL")
	tracked := env.storeTrade(t, &aapl.ID, "AAPL", entity.TradeStatusOpen, time.Now().Add(-2*time.Hour))
	legacy := env.storeTrade(t, nil, "AAPL", entity.TradeStatusOpen, time.Now().Add(-time.Hour))

	report, err := env.reconciler.ResolveIdentities(env.ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, map[dto.ReconcileAction]int{
		dto.ActionCollapsedDuplicate: 1,
		dto.ActionLinkedCompany:      1,
	}, actions(report))

	assert.Equal(t, entity.TradeStatusClosed, env.reload(t, tracked.ID).Status)
	kept := env.reload(t, legacy.ID)
	assert.Equal(t, entity.TradeStatusOpen, kept.Status)
	require.NotNil(t, kept.TrackedCompanyID)
	assert.Equal(t, aapl.ID, *kept.TrackedCompanyID)
}

func TestReconcileResolvesUnmatchedPendingTrades(t *testing.T) {
	env := newTestEnv(t, true)
	now := time.Now()
	waiting := env.storeTrade(t, nil, "WAIT", entity.TradeStatusPending, now)
	held := env.storeTrade(t, nil, "HELD", entity.TradeStatusPending, now)
	closing := env.storeTrade(t, nil, "GONE", entity.TradeStatusPendingClose, now.Add(-time.Hour))
	env.broker.setPosition("HELD", 10, 99)

	// pending belongs to order sync and pending_close is already closing
	identities, err := env.reconciler.ResolveIdentities(env.ctx, false)
	require.NoError(t, err)
	assert.Empty(t, identities.Corrections)
	assert.Equal(t, entity.TradeStatusPending, env.reload(t, held.ID).Status)
	assert.Equal(t, entity.TradeStatusPendingClose, env.reload(t, closing.ID).Status)

	report, err := env.reconciler.Reconcile(env.ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, map[dto.ReconcileAction]int{
		dto.ActionAdoptedFill:   1,
		dto.ActionBrokerClose:   1,
		dto.ActionClosedMissing: 1,
	}, actions(report))

	assert.Equal(t, entity.TradeStatusPending, env.reload(t, waiting.ID).Status)

	adopted := env.reload(t, held.ID)
	assert.Equal(t, entity.TradeStatusPendingClose, adopted.Status)
	assert.InDelta(t, 99.0, adopted.EntryPrice, 1e-9)
	require.Equal(t, 1, env.broker.submitCount())
	assert.Equal(t, "HELD", env.broker.submitted[0].Symbol)
	assert.Equal(t, 10.0, env.broker.submitted[0].Quantity)

	gone := env.reload(t, closing.ID)
	assert.Equal(t, entity.TradeStatusClosed, gone.Status)
	require.NotNil(t, gone.CloseReason)
	assert.Equal(t, entity.CloseReasonMarketClose, *gone.CloseReason)

	again, err := env.reconciler.Reconcile(env.ctx, false)
	require.NoError(t, err)
	assert.Zero(t, again.Changed())
}

func TestSyncBrokerClosesMissingAndAdoptsFills(t *testing.T) {
	env := newTestEnv(t, true)
	now := time.Now()
	missing := env.storeTrade(t, nil, "MSFT", entity.TradeStatusOpen, now.Add(-time.Hour))
	waiting := env.storeTrade(t, nil, "GOOG", entity.TradeStatusPending, now)
	filled := env.storeTrade(t, nil, "AMZN", entity.TradeStatusPending, now)
	env.broker.setPosition("AMZN", 10, 99)

	report, err := env.reconciler.SyncBroker(env.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, map[dto.ReconcileAction]int{
		dto.ActionClosedMissing: 1,
		dto.ActionAdoptedFill:   1,
	}, actions(report))

	closed := env.reload(t, missing.ID)
	assert.Equal(t, entity.TradeStatusClosed, closed.Status)
	assert.Equal(t, entity.CloseReasonMarketClose, *closed.CloseReason)
	assert.Equal(t, entity.TradeStatusPending, env.reload(t, waiting.ID).Status)

	opened := env.reload(t, filled.ID)
	assert.Equal(t, entity.TradeStatusOpen, opened.Status)
	assert.InDelta(t, 99.0, opened.EntryPrice, 1e-9)
}

func TestReconcileDryRunChangesNothing(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, env.db.Exec("DROP INDEX ux_trades_active_company").Error)
	aapl := env.company(t, "AAPL")
	older := env.storeTrade(t, &aapl.ID, "AAPL", entity.TradeStatusOpen, time.Now().Add(-2*time.Hour))
	env.storeTrade(t, &aapl.ID, "AAPL", entity.TradeStatusOpen, time.Now().Add(-time.Hour))
	env.broker.setPosition("TSLA", 1, 250)

	report, err := env.reconciler.Reconcile(env.ctx, true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, actions(report)[dto.ActionCollapsedDuplicate])
	assert.Equal(t, 1, actions(report)[dto.ActionCreatedFromBroker])

	assert.Equal(t, entity.TradeStatusOpen, env.reload(t, older.ID).Status)
	assert.Len(t, activeTrades(t, env), 2)
	assert.Zero(t, env.publisher.count(entity.ActivityReconciliation))
	assert.Zero(t, env.broker.submitCount())
}

func TestReconcileEscalatesWhenBrokerUnavailable(t *testing.T) {
	env := newTestEnv(t, true)
	env.storeTrade(t, nil, "AAPL", entity.TradeStatusOpen, time.Now())
	env.company(t, "AAPL")
	env.broker.listErr = errors.New("connection refused")

	_, err := env.reconciler.Reconcile(env.ctx, false)
	require.Error(t, err)
	assert.Equal(t, 1, env.publisher.escalations())
	assert.Equal(t, entity.TradeStatusOpen, activeTrades(t, env)[0].Status)
}
