package service

import (
	"testing"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionCloseClaimsThenSubmits(t *testing.T) {
	env := newTestEnv(t, true)
	trade := env.openTrade(t, nil, "AAPL", entity.DirectionSell, 100, 2, 10)

	got, err := env.positions.Close(env.ctx, trade.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.TradeStatusPendingClose, got.Status)
	require.NotNil(t, got.CloseReason)
	assert.Equal(t, entity.CloseReasonManual, *got.CloseReason)

	stored := env.reload(t, trade.ID)
	require.NotNil(t, stored.CloseOrderID)
	assert.Equal(t, entity.DirectionBuy, env.broker.submitted[0].Side)

	_, err = env.positions.Close(env.ctx, trade.ID, entity.CloseReasonManual)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, 1, env.broker.submitCount())
}

func TestPositionCloseUnknownTrade(t *testing.T) {
	env := newTestEnv(t, true)

	_, err := env.positions.Close(env.ctx, 404, "")
	assert.ErrorIs(t, err, repository.ErrTradeNotFound)
}

func TestPositionCancelPending(t *testing.T) {
	env := newTestEnv(t, true)
	env.broker.setPrice("AAPL", 100)
	res, err := env.signals.HandleSignal(env.ctx, dto.Signal{Symbol: "AAPL", Direction: entity.DirectionBuy, Confidence: 0.9})
	require.NoError(t, err)
	pending := env.reload(t, res.TradeID)
	require.Equal(t, entity.TradeStatusPending, pending.Status)

	got, err := env.positions.Cancel(env.ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TradeStatusCancelled, got.Status)
	assert.Equal(t, []string{*pending.AlpacaOrderID}, env.broker.cancelled)
	assert.Equal(t, entity.TradeStatusCancelled, env.reload(t, pending.ID).Status)
	assert.Equal(t, 1, env.publisher.count(entity.ActivityTradeCancelled))

	open := env.openTrade(t, nil, "MSFT", entity.DirectionBuy, 100, 2, 10)
	_, err = env.positions.Cancel(env.ctx, open.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestPositionCancelCloseRestoresLevels(t *testing.T) {
	env := newTestEnv(t, true)
	trade := env.openTrade(t, nil, "AAPL", entity.DirectionBuy, 100, 2, 10)

	_, err := env.positions.Close(env.ctx, trade.ID, entity.CloseReasonManual)
	require.NoError(t, err)
	closeOrderID := *env.reload(t, trade.ID).CloseOrderID

	got, err := env.positions.CancelClose(env.ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TradeStatusOpen, got.Status)

	stored := env.reload(t, trade.ID)
	assert.Equal(t, entity.TradeStatusOpen, stored.Status)
	assert.Nil(t, stored.CloseReason)
	assert.Nil(t, stored.CloseOrderID)
	assert.InDelta(t, 98.0, *stored.StopLossPrice, 1e-9)
	assert.InDelta(t, 110.0, *stored.TakeProfitPrice, 1e-9)
	assert.Equal(t, []string{closeOrderID}, env.broker.cancelled)
}

func TestPositionCancelCloseBrokerFailureKeepsPendingClose(t *testing.T) {
	env := newTestEnv(t, true)
	trade := env.openTrade(t, nil, "AAPL", entity.DirectionBuy, 100, 2, 10)
	_, err := env.positions.Close(env.ctx, trade.ID, entity.CloseReasonManual)
	require.NoError(t, err)

	env.broker.cancelErr = repository.ErrBrokerTransient
	_, err = env.positions.CancelClose(env.ctx, trade.ID)
	assert.ErrorIs(t, err, repository.ErrBrokerTransient)
	assert.Equal(t, entity.TradeStatusPendingClose, env.reload(t, trade.ID).Status)
}

func TestPositionCancelCloseFindsOrderBySymbolAndSide(t *testing.T) {
	env := newTestEnv(t, true)
	trade := env.openTrade(t, nil, "AAPL", entity.DirectionBuy, 100, 2, 10)
	env.broker.submitErr = repository.ErrBrokerTimeout
	_, err := env.positions.Close(env.ctx, trade.ID, entity.CloseReasonManual)
	require.NoError(t, err)
	require.Nil(t, env.reload(t, trade.ID).CloseOrderID)

	_, err = env.positions.CancelClose(env.ctx, trade.ID)
	assert.ErrorIs(t, err, ErrNoCloseOrder)
	assert.Equal(t, entity.TradeStatusPendingClose, env.reload(t, trade.ID).Status)

	env.broker.addOrder(dto.BrokerOrder{ID: "buy-other", Symbol: "AAPL", Side: entity.DirectionBuy, Status: dto.OrderStatusAccepted})
	env.broker.addOrder(dto.BrokerOrder{ID: "lost-close", Symbol: "AAPL", Side: entity.DirectionSell, Status: dto.OrderStatusAccepted})
	got, err := env.positions.CancelClose(env.ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TradeStatusOpen, got.Status)
	assert.Equal(t, []string{"lost-close"}, env.broker.cancelled)
}

func TestPositionAdjustOneShotStrict(t *testing.T) {
	env := newTestEnv(t, true)
	trade := env.openTrade(t, nil, "AAPL", entity.DirectionBuy, 100, 2, 10)

	adjusted, err := env.positions.Adjust(env.ctx, trade.ID, 0.9)
	require.NoError(t, err)
	assert.True(t, adjusted.HasBeenAdjusted)

	assert.Panics(t, func() {
		_, _ = env.positions.Adjust(env.ctx, trade.ID, 0.95)
	})
}

func TestPositionAdjustOneShotProduction(t *testing.T) {
	env := newTestEnv(t, false)
	trade := env.openTrade(t, nil, "AAPL", entity.DirectionBuy, 100, 2, 10)

	_, err := env.positions.Adjust(env.ctx, trade.ID, 0.9)
	require.NoError(t, err)
	first := env.reload(t, trade.ID)

	_, err = env.positions.Adjust(env.ctx, trade.ID, 0.95)
	assert.ErrorIs(t, err, ErrAlreadyAdjusted)

	second := env.reload(t, trade.ID)
	assert.Equal(t, *first.StopLossPrice, *second.StopLossPrice)
	assert.Equal(t, *first.TakeProfitPrice, *second.TakeProfitPrice)
	assert.Equal(t, *first.OriginalStopLossPrice, *second.OriginalStopLossPrice)
}

func TestPositionAdjustRefusedBelowThreshold(t *testing.T) {
	env := newTestEnv(t, true)
	trade := env.openTrade(t, nil, "AAPL", entity.DirectionBuy, 100, 2, 10)

	_, err := env.positions.Adjust(env.ctx, trade.ID, 0.5)
	assert.ErrorIs(t, err, ErrAdjustRefused)
	assert.False(t, env.reload(t, trade.ID).HasBeenAdjusted)
}

func TestPositionCloseAllSyncsFirst(t *testing.T) {
	env := newTestEnv(t, true)
	aapl := env.openTrade(t, nil, "AAPL", entity.DirectionBuy, 100, 2, 10)
	msft := env.openTrade(t, nil, "MSFT", entity.DirectionSell, 200, 2, 10)
	gone := env.openTrade(t, nil, "GOOG", entity.DirectionBuy, 150, 2, 10)
	env.broker.setPosition("AAPL", 10, 100)
	env.broker.setPosition("MSFT", -10, 200)
	env.broker.setPrice("GOOG", 151)

	resp, err := env.positions.CloseAll(env.ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{aapl.ID, msft.ID}, resp.Requested)
	assert.Empty(t, resp.Errors)

	closed := env.reload(t, gone.ID)
	assert.Equal(t, entity.TradeStatusClosed, closed.Status)
	assert.Equal(t, entity.CloseReasonMarketClose, *closed.CloseReason)
	assert.InDelta(t, 10.0, *closed.RealizedPnL, 1e-9)
	assert.Equal(t, 2, env.broker.submitCount())
}

func TestPositionSummaryAndList(t *testing.T) {
	env := newTestEnv(t, true)
	winner := env.openTrade(t, nil, "AAPL", entity.DirectionBuy, 100, 2, 10)
	env.openTrade(t, nil, "MSFT", entity.DirectionBuy, 100, 2, 10)

	_, err := env.positions.Close(env.ctx, winner.ID, entity.CloseReasonManual)
	require.NoError(t, err)
	stored := env.reload(t, winner.ID)
	require.NoError(t, env.positions.(*positionService).mover.confirmClose(env.ctx, stored, 105))

	summary, err := env.positions.Summary(env.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.TotalTrades)
	assert.EqualValues(t, 1, summary.OpenTrades)
	assert.EqualValues(t, 1, summary.ClosedTrades)
	assert.InDelta(t, 50.0, summary.TotalPnL, 1e-9)
	assert.InDelta(t, 100.0, summary.WinRate, 1e-9)

	open, err := env.positions.List(env.ctx, dto.ListTradesRequest{Status: string(entity.TradeStatusOpen)})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "MSFT", open[0].Symbol)

	one, err := env.positions.Get(env.ctx, winner.ID)
	require.NoError(t, err)
	require.NotNil(t, one.DurationMinutes)
	assert.InDelta(t, 50.0, one.CurrentPnL, 1e-9)
}
