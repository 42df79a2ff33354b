package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/pkg/logger"
	"golang-news-trader/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorTickStopLossMovesToPendingClose(t *testing.T) {
	env := newTestEnv(t, true)
	aapl := env.company(t, "AAPL")
	trade := env.openTrade(t, &aapl.ID, "AAPL", entity.DirectionBuy, 100, 5, 10)
	require.InDelta(t, 95.0, *trade.StopLossPrice, 1e-9)

	env.broker.setPrice("AAPL", 94)
	report, err := env.monitor.Tick(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Triggered)
	assert.Equal(t, []uint{trade.ID}, report.TradeIDs)

	got := env.reload(t, trade.ID)
	assert.Equal(t, entity.TradeStatusPendingClose, got.Status)
	require.NotNil(t, got.CloseReason)
	assert.Equal(t, entity.CloseReasonStopLoss, *got.CloseReason)
	require.NotNil(t, got.CloseOrderID)

	require.Equal(t, 1, env.broker.submitCount())
	assert.Equal(t, entity.DirectionSell, env.broker.submitted[0].Side)
	assert.Equal(t, 10.0, env.broker.submitted[0].Quantity)
	assert.Equal(t, 1, env.publisher.count(entity.ActivityTradeCloseRequested))

	// a second tick does not see the trade any more
	report, err = env.monitor.Tick(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
	assert.Equal(t, 1, env.broker.submitCount())
}

func TestMonitorTickSkipsWhenPriceUnavailable(t *testing.T) {
	env := newTestEnv(t, true)
	trade := env.openTrade(t, nil, "MSFT", entity.DirectionBuy, 100, 5, 10)
	env.broker.priceErr["MSFT"] = repository.ErrBrokerTimeout

	report, err := env.monitor.Tick(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Triggered)
	assert.Equal(t, entity.TradeStatusOpen, env.reload(t, trade.ID).Status)
	assert.Zero(t, env.broker.submitCount())
}

func TestMonitorTickStoresWatermarks(t *testing.T) {
	env := newTestEnv(t, true)
	trade := env.openTrade(t, nil, "NVDA", entity.DirectionBuy, 100, 5, 10)

	env.broker.setPrice("NVDA", 103)
	_, err := env.monitor.Tick(env.ctx)
	require.NoError(t, err)
	env.broker.setPrice("NVDA", 101)
	_, err = env.monitor.Tick(env.ctx)
	require.NoError(t, err)

	got := env.reload(t, trade.ID)
	assert.Equal(t, entity.TradeStatusOpen, got.Status)
	require.NotNil(t, got.HighestPriceSinceOpen)
	assert.InDelta(t, 103.0, *got.HighestPriceSinceOpen, 1e-9)
	require.NotNil(t, got.LowestPriceSinceOpen)
	assert.InDelta(t, 101.0, *got.LowestPriceSinceOpen, 1e-9)
	assert.InDelta(t, 10.0, got.UnrealizedPnL, 1e-9)
}

func TestMonitorTickRejectedCloseReopens(t *testing.T) {
	env := newTestEnv(t, true)
	trade := env.openTrade(t, nil, "AMD", entity.DirectionBuy, 100, 5, 10)
	env.broker.setPrice("AMD", 120)
	env.broker.submitErr = repository.ErrBrokerRejected

	report, err := env.monitor.Tick(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	got := env.reload(t, trade.ID)
	assert.Equal(t, entity.TradeStatusOpen, got.Status)
	assert.Nil(t, got.CloseReason)
	require.NotNil(t, got.TakeProfitPrice)
	assert.InDelta(t, 110.0, *got.TakeProfitPrice, 1e-9)
	assert.Equal(t, 1, env.publisher.count(entity.ActivityTradeFailed))
}

func TestMonitorTickUnconfirmedCloseStaysPendingClose(t *testing.T) {
	env := newTestEnv(t, true)
	trade := env.openTrade(t, nil, "AMD", entity.DirectionBuy, 100, 5, 10)
	env.broker.setPrice("AMD", 120)
	env.broker.submitErr = repository.ErrBrokerTimeout

	report, err := env.monitor.Tick(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggered)

	got := env.reload(t, trade.ID)
	assert.Equal(t, entity.TradeStatusPendingClose, got.Status)
	assert.Nil(t, got.CloseOrderID)
	require.NotNil(t, got.CloseReason)
	assert.Equal(t, entity.CloseReasonTakeProfit, *got.CloseReason)
}

func TestEvaluateExit(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	cfg := entity.DefaultTradingConfig()

	long := func() *entity.Trade {
		opened := now.Add(-time.Hour)
		tr := &entity.Trade{Direction: entity.DirectionBuy, EntryPrice: 100, Quantity: 1, OpenedAt: &opened}
		tr.InitLevels(5, 10)
		return tr
	}
	short := func() *entity.Trade {
		opened := now.Add(-time.Hour)
		tr := &entity.Trade{Direction: entity.DirectionSell, EntryPrice: 100, Quantity: 1, OpenedAt: &opened}
		tr.InitLevels(5, 10)
		return tr
	}

	tests := []struct {
		name   string
		trade  *entity.Trade
		price  float64
		cfg    func(*entity.TradingConfig)
		want   entity.CloseReason
		wantOK bool
	}{
		{name: "long inside band", trade: long(), price: 101, wantOK: false},
		{name: "long stop loss", trade: long(), price: 94, want: entity.CloseReasonStopLoss, wantOK: true},
		{name: "long take profit", trade: long(), price: 111, want: entity.CloseReasonTakeProfit, wantOK: true},
		{name: "short stop loss", trade: short(), price: 106, want: entity.CloseReasonStopLoss, wantOK: true},
		{name: "short take profit", trade: short(), price: 89, want: entity.CloseReasonTakeProfit, wantOK: true},
		{
			name: "stop loss beats take profit",
			trade: func() *entity.Trade {
				tr := long()
				tr.StopLossPrice = utils.ToPointer(105.0)
				tr.TakeProfitPrice = utils.ToPointer(102.0)
				return tr
			}(),
			price:  106,
			want:   entity.CloseReasonStopLoss,
			wantOK: true,
		},
		{
			name: "time limit",
			trade: func() *entity.Trade {
				tr := long()
				opened := now.Add(-25 * time.Hour)
				tr.OpenedAt = &opened
				return tr
			}(),
			price:  100,
			want:   entity.CloseReasonTimeLimit,
			wantOK: true,
		},
		{
			name: "time limit disabled",
			trade: func() *entity.Trade {
				tr := long()
				opened := now.Add(-25 * time.Hour)
				tr.OpenedAt = &opened
				return tr
			}(),
			price:  100,
			cfg:    func(c *entity.TradingConfig) { c.MaxPositionHoldTimeHours = 0 },
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			if tt.cfg != nil {
				tt.cfg(&c)
			}
			tt.trade.UpdateWatermarks(tt.price)
			got, ok := EvaluateExit(tt.trade, tt.price, c, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateExitTrailingStop(t *testing.T) {
	now := time.Now()
	cfg := entity.DefaultTradingConfig()
	cfg.TrailingStopEnabled = true
	cfg.TrailingStopActivationProfitPercentage = 2
	cfg.TrailingStopDistancePercentage = 1

	newTrade := func(dir entity.Direction) *entity.Trade {
		opened := now.Add(-time.Hour)
		tr := &entity.Trade{Direction: dir, EntryPrice: 100, Quantity: 1, OpenedAt: &opened}
		tr.InitLevels(5, 10)
		return tr
	}

	t.Run("long retreats from armed peak", func(t *testing.T) {
		tr := newTrade(entity.DirectionBuy)
		tr.UpdateWatermarks(105)
		tr.UpdateWatermarks(103.9)
		reason, ok := EvaluateExit(tr, 103.9, cfg, now)
		require.True(t, ok)
		assert.Equal(t, entity.CloseReasonTrailingStop, reason)
	})

	t.Run("long within distance", func(t *testing.T) {
		tr := newTrade(entity.DirectionBuy)
		tr.UpdateWatermarks(105)
		tr.UpdateWatermarks(104.5)
		_, ok := EvaluateExit(tr, 104.5, cfg, now)
		assert.False(t, ok)
	})

	t.Run("long not armed below activation", func(t *testing.T) {
		tr := newTrade(entity.DirectionBuy)
		tr.UpdateWatermarks(101.5)
		tr.UpdateWatermarks(100.4)
		_, ok := EvaluateExit(tr, 100.4, cfg, now)
		assert.False(t, ok)
	})

	t.Run("short retreats from armed trough", func(t *testing.T) {
		tr := newTrade(entity.DirectionSell)
		tr.UpdateWatermarks(95)
		tr.UpdateWatermarks(96)
		reason, ok := EvaluateExit(tr, 96, cfg, now)
		require.True(t, ok)
		assert.Equal(t, entity.CloseReasonTrailingStop, reason)
	})

	t.Run("disabled", func(t *testing.T) {
		c := cfg
		c.TrailingStopEnabled = false
		tr := newTrade(entity.DirectionBuy)
		tr.UpdateWatermarks(105)
		tr.UpdateWatermarks(103.9)
		_, ok := EvaluateExit(tr, 103.9, c, now)
		assert.False(t, ok)
	})
}

// interleavingBroker runs hook once inside the first price read, between the monitor's
// load and its write.
type interleavingBroker struct {
	*fakeBroker
	once sync.Once
	hook func()
}

func (b *interleavingBroker) GetLatestTrade(ctx context.Context, symbol string) (float64, error) {
	b.once.Do(b.hook)
	return b.fakeBroker.GetLatestTrade(ctx, symbol)
}

func TestMonitorTickKeepsConcurrentAdjustment(t *testing.T) {
	env := newTestEnv(t, false)
	trade := env.openTrade(t, nil, "AAPL", entity.DirectionBuy, 100, 5, 10)
	env.broker.setPrice("AAPL", 101)

	var adjusted *entity.Trade
	broker := &interleavingBroker{fakeBroker: env.broker, hook: func() {
		var err error
		adjusted, err = env.positions.Adjust(env.ctx, trade.ID, 0.95)
		require.NoError(t, err)
	}}
	monitor := NewMonitorService(env.configSvc, env.trades, broker, env.publisher, logger.NewNop())

	_, err := monitor.Tick(env.ctx)
	require.NoError(t, err)
	require.NotNil(t, adjusted)

	got := env.reload(t, trade.ID)
	assert.True(t, got.HasBeenAdjusted)
	assert.Equal(t, entity.TradeStatusOpen, got.Status)
	assert.InDelta(t, *adjusted.StopLossPrice, *got.StopLossPrice, 1e-9)
	assert.InDelta(t, *adjusted.TakeProfitPrice, *got.TakeProfitPrice, 1e-9)
	assert.NotEqual(t, 95.0, *got.StopLossPrice)

	_, err = env.positions.Adjust(env.ctx, trade.ID, 0.95)
	assert.ErrorIs(t, err, ErrAlreadyAdjusted)

	// the next tick starts from the adjusted row and stores its marks
	_, err = monitor.Tick(env.ctx)
	require.NoError(t, err)
	got = env.reload(t, trade.ID)
	assert.True(t, got.HasBeenAdjusted)
	assert.InDelta(t, 10.0, got.UnrealizedPnL, 1e-9)
}
