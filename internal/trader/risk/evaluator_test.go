package risk

import (
	"testing"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput() EvaluationInput {
	cfg := entity.DefaultTradingConfig()
	cfg.MaxConcurrentOpenTrades = 10
	return EvaluationInput{
		Signal:     dto.Signal{Symbol: "AAPL", Direction: entity.DirectionBuy, Confidence: 0.9},
		Config:     cfg,
		Controls:   dto.Controls{BotEnabled: true, TradingEnabled: true},
		MarketOpen: true,
		EntryPrice: 20,
	}
}

func TestEvaluateScenarioALowConfidence(t *testing.T) {
	in := baseInput()
	in.Config.MinConfidenceThreshold = 0.7
	in.Signal.Confidence = 0.5

	d := Evaluate(in)
	assert.False(t, d.Accepted)
	assert.Equal(t, dto.RejectLowConfidence, d.Reason)
}

func TestEvaluateScenarioBAccept(t *testing.T) {
	in := baseInput()

	d := Evaluate(in)
	require.True(t, d.Accepted)
	assert.Equal(t, in.Config.DefaultPositionSize, d.Size)
	assert.Equal(t, 5.0, d.Quantity)
	assert.InDelta(t, 19.6, d.StopLoss, 1e-9)
	assert.InDelta(t, 22.0, d.TakeProfit, 1e-9)
}

func TestEvaluateRuleOrder(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*EvaluationInput)
		want   dto.RejectReason
	}{
		{"bot disabled", func(in *EvaluationInput) { in.Controls.BotEnabled = false; in.Signal.Confidence = 0.1 }, dto.RejectBotDisabled},
		{"trading disabled", func(in *EvaluationInput) { in.Controls.TradingEnabled = false }, dto.RejectBotDisabled},
		{"low confidence beats hold", func(in *EvaluationInput) { in.Signal.Confidence = 0.2; in.Signal.Direction = entity.DirectionHold }, dto.RejectLowConfidence},
		{"hold", func(in *EvaluationInput) { in.Signal.Direction = entity.DirectionHold; in.HasActivePosition = true }, dto.RejectNoActionDirection},
		{"duplicate", func(in *EvaluationInput) { in.HasActivePosition = true; in.Portfolio.OpenTradeCount = 99 }, dto.RejectDuplicateActivePosition},
		{"concurrency", func(in *EvaluationInput) { in.Portfolio.OpenTradeCount = 10; in.Portfolio.DailyTradeCount = 99 }, dto.RejectConcurrencyLimit},
		{"daily", func(in *EvaluationInput) { in.Portfolio.DailyTradeCount = 10; in.Portfolio.TotalOpenExposure = 1e9 }, dto.RejectDailyLimit},
		{"exposure", func(in *EvaluationInput) { in.Portfolio.TotalOpenExposure = 4950; in.MarketOpen = false }, dto.RejectExposureLimit},
		{"market closed", func(in *EvaluationInput) { in.MarketOpen = false }, dto.RejectMarketClosed},
		{"no price", func(in *EvaluationInput) { in.EntryPrice = 0 }, dto.RejectInvalidPrice},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in := baseInput()
			c.mutate(&in)
			d := Evaluate(in)
			assert.False(t, d.Accepted)
			assert.Equal(t, c.want, d.Reason)
		})
	}
}

func TestEvaluateMarketHoursIgnoredWhenDisabled(t *testing.T) {
	in := baseInput()
	in.MarketOpen = false
	in.Config.MarketHoursOnly = false
	assert.True(t, Evaluate(in).Accepted)
}

func TestEvaluateExposureBoundary(t *testing.T) {
	in := baseInput()
	in.Portfolio.TotalOpenExposure = 4900
	assert.True(t, Evaluate(in).Accepted, "exactly at the limit is allowed")
}

func TestEvaluateSellLevels(t *testing.T) {
	in := baseInput()
	in.Signal.Direction = entity.DirectionSell
	in.EntryPrice = 100

	d := Evaluate(in)
	require.True(t, d.Accepted)
	assert.InDelta(t, 102.0, d.StopLoss, 1e-9)
	assert.InDelta(t, 90.0, d.TakeProfit, 1e-9)
}

func TestScreenNeedsNoBrokerData(t *testing.T) {
	in := baseInput()
	in.EntryPrice = 0
	in.MarketOpen = false
	reason, ok := Screen(in)
	assert.True(t, ok)
	assert.Empty(t, reason)

	in.Portfolio.DailyTradeCount = 10
	reason, ok = Screen(in)
	assert.False(t, ok)
	assert.Equal(t, dto.RejectDailyLimit, reason)
}
