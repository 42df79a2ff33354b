package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatActivityAlert(t *testing.T) {
	at := time.Date(2025, 3, 4, 15, 30, 0, 0, time.UTC)
	msg := FormatActivityAlert(TradeClosed, "Trade 7 closed: stop_loss", map[string]interface{}{
		"symbol":       "AAPL",
		"realized_pnl": -12.5,
		"close_reason": "stop_loss",
	}, at)

	assert.Contains(t, msg, "*TRADE CLOSED*")
	assert.Contains(t, msg, "stop\\_loss")
	assert.Contains(t, msg, "-12.5000")
	assert.Contains(t, msg, "2025-03-04 15:30:00 UTC")
	// keys are sorted
	assert.Less(t, strings.Index(msg, "close\\_reason"), strings.Index(msg, "realized\\_pnl"))
	assert.Less(t, strings.Index(msg, "realized\\_pnl"), strings.Index(msg, "*symbol:*"))
}

func TestFormatErrorAlertMessage(t *testing.T) {
	msg := FormatErrorAlertMessage(time.Unix(0, 0).UTC(), "reconcile_failed", "broker down", "TSLA")
	assert.Contains(t, msg, "reconcile\\_failed")
	assert.Contains(t, msg, "broker down")
	assert.Contains(t, msg, "TSLA")
}
