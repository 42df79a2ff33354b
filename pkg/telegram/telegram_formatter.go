package telegram

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// AlertType classifies trade alerts sent to the operator chat.
type AlertType string

const (
	TradeOpened    AlertType = "trade_opened"
	TradeClosed    AlertType = "trade_closed"
	TradeRejected  AlertType = "trade_rejected"
	CloseRequested AlertType = "trade_close_requested"
	TradeFailed    AlertType = "trade_failed"
	Reconciliation AlertType = "reconciliation"
	Escalation     AlertType = "escalation"
)

func alertIcon(alertType AlertType) string {
	switch alertType {
	case TradeOpened:
		return "🟢"
	case TradeClosed:
		return "🏁"
	case TradeRejected:
		return "🚫"
	case CloseRequested:
		return "⏳"
	case TradeFailed:
		return "❌"
	case Reconciliation:
		return "🔄"
	case Escalation:
		return "🚨"
	default:
		return "ℹ️"
	}
}

// FormatActivityAlert renders an activity event as a Markdown message.
// Payload keys are printed in sorted order so messages are stable.
func FormatActivityAlert(alertType AlertType, message string, payload map[string]interface{}, at time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s *%s*\n", alertIcon(alertType), strings.ToUpper(strings.ReplaceAll(string(alertType), "_", " "))))
	sb.WriteString(fmt.Sprintf("💬 %s\n", escapeMarkdown(message)))

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("• *%s:* %s\n", escapeMarkdown(k), escapeMarkdown(formatValue(payload[k]))))
	}
	sb.WriteString(fmt.Sprintf("🕒 %s", at.Format("2006-01-02 15:04:05 MST")))
	return sb.String()
}

// FormatErrorAlertMessage renders an operator escalation for failures that need a human.
func FormatErrorAlertMessage(at time.Time, errType, errMessage, data string) string {
	return fmt.Sprintf("🚨 *%s*\n🕒 %s\n❗ %s\n📦 %s",
		escapeMarkdown(errType),
		at.Format("2006-01-02 15:04:05 MST"),
		escapeMarkdown(errMessage),
		escapeMarkdown(data))
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("%.4f", val)
	case float32:
		return fmt.Sprintf("%.4f", val)
	case nil:
		return "-"
	default:
		return fmt.Sprintf("%v", val)
	}
}

var markdownReplacer = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownReplacer.Replace(s)
}
