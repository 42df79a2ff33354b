package entity

import (
	"time"

	"gorm.io/datatypes"
)

type ActivityType string

const (
	ActivityTradeExecuted       ActivityType = "trade_executed"
	ActivityTradeOpened         ActivityType = "trade_opened"
	ActivityTradeClosed         ActivityType = "trade_closed"
	ActivityTradeCloseRequested ActivityType = "trade_close_requested"
	ActivityTradeRejected       ActivityType = "trade_rejected"
	ActivityTradeFailed         ActivityType = "trade_failed"
	ActivityTradeCancelled      ActivityType = "trade_cancelled"
	ActivityPositionAdjusted    ActivityType = "position_adjusted"
	ActivityTradeStatus         ActivityType = "trade_status"
	ActivityReconciliation      ActivityType = "reconciliation"
	ActivitySystemEvent         ActivityType = "system_event"
)

// ActivityLog is the append-only audit trail.
type ActivityLog struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	ActivityType ActivityType   `gorm:"type:varchar(50);not null;index" json:"activity_type"`
	Message      string         `gorm:"type:text;not null" json:"message"`
	Data         datatypes.JSON `json:"data"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
