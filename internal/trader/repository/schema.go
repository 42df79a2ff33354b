package repository

import (
	"fmt"

	"golang-news-trader/internal/entity"

	"gorm.io/gorm"
)

// activeTradeIndexes make "at most one active trade per instrument" a storage guarantee.
// Tracked trades are keyed by company, legacy untracked trades by symbol.
var activeTradeIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_trades_active_company ON trades (tracked_company_id)
		WHERE status IN ('open', 'pending', 'pending_close') AND tracked_company_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_trades_active_symbol ON trades (symbol)
		WHERE status IN ('open', 'pending', 'pending_close') AND tracked_company_id IS NULL`,
}

// AutoMigrate creates the engine tables plus the partial unique indexes. Production
// schemas come from migrations/, this is used by tests and local sqlite runs.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entity.TrackedCompany{},
		&entity.TradingConfig{},
		&entity.Analysis{},
		&entity.Trade{},
		&entity.ActivityLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range activeTradeIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create active trade index: %w", err)
		}
	}
	return nil
}
