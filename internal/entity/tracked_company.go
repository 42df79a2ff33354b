package entity

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// TrackedCompany is the canonical identity of a tradable instrument.
// Rows are never deleted, only deactivated.
type TrackedCompany struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"symbol"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Sector    string    `gorm:"type:varchar(128)" json:"sector"`
	Industry  string    `gorm:"type:varchar(128)" json:"industry"`
	Market    string    `gorm:"type:varchar(64)" json:"market"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TrackedCompany) TableName() string {
	return "tracked_companies"
}

// BeforeSave keeps the symbol in its canonical upper-case form.
func (c *TrackedCompany) BeforeSave(tx *gorm.DB) error {
	c.Symbol = NormalizeSymbol(c.Symbol)
	return nil
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
