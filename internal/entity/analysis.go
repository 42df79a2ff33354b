package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Analysis records a trade signal as it was received from the classifier.
type Analysis struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Symbol     string         `gorm:"type:varchar(16);not null;index" json:"symbol"`
	Direction  Direction      `gorm:"type:varchar(4);not null" json:"direction"`
	Confidence float64        `gorm:"not null" json:"confidence"`
	Reason     string         `gorm:"type:text" json:"reason"`
	Raw        datatypes.JSON `json:"raw,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (Analysis) TableName() string {
	return "analyses"
}
