package repository

import (
	"context"

	"golang-news-trader/internal/entity"

	"gorm.io/gorm"
)

type TradingConfigRepository interface {
	GetActive(ctx context.Context) (*entity.TradingConfig, error)
	Create(ctx context.Context, cfg *entity.TradingConfig) error
	Activate(ctx context.Context, id uint) error
	SetFlag(ctx context.Context, id uint, column string, value bool) error
}

type tradingConfigRepository struct {
	db *gorm.DB
}

func NewTradingConfigRepository(db *gorm.DB) TradingConfigRepository {
	return &tradingConfigRepository{
		db: db,
	}
}

// GetActive returns the newest active config, installing the default policy when none exists.
func (r *tradingConfigRepository) GetActive(ctx context.Context) (*entity.TradingConfig, error) {
	var configs []entity.TradingConfig
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&configs).Error; err != nil {
		return nil, err
	}
	if len(configs) > 0 {
		return &configs[0], nil
	}

	cfg := entity.DefaultTradingConfig()
	if err := r.db.WithContext(ctx).Create(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *tradingConfigRepository) Create(ctx context.Context, cfg *entity.TradingConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

// Activate makes id the only active config.
func (r *tradingConfigRepository) Activate(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.TradingConfig{}).Where("id <> ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		res := tx.Model(&entity.TradingConfig{}).Where("id = ?", id).Update("is_active", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// SetFlag updates one of the administrative boolean switches.
func (r *tradingConfigRepository) SetFlag(ctx context.Context, id uint, column string, value bool) error {
	switch column {
	case "bot_enabled", "trading_enabled", "market_hours_only", "allow_position_adjustments", "trailing_stop_enabled":
	default:
		return gorm.ErrInvalidField
	}
	return r.db.WithContext(ctx).Model(&entity.TradingConfig{}).Where("id = ?", id).Update(column, value).Error
}
