package repository

import (
	"context"

	"golang-news-trader/internal/entity"

	"gorm.io/gorm"
)

type AnalysisRepository interface {
	Create(ctx context.Context, analysis *entity.Analysis) error
}

type analysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepository{
		db: db,
	}
}

func (r *analysisRepository) Create(ctx context.Context, analysis *entity.Analysis) error {
	return r.db.WithContext(ctx).Create(analysis).Error
}
