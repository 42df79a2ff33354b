package repository

import (
	"context"
	"errors"
	"fmt"

	"golang-news-trader/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TrackedCompanyRepository interface {
	FindBySymbol(ctx context.Context, symbol string) (*entity.TrackedCompany, error)
	All(ctx context.Context, activeOnly bool) ([]entity.TrackedCompany, error)
	Upsert(ctx context.Context, company *entity.TrackedCompany) error
	DeactivateMissing(ctx context.Context, keep []string) (int64, error)
}

type trackedCompanyRepository struct {
	db *gorm.DB
}

func NewTrackedCompanyRepository(db *gorm.DB) TrackedCompanyRepository {
	return &trackedCompanyRepository{
		db: db,
	}
}

// FindBySymbol matches case-insensitively and returns ErrTrackedCompanyNotFound when absent.
func (r *trackedCompanyRepository) FindBySymbol(ctx context.Context, symbol string) (*entity.TrackedCompany, error) {
	var company entity.TrackedCompany
	err := r.db.WithContext(ctx).
		Where("UPPER(symbol) = ?", entity.NormalizeSymbol(symbol)).
		First(&company).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTrackedCompanyNotFound, symbol)
		}
		return nil, err
	}
	return &company, nil
}

func (r *trackedCompanyRepository) All(ctx context.Context, activeOnly bool) ([]entity.TrackedCompany, error) {
	var companies []entity.TrackedCompany
	q := r.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Order("symbol ASC").Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

// Upsert inserts the company or refreshes the metadata of the row holding its symbol.
func (r *trackedCompanyRepository) Upsert(ctx context.Context, company *entity.TrackedCompany) error {
	company.Symbol = entity.NormalizeSymbol(company.Symbol)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "sector", "industry", "market", "is_active", "updated_at"}),
	}).Create(company).Error
}

// DeactivateMissing flags every active company whose symbol is not in keep.
func (r *trackedCompanyRepository) DeactivateMissing(ctx context.Context, keep []string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&entity.TrackedCompany{}).Where("is_active = ?", true)
	if len(keep) > 0 {
		symbols := make([]string, 0, len(keep))
		for _, s := range keep {
			symbols = append(symbols, entity.NormalizeSymbol(s))
		}
		q = q.Where("symbol NOT IN (?)", symbols)
	}
	res := q.Update("is_active", false)
	return res.RowsAffected, res.Error
}
