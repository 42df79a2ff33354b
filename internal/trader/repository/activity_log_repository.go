package repository

import (
	"context"

	"golang-news-trader/internal/entity"

	"gorm.io/gorm"
)

type GetActivityLogsParam struct {
	Types []entity.ActivityType
	Limit int
}

type ActivityLogRepository interface {
	Create(ctx context.Context, log *entity.ActivityLog) error
	List(ctx context.Context, param GetActivityLogsParam) ([]entity.ActivityLog, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{
		db: db,
	}
}

func (r *activityLogRepository) Create(ctx context.Context, log *entity.ActivityLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *activityLogRepository) List(ctx context.Context, param GetActivityLogsParam) ([]entity.ActivityLog, error) {
	var logs []entity.ActivityLog
	q := r.db.WithContext(ctx)
	if len(param.Types) > 0 {
		q = q.Where("activity_type IN (?)", param.Types)
	}
	limit := param.Limit
	if limit <= 0 {
		limit = 100
	}
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
