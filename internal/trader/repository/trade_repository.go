package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/dto"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TradeRepository interface {
	Get(ctx context.Context, param dto.GetTradesParam) ([]entity.Trade, error)
	FindByID(ctx context.Context, id uint) (*entity.Trade, error)
	FindActive(ctx context.Context, trackedCompanyID *uint, symbol string) (*entity.Trade, error)
	CreateActive(ctx context.Context, trade *entity.Trade) (bool, *entity.Trade, error)
	Create(ctx context.Context, trade *entity.Trade) error
	UpdateIfStatus(ctx context.Context, trade *entity.Trade, expected ...entity.TradeStatus) (bool, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	SaveAdjustment(ctx context.Context, trade *entity.Trade) (bool, error)
	Delete(ctx context.Context, id uint) error
	CountActive(ctx context.Context) (int64, error)
	SumActiveExposure(ctx context.Context) (float64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	ActiveDuplicates(ctx context.Context) ([]dto.DuplicateGroup, error)
	Summary(ctx context.Context, topSymbols int) (dto.TradeSummary, error)
}

type tradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository(db *gorm.DB) TradeRepository {
	return &tradeRepository{
		db: db,
	}
}

func (r *tradeRepository) Get(ctx context.Context, param dto.GetTradesParam) ([]entity.Trade, error) {
	var trades []entity.Trade

	qFilter := []string{}
	qFilterParam := []interface{}{}

	if len(param.IDs) > 0 {
		qFilter = append(qFilter, "id IN (?)")
		qFilterParam = append(qFilterParam, param.IDs)
	}

	if len(param.Statuses) > 0 {
		qFilter = append(qFilter, "status IN (?)")
		qFilterParam = append(qFilterParam, param.Statuses)
	}

	if len(param.Symbols) > 0 {
		symbols := make([]string, 0, len(param.Symbols))
		for _, s := range param.Symbols {
			symbols = append(symbols, entity.NormalizeSymbol(s))
		}
		qFilter = append(qFilter, "symbol IN (?)")
		qFilterParam = append(qFilterParam, symbols)
	}

	if len(param.TrackedCompanyIDs) > 0 {
		qFilter = append(qFilter, "tracked_company_id IN (?)")
		qFilterParam = append(qFilterParam, param.TrackedCompanyIDs)
	}

	if param.Untracked {
		qFilter = append(qFilter, "tracked_company_id IS NULL")
	}

	if param.CreatedAfter != nil {
		qFilter = append(qFilter, "created_at >= ?")
		qFilterParam = append(qFilterParam, *param.CreatedAfter)
	}

	q := r.db.WithContext(ctx)
	if len(qFilter) > 0 {
		q = q.Where(strings.Join(qFilter, " AND "), qFilterParam...)
	}
	if param.Preload {
		q = q.Preload("TrackedCompany").Preload("Analysis")
	}
	orderBy := param.OrderBy
	if orderBy == "" {
		orderBy = "created_at DESC, id DESC"
	}
	q = q.Order(orderBy)
	if param.Limit > 0 {
		q = q.Limit(param.Limit)
	}
	if param.Offset > 0 {
		q = q.Offset(param.Offset)
	}

	if err := q.Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (r *tradeRepository) FindByID(ctx context.Context, id uint) (*entity.Trade, error) {
	var trade entity.Trade
	if err := r.db.WithContext(ctx).Preload("TrackedCompany").First(&trade, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrTradeNotFound, id)
		}
		return nil, err
	}
	return &trade, nil
}

// FindActive returns the active trade holding the instrument key, or nil when there is none.
func (r *tradeRepository) FindActive(ctx context.Context, trackedCompanyID *uint, symbol string) (*entity.Trade, error) {
	q := r.db.WithContext(ctx).Where("status IN (?)", entity.ActiveTradeStatuses)
	if trackedCompanyID != nil {
		q = q.Where("tracked_company_id = ?", *trackedCompanyID)
	} else {
		q = q.Where("tracked_company_id IS NULL AND symbol = ?", entity.NormalizeSymbol(symbol))
	}

	var trades []entity.Trade
	if err := q.Order("created_at DESC, id DESC").Limit(1).Find(&trades).Error; err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, nil
	}
	return &trades[0], nil
}

// CreateActive inserts an active trade unless the instrument already has one. The
// active-uniqueness index arbitrates concurrent inserts: the loser gets the winner back.
func (r *tradeRepository) CreateActive(ctx context.Context, trade *entity.Trade) (bool, *entity.Trade, error) {
	if !trade.Status.IsActive() {
		return false, nil, fmt.Errorf("create active: status %q is not active", trade.Status)
	}

	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(trade)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return false, nil, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return true, nil, nil
	}

	trade.ID = 0
	existing, err := r.FindActive(ctx, trade.TrackedCompanyID, trade.Symbol)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		// the conflicting row left the active set between the insert and the read
		return false, nil, fmt.Errorf("create active: conflict on %s but no active trade found", trade.Symbol)
	}
	return false, existing, nil
}

func (r *tradeRepository) Create(ctx context.Context, trade *entity.Trade) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(trade).Error
}

// UpdateIfStatus writes every column of trade only while the stored row is the version
// trade was read at and its status is still one of expected. It reports false when
// another writer touched the trade first. On success trade.Version is advanced.
func (r *tradeRepository) UpdateIfStatus(ctx context.Context, trade *entity.Trade, expected ...entity.TradeStatus) (bool, error) {
	if trade.ID == 0 {
		return false, fmt.Errorf("update trade: missing id")
	}
	readVersion := trade.Version
	trade.Version = readVersion + 1

	q := r.db.WithContext(ctx).Model(trade).Where("version = ?", readVersion)
	if len(expected) > 0 {
		q = q.Where("status IN (?)", expected)
	}
	res := q.Select("*").Omit("id", "created_at", clause.Associations).Updates(trade)
	if res.Error != nil || res.RowsAffected != 1 {
		trade.Version = readVersion
		return false, res.Error
	}
	return true, nil
}

// UpdateFields patches columns unconditionally and bumps the version so concurrent
// optimistic writers holding an older copy fail instead of reverting the patch.
func (r *tradeRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	patch := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["version"] = gorm.Expr("version + 1")
	return r.db.WithContext(ctx).Model(&entity.Trade{}).Where("id = ?", id).Updates(patch).Error
}

// SaveAdjustment stores adjusted levels only on an open trade that was never adjusted,
// so concurrent adjusters cannot both win.
func (r *tradeRepository) SaveAdjustment(ctx context.Context, trade *entity.Trade) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.Trade{}).
		Where("id = ? AND status = ? AND has_been_adjusted = ?", trade.ID, entity.TradeStatusOpen, false).
		Updates(map[string]interface{}{
			"stop_loss_price":              trade.StopLossPrice,
			"take_profit_price":            trade.TakeProfitPrice,
			"stop_loss_price_percentage":   trade.StopLossPricePercentage,
			"take_profit_price_percentage": trade.TakeProfitPricePercentage,
			"original_stop_loss_price":     trade.OriginalStopLossPrice,
			"original_take_profit_price":   trade.OriginalTakeProfitPrice,
			"has_been_adjusted":            true,
			"version":                      gorm.Expr("version + 1"),
			"updated_at":                   time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	trade.HasBeenAdjusted = true
	trade.Version++
	return true, nil
}

func (r *tradeRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&entity.Trade{}, id).Error
}

func (r *tradeRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Trade{}).
		Where("status IN (?)", entity.ActiveTradeStatuses).
		Count(&count).Error
	return count, err
}

func (r *tradeRepository) SumActiveExposure(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&entity.Trade{}).
		Select("COALESCE(SUM(ABS(quantity * entry_price)), 0)").
		Where("status IN (?)", entity.ActiveTradeStatuses).
		Scan(&total).Error
	return total, err
}

// CountCreatedSince counts trades created since the given time that are active or
// closed. Failed submissions and cancelled entries never held a position.
func (r *tradeRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Trade{}).
		Where("created_at >= ? AND status NOT IN (?)", since,
			[]entity.TradeStatus{entity.TradeStatusFailed, entity.TradeStatusCancelled}).
		Count(&count).Error
	return count, err
}

// ActiveDuplicates groups active trades by instrument key and returns the groups holding
// more than one record. Trades in a group are ordered newest first.
func (r *tradeRepository) ActiveDuplicates(ctx context.Context) ([]dto.DuplicateGroup, error) {
	trades, err := r.Get(ctx, dto.GetTradesParam{
		Statuses: entity.ActiveTradeStatuses,
		OrderBy:  "created_at DESC, id DESC",
	})
	if err != nil {
		return nil, err
	}

	groups := map[string][]entity.Trade{}
	var keys []string
	for _, t := range trades {
		key := InstrumentKey(t.TrackedCompanyID, t.Symbol)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], t)
	}
	sort.Strings(keys)

	var result []dto.DuplicateGroup
	for _, key := range keys {
		if len(groups[key]) > 1 {
			result = append(result, dto.DuplicateGroup{Key: key, Trades: groups[key]})
		}
	}
	return result, nil
}

func (r *tradeRepository) Summary(ctx context.Context, topSymbols int) (dto.TradeSummary, error) {
	var summary dto.TradeSummary
	db := r.db.WithContext(ctx)

	if err := db.Model(&entity.Trade{}).Count(&summary.TotalTrades).Error; err != nil {
		return summary, err
	}
	if err := db.Model(&entity.Trade{}).Where("status IN (?)", entity.ActiveTradeStatuses).Count(&summary.OpenTrades).Error; err != nil {
		return summary, err
	}

	var closed []entity.Trade
	if err := db.Select("id", "realized_pnl", "opened_at", "closed_at").
		Where("status = ?", entity.TradeStatusClosed).
		Find(&closed).Error; err != nil {
		return summary, err
	}
	summary.ClosedTrades = int64(len(closed))

	var durationTotal float64
	var durationCount int
	for _, t := range closed {
		if t.RealizedPnL != nil {
			summary.TotalPnL += *t.RealizedPnL
			if *t.RealizedPnL > 0 {
				summary.WinningTrades++
			}
		}
		if t.OpenedAt != nil && t.ClosedAt != nil {
			durationTotal += t.ClosedAt.Sub(*t.OpenedAt).Minutes()
			durationCount++
		}
	}
	if summary.ClosedTrades > 0 {
		summary.WinRate = float64(summary.WinningTrades) / float64(summary.ClosedTrades) * 100
	}
	if durationCount > 0 {
		summary.AvgDurationMinutes = durationTotal / float64(durationCount)
	}

	if topSymbols > 0 {
		if err := db.Model(&entity.Trade{}).
			Select("symbol, COUNT(*) AS count").
			Group("symbol").
			Order("count DESC, symbol ASC").
			Limit(topSymbols).
			Scan(&summary.TopSymbols).Error; err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// InstrumentKey is the identity the active-uniqueness invariant is scoped to.
func InstrumentKey(trackedCompanyID *uint, symbol string) string {
	if trackedCompanyID != nil {
		return fmt.Sprintf("company:%d", *trackedCompanyID)
	}
	return "symbol:" + entity.NormalizeSymbol(symbol)
}
