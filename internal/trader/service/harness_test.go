package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/internal/trader/repository/repositorytest"
	"golang-news-trader/pkg/logger"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeBroker struct {
	mu sync.Mutex

	positions map[string]dto.BrokerPosition
	orders    map[string]*dto.BrokerOrder
	prices    map[string]float64
	priceErr  map[string]error

	marketOpen   bool
	equity       float64
	fillOnSubmit bool
	submitErr    error
	cancelErr    error
	listErr      error

	submitted []dto.OrderRequest
	cancelled []string
	seq       int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		positions:  map[string]dto.BrokerPosition{},
		orders:     map[string]*dto.BrokerOrder{},
		prices:     map[string]float64{},
		priceErr:   map[string]error{},
		marketOpen: true,
		equity:     100000,
	}
}

func (b *fakeBroker) setPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

func (b *fakeBroker) setPosition(symbol string, qty, avg float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[symbol] = dto.BrokerPosition{Symbol: symbol, Quantity: qty, AvgEntryPrice: avg, MarketValue: qty * avg}
}

func (b *fakeBroker) addOrder(order dto.BrokerOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := order
	b.orders[o.ID] = &o
}

func (b *fakeBroker) submitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submitted)
}

func (b *fakeBroker) SubmitOrder(_ context.Context, req dto.OrderRequest) (*dto.BrokerOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	b.seq++
	b.submitted = append(b.submitted, req)
	order := &dto.BrokerOrder{
		ID:            fmt.Sprintf("order-%d", b.seq),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Status:        dto.OrderStatusAccepted,
		SubmittedAt:   time.Now(),
	}
	if b.fillOnSubmit {
		price := b.prices[req.Symbol]
		order.Status = dto.OrderStatusFilled
		order.FilledQuantity = req.Quantity
		order.FilledAvgPrice = &price
	}
	b.orders[order.ID] = order
	copied := *order
	return &copied, nil
}

func (b *fakeBroker) GetOrder(_ context.Context, orderID string) (*dto.BrokerOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return nil, repository.ErrBrokerNotFound
	}
	copied := *o
	return &copied, nil
}

func (b *fakeBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelErr != nil {
		return b.cancelErr
	}
	o, ok := b.orders[orderID]
	if !ok {
		return repository.ErrBrokerNotFound
	}
	o.Status = dto.OrderStatusCanceled
	b.cancelled = append(b.cancelled, orderID)
	return nil
}

func (b *fakeBroker) ListOpenOrders(_ context.Context, symbol string) ([]dto.BrokerOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var result []dto.BrokerOrder
	for _, o := range b.orders {
		if o.Symbol == symbol && !o.Status.IsDead() && o.Status != dto.OrderStatusFilled {
			result = append(result, *o)
		}
	}
	return result, nil
}

func (b *fakeBroker) GetPosition(_ context.Context, symbol string) (*dto.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[symbol]
	if !ok {
		return nil, repository.ErrBrokerNotFound
	}
	return &p, nil
}

func (b *fakeBroker) ListPositions(context.Context) ([]dto.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	result := make([]dto.BrokerPosition, 0, len(b.positions))
	for _, p := range b.positions {
		result = append(result, p)
	}
	return result, nil
}

func (b *fakeBroker) GetAccount(context.Context) (*dto.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &dto.Account{Equity: b.equity, BuyingPower: b.equity, Status: "ACTIVE"}, nil
}

func (b *fakeBroker) GetLatestTrade(_ context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.priceErr[symbol]; err != nil {
		return 0, err
	}
	price, ok := b.prices[symbol]
	if !ok {
		return 0, repository.ErrBrokerNotFound
	}
	return price, nil
}

func (b *fakeBroker) GetClock(context.Context) (*dto.Clock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &dto.Clock{IsOpen: b.marketOpen, Timestamp: time.Now()}, nil
}

type publishedEvent struct {
	Type    entity.ActivityType
	Message string
	Payload map[string]interface{}
}

type recordingPublisher struct {
	mu         sync.Mutex
	events     []publishedEvent
	escalation []string
}

func (p *recordingPublisher) Publish(_ context.Context, activityType entity.ActivityType, message string, payload map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: activityType, Message: message, Payload: payload})
}

func (p *recordingPublisher) Escalate(_ context.Context, errType string, err error, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.escalation = append(p.escalation, fmt.Sprintf("%s: %v", errType, err))
}

func (p *recordingPublisher) count(activityType entity.ActivityType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == activityType {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) escalations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.escalation)
}

type testEnv struct {
	ctx         context.Context
	db          *gorm.DB
	broker      *fakeBroker
	publisher   *recordingPublisher
	trades      repository.TradeRepository
	companies   repository.TrackedCompanyRepository
	configs     repository.TradingConfigRepository
	configSvc   ConfigService
	companySvc  CompanyService
	signals     SignalService
	monitor     MonitorService
	orderSync   OrderSyncService
	positions   PositionService
	reconciler  ReconcileService
	activeCfgID uint
}

// newTestEnv wires every service over an in-memory store with the bot enabled and no
// market-hours restriction.
func newTestEnv(t *testing.T, strict bool, mutate ...func(*entity.TradingConfig)) *testEnv {
	t.Helper()

	db := repositorytest.NewDB(t)
	log := logger.NewNop()
	env := &testEnv{
		ctx:       context.Background(),
		db:        db,
		broker:    newFakeBroker(),
		publisher: &recordingPublisher{},
		trades:    repository.NewTradeRepository(db),
		companies: repository.NewTrackedCompanyRepository(db),
		configs:   repository.NewTradingConfigRepository(db),
	}

	cfg := entity.DefaultTradingConfig()
	cfg.BotEnabled = true
	cfg.MarketHoursOnly = false
	for _, m := range mutate {
		m(&cfg)
	}
	require.NoError(t, env.configs.Create(env.ctx, &cfg))
	env.activeCfgID = cfg.ID

	env.configSvc = NewConfigService(env.configs, log)
	env.companySvc = NewCompanyService(env.companies, time.Minute, log)
	env.signals = NewSignalService(env.configSvc, env.companySvc, repository.NewAnalysisRepository(db),
		env.trades, env.broker, env.publisher, 100, log)
	env.monitor = NewMonitorService(env.configSvc, env.trades, env.broker, env.publisher, log)
	env.orderSync = NewOrderSyncService(env.trades, env.broker, env.publisher, 15*time.Minute, log)
	env.reconciler = NewReconcileService(env.trades, env.companySvc, env.broker, env.publisher, log)
	env.positions = NewPositionService(env.configSvc, env.trades, env.broker, env.reconciler, env.publisher, strict, log)
	return env
}

func (e *testEnv) company(t *testing.T, symbol string) *entity.TrackedCompany {
	t.Helper()
	require.NoError(t, e.companies.Upsert(e.ctx, &entity.TrackedCompany{Symbol: symbol, Name: symbol, IsActive: true}))
	c, err := e.companies.FindBySymbol(e.ctx, symbol)
	require.NoError(t, err)
	return c
}

// openTrade stores an open trade directly, bypassing signal handling.
func (e *testEnv) openTrade(t *testing.T, companyID *uint, symbol string, dir entity.Direction, entry, slPct, tpPct float64) *entity.Trade {
	t.Helper()
	opened := time.Now().Add(-time.Hour)
	trade := &entity.Trade{
		TrackedCompanyID: companyID,
		Symbol:           symbol,
		Direction:        dir,
		Quantity:         10,
		EntryPrice:       entry,
		Status:           entity.TradeStatusOpen,
		OpenedAt:         &opened,
	}
	trade.InitLevels(slPct, tpPct)
	require.NoError(t, e.trades.Create(e.ctx, trade))
	return trade
}

func (e *testEnv) reload(t *testing.T, id uint) *entity.Trade {
	t.Helper()
	trade, err := e.trades.FindByID(e.ctx, id)
	require.NoError(t, err)
	return trade
}
