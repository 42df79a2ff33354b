package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/config"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/pkg/logger"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrBrokerTimeout   = errors.New("broker: timeout")
	ErrBrokerAuth      = errors.New("broker: unauthorized")
	ErrBrokerNotFound  = errors.New("broker: not found")
	ErrBrokerRejected  = errors.New("broker: rejected")
	ErrBrokerTransient = errors.New("broker: transient failure")
)

// IsTransient reports errors worth retrying later (timeouts, 5xx, rate limits).
func IsTransient(err error) bool {
	return errors.Is(err, ErrBrokerTimeout) || errors.Is(err, ErrBrokerTransient)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrBrokerNotFound)
}

func IsRejected(err error) bool {
	return errors.Is(err, ErrBrokerRejected)
}

// BrokerRepository is the brokerage contract the engine depends on. Every call may fail;
// nothing is assumed to have happened until it is read back.
type BrokerRepository interface {
	SubmitOrder(ctx context.Context, req dto.OrderRequest) (*dto.BrokerOrder, error)
	GetOrder(ctx context.Context, orderID string) (*dto.BrokerOrder, error)
	CancelOrder(ctx context.Context, orderID string) error
	ListOpenOrders(ctx context.Context, symbol string) ([]dto.BrokerOrder, error)
	GetPosition(ctx context.Context, symbol string) (*dto.BrokerPosition, error)
	ListPositions(ctx context.Context) ([]dto.BrokerPosition, error)
	GetAccount(ctx context.Context) (*dto.Account, error)
	GetLatestTrade(ctx context.Context, symbol string) (float64, error)
	GetClock(ctx context.Context) (*dto.Clock, error)
}

type alpacaBrokerRepository struct {
	cfg            config.Alpaca
	log            *logger.Logger
	trading        *alpaca.Client
	data           *marketdata.Client
	requestLimiter *rate.Limiter
}

func NewAlpacaBrokerRepository(cfg *config.Config, log *logger.Logger) BrokerRepository {
	httpClient := &http.Client{Timeout: cfg.Alpaca.Timeout}

	perMinute := cfg.Alpaca.MaxRequestPerMinute
	if perMinute <= 0 {
		perMinute = 180
	}
	secondsPerRequest := time.Minute / time.Duration(perMinute)

	return &alpacaBrokerRepository{
		cfg: cfg.Alpaca,
		log: log,
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     cfg.Alpaca.APIKey,
			APISecret:  cfg.Alpaca.APISecret,
			BaseURL:    cfg.Alpaca.BaseURL,
			HTTPClient: httpClient,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     cfg.Alpaca.APIKey,
			APISecret:  cfg.Alpaca.APISecret,
			BaseURL:    cfg.Alpaca.DataURL,
			HTTPClient: httpClient,
		}),
		requestLimiter: rate.NewLimiter(rate.Every(secondsPerRequest), 5),
	}
}

// SubmitOrder places a market GTC order exactly once. The client order id lets the broker
// refuse a resubmission should the transport layer replay the request.
func (r *alpacaBrokerRepository) SubmitOrder(ctx context.Context, req dto.OrderRequest) (*dto.BrokerOrder, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.New().String()
	}
	side, err := toAlpacaSide(req.Side)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerRejected, err)
	}
	qty := decimal.NewFromFloat(req.Quantity)

	var order *alpaca.Order
	err = r.call(ctx, "submit_order", func() error {
		var callErr error
		order, callErr = r.trading.PlaceOrder(alpaca.PlaceOrderRequest{
			Symbol:        req.Symbol,
			Qty:           &qty,
			Side:          side,
			Type:          alpaca.Market,
			TimeInForce:   alpaca.GTC,
			ClientOrderID: req.ClientOrderID,
		})
		return callErr
	})
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to submit order",
			logger.StringField("symbol", req.Symbol),
			logger.StringField("side", string(req.Side)),
			logger.FloatField("quantity", req.Quantity),
			logger.StringField("client_order_id", req.ClientOrderID),
			logger.ErrorField(err),
		)
		return nil, err
	}
	return fromAlpacaOrder(order), nil
}

func (r *alpacaBrokerRepository) GetOrder(ctx context.Context, orderID string) (*dto.BrokerOrder, error) {
	var order *alpaca.Order
	err := r.retry(ctx, "get_order", func() error {
		var callErr error
		order, callErr = r.trading.GetOrder(orderID)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return fromAlpacaOrder(order), nil
}

func (r *alpacaBrokerRepository) CancelOrder(ctx context.Context, orderID string) error {
	return r.retry(ctx, "cancel_order", func() error {
		return r.trading.CancelOrder(orderID)
	})
}

func (r *alpacaBrokerRepository) ListOpenOrders(ctx context.Context, symbol string) ([]dto.BrokerOrder, error) {
	req := alpaca.GetOrdersRequest{Status: "open", Limit: 500}
	if symbol != "" {
		req.Symbols = []string{symbol}
	}
	var orders []alpaca.Order
	err := r.retry(ctx, "list_open_orders", func() error {
		var callErr error
		orders, callErr = r.trading.GetOrders(req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	result := make([]dto.BrokerOrder, 0, len(orders))
	for i := range orders {
		result = append(result, *fromAlpacaOrder(&orders[i]))
	}
	return result, nil
}

// GetPosition returns ErrBrokerNotFound when the account holds nothing in symbol.
func (r *alpacaBrokerRepository) GetPosition(ctx context.Context, symbol string) (*dto.BrokerPosition, error) {
	var position *alpaca.Position
	err := r.retry(ctx, "get_position", func() error {
		var callErr error
		position, callErr = r.trading.GetPosition(symbol)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	p := fromAlpacaPosition(position)
	return &p, nil
}

func (r *alpacaBrokerRepository) ListPositions(ctx context.Context) ([]dto.BrokerPosition, error) {
	var positions []alpaca.Position
	err := r.retry(ctx, "list_positions", func() error {
		var callErr error
		positions, callErr = r.trading.GetPositions()
		return callErr
	})
	if err != nil {
		return nil, err
	}
	result := make([]dto.BrokerPosition, 0, len(positions))
	for i := range positions {
		result = append(result, fromAlpacaPosition(&positions[i]))
	}
	return result, nil
}

func (r *alpacaBrokerRepository) GetAccount(ctx context.Context) (*dto.Account, error) {
	var account *alpaca.Account
	err := r.retry(ctx, "get_account", func() error {
		var callErr error
		account, callErr = r.trading.GetAccount()
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return &dto.Account{
		Equity:      account.Equity.InexactFloat64(),
		LastEquity:  account.LastEquity.InexactFloat64(),
		BuyingPower: account.BuyingPower.InexactFloat64(),
		Status:      account.Status,
	}, nil
}

func (r *alpacaBrokerRepository) GetLatestTrade(ctx context.Context, symbol string) (float64, error) {
	var trade *marketdata.Trade
	err := r.retry(ctx, "get_latest_trade", func() error {
		var callErr error
		trade, callErr = r.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{
			Feed: marketdata.Feed(r.cfg.Feed),
		})
		return callErr
	})
	if err != nil {
		return 0, err
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("%w: no trade for %s", ErrBrokerNotFound, symbol)
	}
	return trade.Price, nil
}

func (r *alpacaBrokerRepository) GetClock(ctx context.Context) (*dto.Clock, error) {
	var clock *alpaca.Clock
	err := r.retry(ctx, "get_clock", func() error {
		var callErr error
		clock, callErr = r.trading.GetClock()
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return &dto.Clock{
		IsOpen:    clock.IsOpen,
		Timestamp: clock.Timestamp,
		NextOpen:  clock.NextOpen,
		NextClose: clock.NextClose,
	}, nil
}

// retry runs a read or cancel with bounded exponential backoff on transient failures.
func (r *alpacaBrokerRepository) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	if r.cfg.RetryInitialInterval > 0 {
		b.InitialInterval = r.cfg.RetryInitialInterval
	}
	maxRetry := r.cfg.MaxRetry
	if maxRetry < 0 {
		maxRetry = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetry)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := r.call(ctx, op, fn)
		if err == nil || IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		r.log.WarnContext(ctx, "Retrying broker call",
			logger.StringField("operation", op),
			logger.IntField("attempt", attempt),
			zap.Duration("wait", wait),
			logger.ErrorField(err),
		)
	})
}

// call waits for the rate limiter, runs fn under the per-call deadline and classifies its error.
func (r *alpacaBrokerRepository) call(ctx context.Context, op string, fn func() error) error {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrBrokerTimeout, err)
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %v", op, ErrBrokerTimeout, ctx.Err())
	case err := <-done:
		if err == nil {
			return nil
		}
		return fmt.Errorf("%s: %w", op, classifyBrokerError(err))
	}
}

type classifiedError struct {
	kind error
	err  error
}

func (e *classifiedError) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *classifiedError) Unwrap() []error { return []error{e.kind, e.err} }

func classifyBrokerError(err error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return &classifiedError{kind: ErrBrokerAuth, err: err}
		case apiErr.StatusCode == http.StatusNotFound:
			return &classifiedError{kind: ErrBrokerNotFound, err: err}
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return &classifiedError{kind: ErrBrokerTimeout, err: err}
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return &classifiedError{kind: ErrBrokerTransient, err: err}
		default:
			return &classifiedError{kind: ErrBrokerRejected, err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &classifiedError{kind: ErrBrokerTimeout, err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &classifiedError{kind: ErrBrokerTimeout, err: err}
	}
	return &classifiedError{kind: ErrBrokerTransient, err: err}
}

func toAlpacaSide(d entity.Direction) (alpaca.Side, error) {
	switch d {
	case entity.DirectionBuy:
		return alpaca.Buy, nil
	case entity.DirectionSell:
		return alpaca.Sell, nil
	}
	return "", fmt.Errorf("untradable side %q", d)
}

func fromAlpacaOrder(o *alpaca.Order) *dto.BrokerOrder {
	order := &dto.BrokerOrder{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           entity.Direction(o.Side),
		FilledQuantity: o.FilledQty.InexactFloat64(),
		Status:         dto.OrderStatus(o.Status),
		SubmittedAt:    o.SubmittedAt,
		FilledAt:       o.FilledAt,
	}
	if o.Qty != nil {
		order.Quantity = o.Qty.InexactFloat64()
	}
	if o.FilledAvgPrice != nil {
		price := o.FilledAvgPrice.InexactFloat64()
		order.FilledAvgPrice = &price
	}
	return order
}

func fromAlpacaPosition(p *alpaca.Position) dto.BrokerPosition {
	position := dto.BrokerPosition{
		Symbol:        p.Symbol,
		Quantity:      p.Qty.InexactFloat64(),
		AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
	}
	if p.UnrealizedPL != nil {
		position.UnrealizedPL = p.UnrealizedPL.InexactFloat64()
	}
	if p.MarketValue != nil {
		position.MarketValue = p.MarketValue.InexactFloat64()
	}
	if p.CurrentPrice != nil {
		price := p.CurrentPrice.InexactFloat64()
		position.CurrentPrice = &price
	}
	return position
}
