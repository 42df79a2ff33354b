package consumer

import (
	"context"
	"sync"
	"time"

	"golang-news-trader/internal/trader/config"
	"golang-news-trader/internal/trader/service"
	"golang-news-trader/pkg/common"
	"golang-news-trader/pkg/logger"
	"golang-news-trader/pkg/utils"
)

// RedisConsumer drains the trade signal stream and periodically reclaims stuck signals.
type RedisConsumer struct {
	cfg                 *config.Config
	signalStreamService service.SignalStreamService
	logger              *logger.Logger
	stopChan            chan struct{}
	stopOnce            sync.Once
	wg                  sync.WaitGroup
}

// NewRedisConsumer creates a new RedisConsumer.
func NewRedisConsumer(
	cfg *config.Config,
	signalStreamService service.SignalStreamService,
	log *logger.Logger,
) *RedisConsumer {
	return &RedisConsumer{
		cfg:                 cfg,
		signalStreamService: signalStreamService,
		logger:              log,
		stopChan:            make(chan struct{}),
	}
}

// Start begins the consumer's task processing loop.
func (c *RedisConsumer) Start(ctx context.Context) {
	c.logger.Info("Redis consumer started")
	c.RegisterStreamHandler(ctx, c.signalStreamService.ProcessTask, common.RedisStreamTradeSignal, c.cfg.Trader.SignalStreamTimeout)

	//handle retry
	c.RegisterTickerHandler(ctx, c.signalStreamService.ProcessRetries, c.cfg.Trader.SignalStreamRetryInterval, c.cfg.Trader.SignalStreamTimeout, common.RedisStreamTradeSignal+"-retry")
}

func (c *RedisConsumer) RegisterStreamHandler(ctx context.Context, fn func(ctx context.Context), streamName string, timeout time.Duration) {
	c.logger.Info("Registering stream handler", logger.Field("stream", streamName))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Redis consumer stopping due to context cancellation", logger.Field("stream", streamName))
				return
			case <-c.stopChan:
				c.logger.Info("Redis consumer stopping", logger.Field("stream", streamName))
				return
			default:
				ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
				fn(ctxTimeout)
				cancel()
			}
		}
	})
}

func (c *RedisConsumer) RegisterTickerHandler(ctx context.Context, fn func(ctx context.Context), interval time.Duration, timeout time.Duration, name string) {
	c.logger.Info("Registering ticker handler",
		logger.Field("name", name),
		logger.Field("interval", interval),
		logger.Field("timeout", timeout))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
				fn(ctxTimeout)
				cancel()
			case <-ctx.Done():
				c.logger.Info("Ticker handler stopping due to context cancellation", logger.Field("name", name))
				return
			case <-c.stopChan:
				c.logger.Info("Ticker handler stopping", logger.Field("name", name))
				return
			}
		}
	})
}

// Stop gracefully shuts down the consumer.
func (c *RedisConsumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
	c.logger.Info("Redis consumer stopped")
}
