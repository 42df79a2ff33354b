package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang-news-trader/internal/trader/config"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/pkg/common"
	"golang-news-trader/pkg/logger"
	"golang-news-trader/pkg/telegram"
	"golang-news-trader/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SignalStreamService feeds signals from the redis stream into SignalService.
type SignalStreamService interface {
	ProcessTask(ctx context.Context)
	ProcessRetries(ctx context.Context)
	Enqueue(ctx context.Context, signal dto.Signal) (string, error)
}

type signalStreamService struct {
	cfg         *config.Config
	redisClient *redis.Client
	signalSvc   SignalService
	telegramBot telegram.Notifier
	log         *logger.Logger
}

func NewSignalStreamService(
	cfg *config.Config,
	redisClient *redis.Client,
	signalSvc SignalService,
	telegramBot telegram.Notifier,
	log *logger.Logger,
) SignalStreamService {
	return &signalStreamService{
		cfg:         cfg,
		redisClient: redisClient,
		signalSvc:   signalSvc,
		telegramBot: telegramBot,
		log:         log,
	}
}

// Enqueue appends a signal to the stream with the JSON document in the payload field.
func (s *signalStreamService) Enqueue(ctx context.Context, signal dto.Signal) (string, error) {
	payload, err := json.Marshal(signal)
	if err != nil {
		return "", err
	}
	return s.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: common.RedisStreamTradeSignal,
		MaxLen: s.cfg.Redis.StreamMaxLen,
		Approx: s.cfg.Redis.StreamMaxLen > 0,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Result()
}

func (s *signalStreamService) ProcessTask(ctx context.Context) {
	streams, err := s.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer,
		Streams:  []string{common.RedisStreamTradeSignal, ">"},
		Count:    1,
		Block:    2 * time.Second,
	}).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return
		}
		s.log.Error("Failed to read from stream", logger.ErrorField(err))
		return
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return
	}
	message := streams[0].Messages[0]

	signal, err := decodeSignal(message.Values)
	if err != nil {
		s.log.Error("Dropping undecodable signal", logger.ErrorField(err), logger.StringField("message_id", message.ID))
		_ = s.AckNDel(ctx, common.RedisStreamTradeSignal, message.ID)
		return
	}

	loggerFields := []zap.Field{
		logger.StringField("symbol", signal.Symbol),
		logger.StringField("direction", string(signal.Direction)),
		logger.FloatField("confidence", signal.Confidence),
		logger.StringField("message_id", message.ID),
	}
	s.log.Debug("Processing trade signal", loggerFields...)

	result, err := s.signalSvc.HandleSignal(ctx, signal)
	if err != nil {
		loggerFields = append(loggerFields, logger.ErrorField(err))
		if errors.Is(err, ErrInvalidSignal) {
			s.log.Error("Dropping invalid signal", loggerFields...)
			_ = s.AckNDel(ctx, common.RedisStreamTradeSignal, message.ID)
			return
		}
		// left pending; ProcessRetries claims it after the idle timeout
		s.log.Error("Failed to handle trade signal", loggerFields...)
		return
	}

	if err := s.AckNDel(ctx, common.RedisStreamTradeSignal, message.ID); err != nil {
		return
	}
	s.log.Info("Trade signal processed", append(loggerFields,
		logger.StringField("outcome", string(result.Outcome)),
		logger.StringField("reject_reason", string(result.RejectReason)),
		logger.IntField("trade_id", int(result.TradeID)),
	)...)
}

// ProcessRetries reclaims signals idle longer than the configured duration. A signal that
// keeps failing is dropped after the retry limit with an operator alert.
func (s *signalStreamService) ProcessRetries(ctx context.Context) {
	msgs, _, err := s.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   common.RedisStreamTradeSignal,
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer + "-retry",
		MinIdle:  s.cfg.Trader.SignalStreamMaxIdleDuration,
		Start:    "0",
		Count:    1,
	}).Result()
	if err != nil {
		s.log.Error("Failed to claim trade signal on retry", logger.ErrorField(err))
		return
	}
	if len(msgs) == 0 {
		return
	}
	msg := msgs[0]

	pendingInfo, err := s.redisClient.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: common.RedisStreamTradeSignal,
		Group:  common.RedisStreamGroup,
		Start:  msg.ID,
		End:    msg.ID,
		Count:  1,
	}).Result()
	if err != nil {
		s.log.Error("Failed to get pending info", logger.ErrorField(err))
		return
	}
	if len(pendingInfo) == 0 {
		s.log.Warn("pending msg not found, but exist on xautoclaim",
			logger.StringField("stream", common.RedisStreamTradeSignal),
			logger.StringField("message_id", msg.ID))
		return
	}

	signal, err := decodeSignal(msg.Values)
	if err != nil {
		s.log.Error("Dropping undecodable signal", logger.ErrorField(err), logger.StringField("message_id", msg.ID))
		_ = s.AckNDel(ctx, common.RedisStreamTradeSignal, msg.ID)
		return
	}

	loggerFields := []zap.Field{
		logger.StringField("symbol", signal.Symbol),
		logger.StringField("direction", string(signal.Direction)),
		logger.StringField("message_id", msg.ID),
		logger.IntField("retry_count", int(pendingInfo[0].RetryCount)),
	}

	if _, err := s.signalSvc.HandleSignal(ctx, signal); err != nil {
		loggerFields = append(loggerFields, logger.ErrorField(err))
		s.log.Error("Failed to handle trade signal on retry", loggerFields...)

		if errors.Is(err, ErrInvalidSignal) || pendingInfo[0].RetryCount+1 >= int64(s.cfg.Trader.SignalStreamMaxRetry) {
			s.log.Error("pending msg retry count exceeded",
				append(loggerFields, logger.IntField("max_retry", s.cfg.Trader.SignalStreamMaxRetry))...)
			errType := fmt.Sprintf("Retry count exceeded for event %s", common.RedisStreamTradeSignal)
			data := fmt.Sprintf("%s | %s | %.2f", signal.Symbol, signal.Direction, signal.Confidence)
			if err := s.telegramBot.SendMessage(telegram.FormatErrorAlertMessage(utils.TimeNowET(), errType, err.Error(), data)); err != nil {
				s.log.Error("Failed to send telegram message retry exceeded", append(loggerFields, logger.ErrorField(err))...)
			}
			_ = s.AckNDel(ctx, common.RedisStreamTradeSignal, msg.ID)
		}
		return
	}

	if err := s.AckNDel(ctx, common.RedisStreamTradeSignal, msg.ID); err != nil {
		return
	}
	s.log.Info("Retry trade signal processed successfully", loggerFields...)
}

func (s *signalStreamService) AckNDel(ctx context.Context, streamName string, messageID string) error {
	loggerFields := []zap.Field{
		logger.StringField("stream_name", streamName),
		logger.StringField("message_id", messageID),
	}
	if err := s.redisClient.XAck(ctx, streamName, common.RedisStreamGroup, messageID).Err(); err != nil {
		s.log.Error("Failed to acknowledge trade signal", append(loggerFields, logger.ErrorField(err))...)
		return err
	}
	if err := s.redisClient.XDel(ctx, streamName, messageID).Err(); err != nil {
		s.log.Error("Failed to delete trade signal", append(loggerFields, logger.ErrorField(err))...)
		return err
	}
	return nil
}

// decodeSignal reads the JSON document stored in a stream message's payload field.
func decodeSignal(values map[string]interface{}) (dto.Signal, error) {
	var signal dto.Signal
	raw, ok := values["payload"].(string)
	if !ok {
		return signal, errors.New("field 'payload' not found or not a string in stream message")
	}
	if err := json.Unmarshal([]byte(raw), &signal); err != nil {
		return signal, fmt.Errorf("unmarshal signal: %w", err)
	}
	return signal, nil
}
