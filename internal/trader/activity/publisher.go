// Package activity records engine events. Publishing never fails the caller: every
// downstream error is logged and dropped.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/pkg/logger"
	"golang-news-trader/pkg/telegram"
	"golang-news-trader/pkg/utils"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
)

type Publisher interface {
	Publish(ctx context.Context, activityType entity.ActivityType, message string, payload map[string]interface{})
	Escalate(ctx context.Context, errType string, err error, data string)
}

// Event is the JSON document fanned out on the dashboard channel.
type Event struct {
	Type      entity.ActivityType    `json:"type"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

var alertTypes = map[entity.ActivityType]telegram.AlertType{
	entity.ActivityTradeOpened:         telegram.TradeOpened,
	entity.ActivityTradeClosed:         telegram.TradeClosed,
	entity.ActivityTradeRejected:       telegram.TradeRejected,
	entity.ActivityTradeCloseRequested: telegram.CloseRequested,
	entity.ActivityTradeFailed:         telegram.TradeFailed,
	entity.ActivityReconciliation:      telegram.Reconciliation,
}

const publishTimeout = 3 * time.Second

type publisher struct {
	repo        repository.ActivityLogRepository
	redisClient *redis.Client
	channel     string
	notifier    telegram.Notifier
	log         *logger.Logger
}

// NewPublisher wires the audit table, the redis dashboard channel and the operator chat.
// redisClient may be nil, notifier may be a nop notifier.
func NewPublisher(
	repo repository.ActivityLogRepository,
	redisClient *redis.Client,
	channel string,
	notifier telegram.Notifier,
	log *logger.Logger,
) Publisher {
	if notifier == nil {
		notifier = telegram.NewNopNotifier()
	}
	return &publisher{
		repo:        repo,
		redisClient: redisClient,
		channel:     channel,
		notifier:    notifier,
		log:         log,
	}
}

func (p *publisher) Publish(ctx context.Context, activityType entity.ActivityType, message string, payload map[string]interface{}) {
	now := time.Now()
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.WarnContext(ctx, "Failed to marshal activity payload", logger.StringField("activity_type", string(activityType)), logger.ErrorField(err))
		data = []byte("{}")
	}

	// the audit row outlives a cancelled caller but never blocks it for long
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	err = p.repo.Create(storeCtx, &entity.ActivityLog{
		ActivityType: activityType,
		Message:      message,
		Data:         datatypes.JSON(data),
	})
	cancel()
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to store activity log", logger.StringField("activity_type", string(activityType)), logger.ErrorField(err))
	}

	if p.redisClient != nil && p.channel != "" {
		event, err := json.Marshal(Event{Type: activityType, Message: message, Data: payload, CreatedAt: now})
		if err == nil {
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
			err = p.redisClient.Publish(pubCtx, p.channel, event).Err()
			cancel()
		}
		if err != nil {
			p.log.WarnContext(ctx, "Failed to publish activity event", logger.StringField("channel", p.channel), logger.ErrorField(err))
		}
	}

	if alertType, ok := alertTypes[activityType]; ok {
		text := telegram.FormatActivityAlert(alertType, message, payload, utils.TimeNowET())
		p.send(text, string(activityType))
	}
}

// Escalate tells the operator that an automatic correction could not make progress.
func (p *publisher) Escalate(ctx context.Context, errType string, err error, data string) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.log.ErrorContext(ctx, "Escalating to operator", logger.StringField("error_type", errType), logger.StringField("data", data), logger.ErrorField(err))
	p.Publish(ctx, entity.ActivitySystemEvent, errType, map[string]interface{}{"error": msg, "data": data})
	p.send(telegram.FormatErrorAlertMessage(utils.TimeNowET(), errType, msg, data), "escalation")
}

func (p *publisher) send(text, kind string) {
	utils.GoSafe(func() {
		if err := p.notifier.SendMessage(text); err != nil {
			p.log.Warn("Failed to send telegram alert", logger.StringField("kind", kind), logger.ErrorField(err))
		}
	})
}
