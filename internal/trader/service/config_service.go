package service

import (
	"context"
	"fmt"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/pkg/logger"
)

// ConfigService hands out the active risk policy. Each call reads the store and returns a
// value copy, so an evaluation never observes a policy changing underneath it.
type ConfigService interface {
	Active(ctx context.Context) (entity.TradingConfig, error)
	Controls(cfg entity.TradingConfig) dto.Controls
	SetBotEnabled(ctx context.Context, enabled bool) (entity.TradingConfig, error)
	SetTradingEnabled(ctx context.Context, enabled bool) (entity.TradingConfig, error)
}

type configService struct {
	repo repository.TradingConfigRepository
	log  *logger.Logger
}

func NewConfigService(repo repository.TradingConfigRepository, log *logger.Logger) ConfigService {
	return &configService{
		repo: repo,
		log:  log,
	}
}

func (s *configService) Active(ctx context.Context) (entity.TradingConfig, error) {
	cfg, err := s.repo.GetActive(ctx)
	if err != nil {
		return entity.TradingConfig{}, fmt.Errorf("load active trading config: %w", err)
	}
	return *cfg, nil
}

func (s *configService) Controls(cfg entity.TradingConfig) dto.Controls {
	return dto.Controls{
		BotEnabled:     cfg.BotEnabled,
		TradingEnabled: cfg.TradingEnabled,
	}
}

func (s *configService) SetBotEnabled(ctx context.Context, enabled bool) (entity.TradingConfig, error) {
	return s.setFlag(ctx, "bot_enabled", enabled)
}

func (s *configService) SetTradingEnabled(ctx context.Context, enabled bool) (entity.TradingConfig, error) {
	return s.setFlag(ctx, "trading_enabled", enabled)
}

func (s *configService) setFlag(ctx context.Context, column string, value bool) (entity.TradingConfig, error) {
	cfg, err := s.Active(ctx)
	if err != nil {
		return cfg, err
	}
	if err := s.repo.SetFlag(ctx, cfg.ID, column, value); err != nil {
		return cfg, fmt.Errorf("set %s: %w", column, err)
	}
	s.log.InfoContext(ctx, "Trading control changed",
		logger.StringField("control", column),
		logger.Field("enabled", value),
		logger.IntField("config_id", int(cfg.ID)),
	)
	return s.Active(ctx)
}
