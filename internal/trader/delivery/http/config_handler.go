package http

import (
	"context"
	"net/http"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/service"
	"golang-news-trader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ConfigHandler exposes the active risk policy and its admin toggles.
type ConfigHandler struct {
	configService service.ConfigService
	logger        *logger.Logger
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(configService service.ConfigService, logger *logger.Logger) *ConfigHandler {
	return &ConfigHandler{configService: configService, logger: logger}
}

// RegisterRoutes registers the config routes to the Echo group.
func (h *ConfigHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/active", h.GetActive)
	g.POST("/bot", h.SetBotEnabled)
	g.POST("/trading", h.SetTradingEnabled)
}

// GetActive godoc
// @Summary Get the active trading config
// @Tags config
// @Produce  json
// @Success 200 {object} entity.TradingConfig
// @Failure 500 {object} dto.ErrorResponse
// @Router /config/active [get]
func (h *ConfigHandler) GetActive(c echo.Context) error {
	cfg, err := h.configService.Active(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, "Failed to load trading config", err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// SetBotEnabled godoc
// @Summary Enable or disable the bot
// @Tags config
// @Accept  json
// @Produce  json
// @Param   request body    dto.ToggleRequest   true    "Toggle"
// @Success 200 {object} dto.Controls
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /config/bot [post]
func (h *ConfigHandler) SetBotEnabled(c echo.Context) error {
	return h.toggle(c, h.configService.SetBotEnabled)
}

// SetTradingEnabled godoc
// @Summary Enable or disable order placement
// @Tags config
// @Accept  json
// @Produce  json
// @Param   request body    dto.ToggleRequest   true    "Toggle"
// @Success 200 {object} dto.Controls
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /config/trading [post]
func (h *ConfigHandler) SetTradingEnabled(c echo.Context) error {
	return h.toggle(c, h.configService.SetTradingEnabled)
}

func (h *ConfigHandler) toggle(c echo.Context, set func(ctx context.Context, enabled bool) (entity.TradingConfig, error)) error {
	var req dto.ToggleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}

	cfg, err := set(c.Request().Context(), *req.Enabled)
	if err != nil {
		return respondError(c, h.logger, "Failed to update trading config", err)
	}
	return c.JSON(http.StatusOK, h.configService.Controls(cfg))
}
