package http

import (
	"net/http"

	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/service"
	"golang-news-trader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// TradeHandler exposes position operations.
type TradeHandler struct {
	positionService service.PositionService
	logger          *logger.Logger
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(positionService service.PositionService, logger *logger.Logger) *TradeHandler {
	return &TradeHandler{positionService: positionService, logger: logger}
}

// RegisterRoutes registers the trade routes to the Echo group.
func (h *TradeHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.ListTrades)
	g.GET("/summary", h.GetSummary)
	g.POST("/close-all", h.CloseAll)
	g.GET("/:id", h.GetTrade)
	g.POST("/:id/close", h.CloseTrade)
	g.POST("/:id/cancel", h.CancelTrade)
	g.POST("/:id/cancel-close", h.CancelClose)
	g.POST("/:id/adjust", h.AdjustTrade)
}

// ListTrades godoc
// @Summary List trades
// @Description List trades newest first, optionally filtered by status and symbol
// @Tags trades
// @Produce  json
// @Param   status  query   string  false   "Trade status"
// @Param   symbol  query   string  false   "Ticker symbol"
// @Param   limit   query   int     false   "Page size"
// @Param   offset  query   int     false   "Page offset"
// @Success 200 {array} dto.TradeResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /trades [get]
func (h *TradeHandler) ListTrades(c echo.Context) error {
	var req dto.ListTradesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}

	trades, err := h.positionService.List(c.Request().Context(), req)
	if err != nil {
		return respondError(c, h.logger, "Failed to list trades", err)
	}
	return c.JSON(http.StatusOK, trades)
}

// GetSummary godoc
// @Summary Trade statistics
// @Description Aggregate counts, realized P&L, win rate and top symbols
// @Tags trades
// @Produce  json
// @Success 200 {object} dto.TradeSummary
// @Failure 500 {object} dto.ErrorResponse
// @Router /trades/summary [get]
func (h *TradeHandler) GetSummary(c echo.Context) error {
	summary, err := h.positionService.Summary(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, "Failed to get trade summary", err)
	}
	return c.JSON(http.StatusOK, summary)
}

// GetTrade godoc
// @Summary Get a trade by ID
// @Tags trades
// @Produce  json
// @Param   id  path    int true    "Trade ID"
// @Success 200 {object} dto.TradeResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /trades/{id} [get]
func (h *TradeHandler) GetTrade(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return badRequest(c, err)
	}

	trade, err := h.positionService.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.logger, "Failed to get trade", err)
	}
	return c.JSON(http.StatusOK, trade)
}

// CloseTrade godoc
// @Summary Close an open trade
// @Description Submits the opposing market order; the trade moves to pending_close
// @Tags trades
// @Accept  json
// @Produce  json
// @Param   id      path    int                     true    "Trade ID"
// @Param   request body    dto.CloseTradeRequest   false   "Close reason"
// @Success 200 {object} entity.Trade
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /trades/{id}/close [post]
func (h *TradeHandler) CloseTrade(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return badRequest(c, err)
	}

	var req dto.CloseTradeRequest
	if c.Request().ContentLength > 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return badRequest(c, err)
		}
	}

	trade, err := h.positionService.Close(c.Request().Context(), id, req.Reason)
	if err != nil {
		return respondError(c, h.logger, "Failed to close trade", err)
	}
	return c.JSON(http.StatusOK, trade)
}

// CancelTrade godoc
// @Summary Cancel a pending entry
// @Tags trades
// @Produce  json
// @Param   id  path    int true    "Trade ID"
// @Success 200 {object} entity.Trade
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /trades/{id}/cancel [post]
func (h *TradeHandler) CancelTrade(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return badRequest(c, err)
	}

	trade, err := h.positionService.Cancel(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.logger, "Failed to cancel trade", err)
	}
	return c.JSON(http.StatusOK, trade)
}

// CancelClose godoc
// @Summary Cancel an outstanding close order
// @Description Restores the trade to open when the broker confirms the cancellation
// @Tags trades
// @Produce  json
// @Param   id  path    int true    "Trade ID"
// @Success 200 {object} entity.Trade
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /trades/{id}/cancel-close [post]
func (h *TradeHandler) CancelClose(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return badRequest(c, err)
	}

	trade, err := h.positionService.CancelClose(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.logger, "Failed to cancel close order", err)
	}
	return c.JSON(http.StatusOK, trade)
}

// AdjustTrade godoc
// @Summary Apply the one-time level adjustment
// @Tags trades
// @Accept  json
// @Produce  json
// @Param   id      path    int                     true    "Trade ID"
// @Param   request body    dto.AdjustTradeRequest  true    "Signal confidence"
// @Success 200 {object} entity.Trade
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /trades/{id}/adjust [post]
func (h *TradeHandler) AdjustTrade(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return badRequest(c, err)
	}

	var req dto.AdjustTradeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}

	trade, err := h.positionService.Adjust(c.Request().Context(), id, req.Confidence)
	if err != nil {
		return respondError(c, h.logger, "Failed to adjust trade", err)
	}
	return c.JSON(http.StatusOK, trade)
}

// CloseAll godoc
// @Summary Close every open trade
// @Description Syncs broker positions first, then requests a close for each open trade
// @Tags trades
// @Produce  json
// @Success 200 {object} dto.BulkCloseResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /trades/close-all [post]
func (h *TradeHandler) CloseAll(c echo.Context) error {
	resp, err := h.positionService.CloseAll(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, "Failed to close all trades", err)
	}
	return c.JSON(http.StatusOK, resp)
}
