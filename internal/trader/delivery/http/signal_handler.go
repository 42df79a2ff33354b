package http

import (
	"net/http"
	"strconv"

	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/service"
	"golang-news-trader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SignalHandler accepts trading signals from outside the stream pipeline.
type SignalHandler struct {
	signalService       service.SignalService
	signalStreamService service.SignalStreamService
	logger              *logger.Logger
}

// NewSignalHandler creates a new SignalHandler.
func NewSignalHandler(signalService service.SignalService, signalStreamService service.SignalStreamService, logger *logger.Logger) *SignalHandler {
	return &SignalHandler{signalService: signalService, signalStreamService: signalStreamService, logger: logger}
}

// RegisterRoutes registers the signal routes to the Echo group.
func (h *SignalHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.SubmitSignal)
}

// SubmitSignal godoc
// @Summary Submit a trading signal
// @Description Enqueues the signal on the trade signal stream, or evaluates it inline with sync=true
// @Tags signals
// @Accept  json
// @Produce  json
// @Param   signal  body    dto.Signal  true    "Signal"
// @Param   sync    query   bool        false   "Evaluate inline"
// @Success 200 {object} dto.SignalResult
// @Success 202 {object} dto.EnqueueSignalResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /signals [post]
func (h *SignalHandler) SubmitSignal(c echo.Context) error {
	var req dto.Signal
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}

	sync := false
	if raw := c.QueryParam("sync"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, err)
		}
		sync = v
	}

	ctx := c.Request().Context()
	if sync {
		result, err := h.signalService.HandleSignal(ctx, req)
		if err != nil {
			return respondError(c, h.logger, "Failed to handle signal", err)
		}
		return c.JSON(http.StatusOK, result)
	}

	id, err := h.signalStreamService.Enqueue(ctx, req)
	if err != nil {
		return respondError(c, h.logger, "Failed to enqueue signal", err)
	}
	return c.JSON(http.StatusAccepted, dto.EnqueueSignalResponse{MessageID: id})
}
