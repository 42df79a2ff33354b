package http

import (
	"net/http"

	"golang-news-trader/internal/trader/service"
	"golang-news-trader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// OpsHandler triggers the engine's periodic jobs on demand.
type OpsHandler struct {
	reconcileService service.ReconcileService
	monitorService   service.MonitorService
	orderSyncService service.OrderSyncService
	logger           *logger.Logger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(
	reconcileService service.ReconcileService,
	monitorService service.MonitorService,
	orderSyncService service.OrderSyncService,
	logger *logger.Logger,
) *OpsHandler {
	return &OpsHandler{
		reconcileService: reconcileService,
		monitorService:   monitorService,
		orderSyncService: orderSyncService,
		logger:           logger,
	}
}

// RegisterRoutes registers the ops routes to the Echo group.
func (h *OpsHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/reconcile", h.Reconcile)
	g.POST("/dedupe", h.Dedupe)
	g.POST("/sync-broker", h.SyncBroker)
	g.POST("/monitor-tick", h.MonitorTick)
	g.POST("/sync-orders", h.SyncOrders)
}

// Reconcile godoc
// @Summary Run a full reconciliation pass
// @Tags ops
// @Produce  json
// @Param   dry_run query   bool    false   "Report corrections without writing"
// @Success 200 {object} dto.ReconcileReport
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ops/reconcile [post]
func (h *OpsHandler) Reconcile(c echo.Context) error {
	dryRun, err := parseDryRun(c)
	if err != nil {
		return badRequest(c, err)
	}
	report, err := h.reconcileService.Reconcile(c.Request().Context(), dryRun)
	if err != nil {
		return respondError(c, h.logger, "Reconciliation failed", err)
	}
	return c.JSON(http.StatusOK, report)
}

// Dedupe godoc
// @Summary Collapse duplicate active trades
// @Tags ops
// @Produce  json
// @Param   dry_run query   bool    false   "Report corrections without writing"
// @Success 200 {object} dto.ReconcileReport
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ops/dedupe [post]
func (h *OpsHandler) Dedupe(c echo.Context) error {
	dryRun, err := parseDryRun(c)
	if err != nil {
		return badRequest(c, err)
	}
	report, err := h.reconcileService.Dedupe(c.Request().Context(), dryRun)
	if err != nil {
		return respondError(c, h.logger, "Deduplication failed", err)
	}
	return c.JSON(http.StatusOK, report)
}

// SyncBroker godoc
// @Summary Align local trades with broker positions
// @Tags ops
// @Produce  json
// @Param   dry_run query   bool    false   "Report corrections without writing"
// @Success 200 {object} dto.ReconcileReport
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /ops/sync-broker [post]
func (h *OpsHandler) SyncBroker(c echo.Context) error {
	dryRun, err := parseDryRun(c)
	if err != nil {
		return badRequest(c, err)
	}
	report, err := h.reconcileService.SyncBroker(c.Request().Context(), dryRun)
	if err != nil {
		return respondError(c, h.logger, "Broker sync failed", err)
	}
	return c.JSON(http.StatusOK, report)
}

// MonitorTick godoc
// @Summary Run one position monitor tick
// @Tags ops
// @Produce  json
// @Success 200 {object} dto.MonitorReport
// @Failure 500 {object} dto.ErrorResponse
// @Router /ops/monitor-tick [post]
func (h *OpsHandler) MonitorTick(c echo.Context) error {
	report, err := h.monitorService.Tick(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, "Monitor tick failed", err)
	}
	return c.JSON(http.StatusOK, report)
}

// SyncOrders godoc
// @Summary Confirm pending entry and close orders
// @Tags ops
// @Produce  json
// @Success 200 {object} dto.OrderSyncReport
// @Failure 500 {object} dto.ErrorResponse
// @Router /ops/sync-orders [post]
func (h *OpsHandler) SyncOrders(c echo.Context) error {
	report, err := h.orderSyncService.SyncOrders(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, "Order sync failed", err)
	}
	return c.JSON(http.StatusOK, report)
}
