package http

import (
	"net/http"

	"golang-news-trader/internal/entity"
	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ActivityHandler serves the activity log.
type ActivityHandler struct {
	activityRepo repository.ActivityLogRepository
	logger       *logger.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(activityRepo repository.ActivityLogRepository, logger *logger.Logger) *ActivityHandler {
	return &ActivityHandler{activityRepo: activityRepo, logger: logger}
}

// RegisterRoutes registers the activity routes to the Echo group.
func (h *ActivityHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.ListActivities)
}

// ListActivities godoc
// @Summary List recent activity
// @Tags activities
// @Produce  json
// @Param   type    query   string  false   "Activity type"
// @Param   limit   query   int     false   "Page size"
// @Success 200 {array} entity.ActivityLog
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /activities [get]
func (h *ActivityHandler) ListActivities(c echo.Context) error {
	var req dto.ListActivitiesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}

	param := repository.GetActivityLogsParam{Limit: req.Limit}
	if req.Type != "" {
		param.Types = []entity.ActivityType{entity.ActivityType(req.Type)}
	}
	logs, err := h.activityRepo.List(c.Request().Context(), param)
	if err != nil {
		return respondError(c, h.logger, "Failed to list activities", err)
	}
	return c.JSON(http.StatusOK, logs)
}
