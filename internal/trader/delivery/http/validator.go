package http

import (
	"errors"
	"net/http"
	"strconv"

	"golang-news-trader/internal/trader/dto"
	"golang-news-trader/internal/trader/repository"
	"golang-news-trader/internal/trader/service"
	"golang-news-trader/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

var errInvalidPayload = errors.New("invalid request payload")

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errInvalidPayload
	}
	return c.Validate(req)
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid trade ID")
	}
	return uint(id), nil
}

func parseDryRun(c echo.Context) (bool, error) {
	raw := c.QueryParam("dry_run")
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrTradeNotFound), errors.Is(err, repository.ErrTrackedCompanyNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidSignal), errors.Is(err, service.ErrInvalidCSVHeader):
		return http.StatusBadRequest
	case service.IsClientError(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, log *logger.Logger, msg string, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error(msg, logger.ErrorField(err), logger.StringField("path", c.Path()))
		return c.JSON(status, dto.ErrorResponse{Error: msg})
	}
	return c.JSON(status, dto.ErrorResponse{Error: err.Error()})
}
