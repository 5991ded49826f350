package analytics

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/edops/internal/platform/auth"
)

// Source is the read side of the analytics service.
type Source interface {
	GetAnomalies(ctx context.Context) ([]Anomaly, error)
	GetForecast(ctx context.Context) ([]ForecastPoint, error)
}

type Handler struct {
	src Source
}

func NewHandler(src Source) *Handler {
	return &Handler{src: src}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/analytics", auth.RequireRole(auth.RoleScheduler, auth.RoleClinician, auth.RoleViewer))
	g.GET("/anomalies", h.Anomalies)
	g.GET("/forecast", h.Forecast)
}

func (h *Handler) Anomalies(c echo.Context) error {
	items, err := h.src.GetAnomalies(c.Request().Context())
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) Forecast(c echo.Context) error {
	points, err := h.src.GetForecast(c.Request().Context())
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": points})
}

func upstreamError(err error) error {
	if errors.Is(err, ErrInsufficientData) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity,
			map[string]string{"code": "insufficient_data", "message": err.Error()}).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusBadGateway,
		map[string]string{"code": "upstream_unavailable", "message": "analytics service unavailable"}).SetInternal(err)
}
