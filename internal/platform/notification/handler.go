package notification

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/edops/internal/platform/apperr"
	"github.com/ehr/edops/internal/platform/auth"
	"github.com/ehr/edops/pkg/pagination"
)

type Handler struct {
	manager *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleScheduler))
	read.GET("/notifications", h.List)
	read.GET("/notifications/stats", h.Stats)
	read.GET("/notifications/:id", h.Get)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/notifications/send-template", h.SendTemplate)
	write.POST("/notifications/:id/retry", h.Retry)
}

type sendTemplateRequest struct {
	TemplateID string            `json:"template_id"`
	Channel    Channel           `json:"channel"`
	Address    string            `json:"address"`
	Data       map[string]string `json:"data"`
}

// SendTemplate answers 201 with the logged message even when delivery failed;
// the status field tells the caller which.
func (h *Handler) SendTemplate(c echo.Context) error {
	var req sendTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	id, err := h.manager.SendTemplate(ctx, req.TemplateID, req.Channel, req.Address, req.Data)
	if err != nil && !IsDeliveryError(err) {
		return apperr.ToHTTP(err)
	}
	msg, err := h.manager.Get(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *Handler) Get(c echo.Context) error {
	msg, err := h.manager.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	all := h.manager.List(c.Request().Context(), c.QueryParam("address"))
	return c.JSON(http.StatusOK, pagination.NewPage(pagination.Slice(all, pg), len(all), pg))
}

func (h *Handler) Retry(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.manager.Retry(ctx, c.Param("id")); err != nil && !IsDeliveryError(err) {
		return apperr.ToHTTP(err)
	}
	msg, err := h.manager.Get(ctx, c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats(c.Request().Context()))
}
