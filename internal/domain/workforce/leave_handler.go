package workforce

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/edops/internal/platform/apperr"
	"github.com/ehr/edops/internal/platform/auth"
	"github.com/ehr/edops/internal/platform/httpx"
	"github.com/ehr/edops/pkg/pagination"
)

type leaveRequestBody struct {
	EmployeeID uuid.UUID `json:"employee_id"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	Type       LeaveType `json:"leave_type"`
	Reason     string    `json:"reason"`
}

func parseDate(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, apperr.New(apperr.CodeInvalidInput, "%s must be YYYY-MM-DD", field).WithField(field)
	}
	return d, nil
}

func (h *Handler) RequestLeave(c echo.Context) error {
	var req leaveRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	start, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		return httpx.Error(err)
	}
	end, err := parseDate(req.EndDate, "end_date")
	if err != nil {
		return httpx.Error(err)
	}
	l := &LeaveRequest{EmployeeID: req.EmployeeID, StartDate: start, EndDate: end, Type: req.Type, Reason: req.Reason}
	if err := h.svc.RequestLeave(c.Request().Context(), l); err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, l.Version)
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetLeave(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLeave(c.Request().Context(), id)
	if err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, l.Version)
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ListLeave(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := LeaveFilter{Status: LeaveStatus(c.QueryParam("status"))}
	if f.Status != "" && !f.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	if raw := c.QueryParam("employee_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid employee_id")
		}
		f.EmployeeID = &id
	}
	if raw := c.QueryParam("on"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "on must be YYYY-MM-DD")
		}
		f.On = &d
	}
	items, total, err := h.svc.SearchLeave(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

type decisionRequest struct {
	Version int `json:"version"`
}

func (h *Handler) ApproveLeave(c echo.Context) error {
	return h.decide(c, h.svc.ApproveLeave)
}

func (h *Handler) RejectLeave(c echo.Context) error {
	return h.decide(c, h.svc.RejectLeave)
}

type decideFunc func(ctx context.Context, id uuid.UUID, decidedBy string, expected int) (*LeaveRequest, error)

func (h *Handler) decide(c echo.Context, fn decideFunc) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	expected, err := httpx.ExpectedVersion(c, req.Version)
	if err != nil {
		return httpx.Error(err)
	}
	ctx := c.Request().Context()
	l, err := fn(ctx, id, auth.UserIDFromContext(ctx), expected)
	if err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, l.Version)
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteLeave(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLeave(c.Request().Context(), id); err != nil {
		return httpx.Error(err)
	}
	return c.NoContent(http.StatusNoContent)
}
