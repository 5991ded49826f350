package workforce

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/edops/internal/domain/staffing"
	"github.com/ehr/edops/internal/platform/apperr"
	"github.com/ehr/edops/internal/platform/auth"
	"github.com/ehr/edops/internal/platform/httpx"
	"github.com/ehr/edops/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleScheduler, auth.RoleClinician, auth.RoleViewer))
	read.GET("/employees", h.ListEmployees)
	read.GET("/employees/:id", h.GetEmployee)
	read.GET("/leave-requests", h.ListLeave)
	read.GET("/leave-requests/:id", h.GetLeave)

	request := api.Group("", auth.RequireRole(auth.RoleScheduler, auth.RoleClinician))
	request.POST("/leave-requests", h.RequestLeave)

	write := api.Group("", auth.RequireRole(auth.RoleScheduler))
	write.POST("/employees", h.CreateEmployee)
	write.PUT("/employees/:id", h.UpdateEmployee)
	write.PATCH("/employees/:id/status", h.SetStatus)
	write.DELETE("/employees/:id", h.DeleteEmployee)
	write.POST("/leave-requests/:id/approve", h.ApproveLeave)
	write.POST("/leave-requests/:id/reject", h.RejectLeave)
	write.DELETE("/leave-requests/:id", h.DeleteLeave)
}

type employeeRequest struct {
	FirstName  string                    `json:"first_name"`
	LastName   string                    `json:"last_name"`
	Email      *string                   `json:"email"`
	Phone      *string                   `json:"phone"`
	Role       staffing.Role             `json:"role"`
	Status     staffing.EmploymentStatus `json:"status"`
	JoinDate   string                    `json:"join_date"`
	LeaveQuota int                       `json:"leave_quota"`
	Version    int                       `json:"version"`
}

func (r employeeRequest) toEmployee() (*Employee, error) {
	e := &Employee{
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		Phone:      r.Phone,
		Role:       r.Role,
		Status:     r.Status,
		LeaveQuota: r.LeaveQuota,
	}
	if r.JoinDate != "" {
		d, err := time.Parse(time.DateOnly, r.JoinDate)
		if err != nil {
			return nil, apperr.New(apperr.CodeInvalidInput, "join_date must be YYYY-MM-DD").WithField("join_date")
		}
		e.JoinDate = &d
	}
	return e, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateEmployee(c echo.Context) error {
	var req employeeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e, err := req.toEmployee()
	if err != nil {
		return httpx.Error(err)
	}
	if err := h.svc.CreateEmployee(c.Request().Context(), e); err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, e.Version)
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEmployee(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.GetEmployee(c.Request().Context(), id)
	if err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, e.Version)
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListEmployees(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Status: staffing.EmploymentStatus(c.QueryParam("status")),
		Name:   c.QueryParam("name"),
	}
	if raw := c.QueryParam("role"); raw != "" {
		role, ok := staffing.ParseRole(raw)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid role")
		}
		f.Role = role
	}
	if f.Status != "" && !f.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	items, total, err := h.svc.SearchEmployees(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) UpdateEmployee(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req employeeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	expected, err := httpx.ExpectedVersion(c, req.Version)
	if err != nil {
		return httpx.Error(err)
	}
	e, err := req.toEmployee()
	if err != nil {
		return httpx.Error(err)
	}
	e.ID = id
	if err := h.svc.UpdateEmployee(c.Request().Context(), e, expected); err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, e.Version)
	return c.JSON(http.StatusOK, e)
}

type statusRequest struct {
	Status  staffing.EmploymentStatus `json:"status"`
	Version int                       `json:"version"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	expected, err := httpx.ExpectedVersion(c, req.Version)
	if err != nil {
		return httpx.Error(err)
	}
	e, err := h.svc.SetStatus(c.Request().Context(), id, req.Status, expected)
	if err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, e.Version)
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteEmployee(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteEmployee(c.Request().Context(), id); err != nil {
		return httpx.Error(err)
	}
	return c.NoContent(http.StatusNoContent)
}
