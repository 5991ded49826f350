package scheduling

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/edops/internal/domain/staffing"
	"github.com/ehr/edops/internal/platform/apperr"
	"github.com/ehr/edops/internal/platform/auth"
	"github.com/ehr/edops/internal/platform/httpx"
	"github.com/ehr/edops/pkg/pagination"
)

const maxBatchSize = 100

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleScheduler, auth.RoleClinician, auth.RoleViewer))
	read.GET("/shifts", h.ListShifts)
	read.GET("/shifts/:id", h.GetShift)
	read.GET("/staffing/policy", h.GetPolicy)
	read.GET("/staffing/requirements/:area", h.GetRequirements)

	write := api.Group("", auth.RequireRole(auth.RoleScheduler))
	write.POST("/shifts/proposals", h.ProposeShift)
	write.POST("/shifts", h.CreateShift)
	write.POST("/shifts/batch", h.CreateShiftBatch)
	write.POST("/shifts/:id/roster", h.AddRosterEntry)
	write.DELETE("/shifts/:id/roster/:employee_id", h.RemoveRosterEntry)
	write.DELETE("/shifts/:id", h.DeleteShift)
}

type proposalRequest struct {
	Date   string                 `json:"date"`
	Type   ShiftType              `json:"type"`
	Area   staffing.CareArea      `json:"area"`
	Roster []staffing.RosterEntry `json:"roster"`
}

func (r proposalRequest) toProposal() (Proposal, error) {
	d, err := time.Parse(time.DateOnly, r.Date)
	if err != nil {
		return Proposal{}, apperr.New(apperr.CodeInvalidShift, "date must be YYYY-MM-DD").WithField("date")
	}
	return Proposal{Date: d, Type: r.Type, Area: r.Area, Roster: r.Roster}, nil
}

func parseUUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) bindProposal(c echo.Context) (Proposal, error) {
	var req proposalRequest
	if err := c.Bind(&req); err != nil {
		return Proposal{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := req.toProposal()
	if err != nil {
		return Proposal{}, httpx.Error(err)
	}
	return p, nil
}

// ProposeShift validates a roster without storing anything.
func (h *Handler) ProposeShift(c echo.Context) error {
	p, err := h.bindProposal(c)
	if err != nil {
		return err
	}
	shift, err := h.svc.Propose(c.Request().Context(), p)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(http.StatusOK, shift)
}

func (h *Handler) CreateShift(c echo.Context) error {
	p, err := h.bindProposal(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	shift, err := h.svc.Propose(ctx, p)
	if err != nil {
		return httpx.Error(err)
	}
	if err := h.svc.Commit(ctx, shift, 0); err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, shift.Version)
	return c.JSON(http.StatusCreated, shift)
}

type batchRequest struct {
	Shifts []proposalRequest `json:"shifts"`
}

type batchResponse struct {
	Results   []BatchResult `json:"results"`
	Committed int           `json:"committed"`
	Failed    int           `json:"failed"`
}

// CreateShiftBatch commits each shift independently and reports every outcome.
func (h *Handler) CreateShiftBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Shifts) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "shifts must not be empty")
	}
	if len(req.Shifts) > maxBatchSize {
		return echo.NewHTTPError(http.StatusBadRequest, "at most "+strconv.Itoa(maxBatchSize)+" shifts per batch")
	}

	proposals := make([]Proposal, len(req.Shifts))
	for i, r := range req.Shifts {
		p, err := r.toProposal()
		if err != nil {
			ae, _ := apperr.As(err)
			return echo.NewHTTPError(http.StatusBadRequest, ae.WithDetails(map[string]int{"index": i}))
		}
		proposals[i] = p
	}

	resp := batchResponse{Results: h.svc.CommitBatch(c.Request().Context(), proposals)}
	for _, r := range resp.Results {
		if r.Shift != nil {
			resp.Committed++
		} else {
			resp.Failed++
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetShift(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	shift, err := h.svc.GetShift(c.Request().Context(), id)
	if err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, shift.Version)
	return c.JSON(http.StatusOK, shift)
}

func parseDateQuery(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be YYYY-MM-DD")
	}
	return &d, nil
}

func (h *Handler) ListShifts(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter
	var err error
	if f.Date, err = parseDateQuery(c, "date"); err != nil {
		return err
	}
	if f.From, err = parseDateQuery(c, "from"); err != nil {
		return err
	}
	if f.To, err = parseDateQuery(c, "to"); err != nil {
		return err
	}
	if raw := c.QueryParam("type"); raw != "" {
		t, ok := ParseShiftType(raw)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid type")
		}
		f.Type = t
	}
	if raw := c.QueryParam("area"); raw != "" {
		a, ok := staffing.ParseArea(raw)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid area")
		}
		f.Area = a
	}
	if raw := c.QueryParam("employee_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid employee_id")
		}
		f.EmployeeID = &id
	}

	items, total, err := h.svc.ListShifts(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

type rosterRequest struct {
	EmployeeID uuid.UUID     `json:"employee_id"`
	Role       staffing.Role `json:"role"`
	Version    int           `json:"version"`
}

// AddRosterEntry adds one employee to a stored shift and commits the result
// against the version the client read.
func (h *Handler) AddRosterEntry(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req rosterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.EmployeeID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "employee_id is required")
	}
	expected, err := httpx.ExpectedVersion(c, req.Version)
	if err != nil {
		return httpx.Error(err)
	}

	ctx := c.Request().Context()
	shift, err := h.svc.GetShift(ctx, id)
	if err != nil {
		return httpx.Error(err)
	}
	if err := h.svc.AddEmployee(ctx, shift, req.EmployeeID, req.Role); err != nil {
		return httpx.Error(err)
	}
	if err := h.svc.Commit(ctx, shift, expected); err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, shift.Version)
	return c.JSON(http.StatusOK, shift)
}

// RemoveRosterEntry takes the expected version from If-Match or ?version=.
func (h *Handler) RemoveRosterEntry(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	employeeID, err := parseUUIDParam(c, "employee_id")
	if err != nil {
		return err
	}
	queryVersion, _ := strconv.Atoi(c.QueryParam("version"))
	expected, err := httpx.ExpectedVersion(c, queryVersion)
	if err != nil {
		return httpx.Error(err)
	}

	ctx := c.Request().Context()
	shift, err := h.svc.GetShift(ctx, id)
	if err != nil {
		return httpx.Error(err)
	}
	if err := h.svc.RemoveEmployee(shift, employeeID); err != nil {
		return httpx.Error(err)
	}
	if err := h.svc.Commit(ctx, shift, expected); err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, shift.Version)
	return c.JSON(http.StatusOK, shift)
}

func (h *Handler) DeleteShift(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteShift(c.Request().Context(), id); err != nil {
		return httpx.Error(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetPolicy(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Policy())
}

func (h *Handler) GetRequirements(c echo.Context) error {
	reqs, err := h.svc.Requirements(staffing.CareArea(c.Param("area")))
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(http.StatusOK, reqs)
}
