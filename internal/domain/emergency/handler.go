package emergency

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/edops/internal/domain/triage"
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
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleViewer))
	read.GET("/patients", h.ListPatients)
	read.GET("/patients/:id", h.GetPatient)
	read.GET("/patients/:id/status-history", h.GetStatusHistory)

	write := api.Group("", auth.RequireRole(auth.RoleClinician))
	write.POST("/patients", h.RegisterPatient)
	write.POST("/patients/:id/triage", h.RecordTriage)
	write.POST("/patients/:id/transitions", h.Transition)
	write.POST("/triage/classify", h.Classify)
}

type patientRequest struct {
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	BirthDate         string     `json:"birth_date"`
	Sex               *string    `json:"sex"`
	Phone             *string    `json:"phone"`
	ArrivalTime       *time.Time `json:"arrival_time"`
	ReportedComplaint *string    `json:"reported_complaint"`
}

func (r patientRequest) toPatient() (*Patient, error) {
	p := &Patient{
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Sex:               r.Sex,
		Phone:             r.Phone,
		ReportedComplaint: r.ReportedComplaint,
	}
	if r.BirthDate != "" {
		d, err := time.Parse(time.DateOnly, r.BirthDate)
		if err != nil {
			return nil, apperr.New(apperr.CodeInvalidInput, "birth_date must be YYYY-MM-DD").WithField("birth_date")
		}
		p.BirthDate = &d
	}
	if r.ArrivalTime != nil {
		p.ArrivalTime = *r.ArrivalTime
	}
	return p, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := req.toPatient()
	if err != nil {
		return httpx.Error(err)
	}
	if err := h.svc.RegisterPatient(c.Request().Context(), p); err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, p.Version)
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, p.Version)
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Name: c.QueryParam("name")}
	if raw := c.QueryParam("status"); raw != "" {
		st, ok := ParseStatus(raw)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = st
	}
	items, total, err := h.svc.ListPatients(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) GetStatusHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	history, err := h.svc.StatusHistory(c.Request().Context(), id)
	if err != nil {
		return httpx.Error(err)
	}
	if history == nil {
		history = []*StatusChange{}
	}
	return c.JSON(http.StatusOK, history)
}

type triageRequest struct {
	triage.Observation
	Version int `json:"version"`
}

type triageResponse struct {
	Patient *Patient      `json:"patient"`
	Record  *TriageRecord `json:"record"`
}

func (h *Handler) RecordTriage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req triageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	expected, err := httpx.ExpectedVersion(c, req.Version)
	if err != nil {
		return httpx.Error(err)
	}
	ctx := c.Request().Context()
	p, rec, err := h.svc.RecordTriage(ctx, id, req.Observation, expected, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, p.Version)
	return c.JSON(http.StatusCreated, triageResponse{Patient: p, Record: rec})
}

type transitionRequest struct {
	Status  Status `json:"status"`
	Reason  string `json:"reason"`
	Version int    `json:"version"`
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	expected, err := httpx.ExpectedVersion(c, req.Version)
	if err != nil {
		return httpx.Error(err)
	}
	ctx := c.Request().Context()
	p, err := h.svc.Transition(ctx, id, req.Status, expected, auth.UserIDFromContext(ctx), req.Reason)
	if err != nil {
		return httpx.Error(err)
	}
	httpx.SetETag(c, p.Version)
	return c.JSON(http.StatusOK, p)
}

// Classify previews a triage classification without touching any patient.
func (h *Handler) Classify(c echo.Context) error {
	var obs triage.Observation
	if err := c.Bind(&obs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cls, err := triage.Classify(obs)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(http.StatusOK, cls)
}
