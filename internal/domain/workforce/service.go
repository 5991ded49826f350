package workforce

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/edops/internal/domain/staffing"
	"github.com/ehr/edops/internal/platform/apperr"
)

type Service struct {
	employees EmployeeRepository
	leaves    LeaveRepository
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(employees EmployeeRepository, leaves LeaveRepository) *Service {
	return &Service{employees: employees, leaves: leaves, logger: zerolog.Nop(), now: time.Now}
}

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

func validate(e *Employee) error {
	e.FirstName = strings.TrimSpace(e.FirstName)
	e.LastName = strings.TrimSpace(e.LastName)
	if e.FirstName == "" {
		return apperr.New(apperr.CodeInvalidInput, "first_name is required").WithField("first_name")
	}
	if e.LastName == "" {
		return apperr.New(apperr.CodeInvalidInput, "last_name is required").WithField("last_name")
	}
	role, ok := staffing.ParseRole(string(e.Role))
	if !ok {
		return apperr.New(apperr.CodeInvalidInput, "unknown role %q", e.Role).WithField("role")
	}
	e.Role = role
	if e.Status == "" {
		e.Status = staffing.StatusActive
	}
	if !e.Status.Valid() {
		return apperr.New(apperr.CodeInvalidInput, "unknown status %q", e.Status).WithField("status")
	}
	if e.LeaveQuota < 0 {
		return apperr.New(apperr.CodeInvalidInput, "leave_quota must not be negative").WithField("leave_quota")
	}
	if email := deref(e.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return apperr.New(apperr.CodeInvalidInput, "invalid email %q", email).WithField("email")
		}
	}
	return nil
}

// CreateEmployee stores a new employee. A zero leave quota means the default
// allowance.
func (s *Service) CreateEmployee(ctx context.Context, e *Employee) error {
	if err := validate(e); err != nil {
		return err
	}
	if e.LeaveQuota == 0 {
		e.LeaveQuota = DefaultLeaveQuota
	}
	if err := s.employees.Create(ctx, e); err != nil {
		return err
	}
	s.logger.Info().Str("employee_id", e.ID.String()).Str("role", string(e.Role)).Msg("employee created")
	return nil
}

func (s *Service) GetEmployee(ctx context.Context, id uuid.UUID) (*Employee, error) {
	return s.employees.GetByID(ctx, id)
}

// UpdateEmployee replaces the mutable fields of the stored employee.
func (s *Service) UpdateEmployee(ctx context.Context, e *Employee, expected int) error {
	if err := validate(e); err != nil {
		return err
	}
	return s.employees.UpdateIfVersion(ctx, e, expected)
}

// SetStatus changes only the employment status. Shifts already committed are
// left alone; the employee can no longer be added to new rosters unless active.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status staffing.EmploymentStatus, expected int) (*Employee, error) {
	if !status.Valid() {
		return nil, apperr.New(apperr.CodeInvalidInput, "unknown status %q", status).WithField("status")
	}
	e, err := s.employees.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Version != expected {
		return nil, apperr.StaleWrite("employee", id, expected)
	}
	from := e.Status
	e.Status = status
	if err := s.employees.UpdateIfVersion(ctx, e, expected); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("employee_id", id.String()).
		Str("from", string(from)).
		Str("to", string(status)).
		Msg("employee status changed")
	return e, nil
}

func (s *Service) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	return s.employees.Delete(ctx, id)
}

func (s *Service) SearchEmployees(ctx context.Context, f Filter, limit, offset int) ([]*Employee, int, error) {
	return s.employees.Search(ctx, f, limit, offset)
}

// Lookup fetches the employees behind a roster.
func (s *Service) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Employee, error) {
	return s.employees.GetByIDs(ctx, ids)
}

// OnLeave reports which of ids hold approved leave covering day.
func (s *Service) OnLeave(ctx context.Context, ids []uuid.UUID, day time.Time) (map[uuid.UUID]bool, error) {
	return s.leaves.Covering(ctx, ids, day)
}
