package workforce

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/edops/internal/platform/apperr"
)

func validateLeave(l *LeaveRequest) error {
	if l.EmployeeID == uuid.Nil {
		return apperr.New(apperr.CodeInvalidInput, "employee_id is required").WithField("employee_id")
	}
	if l.StartDate.IsZero() {
		return apperr.New(apperr.CodeInvalidInput, "start_date is required").WithField("start_date")
	}
	if l.EndDate.IsZero() {
		return apperr.New(apperr.CodeInvalidInput, "end_date is required").WithField("end_date")
	}
	l.StartDate, l.EndDate = day(l.StartDate), day(l.EndDate)
	if l.EndDate.Before(l.StartDate) {
		return apperr.New(apperr.CodeInvalidInput, "end_date must not be before start_date").WithField("end_date")
	}
	l.Reason = strings.TrimSpace(l.Reason)
	if l.Reason == "" {
		return apperr.New(apperr.CodeInvalidInput, "reason is required").WithField("reason")
	}
	t, ok := ParseLeaveType(string(l.Type))
	if !ok {
		return apperr.New(apperr.CodeInvalidInput, "unknown leave type %q", l.Type).WithField("leave_type")
	}
	l.Type = t
	return nil
}

func quotaCheck(e *Employee, l *LeaveRequest) error {
	if l.Days() > e.LeaveQuota {
		return apperr.New(apperr.CodeLeaveQuotaExceeded, "%d days requested, %d left", l.Days(), e.LeaveQuota).
			WithField("end_date")
	}
	return nil
}

// RequestLeave files a pending request. The span must fit in the employee's
// remaining quota.
func (s *Service) RequestLeave(ctx context.Context, l *LeaveRequest) error {
	if err := validateLeave(l); err != nil {
		return err
	}
	emp, err := s.employees.GetByID(ctx, l.EmployeeID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return apperr.New(apperr.CodeUnknownEmployee, "employee %s does not exist", l.EmployeeID).WithField("employee_id")
	}
	if err != nil {
		return err
	}
	if err := quotaCheck(emp, l); err != nil {
		return err
	}
	l.Status = LeavePending
	l.DecidedBy, l.DecidedAt = nil, nil
	if err := s.leaves.Create(ctx, l); err != nil {
		return err
	}
	s.logger.Info().
		Str("leave_id", l.ID.String()).
		Str("employee_id", l.EmployeeID.String()).
		Int("days", l.Days()).
		Msg("leave requested")
	return nil
}

func (s *Service) GetLeave(ctx context.Context, id uuid.UUID) (*LeaveRequest, error) {
	return s.leaves.GetByID(ctx, id)
}

func (s *Service) SearchLeave(ctx context.Context, f LeaveFilter, limit, offset int) ([]*LeaveRequest, int, error) {
	return s.leaves.Search(ctx, f, limit, offset)
}

// ApproveLeave approves a pending request and draws its days from the quota.
// From then on the employee cannot be added to shifts on those days.
func (s *Service) ApproveLeave(ctx context.Context, id uuid.UUID, decidedBy string, expected int) (*LeaveRequest, error) {
	return s.decide(ctx, id, LeaveApproved, decidedBy, expected)
}

func (s *Service) RejectLeave(ctx context.Context, id uuid.UUID, decidedBy string, expected int) (*LeaveRequest, error) {
	return s.decide(ctx, id, LeaveRejected, decidedBy, expected)
}

func (s *Service) decide(ctx context.Context, id uuid.UUID, to LeaveStatus, decidedBy string, expected int) (*LeaveRequest, error) {
	l, err := s.leaves.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status != LeavePending {
		return nil, apperr.New(apperr.CodeLeaveNotPending, "leave request %s is already %s", id, l.Status)
	}
	if l.Version != expected {
		return nil, apperr.StaleWrite("leave request", id, expected)
	}
	if to == LeaveApproved {
		emp, err := s.employees.GetByID(ctx, l.EmployeeID)
		if err != nil {
			return nil, err
		}
		if err := quotaCheck(emp, l); err != nil {
			return nil, err
		}
	}

	next := *l
	next.Status = to
	now := s.now().UTC()
	next.DecidedAt = &now
	if decidedBy != "" {
		next.DecidedBy = &decidedBy
	}
	if err := s.leaves.Decide(ctx, &next, expected); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("leave_id", id.String()).
		Str("employee_id", next.EmployeeID.String()).
		Str("status", string(to)).
		Msg("leave decided")
	return &next, nil
}

// DeleteLeave withdraws a request. Approved days go back to the quota.
func (s *Service) DeleteLeave(ctx context.Context, id uuid.UUID) error {
	if err := s.leaves.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("leave_id", id.String()).Msg("leave deleted")
	return nil
}
