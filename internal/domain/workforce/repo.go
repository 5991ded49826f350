package workforce

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EmployeeRepository interface {
	Create(ctx context.Context, e *Employee) error
	GetByID(ctx context.Context, id uuid.UUID) (*Employee, error)
	// GetByIDs returns the employees that exist; missing ids are absent from the map.
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Employee, error)
	// UpdateIfVersion writes e only if the stored version equals expected and
	// bumps e.Version on success. The leave quota is not written.
	UpdateIfVersion(ctx context.Context, e *Employee, expected int) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Employee, int, error)
}

type LeaveRepository interface {
	Create(ctx context.Context, l *LeaveRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*LeaveRequest, error)
	// Decide writes l's status and decision if the stored request is still
	// pending at version expected. Approval deducts l.Days() from the
	// employee's quota in the same transaction.
	Decide(ctx context.Context, l *LeaveRequest, expected int) error
	// Delete removes the request, returning approved days to the quota.
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f LeaveFilter, limit, offset int) ([]*LeaveRequest, int, error)
	// Covering returns which of ids hold approved leave on day.
	Covering(ctx context.Context, ids []uuid.UUID, day time.Time) (map[uuid.UUID]bool, error)
}
