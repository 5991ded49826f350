package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ShiftRepository interface {
	// Create stores a new shift at version 1. It fails with OverlappingShift
	// when a roster member already holds the slot.
	Create(ctx context.Context, s *Shift) error
	GetByID(ctx context.Context, id uuid.UUID) (*Shift, error)
	// UpdateIfVersion replaces the stored shift, roster included, only if its
	// version equals expected, and bumps s.Version on success.
	UpdateIfVersion(ctx context.Context, s *Shift, expected int) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Shift, int, error)
	// SlotHolders maps each of employeeIDs that holds a stored shift in the
	// date x type slot to that shift's id.
	SlotHolders(ctx context.Context, employeeIDs []uuid.UUID, date time.Time, t ShiftType) (map[uuid.UUID]uuid.UUID, error)
	// CountBetween counts the stored shifts employeeID holds with from <= date
	// < to, ignoring the shift exclude.
	CountBetween(ctx context.Context, employeeID uuid.UUID, from, to time.Time, exclude uuid.UUID) (int, error)
}
