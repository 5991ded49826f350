package emergency

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	// Create stores a new patient at version 1.
	Create(ctx context.Context, p *Patient) error
	// GetByID returns the patient with its triage records in order.
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error)
	// ApplyChange writes c atomically if the stored version equals
	// c.Expected and returns the new version.
	ApplyChange(ctx context.Context, c Change) (int, error)
	StatusHistory(ctx context.Context, patientID uuid.UUID) ([]*StatusChange, error)
}
