package investigation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create stores the session and all of its results atomically.
	Create(ctx context.Context, inv *Investigation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Investigation, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Investigation, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
