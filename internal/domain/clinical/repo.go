package clinical

import (
	"context"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/domain/clinicalcalc"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]*Entry, int, error)
	// Latest returns the most recently recorded entry of section, or a not
	// found error.
	Latest(ctx context.Context, patientID uuid.UUID, section clinicalcalc.Section) (*Entry, error)
}
