package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores patients. Every read and write is scoped to the owning
// user; a patient of another owner is reported as not found.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, ownerID uuid.UUID, query string, limit, offset int) ([]*Patient, int, error)
	ListAll(ctx context.Context, ownerID uuid.UUID) ([]*Patient, error)
}
