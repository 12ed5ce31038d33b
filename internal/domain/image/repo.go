package image

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, img *Image) error
	GetByID(ctx context.Context, id uuid.UUID) (*Image, error)
	// ListByPatient returns the patient's own images, excluding those
	// attached to investigations.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Image, error)
	ListByInvestigation(ctx context.Context, investigationID uuid.UUID) ([]*Image, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
