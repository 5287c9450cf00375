package medication

import (
	"context"

	"github.com/google/uuid"
)

type ReviewRepository interface {
	Create(ctx context.Context, r *Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*Review, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Review, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Review, int, error)
}

type ReconciliationRepository interface {
	Create(ctx context.Context, r *Reconciliation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reconciliation, error)
	// GetForUpdate locks the row of a reconciliation owned by doctorID for
	// the rest of the surrounding transaction.
	GetForUpdate(ctx context.Context, id, doctorID uuid.UUID) (*Reconciliation, error)
	SaveDiscrepancies(ctx context.Context, r *Reconciliation) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reconciliation, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Reconciliation, int, error)
}
