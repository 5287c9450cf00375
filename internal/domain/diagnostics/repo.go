package diagnostics

import (
	"context"

	"github.com/google/uuid"
)

// Owner names the column a transition is scoped to.
type Owner int

const (
	OwnerPatient Owner = iota
	OwnerDoctor
)

// Transition is a compare-and-swap status change. Result, when set, is
// stored together with has_results = true.
type Transition struct {
	ID      uuid.UUID
	Owner   Owner
	OwnerID uuid.UUID
	From    []Status
	To      Status
	Result  *Result
}

type Repository interface {
	Create(ctx context.Context, t *DiagnosticTest) error
	GetByID(ctx context.Context, id uuid.UUID) (*DiagnosticTest, error)
	// Transition returns pgx.ErrNoRows when the precondition did not hold.
	Transition(ctx context.Context, t Transition) (*DiagnosticTest, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*DiagnosticTest, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*DiagnosticTest, int, error)
}
