package appointment

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

// Transition is a compare-and-swap status change. It only applies when the
// row has the given id, the owner column equals OwnerID and the current
// status is one of From.
type Transition struct {
	ID      uuid.UUID
	Owner   Owner
	OwnerID uuid.UUID
	From    []Status
	To      Status
	Notes   *string
}

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Transition returns the updated row and the status it moved from, or
	// pgx.ErrNoRows when the precondition did not hold.
	Transition(ctx context.Context, t Transition) (*Appointment, Status, error)
	UpdateNotes(ctx context.Context, id, patientID uuid.UUID, notes string) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error)
	AddPrescription(ctx context.Context, id, prescriptionID uuid.UUID) error
	RemovePrescription(ctx context.Context, id, prescriptionID uuid.UUID) error
}

type HistoryRepository interface {
	Add(ctx context.Context, c *StatusChange) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*StatusChange, error)
}
