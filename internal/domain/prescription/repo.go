package prescription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// Update and Delete match on id and doctor together and return
	// pgx.ErrNoRows when either differs.
	Update(ctx context.Context, id, doctorID uuid.UUID, patch Patch) (*Prescription, error)
	Delete(ctx context.Context, id, doctorID uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
}
