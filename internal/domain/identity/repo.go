package identity

import (
	"context"

	"github.com/google/uuid"
)

type AccountRepository interface {
	// Create inserts the account row and its profile row.
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	PatientProfileByAccount(ctx context.Context, accountID uuid.UUID) (*PatientProfile, error)
	PatientProfileByID(ctx context.Context, profileID uuid.UUID) (*PatientProfile, error)
	ListDoctors(ctx context.Context, specialty string, limit, offset int) ([]*DoctorSummary, int, error)
}
