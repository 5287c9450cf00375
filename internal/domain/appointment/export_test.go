package appointment

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/events"
)

// NewTestService builds a Service over the in-memory repositories with one
// doctor at the given location.
func NewTestService(doctorID uuid.UUID, location string, pub events.Publisher) *Service {
	dir := &mockDirectory{doctors: map[uuid.UUID]*identity.DoctorProfile{
		doctorID: {ID: uuid.New(), AccountID: doctorID, Location: location},
	}}
	return NewService(newMockApptRepo(), &mockHistoryRepo{}, dir, db.NoopTxRunner{}, events.NewEmitter(pub, zerolog.Nop()), zerolog.Nop())
}
