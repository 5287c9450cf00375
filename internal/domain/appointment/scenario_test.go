package appointment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/domain/appointment"
	"github.com/telecare/telecare/internal/domain/prescription"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/events"
)

// memRx is the minimum prescription store the scenarios need.
type memRx struct {
	store map[uuid.UUID]*prescription.Prescription
}

func (m *memRx) Create(_ context.Context, p *prescription.Prescription) error {
	p.ID = uuid.New()
	p.IssuedAt = time.Now()
	m.store[p.ID] = p
	return nil
}

func (m *memRx) GetByID(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	if p, ok := m.store[id]; ok {
		return p, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *memRx) Update(context.Context, uuid.UUID, uuid.UUID, prescription.Patch) (*prescription.Prescription, error) {
	return nil, pgx.ErrNoRows
}

func (m *memRx) Delete(_ context.Context, id, doctorID uuid.UUID) (*prescription.Prescription, error) {
	p, ok := m.store[id]
	if !ok || p.DoctorID != doctorID {
		return nil, pgx.ErrNoRows
	}
	delete(m.store, id)
	return p, nil
}

func (m *memRx) ListByPatient(context.Context, uuid.UUID, int, int) ([]*prescription.Prescription, int, error) {
	return nil, 0, nil
}

func (m *memRx) ListByDoctor(context.Context, uuid.UUID, int, int) ([]*prescription.Prescription, int, error) {
	return nil, 0, nil
}

func (m *memRx) ListByAppointment(context.Context, uuid.UUID, int, int) ([]*prescription.Prescription, int, error) {
	return nil, 0, nil
}

type world struct {
	appts   *appointment.Service
	rx      *prescription.Service
	patient auth.Caller
	doctor  auth.Caller
	events  []events.Event
}

func newWorld() *world {
	w := &world{
		patient: auth.Caller{ID: uuid.New(), Role: auth.RolePatient},
		doctor:  auth.Caller{ID: uuid.New(), Role: auth.RoleDoctor},
	}
	pub := events.PublisherFunc(func(_ context.Context, e events.Event) error {
		w.events = append(w.events, e)
		return nil
	})
	w.appts = appointment.NewTestService(w.doctor.ID, "Room 4, Main St", pub)
	w.rx = prescription.NewService(&memRx{store: map[uuid.UUID]*prescription.Prescription{}}, w.appts,
		db.NoopTxRunner{}, events.NewEmitter(pub, zerolog.Nop()), zerolog.Nop())
	return w
}

func TestScenario_MetforminFollowUp(t *testing.T) {
	w := newWorld()
	ctx := context.Background()

	a, err := w.appts.Request(ctx, w.patient, appointment.RequestInput{
		DoctorID: w.doctor.ID,
		Date:     time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Time:     "10:00",
		Type:     appointment.VisitVideo,
		Reason:   "follow-up",
	})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, a.Status)
	assert.Equal(t, "Room 4, Main St", a.Location)

	a, err = w.appts.DoctorRespond(ctx, w.doctor, a.ID, appointment.ResponseAccept, nil)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusDoctorAccepted, a.Status)

	a, err = w.appts.PatientConfirm(ctx, w.patient, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, a.Status)

	p, err := w.rx.Create(ctx, w.doctor, prescription.CreateInput{
		AppointmentID: a.ID,
		Diagnosis:     "Type 2 diabetes",
		Medications: []prescription.Medication{{
			Name: "Metformin", Dosage: "500mg", Frequency: "twice daily", Duration: "30 days",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, w.patient.ID, p.PatientID)

	a, err = w.appts.Get(ctx, w.patient, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p.ID}, a.Prescriptions)

	a, err = w.appts.Complete(ctx, w.doctor, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, a.Status)

	types := make([]string, len(w.events))
	for i, e := range w.events {
		types[i] = e.Type
	}
	assert.Equal(t, []string{
		"appointment.requested",
		"appointment.accepted",
		"appointment.confirmed",
		"prescription.created",
		"appointment.completed",
	}, types)
}

func TestScenario_AcceptAfterConfirmFails(t *testing.T) {
	w := newWorld()
	ctx := context.Background()

	a, err := w.appts.Request(ctx, w.patient, appointment.RequestInput{
		DoctorID: w.doctor.ID, Date: time.Now(), Time: "08:15", Type: appointment.VisitInPerson, Reason: "cough",
	})
	require.NoError(t, err)
	_, err = w.appts.DoctorRespond(ctx, w.doctor, a.ID, appointment.ResponseAccept, nil)
	require.NoError(t, err)
	_, err = w.appts.PatientConfirm(ctx, w.patient, a.ID)
	require.NoError(t, err)

	_, err = w.appts.DoctorRespond(ctx, w.doctor, a.ID, appointment.ResponseAccept, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	got, err := w.appts.Get(ctx, w.doctor, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)
}

func TestScenario_PrescriptionOnOtherDoctorsAppointment(t *testing.T) {
	w := newWorld()
	ctx := context.Background()

	a, err := w.appts.Request(ctx, w.patient, appointment.RequestInput{
		DoctorID: w.doctor.ID, Date: time.Now(), Time: "11:00", Type: appointment.VisitPhone, Reason: "refill",
	})
	require.NoError(t, err)

	intruder := auth.Caller{ID: uuid.New(), Role: auth.RoleDoctor}
	_, err = w.rx.Create(ctx, intruder, prescription.CreateInput{
		AppointmentID: a.ID,
		Diagnosis:     "x",
		Medications:   []prescription.Medication{{Name: "a", Dosage: "b", Frequency: "c", Duration: "d"}},
	})
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	got, err := w.appts.Get(ctx, w.patient, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Prescriptions)
}

func TestScenario_DeletePullsReference(t *testing.T) {
	w := newWorld()
	ctx := context.Background()

	a, err := w.appts.Request(ctx, w.patient, appointment.RequestInput{
		DoctorID: w.doctor.ID, Date: time.Now(), Time: "16:45", Type: appointment.VisitVideo, Reason: "review",
	})
	require.NoError(t, err)

	meds := []prescription.Medication{{Name: "Lisinopril", Dosage: "10mg", Frequency: "daily", Duration: "90 days"}}
	keep, err := w.rx.Create(ctx, w.doctor, prescription.CreateInput{AppointmentID: a.ID, Diagnosis: "hypertension", Medications: meds})
	require.NoError(t, err)
	drop, err := w.rx.Create(ctx, w.doctor, prescription.CreateInput{AppointmentID: a.ID, Diagnosis: "hypertension", Medications: meds})
	require.NoError(t, err)

	require.NoError(t, w.rx.Delete(ctx, w.doctor, drop.ID))

	got, err := w.appts.Get(ctx, w.doctor, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{keep.ID}, got.Prescriptions)
}
