package prescription

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/events"
)

const resource = "prescription"

// AppointmentLinker is the appointment side of the prescription link.
// appointment.Service satisfies it.
type AppointmentLinker interface {
	PatientForDoctor(ctx context.Context, appointmentID, doctorID uuid.UUID) (uuid.UUID, error)
	AttachPrescription(ctx context.Context, appointmentID, prescriptionID uuid.UUID) error
	DetachPrescription(ctx context.Context, appointmentID, prescriptionID uuid.UUID) error
	Visible(ctx context.Context, caller auth.Caller, appointmentID uuid.UUID) error
}

type Service struct {
	prescriptions Repository
	appointments  AppointmentLinker
	tx            db.TxRunner
	events        *events.Emitter
	logger        zerolog.Logger
}

func NewService(repo Repository, appts AppointmentLinker, tx db.TxRunner, em *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		prescriptions: repo,
		appointments:  appts,
		tx:            tx,
		events:        em,
		logger:        logger.With().Str("component", "prescription").Logger(),
	}
}

type CreateInput struct {
	AppointmentID uuid.UUID
	Diagnosis     string
	Medications   []Medication
	Notes         string
}

func validateMedications(meds []Medication) error {
	if len(meds) == 0 {
		return apperr.Invalid("medications must have at least 1 item(s)")
	}
	for i, m := range meds {
		switch {
		case strings.TrimSpace(m.Name) == "":
			return apperr.Invalid("medications[%d].name is required", i)
		case strings.TrimSpace(m.Dosage) == "":
			return apperr.Invalid("medications[%d].dosage is required", i)
		case strings.TrimSpace(m.Frequency) == "":
			return apperr.Invalid("medications[%d].frequency is required", i)
		case strings.TrimSpace(m.Duration) == "":
			return apperr.Invalid("medications[%d].duration is required", i)
		}
	}
	return nil
}

func requireDoctor(caller auth.Caller) error {
	if !caller.Is(auth.RoleDoctor) {
		return apperr.Forbidden("only the issuing doctor may change prescriptions")
	}
	return nil
}

// Create issues a prescription against one of the caller's appointments.
// The patient is taken from the appointment, and the appointment's list
// gains the new id in the same transaction.
func (s *Service) Create(ctx context.Context, caller auth.Caller, in CreateInput) (*Prescription, error) {
	if err := requireDoctor(caller); err != nil {
		return nil, err
	}
	if in.AppointmentID == uuid.Nil {
		return nil, apperr.Invalid("appointment_id is required")
	}
	diagnosis := strings.TrimSpace(in.Diagnosis)
	if diagnosis == "" {
		return nil, apperr.Invalid("diagnosis is required")
	}
	if err := validateMedications(in.Medications); err != nil {
		return nil, err
	}

	p := &Prescription{
		DoctorID:      caller.ID,
		AppointmentID: in.AppointmentID,
		Diagnosis:     diagnosis,
		Medications:   in.Medications,
		Notes:         in.Notes,
		Status:        StatusActive,
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		patientID, err := s.appointments.PatientForDoctor(ctx, in.AppointmentID, caller.ID)
		if err != nil {
			return err
		}
		p.PatientID = patientID
		if err := s.prescriptions.Create(ctx, p); err != nil {
			return fmt.Errorf("create prescription: %w", err)
		}
		return s.appointments.AttachPrescription(ctx, in.AppointmentID, p.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("prescription_id", p.ID.String()).
		Str("appointment_id", p.AppointmentID.String()).
		Int("medications", len(p.Medications)).
		Msg("prescription issued")
	s.events.Emit(ctx, events.New(resource, "created", p.ID, caller.ID, string(p.Status), p.PatientID, p.DoctorID))
	return p, nil
}

// Update patches a prescription the caller issued. Nothing changes when the
// caller is not the issuing doctor.
func (s *Service) Update(ctx context.Context, caller auth.Caller, id uuid.UUID, patch Patch) (*Prescription, error) {
	if err := requireDoctor(caller); err != nil {
		return nil, err
	}
	if patch.empty() {
		return nil, apperr.Invalid("nothing to update")
	}
	if patch.Diagnosis != nil {
		d := strings.TrimSpace(*patch.Diagnosis)
		if d == "" {
			return nil, apperr.Invalid("diagnosis must not be empty")
		}
		patch.Diagnosis = &d
	}
	if patch.Medications != nil {
		if err := validateMedications(patch.Medications); err != nil {
			return nil, err
		}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.Invalid("status must be one of [active completed cancelled]")
	}

	p, err := s.prescriptions.Update(ctx, id, caller.ID, patch)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, fmt.Errorf("update prescription: %w", err)
	}
	s.events.Emit(ctx, events.New(resource, "updated", p.ID, caller.ID, string(p.Status), p.PatientID, p.DoctorID))
	return p, nil
}

// Delete removes a prescription the caller issued and pulls its id out of
// the parent appointment.
func (s *Service) Delete(ctx context.Context, caller auth.Caller, id uuid.UUID) error {
	if err := requireDoctor(caller); err != nil {
		return err
	}

	var deleted *Prescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.prescriptions.Delete(ctx, id, caller.ID)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrPrescriptionNotFound
			}
			return fmt.Errorf("delete prescription: %w", err)
		}
		deleted = p
		return s.appointments.DetachPrescription(ctx, p.AppointmentID, p.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("prescription_id", id.String()).Msg("prescription deleted")
	s.events.Emit(ctx, events.New(resource, "deleted", id, caller.ID, "", deleted.PatientID, deleted.DoctorID))
	return nil
}

// Read returns the prescription to its patient or its issuing doctor.
// Anyone else gets not found.
func (s *Service) Read(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, fmt.Errorf("get prescription: %w", err)
	}
	switch {
	case caller.Is(auth.RolePatient) && p.PatientID == caller.ID:
		return p, nil
	case caller.Is(auth.RoleDoctor) && p.DoctorID == caller.ID:
		return p, nil
	default:
		return nil, ErrPrescriptionNotFound
	}
}

func (s *Service) ListForPatient(ctx context.Context, caller auth.Caller, limit, offset int) ([]*Prescription, int, error) {
	if !caller.Is(auth.RolePatient) {
		return nil, 0, apperr.Forbidden("only patients have prescriptions")
	}
	items, total, err := s.prescriptions.ListByPatient(ctx, caller.ID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patient prescriptions: %w", err)
	}
	return items, total, nil
}

func (s *Service) ListForDoctor(ctx context.Context, caller auth.Caller, limit, offset int) ([]*Prescription, int, error) {
	if err := requireDoctor(caller); err != nil {
		return nil, 0, err
	}
	items, total, err := s.prescriptions.ListByDoctor(ctx, caller.ID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctor prescriptions: %w", err)
	}
	return items, total, nil
}

// ListForAppointment lists prescriptions on an appointment the caller is
// part of.
func (s *Service) ListForAppointment(ctx context.Context, caller auth.Caller, appointmentID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	if err := s.appointments.Visible(ctx, caller, appointmentID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.prescriptions.ListByAppointment(ctx, appointmentID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointment prescriptions: %w", err)
	}
	return items, total, nil
}
