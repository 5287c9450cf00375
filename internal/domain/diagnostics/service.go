package diagnostics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/events"
)

const resource = "diagnostic"

// PatientDirectory maps between patient accounts and patient profiles.
// identity.Service satisfies it.
type PatientDirectory interface {
	PatientProfileID(ctx context.Context, accountID uuid.UUID) (uuid.UUID, error)
	PatientAccountID(ctx context.Context, profileID uuid.UUID) (uuid.UUID, error)
}

type Service struct {
	tests    Repository
	patients PatientDirectory
	events   *events.Emitter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients PatientDirectory, em *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		tests:    repo,
		patients: patients,
		events:   em,
		logger:   logger.With().Str("component", "diagnostics").Logger(),
		now:      time.Now,
	}
}

type RequestInput struct {
	PatientID uuid.UUID // patient profile id
	TestType  string
	Priority  Priority
	Notes     string
}

// RequestTest creates a pending test for a patient profile. Priority
// defaults to normal.
func (s *Service) RequestTest(ctx context.Context, caller auth.Caller, in RequestInput) (*DiagnosticTest, error) {
	if !caller.Is(auth.RoleDoctor) {
		return nil, apperr.Forbidden("only doctors may request tests")
	}
	if in.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patient_id is required")
	}
	testType := strings.TrimSpace(in.TestType)
	if testType == "" {
		return nil, apperr.Invalid("test_type is required")
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, apperr.Invalid("priority must be one of [low normal high urgent]")
	}

	patientAccount, err := s.patients.PatientAccountID(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}

	t := &DiagnosticTest{
		PatientID: in.PatientID,
		DoctorID:  caller.ID,
		TestType:  testType,
		Priority:  in.Priority,
		Status:    StatusPending,
		Notes:     in.Notes,
	}
	if err := s.tests.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create diagnostic test: %w", err)
	}

	s.logger.Info().Str("test_id", t.ID.String()).Str("test_type", t.TestType).Msg("diagnostic test requested")
	s.events.Emit(ctx, events.New(resource, "requested", t.ID, caller.ID, string(t.Status), patientAccount, caller.ID))
	return t, nil
}

// patientRespond resolves the caller's profile and moves a pending test to
// `to`. A caller without a patient profile sees not found.
func (s *Service) patientRespond(ctx context.Context, caller auth.Caller, id uuid.UUID, to Status, action string) (*DiagnosticTest, error) {
	if !caller.Is(auth.RolePatient) {
		return nil, apperr.Forbidden("only patients may respond to tests")
	}
	profileID, err := s.patients.PatientProfileID(ctx, caller.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}

	t, err := s.transition(ctx, Transition{
		ID: id, Owner: OwnerPatient, OwnerID: profileID,
		From: []Status{StatusPending}, To: to,
	})
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, events.New(resource, action, t.ID, caller.ID, string(t.Status), caller.ID, t.DoctorID))
	return t, nil
}

func (s *Service) PatientAccept(ctx context.Context, caller auth.Caller, id uuid.UUID) (*DiagnosticTest, error) {
	return s.patientRespond(ctx, caller, id, StatusAccepted, "accepted")
}

func (s *Service) PatientDecline(ctx context.Context, caller auth.Caller, id uuid.UUID) (*DiagnosticTest, error) {
	return s.patientRespond(ctx, caller, id, StatusDeclined, "declined")
}

// UploadResults stores the result and completes the test in one update.
// Only the requesting doctor may upload, and only once.
func (s *Service) UploadResults(ctx context.Context, caller auth.Caller, id uuid.UUID, r Result) (*DiagnosticTest, error) {
	if !caller.Is(auth.RoleDoctor) {
		return nil, apperr.Forbidden("only the requesting doctor may upload results")
	}
	r.Findings = strings.TrimSpace(r.Findings)
	if r.Findings == "" {
		return nil, apperr.Invalid("findings is required")
	}
	if r.ResultDate.IsZero() {
		r.ResultDate = s.now().UTC()
	}

	t, err := s.transition(ctx, Transition{
		ID: id, Owner: OwnerDoctor, OwnerID: caller.ID,
		From: uploadableStatuses, To: StatusCompleted, Result: &r,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("test_id", t.ID.String()).Msg("diagnostic results uploaded")
	s.emitToPatient(ctx, t, caller, "completed")
	return t, nil
}

func (s *Service) Cancel(ctx context.Context, caller auth.Caller, id uuid.UUID) (*DiagnosticTest, error) {
	if !caller.Is(auth.RoleDoctor) {
		return nil, apperr.Forbidden("only the requesting doctor may cancel a test")
	}
	t, err := s.transition(ctx, Transition{
		ID: id, Owner: OwnerDoctor, OwnerID: caller.ID,
		From: openStatuses, To: StatusCancelled,
	})
	if err != nil {
		return nil, err
	}
	s.emitToPatient(ctx, t, caller, "cancelled")
	return t, nil
}

func (s *Service) transition(ctx context.Context, tr Transition) (*DiagnosticTest, error) {
	t, err := s.tests.Transition(ctx, tr)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("transition diagnostic test: %w", err)
	}
	return t, nil
}

// emitToPatient notifies both parties of a doctor-side change. The patient
// account lookup is best effort.
func (s *Service) emitToPatient(ctx context.Context, t *DiagnosticTest, caller auth.Caller, action string) {
	recipients := []uuid.UUID{caller.ID}
	if account, err := s.patients.PatientAccountID(ctx, t.PatientID); err == nil {
		recipients = append(recipients, account)
	} else {
		s.logger.Warn().Err(err).Str("test_id", t.ID.String()).Msg("patient account lookup failed")
	}
	s.events.Emit(ctx, events.New(resource, action, t.ID, caller.ID, string(t.Status), recipients...))
}

// Get returns the test to its patient or its requesting doctor.
func (s *Service) Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (*DiagnosticTest, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get diagnostic test: %w", err)
	}

	switch caller.Role {
	case auth.RoleDoctor:
		if t.DoctorID == caller.ID {
			return t, nil
		}
	case auth.RolePatient:
		profileID, err := s.patients.PatientProfileID(ctx, caller.ID)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
		if err == nil && t.PatientID == profileID {
			return t, nil
		}
	}
	return nil, ErrTestNotFound
}

func (s *Service) ListForPatient(ctx context.Context, caller auth.Caller, limit, offset int) ([]*DiagnosticTest, int, error) {
	if !caller.Is(auth.RolePatient) {
		return nil, 0, apperr.Forbidden("only patients have diagnostic tests")
	}
	profileID, err := s.patients.PatientProfileID(ctx, caller.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	items, total, err := s.tests.ListByPatient(ctx, profileID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patient tests: %w", err)
	}
	return items, total, nil
}

func (s *Service) ListForDoctor(ctx context.Context, caller auth.Caller, limit, offset int) ([]*DiagnosticTest, int, error) {
	if !caller.Is(auth.RoleDoctor) {
		return nil, 0, apperr.Forbidden("only doctors request diagnostic tests")
	}
	items, total, err := s.tests.ListByDoctor(ctx, caller.ID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctor tests: %w", err)
	}
	return items, total, nil
}
