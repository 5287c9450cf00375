package medication

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/events"
)

const (
	reviewResource         = "medication_review"
	reconciliationResource = "reconciliation"
)

// PatientDirectory maps between patient accounts and patient profiles.
// identity.Service satisfies it.
type PatientDirectory interface {
	PatientProfileID(ctx context.Context, accountID uuid.UUID) (uuid.UUID, error)
	PatientAccountID(ctx context.Context, profileID uuid.UUID) (uuid.UUID, error)
}

type Service struct {
	reviews  ReviewRepository
	recons   ReconciliationRepository
	patients PatientDirectory
	tx       db.TxRunner
	events   *events.Emitter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(reviews ReviewRepository, recons ReconciliationRepository, patients PatientDirectory,
	tx db.TxRunner, em *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		reviews:  reviews,
		recons:   recons,
		patients: patients,
		tx:       tx,
		events:   em,
		logger:   logger.With().Str("component", "medication").Logger(),
		now:      time.Now,
	}
}

func requireDoctor(caller auth.Caller) error {
	if !caller.Is(auth.RoleDoctor) {
		return apperr.Forbidden("only doctors may author medication records")
	}
	return nil
}

// patientAccount resolves the account behind a patient profile; an unknown
// profile is reported as a missing patient.
func (s *Service) patientAccount(ctx context.Context, profileID uuid.UUID) (uuid.UUID, error) {
	if profileID == uuid.Nil {
		return uuid.Nil, apperr.Invalid("patient_id is required")
	}
	return s.patients.PatientAccountID(ctx, profileID)
}

// ownProfile returns the caller's patient profile id. ok is false when the
// caller has none.
func (s *Service) ownProfile(ctx context.Context, caller auth.Caller) (id uuid.UUID, ok bool, err error) {
	id, err = s.patients.PatientProfileID(ctx, caller.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// visible reports whether caller may read a record owned by patientID
// (profile) and authored by doctorID.
func (s *Service) visible(ctx context.Context, caller auth.Caller, patientID, doctorID uuid.UUID) (bool, error) {
	switch caller.Role {
	case auth.RoleDoctor:
		return doctorID == caller.ID, nil
	case auth.RolePatient:
		profileID, ok, err := s.ownProfile(ctx, caller)
		return ok && profileID == patientID, err
	}
	return false, nil
}

// -- Review --

type ReviewInput struct {
	PatientID      uuid.UUID
	ReviewDate     time.Time
	Medications    []ReviewedMedication
	Summary        string
	NextReviewDate *time.Time
}

func (s *Service) CreateReview(ctx context.Context, caller auth.Caller, in ReviewInput) (*Review, error) {
	if err := requireDoctor(caller); err != nil {
		return nil, err
	}
	for i, m := range in.Medications {
		if strings.TrimSpace(m.Name) == "" {
			return nil, apperr.Invalid("medications[%d].name is required", i)
		}
		if !m.Action.Valid() {
			return nil, apperr.Invalid("medications[%d].action must be one of [continue adjust discontinue]", i)
		}
	}
	if in.ReviewDate.IsZero() {
		in.ReviewDate = s.now().UTC()
	}
	if in.NextReviewDate != nil && in.NextReviewDate.Before(in.ReviewDate) {
		return nil, apperr.Invalid("next_review_date must not be before review_date")
	}
	account, err := s.patientAccount(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}

	v := &Review{
		PatientID:      in.PatientID,
		DoctorID:       caller.ID,
		ReviewDate:     in.ReviewDate,
		Medications:    in.Medications,
		Summary:        in.Summary,
		NextReviewDate: in.NextReviewDate,
	}
	if v.Medications == nil {
		v.Medications = []ReviewedMedication{}
	}
	if err := s.reviews.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("create medication review: %w", err)
	}
	s.events.Emit(ctx, events.New(reviewResource, "created", v.ID, caller.ID, "", account, caller.ID))
	return v, nil
}

func (s *Service) GetReview(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Review, error) {
	v, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("get medication review: %w", err)
	}
	ok, err := s.visible(ctx, caller, v.PatientID, v.DoctorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReviewNotFound
	}
	return v, nil
}

// ListReviews returns the caller's own reviews: received for a patient,
// authored for a doctor.
func (s *Service) ListReviews(ctx context.Context, caller auth.Caller, limit, offset int) ([]*Review, int, error) {
	var (
		items []*Review
		total int
		err   error
	)
	switch caller.Role {
	case auth.RoleDoctor:
		items, total, err = s.reviews.ListByDoctor(ctx, caller.ID, limit, offset)
	case auth.RolePatient:
		profileID, ok, perr := s.ownProfile(ctx, caller)
		if perr != nil || !ok {
			return nil, 0, perr
		}
		items, total, err = s.reviews.ListByPatient(ctx, profileID, limit, offset)
	default:
		return nil, 0, apperr.Forbidden("medication reviews are for patients and doctors")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("list medication reviews: %w", err)
	}
	return items, total, nil
}

// -- Reconciliation --

type DiscrepancyInput struct {
	Medication  string
	Description string
	SourceA     string
	SourceB     string
	Status      DiscrepancyStatus
	Resolution  *string
}

func newDiscrepancy(in DiscrepancyInput) (Discrepancy, error) {
	if strings.TrimSpace(in.Medication) == "" {
		return Discrepancy{}, apperr.Invalid("medication is required")
	}
	if in.Status == "" {
		in.Status = DiscrepancyPending
	}
	if !in.Status.Valid() {
		return Discrepancy{}, apperr.Invalid("status must be one of [pending resolved conflict]")
	}
	return Discrepancy{
		ID:          uuid.New(),
		Medication:  in.Medication,
		Description: in.Description,
		SourceA:     in.SourceA,
		SourceB:     in.SourceB,
		Status:      in.Status,
		Resolution:  in.Resolution,
	}, nil
}

type ReconciliationInput struct {
	PatientID     uuid.UUID
	Sources       []string
	Discrepancies []DiscrepancyInput
}

func (s *Service) CreateReconciliation(ctx context.Context, caller auth.Caller, in ReconciliationInput) (*Reconciliation, error) {
	if err := requireDoctor(caller); err != nil {
		return nil, err
	}
	ds := make([]Discrepancy, 0, len(in.Discrepancies))
	for i, d := range in.Discrepancies {
		nd, err := newDiscrepancy(d)
		if err != nil {
			return nil, apperr.Invalid("discrepancies[%d]: %v", i, err)
		}
		ds = append(ds, nd)
	}
	account, err := s.patientAccount(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}

	rc := &Reconciliation{
		PatientID:     in.PatientID,
		DoctorID:      caller.ID,
		Sources:       lo.Uniq(lo.Compact(in.Sources)),
		Discrepancies: ds,
	}
	rc.refresh()
	if err := s.recons.Create(ctx, rc); err != nil {
		return nil, fmt.Errorf("create reconciliation: %w", err)
	}
	s.events.Emit(ctx, events.New(reconciliationResource, "created", rc.ID, caller.ID, string(rc.Status), account, caller.ID))
	return rc, nil
}

// mutate runs fn against the locked reconciliation and persists the
// discrepancy list. The rollup is refreshed before the result is returned.
func (s *Service) mutate(ctx context.Context, caller auth.Caller, id uuid.UUID, action string, fn func(rc *Reconciliation) error) (*Reconciliation, error) {
	if err := requireDoctor(caller); err != nil {
		return nil, err
	}
	var rc *Reconciliation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		rc, err = s.recons.GetForUpdate(ctx, id, caller.ID)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrReconciliationNotFound
			}
			return fmt.Errorf("load reconciliation: %w", err)
		}
		if err := fn(rc); err != nil {
			return err
		}
		if err := s.recons.SaveDiscrepancies(ctx, rc); err != nil {
			return fmt.Errorf("save discrepancies: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rc.refresh()

	recipients := []uuid.UUID{caller.ID}
	if account, err := s.patients.PatientAccountID(ctx, rc.PatientID); err == nil {
		recipients = append(recipients, account)
	}
	s.logger.Debug().Str("reconciliation_id", rc.ID.String()).Str("status", string(rc.Status)).Msg(action)
	s.events.Emit(ctx, events.New(reconciliationResource, action, rc.ID, caller.ID, string(rc.Status), recipients...))
	return rc, nil
}

func (s *Service) AddDiscrepancy(ctx context.Context, caller auth.Caller, id uuid.UUID, in DiscrepancyInput) (*Reconciliation, error) {
	d, err := newDiscrepancy(in)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, caller, id, "discrepancy_added", func(rc *Reconciliation) error {
		rc.Discrepancies = append(rc.Discrepancies, d)
		return nil
	})
}

// UpdateDiscrepancy sets the status of one discrepancy and, when given, its
// resolution text.
func (s *Service) UpdateDiscrepancy(ctx context.Context, caller auth.Caller, id, discrepancyID uuid.UUID,
	status DiscrepancyStatus, resolution *string) (*Reconciliation, error) {
	if !status.Valid() {
		return nil, apperr.Invalid("status must be one of [pending resolved conflict]")
	}
	return s.mutate(ctx, caller, id, "discrepancy_updated", func(rc *Reconciliation) error {
		_, idx, found := lo.FindIndexOf(rc.Discrepancies, func(d Discrepancy) bool { return d.ID == discrepancyID })
		if !found {
			return ErrDiscrepancyNotFound
		}
		rc.Discrepancies[idx].Status = status
		if resolution != nil {
			rc.Discrepancies[idx].Resolution = resolution
		}
		return nil
	})
}

func (s *Service) GetReconciliation(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Reconciliation, error) {
	rc, err := s.recons.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrReconciliationNotFound
		}
		return nil, fmt.Errorf("get reconciliation: %w", err)
	}
	ok, err := s.visible(ctx, caller, rc.PatientID, rc.DoctorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReconciliationNotFound
	}
	rc.refresh()
	return rc, nil
}

func (s *Service) ListReconciliations(ctx context.Context, caller auth.Caller, limit, offset int) ([]*Reconciliation, int, error) {
	var (
		items []*Reconciliation
		total int
		err   error
	)
	switch caller.Role {
	case auth.RoleDoctor:
		items, total, err = s.recons.ListByDoctor(ctx, caller.ID, limit, offset)
	case auth.RolePatient:
		profileID, ok, perr := s.ownProfile(ctx, caller)
		if perr != nil || !ok {
			return nil, 0, perr
		}
		items, total, err = s.recons.ListByPatient(ctx, profileID, limit, offset)
	default:
		return nil, 0, apperr.Forbidden("reconciliations are for patients and doctors")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("list reconciliations: %w", err)
	}
	for _, rc := range items {
		rc.refresh()
	}
	return items, total, nil
}
