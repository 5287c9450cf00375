package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/events"
)

const resource = "appointment"

// DoctorDirectory resolves doctor accounts. identity.Service satisfies it.
type DoctorDirectory interface {
	Doctor(ctx context.Context, id uuid.UUID) (*identity.Account, *identity.DoctorProfile, error)
}

type Service struct {
	appointments Repository
	history      HistoryRepository
	doctors      DoctorDirectory
	tx           db.TxRunner
	events       *events.Emitter
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(appts Repository, history HistoryRepository, doctors DoctorDirectory, tx db.TxRunner, em *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appts,
		history:      history,
		doctors:      doctors,
		tx:           tx,
		events:       em,
		logger:       logger.With().Str("component", "appointment").Logger(),
		now:          time.Now,
	}
}

type RequestInput struct {
	DoctorID uuid.UUID
	Date     time.Time
	Time     string
	Type     VisitType
	Reason   string
}

func requireRole(caller auth.Caller, role auth.Role) error {
	if !caller.Is(role) {
		return apperr.Forbidden(fmt.Sprintf("only a %s may do this", role))
	}
	return nil
}

// Request creates a pending appointment for the calling patient. The
// doctor's location is copied onto the appointment.
func (s *Service) Request(ctx context.Context, caller auth.Caller, in RequestInput) (*Appointment, error) {
	if err := requireRole(caller, auth.RolePatient); err != nil {
		return nil, err
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperr.Invalid("doctor_id is required")
	}
	if in.Date.IsZero() {
		return nil, apperr.Invalid("date is required")
	}
	if _, err := time.Parse("15:04", in.Time); err != nil || len(in.Time) != 5 {
		return nil, apperr.Invalid("time must be a time of day in HH:MM format")
	}
	if !in.Type.Valid() {
		return nil, apperr.Invalid("invalid appointment type: %s", in.Type)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}

	_, doctor, err := s.doctors.Doctor(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}

	y, m, d := in.Date.Date()
	a := &Appointment{
		PatientID: caller.ID,
		DoctorID:  in.DoctorID,
		Date:      time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Time:      in.Time,
		Type:      in.Type,
		Reason:    reason,
		Status:    StatusPending,
		Location:  doctor.Location,
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.appointments.Create(ctx, a); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return s.record(ctx, a.ID, nil, StatusPending, caller.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", a.ID.String()).Str("doctor_id", a.DoctorID.String()).Msg("appointment requested")
	s.events.Emit(ctx, events.New(resource, "requested", a.ID, caller.ID, string(a.Status), a.PatientID, a.DoctorID))
	return a, nil
}

func (s *Service) record(ctx context.Context, id uuid.UUID, from *Status, to Status, actor uuid.UUID) error {
	if err := s.history.Add(ctx, &StatusChange{AppointmentID: id, From: from, To: to, ActorID: actor}); err != nil {
		return fmt.Errorf("record status change: %w", err)
	}
	return nil
}

// transition applies a guarded status change and its history row in one
// transaction. A failed precondition is reported as not found.
func (s *Service) transition(ctx context.Context, caller auth.Caller, owner Owner, id uuid.UUID, to Status, notes *string, action string) (*Appointment, error) {
	t := Transition{
		ID:      id,
		Owner:   owner,
		OwnerID: caller.ID,
		From:    sourcesOf(to),
		To:      to,
		Notes:   notes,
	}

	var a *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		updated, from, err := s.appointments.Transition(ctx, t)
		if err != nil {
			if db.IsNoRows(err) {
				return ErrAppointmentNotFound
			}
			return fmt.Errorf("transition appointment: %w", err)
		}
		a = updated
		return s.record(ctx, id, &from, to, caller.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("actor_id", caller.ID.String()).
		Str("status", string(to)).
		Msg("appointment " + action)
	s.events.Emit(ctx, events.New(resource, action, a.ID, caller.ID, string(a.Status), a.PatientID, a.DoctorID))
	return a, nil
}

type Response string

const (
	ResponseAccept  Response = "accept"
	ResponseDecline Response = "decline"
)

// DoctorRespond accepts or declines a pending appointment addressed to the
// calling doctor. It succeeds at most once per appointment.
func (s *Service) DoctorRespond(ctx context.Context, caller auth.Caller, id uuid.UUID, resp Response, notes *string) (*Appointment, error) {
	if err := requireRole(caller, auth.RoleDoctor); err != nil {
		return nil, err
	}
	switch resp {
	case ResponseAccept:
		return s.transition(ctx, caller, OwnerDoctor, id, StatusDoctorAccepted, notes, "accepted")
	case ResponseDecline:
		return s.transition(ctx, caller, OwnerDoctor, id, StatusDeclined, notes, "declined")
	default:
		return nil, apperr.Invalid("action must be one of [accept decline]")
	}
}

func (s *Service) PatientConfirm(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	if err := requireRole(caller, auth.RolePatient); err != nil {
		return nil, err
	}
	return s.transition(ctx, caller, OwnerPatient, id, StatusConfirmed, nil, "confirmed")
}

type UpdateInput struct {
	Notes  *string
	Status *Status
}

// PatientUpdate changes the notes on the caller's appointment. A status of
// cancelled goes through PatientCancel; any other status is rejected.
func (s *Service) PatientUpdate(ctx context.Context, caller auth.Caller, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	if err := requireRole(caller, auth.RolePatient); err != nil {
		return nil, err
	}
	if in.Status != nil {
		if *in.Status != StatusCancelled {
			return nil, apperr.Invalid("status may only be changed to cancelled")
		}
		return s.transition(ctx, caller, OwnerPatient, id, StatusCancelled, in.Notes, "cancelled")
	}
	if in.Notes == nil {
		return nil, apperr.Invalid("notes is required")
	}

	a, err := s.appointments.UpdateNotes(ctx, id, caller.ID, *in.Notes)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("update appointment notes: %w", err)
	}
	s.events.Emit(ctx, events.New(resource, "updated", a.ID, caller.ID, "", a.PatientID, a.DoctorID))
	return a, nil
}

func (s *Service) PatientCancel(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	if err := requireRole(caller, auth.RolePatient); err != nil {
		return nil, err
	}
	return s.transition(ctx, caller, OwnerPatient, id, StatusCancelled, nil, "cancelled")
}

func (s *Service) DoctorCancel(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	if err := requireRole(caller, auth.RoleDoctor); err != nil {
		return nil, err
	}
	return s.transition(ctx, caller, OwnerDoctor, id, StatusCancelled, nil, "cancelled")
}

func (s *Service) Complete(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	if err := requireRole(caller, auth.RoleDoctor); err != nil {
		return nil, err
	}
	return s.transition(ctx, caller, OwnerDoctor, id, StatusCompleted, nil, "completed")
}

func (s *Service) MarkNoShow(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	if err := requireRole(caller, auth.RoleDoctor); err != nil {
		return nil, err
	}
	return s.transition(ctx, caller, OwnerDoctor, id, StatusNoShow, nil, "no_show")
}

// Get returns the appointment if the caller is its patient or doctor.
func (s *Service) Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !a.Involves(caller.ID) {
		return nil, ErrAppointmentNotFound
	}
	return a, nil
}

// Visible returns ErrAppointmentNotFound unless the caller is on the
// appointment.
func (s *Service) Visible(ctx context.Context, caller auth.Caller, id uuid.UUID) error {
	_, err := s.Get(ctx, caller, id)
	return err
}

func (s *Service) History(ctx context.Context, caller auth.Caller, id uuid.UUID) ([]*StatusChange, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	items, err := s.history.ListByAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	if items == nil {
		items = []*StatusChange{}
	}
	return items, nil
}

var trackingStatuses = []Status{StatusPending, StatusDoctorAccepted, StatusDeclined}

// PartitionForPatient splits appointments into tracking, upcoming and past.
// Tracking wins over upcoming, and past takes whatever is left, so the
// buckets are disjoint and cover the input.
func PartitionForPatient(items []*Appointment, now time.Time) *PatientView {
	tracking, rest := lo.FilterReject(items, func(a *Appointment, _ int) bool {
		return lo.Contains(trackingStatuses, a.Status)
	})
	upcoming, past := lo.FilterReject(rest, func(a *Appointment, _ int) bool {
		return a.Status == StatusConfirmed && !a.ScheduledAt().Before(now)
	})
	return &PatientView{
		Upcoming: orEmpty(upcoming),
		Past:     orEmpty(past),
		Tracking: orEmpty(tracking),
	}
}

// GroupForDoctor buckets appointments by status.
func GroupForDoctor(items []*Appointment) *DoctorView {
	by := lo.GroupBy(items, func(a *Appointment) Status { return a.Status })
	return &DoctorView{
		Pending:   orEmpty(by[StatusPending]),
		Accepted:  orEmpty(by[StatusDoctorAccepted]),
		Confirmed: orEmpty(by[StatusConfirmed]),
		Past:      orEmpty(lo.Flatten([][]*Appointment{by[StatusCompleted], by[StatusCancelled], by[StatusNoShow]})),
		Declined:  orEmpty(by[StatusDeclined]),
	}
}

func orEmpty(items []*Appointment) []*Appointment {
	if items == nil {
		return []*Appointment{}
	}
	return items
}

func (s *Service) ListForPatient(ctx context.Context, caller auth.Caller) (*PatientView, error) {
	if err := requireRole(caller, auth.RolePatient); err != nil {
		return nil, err
	}
	items, err := s.appointments.ListByPatient(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return PartitionForPatient(items, s.now()), nil
}

func (s *Service) ListForDoctor(ctx context.Context, caller auth.Caller) (*DoctorView, error) {
	if err := requireRole(caller, auth.RoleDoctor); err != nil {
		return nil, err
	}
	items, err := s.appointments.ListByDoctor(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return GroupForDoctor(items), nil
}

// -- Prescription linkage --

// PatientForDoctor returns the patient on appointment id, provided doctorID
// is the appointment's doctor.
func (s *Service) PatientForDoctor(ctx context.Context, id, doctorID uuid.UUID) (uuid.UUID, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return uuid.Nil, ErrAppointmentNotFound
		}
		return uuid.Nil, fmt.Errorf("get appointment: %w", err)
	}
	if a.DoctorID != doctorID {
		return uuid.Nil, ErrAppointmentNotFound
	}
	return a.PatientID, nil
}

func (s *Service) AttachPrescription(ctx context.Context, id, prescriptionID uuid.UUID) error {
	return s.linkErr(s.appointments.AddPrescription(ctx, id, prescriptionID), "attach prescription")
}

func (s *Service) DetachPrescription(ctx context.Context, id, prescriptionID uuid.UUID) error {
	return s.linkErr(s.appointments.RemovePrescription(ctx, id, prescriptionID), "detach prescription")
}

func (s *Service) linkErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err), errors.Is(err, ErrAppointmentNotFound):
		return ErrAppointmentNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
