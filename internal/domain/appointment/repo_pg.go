package appointment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/db"
)

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) Repository { return &appointmentRepoPG{pool: pool} }

func (r *appointmentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

var apptColumns = []string{
	"id", "patient_id", "doctor_id", "scheduled_date", "scheduled_time", "visit_type",
	"reason", "status", "notes", "location", "room", "prescription_ids",
	"created_at", "updated_at",
}

var apptCols = strings.Join(apptColumns, ", ")

func qualified(alias string) string {
	out := make([]string, len(apptColumns))
	for i, c := range apptColumns {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

func scanAppt(row pgx.Row, extra ...any) (*Appointment, error) {
	var a Appointment
	dest := append(extra,
		&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time, &a.Type,
		&a.Reason, &a.Status, &a.Notes, &a.Location, &a.Room, &a.Prescriptions,
		&a.CreatedAt, &a.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if a.Prescriptions == nil {
		a.Prescriptions = []uuid.UUID{}
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Prescriptions == nil {
		a.Prescriptions = []uuid.UUID{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, scheduled_date, scheduled_time, visit_type,
			reason, status, notes, location, room, prescription_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.Time, string(a.Type),
		a.Reason, string(a.Status), a.Notes, a.Location, a.Room, a.Prescriptions,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func ownerColumn(o Owner) string {
	if o == OwnerDoctor {
		return "doctor_id"
	}
	return "patient_id"
}

func statusStrings(ss []Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

// Transition locks the row only if the precondition holds, so a concurrent
// transition that commits first makes this one match nothing.
func (r *appointmentRepoPG) Transition(ctx context.Context, t Transition) (*Appointment, Status, error) {
	var from Status
	a, err := scanAppt(r.conn(ctx).QueryRow(ctx, `
		WITH prev AS (
			SELECT id, status FROM appointment
			WHERE id = $1 AND `+ownerColumn(t.Owner)+` = $2 AND status = ANY($3)
			FOR UPDATE
		)
		UPDATE appointment a SET status = $4, notes = COALESCE($5, a.notes), updated_at = NOW()
		FROM prev
		WHERE a.id = prev.id
		RETURNING prev.status, `+qualified("a"),
		t.ID, t.OwnerID, statusStrings(t.From), string(t.To), t.Notes,
	), &from)
	if err != nil {
		return nil, "", err
	}
	return a, from, nil
}

func (r *appointmentRepoPG) UpdateNotes(ctx context.Context, id, patientID uuid.UUID, notes string) (*Appointment, error) {
	return scanAppt(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET notes = $3, updated_at = NOW()
		WHERE id = $1 AND patient_id = $2
		RETURNING `+apptCols,
		id, patientID, notes))
}

func (r *appointmentRepoPG) list(ctx context.Context, column string, id uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE `+column+` = $1
		ORDER BY scheduled_date, scheduled_time, created_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, "patient_id", patientID)
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, "doctor_id", doctorID)
}

func (r *appointmentRepoPG) AddPrescription(ctx context.Context, id, prescriptionID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET prescription_ids = array_append(prescription_ids, $2), updated_at = NOW()
		WHERE id = $1`, id, prescriptionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RemovePrescription drops prescriptionID from the list. Ids are unique in
// the list so exactly one entry goes.
func (r *appointmentRepoPG) RemovePrescription(ctx context.Context, id, prescriptionID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET prescription_ids = array_remove(prescription_ids, $2), updated_at = NOW()
		WHERE id = $1`, id, prescriptionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// =========== Status History Repository ===========

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository { return &historyRepoPG{pool: pool} }

func (r *historyRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *historyRepoPG) Add(ctx context.Context, c *StatusChange) error {
	c.ID = uuid.New()
	var from *string
	if c.From != nil {
		s := string(*c.From)
		from = &s
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_status_history (id, appointment_id, from_status, to_status, actor_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING changed_at`,
		c.ID, c.AppointmentID, from, string(c.To), c.ActorID,
	).Scan(&c.ChangedAt)
}

func (r *historyRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, appointment_id, from_status, to_status, actor_id, changed_at
		FROM appointment_status_history
		WHERE appointment_id = $1
		ORDER BY changed_at, id`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StatusChange
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.ID, &c.AppointmentID, &c.From, &c.To, &c.ActorID, &c.ChangedAt); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}
