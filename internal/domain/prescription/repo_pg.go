package prescription

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/db"
)

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) Repository { return &prescriptionRepoPG{pool: pool} }

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const rxCols = `id, doctor_id, patient_id, appointment_id, diagnosis, medications, notes, status,
	issued_at, updated_at`

func scanRx(row pgx.Row) (*Prescription, error) {
	var p Prescription
	if err := row.Scan(&p.ID, &p.DoctorID, &p.PatientID, &p.AppointmentID, &p.Diagnosis,
		&p.Medications, &p.Notes, &p.Status, &p.IssuedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if p.Medications == nil {
		p.Medications = []Medication{}
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (id, doctor_id, patient_id, appointment_id, diagnosis, medications, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING issued_at, updated_at`,
		p.ID, p.DoctorID, p.PatientID, p.AppointmentID, p.Diagnosis, p.Medications, p.Notes, string(p.Status),
	).Scan(&p.IssuedAt, &p.UpdatedAt)
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scanRx(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescription WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) Update(ctx context.Context, id, doctorID uuid.UUID, patch Patch) (*Prescription, error) {
	var meds interface{}
	if patch.Medications != nil {
		meds = patch.Medications
	}
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	return scanRx(r.conn(ctx).QueryRow(ctx, `
		UPDATE prescription SET
			diagnosis = COALESCE($3, diagnosis),
			medications = COALESCE($4::jsonb, medications),
			notes = COALESCE($5, notes),
			status = COALESCE($6, status),
			updated_at = NOW()
		WHERE id = $1 AND doctor_id = $2
		RETURNING `+rxCols,
		id, doctorID, patch.Diagnosis, meds, patch.Notes, status))
}

func (r *prescriptionRepoPG) Delete(ctx context.Context, id, doctorID uuid.UUID) (*Prescription, error) {
	return scanRx(r.conn(ctx).QueryRow(ctx, `
		DELETE FROM prescription WHERE id = $1 AND doctor_id = $2
		RETURNING `+rxCols, id, doctorID))
}

func (r *prescriptionRepoPG) list(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescription WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rxCols+` FROM prescription
		WHERE `+column+` = $1
		ORDER BY issued_at DESC, id
		LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := scanRx(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

func (r *prescriptionRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return r.list(ctx, "doctor_id", doctorID, limit, offset)
}

func (r *prescriptionRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return r.list(ctx, "appointment_id", appointmentID, limit, offset)
}
