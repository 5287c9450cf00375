package medication

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/db"
)

// -- Review --

type reviewRepoPG struct{ pool *pgxpool.Pool }

func NewReviewRepoPG(pool *pgxpool.Pool) ReviewRepository { return &reviewRepoPG{pool: pool} }

func (r *reviewRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const reviewCols = `id, patient_id, doctor_id, review_date, medications, summary, next_review_date, created_at`

func scanReview(row pgx.Row) (*Review, error) {
	var v Review
	if err := row.Scan(&v.ID, &v.PatientID, &v.DoctorID, &v.ReviewDate, &v.Medications,
		&v.Summary, &v.NextReviewDate, &v.CreatedAt); err != nil {
		return nil, err
	}
	if v.Medications == nil {
		v.Medications = []ReviewedMedication{}
	}
	return &v, nil
}

func (r *reviewRepoPG) Create(ctx context.Context, v *Review) error {
	v.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication_review (id, patient_id, doctor_id, review_date, medications, summary, next_review_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		v.ID, v.PatientID, v.DoctorID, v.ReviewDate, v.Medications, v.Summary, v.NextReviewDate,
	).Scan(&v.CreatedAt)
}

func (r *reviewRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Review, error) {
	return scanReview(r.conn(ctx).QueryRow(ctx, `SELECT `+reviewCols+` FROM medication_review WHERE id = $1`, id))
}

func (r *reviewRepoPG) list(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*Review, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medication_review WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reviewCols+` FROM medication_review
		WHERE `+column+` = $1
		ORDER BY review_date DESC, id
		LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Review
	for rows.Next() {
		v, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *reviewRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Review, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

func (r *reviewRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Review, int, error) {
	return r.list(ctx, "doctor_id", doctorID, limit, offset)
}

// -- Reconciliation --

type reconciliationRepoPG struct{ pool *pgxpool.Pool }

func NewReconciliationRepoPG(pool *pgxpool.Pool) ReconciliationRepository {
	return &reconciliationRepoPG{pool: pool}
}

func (r *reconciliationRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const reconCols = `id, patient_id, doctor_id, sources, discrepancies, created_at, updated_at`

func scanRecon(row pgx.Row) (*Reconciliation, error) {
	var rc Reconciliation
	if err := row.Scan(&rc.ID, &rc.PatientID, &rc.DoctorID, &rc.Sources, &rc.Discrepancies,
		&rc.CreatedAt, &rc.UpdatedAt); err != nil {
		return nil, err
	}
	rc.refresh()
	return &rc, nil
}

func (r *reconciliationRepoPG) Create(ctx context.Context, rc *Reconciliation) error {
	rc.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication_reconciliation (id, patient_id, doctor_id, sources, discrepancies)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		rc.ID, rc.PatientID, rc.DoctorID, rc.Sources, rc.Discrepancies,
	).Scan(&rc.CreatedAt, &rc.UpdatedAt)
}

func (r *reconciliationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reconciliation, error) {
	return scanRecon(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reconCols+` FROM medication_reconciliation WHERE id = $1`, id))
}

func (r *reconciliationRepoPG) GetForUpdate(ctx context.Context, id, doctorID uuid.UUID) (*Reconciliation, error) {
	return scanRecon(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reconCols+` FROM medication_reconciliation WHERE id = $1 AND doctor_id = $2 FOR UPDATE`,
		id, doctorID))
}

func (r *reconciliationRepoPG) SaveDiscrepancies(ctx context.Context, rc *Reconciliation) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE medication_reconciliation SET discrepancies = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		rc.ID, rc.Discrepancies,
	).Scan(&rc.UpdatedAt)
}

func (r *reconciliationRepoPG) list(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*Reconciliation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medication_reconciliation WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reconCols+` FROM medication_reconciliation
		WHERE `+column+` = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Reconciliation
	for rows.Next() {
		rc, err := scanRecon(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rc)
	}
	return items, total, rows.Err()
}

func (r *reconciliationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reconciliation, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

func (r *reconciliationRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Reconciliation, int, error) {
	return r.list(ctx, "doctor_id", doctorID, limit, offset)
}
