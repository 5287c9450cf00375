package diagnostics

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/db"
)

type testRepoPG struct{ pool *pgxpool.Pool }

func NewTestRepoPG(pool *pgxpool.Pool) Repository { return &testRepoPG{pool: pool} }

func (r *testRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const testCols = `id, patient_id, doctor_id, test_type, priority, request_date, status, notes,
	has_results, result, updated_at`

func scanTest(row pgx.Row) (*DiagnosticTest, error) {
	var t DiagnosticTest
	if err := row.Scan(&t.ID, &t.PatientID, &t.DoctorID, &t.TestType, &t.Priority, &t.RequestDate,
		&t.Status, &t.Notes, &t.HasResults, &t.Result, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *testRepoPG) Create(ctx context.Context, t *DiagnosticTest) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnostic_test (id, patient_id, doctor_id, test_type, priority, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING request_date, updated_at`,
		t.ID, t.PatientID, t.DoctorID, t.TestType, string(t.Priority), string(t.Status), t.Notes,
	).Scan(&t.RequestDate, &t.UpdatedAt)
}

func (r *testRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DiagnosticTest, error) {
	return scanTest(r.conn(ctx).QueryRow(ctx, `SELECT `+testCols+` FROM diagnostic_test WHERE id = $1`, id))
}

func (r *testRepoPG) Transition(ctx context.Context, t Transition) (*DiagnosticTest, error) {
	column := "patient_id"
	if t.Owner == OwnerDoctor {
		column = "doctor_id"
	}
	from := make([]string, len(t.From))
	for i, s := range t.From {
		from[i] = string(s)
	}
	var result interface{}
	if t.Result != nil {
		result = t.Result
	}
	return scanTest(r.conn(ctx).QueryRow(ctx, `
		UPDATE diagnostic_test SET
			status = $4,
			result = COALESCE($5::jsonb, result),
			has_results = has_results OR $5::jsonb IS NOT NULL,
			updated_at = NOW()
		WHERE id = $1 AND `+column+` = $2 AND status = ANY($3)
		RETURNING `+testCols,
		t.ID, t.OwnerID, from, string(t.To), result))
}

func (r *testRepoPG) list(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*DiagnosticTest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM diagnostic_test WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+testCols+` FROM diagnostic_test
		WHERE `+column+` = $1
		ORDER BY request_date DESC, id
		LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DiagnosticTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *testRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*DiagnosticTest, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

func (r *testRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*DiagnosticTest, int, error) {
	return r.list(ctx, "doctor_id", doctorID, limit, offset)
}
