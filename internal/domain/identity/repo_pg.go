package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
)

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewAccountRepoPG(pool *pgxpool.Pool) AccountRepository { return &accountRepoPG{pool: pool} }

func (r *accountRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const accountSelect = `
	SELECT a.id, a.email, a.name, a.role, a.created_at,
		pp.id, pp.date_of_birth, pp.phone,
		dp.id, dp.specialty, dp.location,
		ph.id, ph.pharmacy
	FROM account a
	LEFT JOIN patient_profile pp ON pp.account_id = a.id
	LEFT JOIN doctor_profile dp ON dp.account_id = a.id
	LEFT JOIN pharmacist_profile ph ON ph.account_id = a.id`

func (r *accountRepoPG) scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var (
		patientID, doctorID, pharmacistID *uuid.UUID
		dob                               *time.Time
		phone, specialty, location, pharm *string
	)
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.CreatedAt,
		&patientID, &dob, &phone,
		&doctorID, &specialty, &location,
		&pharmacistID, &pharm)
	if err != nil {
		return nil, err
	}

	switch a.Role {
	case auth.RolePatient:
		if patientID != nil {
			a.Profile = &PatientProfile{ID: *patientID, AccountID: a.ID, DateOfBirth: dob, Phone: phone}
		}
	case auth.RoleDoctor:
		if doctorID != nil {
			a.Profile = &DoctorProfile{ID: *doctorID, AccountID: a.ID, Specialty: deref(specialty), Location: deref(location)}
		}
	case auth.RolePharmacist:
		if pharmacistID != nil {
			a.Profile = &PharmacistProfile{ID: *pharmacistID, AccountID: a.ID, Pharmacy: deref(pharm)}
		}
	}
	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO account (id, email, name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		a.ID, a.Email, a.Name, a.Role).Scan(&a.CreatedAt)
	if err != nil {
		return err
	}

	switch p := a.Profile.(type) {
	case *PatientProfile:
		p.ID, p.AccountID = uuid.New(), a.ID
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO patient_profile (id, account_id, date_of_birth, phone) VALUES ($1, $2, $3, $4)`,
			p.ID, p.AccountID, p.DateOfBirth, p.Phone)
	case *DoctorProfile:
		p.ID, p.AccountID = uuid.New(), a.ID
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO doctor_profile (id, account_id, specialty, location) VALUES ($1, $2, $3, $4)`,
			p.ID, p.AccountID, p.Specialty, p.Location)
	case *PharmacistProfile:
		p.ID, p.AccountID = uuid.New(), a.ID
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO pharmacist_profile (id, account_id, pharmacy) VALUES ($1, $2, $3)`,
			p.ID, p.AccountID, p.Pharmacy)
	default:
		err = fmt.Errorf("unsupported profile type %T", a.Profile)
	}
	return err
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.scanAccount(r.conn(ctx).QueryRow(ctx, accountSelect+` WHERE a.id = $1`, id))
}

const patientProfileCols = `id, account_id, date_of_birth, phone`

func scanPatientProfile(row pgx.Row) (*PatientProfile, error) {
	var p PatientProfile
	if err := row.Scan(&p.ID, &p.AccountID, &p.DateOfBirth, &p.Phone); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *accountRepoPG) PatientProfileByAccount(ctx context.Context, accountID uuid.UUID) (*PatientProfile, error) {
	return scanPatientProfile(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientProfileCols+` FROM patient_profile WHERE account_id = $1`, accountID))
}

func (r *accountRepoPG) PatientProfileByID(ctx context.Context, profileID uuid.UUID) (*PatientProfile, error) {
	return scanPatientProfile(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientProfileCols+` FROM patient_profile WHERE id = $1`, profileID))
}

func (r *accountRepoPG) ListDoctors(ctx context.Context, specialty string, limit, offset int) ([]*DoctorSummary, int, error) {
	where := ` WHERE a.role = 'doctor'`
	args := []interface{}{}
	if specialty != "" {
		where += ` AND dp.specialty ILIKE $1`
		args = append(args, specialty)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM account a JOIN doctor_profile dp ON dp.account_id = a.id`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT a.id, a.name, dp.specialty, dp.location
		FROM account a JOIN doctor_profile dp ON dp.account_id = a.id` + where +
		fmt.Sprintf(` ORDER BY a.name, a.id LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*DoctorSummary
	for rows.Next() {
		var d DoctorSummary
		if err := rows.Scan(&d.AccountID, &d.Name, &d.Specialty, &d.Location); err != nil {
			return nil, 0, err
		}
		items = append(items, &d)
	}
	return items, total, rows.Err()
}
