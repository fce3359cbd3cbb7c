package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicore/hms/internal/platform/db"
)

// ErrNotFound is returned when a patient or staff member does not exist.
var ErrNotFound = errors.New("not found")

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- Patients --

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

const patientCols = `id, mrn, first_name, last_name, date_of_birth, gender, phone, email, address,
	insurance_provider, insurance_policy_number, insurance_coverage_pct, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Phone, &p.Email, &p.Address, &p.InsuranceProvider, &p.InsurancePolicyNumber,
		&p.InsuranceCoveragePct, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.MRN == "" {
		var seq int64
		if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT nextval('mrn_seq')`).Scan(&seq); err != nil {
			return fmt.Errorf("next mrn: %w", err)
		}
		p.MRN = fmt.Sprintf("MRN%06d", seq)
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient (id, mrn, first_name, last_name, date_of_birth, gender, phone, email,
			address, insurance_provider, insurance_policy_number, insurance_coverage_pct)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Phone, p.Email,
		p.Address, p.InsuranceProvider, p.InsurancePolicyNumber, p.InsuranceCoveragePct)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return scanPatient(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE mrn = $1`, mrn))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, date_of_birth=$4, gender=$5, phone=$6,
			email=$7, address=$8, insurance_provider=$9, insurance_policy_number=$10,
			insurance_coverage_pct=$11, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Phone,
		p.Email, p.Address, p.InsuranceProvider, p.InsurancePolicyNumber, p.InsuranceCoveragePct)
	return err
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	c := conn(ctx, r.pool)
	var total int
	if err := c.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := c.Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// -- Staff --

type staffRepoPG struct{ pool *pgxpool.Pool }

func NewStaffRepoPG(pool *pgxpool.Pool) StaffRepository { return &staffRepoPG{pool: pool} }

const staffCols = `id, first_name, last_name, role, email, active, created_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Role, &s.Email, &s.Active, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *staffRepoPG) Create(ctx context.Context, s *Staff) error {
	s.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO staff (id, first_name, last_name, role, email, active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		s.ID, s.FirstName, s.LastName, s.Role, s.Email, s.Active)
	return err
}

func (r *staffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return scanStaff(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1`, id))
}

func (r *staffRepoPG) List(ctx context.Context, limit, offset int) ([]*Staff, int, error) {
	c := conn(ctx, r.pool)
	var total int
	if err := c.QueryRow(ctx, `SELECT COUNT(*) FROM staff`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := c.Query(ctx, `SELECT `+staffCols+` FROM staff ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
