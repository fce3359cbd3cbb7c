package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicore/hms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the PostgreSQL-backed visit repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

const visitCols = `id, visit_number, patient_id, attending_staff_id, started_by, ended_by,
	status, is_active, consultation_fee_paid, consultation_fee_amount,
	total_charges, insurance_coverage, patient_responsibility, total_paid,
	outstanding_balance, all_services_paid, version_id, created_at, updated_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.VisitNumber, &v.PatientID, &v.AttendingStaffID, &v.StartedByID, &v.EndedByID,
		&v.Status, &v.IsActive, &v.ConsultationFeePaid, &v.ConsultationFeeAmount,
		&v.TotalCharges, &v.InsuranceCoverage, &v.PatientResponsibility, &v.TotalPaid,
		&v.OutstandingBalance, &v.AllServicesPaid, &v.VersionID, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	conn := r.conn(ctx)

	var seq int64
	if err := conn.QueryRow(ctx, `SELECT nextval('visit_number_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("next visit number: %w", err)
	}
	v.ID = uuid.New()
	v.VisitNumber = FormatVisitNumber(time.Now().UTC().Year(), seq)
	v.VersionID = 1

	_, err := conn.Exec(ctx, `
		INSERT INTO visit (id, visit_number, patient_id, attending_staff_id, started_by, ended_by,
			status, is_active, consultation_fee_paid, consultation_fee_amount,
			total_charges, insurance_coverage, patient_responsibility, total_paid,
			outstanding_balance, all_services_paid, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		v.ID, v.VisitNumber, v.PatientID, v.AttendingStaffID, v.StartedByID, v.EndedByID,
		v.Status, v.IsActive, v.ConsultationFeePaid, v.ConsultationFeeAmount,
		v.TotalCharges, v.InsuranceCoverage, v.PatientResponsibility, v.TotalPaid,
		v.OutstandingBalance, v.AllServicesPaid, v.VersionID)
	if isUniqueViolation(err, "visit_one_active_per_patient") {
		return &DuplicateActiveVisitError{}
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return r.loadChildren(ctx, v)
}

func (r *repoPG) GetByVisitNumber(ctx context.Context, number string) (*Visit, error) {
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE visit_number = $1`, number))
	if err != nil {
		return nil, err
	}
	return r.loadChildren(ctx, v)
}

func (r *repoPG) FindActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+visitCols+` FROM visit WHERE patient_id = $1 AND is_active`, patientID))
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET status=$3, is_active=$4, ended_by=$5,
			consultation_fee_paid=$6, consultation_fee_amount=$7,
			total_charges=$8, insurance_coverage=$9, patient_responsibility=$10,
			total_paid=$11, outstanding_balance=$12, all_services_paid=$13,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2`,
		v.ID, v.VersionID, v.Status, v.IsActive, v.EndedByID,
		v.ConsultationFeePaid, v.ConsultationFeeAmount,
		v.TotalCharges, v.InsuranceCoverage, v.PatientResponsibility,
		v.TotalPaid, v.OutstandingBalance, v.AllServicesPaid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	v.VersionID++
	return nil
}

func (r *repoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Visit, int, error) {
	conn := r.conn(ctx)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM visit `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM visit %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		visitCols, where, n+1, n+2)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	return r.list(ctx, "", nil, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return r.list(ctx, `WHERE patient_id = $1`, []interface{}{patientID}, limit, offset)
}

func (r *repoPG) ListOutstanding(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	return r.list(ctx, `WHERE is_active AND outstanding_balance > 0`, nil, limit, offset)
}

// loadChildren fills the aggregate's sub-record slices in insertion order.
func (r *repoPG) loadChildren(ctx context.Context, v *Visit) (*Visit, error) {
	conn := r.conn(ctx)

	rows, err := conn.Query(ctx, `
		SELECT id, visit_id, service_type, service_name, service_ref_id, unit_price, quantity,
			total_price, has_insurance, insurance_pct, insurance_coverage, patient_responsibility,
			payment_status, paid_amount, notes, added_by, created_at
		FROM service_charge WHERE visit_id = $1 ORDER BY created_at, id`, v.ID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c ServiceCharge
		if err := rows.Scan(&c.ID, &c.VisitID, &c.ServiceType, &c.ServiceName, &c.ServiceRefID,
			&c.UnitPrice, &c.Quantity, &c.TotalPrice, &c.HasInsurance, &c.InsurancePct,
			&c.InsuranceCoverage, &c.PatientResponsibility, &c.PaymentStatus, &c.PaidAmount,
			&c.Notes, &c.AddedByID, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		v.ServiceCharges = append(v.ServiceCharges, &c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = conn.Query(ctx, `
		SELECT id, visit_id, amount, method, payment_type, receipt_number, transaction_ref,
			notes, received_by, created_at
		FROM payment_record WHERE visit_id = $1 ORDER BY created_at, id`, v.ID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p PaymentRecord
		if err := rows.Scan(&p.ID, &p.VisitID, &p.Amount, &p.Method, &p.PaymentType,
			&p.ReceiptNumber, &p.TransactionRef, &p.Notes, &p.ReceivedByID, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		v.Payments = append(v.Payments, &p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = conn.Query(ctx, `
		SELECT id, visit_id, code, description, price, payment_status, notes, diagnosed_by, created_at
		FROM diagnosis WHERE visit_id = $1 ORDER BY created_at, id`, v.ID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var d Diagnosis
		if err := rows.Scan(&d.ID, &d.VisitID, &d.Code, &d.Description, &d.Price, &d.PaymentStatus,
			&d.Notes, &d.DiagnosedByID, &d.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		v.Diagnoses = append(v.Diagnoses, &d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = conn.Query(ctx, `
		SELECT id, visit_id, test_name, category, price, payment_status, status, result,
			ordered_by, created_at
		FROM lab_order WHERE visit_id = $1 ORDER BY created_at, id`, v.ID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var o LabOrder
		if err := rows.Scan(&o.ID, &o.VisitID, &o.TestName, &o.Category, &o.Price,
			&o.PaymentStatus, &o.Status, &o.Result, &o.OrderedByID, &o.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		v.LabOrders = append(v.LabOrders, &o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = conn.Query(ctx, `
		SELECT id, visit_id, medication_name, dosage, frequency, duration, quantity, price,
			payment_status, prescribed_by, created_at
		FROM prescription WHERE visit_id = $1 ORDER BY created_at, id`, v.ID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.VisitID, &p.MedicationName, &p.Dosage, &p.Frequency,
			&p.Duration, &p.Quantity, &p.Price, &p.PaymentStatus, &p.PrescribedByID, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		v.Prescriptions = append(v.Prescriptions, &p)
	}
	rows.Close()
	return v, rows.Err()
}

func (r *repoPG) AddServiceCharge(ctx context.Context, c *ServiceCharge) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO service_charge (id, visit_id, service_type, service_name, service_ref_id,
			unit_price, quantity, total_price, has_insurance, insurance_pct,
			insurance_coverage, patient_responsibility, payment_status, paid_amount,
			notes, added_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		c.ID, c.VisitID, c.ServiceType, c.ServiceName, c.ServiceRefID,
		c.UnitPrice, c.Quantity, c.TotalPrice, c.HasInsurance, c.InsurancePct,
		c.InsuranceCoverage, c.PatientResponsibility, c.PaymentStatus, c.PaidAmount,
		c.Notes, c.AddedByID, c.CreatedAt)
	return err
}

func (r *repoPG) SetChargeStatus(ctx context.Context, chargeID uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE service_charge SET payment_status = $2 WHERE id = $1`, chargeID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AddPayment(ctx context.Context, p *PaymentRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment_record (id, visit_id, amount, method, payment_type,
			receipt_number, transaction_ref, notes, received_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.VisitID, p.Amount, p.Method, p.PaymentType,
		p.ReceiptNumber, p.TransactionRef, p.Notes, p.ReceivedByID, p.CreatedAt)
	return err
}

func (r *repoPG) AddDiagnosis(ctx context.Context, d *Diagnosis) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO diagnosis (id, visit_id, code, description, price, payment_status, notes, diagnosed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.VisitID, d.Code, d.Description, d.Price, d.PaymentStatus, d.Notes, d.DiagnosedByID)
	return err
}

func (r *repoPG) AddLabOrder(ctx context.Context, o *LabOrder) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_order (id, visit_id, test_name, category, price, payment_status,
			status, ordered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.VisitID, o.TestName, o.Category, o.Price, o.PaymentStatus,
		o.Status, o.OrderedByID)
	return err
}

func (r *repoPG) AddPrescription(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription (id, visit_id, medication_name, dosage, frequency, duration,
			quantity, price, payment_status, prescribed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.VisitID, p.MedicationName, p.Dosage, p.Frequency, p.Duration,
		p.Quantity, p.Price, p.PaymentStatus, p.PrescribedByID)
	return err
}
