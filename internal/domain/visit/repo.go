package visit

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists Visit aggregates. Create assigns the visit number from
// an atomic store sequence; Update enforces optimistic locking on version_id.
// Child records are append-only inserts.
type Repository interface {
	// WithinTx runs fn atomically: repository calls made with the context fn
	// receives join one transaction, and a returned error rolls everything
	// back. Mutations touching a child row plus the visit row go through it.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	GetByVisitNumber(ctx context.Context, number string) (*Visit, error)
	// FindActiveByPatient returns the patient's open visit, or ErrNotFound.
	FindActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Visit, error)
	// Update persists the visit row (status, flags and derived financial
	// fields). Returns ErrVersionConflict if version_id has moved.
	Update(ctx context.Context, v *Visit) error
	List(ctx context.Context, limit, offset int) ([]*Visit, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)
	// ListOutstanding returns active visits with outstanding_balance > 0.
	ListOutstanding(ctx context.Context, limit, offset int) ([]*Visit, int, error)

	AddServiceCharge(ctx context.Context, c *ServiceCharge) error
	// SetChargeStatus rewrites a charge's payment_status; the waive flow is
	// the only caller. Returns ErrNotFound for an unknown charge.
	SetChargeStatus(ctx context.Context, chargeID uuid.UUID, status string) error
	AddPayment(ctx context.Context, p *PaymentRecord) error
	AddDiagnosis(ctx context.Context, d *Diagnosis) error
	AddLabOrder(ctx context.Context, o *LabOrder) error
	AddPrescription(ctx context.Context, p *Prescription) error
}
