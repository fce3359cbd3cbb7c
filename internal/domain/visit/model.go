package visit

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Visit statuses. The string values are part of the API contract and are
// stored verbatim.
const (
	StatusPendingPayment = "Pending Payment"
	StatusInQueue        = "In Queue"
	StatusInProgress     = "In-Progress"
	StatusCompleted      = "completed"
)

var validStatuses = map[string]bool{
	StatusPendingPayment: true,
	StatusInQueue:        true,
	StatusInProgress:     true,
	StatusCompleted:      true,
}

// Service charge types.
const (
	ChargeConsultation = "consultation"
	ChargeLabTest      = "lab_test"
	ChargeRadiology    = "radiology"
	ChargePrescription = "prescription"
	ChargeProcedure    = "procedure"
	ChargeOther        = "other"
)

var validChargeTypes = map[string]bool{
	ChargeConsultation: true,
	ChargeLabTest:      true,
	ChargeRadiology:    true,
	ChargePrescription: true,
	ChargeProcedure:    true,
	ChargeOther:        true,
}

// Per-item payment statuses.
const (
	PayStatusPending          = "pending"
	PayStatusPaid             = "paid"
	PayStatusInsuranceClaimed = "insurance_claimed"
	PayStatusWaived           = "waived"
)

// Payment methods and types.
var validPaymentMethods = map[string]bool{
	"cash": true, "card": true, "mobile_money": true, "insurance": true, "bank_transfer": true,
}

const (
	PaymentTypeConsultationFee = "consultation_fee"
	PaymentTypeServicePayment  = "service_payment"
	PaymentTypeDeposit         = "deposit"
	PaymentTypeFullPayment     = "full_payment"
)

var validPaymentTypes = map[string]bool{
	PaymentTypeConsultationFee: true,
	PaymentTypeServicePayment:  true,
	PaymentTypeDeposit:         true,
	PaymentTypeFullPayment:     true,
}

// Sentinel errors surfaced by the service and mapped to HTTP statuses at the
// handler layer.
var (
	ErrNotFound         = errors.New("visit not found")
	ErrPatientNotFound  = errors.New("patient not found")
	ErrVisitInactive    = errors.New("cannot modify inactive visit")
	ErrVersionConflict  = errors.New("visit was modified concurrently")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError marks a request as malformed (missing or out-of-range
// fields). Handlers map it to 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// PaymentRequiredError is the eligibility gate's structured denial: the
// patient is uninsured and the visit is still awaiting payment. It carries
// the human-readable visit number so the caller can direct the user to
// settle at reception.
type PaymentRequiredError struct {
	VisitNumber string
}

func (e *PaymentRequiredError) Error() string {
	return fmt.Sprintf("payment required before clinical services for visit %s", e.VisitNumber)
}

// DuplicateActiveVisitError rejects a second concurrent visit for the same
// patient, referencing the one already open.
type DuplicateActiveVisitError struct {
	VisitNumber string
}

func (e *DuplicateActiveVisitError) Error() string {
	return fmt.Sprintf("patient already has an active visit: %s", e.VisitNumber)
}

// Visit maps to the visit table. Sub-record slices are loaded alongside the
// row; charges and payments are append-only.
type Visit struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	VisitNumber           string          `db:"visit_number" json:"visit_number"`
	PatientID             uuid.UUID       `db:"patient_id" json:"patient_id"`
	AttendingStaffID      uuid.UUID       `db:"attending_staff_id" json:"attending_staff_id"`
	StartedByID           *uuid.UUID      `db:"started_by" json:"started_by,omitempty"`
	EndedByID             *uuid.UUID      `db:"ended_by" json:"ended_by,omitempty"`
	Status                string          `db:"status" json:"status"`
	IsActive              bool            `db:"is_active" json:"is_active"`
	ConsultationFeePaid   bool            `db:"consultation_fee_paid" json:"consultation_fee_paid"`
	ConsultationFeeAmount decimal.Decimal `db:"consultation_fee_amount" json:"consultation_fee_amount"`
	TotalCharges          decimal.Decimal `db:"total_charges" json:"total_charges"`
	InsuranceCoverage     decimal.Decimal `db:"insurance_coverage" json:"insurance_coverage"`
	PatientResponsibility decimal.Decimal `db:"patient_responsibility" json:"patient_responsibility"`
	TotalPaid             decimal.Decimal `db:"total_paid" json:"total_paid"`
	OutstandingBalance    decimal.Decimal `db:"outstanding_balance" json:"outstanding_balance"`
	AllServicesPaid       bool            `db:"all_services_paid" json:"all_services_paid"`
	VersionID             int             `db:"version_id" json:"version_id"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`

	Diagnoses      []*Diagnosis      `db:"-" json:"diagnoses,omitempty"`
	LabOrders      []*LabOrder       `db:"-" json:"lab_orders,omitempty"`
	Prescriptions  []*Prescription   `db:"-" json:"prescriptions,omitempty"`
	ServiceCharges []*ServiceCharge  `db:"-" json:"service_charges,omitempty"`
	Payments       []*PaymentRecord  `db:"-" json:"payments,omitempty"`
}

// GetVersionID returns the current version.
func (v *Visit) GetVersionID() int { return v.VersionID }

// SetVersionID sets the current version.
func (v *Visit) SetVersionID(ver int) { v.VersionID = ver }

// ServiceCharge is one billable line item. Rows are never updated or deleted
// after insert; corrections are modeled as new charges.
type ServiceCharge struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	VisitID               uuid.UUID       `db:"visit_id" json:"visit_id"`
	ServiceType           string          `db:"service_type" json:"service_type"`
	ServiceName           string          `db:"service_name" json:"service_name"`
	ServiceRefID          *uuid.UUID      `db:"service_ref_id" json:"service_ref_id,omitempty"`
	UnitPrice             decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity              int             `db:"quantity" json:"quantity"`
	TotalPrice            decimal.Decimal `db:"total_price" json:"total_price"`
	HasInsurance          bool            `db:"has_insurance" json:"has_insurance"`
	InsurancePct          decimal.Decimal `db:"insurance_pct" json:"insurance_pct"`
	InsuranceCoverage     decimal.Decimal `db:"insurance_coverage" json:"insurance_coverage"`
	PatientResponsibility decimal.Decimal `db:"patient_responsibility" json:"patient_responsibility"`
	PaymentStatus         string          `db:"payment_status" json:"payment_status"`
	PaidAmount            decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	Notes                 *string         `db:"notes" json:"notes,omitempty"`
	AddedByID             uuid.UUID       `db:"added_by" json:"added_by"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
}

// PaymentRecord is one payment event against the visit's aggregate balance.
// Payments are never allocated to specific charges.
type PaymentRecord struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	VisitID        uuid.UUID       `db:"visit_id" json:"visit_id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Method         string          `db:"method" json:"method"`
	PaymentType    string          `db:"payment_type" json:"payment_type"`
	ReceiptNumber  *string         `db:"receipt_number" json:"receipt_number,omitempty"`
	TransactionRef *string         `db:"transaction_ref" json:"transaction_ref,omitempty"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	ReceivedByID   uuid.UUID       `db:"received_by" json:"received_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Diagnosis maps to the diagnosis table. Diagnoses carry a price slot like
// the other clinical sub-records but do not generate charges on their own;
// diagnostic work is billed through the consultation.
type Diagnosis struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	VisitID       uuid.UUID       `db:"visit_id" json:"visit_id"`
	Code          *string         `db:"code" json:"code,omitempty"`
	Description   string          `db:"description" json:"description"`
	Price         decimal.Decimal `db:"price" json:"price"`
	PaymentStatus string          `db:"payment_status" json:"payment_status"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
	DiagnosedByID uuid.UUID       `db:"diagnosed_by" json:"diagnosed_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// LabOrder maps to the lab_order table.
type LabOrder struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	VisitID       uuid.UUID       `db:"visit_id" json:"visit_id"`
	TestName      string          `db:"test_name" json:"test_name"`
	Category      *string         `db:"category" json:"category,omitempty"`
	Price         decimal.Decimal `db:"price" json:"price"`
	PaymentStatus string          `db:"payment_status" json:"payment_status"`
	Status        string          `db:"status" json:"status"`
	Result        *string         `db:"result" json:"result,omitempty"`
	OrderedByID   uuid.UUID       `db:"ordered_by" json:"ordered_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Prescription maps to the prescription table.
type Prescription struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	VisitID        uuid.UUID       `db:"visit_id" json:"visit_id"`
	MedicationName string          `db:"medication_name" json:"medication_name"`
	Dosage         *string         `db:"dosage" json:"dosage,omitempty"`
	Frequency      *string         `db:"frequency" json:"frequency,omitempty"`
	Duration       *string         `db:"duration" json:"duration,omitempty"`
	Quantity       int             `db:"quantity" json:"quantity"`
	Price          decimal.Decimal `db:"price" json:"price"`
	PaymentStatus  string          `db:"payment_status" json:"payment_status"`
	PrescribedByID uuid.UUID       `db:"prescribed_by" json:"prescribed_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// FormatVisitNumber renders a human-readable visit number: "V" + 2-digit
// year + 5-digit zero-padded sequence, e.g. V2600042.
func FormatVisitNumber(year int, seq int64) string {
	return fmt.Sprintf("V%02d%05d", year%100, seq)
}

// SeedStatus returns the status a new visit opens with. Insured patients go
// straight to the queue; uninsured patients must settle payment first.
func SeedStatus(hasInsurance bool) string {
	if hasInsurance {
		return StatusInQueue
	}
	return StatusPendingPayment
}
