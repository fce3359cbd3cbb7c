package visit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PatientInfo is the slice of the patient record the visit workflow needs.
type PatientInfo struct {
	ID           uuid.UUID
	Name         string
	Email        *string
	HasInsurance bool
	CoveragePct  decimal.Decimal
}

// PatientLookup resolves patients from the identity domain without importing
// it; main wires an adapter. A missing patient is reported as
// ErrPatientNotFound; any other error is an infrastructure fault.
type PatientLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (*PatientInfo, error)
}

// PriceLookup resolves unit prices from the service catalog. A lookup
// failure never blocks the clinical order; the charge degrades to price 0.
type PriceLookup interface {
	FindPrice(ctx context.Context, name, category string) (decimal.Decimal, error)
}

type Service struct {
	repo     Repository
	patients PatientLookup
	prices   PriceLookup // may be nil
	log      zerolog.Logger
}

func NewService(repo Repository, patients PatientLookup, prices PriceLookup, log zerolog.Logger) *Service {
	return &Service{repo: repo, patients: patients, prices: prices, log: log}
}

// CreateVisitInput opens a new encounter.
type CreateVisitInput struct {
	PatientID        uuid.UUID `json:"patient_id"`
	AttendingStaffID uuid.UUID `json:"attending_staff_id"`
	StartedByID      *uuid.UUID `json:"started_by,omitempty"`
}

// CreateVisit opens an encounter. Status is seeded from the patient's
// insurance: insured visits go straight to the queue. A patient may have at
// most one active visit; the check here gives a friendly error and the
// partial unique index on the visit table backstops the race.
func (s *Service) CreateVisit(ctx context.Context, in CreateVisitInput) (*Visit, error) {
	if in.PatientID == uuid.Nil {
		return nil, validationf("patient_id is required")
	}
	if in.AttendingStaffID == uuid.Nil {
		return nil, validationf("attending_staff_id is required")
	}

	patient, err := s.patients.Lookup(ctx, in.PatientID)
	if errors.Is(err, ErrPatientNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup patient: %w", err)
	}

	if existing, err := s.repo.FindActiveByPatient(ctx, in.PatientID); err == nil {
		return nil, &DuplicateActiveVisitError{VisitNumber: existing.VisitNumber}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check active visit: %w", err)
	}

	v := &Visit{
		PatientID:        in.PatientID,
		AttendingStaffID: in.AttendingStaffID,
		StartedByID:      in.StartedByID,
		Status:           SeedStatus(patient.HasInsurance),
		IsActive:         true,
	}
	v.RecalculateFinancials()

	if err := s.repo.Create(ctx, v); err != nil {
		var dup *DuplicateActiveVisitError
		if errors.As(err, &dup) && dup.VisitNumber == "" {
			// Lost the race to a concurrent create; fetch the winner's number.
			if existing, lookupErr := s.repo.FindActiveByPatient(ctx, in.PatientID); lookupErr == nil {
				dup.VisitNumber = existing.VisitNumber
			}
			return nil, dup
		}
		return nil, err
	}
	s.log.Info().Str("visit", v.VisitNumber).Str("patient", in.PatientID.String()).
		Str("status", v.Status).Msg("visit created")
	return v, nil
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetVisitByNumber(ctx context.Context, number string) (*Visit, error) {
	return s.repo.GetByVisitNumber(ctx, number)
}

// resolve accepts either the aggregate UUID or the human-readable visit
// number.
func (s *Service) resolve(ctx context.Context, ref string) (*Visit, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.repo.GetByID(ctx, id)
	}
	return s.repo.GetByVisitNumber(ctx, ref)
}

// AddServiceCharge appends a billable line item to an active visit and
// persists the recomputed aggregate. The charge row and the visit row commit
// together: a version conflict rolls the charge back too.
func (s *Service) AddServiceCharge(ctx context.Context, visitRef string, in ChargeInput, actor uuid.UUID) (*Visit, *ServiceCharge, error) {
	v, err := s.resolve(ctx, visitRef)
	if err != nil {
		return nil, nil, err
	}
	if !v.IsActive {
		return nil, nil, ErrVisitInactive
	}

	charge, err := v.AddServiceCharge(in, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AddServiceCharge(ctx, charge); err != nil {
			return err
		}
		return s.repo.Update(ctx, v)
	}); err != nil {
		return nil, nil, err
	}
	return v, charge, nil
}

// RecordPayment appends a payment against the visit's aggregate balance.
func (s *Service) RecordPayment(ctx context.Context, visitRef string, in PaymentInput, actor uuid.UUID) (*Visit, *PaymentRecord, error) {
	v, err := s.resolve(ctx, visitRef)
	if err != nil {
		return nil, nil, err
	}

	rec, err := v.RecordPayment(in, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AddPayment(ctx, rec); err != nil {
			return err
		}
		return s.repo.Update(ctx, v)
	}); err != nil {
		return nil, nil, err
	}
	s.log.Info().Str("visit", v.VisitNumber).Str("amount", rec.Amount.String()).
		Str("method", rec.Method).Msg("payment recorded")
	return v, rec, nil
}

// WaiveCharge is the charge-correction path: the charge row is flagged
// waived instead of deleted and the aggregate is recomputed without it.
func (s *Service) WaiveCharge(ctx context.Context, visitRef string, chargeID uuid.UUID, actor uuid.UUID) (*Visit, error) {
	v, err := s.resolve(ctx, visitRef)
	if err != nil {
		return nil, err
	}
	if !v.IsActive {
		return nil, ErrVisitInactive
	}

	charge, err := v.WaiveCharge(chargeID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.SetChargeStatus(ctx, chargeID, PayStatusWaived); err != nil {
			return err
		}
		return s.repo.Update(ctx, v)
	}); err != nil {
		return nil, err
	}
	s.log.Info().Str("visit", v.VisitNumber).Str("charge", charge.ServiceName).
		Str("waived_by", actor.String()).Msg("charge waived")
	return v, nil
}

// ConfirmPayment moves a visit from Pending Payment into the queue.
func (s *Service) ConfirmPayment(ctx context.Context, visitRef string) (*Visit, error) {
	v, err := s.resolve(ctx, visitRef)
	if err != nil {
		return nil, err
	}
	if err := v.ConfirmPayment(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// GetPaymentSummary returns the read-only financial projection.
func (s *Service) GetPaymentSummary(ctx context.Context, visitRef string) (*PaymentSummary, error) {
	v, err := s.resolve(ctx, visitRef)
	if err != nil {
		return nil, err
	}
	return v.Summary(), nil
}

// ListOutstanding returns active visits with a positive outstanding balance.
func (s *Service) ListOutstanding(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	return s.repo.ListOutstanding(ctx, limit, offset)
}

func (s *Service) ListVisits(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListVisitsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// UpdateStatus applies an opaque clinical status write. Only membership in
// the status enum is validated; clinical workflow owns the ordering.
func (s *Service) UpdateStatus(ctx context.Context, visitRef, status string) (*Visit, error) {
	if !validStatuses[status] {
		return nil, validationf("invalid status: %q", status)
	}
	v, err := s.resolve(ctx, visitRef)
	if err != nil {
		return nil, err
	}
	if !v.IsActive {
		return nil, ErrVisitInactive
	}
	v.Status = status
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// EndVisit closes the encounter. The visit is kept (not deleted); is_active
// is flipped off, which frees the patient's one-active-visit slot.
func (s *Service) EndVisit(ctx context.Context, visitRef string, actor uuid.UUID) (*Visit, error) {
	v, err := s.resolve(ctx, visitRef)
	if err != nil {
		return nil, err
	}
	if !v.IsActive {
		return nil, ErrVisitInactive
	}
	v.IsActive = false
	v.Status = StatusCompleted
	v.EndedByID = &actor
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, err
	}
	s.log.Info().Str("visit", v.VisitNumber).Msg("visit ended")
	return v, nil
}

// Eligibility is the pass-through result of the payment-eligibility gate.
type Eligibility struct {
	Visit        *Visit
	HasInsurance bool
	CoveragePct  decimal.Decimal
}

// CheckPaymentEligibility decides whether clinical services may be ordered
// against the visit. Uninsured patients must clear Pending Payment first;
// every other (insurance, status) combination passes.
func (s *Service) CheckPaymentEligibility(ctx context.Context, visitRef string) (*Eligibility, error) {
	v, err := s.resolve(ctx, visitRef)
	if err != nil {
		return nil, err
	}
	patient, err := s.patients.Lookup(ctx, v.PatientID)
	if errors.Is(err, ErrPatientNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup patient: %w", err)
	}
	if !patient.HasInsurance && v.Status == StatusPendingPayment {
		return nil, &PaymentRequiredError{VisitNumber: v.VisitNumber}
	}
	return &Eligibility{Visit: v, HasInsurance: patient.HasInsurance, CoveragePct: patient.CoveragePct}, nil
}

// CheckVisitActive loads the visit and denies mutation of closed encounters.
func (s *Service) CheckVisitActive(ctx context.Context, visitRef string) (*Visit, error) {
	v, err := s.resolve(ctx, visitRef)
	if err != nil {
		return nil, err
	}
	if !v.IsActive {
		return nil, ErrVisitInactive
	}
	return v, nil
}

// LabOrderInput creates a gated lab order.
type LabOrderInput struct {
	TestName string  `json:"test_name"`
	Category *string `json:"category,omitempty"`
}

// AddLabOrder creates a lab order behind the payment-eligibility gate and
// bills it as a service charge. Price comes from the catalog; a failed
// lookup records the order and charge at price 0.
func (s *Service) AddLabOrder(ctx context.Context, visitRef string, in LabOrderInput, actor uuid.UUID) (*Visit, *LabOrder, error) {
	if in.TestName == "" {
		return nil, nil, validationf("test_name is required")
	}
	elig, err := s.CheckPaymentEligibility(ctx, visitRef)
	if err != nil {
		return nil, nil, err
	}
	v := elig.Visit
	if !v.IsActive {
		return nil, nil, ErrVisitInactive
	}

	price := s.lookupPrice(ctx, in.TestName, ChargeLabTest)

	order := &LabOrder{
		VisitID:       v.ID,
		TestName:      in.TestName,
		Category:      in.Category,
		Price:         price,
		PaymentStatus: initialPayStatus(elig.HasInsurance),
		Status:        "ordered",
		OrderedByID:   actor,
	}
	if err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AddLabOrder(ctx, order); err != nil {
			return err
		}
		charge, err := v.AddServiceCharge(ChargeInput{
			ServiceType:  ChargeLabTest,
			ServiceName:  in.TestName,
			ServiceRefID: &order.ID,
			UnitPrice:    price,
			Quantity:     1,
			HasInsurance: elig.HasInsurance,
			InsurancePct: elig.CoveragePct,
		}, actor)
		if err != nil {
			return err
		}
		if err := s.repo.AddServiceCharge(ctx, charge); err != nil {
			return err
		}
		return s.repo.Update(ctx, v)
	}); err != nil {
		return nil, nil, err
	}
	return v, order, nil
}

// PrescriptionInput creates a gated prescription.
type PrescriptionInput struct {
	MedicationName string  `json:"medication_name"`
	Dosage         *string `json:"dosage,omitempty"`
	Frequency      *string `json:"frequency,omitempty"`
	Duration       *string `json:"duration,omitempty"`
	Quantity       int     `json:"quantity"`
}

// AddPrescription creates a prescription behind the payment-eligibility gate
// and bills it as a service charge (unit price x quantity).
func (s *Service) AddPrescription(ctx context.Context, visitRef string, in PrescriptionInput, actor uuid.UUID) (*Visit, *Prescription, error) {
	if in.MedicationName == "" {
		return nil, nil, validationf("medication_name is required")
	}
	elig, err := s.CheckPaymentEligibility(ctx, visitRef)
	if err != nil {
		return nil, nil, err
	}
	v := elig.Visit
	if !v.IsActive {
		return nil, nil, ErrVisitInactive
	}

	qty := in.Quantity
	if qty <= 0 {
		qty = 1
	}
	price := s.lookupPrice(ctx, in.MedicationName, ChargePrescription)

	rx := &Prescription{
		VisitID:        v.ID,
		MedicationName: in.MedicationName,
		Dosage:         in.Dosage,
		Frequency:      in.Frequency,
		Duration:       in.Duration,
		Quantity:       qty,
		Price:          price,
		PaymentStatus:  initialPayStatus(elig.HasInsurance),
		PrescribedByID: actor,
	}
	if err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AddPrescription(ctx, rx); err != nil {
			return err
		}
		charge, err := v.AddServiceCharge(ChargeInput{
			ServiceType:  ChargePrescription,
			ServiceName:  in.MedicationName,
			ServiceRefID: &rx.ID,
			UnitPrice:    price,
			Quantity:     qty,
			HasInsurance: elig.HasInsurance,
			InsurancePct: elig.CoveragePct,
		}, actor)
		if err != nil {
			return err
		}
		if err := s.repo.AddServiceCharge(ctx, charge); err != nil {
			return err
		}
		return s.repo.Update(ctx, v)
	}); err != nil {
		return nil, nil, err
	}
	return v, rx, nil
}

// DiagnosisInput records a diagnosis against an active visit. Diagnoses are
// not payment-gated and generate no charge.
type DiagnosisInput struct {
	Code        *string `json:"code,omitempty"`
	Description string  `json:"description"`
	Notes       *string `json:"notes,omitempty"`
}

func (s *Service) AddDiagnosis(ctx context.Context, visitRef string, in DiagnosisInput, actor uuid.UUID) (*Diagnosis, error) {
	if in.Description == "" {
		return nil, validationf("description is required")
	}
	v, err := s.CheckVisitActive(ctx, visitRef)
	if err != nil {
		return nil, err
	}
	d := &Diagnosis{
		VisitID:       v.ID,
		Code:          in.Code,
		Description:   in.Description,
		Price:         decimal.Zero,
		PaymentStatus: PayStatusPending,
		Notes:         in.Notes,
		DiagnosedByID: actor,
	}
	if err := s.repo.AddDiagnosis(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// PatientFor exposes the patient lookup for handlers that need receipt
// recipient details.
func (s *Service) PatientFor(ctx context.Context, v *Visit) (*PatientInfo, error) {
	return s.patients.Lookup(ctx, v.PatientID)
}

func initialPayStatus(hasInsurance bool) string {
	if hasInsurance {
		return PayStatusInsuranceClaimed
	}
	return PayStatusPending
}

// lookupPrice degrades gracefully: the clinical order proceeds at price 0
// when the catalog cannot answer, so charge tracking survives a broken
// catalog while billing is reconciled later.
func (s *Service) lookupPrice(ctx context.Context, name, category string) decimal.Decimal {
	if s.prices == nil {
		return decimal.Zero
	}
	price, err := s.prices.FindPrice(ctx, name, category)
	if err != nil {
		s.log.Warn().Err(err).Str("service", name).Str("category", category).
			Msg("price lookup failed, charging at 0")
		return decimal.Zero
	}
	return price
}
