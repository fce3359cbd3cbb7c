package visit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The visit ledger: in-memory mutations of the loaded aggregate. Charges and
// payments are append-only; the five derived financial fields are recomputed
// after every append and never assigned independently.

var hundred = decimal.NewFromInt(100)

// ChargeInput describes one billable event.
type ChargeInput struct {
	ServiceType  string          `json:"service_type"`
	ServiceName  string          `json:"service_name"`
	ServiceRefID *uuid.UUID      `json:"service_ref_id,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	HasInsurance bool            `json:"has_insurance"`
	InsurancePct decimal.Decimal `json:"insurance_pct"`
	Notes        *string         `json:"notes,omitempty"`
}

// PaymentInput describes one payment event. Amount, method and payment type
// are all mandatory.
type PaymentInput struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	PaymentType    string          `json:"payment_type"`
	ReceiptNumber  *string         `json:"receipt_number,omitempty"`
	TransactionRef *string         `json:"transaction_ref,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
}

// AddServiceCharge validates the input, computes the insurance split, appends
// a ServiceCharge and recomputes the aggregate. The charge is never mutated
// or removed afterwards; corrections are new charges.
func (v *Visit) AddServiceCharge(in ChargeInput, actor uuid.UUID) (*ServiceCharge, error) {
	if !validChargeTypes[in.ServiceType] {
		return nil, validationf("invalid service type: %q", in.ServiceType)
	}
	if in.ServiceName == "" {
		return nil, validationf("service name is required")
	}
	if in.UnitPrice.IsNegative() {
		return nil, validationf("unit price must not be negative")
	}
	if in.InsurancePct.IsNegative() || in.InsurancePct.GreaterThan(hundred) {
		return nil, validationf("insurance coverage percentage must be between 0 and 100")
	}
	qty := in.Quantity
	if qty <= 0 {
		qty = 1
	}

	total := in.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
	coverage := decimal.Zero
	if in.HasInsurance {
		coverage = total.Mul(in.InsurancePct).Div(hundred)
	}
	status := PayStatusPending
	if in.HasInsurance {
		status = PayStatusInsuranceClaimed
	}

	charge := &ServiceCharge{
		ID:                    uuid.New(),
		VisitID:               v.ID,
		ServiceType:           in.ServiceType,
		ServiceName:           in.ServiceName,
		ServiceRefID:          in.ServiceRefID,
		UnitPrice:             in.UnitPrice,
		Quantity:              qty,
		TotalPrice:            total,
		HasInsurance:          in.HasInsurance,
		InsurancePct:          in.InsurancePct,
		InsuranceCoverage:     coverage,
		PatientResponsibility: total.Sub(coverage),
		PaymentStatus:         status,
		PaidAmount:            decimal.Zero,
		Notes:                 in.Notes,
		AddedByID:             actor,
		CreatedAt:             time.Now().UTC(),
	}

	v.ServiceCharges = append(v.ServiceCharges, charge)
	v.RecalculateFinancials()
	return charge, nil
}

// RecordPayment validates the input, appends a PaymentRecord and recomputes
// the aggregate. A consultation-fee payment additionally marks the
// consultation fee as settled. Payments offset the aggregate balance only.
func (v *Visit) RecordPayment(in PaymentInput, actor uuid.UUID) (*PaymentRecord, error) {
	if !in.Amount.IsPositive() {
		return nil, validationf("payment amount must be greater than zero")
	}
	if in.Method == "" || in.PaymentType == "" {
		return nil, validationf("amount, payment method and payment type are required")
	}
	if !validPaymentMethods[in.Method] {
		return nil, validationf("invalid payment method: %q", in.Method)
	}
	if !validPaymentTypes[in.PaymentType] {
		return nil, validationf("invalid payment type: %q", in.PaymentType)
	}

	rec := &PaymentRecord{
		ID:             uuid.New(),
		VisitID:        v.ID,
		Amount:         in.Amount,
		Method:         in.Method,
		PaymentType:    in.PaymentType,
		ReceiptNumber:  in.ReceiptNumber,
		TransactionRef: in.TransactionRef,
		Notes:          in.Notes,
		ReceivedByID:   actor,
		CreatedAt:      time.Now().UTC(),
	}

	if in.PaymentType == PaymentTypeConsultationFee {
		v.ConsultationFeePaid = true
		v.ConsultationFeeAmount = in.Amount
	}

	v.Payments = append(v.Payments, rec)
	v.RecalculateFinancials()
	return rec, nil
}

// WaiveCharge neutralizes a mistaken charge. The row is kept with
// payment_status "waived" so the correction stays visible in the history;
// the recompute drops it from every derived sum.
func (v *Visit) WaiveCharge(chargeID uuid.UUID) (*ServiceCharge, error) {
	for _, c := range v.ServiceCharges {
		if c.ID != chargeID {
			continue
		}
		if c.PaymentStatus == PayStatusWaived {
			return nil, validationf("charge %s is already waived", chargeID)
		}
		c.PaymentStatus = PayStatusWaived
		v.RecalculateFinancials()
		return c, nil
	}
	return nil, validationf("charge %s not found on visit %s", chargeID, v.VisitNumber)
}

// RecalculateFinancials recomputes the derived aggregate fields from the two
// append-only sequences. It is a pure fold: calling it any number of times
// with no intervening append yields identical values.
//
// Waived charges drop out of all three charge-side sums.
func (v *Visit) RecalculateFinancials() {
	total := decimal.Zero
	coverage := decimal.Zero
	responsibility := decimal.Zero
	for _, c := range v.ServiceCharges {
		if c.PaymentStatus == PayStatusWaived {
			continue
		}
		total = total.Add(c.TotalPrice)
		coverage = coverage.Add(c.InsuranceCoverage)
		responsibility = responsibility.Add(c.PatientResponsibility)
	}

	paid := decimal.Zero
	for _, p := range v.Payments {
		paid = paid.Add(p.Amount)
	}

	v.TotalCharges = total
	v.InsuranceCoverage = coverage
	v.PatientResponsibility = responsibility
	v.TotalPaid = paid
	// Signed: overpayment is a negative balance, deliberately not clamped.
	v.OutstandingBalance = responsibility.Sub(paid)
	v.AllServicesPaid = !v.OutstandingBalance.IsPositive()
}

// PaymentSummary is the read-only financial projection of a visit.
type PaymentSummary struct {
	VisitNumber           string           `json:"visit_number"`
	Status                string           `json:"status"`
	TotalCharges          decimal.Decimal  `json:"total_charges"`
	InsuranceCoverage     decimal.Decimal  `json:"insurance_coverage"`
	PatientResponsibility decimal.Decimal  `json:"patient_responsibility"`
	TotalPaid             decimal.Decimal  `json:"total_paid"`
	OutstandingBalance    decimal.Decimal  `json:"outstanding_balance"`
	AllServicesPaid       bool             `json:"all_services_paid"`
	ConsultationFeePaid   bool             `json:"consultation_fee_paid"`
	ServiceCharges        []*ServiceCharge `json:"service_charges"`
	Payments              []*PaymentRecord `json:"payments"`
}

// Summary projects the visit's financial state for reporting and the
// payment-summary endpoint.
func (v *Visit) Summary() *PaymentSummary {
	return &PaymentSummary{
		VisitNumber:           v.VisitNumber,
		Status:                v.Status,
		TotalCharges:          v.TotalCharges,
		InsuranceCoverage:     v.InsuranceCoverage,
		PatientResponsibility: v.PatientResponsibility,
		TotalPaid:             v.TotalPaid,
		OutstandingBalance:    v.OutstandingBalance,
		AllServicesPaid:       v.AllServicesPaid,
		ConsultationFeePaid:   v.ConsultationFeePaid,
		ServiceCharges:        v.ServiceCharges,
		Payments:              v.Payments,
	}
}

// ConfirmPayment moves the visit from Pending Payment into the queue. It is
// the only transition with an explicit trigger; clinical status changes
// arrive from outside as opaque writes.
func (v *Visit) ConfirmPayment() error {
	if v.Status != StatusPendingPayment {
		return validationf("visit %s is not awaiting payment confirmation (status %q)", v.VisitNumber, v.Status)
	}
	v.Status = StatusInQueue
	return nil
}
