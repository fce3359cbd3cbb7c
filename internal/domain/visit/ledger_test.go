package visit

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestVisit() *Visit {
	return &Visit{
		ID:          uuid.New(),
		VisitNumber: "V2600001",
		PatientID:   uuid.New(),
		Status:      StatusInQueue,
		IsActive:    true,
	}
}

func mustCharge(t *testing.T, v *Visit, in ChargeInput) *ServiceCharge {
	t.Helper()
	c, err := v.AddServiceCharge(in, uuid.New())
	if err != nil {
		t.Fatalf("AddServiceCharge() error: %v", err)
	}
	return c
}

func mustPay(t *testing.T, v *Visit, in PaymentInput) *PaymentRecord {
	t.Helper()
	p, err := v.RecordPayment(in, uuid.New())
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	return p
}

func TestAddServiceCharge_InsuranceSplit(t *testing.T) {
	v := newTestVisit()

	c := mustCharge(t, v, ChargeInput{
		ServiceType:  ChargeLabTest,
		ServiceName:  "MRI Scan",
		UnitPrice:    dec("100"),
		HasInsurance: true,
		InsurancePct: dec("70"),
	})

	if !c.TotalPrice.Equal(dec("100")) {
		t.Errorf("TotalPrice = %s, want 100", c.TotalPrice)
	}
	if !c.InsuranceCoverage.Equal(dec("70")) {
		t.Errorf("InsuranceCoverage = %s, want 70", c.InsuranceCoverage)
	}
	if !c.PatientResponsibility.Equal(dec("30")) {
		t.Errorf("PatientResponsibility = %s, want 30", c.PatientResponsibility)
	}
	if c.PaymentStatus != PayStatusInsuranceClaimed {
		t.Errorf("PaymentStatus = %s, want insurance_claimed", c.PaymentStatus)
	}

	if !v.TotalCharges.Equal(dec("100")) || !v.PatientResponsibility.Equal(dec("30")) {
		t.Errorf("aggregate not recomputed: total=%s responsibility=%s",
			v.TotalCharges, v.PatientResponsibility)
	}
	if !v.OutstandingBalance.Equal(dec("30")) {
		t.Errorf("OutstandingBalance = %s, want 30", v.OutstandingBalance)
	}
}

func TestAddServiceCharge_Uninsured(t *testing.T) {
	v := newTestVisit()

	c := mustCharge(t, v, ChargeInput{
		ServiceType: ChargeLabTest,
		ServiceName: "Blood Panel",
		UnitPrice:   dec("50"),
	})

	if !c.InsuranceCoverage.IsZero() {
		t.Errorf("InsuranceCoverage = %s, want 0", c.InsuranceCoverage)
	}
	if !c.PatientResponsibility.Equal(dec("50")) {
		t.Errorf("PatientResponsibility = %s, want 50", c.PatientResponsibility)
	}
	if c.PaymentStatus != PayStatusPending {
		t.Errorf("PaymentStatus = %s, want pending", c.PaymentStatus)
	}
}

func TestAddServiceCharge_QuantityDefaultsToOne(t *testing.T) {
	v := newTestVisit()

	c := mustCharge(t, v, ChargeInput{
		ServiceType: ChargeOther,
		ServiceName: "Dressing",
		UnitPrice:   dec("10"),
		Quantity:    0,
	})
	if c.Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", c.Quantity)
	}
	if !c.TotalPrice.Equal(dec("10")) {
		t.Errorf("TotalPrice = %s, want 10", c.TotalPrice)
	}
}

func TestAddServiceCharge_QuantityMultiplies(t *testing.T) {
	v := newTestVisit()

	c := mustCharge(t, v, ChargeInput{
		ServiceType: ChargePrescription,
		ServiceName: "Amoxicillin",
		UnitPrice:   dec("2.50"),
		Quantity:    3,
	})
	if !c.TotalPrice.Equal(dec("7.50")) {
		t.Errorf("TotalPrice = %s, want 7.50", c.TotalPrice)
	}
}

func TestAddServiceCharge_Validation(t *testing.T) {
	v := newTestVisit()
	actor := uuid.New()

	cases := []struct {
		name string
		in   ChargeInput
	}{
		{"invalid type", ChargeInput{ServiceType: "massage", ServiceName: "x", UnitPrice: dec("1")}},
		{"missing name", ChargeInput{ServiceType: ChargeLabTest, UnitPrice: dec("1")}},
		{"negative price", ChargeInput{ServiceType: ChargeLabTest, ServiceName: "x", UnitPrice: dec("-1")}},
		{"pct over 100", ChargeInput{ServiceType: ChargeLabTest, ServiceName: "x", UnitPrice: dec("1"), HasInsurance: true, InsurancePct: dec("101")}},
		{"negative pct", ChargeInput{ServiceType: ChargeLabTest, ServiceName: "x", UnitPrice: dec("1"), HasInsurance: true, InsurancePct: dec("-1")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.AddServiceCharge(tc.in, actor)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(v.ServiceCharges) != 0 {
		t.Errorf("rejected charges must not be appended, got %d", len(v.ServiceCharges))
	}
}

func TestAddServiceCharge_ZeroPriceAllowed(t *testing.T) {
	v := newTestVisit()
	c := mustCharge(t, v, ChargeInput{
		ServiceType: ChargeLabTest,
		ServiceName: "Follow-up Review",
		UnitPrice:   decimal.Zero,
	})
	if !c.TotalPrice.IsZero() {
		t.Errorf("TotalPrice = %s, want 0", c.TotalPrice)
	}
	if !v.AllServicesPaid {
		t.Error("zero balance should report all services paid")
	}
}

func TestRecordPayment_ReducesBalance(t *testing.T) {
	v := newTestVisit()
	mustCharge(t, v, ChargeInput{ServiceType: ChargeLabTest, ServiceName: "X-Ray", UnitPrice: dec("30")})

	mustPay(t, v, PaymentInput{Amount: dec("30"), Method: "cash", PaymentType: PaymentTypeServicePayment})

	if !v.OutstandingBalance.IsZero() {
		t.Errorf("OutstandingBalance = %s, want 0", v.OutstandingBalance)
	}
	if !v.AllServicesPaid {
		t.Error("expected AllServicesPaid after settling the balance")
	}
}

func TestRecordPayment_OverpaymentGoesNegative(t *testing.T) {
	v := newTestVisit()
	mustCharge(t, v, ChargeInput{ServiceType: ChargeLabTest, ServiceName: "X-Ray", UnitPrice: dec("30")})

	mustPay(t, v, PaymentInput{Amount: dec("50"), Method: "card", PaymentType: PaymentTypeFullPayment})

	if !v.OutstandingBalance.Equal(dec("-20")) {
		t.Errorf("OutstandingBalance = %s, want -20 (signed, not clamped)", v.OutstandingBalance)
	}
	if !v.AllServicesPaid {
		t.Error("expected AllServicesPaid on overpayment")
	}
}

func TestRecordPayment_ConsultationFeeMarksSettled(t *testing.T) {
	v := newTestVisit()

	mustPay(t, v, PaymentInput{Amount: dec("25"), Method: "mobile_money", PaymentType: PaymentTypeConsultationFee})

	if !v.ConsultationFeePaid {
		t.Error("expected ConsultationFeePaid")
	}
	if !v.ConsultationFeeAmount.Equal(dec("25")) {
		t.Errorf("ConsultationFeeAmount = %s, want 25", v.ConsultationFeeAmount)
	}
}

func TestRecordPayment_Validation(t *testing.T) {
	v := newTestVisit()
	actor := uuid.New()

	cases := []struct {
		name string
		in   PaymentInput
	}{
		{"zero amount", PaymentInput{Amount: decimal.Zero, Method: "cash", PaymentType: PaymentTypeServicePayment}},
		{"negative amount", PaymentInput{Amount: dec("-5"), Method: "cash", PaymentType: PaymentTypeServicePayment}},
		{"missing method", PaymentInput{Amount: dec("5"), PaymentType: PaymentTypeServicePayment}},
		{"missing type", PaymentInput{Amount: dec("5"), Method: "cash"}},
		{"bad method", PaymentInput{Amount: dec("5"), Method: "barter", PaymentType: PaymentTypeServicePayment}},
		{"bad type", PaymentInput{Amount: dec("5"), Method: "cash", PaymentType: "tip"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.RecordPayment(tc.in, actor)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(v.Payments) != 0 {
		t.Errorf("rejected payments must not be appended, got %d", len(v.Payments))
	}
}

func TestRecalculateFinancials_Idempotent(t *testing.T) {
	v := newTestVisit()
	mustCharge(t, v, ChargeInput{
		ServiceType:  ChargeLabTest,
		ServiceName:  "CT Scan",
		UnitPrice:    dec("200"),
		HasInsurance: true,
		InsurancePct: dec("80"),
	})
	mustPay(t, v, PaymentInput{Amount: dec("15"), Method: "cash", PaymentType: PaymentTypeServicePayment})

	before := *v
	v.RecalculateFinancials()
	v.RecalculateFinancials()

	if !v.TotalCharges.Equal(before.TotalCharges) ||
		!v.InsuranceCoverage.Equal(before.InsuranceCoverage) ||
		!v.PatientResponsibility.Equal(before.PatientResponsibility) ||
		!v.TotalPaid.Equal(before.TotalPaid) ||
		!v.OutstandingBalance.Equal(before.OutstandingBalance) ||
		v.AllServicesPaid != before.AllServicesPaid {
		t.Error("repeated recompute changed derived fields")
	}
}

func TestWaiveCharge_SkippedInRecompute(t *testing.T) {
	v := newTestVisit()
	kept := mustCharge(t, v, ChargeInput{ServiceType: ChargeLabTest, ServiceName: "X-Ray", UnitPrice: dec("40")})
	waived := mustCharge(t, v, ChargeInput{ServiceType: ChargeOther, ServiceName: "Duplicate entry", UnitPrice: dec("99")})

	if _, err := v.WaiveCharge(waived.ID); err != nil {
		t.Fatalf("WaiveCharge() error: %v", err)
	}

	if !v.TotalCharges.Equal(kept.TotalPrice) {
		t.Errorf("TotalCharges = %s, want %s (waived excluded)", v.TotalCharges, kept.TotalPrice)
	}
	if !v.OutstandingBalance.Equal(dec("40")) {
		t.Errorf("OutstandingBalance = %s, want 40", v.OutstandingBalance)
	}
	if len(v.ServiceCharges) != 2 {
		t.Errorf("charges = %d, want 2 (waived row kept in history)", len(v.ServiceCharges))
	}

	if _, err := v.WaiveCharge(waived.ID); err == nil {
		t.Error("expected error waiving an already-waived charge")
	}
	if _, err := v.WaiveCharge(uuid.New()); err == nil {
		t.Error("expected error waiving an unknown charge")
	}
}

func TestLedger_MixedScenario(t *testing.T) {
	// Insured visit: two charges at different coverage, partial payment.
	v := newTestVisit()
	mustCharge(t, v, ChargeInput{
		ServiceType: ChargeConsultation, ServiceName: "Consultation",
		UnitPrice: dec("50"), HasInsurance: true, InsurancePct: dec("100"),
	})
	mustCharge(t, v, ChargeInput{
		ServiceType: ChargeLabTest, ServiceName: "Lipid Panel",
		UnitPrice: dec("100"), HasInsurance: true, InsurancePct: dec("70"),
	})

	if !v.TotalCharges.Equal(dec("150")) {
		t.Errorf("TotalCharges = %s, want 150", v.TotalCharges)
	}
	if !v.InsuranceCoverage.Equal(dec("120")) {
		t.Errorf("InsuranceCoverage = %s, want 120", v.InsuranceCoverage)
	}
	if !v.PatientResponsibility.Equal(dec("30")) {
		t.Errorf("PatientResponsibility = %s, want 30", v.PatientResponsibility)
	}

	mustPay(t, v, PaymentInput{Amount: dec("30"), Method: "card", PaymentType: PaymentTypeServicePayment})
	if !v.OutstandingBalance.IsZero() || !v.AllServicesPaid {
		t.Errorf("balance = %s allPaid = %v, want 0/true", v.OutstandingBalance, v.AllServicesPaid)
	}
}
