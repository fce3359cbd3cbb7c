package identity

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
	seq      int64
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.seq++
	p.ID = uuid.New()
	p.MRN = fmt.Sprintf("MRN%06d", m.seq)
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPatientRepo) GetByMRN(_ context.Context, mrn string) (*Patient, error) {
	for _, p := range m.patients {
		if p.MRN == mrn {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, _, _ int) ([]*Patient, int, error) {
	out := make([]*Patient, 0, len(m.patients))
	for _, p := range m.patients {
		out = append(out, p)
	}
	return out, len(out), nil
}

type mockStaffRepo struct {
	staff map[uuid.UUID]*Staff
}

func newMockStaffRepo() *mockStaffRepo {
	return &mockStaffRepo{staff: make(map[uuid.UUID]*Staff)}
}

func (m *mockStaffRepo) Create(_ context.Context, s *Staff) error {
	s.ID = uuid.New()
	m.staff[s.ID] = s
	return nil
}

func (m *mockStaffRepo) GetByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	s, ok := m.staff[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *mockStaffRepo) List(_ context.Context, _, _ int) ([]*Staff, int, error) {
	out := make([]*Staff, 0, len(m.staff))
	for _, s := range m.staff {
		out = append(out, s)
	}
	return out, len(out), nil
}

func newTestService() (*Service, *mockPatientRepo, *mockStaffRepo) {
	patients := newMockPatientRepo()
	staff := newMockStaffRepo()
	return NewService(patients, staff), patients, staff
}

func strPtr(s string) *string { return &s }

func pct(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCreatePatient(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := &Patient{FirstName: "Ada", LastName: "Mensah"}
	if err := svc.CreatePatient(ctx, p); err != nil {
		t.Fatalf("CreatePatient() error: %v", err)
	}
	if p.MRN == "" {
		t.Error("MRN not assigned")
	}

	if err := svc.CreatePatient(ctx, &Patient{LastName: "Mensah"}); err == nil {
		t.Error("expected error for missing first_name")
	}
	if err := svc.CreatePatient(ctx, &Patient{
		FirstName: "Ada", LastName: "Mensah", InsuranceCoveragePct: pct("120"),
	}); err == nil {
		t.Error("expected error for coverage over 100")
	}
}

func TestCreatePatient_InsuredDefaultsToFullCoverage(t *testing.T) {
	svc, _, _ := newTestService()

	p := &Patient{
		FirstName:         "Ada",
		LastName:          "Mensah",
		InsuranceProvider: strPtr("NHIS"),
	}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("CreatePatient() error: %v", err)
	}
	if !p.InsuranceCoveragePct.Equal(pct("100")) {
		t.Errorf("coverage = %s, want 100 (insured with no explicit rate)", p.InsuranceCoveragePct)
	}
}

func TestCreatePatient_ExplicitCoverageKept(t *testing.T) {
	svc, _, _ := newTestService()

	p := &Patient{
		FirstName:            "Ada",
		LastName:             "Mensah",
		InsuranceProvider:    strPtr("NHIS"),
		InsuranceCoveragePct: pct("70"),
	}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("CreatePatient() error: %v", err)
	}
	if !p.InsuranceCoveragePct.Equal(pct("70")) {
		t.Errorf("coverage = %s, want 70", p.InsuranceCoveragePct)
	}
}

func TestHasInsurance(t *testing.T) {
	cases := []struct {
		name     string
		provider *string
		want     bool
	}{
		{"nil provider", nil, false},
		{"empty provider", strPtr(""), false},
		{"named provider", strPtr("NHIS"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Patient{InsuranceProvider: tc.provider}
			if got := p.HasInsurance(); got != tc.want {
				t.Errorf("HasInsurance() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGetPatientByMRN(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := &Patient{FirstName: "Kwame", LastName: "Osei"}
	if err := svc.CreatePatient(ctx, p); err != nil {
		t.Fatalf("CreatePatient() error: %v", err)
	}

	got, err := svc.GetPatientByMRN(ctx, p.MRN)
	if err != nil {
		t.Fatalf("GetPatientByMRN() error: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("resolved patient %s, want %s", got.ID, p.ID)
	}

	if _, err := svc.GetPatientByMRN(ctx, "MRN999999"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePatient_CoverageBounds(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := &Patient{FirstName: "Ada", LastName: "Mensah"}
	if err := svc.CreatePatient(ctx, p); err != nil {
		t.Fatalf("CreatePatient() error: %v", err)
	}

	p.InsuranceCoveragePct = pct("-5")
	if err := svc.UpdatePatient(ctx, p); err == nil {
		t.Error("expected error for negative coverage")
	}

	p.InsuranceCoveragePct = pct("85")
	if err := svc.UpdatePatient(ctx, p); err != nil {
		t.Errorf("UpdatePatient() error: %v", err)
	}
}

func TestCreateStaff(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	st := &Staff{FirstName: "Efua", LastName: "Boateng", Role: "doctor"}
	if err := svc.CreateStaff(ctx, st); err != nil {
		t.Fatalf("CreateStaff() error: %v", err)
	}
	if !st.Active {
		t.Error("new staff must be active")
	}

	if err := svc.CreateStaff(ctx, &Staff{FirstName: "X", LastName: "Y", Role: "janitor"}); err == nil {
		t.Error("expected error for unknown role")
	}
	if err := svc.CreateStaff(ctx, &Staff{Role: "doctor"}); err == nil {
		t.Error("expected error for missing name")
	}
}
