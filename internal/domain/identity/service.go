package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	patients PatientRepository
	staff    StaffRepository
}

func NewService(patients PatientRepository, staff StaffRepository) *Service {
	return &Service{patients: patients, staff: staff}
}

var maxCoveragePct = decimal.NewFromInt(100)

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.InsuranceCoveragePct.IsNegative() || p.InsuranceCoveragePct.GreaterThan(maxCoveragePct) {
		return fmt.Errorf("insurance_coverage_pct must be between 0 and 100")
	}
	if p.HasInsurance() && p.InsuranceCoveragePct.IsZero() {
		// An insured patient with no explicit rate gets full coverage.
		p.InsuranceCoveragePct = maxCoveragePct
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return s.patients.GetByMRN(ctx, mrn)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if p.InsuranceCoveragePct.IsNegative() || p.InsuranceCoveragePct.GreaterThan(maxCoveragePct) {
		return fmt.Errorf("insurance_coverage_pct must be between 0 and 100")
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) CreateStaff(ctx context.Context, st *Staff) error {
	if st.FirstName == "" || st.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if !validStaffRoles[st.Role] {
		return fmt.Errorf("invalid staff role: %s", st.Role)
	}
	st.Active = true
	return s.staff.Create(ctx, st)
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.staff.GetByID(ctx, id)
}

func (s *Service) ListStaff(ctx context.Context, limit, offset int) ([]*Staff, int, error) {
	return s.staff.List(ctx, limit, offset)
}
