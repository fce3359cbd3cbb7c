package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Patient maps to the patient table.
type Patient struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	MRN                   string          `db:"mrn" json:"mrn"`
	FirstName             string          `db:"first_name" json:"first_name"`
	LastName              string          `db:"last_name" json:"last_name"`
	DateOfBirth           *time.Time      `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender                *string         `db:"gender" json:"gender,omitempty"`
	Phone                 *string         `db:"phone" json:"phone,omitempty"`
	Email                 *string         `db:"email" json:"email,omitempty"`
	Address               *string         `db:"address" json:"address,omitempty"`
	InsuranceProvider     *string         `db:"insurance_provider" json:"insurance_provider,omitempty"`
	InsurancePolicyNumber *string         `db:"insurance_policy_number" json:"insurance_policy_number,omitempty"`
	InsuranceCoveragePct  decimal.Decimal `db:"insurance_coverage_pct" json:"insurance_coverage_pct"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// HasInsurance reports whether the patient carries a usable insurance policy:
// a provider that is present and non-empty.
func (p *Patient) HasInsurance() bool {
	return p.InsuranceProvider != nil && *p.InsuranceProvider != ""
}

// Staff maps to the staff table.
type Staff struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Role      string    `db:"role" json:"role"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

var validStaffRoles = map[string]bool{
	"admin": true, "doctor": true, "nurse": true, "reception": true, "billing": true, "lab": true,
}
