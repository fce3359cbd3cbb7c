package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service maps to the service_catalog table: one row per orderable hospital
// service with its unit price. (name, category) is unique.
type Service struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"category"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Categories mirror the billable service types.
var validCategories = map[string]bool{
	"consultation": true, "lab_test": true, "radiology": true,
	"prescription": true, "procedure": true, "other": true,
}
