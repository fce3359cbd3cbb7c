package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no catalog entry matches a lookup.
var ErrNotFound = errors.New("catalog entry not found")

type Repository interface {
	Create(ctx context.Context, s *Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*Service, error)
	// FindByNameCategory is the price-lookup query used before charging.
	FindByNameCategory(ctx context.Context, name, category string) (*Service, error)
	Update(ctx context.Context, s *Service) error
	List(ctx context.Context, category string, limit, offset int) ([]*Service, int, error)
}
