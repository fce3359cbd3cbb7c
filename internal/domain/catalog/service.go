package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lookup is the price-lookup surface the visit service depends on.
type Lookup interface {
	FindPrice(ctx context.Context, name, category string) (decimal.Decimal, error)
}

type Svc struct {
	repo  Repository
	cache PriceCache // nil disables caching
}

func NewService(repo Repository, cache PriceCache) *Svc {
	return &Svc{repo: repo, cache: cache}
}

func (s *Svc) Create(ctx context.Context, svc *Service) error {
	if svc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validCategories[svc.Category] {
		return fmt.Errorf("invalid category: %s", svc.Category)
	}
	if svc.UnitPrice.IsNegative() {
		return fmt.Errorf("unit_price must not be negative")
	}
	svc.Active = true
	return s.repo.Create(ctx, svc)
}

func (s *Svc) Get(ctx context.Context, id uuid.UUID) (*Service, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Svc) Update(ctx context.Context, svc *Service) error {
	if !validCategories[svc.Category] {
		return fmt.Errorf("invalid category: %s", svc.Category)
	}
	if svc.UnitPrice.IsNegative() {
		return fmt.Errorf("unit_price must not be negative")
	}
	if err := s.repo.Update(ctx, svc); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, svc.Name, svc.Category)
	}
	return nil
}

func (s *Svc) List(ctx context.Context, category string, limit, offset int) ([]*Service, int, error) {
	return s.repo.List(ctx, category, limit, offset)
}

// FindPrice resolves a unit price by (name, category), reading through the
// cache when one is configured.
func (s *Svc) FindPrice(ctx context.Context, name, category string) (decimal.Decimal, error) {
	if s.cache != nil {
		if svc, ok := s.cache.Get(ctx, name, category); ok {
			return svc.UnitPrice, nil
		}
	}
	svc, err := s.repo.FindByNameCategory(ctx, name, category)
	if err != nil {
		return decimal.Zero, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, svc)
	}
	return svc.UnitPrice, nil
}
