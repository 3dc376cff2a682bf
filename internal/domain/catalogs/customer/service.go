package customer

import (
	"context"
	"fmt"

	"farmapos/internal/core/id"
	"farmapos/pkg/logger"
)

// Service provides catalog operations for customers.
// Balance changes are owned by the customer ledger service.
type Service struct {
	repo Repository
}

// NewService creates a new customer catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new customer.
func (s *Service) Create(ctx context.Context, c *Customer) error {
	if err := c.Validate(ctx); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	logger.Info(ctx, "customer created", "id", c.ID, "name", c.Name)
	return nil
}

// GetByID retrieves a customer.
func (s *Service) GetByID(ctx context.Context, customerID id.ID) (*Customer, error) {
	return s.repo.GetByID(ctx, customerID)
}

// List retrieves customers with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Customer, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// UpdateDetails saves name, phone and credit limit.
func (s *Service) UpdateDetails(ctx context.Context, c *Customer) error {
	if err := c.Validate(ctx); err != nil {
		return err
	}
	return s.repo.Update(ctx, c)
}

// MarkDeleted soft-deletes a customer card. Ledger history stays.
func (s *Service) MarkDeleted(ctx context.Context, customerID id.ID) error {
	if err := s.repo.SetDeletionMark(ctx, customerID, true); err != nil {
		return fmt.Errorf("mark customer deleted: %w", err)
	}
	logger.Info(ctx, "customer marked for deletion", "id", customerID)
	return nil
}
