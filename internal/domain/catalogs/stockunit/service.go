package stockunit

import (
	"context"
	"fmt"
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/pkg/logger"
)

// Service provides catalog operations for stock units.
// Quantity changes are owned by the settlement engine and are
// deliberately absent from this service.
type Service struct {
	repo Repository
}

// NewService creates a new stock unit catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new batch in the catalog.
func (s *Service) Create(ctx context.Context, unit *StockUnit) error {
	if err := unit.Validate(ctx); err != nil {
		return err
	}

	existing, err := s.repo.GetByBatch(ctx, unit.MedicineName, unit.BatchNumber)
	if err != nil && !apperror.IsNotFound(err) {
		return fmt.Errorf("check batch: %w", err)
	}
	if existing != nil {
		return apperror.NewDuplicate("stock unit", "batch number", unit.BatchNumber)
	}

	if err := s.repo.Create(ctx, unit); err != nil {
		return fmt.Errorf("create stock unit: %w", err)
	}

	logger.Info(ctx, "stock unit created",
		"id", unit.ID,
		"medicine", unit.MedicineName,
		"batch", unit.BatchNumber,
	)
	return nil
}

// GetByID retrieves a stock unit.
func (s *Service) GetByID(ctx context.Context, unitID id.ID) (*StockUnit, error) {
	return s.repo.GetByID(ctx, unitID)
}

// List retrieves stock units with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*StockUnit, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// UpdateDetails saves catalog fields (price, name, schedule class).
// On-hand quantity cannot be changed here.
func (s *Service) UpdateDetails(ctx context.Context, unit *StockUnit) error {
	if err := unit.Validate(ctx); err != nil {
		return err
	}
	return s.repo.Update(ctx, unit)
}

// MarkDeleted soft-deletes a unit. Historical sales keep referencing it.
func (s *Service) MarkDeleted(ctx context.Context, unitID id.ID) error {
	unit, err := s.repo.GetByID(ctx, unitID)
	if err != nil {
		return err
	}
	if unit.OnHand.IsPositive() {
		return apperror.NewBusinessRule(
			apperror.CodeBusinessRule,
			"Cannot delete a stock unit with stock on hand",
		).WithDetail("on_hand", unit.OnHand.Int64())
	}
	return s.repo.SetDeletionMark(ctx, unitID, true)
}

// ExpiringWithin lists batches that expire within the period.
func (s *Service) ExpiringWithin(ctx context.Context, period time.Duration) ([]*StockUnit, error) {
	deadline := time.Now().UTC().Add(period)
	return s.repo.List(ctx, ListFilter{
		ExpiringBefore: &deadline,
		ExcludeZero:    true,
		Limit:          500,
	})
}
