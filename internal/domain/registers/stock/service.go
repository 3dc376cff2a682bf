package stock

import (
	"context"
	"fmt"
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/entity"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
	"farmapos/pkg/logger"
)

// Service provides business operations for the stock register.
// Transactions are managed by the caller (the settlement engine);
// every method here expects to run inside one.
type Service struct {
	repo Repository
}

// NewService creates a new stock register service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ReserveAndDecrement checks availability and decrements on-hand quantity
// as one operation under a row lock. The check and the write share the
// lock, so concurrent settlements over the same unit cannot oversell.
func (s *Service) ReserveAndDecrement(
	ctx context.Context,
	recorderID id.ID,
	recorderType string,
	period time.Time,
	stockUnitID id.ID,
	quantity types.Quantity,
) error {
	if !quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("stock_unit_id", stockUnitID.String())
	}

	onHand, err := s.repo.GetOnHandForUpdate(ctx, stockUnitID)
	if err != nil {
		return fmt.Errorf("get on-hand for %s: %w", stockUnitID, err)
	}

	if onHand < quantity {
		return apperror.NewInsufficientStock(stockUnitID.String(), quantity.Int64(), onHand.Int64())
	}

	if err := s.repo.AdjustOnHand(ctx, stockUnitID, quantity.Neg()); err != nil {
		return fmt.Errorf("decrement on-hand: %w", err)
	}

	movement := entity.NewStockMovement(
		recorderID, recorderType, period,
		entity.RecordTypeExpense,
		stockUnitID, quantity,
	)
	if err := s.repo.CreateMovements(ctx, []entity.StockMovement{movement}); err != nil {
		return fmt.Errorf("record expense movement: %w", err)
	}

	return nil
}

// Receive increments on-hand quantity. Goods intake is always permitted;
// the receipt movement is written in the same transaction.
func (s *Service) Receive(
	ctx context.Context,
	recorderID id.ID,
	recorderType string,
	period time.Time,
	stockUnitID id.ID,
	quantity types.Quantity,
) error {
	if !quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("stock_unit_id", stockUnitID.String())
	}

	// Lock the row anyway so receipt and sale serialize consistently.
	if _, err := s.repo.GetOnHandForUpdate(ctx, stockUnitID); err != nil {
		return fmt.Errorf("get on-hand for %s: %w", stockUnitID, err)
	}

	if err := s.repo.AdjustOnHand(ctx, stockUnitID, quantity); err != nil {
		return fmt.Errorf("increment on-hand: %w", err)
	}

	movement := entity.NewStockMovement(
		recorderID, recorderType, period,
		entity.RecordTypeReceipt,
		stockUnitID, quantity,
	)
	if err := s.repo.CreateMovements(ctx, []entity.StockMovement{movement}); err != nil {
		return fmt.Errorf("record receipt movement: %w", err)
	}

	logger.Debug(ctx, "stock received",
		"stock_unit_id", stockUnitID,
		"quantity", quantity.Int64(),
	)
	return nil
}

// GetOnHand returns the current cached quantity.
func (s *Service) GetOnHand(ctx context.Context, stockUnitID id.ID) (types.Quantity, error) {
	return s.repo.GetOnHand(ctx, stockUnitID)
}

// GetMovementHistory returns movement history for a stock unit.
func (s *Service) GetMovementHistory(ctx context.Context, stockUnitID id.ID, filter MovementFilter) ([]entity.StockMovement, error) {
	return s.repo.GetMovementHistory(ctx, stockUnitID, filter)
}

// GetBalanceAtDate calculates quantity as of a date from movements.
func (s *Service) GetBalanceAtDate(ctx context.Context, stockUnitID id.ID, date time.Time) (types.Quantity, error) {
	return s.repo.GetBalanceAtDate(ctx, stockUnitID, date)
}
