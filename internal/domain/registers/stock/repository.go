// Package stock provides the stock register: append-only quantity
// movements per stock unit plus the cached on-hand balance.
package stock

import (
	"context"
	"time"

	"farmapos/internal/core/entity"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
)

// Repository defines operations for the stock register.
// All mutating operations must be called within a transaction; the
// caller owns the transaction boundary.
type Repository interface {
	// CreateMovements batch inserts movement rows.
	CreateMovements(ctx context.Context, movements []entity.StockMovement) error

	// GetOnHandForUpdate returns the cached on-hand quantity with a row
	// lock on the stock unit. The lock is held until commit, which
	// serializes concurrent settlements over the same unit.
	GetOnHandForUpdate(ctx context.Context, stockUnitID id.ID) (types.Quantity, error)

	// AdjustOnHand applies a signed delta to the cached quantity.
	// The database constraint on_hand >= 0 is the last line of defense;
	// the service never relies on it for business validation.
	AdjustOnHand(ctx context.Context, stockUnitID id.ID, delta types.Quantity) error

	// GetOnHand returns the cached quantity without locking.
	GetOnHand(ctx context.Context, stockUnitID id.ID) (types.Quantity, error)

	// GetMovementHistory returns movement history for a stock unit.
	GetMovementHistory(ctx context.Context, stockUnitID id.ID, filter MovementFilter) ([]entity.StockMovement, error)

	// GetBalanceAtDate calculates quantity as of a date by summing movements.
	GetBalanceAtDate(ctx context.Context, stockUnitID id.ID, date time.Time) (types.Quantity, error)
}

// MovementFilter for filtering movement history.
type MovementFilter struct {
	RecordType *entity.RecordType
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}
