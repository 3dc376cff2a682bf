package stockunit

import (
	"context"
	"time"

	"farmapos/internal/core/id"
)

// ListFilter contains filtering options for stock unit queries.
type ListFilter struct {
	// Search matches medicine name or batch number (case-insensitive)
	Search string

	// ControlledOnly returns only scheduled substances
	ControlledOnly bool

	// ExpiringBefore returns batches expiring before the date
	ExpiringBefore *time.Time

	// IncludeDeleted includes soft-deleted units
	IncludeDeleted bool

	// ExcludeZero skips units with no stock on hand
	ExcludeZero bool

	Limit  int
	Offset int
}

// Repository defines persistence operations for the stock unit catalog.
// Quantity mutations are not exposed here - they belong to the stock
// register and always run inside a settlement transaction.
type Repository interface {
	// Create inserts a new stock unit.
	Create(ctx context.Context, unit *StockUnit) error

	// Update saves catalog fields with optimistic version check.
	Update(ctx context.Context, unit *StockUnit) error

	// GetByID retrieves a stock unit.
	GetByID(ctx context.Context, unitID id.ID) (*StockUnit, error)

	// GetByIDForUpdate retrieves a stock unit with a row lock.
	// Must be called within a transaction; the lock is held to commit.
	GetByIDForUpdate(ctx context.Context, unitID id.ID) (*StockUnit, error)

	// GetByBatch retrieves a unit by medicine name + batch number.
	GetByBatch(ctx context.Context, medicineName, batchNumber string) (*StockUnit, error)

	// List retrieves stock units with filtering.
	List(ctx context.Context, filter ListFilter) ([]*StockUnit, error)

	// SetDeletionMark soft-deletes or restores a unit.
	SetDeletionMark(ctx context.Context, unitID id.ID, mark bool) error
}
