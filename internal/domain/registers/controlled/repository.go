package controlled

import (
	"context"
	"time"

	"farmapos/internal/core/id"
)

// EntryFilter narrows register queries for audit views and exports.
type EntryFilter struct {
	StockUnitID    *id.ID
	Type           *EntryType
	From           *time.Time
	To             *time.Time
	UnverifiedOnly bool
	Limit          int
	Offset         int
}

// Repository persists register entries. Rows are insert-only; the single
// UPDATE path is verification, which never touches quantities or balances.
type Repository interface {
	// GetChainHeadForUpdate locks the latest entry of a stock unit's chain
	// and returns it. Returns (nil, nil) for an empty chain. Concurrent
	// appends to the same chain serialize on this lock.
	GetChainHeadForUpdate(ctx context.Context, stockUnitID id.ID) (*RegisterEntry, error)

	// GetChainHead reads the latest entry without locking, for balance
	// queries outside a settlement transaction.
	GetChainHead(ctx context.Context, stockUnitID id.ID) (*RegisterEntry, error)

	// Insert appends a fully computed entry. EntryNo, balances and
	// timestamps must already be set by the service.
	Insert(ctx context.Context, entry *RegisterEntry) error

	// GetByID fetches one entry with its decoded context.
	GetByID(ctx context.Context, entryID id.ID) (*RegisterEntry, error)

	// GetByIDForUpdate locks one entry row for the verification write.
	GetByIDForUpdate(ctx context.Context, entryID id.ID) (*RegisterEntry, error)

	// SetVerified stamps the verifier; fails if the row changed underneath.
	SetVerified(ctx context.Context, entryID id.ID, verifierID string, verifiedAt time.Time) error

	// List returns entries matching the filter ordered by entry number.
	List(ctx context.Context, filter EntryFilter) ([]*RegisterEntry, error)

	// ListChain returns the full chain for one stock unit in entry order.
	ListChain(ctx context.Context, stockUnitID id.ID) ([]*RegisterEntry, error)
}
