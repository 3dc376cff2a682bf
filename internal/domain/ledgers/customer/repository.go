package customer

import (
	"context"

	"farmapos/internal/core/id"
)

// HistoryFilter narrows sub-ledger history queries.
type HistoryFilter struct {
	Limit  int
	Offset int
}

// Repository persists the immutable sub-ledger rows.
type Repository interface {
	// InsertLoyalty appends one loyalty transaction.
	InsertLoyalty(ctx context.Context, tx *LoyaltyTransaction) error

	// InsertCredit appends one credit transaction.
	InsertCredit(ctx context.Context, tx *CreditTransaction) error

	// ListLoyalty returns a customer's loyalty history, newest first.
	ListLoyalty(ctx context.Context, customerID id.ID, filter HistoryFilter) ([]*LoyaltyTransaction, error)

	// ListCredit returns a customer's credit history, newest first.
	ListCredit(ctx context.Context, customerID id.ID, filter HistoryFilter) ([]*CreditTransaction, error)

	// ListLoyaltyByRecorder returns loyalty rows produced by one document.
	ListLoyaltyByRecorder(ctx context.Context, recorderID id.ID) ([]*LoyaltyTransaction, error)

	// ListCreditByRecorder returns credit rows produced by one document.
	ListCreditByRecorder(ctx context.Context, recorderID id.ID) ([]*CreditTransaction, error)

	// SumLoyalty sums all loyalty deltas for a customer.
	SumLoyalty(ctx context.Context, customerID id.ID) (int64, error)

	// SumCredit sums all credit deltas for a customer.
	SumCredit(ctx context.Context, customerID id.ID) (int64, error)
}
