// Package ledger_repo provides PostgreSQL implementations for the
// customer sub-ledger repositories.
package ledger_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"farmapos/internal/core/id"
	"farmapos/internal/domain/ledgers/customer"
	"farmapos/internal/infrastructure/storage/postgres"
)

const (
	loyaltyTable = "ledger_loyalty_transactions"
	creditTable  = "ledger_credit_transactions"
)

var loyaltyColumns = []string{
	"id", "customer_id", "delta", "balance_after", "reason",
	"recorder_id", "recorder_type", "created_at",
}

var creditColumns = []string{
	"id", "customer_id", "delta", "balance_after", "reason",
	"recorder_id", "recorder_type", "created_at",
}

// CustomerLedgerRepo implements customer.Repository for the sub-ledgers.
type CustomerLedgerRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewCustomerLedgerRepo creates a new customer ledger repository.
func NewCustomerLedgerRepo(txManager *postgres.TxManager) *CustomerLedgerRepo {
	return &CustomerLedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// InsertLoyalty appends one loyalty transaction.
func (r *CustomerLedgerRepo) InsertLoyalty(ctx context.Context, tx *customer.LoyaltyTransaction) error {
	q := r.builder.Insert(loyaltyTable).
		Columns(loyaltyColumns...).
		Values(
			tx.ID, tx.CustomerID, tx.Delta, tx.BalanceAfter, tx.Reason,
			tx.RecorderID, tx.RecorderType, tx.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert loyalty transaction: %w", err)
	}
	return nil
}

// InsertCredit appends one credit transaction.
func (r *CustomerLedgerRepo) InsertCredit(ctx context.Context, tx *customer.CreditTransaction) error {
	q := r.builder.Insert(creditTable).
		Columns(creditColumns...).
		Values(
			tx.ID, tx.CustomerID, tx.Delta, tx.BalanceAfter, tx.Reason,
			tx.RecorderID, tx.RecorderType, tx.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert credit transaction: %w", err)
	}
	return nil
}

// ListLoyalty returns a customer's loyalty history, newest first.
func (r *CustomerLedgerRepo) ListLoyalty(ctx context.Context, customerID id.ID, filter customer.HistoryFilter) ([]*customer.LoyaltyTransaction, error) {
	q := r.history(loyaltyTable, loyaltyColumns, customerID, filter)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var txs []*customer.LoyaltyTransaction
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &txs, sql, args...); err != nil {
		return nil, fmt.Errorf("list loyalty: %w", err)
	}
	return txs, nil
}

// ListCredit returns a customer's credit history, newest first.
func (r *CustomerLedgerRepo) ListCredit(ctx context.Context, customerID id.ID, filter customer.HistoryFilter) ([]*customer.CreditTransaction, error) {
	q := r.history(creditTable, creditColumns, customerID, filter)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var txs []*customer.CreditTransaction
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &txs, sql, args...); err != nil {
		return nil, fmt.Errorf("list credit: %w", err)
	}
	return txs, nil
}

func (r *CustomerLedgerRepo) history(table string, cols []string, customerID id.ID, filter customer.HistoryFilter) squirrel.SelectBuilder {
	q := r.builder.Select(cols...).
		From(table).
		Where(squirrel.Eq{"customer_id": customerID}).
		OrderBy("created_at DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

// ListLoyaltyByRecorder returns loyalty rows produced by one document.
func (r *CustomerLedgerRepo) ListLoyaltyByRecorder(ctx context.Context, recorderID id.ID) ([]*customer.LoyaltyTransaction, error) {
	q := r.builder.Select(loyaltyColumns...).
		From(loyaltyTable).
		Where(squirrel.Eq{"recorder_id": recorderID}).
		OrderBy("created_at")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var txs []*customer.LoyaltyTransaction
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &txs, sql, args...); err != nil {
		return nil, fmt.Errorf("list loyalty by recorder: %w", err)
	}
	return txs, nil
}

// ListCreditByRecorder returns credit rows produced by one document.
func (r *CustomerLedgerRepo) ListCreditByRecorder(ctx context.Context, recorderID id.ID) ([]*customer.CreditTransaction, error) {
	q := r.builder.Select(creditColumns...).
		From(creditTable).
		Where(squirrel.Eq{"recorder_id": recorderID}).
		OrderBy("created_at")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var txs []*customer.CreditTransaction
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &txs, sql, args...); err != nil {
		return nil, fmt.Errorf("list credit by recorder: %w", err)
	}
	return txs, nil
}

// SumLoyalty sums all loyalty deltas for a customer.
func (r *CustomerLedgerRepo) SumLoyalty(ctx context.Context, customerID id.ID) (int64, error) {
	return r.sum(ctx, loyaltyTable, customerID)
}

// SumCredit sums all credit deltas for a customer.
func (r *CustomerLedgerRepo) SumCredit(ctx context.Context, customerID id.ID) (int64, error) {
	return r.sum(ctx, creditTable, customerID)
}

func (r *CustomerLedgerRepo) sum(ctx context.Context, table string, customerID id.ID) (int64, error) {
	sql := fmt.Sprintf("SELECT COALESCE(SUM(delta), 0) FROM %s WHERE customer_id = $1", table)

	var total int64
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, customerID).Scan(&total)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("sum %s: %w", table, err)
	}
	return total, nil
}

// Ensure interface compliance.
var _ customer.Repository = (*CustomerLedgerRepo)(nil)
