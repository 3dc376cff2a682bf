// Package register_repo provides PostgreSQL implementations for the
// register repositories.
package register_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/entity"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
	"farmapos/internal/domain/registers/stock"
	"farmapos/internal/infrastructure/storage/postgres"
)

const (
	stockMovementsTable = "reg_stock_movements"
	stockUnitsTable     = "cat_stock_units"
)

// StockRepo implements stock.Repository. The cached on-hand quantity
// lives on the stock unit row, so the row lock taken by
// GetOnHandForUpdate covers both the balance and the catalog snapshot.
type StockRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateMovements batch inserts movements.
func (r *StockRepo) CreateMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	columns := []string{
		"line_id", "recorder_id", "recorder_type",
		"period", "record_type",
		"stock_unit_id", "quantity", "created_at",
	}

	// Fast path: COPY when inside a transaction.
	if tx := r.txManager.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, []any{
				m.LineID, m.RecorderID, m.RecorderType,
				m.Period, m.RecordType,
				m.StockUnitID, m.Quantity, m.CreatedAt,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, stockMovementsTable, columns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	// Fallback: non-transactional insert. Prefer calling within tx.
	q := r.builder.Insert(stockMovementsTable).Columns(columns...)
	for _, m := range movements {
		q = q.Values(
			m.LineID, m.RecorderID, m.RecorderType,
			m.Period, m.RecordType,
			m.StockUnitID, m.Quantity, m.CreatedAt,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}
	return nil
}

// GetOnHandForUpdate returns the cached quantity with a row lock.
func (r *StockRepo) GetOnHandForUpdate(ctx context.Context, stockUnitID id.ID) (types.Quantity, error) {
	sql := `
		SELECT on_hand
		FROM cat_stock_units
		WHERE id = $1
		FOR UPDATE
	`

	var onHand int64
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, stockUnitID).Scan(&onHand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NewNotFound("stock unit", stockUnitID)
		}
		return 0, fmt.Errorf("lock on-hand: %w", err)
	}
	return types.Quantity(onHand), nil
}

// AdjustOnHand applies a signed delta to the cached quantity.
func (r *StockRepo) AdjustOnHand(ctx context.Context, stockUnitID id.ID, delta types.Quantity) error {
	sql := `
		UPDATE cat_stock_units
		SET on_hand = on_hand + $2, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, stockUnitID, delta.Int64())
	if err != nil {
		return fmt.Errorf("adjust on-hand: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock unit", stockUnitID)
	}
	return nil
}

// GetOnHand returns the cached quantity without locking.
func (r *StockRepo) GetOnHand(ctx context.Context, stockUnitID id.ID) (types.Quantity, error) {
	q := r.builder.Select("on_hand").
		From(stockUnitsTable).
		Where(squirrel.Eq{"id": stockUnitID})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var onHand int64
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&onHand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NewNotFound("stock unit", stockUnitID)
		}
		return 0, fmt.Errorf("get on-hand: %w", err)
	}
	return types.Quantity(onHand), nil
}

// GetMovementHistory returns movement history for a stock unit.
func (r *StockRepo) GetMovementHistory(ctx context.Context, stockUnitID id.ID, filter stock.MovementFilter) ([]entity.StockMovement, error) {
	q := r.builder.Select(
		"line_id", "recorder_id", "recorder_type",
		"period", "record_type",
		"stock_unit_id", "quantity", "created_at",
	).From(stockMovementsTable).
		Where(squirrel.Eq{"stock_unit_id": stockUnitID})

	if filter.RecordType != nil {
		q = q.Where(squirrel.Eq{"record_type": *filter.RecordType})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"period": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"period": *filter.ToDate})
	}

	q = q.OrderBy("period DESC", "created_at DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.StockMovement
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return movements, nil
}

// GetBalanceAtDate calculates quantity as of a date by summing movements.
func (r *StockRepo) GetBalanceAtDate(ctx context.Context, stockUnitID id.ID, date time.Time) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(
			SUM(CASE WHEN record_type = 'receipt' THEN quantity ELSE -quantity END),
			0
		)
		FROM reg_stock_movements
		WHERE stock_unit_id = $1
		  AND period <= $2
	`

	var balance int64
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, stockUnitID, date).Scan(&balance)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("calculate balance at date: %w", err)
	}
	return types.Quantity(balance), nil
}

// Ensure interface compliance.
var _ stock.Repository = (*StockRepo)(nil)
