package register_repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/domain/registers/controlled"
	"farmapos/internal/infrastructure/storage/postgres"
)

const controlledEntriesTable = "reg_controlled_entries"

var controlledEntryColumns = []string{
	"id", "stock_unit_id", "entry_no", "entry_type",
	"quantity_in", "quantity_out",
	"balance_before", "balance_after",
	"context", "recorded_by", "verified_by", "verified_at", "created_at",
}

// controlledEntryRow is the scan target; the typed context is stored
// as JSONB and decoded after the scan.
type controlledEntryRow struct {
	controlled.RegisterEntry
	ContextJSON []byte `db:"context"`
}

func (row *controlledEntryRow) toEntry() (*controlled.RegisterEntry, error) {
	entry := row.RegisterEntry
	entryCtx, err := controlled.DecodeContext(entry.Type, row.ContextJSON)
	if err != nil {
		return nil, err
	}
	entry.Context = entryCtx
	return &entry, nil
}

// ControlledRepo implements controlled.Repository.
type ControlledRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewControlledRepo creates a new controlled register repository.
func NewControlledRepo(txManager *postgres.TxManager) *ControlledRepo {
	return &ControlledRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ControlledRepo) getChainHead(ctx context.Context, stockUnitID id.ID, lock bool) (*controlled.RegisterEntry, error) {
	sql := `
		SELECT id, stock_unit_id, entry_no, entry_type,
		       quantity_in, quantity_out,
		       balance_before, balance_after,
		       context, recorded_by, verified_by, verified_at, created_at
		FROM reg_controlled_entries
		WHERE stock_unit_id = $1
		ORDER BY entry_no DESC
		LIMIT 1
	`
	if lock {
		sql += " FOR UPDATE"
	}

	var row controlledEntryRow
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, stockUnitID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chain head: %w", err)
	}
	return row.toEntry()
}

// GetChainHeadForUpdate locks and returns the latest chain entry.
func (r *ControlledRepo) GetChainHeadForUpdate(ctx context.Context, stockUnitID id.ID) (*controlled.RegisterEntry, error) {
	return r.getChainHead(ctx, stockUnitID, true)
}

// GetChainHead returns the latest chain entry without locking.
func (r *ControlledRepo) GetChainHead(ctx context.Context, stockUnitID id.ID) (*controlled.RegisterEntry, error) {
	return r.getChainHead(ctx, stockUnitID, false)
}

// Insert appends a fully computed entry.
func (r *ControlledRepo) Insert(ctx context.Context, entry *controlled.RegisterEntry) error {
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("marshal entry context: %w", err)
	}

	q := r.builder.Insert(controlledEntriesTable).
		Columns(controlledEntryColumns...).
		Values(
			entry.ID, entry.StockUnitID, entry.EntryNo, entry.Type,
			entry.QuantityIn, entry.QuantityOut,
			entry.BalanceBefore, entry.BalanceAfter,
			contextJSON, entry.RecordedBy, entry.VerifiedBy, entry.VerifiedAt, entry.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert register entry: %w", err)
	}
	return nil
}

func (r *ControlledRepo) getByID(ctx context.Context, entryID id.ID, lock bool) (*controlled.RegisterEntry, error) {
	sql := `
		SELECT id, stock_unit_id, entry_no, entry_type,
		       quantity_in, quantity_out,
		       balance_before, balance_after,
		       context, recorded_by, verified_by, verified_at, created_at
		FROM reg_controlled_entries
		WHERE id = $1
	`
	if lock {
		sql += " FOR UPDATE"
	}

	var row controlledEntryRow
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, entryID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get register entry: %w", err)
	}
	return row.toEntry()
}

// GetByID fetches one entry.
func (r *ControlledRepo) GetByID(ctx context.Context, entryID id.ID) (*controlled.RegisterEntry, error) {
	return r.getByID(ctx, entryID, false)
}

// GetByIDForUpdate locks one entry row for the verification write.
func (r *ControlledRepo) GetByIDForUpdate(ctx context.Context, entryID id.ID) (*controlled.RegisterEntry, error) {
	return r.getByID(ctx, entryID, true)
}

// SetVerified stamps the verifier onto an unverified entry.
func (r *ControlledRepo) SetVerified(ctx context.Context, entryID id.ID, verifierID string, verifiedAt time.Time) error {
	q := r.builder.Update(controlledEntriesTable).
		Set("verified_by", verifierID).
		Set("verified_at", verifiedAt).
		Where(squirrel.Eq{"id": entryID}).
		Where("verified_by IS NULL")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewAlreadyVerified(entryID.String())
	}
	return nil
}

// List returns entries matching the filter ordered by entry number.
func (r *ControlledRepo) List(ctx context.Context, filter controlled.EntryFilter) ([]*controlled.RegisterEntry, error) {
	q := r.builder.Select(controlledEntryColumns...).
		From(controlledEntriesTable)

	if filter.StockUnitID != nil {
		q = q.Where(squirrel.Eq{"stock_unit_id": *filter.StockUnitID})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"entry_type": *filter.Type})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.To})
	}
	if filter.UnverifiedOnly {
		q = q.Where("verified_by IS NULL")
	}

	q = q.OrderBy("stock_unit_id", "entry_no")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	return r.selectEntries(ctx, q)
}

// ListChain returns the full chain for one stock unit in entry order.
func (r *ControlledRepo) ListChain(ctx context.Context, stockUnitID id.ID) ([]*controlled.RegisterEntry, error) {
	q := r.builder.Select(controlledEntryColumns...).
		From(controlledEntriesTable).
		Where(squirrel.Eq{"stock_unit_id": stockUnitID}).
		OrderBy("entry_no")

	return r.selectEntries(ctx, q)
}

func (r *ControlledRepo) selectEntries(ctx context.Context, q squirrel.SelectBuilder) ([]*controlled.RegisterEntry, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []controlledEntryRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select register entries: %w", err)
	}

	entries := make([]*controlled.RegisterEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Ensure interface compliance.
var _ controlled.Repository = (*ControlledRepo)(nil)
