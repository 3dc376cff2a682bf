// Package document_repo provides PostgreSQL implementations for the
// settlement document repositories. Settlement documents are immutable
// once written; the single update path is the void stamp.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/domain/settlement"
	"farmapos/internal/infrastructure/storage/postgres"
)

const (
	salesTable     = "doc_sales"
	saleLinesTable = "doc_sale_lines"
	receiptsTable  = "doc_goods_receipts"
)

var saleColumns = []string{
	"id", "deletion_mark", "version",
	"created_at", "updated_at", "created_by", "updated_by",
	"number", "date", "operator_id", "comment",
	"kind", "status", "customer_id", "patient_name", "prescription_id",
	"payment_method", "subtotal", "discount", "rule_discount", "rule_name",
	"points_redeemed", "points_discount", "total", "points_earned",
	"voided_at", "voided_by", "void_reason",
}

var saleLineColumns = []string{
	"id", "sale_id", "stock_unit_id", "medicine_name", "batch_number",
	"quantity", "unit_price", "line_total", "controlled",
}

// SaleRepo implements settlement.Repository.
type SaleRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewSaleRepo creates a new settlement document repository.
func NewSaleRepo(txManager *postgres.TxManager) *SaleRepo {
	return &SaleRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateSale inserts a sale with its lines.
func (r *SaleRepo) CreateSale(ctx context.Context, sale *settlement.Sale) error {
	data := postgres.StructToMap(sale)
	filtered := make(map[string]any, len(saleColumns))
	for _, col := range saleColumns {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder.Insert(salesTable).SetMap(filtered)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	if len(sale.Lines) == 0 {
		return nil
	}
	lq := r.builder.Insert(saleLinesTable).Columns(saleLineColumns...)
	for _, line := range sale.Lines {
		lq = lq.Values(
			line.ID, line.SaleID, line.StockUnitID, line.MedicineName, line.BatchNumber,
			line.Quantity, line.UnitPrice, line.LineTotal, line.Controlled,
		)
	}
	sql, args, err = lq.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert sale lines: %w", err)
	}
	return nil
}

func (r *SaleRepo) getSale(ctx context.Context, saleID id.ID, lock bool) (*settlement.Sale, error) {
	q := r.builder.Select(saleColumns...).
		From(salesTable).
		Where(squirrel.Eq{"id": saleID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	sale := &settlement.Sale{}
	if err := pgxscan.Get(ctx, querier, sale, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	if err := r.loadLines(ctx, sale); err != nil {
		return nil, err
	}
	return sale, nil
}

func (r *SaleRepo) loadLines(ctx context.Context, sale *settlement.Sale) error {
	q := r.builder.Select(saleLineColumns...).
		From(saleLinesTable).
		Where(squirrel.Eq{"sale_id": sale.ID}).
		OrderBy("medicine_name")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines query: %w", err)
	}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &sale.Lines, sql, args...); err != nil {
		return fmt.Errorf("load sale lines: %w", err)
	}
	return nil
}

// GetSaleByID fetches a sale with lines loaded.
func (r *SaleRepo) GetSaleByID(ctx context.Context, saleID id.ID) (*settlement.Sale, error) {
	return r.getSale(ctx, saleID, false)
}

// GetSaleByIDForUpdate locks the sale row; voids serialize here.
func (r *SaleRepo) GetSaleByIDForUpdate(ctx context.Context, saleID id.ID) (*settlement.Sale, error) {
	return r.getSale(ctx, saleID, true)
}

// ListSales returns sales matching the filter, newest first.
func (r *SaleRepo) ListSales(ctx context.Context, filter settlement.SaleFilter) ([]*settlement.Sale, error) {
	q := r.builder.Select(saleColumns...).
		From(salesTable)

	if filter.CustomerID != nil {
		q = q.Where(squirrel.Eq{"customer_id": *filter.CustomerID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": *filter.Kind})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.To})
	}

	q = q.OrderBy("date DESC", "created_at DESC")

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

	var sales []*settlement.Sale
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &sales, sql, args...); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	for _, sale := range sales {
		if err := r.loadLines(ctx, sale); err != nil {
			return nil, err
		}
	}
	return sales, nil
}

// MarkVoided writes the void fields with a version check.
func (r *SaleRepo) MarkVoided(ctx context.Context, sale *settlement.Sale) error {
	q := r.builder.Update(salesTable).
		Set("status", sale.Status).
		Set("voided_at", sale.VoidedAt).
		Set("voided_by", sale.VoidedBy).
		Set("void_reason", sale.VoidReason).
		Set("updated_at", squirrel.Expr("now()")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": sale.ID}).
		Where(squirrel.Eq{"version": sale.Version}).
		Where(squirrel.Eq{"status": settlement.SaleCompleted})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("mark voided: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(salesTable, sale.ID.String())
	}
	return nil
}

var receiptColumns = []string{
	"id", "deletion_mark", "version",
	"created_at", "updated_at", "created_by", "updated_by",
	"number", "date", "operator_id", "comment",
	"stock_unit_id", "quantity", "unit_cost", "supplier_name", "invoice_ref",
}

// CreateReceipt inserts a goods receipt document.
func (r *SaleRepo) CreateReceipt(ctx context.Context, receipt *settlement.GoodsReceipt) error {
	data := postgres.StructToMap(receipt)
	filtered := make(map[string]any, len(receiptColumns))
	for _, col := range receiptColumns {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder.Insert(receiptsTable).SetMap(filtered)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert goods receipt: %w", err)
	}
	return nil
}

// GetReceiptByID fetches a goods receipt.
func (r *SaleRepo) GetReceiptByID(ctx context.Context, receiptID id.ID) (*settlement.GoodsReceipt, error) {
	q := r.builder.Select(receiptColumns...).
		From(receiptsTable).
		Where(squirrel.Eq{"id": receiptID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	receipt := &settlement.GoodsReceipt{}
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), receipt, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get goods receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns receipts for a stock unit, newest first.
func (r *SaleRepo) ListReceipts(ctx context.Context, stockUnitID id.ID, limit, offset int) ([]*settlement.GoodsReceipt, error) {
	q := r.builder.Select(receiptColumns...).
		From(receiptsTable).
		Where(squirrel.Eq{"stock_unit_id": stockUnitID}).
		OrderBy("date DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var receipts []*settlement.GoodsReceipt
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &receipts, sql, args...); err != nil {
		return nil, fmt.Errorf("list goods receipts: %w", err)
	}
	return receipts, nil
}

// Ensure interface compliance.
var _ settlement.Repository = (*SaleRepo)(nil)
