// Package report_repo provides PostgreSQL implementations for reports.
// Reports read committed data only; they take no locks and run outside
// any settlement transaction.
package report_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
	"farmapos/internal/domain/reports"
	"farmapos/internal/infrastructure/storage/postgres"
)

// ReportRepo implements reports.Repository.
type ReportRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewReportRepo creates a new report repository.
func NewReportRepo(txManager *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetSalesSummary aggregates completed sales over the period, with a
// per-payment-method breakdown. Voided sales are counted but excluded
// from the money totals.
func (r *ReportRepo) GetSalesSummary(ctx context.Context, filter reports.SalesSummaryFilter) (*reports.SalesSummaryReport, error) {
	querier := r.txManager.GetQuerier(ctx)

	report := &reports.SalesSummaryReport{
		FromDate: filter.FromDate,
		ToDate:   filter.ToDate,
	}

	totalsSQL := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'COMPLETED')                 AS sale_count,
			COUNT(*) FILTER (WHERE status = 'VOIDED')                    AS voided_count,
			COALESCE(SUM(subtotal)        FILTER (WHERE status = 'COMPLETED'), 0) AS subtotal,
			COALESCE(SUM(discount)        FILTER (WHERE status = 'COMPLETED'), 0) AS discount,
			COALESCE(SUM(rule_discount)   FILTER (WHERE status = 'COMPLETED'), 0) AS rule_discount,
			COALESCE(SUM(points_discount) FILTER (WHERE status = 'COMPLETED'), 0) AS point_discount,
			COALESCE(SUM(total)           FILTER (WHERE status = 'COMPLETED'), 0) AS total,
			COALESCE(SUM(points_earned)   FILTER (WHERE status = 'COMPLETED'), 0) AS points_earned
		FROM doc_sales
		WHERE date >= $1 AND date <= $2
	`
	args := []any{filter.FromDate, filter.ToDate}
	if filter.CustomerID != nil {
		totalsSQL += " AND customer_id = $3"
		args = append(args, *filter.CustomerID)
	}

	err := querier.QueryRow(ctx, totalsSQL, args...).Scan(
		&report.SaleCount, &report.VoidedCount,
		&report.Subtotal, &report.Discount, &report.RuleDiscount, &report.PointDiscount,
		&report.Total, &report.PointsEarned,
	)
	if err != nil {
		return nil, fmt.Errorf("sales totals: %w", err)
	}

	methodSQL := `
		SELECT payment_method, COUNT(*) AS count, COALESCE(SUM(total), 0) AS total
		FROM doc_sales
		WHERE date >= $1 AND date <= $2 AND status = 'COMPLETED'
	`
	if filter.CustomerID != nil {
		methodSQL += " AND customer_id = $3"
	}
	methodSQL += " GROUP BY payment_method ORDER BY total DESC"

	rows, err := querier.Query(ctx, methodSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("payment method breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m reports.PaymentMethodSummary
		if err := rows.Scan(&m.PaymentMethod, &m.Count, &m.Total); err != nil {
			return nil, fmt.Errorf("scan payment method row: %w", err)
		}
		report.ByPaymentMethod = append(report.ByPaymentMethod, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment methods: %w", err)
	}

	return report, nil
}

type valuationRow struct {
	StockUnitID   id.ID     `db:"stock_unit_id"`
	MedicineName  string    `db:"medicine_name"`
	BatchNumber   string    `db:"batch_number"`
	ExpiryDate    time.Time `db:"expiry_date"`
	OnHand        int64     `db:"on_hand"`
	UnitCost      int64     `db:"unit_cost"`
	ScheduleClass string    `db:"schedule_class"`
}

// GetStockValuation values on-hand stock at the weighted average cost.
// Line totals use decimal math so a large on-hand quantity cannot
// silently overflow.
func (r *ReportRepo) GetStockValuation(ctx context.Context, filter reports.StockValuationFilter) (*reports.StockValuationReport, error) {
	q := r.builder.Select(
		"id AS stock_unit_id", "medicine_name", "batch_number",
		"expiry_date", "on_hand", "unit_cost", "schedule_class",
	).
		From("cat_stock_units").
		Where(squirrel.Eq{"deletion_mark": false}).
		OrderBy("medicine_name", "expiry_date")

	if filter.ExcludeZero {
		q = q.Where(squirrel.Gt{"on_hand": 0})
	}
	if filter.ControlledOnly {
		q = q.Where(squirrel.NotEq{"schedule_class": ""})
	}
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

	var rows []valuationRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("stock valuation: %w", err)
	}

	report := &reports.StockValuationReport{
		AsOfDate: time.Now().UTC(),
		Items:    make([]reports.StockValuationItem, 0, len(rows)),
	}

	totalCost := decimal.Zero
	for _, row := range rows {
		lineCost := decimal.NewFromInt(row.OnHand).Mul(decimal.NewFromInt(row.UnitCost))
		report.Items = append(report.Items, reports.StockValuationItem{
			StockUnitID:  row.StockUnitID,
			MedicineName: row.MedicineName,
			BatchNumber:  row.BatchNumber,
			ExpiryDate:   row.ExpiryDate,
			OnHand:       types.Quantity(row.OnHand),
			UnitCost:     types.MinorUnits(row.UnitCost),
			TotalCost:    types.MinorUnits(lineCost.IntPart()),
			Controlled:   row.ScheduleClass != "",
		})
		report.TotalQuantity += types.Quantity(row.OnHand)
		totalCost = totalCost.Add(lineCost)
	}
	report.TotalItems = len(report.Items)
	report.TotalCost = types.MinorUnits(totalCost.IntPart())

	return report, nil
}

type turnoverRow struct {
	StockUnitID  id.ID  `db:"stock_unit_id"`
	MedicineName string `db:"medicine_name"`
	BatchNumber  string `db:"batch_number"`
	Opening      int64  `db:"opening"`
	Receipt      int64  `db:"receipt"`
	Expense      int64  `db:"expense"`
}

// GetStockTurnover derives opening, receipt, expense and closing per
// batch from the movement rows.
func (r *ReportRepo) GetStockTurnover(ctx context.Context, filter reports.StockTurnoverFilter) (*reports.StockTurnoverReport, error) {
	sql := `
		SELECT
			u.id AS stock_unit_id,
			u.medicine_name,
			u.batch_number,
			COALESCE(SUM(
				CASE WHEN m.period < $1
				     THEN CASE WHEN m.record_type = 'receipt' THEN m.quantity ELSE -m.quantity END
				     ELSE 0 END), 0) AS opening,
			COALESCE(SUM(
				CASE WHEN m.period >= $1 AND m.period <= $2 AND m.record_type = 'receipt'
				     THEN m.quantity ELSE 0 END), 0) AS receipt,
			COALESCE(SUM(
				CASE WHEN m.period >= $1 AND m.period <= $2 AND m.record_type = 'expense'
				     THEN m.quantity ELSE 0 END), 0) AS expense
		FROM cat_stock_units u
		LEFT JOIN reg_stock_movements m ON m.stock_unit_id = u.id AND m.period <= $2
		WHERE u.deletion_mark = false
	`
	args := []any{filter.FromDate, filter.ToDate}

	if len(filter.StockUnitIDs) > 0 {
		sql += " AND u.id = ANY($3)"
		args = append(args, filter.StockUnitIDs)
	}

	sql += " GROUP BY u.id, u.medicine_name, u.batch_number"
	if !filter.IncludeZero {
		sql += ` HAVING COALESCE(SUM(
			CASE WHEN m.period >= $1 AND m.period <= $2 THEN m.quantity ELSE 0 END), 0) > 0`
	}
	sql += " ORDER BY u.medicine_name, u.batch_number"
	sql += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)

	var rows []turnoverRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("stock turnover: %w", err)
	}

	report := &reports.StockTurnoverReport{
		FromDate: filter.FromDate,
		ToDate:   filter.ToDate,
		Items:    make([]reports.StockTurnoverItem, 0, len(rows)),
	}

	for _, row := range rows {
		item := reports.StockTurnoverItem{
			StockUnitID:    row.StockUnitID,
			MedicineName:   row.MedicineName,
			BatchNumber:    row.BatchNumber,
			OpeningBalance: types.Quantity(row.Opening),
			Receipt:        types.Quantity(row.Receipt),
			Expense:        types.Quantity(row.Expense),
		}
		item.ClosingBalance = item.OpeningBalance + item.Receipt - item.Expense
		report.Items = append(report.Items, item)
		report.TotalReceipt += item.Receipt
		report.TotalExpense += item.Expense
	}
	report.TotalItems = len(report.Items)

	return report, nil
}

// Ensure interface compliance.
var _ reports.Repository = (*ReportRepo)(nil)
