package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/domain/prescriptions"
	"farmapos/internal/infrastructure/storage/postgres"
)

const (
	prescriptionsTable     = "doc_prescriptions"
	prescriptionItemsTable = "doc_prescription_items"
	dispensingEventsTable  = "doc_dispensing_events"
	dispensingLinesTable   = "doc_dispensing_lines"
)

var prescriptionColumns = []string{
	"id", "deletion_mark", "version",
	"created_at", "updated_at", "created_by", "updated_by",
	"number", "patient_name", "prescriber_name", "prescriber_ref",
	"issued_date", "expiry_date", "status",
}

var prescriptionItemColumns = []string{
	"id", "prescription_id", "stock_unit_id",
	"quantity_prescribed", "quantity_dispensed", "substitution_allowed",
}

// PrescriptionRepo implements prescriptions.Repository.
type PrescriptionRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewPrescriptionRepo creates a new prescription repository.
func NewPrescriptionRepo(txManager *postgres.TxManager) *PrescriptionRepo {
	return &PrescriptionRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a prescription with its items.
func (r *PrescriptionRepo) Create(ctx context.Context, p *prescriptions.Prescription) error {
	data := postgres.StructToMap(p)
	filtered := make(map[string]any, len(prescriptionColumns))
	for _, col := range prescriptionColumns {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder.Insert(prescriptionsTable).SetMap(filtered)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}

	iq := r.builder.Insert(prescriptionItemsTable).Columns(prescriptionItemColumns...)
	for _, item := range p.Items {
		iq = iq.Values(
			item.ID, item.PrescriptionID, item.StockUnitID,
			item.QuantityPrescribed, item.QuantityDispensed, item.SubstitutionAllowed,
		)
	}
	sql, args, err = iq.ToSql()
	if err != nil {
		return fmt.Errorf("build insert items: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert prescription items: %w", err)
	}
	return nil
}

func (r *PrescriptionRepo) get(ctx context.Context, where squirrel.Eq, lock bool) (*prescriptions.Prescription, error) {
	q := r.builder.Select(prescriptionColumns...).
		From(prescriptionsTable).
		Where(where)
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	p := &prescriptions.Prescription{}
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get prescription: %w", err)
	}

	if err := r.loadItems(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PrescriptionRepo) loadItems(ctx context.Context, p *prescriptions.Prescription) error {
	q := r.builder.Select(prescriptionItemColumns...).
		From(prescriptionItemsTable).
		Where(squirrel.Eq{"prescription_id": p.ID}).
		OrderBy("id")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build items query: %w", err)
	}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &p.Items, sql, args...); err != nil {
		return fmt.Errorf("load prescription items: %w", err)
	}
	return nil
}

// GetByID fetches a prescription with items loaded.
func (r *PrescriptionRepo) GetByID(ctx context.Context, prescriptionID id.ID) (*prescriptions.Prescription, error) {
	return r.get(ctx, squirrel.Eq{"id": prescriptionID}, false)
}

// GetByIDForUpdate fetches with a row lock on the prescription.
func (r *PrescriptionRepo) GetByIDForUpdate(ctx context.Context, prescriptionID id.ID) (*prescriptions.Prescription, error) {
	return r.get(ctx, squirrel.Eq{"id": prescriptionID}, true)
}

// GetByNumber fetches by document number.
func (r *PrescriptionRepo) GetByNumber(ctx context.Context, number string) (*prescriptions.Prescription, error) {
	return r.get(ctx, squirrel.Eq{"number": number}, false)
}

// List returns prescriptions matching the filter, items loaded.
func (r *PrescriptionRepo) List(ctx context.Context, filter prescriptions.ListFilter) ([]*prescriptions.Prescription, error) {
	q := r.builder.Select(prescriptionColumns...).
		From(prescriptionsTable)

	if filter.PatientName != "" {
		q = q.Where(squirrel.ILike{"patient_name": "%" + filter.PatientName + "%"})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"issued_date": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"issued_date": *filter.To})
	}

	q = q.OrderBy("issued_date DESC", "created_at DESC")

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

	var list []*prescriptions.Prescription
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &list, sql, args...); err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	for _, p := range list {
		if err := r.loadItems(ctx, p); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// UpdateStatus writes a recomputed status with a version bump.
func (r *PrescriptionRepo) UpdateStatus(ctx context.Context, prescriptionID id.ID, status prescriptions.Status, version int) error {
	q := r.builder.Update(prescriptionsTable).
		Set("status", status).
		Set("updated_at", squirrel.Expr("now()")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": prescriptionID}).
		Where(squirrel.Eq{"version": version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(prescriptionsTable, prescriptionID.String())
	}
	return nil
}

// AddDispensedQuantity increments one item's dispensed counter.
func (r *PrescriptionRepo) AddDispensedQuantity(ctx context.Context, itemID id.ID, delta int64) error {
	sql := `
		UPDATE doc_prescription_items
		SET quantity_dispensed = quantity_dispensed + $2
		WHERE id = $1
	`

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, itemID, delta)
	if err != nil {
		return fmt.Errorf("add dispensed quantity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("prescription item", itemID)
	}
	return nil
}

var dispensingEventColumns = []string{
	"id", "prescription_id", "sale_id", "dispensed_by", "dispensed_at",
	"notes", "counseling_provided",
}

var dispensingLineColumns = []string{
	"id", "event_id", "item_id", "stock_unit_id", "quantity", "is_substitution",
}

// InsertDispensingEvent records one dispensing with its lines.
func (r *PrescriptionRepo) InsertDispensingEvent(ctx context.Context, event *prescriptions.DispensingEvent) error {
	q := r.builder.Insert(dispensingEventsTable).
		Columns(dispensingEventColumns...).
		Values(event.ID, event.PrescriptionID, event.SaleID, event.DispensedBy, event.DispensedAt,
			event.Notes, event.CounselingProvided)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert dispensing event: %w", err)
	}

	lq := r.builder.Insert(dispensingLinesTable).Columns(dispensingLineColumns...)
	for _, line := range event.Lines {
		lq = lq.Values(line.ID, line.EventID, line.ItemID, line.StockUnitID, line.Quantity, line.IsSubstitution)
	}
	sql, args, err = lq.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert dispensing lines: %w", err)
	}
	return nil
}

func (r *PrescriptionRepo) loadEventLines(ctx context.Context, event *prescriptions.DispensingEvent) error {
	q := r.builder.Select(dispensingLineColumns...).
		From(dispensingLinesTable).
		Where(squirrel.Eq{"event_id": event.ID}).
		OrderBy("id")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines query: %w", err)
	}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &event.Lines, sql, args...); err != nil {
		return fmt.Errorf("load dispensing lines: %w", err)
	}
	return nil
}

// GetDispensingEventBySale returns the event a settlement produced.
func (r *PrescriptionRepo) GetDispensingEventBySale(ctx context.Context, saleID id.ID) (*prescriptions.DispensingEvent, error) {
	q := r.builder.Select(dispensingEventColumns...).
		From(dispensingEventsTable).
		Where(squirrel.Eq{"sale_id": saleID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	event := &prescriptions.DispensingEvent{}
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), event, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get dispensing event: %w", err)
	}
	if err := r.loadEventLines(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// ListDispensingEvents returns a prescription's events, oldest first.
func (r *PrescriptionRepo) ListDispensingEvents(ctx context.Context, prescriptionID id.ID) ([]*prescriptions.DispensingEvent, error) {
	q := r.builder.Select(dispensingEventColumns...).
		From(dispensingEventsTable).
		Where(squirrel.Eq{"prescription_id": prescriptionID}).
		OrderBy("dispensed_at")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var events []*prescriptions.DispensingEvent
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &events, sql, args...); err != nil {
		return nil, fmt.Errorf("list dispensing events: %w", err)
	}
	for _, event := range events {
		if err := r.loadEventLines(ctx, event); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// Ensure interface compliance.
var _ prescriptions.Repository = (*PrescriptionRepo)(nil)
