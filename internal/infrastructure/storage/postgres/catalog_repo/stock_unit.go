package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"farmapos/internal/core/id"
	"farmapos/internal/domain/catalogs/stockunit"
	"farmapos/internal/infrastructure/storage/postgres"
)

const stockUnitTable = "cat_stock_units"

// StockUnitRepo implements stockunit.Repository.
type StockUnitRepo struct {
	*BaseCatalogRepo[*stockunit.StockUnit]
}

// NewStockUnitRepo creates a new stock unit repository.
func NewStockUnitRepo(txManager *postgres.TxManager) *StockUnitRepo {
	return &StockUnitRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[*stockunit.StockUnit](
			txManager,
			stockUnitTable,
			postgres.ExtractDBColumns[stockunit.StockUnit](),
			func() *stockunit.StockUnit { return &stockunit.StockUnit{} },
		),
	}
}

// GetByIDForUpdate retrieves a stock unit with a row lock.
func (r *StockUnitRepo) GetByIDForUpdate(ctx context.Context, unitID id.ID) (*stockunit.StockUnit, error) {
	return r.GetForUpdate(ctx, unitID)
}

// GetByBatch retrieves a unit by medicine name + batch number.
func (r *StockUnitRepo) GetByBatch(ctx context.Context, medicineName, batchNumber string) (*stockunit.StockUnit, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{
			"medicine_name": medicineName,
			"batch_number":  batchNumber,
		}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	return r.FindOne(ctx, q)
}

// List retrieves stock units with filtering.
func (r *StockUnitRepo) List(ctx context.Context, filter stockunit.ListFilter) ([]*stockunit.StockUnit, error) {
	q := r.baseSelect()

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"medicine_name": pattern},
			squirrel.ILike{"batch_number": pattern},
		})
	}
	if filter.ControlledOnly {
		q = q.Where(squirrel.NotEq{"schedule_class": ""})
	}
	if filter.ExpiringBefore != nil {
		q = q.Where(squirrel.Lt{"expiry_date": *filter.ExpiringBefore})
	}
	if filter.ExcludeZero {
		q = q.Where(squirrel.Gt{"on_hand": 0})
	}

	q = q.OrderBy("medicine_name", "expiry_date")

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

	var units []*stockunit.StockUnit
	if err := pgxscan.Select(ctx, r.Querier(ctx), &units, sql, args...); err != nil {
		return nil, fmt.Errorf("list stock units: %w", err)
	}
	return units, nil
}

// Ensure interface compliance.
var _ stockunit.Repository = (*StockUnitRepo)(nil)
