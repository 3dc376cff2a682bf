package reports

import (
	"context"
)

// Repository defines report data access.
type Repository interface {
	GetSalesSummary(ctx context.Context, filter SalesSummaryFilter) (*SalesSummaryReport, error)
	GetStockValuation(ctx context.Context, filter StockValuationFilter) (*StockValuationReport, error)
	GetStockTurnover(ctx context.Context, filter StockTurnoverFilter) (*StockTurnoverReport, error)
}
