package settlement

import (
	"context"
	"time"

	"farmapos/internal/core/id"
)

// SaleFilter narrows sale queries for listings and reports.
type SaleFilter struct {
	CustomerID *id.ID
	Status     *SaleStatus
	Kind       *SaleKind
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// Repository persists settlement documents.
type Repository interface {
	// CreateSale inserts a sale with its lines.
	CreateSale(ctx context.Context, sale *Sale) error

	// GetSaleByID fetches a sale with lines loaded.
	GetSaleByID(ctx context.Context, saleID id.ID) (*Sale, error)

	// GetSaleByIDForUpdate locks the sale row; voids serialize here.
	GetSaleByIDForUpdate(ctx context.Context, saleID id.ID) (*Sale, error)

	// ListSales returns sales matching the filter, newest first.
	ListSales(ctx context.Context, filter SaleFilter) ([]*Sale, error)

	// MarkVoided writes the void fields with a version check.
	MarkVoided(ctx context.Context, sale *Sale) error

	// CreateReceipt inserts a goods receipt document.
	CreateReceipt(ctx context.Context, receipt *GoodsReceipt) error

	// GetReceiptByID fetches a goods receipt.
	GetReceiptByID(ctx context.Context, receiptID id.ID) (*GoodsReceipt, error)

	// ListReceipts returns receipts for a stock unit, newest first.
	ListReceipts(ctx context.Context, stockUnitID id.ID, limit, offset int) ([]*GoodsReceipt, error)
}
