package reports

import (
	"context"
	"time"

	"farmapos/internal/core/apperror"
)

// Service provides report generation operations.
type Service struct {
	repo Repository
}

// NewService creates a new reports service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetSalesSummary aggregates sales over a period.
func (s *Service) GetSalesSummary(ctx context.Context, filter SalesSummaryFilter) (*SalesSummaryReport, error) {
	if filter.FromDate.IsZero() || filter.ToDate.IsZero() {
		return nil, apperror.NewValidation("fromDate and toDate are required")
	}
	if filter.FromDate.After(filter.ToDate) {
		return nil, apperror.NewValidation("fromDate must be before toDate")
	}
	return s.repo.GetSalesSummary(ctx, filter)
}

// GetStockValuation values current stock at weighted average cost.
func (s *Service) GetStockValuation(ctx context.Context, filter StockValuationFilter) (*StockValuationReport, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.GetStockValuation(ctx, filter)
}

// GetStockTurnover shows per-batch movement over a period.
func (s *Service) GetStockTurnover(ctx context.Context, filter StockTurnoverFilter) (*StockTurnoverReport, error) {
	if filter.FromDate.IsZero() {
		return nil, apperror.NewValidation("fromDate is required")
	}
	if filter.ToDate.IsZero() {
		filter.ToDate = time.Now().UTC()
	}
	if filter.FromDate.After(filter.ToDate) {
		return nil, apperror.NewValidation("fromDate must be before toDate")
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.GetStockTurnover(ctx, filter)
}
