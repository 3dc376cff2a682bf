package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmapos/internal/core/apperror"
)

// fakeRepo records the filter the service forwarded.
type fakeRepo struct {
	summaryFilter   SalesSummaryFilter
	valuationFilter StockValuationFilter
	turnoverFilter  StockTurnoverFilter
}

func (r *fakeRepo) GetSalesSummary(ctx context.Context, filter SalesSummaryFilter) (*SalesSummaryReport, error) {
	r.summaryFilter = filter
	return &SalesSummaryReport{FromDate: filter.FromDate, ToDate: filter.ToDate}, nil
}

func (r *fakeRepo) GetStockValuation(ctx context.Context, filter StockValuationFilter) (*StockValuationReport, error) {
	r.valuationFilter = filter
	return &StockValuationReport{AsOfDate: time.Now().UTC()}, nil
}

func (r *fakeRepo) GetStockTurnover(ctx context.Context, filter StockTurnoverFilter) (*StockTurnoverReport, error) {
	r.turnoverFilter = filter
	return &StockTurnoverReport{FromDate: filter.FromDate, ToDate: filter.ToDate}, nil
}

var _ Repository = (*fakeRepo)(nil)

func TestGetSalesSummary_RequiresBothDates(t *testing.T) {
	svc := NewService(&fakeRepo{})
	now := time.Now()

	_, err := svc.GetSalesSummary(context.Background(), SalesSummaryFilter{ToDate: now})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = svc.GetSalesSummary(context.Background(), SalesSummaryFilter{FromDate: now})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestGetSalesSummary_RejectsInvertedPeriod(t *testing.T) {
	svc := NewService(&fakeRepo{})
	now := time.Now()

	_, err := svc.GetSalesSummary(context.Background(), SalesSummaryFilter{
		FromDate: now,
		ToDate:   now.Add(-time.Hour),
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestGetSalesSummary_ForwardsFilter(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)

	report, err := svc.GetSalesSummary(context.Background(), SalesSummaryFilter{FromDate: from, ToDate: to})
	require.NoError(t, err)
	assert.Equal(t, from, report.FromDate)
	assert.Equal(t, to, repo.summaryFilter.ToDate)
}

func TestGetStockValuation_ClampsLimit(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)

	_, err := svc.GetStockValuation(context.Background(), StockValuationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 100, repo.valuationFilter.Limit)

	_, err = svc.GetStockValuation(context.Background(), StockValuationFilter{Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1000, repo.valuationFilter.Limit)

	_, err = svc.GetStockValuation(context.Background(), StockValuationFilter{Limit: 25})
	require.NoError(t, err)
	assert.Equal(t, 25, repo.valuationFilter.Limit)
}

func TestGetStockTurnover_RequiresFromDate(t *testing.T) {
	svc := NewService(&fakeRepo{})
	_, err := svc.GetStockTurnover(context.Background(), StockTurnoverFilter{})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestGetStockTurnover_DefaultsToDate(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	from := time.Now().Add(-48 * time.Hour)

	_, err := svc.GetStockTurnover(context.Background(), StockTurnoverFilter{FromDate: from})
	require.NoError(t, err)
	assert.False(t, repo.turnoverFilter.ToDate.IsZero())
	assert.True(t, repo.turnoverFilter.ToDate.After(from))
}

func TestGetStockTurnover_RejectsInvertedPeriod(t *testing.T) {
	svc := NewService(&fakeRepo{})
	now := time.Now()

	_, err := svc.GetStockTurnover(context.Background(), StockTurnoverFilter{
		FromDate: now,
		ToDate:   now.Add(-time.Hour),
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestGetStockTurnover_ClampsLimit(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	from := time.Now().Add(-time.Hour)

	_, err := svc.GetStockTurnover(context.Background(), StockTurnoverFilter{FromDate: from, Limit: 9999})
	require.NoError(t, err)
	assert.Equal(t, 1000, repo.turnoverFilter.Limit)
}
