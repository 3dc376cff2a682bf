package customer

import (
	"context"
	"fmt"
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
	catalog "farmapos/internal/domain/catalogs/customer"
	"farmapos/pkg/logger"
)

// Service applies signed deltas to a customer's sub-ledgers. Every
// mutating method locks the customer row first; the transaction row and
// the cached balance are written under the same lock, in the caller's
// transaction, so the cache is never ahead of or behind the log.
type Service struct {
	ledger  Repository
	catalog catalog.Repository
}

// NewService creates a new customer ledger service.
func NewService(ledger Repository, catalogRepo catalog.Repository) *Service {
	return &Service{ledger: ledger, catalog: catalogRepo}
}

// ApplyLoyaltyDelta moves a customer's point balance by delta. A
// negative delta (redemption) that would take the balance below zero
// is rejected before anything is written.
func (s *Service) ApplyLoyaltyDelta(
	ctx context.Context,
	customerID id.ID,
	delta types.Points,
	reason LoyaltyReason,
	recorderID id.ID,
	recorderType string,
) (*LoyaltyTransaction, error) {
	if delta == 0 {
		return nil, apperror.NewValidation("loyalty delta cannot be zero").
			WithDetail("customer_id", customerID.String())
	}

	c, err := s.catalog.GetByIDForUpdate(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("lock customer %s: %w", customerID, err)
	}
	if c == nil {
		return nil, apperror.NewNotFound("customer", customerID)
	}

	after := c.LoyaltyPoints + delta
	if after.IsNegative() {
		return nil, apperror.NewInsufficientPoints(
			customerID.String(), -delta.Int64(), c.LoyaltyPoints.Int64())
	}

	tx := &LoyaltyTransaction{
		ID:           id.New(),
		CustomerID:   customerID,
		Delta:        delta,
		BalanceAfter: after,
		Reason:       reason,
		RecorderID:   recorderID,
		RecorderType: recorderType,
		CreatedAt:    time.Now(),
	}
	if err := s.ledger.InsertLoyalty(ctx, tx); err != nil {
		return nil, fmt.Errorf("insert loyalty transaction: %w", err)
	}
	if err := s.catalog.UpdateBalances(ctx, customerID, after, c.CreditBalance); err != nil {
		return nil, fmt.Errorf("update cached balances: %w", err)
	}

	logger.Debug(ctx, "loyalty delta applied",
		"customer_id", customerID,
		"delta", delta.Int64(),
		"balance_after", after.Int64(),
		"reason", string(reason),
	)
	return tx, nil
}

// ApplyCreditDelta moves a customer's outstanding credit by delta.
// Positive deltas (new debt) are checked against the credit limit;
// negative deltas (payments, void compensation) cannot overshoot zero.
func (s *Service) ApplyCreditDelta(
	ctx context.Context,
	customerID id.ID,
	delta types.MinorUnits,
	reason CreditReason,
	recorderID id.ID,
	recorderType string,
) (*CreditTransaction, error) {
	if delta == 0 {
		return nil, apperror.NewValidation("credit delta cannot be zero").
			WithDetail("customer_id", customerID.String())
	}

	c, err := s.catalog.GetByIDForUpdate(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("lock customer %s: %w", customerID, err)
	}
	if c == nil {
		return nil, apperror.NewNotFound("customer", customerID)
	}

	after := c.CreditBalance + delta
	if delta.IsPositive() && after > c.CreditLimit {
		return nil, apperror.NewCreditLimitExceeded(
			customerID.String(), int64(after), int64(c.CreditLimit))
	}
	if after.IsNegative() {
		return nil, apperror.NewValidation("payment exceeds outstanding credit").
			WithDetail("customer_id", customerID.String()).
			WithDetail("outstanding", c.CreditBalance.String()).
			WithDetail("payment", delta.Abs().String())
	}

	tx := &CreditTransaction{
		ID:           id.New(),
		CustomerID:   customerID,
		Delta:        delta,
		BalanceAfter: after,
		Reason:       reason,
		RecorderID:   recorderID,
		RecorderType: recorderType,
		CreatedAt:    time.Now(),
	}
	if err := s.ledger.InsertCredit(ctx, tx); err != nil {
		return nil, fmt.Errorf("insert credit transaction: %w", err)
	}
	if err := s.catalog.UpdateBalances(ctx, customerID, c.LoyaltyPoints, after); err != nil {
		return nil, fmt.Errorf("update cached balances: %w", err)
	}

	logger.Debug(ctx, "credit delta applied",
		"customer_id", customerID,
		"delta", int64(delta),
		"balance_after", int64(after),
		"reason", string(reason),
	)
	return tx, nil
}

// CachedBalances returns the card's cached point and credit balances.
func (s *Service) CachedBalances(ctx context.Context, customerID id.ID) (types.Points, types.MinorUnits, error) {
	c, err := s.catalog.GetByID(ctx, customerID)
	if err != nil {
		return 0, 0, err
	}
	if c == nil {
		return 0, 0, apperror.NewNotFound("customer", customerID)
	}
	return c.LoyaltyPoints, c.CreditBalance, nil
}

// LoyaltyHistory returns a customer's loyalty movements, newest first.
func (s *Service) LoyaltyHistory(ctx context.Context, customerID id.ID, filter HistoryFilter) ([]*LoyaltyTransaction, error) {
	return s.ledger.ListLoyalty(ctx, customerID, filter)
}

// CreditHistory returns a customer's credit movements, newest first.
func (s *Service) CreditHistory(ctx context.Context, customerID id.ID, filter HistoryFilter) ([]*CreditTransaction, error) {
	return s.ledger.ListCredit(ctx, customerID, filter)
}

// ReconstructResult compares cached balances against transaction sums.
type ReconstructResult struct {
	CustomerID     id.ID            `json:"customerId"`
	CachedPoints   types.Points     `json:"cachedPoints"`
	ComputedPoints types.Points     `json:"computedPoints"`
	CachedCredit   types.MinorUnits `json:"cachedCredit"`
	ComputedCredit types.MinorUnits `json:"computedCredit"`
}

// Consistent reports whether both caches match their logs.
func (r *ReconstructResult) Consistent() bool {
	return r.CachedPoints == r.ComputedPoints && r.CachedCredit == r.ComputedCredit
}

// Reconstruct sums both transaction logs and compares against the cached
// card balances. Mismatches are reported, not repaired.
func (s *Service) Reconstruct(ctx context.Context, customerID id.ID) (*ReconstructResult, error) {
	c, err := s.catalog.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperror.NewNotFound("customer", customerID)
	}

	pointSum, err := s.ledger.SumLoyalty(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("sum loyalty: %w", err)
	}
	creditSum, err := s.ledger.SumCredit(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("sum credit: %w", err)
	}

	result := &ReconstructResult{
		CustomerID:     customerID,
		CachedPoints:   c.LoyaltyPoints,
		ComputedPoints: types.Points(pointSum),
		CachedCredit:   c.CreditBalance,
		ComputedCredit: types.MinorUnits(creditSum),
	}
	if !result.Consistent() {
		logger.Warn(ctx, "customer balance cache out of step with ledger",
			"customer_id", customerID,
			"cached_points", c.LoyaltyPoints.Int64(),
			"computed_points", pointSum,
			"cached_credit", int64(c.CreditBalance),
			"computed_credit", creditSum,
		)
	}
	return result, nil
}
