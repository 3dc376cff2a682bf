package controlled

import (
	"context"
	"fmt"
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
	"farmapos/pkg/logger"
)

// Service provides business operations for the controlled-substance
// register. Transactions are managed by the caller; every mutating
// method expects to run inside one.
type Service struct {
	repo Repository
}

// NewService creates a new controlled register service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Append adds a new entry to a stock unit's chain. The chain head is
// locked first, so concurrent appends to the same chain serialize and
// entry numbers stay gapless. The running balance can never go negative.
func (s *Service) Append(ctx context.Context, req AppendRequest) (*RegisterEntry, error) {
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}

	head, err := s.repo.GetChainHeadForUpdate(ctx, req.StockUnitID)
	if err != nil {
		return nil, fmt.Errorf("lock chain head for %s: %w", req.StockUnitID, err)
	}

	var (
		entryNo       int64 = 1
		balanceBefore types.Quantity
	)
	if head != nil {
		entryNo = head.EntryNo + 1
		balanceBefore = head.BalanceAfter
	}

	balanceAfter := balanceBefore + req.QuantityIn - req.QuantityOut
	if balanceAfter.IsNegative() {
		return nil, apperror.NewNegativeBalance(req.StockUnitID.String(), balanceAfter.Int64())
	}

	now := time.Now()
	if req.Period.IsZero() {
		req.Period = now
	}
	entry := &RegisterEntry{
		ID:            id.New(),
		StockUnitID:   req.StockUnitID,
		EntryNo:       entryNo,
		Type:          req.Type,
		QuantityIn:    req.QuantityIn,
		QuantityOut:   req.QuantityOut,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Context:       req.Context,
		RecordedBy:    req.RecordedBy,
		CreatedAt:     now,
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert register entry: %w", err)
	}

	logger.Debug(ctx, "register entry appended",
		"stock_unit_id", req.StockUnitID,
		"entry_no", entryNo,
		"type", string(req.Type),
		"balance_after", balanceAfter.Int64(),
	)
	return entry, nil
}

// Verify counter-signs an entry with a second operator. An entry can be
// verified exactly once; the verifier must differ from the recorder.
func (s *Service) Verify(ctx context.Context, entryID id.ID, verifierID string) (*RegisterEntry, error) {
	if verifierID == "" {
		return nil, apperror.NewValidation("verifier is required").
			WithDetail("field", "verifierId")
	}

	entry, err := s.repo.GetByIDForUpdate(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", entryID, err)
	}
	if entry == nil {
		return nil, apperror.NewNotFound("register entry", entryID)
	}

	if entry.IsVerified() {
		return nil, apperror.NewAlreadyVerified(entryID.String())
	}
	if entry.RecordedBy == verifierID {
		return nil, apperror.NewValidation("an entry cannot be verified by its recorder").
			WithDetail("entry_id", entryID.String())
	}

	now := time.Now()
	if err := s.repo.SetVerified(ctx, entryID, verifierID, now); err != nil {
		return nil, fmt.Errorf("set verified: %w", err)
	}

	entry.VerifiedBy = &verifierID
	entry.VerifiedAt = &now

	logger.Info(ctx, "register entry verified",
		"entry_id", entryID,
		"verifier_id", verifierID,
	)
	return entry, nil
}

// Discrepancy describes one broken link found during reconciliation.
type Discrepancy struct {
	EntryNo  int64          `json:"entryNo"`
	EntryID  id.ID          `json:"entryId"`
	Expected types.Quantity `json:"expected"`
	Actual   types.Quantity `json:"actual"`
	Problem  string         `json:"problem"`
}

// ReconcileResult is the outcome of walking one stock unit's chain.
type ReconcileResult struct {
	StockUnitID   id.ID          `json:"stockUnitId"`
	EntryCount    int            `json:"entryCount"`
	FinalBalance  types.Quantity `json:"finalBalance"`
	Discrepancies []Discrepancy  `json:"discrepancies"`
}

// Clean reports whether the chain had no breaks.
func (r *ReconcileResult) Clean() bool {
	return len(r.Discrepancies) == 0
}

// Reconcile walks a stock unit's full chain and checks that entry
// numbers are gapless, each link's balanceBefore matches the previous
// balanceAfter, and each entry's arithmetic holds. Discrepancies are
// reported, never repaired; corrections go in as ADJUSTMENT entries.
func (s *Service) Reconcile(ctx context.Context, stockUnitID id.ID) (*ReconcileResult, error) {
	chain, err := s.repo.ListChain(ctx, stockUnitID)
	if err != nil {
		return nil, fmt.Errorf("list chain for %s: %w", stockUnitID, err)
	}

	result := &ReconcileResult{
		StockUnitID: stockUnitID,
		EntryCount:  len(chain),
	}

	var (
		prevNo      int64
		prevBalance types.Quantity
	)
	for i, e := range chain {
		if e.EntryNo != prevNo+1 {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				EntryNo:  e.EntryNo,
				EntryID:  e.ID,
				Expected: types.Quantity(prevNo + 1),
				Actual:   types.Quantity(e.EntryNo),
				Problem:  "entry number gap",
			})
		}
		if i > 0 && e.BalanceBefore != prevBalance {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				EntryNo:  e.EntryNo,
				EntryID:  e.ID,
				Expected: prevBalance,
				Actual:   e.BalanceBefore,
				Problem:  "balance chain break",
			})
		}
		if want := e.BalanceBefore + e.QuantityIn - e.QuantityOut; e.BalanceAfter != want {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				EntryNo:  e.EntryNo,
				EntryID:  e.ID,
				Expected: want,
				Actual:   e.BalanceAfter,
				Problem:  "entry arithmetic mismatch",
			})
		}
		prevNo = e.EntryNo
		prevBalance = e.BalanceAfter
	}
	result.FinalBalance = prevBalance

	if !result.Clean() {
		logger.Warn(ctx, "register reconciliation found discrepancies",
			"stock_unit_id", stockUnitID,
			"count", len(result.Discrepancies),
		)
	}
	return result, nil
}

// GetByID fetches one entry.
func (s *Service) GetByID(ctx context.Context, entryID id.ID) (*RegisterEntry, error) {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperror.NewNotFound("register entry", entryID)
	}
	return entry, nil
}

// List returns entries matching the filter.
func (s *Service) List(ctx context.Context, filter EntryFilter) ([]*RegisterEntry, error) {
	return s.repo.List(ctx, filter)
}

// CurrentBalance returns the latest chained balance for a stock unit.
func (s *Service) CurrentBalance(ctx context.Context, stockUnitID id.ID) (types.Quantity, error) {
	head, err := s.repo.GetChainHead(ctx, stockUnitID)
	if err != nil {
		return 0, err
	}
	if head == nil {
		return 0, nil
	}
	return head.BalanceAfter, nil
}
