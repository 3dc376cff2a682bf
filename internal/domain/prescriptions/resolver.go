package prescriptions

import (
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
)

// DeriveStatus computes what a prescription's status should be from its
// items and dates. CANCELLED is terminal and never recomputed. A fully
// dispensed prescription stays DISPENSED even past its expiry date.
func DeriveStatus(p *Prescription, now time.Time) Status {
	if p.Status == StatusCancelled {
		return StatusCancelled
	}

	dispensedAny := false
	remainingAny := false
	for _, item := range p.Items {
		if item.QuantityDispensed.IsPositive() {
			dispensedAny = true
		}
		if item.Remaining().IsPositive() {
			remainingAny = true
		}
	}

	if !remainingAny && dispensedAny {
		return StatusDispensed
	}
	if now.After(p.ExpiryDate) {
		return StatusExpired
	}
	if dispensedAny {
		return StatusPartial
	}
	return StatusPending
}

// Open reports whether anything may still be dispensed.
func Open(p *Prescription, now time.Time) bool {
	switch DeriveStatus(p, now) {
	case StatusPending, StatusPartial:
		return true
	}
	return false
}

// DispenseItem asks for a quantity of one prescription item. A zero
// StockUnitID means the prescribed batch; any other value is a
// substitution and the item must allow it.
type DispenseItem struct {
	ItemID      id.ID
	StockUnitID id.ID
	Quantity    types.Quantity
}

// DispenseRequest lists the items of a single dispensing.
type DispenseRequest []DispenseItem

// ResolvedLine is a validated dispense line bound to the batch it will
// actually draw from.
type ResolvedLine struct {
	Item         *PrescriptionItem
	StockUnitID  id.ID
	Quantity     types.Quantity
	Substitution bool
}

// ResolveDispense validates a dispense request against a prescription
// and binds each line to a stock unit, in request order. Pure function:
// it reads the prescription state and decides, the settlement engine
// does the writes.
func ResolveDispense(p *Prescription, req DispenseRequest, now time.Time) ([]ResolvedLine, error) {
	if len(req) == 0 {
		return nil, apperror.NewValidation("dispense request has no items")
	}

	if status := DeriveStatus(p, now); status != StatusPending && status != StatusPartial {
		return nil, apperror.NewPrescriptionClosed(p.ID.String(), string(status))
	}

	byID := make(map[id.ID]*PrescriptionItem, len(p.Items))
	for i := range p.Items {
		byID[p.Items[i].ID] = &p.Items[i]
	}

	seenItems := make(map[id.ID]struct{}, len(req))
	seenUnits := make(map[id.ID]struct{}, len(req))
	resolved := make([]ResolvedLine, 0, len(req))
	for _, line := range req {
		item, ok := byID[line.ItemID]
		if !ok {
			return nil, apperror.NewValidation("item does not belong to this prescription").
				WithDetail("item_id", line.ItemID.String())
		}
		if _, dup := seenItems[line.ItemID]; dup {
			return nil, apperror.NewValidation("duplicate prescription item in dispense request").
				WithDetail("item_id", line.ItemID.String())
		}
		seenItems[line.ItemID] = struct{}{}

		if !line.Quantity.IsPositive() {
			return nil, apperror.NewValidation("dispense quantity must be positive").
				WithDetail("item_id", line.ItemID.String())
		}
		if remaining := item.Remaining(); line.Quantity > remaining {
			return nil, apperror.NewDispenseLimitExceeded(
				item.StockUnitID.String(), line.Quantity.Int64(), remaining.Int64())
		}

		unitID := line.StockUnitID
		substitution := false
		if !id.IsNil(unitID) && unitID != item.StockUnitID {
			if !item.SubstitutionAllowed {
				return nil, apperror.NewValidation("substitution is not allowed for this item").
					WithDetail("item_id", line.ItemID.String()).
					WithDetail("stock_unit_id", unitID.String())
			}
			substitution = true
		} else {
			unitID = item.StockUnitID
		}
		if _, dup := seenUnits[unitID]; dup {
			return nil, apperror.NewValidation("duplicate stock unit in dispense request").
				WithDetail("stock_unit_id", unitID.String())
		}
		seenUnits[unitID] = struct{}{}

		resolved = append(resolved, ResolvedLine{
			Item:         item,
			StockUnitID:  unitID,
			Quantity:     line.Quantity,
			Substitution: substitution,
		})
	}
	return resolved, nil
}
