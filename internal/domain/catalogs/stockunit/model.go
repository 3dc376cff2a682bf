// Package stockunit provides the StockUnit catalog (medicine batches).
package stockunit

import (
	"context"
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/entity"
	"farmapos/internal/core/types"
)

// ScheduleClass categorizes a controlled substance by regulatory schedule.
// Empty string means the product is not controlled.
type ScheduleClass string

const (
	ScheduleNone ScheduleClass = ""
	ScheduleII   ScheduleClass = "II"
	ScheduleIII  ScheduleClass = "III"
	ScheduleIV   ScheduleClass = "IV"
	ScheduleV    ScheduleClass = "V"
)

// StockUnit is one purchasable batch of a medicine, identified by batch
// number and expiry date. The cached OnHand quantity is the single source
// of truth for availability; every change to it is backed by an immutable
// stock movement written in the same transaction.
type StockUnit struct {
	entity.BaseCatalog

	// MedicineName is the product display name
	MedicineName string `db:"medicine_name" json:"medicineName"`

	// BatchNumber identifies the manufacturer batch
	BatchNumber string `db:"batch_number" json:"batchNumber"`

	// ExpiryDate after which the batch must not be dispensed
	ExpiryDate time.Time `db:"expiry_date" json:"expiryDate"`

	// UnitPrice is the selling price per unit, minor currency units
	UnitPrice types.MinorUnits `db:"unit_price" json:"unitPrice"`

	// UnitCost is the weighted-average acquisition cost per unit
	UnitCost types.MinorUnits `db:"unit_cost" json:"unitCost"`

	// OnHand is the cached quantity; mutated only inside settlement
	// transactions together with a movement row
	OnHand types.Quantity `db:"on_hand" json:"onHand"`

	// ScheduleClass marks controlled substances; empty = not controlled
	ScheduleClass ScheduleClass `db:"schedule_class" json:"scheduleClass,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewStockUnit creates a new stock unit with zero on-hand quantity.
func NewStockUnit(medicineName, batchNumber string, expiry time.Time, unitPrice types.MinorUnits) *StockUnit {
	now := time.Now().UTC()
	return &StockUnit{
		BaseCatalog:  entity.NewBaseCatalog(),
		MedicineName: medicineName,
		BatchNumber:  batchNumber,
		ExpiryDate:   expiry,
		UnitPrice:    unitPrice,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsControlled reports whether movements of this unit must be logged
// in the controlled-substance register.
func (u *StockUnit) IsControlled() bool {
	return u.ScheduleClass != ScheduleNone
}

// IsExpired reports whether the batch is past its expiry date.
func (u *StockUnit) IsExpired(now time.Time) bool {
	return now.After(u.ExpiryDate)
}

// Validate implements entity.Validatable.
func (u *StockUnit) Validate(ctx context.Context) error {
	if u.MedicineName == "" {
		return apperror.NewValidation("medicine name is required").
			WithDetail("field", "medicineName")
	}
	if u.BatchNumber == "" {
		return apperror.NewValidation("batch number is required").
			WithDetail("field", "batchNumber")
	}
	if u.ExpiryDate.IsZero() {
		return apperror.NewValidation("expiry date is required").
			WithDetail("field", "expiryDate")
	}
	if u.UnitPrice.IsNegative() {
		return apperror.NewValidation("unit price cannot be negative").
			WithDetail("field", "unitPrice")
	}
	if u.OnHand.IsNegative() {
		return apperror.NewValidation("on-hand quantity cannot be negative").
			WithDetail("field", "onHand")
	}
	switch u.ScheduleClass {
	case ScheduleNone, ScheduleII, ScheduleIII, ScheduleIV, ScheduleV:
	default:
		return apperror.NewValidation("unknown schedule class").
			WithDetail("field", "scheduleClass").
			WithDetail("value", string(u.ScheduleClass))
	}
	return nil
}
