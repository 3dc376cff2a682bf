package prescriptions

import (
	"context"
	"time"

	"farmapos/internal/core/id"
)

// ListFilter narrows prescription queries.
type ListFilter struct {
	PatientName string
	Status      *Status
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// Repository persists prescriptions, their items and dispensing events.
type Repository interface {
	// Create inserts a prescription with its items.
	Create(ctx context.Context, p *Prescription) error

	// GetByID fetches a prescription with items loaded.
	GetByID(ctx context.Context, prescriptionID id.ID) (*Prescription, error)

	// GetByIDForUpdate fetches with a row lock on the prescription;
	// concurrent dispenses against the same prescription serialize here.
	GetByIDForUpdate(ctx context.Context, prescriptionID id.ID) (*Prescription, error)

	// GetByNumber fetches by document number.
	GetByNumber(ctx context.Context, number string) (*Prescription, error)

	// List returns prescriptions matching the filter, items loaded.
	List(ctx context.Context, filter ListFilter) ([]*Prescription, error)

	// UpdateStatus writes a recomputed status with a version bump.
	UpdateStatus(ctx context.Context, prescriptionID id.ID, status Status, version int) error

	// AddDispensedQuantity increments one item's dispensed counter.
	AddDispensedQuantity(ctx context.Context, itemID id.ID, delta int64) error

	// InsertDispensingEvent records one dispensing with its lines.
	InsertDispensingEvent(ctx context.Context, event *DispensingEvent) error

	// GetDispensingEventBySale returns the event a settlement produced,
	// or nil if the sale did not dispense anything.
	GetDispensingEventBySale(ctx context.Context, saleID id.ID) (*DispensingEvent, error)

	// ListDispensingEvents returns a prescription's events, oldest first.
	ListDispensingEvents(ctx context.Context, prescriptionID id.ID) ([]*DispensingEvent, error)
}
