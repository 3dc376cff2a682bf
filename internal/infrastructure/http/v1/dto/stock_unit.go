package dto

import (
	"time"

	"farmapos/internal/core/types"
	"farmapos/internal/domain/catalogs/stockunit"
)

// --- Stock Unit DTOs ---

// StockUnitResponse represents a stock unit in API responses.
type StockUnitResponse struct {
	ID            string    `json:"id"`
	MedicineName  string    `json:"medicineName"`
	BatchNumber   string    `json:"batchNumber"`
	ExpiryDate    time.Time `json:"expiryDate"`
	UnitPrice     int64     `json:"unitPrice"`
	UnitCost      int64     `json:"unitCost"`
	OnHand        int64     `json:"onHand"`
	ScheduleClass string    `json:"scheduleClass,omitempty"`
	Controlled    bool      `json:"controlled"`
	DeletionMark  bool      `json:"deletionMark"`
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// FromStockUnit converts entity to response DTO.
func FromStockUnit(u *stockunit.StockUnit) StockUnitResponse {
	return StockUnitResponse{
		ID:            u.ID.String(),
		MedicineName:  u.MedicineName,
		BatchNumber:   u.BatchNumber,
		ExpiryDate:    u.ExpiryDate,
		UnitPrice:     int64(u.UnitPrice),
		UnitCost:      int64(u.UnitCost),
		OnHand:        u.OnHand.Int64(),
		ScheduleClass: string(u.ScheduleClass),
		Controlled:    u.IsControlled(),
		DeletionMark:  u.DeletionMark,
		Version:       u.Version,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// FromStockUnits converts a slice of entities.
func FromStockUnits(units []*stockunit.StockUnit) []StockUnitResponse {
	out := make([]StockUnitResponse, len(units))
	for i, u := range units {
		out[i] = FromStockUnit(u)
	}
	return out
}

// CreateStockUnitRequest for registering a new batch.
type CreateStockUnitRequest struct {
	MedicineName  string    `json:"medicineName" binding:"required"`
	BatchNumber   string    `json:"batchNumber" binding:"required"`
	ExpiryDate    time.Time `json:"expiryDate" binding:"required"`
	UnitPrice     int64     `json:"unitPrice" binding:"gte=0"`
	ScheduleClass string    `json:"scheduleClass,omitempty"`
}

// ToStockUnit builds a catalog entity from the request.
func (r CreateStockUnitRequest) ToStockUnit() *stockunit.StockUnit {
	unit := stockunit.NewStockUnit(r.MedicineName, r.BatchNumber, r.ExpiryDate, types.MinorUnits(r.UnitPrice))
	unit.ScheduleClass = stockunit.ScheduleClass(r.ScheduleClass)
	return unit
}

// UpdateStockUnitRequest for editing batch details. Quantity and cost
// are owned by the settlement engine and cannot be edited here.
type UpdateStockUnitRequest struct {
	MedicineName  *string    `json:"medicineName"`
	BatchNumber   *string    `json:"batchNumber"`
	ExpiryDate    *time.Time `json:"expiryDate"`
	UnitPrice     *int64     `json:"unitPrice"`
	ScheduleClass *string    `json:"scheduleClass"`
	Version       int        `json:"version" binding:"required,min=1"`
}

// Apply copies the provided fields onto the entity.
func (r UpdateStockUnitRequest) Apply(u *stockunit.StockUnit) {
	if r.MedicineName != nil {
		u.MedicineName = *r.MedicineName
	}
	if r.BatchNumber != nil {
		u.BatchNumber = *r.BatchNumber
	}
	if r.ExpiryDate != nil {
		u.ExpiryDate = *r.ExpiryDate
	}
	if r.UnitPrice != nil {
		u.UnitPrice = types.MinorUnits(*r.UnitPrice)
	}
	if r.ScheduleClass != nil {
		u.ScheduleClass = stockunit.ScheduleClass(*r.ScheduleClass)
	}
	u.Version = r.Version
}
