// Package types provides common type aliases and utilities.
package types

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors; reserved for
// rate arithmetic (discount percentages, weighted-average cost).
// Persisted amounts are stored as MinorUnits.
type Money = decimal.Decimal

// NewMoneyFromMinorUnits converts stored minor units into Money.
func NewMoneyFromMinorUnits(m MinorUnits) Money {
	return decimal.New(int64(m), -2)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MinorUnits represents a monetary value in minor currency units (cents, kopecks).
// Storage: int64 - sufficient for ±922 trillion minor units.
// Example: 123.45 → 12345.
type MinorUnits int64

// NewMinorUnitsFromMoney rounds a Money value to minor units (2 decimal places).
func NewMinorUnitsFromMoney(m Money) MinorUnits {
	return MinorUnits(m.Round(2).Shift(2).IntPart())
}

// NewMinorUnitsFromMajor creates MinorUnits from a major unit amount.
func NewMinorUnitsFromMajor(major float64) MinorUnits {
	return MinorUnits(math.Round(major * 100))
}

// ToMajor converts minor units back to major units for display.
func (m MinorUnits) ToMajor() float64 {
	return float64(m) / 100
}

// ToMoney converts minor units into exact decimal Money.
func (m MinorUnits) ToMoney() Money {
	return decimal.New(int64(m), -2)
}

func (m MinorUnits) IsZero() bool     { return m == 0 }
func (m MinorUnits) IsPositive() bool { return m > 0 }
func (m MinorUnits) IsNegative() bool { return m < 0 }
func (m MinorUnits) Neg() MinorUnits  { return -m }
func (m MinorUnits) Abs() MinorUnits {
	if m < 0 {
		return -m
	}
	return m
}

// String formats minor units as a major-unit decimal string.
func (m MinorUnits) String() string {
	neg := m < 0
	v := m
	if neg {
		v = -v
	}
	if neg {
		return fmt.Sprintf("-%d.%02d", int64(v)/100, int64(v)%100)
	}
	return fmt.Sprintf("%d.%02d", int64(v)/100, int64(v)%100)
}

// Quantity is a whole number of dispensable units (packs, tablets, vials).
// Pharmacy stock is never fractional, so no fixed-point scaling is needed.
type Quantity int64

func (q Quantity) Int64() int64     { return int64(q) }
func (q Quantity) IsZero() bool     { return q == 0 }
func (q Quantity) IsPositive() bool { return q > 0 }
func (q Quantity) IsNegative() bool { return q < 0 }
func (q Quantity) Neg() Quantity    { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Points is a loyalty point count. 1 point discounts 1 major currency unit.
type Points int64

func (p Points) Int64() int64     { return int64(p) }
func (p Points) IsPositive() bool { return p > 0 }
func (p Points) IsNegative() bool { return p < 0 }

// AsDiscount converts points into the minor-unit discount they are worth.
func (p Points) AsDiscount() MinorUnits {
	return MinorUnits(int64(p) * 100)
}
