package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSUMPTION MODEL - pure functions, no clock, no logging
// =============================================================================

// MaxElapsedDays bounds how many days a single elapsed-time deduction may
// cover. A corrupted or ancient anchor cannot drain more than this.
const MaxElapsedDays = 90

// DailyConsumption is the units taken per dosing day.
func DailyConsumption(m Medication) decimal.Decimal {
	return m.Dosage.Total()
}

// IntervalConsumption is the units taken per interval occurrence. A zero
// DosagePerInterval on a daily medication falls back to the daily sum.
func IntervalConsumption(m Medication) decimal.Decimal {
	if m.DosagePerInterval.IsPositive() {
		return m.DosagePerInterval
	}
	if m.IntervalDays <= 1 {
		return DailyConsumption(m)
	}
	return decimal.Zero
}

// TimepointConsumption is the units taken at one dose slot.
func TimepointConsumption(m Medication, tp Timepoint) decimal.Decimal {
	return m.Dosage.At(tp)
}

// DaysElapsed is the whole number of 24h periods from "from" to "to".
// Negative spans return 0.
func DaysElapsed(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// Consumption is the result of an elapsed-time reconstruction.
type Consumption struct {
	// Days actually applied, after capping.
	Days int
	// RawDays before capping.
	RawDays int
	Capped  bool
	Amount  decimal.Decimal
}

// IsZero reports a no-op consumption.
func (c Consumption) IsZero() bool {
	return c.Amount.IsZero()
}

// ConsumedSince reconstructs consumption between the stock anchor and now.
// maxDays <= 0 means MaxElapsedDays.
func ConsumedSince(m Medication, anchor, now time.Time, maxDays int) Consumption {
	if maxDays <= 0 {
		maxDays = MaxElapsedDays
	}
	raw := DaysElapsed(anchor, now)
	days := raw
	if days > maxDays {
		days = maxDays
	}
	return Consumption{
		Days:    days,
		RawDays: raw,
		Capped:  raw > maxDays,
		Amount:  DailyConsumption(m).Mul(decimal.NewFromInt(int64(days))),
	}
}

// ApplyDeduction computes the stock after taking amount. Clamped deductions
// never go below zero; unclamped ones may, recording a backlog.
func ApplyDeduction(old, amount decimal.Decimal, clamp bool) decimal.Decimal {
	next := old.Sub(amount)
	if clamp && next.IsNegative() {
		return decimal.Zero
	}
	return next
}
