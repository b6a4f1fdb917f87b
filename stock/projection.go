package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROJECTION - how long the current stock lasts
// =============================================================================

// WarningDays is the horizon below which a medication is flagged "warning".
const WarningDays = 14

type Status string

const (
	StatusGood     Status = "good"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Projection is a read-only view; it never changes stock.
type Projection struct {
	DailyRate decimal.Decimal
	// DaysRemaining is nil when nothing is consumed.
	DaysRemaining *decimal.Decimal
	DepletionDate *time.Time
	Status        Status
}

// DailyRate is the average units consumed per day. Interval medications
// spread DosagePerInterval over IntervalDays.
func DailyRate(m Medication) decimal.Decimal {
	if m.IsInterval() {
		return IntervalConsumption(m).Div(decimal.NewFromInt(int64(m.IntervalDays)))
	}
	return DailyConsumption(m)
}

// Project computes remaining days and the warning status at now.
func Project(m Medication, now time.Time, loc *time.Location) Projection {
	rate := DailyRate(m)
	if !rate.IsPositive() {
		return Projection{DailyRate: decimal.Zero, Status: StatusGood}
	}

	days := m.CurrentStock.DivRound(rate, 2)
	if days.IsNegative() {
		days = decimal.Zero
	}
	depletion := AddDays(now, int(days.IntPart()), loc)

	status := StatusGood
	switch {
	case days.LessThan(decimal.NewFromInt(int64(m.WarningThresholdDays))):
		status = StatusCritical
	case days.LessThan(decimal.NewFromInt(WarningDays)):
		status = StatusWarning
	}

	return Projection{
		DailyRate:     rate,
		DaysRemaining: &days,
		DepletionDate: &depletion,
		Status:        status,
	}
}
