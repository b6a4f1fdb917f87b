/*
Package stock provides the medication stock-deduction engine.

PURPOSE:
  Tracks how many units of each medication a user has left and decrements
  that stock automatically as time passes. Every mutation, manual or
  automatic, is recorded in an append-only history so the current value can
  always be explained.

KEY CONCEPTS IN THIS FILE (types.go):
  - Medication: dosing configuration plus current stock and schedule pointers
  - User: owner of medications, carries dose-time preferences
  - HistoryEntry: immutable audit record of one stock mutation
  - Action: tag describing what produced a HistoryEntry
  - Candidate: a medication joined with its owner, as seen by the engine

DESIGN PRINCIPLES:
  1. Precision: stock and dosages use decimal.Decimal (half tablets are common)
  2. Auditability: one HistoryEntry per stock mutation, never edited
  3. Isolation: one medication's bad data never aborts the batch

SEE ALSO:
  - consumption.go: how much stock a configuration consumes
  - policy.go: when a deduction is due
  - applicator.go: the atomic stock transition
  - ledger.go: history write and read paths
*/
package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MedicationID string
type UserID string
type HistoryID string

// =============================================================================
// DOSING
// =============================================================================

// Timepoint is one of the three daily dose slots.
type Timepoint string

const (
	Morning Timepoint = "morning"
	Noon    Timepoint = "noon"
	Evening Timepoint = "evening"
)

// Timepoints lists the dose slots in wall-clock order.
var Timepoints = []Timepoint{Morning, Noon, Evening}

// Dosage is the number of units taken at each timepoint of a dosing day.
type Dosage struct {
	Morning decimal.Decimal
	Noon    decimal.Decimal
	Evening decimal.Decimal
}

// At returns the dosage for a single timepoint.
func (d Dosage) At(tp Timepoint) decimal.Decimal {
	switch tp {
	case Morning:
		return d.Morning
	case Noon:
		return d.Noon
	case Evening:
		return d.Evening
	default:
		return decimal.Zero
	}
}

// Total is the sum over all timepoints.
func (d Dosage) Total() decimal.Decimal {
	return d.Morning.Add(d.Noon).Add(d.Evening)
}

// =============================================================================
// MEDICATION
// =============================================================================

// Medication is a stock-tracked medication owned by exactly one user.
//
// CurrentStock may be negative: it means doses were due while no stock was
// recorded. The automatic daily policy never clamps it; the interval policy
// clamps at zero (see policy.go).
type Medication struct {
	ID                   MedicationID
	UserID               UserID
	Name                 string
	Dosage               Dosage
	IntervalDays         int
	DosagePerInterval    decimal.Decimal
	TabletsPerPackage    decimal.Decimal
	CurrentStock         decimal.Decimal
	WarningThresholdDays int

	// LastStockMeasuredAt anchors elapsed-time reconstruction.
	LastStockMeasuredAt Timestamp
	// NextDueAt is the next interval occurrence.
	NextDueAt Timestamp

	// Version increments on every write; used for optimistic concurrency.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsInterval reports whether the medication is dosed every N>1 days.
func (m Medication) IsInterval() bool {
	return m.IntervalDays > 1
}

// =============================================================================
// USER
// =============================================================================

// DoseTimes are wall-clock "HH:MM" strings, read in the process timezone.
type DoseTimes struct {
	Morning string
	Noon    string
	Evening string
}

// DefaultDoseTimes are applied to users that never set preferences.
var DefaultDoseTimes = DoseTimes{Morning: "08:00", Noon: "12:00", Evening: "20:00"}

// At returns the configured time for a timepoint.
func (d DoseTimes) At(tp Timepoint) string {
	switch tp {
	case Morning:
		return d.Morning
	case Noon:
		return d.Noon
	case Evening:
		return d.Evening
	default:
		return ""
	}
}

type User struct {
	ID        UserID
	Email     string
	DoseTimes DoseTimes
	CreatedAt time.Time
}

// =============================================================================
// HISTORY
// =============================================================================

// Action tags a HistoryEntry with what produced it.
type Action string

const (
	ActionAddPackage            Action = "add_package"
	ActionSetStock              Action = "set_stock"
	ActionAutoDeduction         Action = "auto_deduction"
	ActionAutoDeductionMorning  Action = "auto_deduction_morning"
	ActionAutoDeductionNoon     Action = "auto_deduction_noon"
	ActionAutoDeductionEvening  Action = "auto_deduction_evening"
	ActionAutoDeductionInterval Action = "auto_deduction_interval"
	ActionManualCorrection      Action = "manual_correction"
)

// IsAutomatic reports whether the action is written by the scheduler.
func (a Action) IsAutomatic() bool {
	switch a {
	case ActionAutoDeduction, ActionAutoDeductionMorning, ActionAutoDeductionNoon,
		ActionAutoDeductionEvening, ActionAutoDeductionInterval:
		return true
	}
	return false
}

// Valid reports whether a is one of the known tags.
func (a Action) Valid() bool {
	switch a {
	case ActionAddPackage, ActionSetStock, ActionManualCorrection:
		return true
	}
	return a.IsAutomatic()
}

// TimepointAction maps a dose slot to its automatic action tag.
func TimepointAction(tp Timepoint) Action {
	switch tp {
	case Morning:
		return ActionAutoDeductionMorning
	case Noon:
		return ActionAutoDeductionNoon
	default:
		return ActionAutoDeductionEvening
	}
}

// HistoryEntry is an immutable record of one stock mutation.
type HistoryEntry struct {
	ID           HistoryID
	MedicationID MedicationID
	UserID       UserID
	Action       Action
	OldStock     decimal.Decimal
	NewStock     decimal.Decimal
	Timestamp    time.Time

	// OccurrenceDay is the calendar day (YYYY-MM-DD) an automatic deduction
	// belongs to. Empty for manual entries. (medication, action, day) is unique.
	OccurrenceDay string
}

// =============================================================================
// CANDIDATE - what the scheduler evaluates
// =============================================================================

// Candidate is a medication joined with its owner and the most recent
// occurrence day of each automatic action already recorded for it.
type Candidate struct {
	Medication     Medication
	User           User
	LastDeductions map[Action]string
}

// DeductedOn reports whether action was already recorded for day.
func (c Candidate) DeductedOn(action Action, day string) bool {
	if c.LastDeductions == nil {
		return false
	}
	last, ok := c.LastDeductions[action]
	return ok && last >= day
}
