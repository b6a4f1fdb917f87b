/*
policy.go - Consumption policies (when is a deduction due, and how much)

PURPOSE:
  A ConsumptionPolicy looks at one Candidate and "now" and returns a
  Decision: either a list of deductions to apply, or the reason to skip.
  Policies are pure. They never read the clock, log, or touch storage.

POLICIES:
  DailyElapsed:  reconstructs consumption from the days elapsed since the
                 last stock measurement. Fires at most once per calendar day.
                 Unclamped: stock may go negative.
  IntervalFixed: every N days, one dose of DosagePerInterval when NextDueAt's
                 calendar day has been reached. The pointer advances from its
                 previous value, not from now, so a missed run does not drift
                 the schedule. A pointer sitting on an already recorded day
                 is stepped past it without deducting. Clamped at zero.
  PerTimepoint:  daily medications, one deduction per dose slot when the wall
                 clock is within a tolerance of the user's dose time.
                 Unclamped.

IDEMPOTENCE:
  Every deduction carries an OccurrenceDay. A (medication, action, day) triple
  is deducted at most once: policies skip triples already present in
  Candidate.LastDeductions, and the stores reject duplicates.

SEE ALSO:
  - evaluator.go: selects the policy per medication
  - consumption.go: the amounts
  - applicator.go: applies a Decision
*/
package stock

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DECISION
// =============================================================================

// SkipReason explains why a policy produced no deduction.
type SkipReason string

const (
	SkipNoAnchor         SkipReason = "no_anchor"
	SkipInvalidTimestamp SkipReason = "invalid_timestamp"
	SkipFutureTimestamp  SkipReason = "future_timestamp"
	SkipSameDay          SkipReason = "same_day"
	SkipZeroConsumption  SkipReason = "zero_consumption"
	SkipNotDue           SkipReason = "not_due"
	SkipOutsideWindow    SkipReason = "outside_window"
	SkipAlreadyDeducted  SkipReason = "already_deducted"
	SkipInvalidDoseTime  SkipReason = "invalid_dose_time"
)

// Deduction is one stock mutation the Applicator will perform.
type Deduction struct {
	Action        Action
	Amount        decimal.Decimal
	Clamp         bool
	OccurrenceDay string
}

// Decision is a policy's verdict for one medication at one instant.
type Decision struct {
	Policy       string
	MedicationID MedicationID
	Deductions   []Deduction
	// NextDueAt is the advanced interval pointer, nil when unchanged.
	NextDueAt *time.Time
	Skip      SkipReason
	// Consumption is set by DailyElapsed; Capped is logged by the engine.
	Consumption Consumption
}

// Due reports whether there is anything to apply.
func (d Decision) Due() bool {
	return len(d.Deductions) > 0
}

// Realigns reports a pointer-only move: nothing to deduct, but NextDueAt was
// behind an occurrence that is already recorded.
func (d Decision) Realigns() bool {
	return !d.Due() && d.NextDueAt != nil
}

// Total is the sum of all deduction amounts.
func (d Decision) Total() decimal.Decimal {
	total := decimal.Zero
	for _, ded := range d.Deductions {
		total = total.Add(ded.Amount)
	}
	return total
}

func skip(policy string, id MedicationID, reason SkipReason) Decision {
	return Decision{Policy: policy, MedicationID: id, Skip: reason}
}

// ConsumptionPolicy decides whether a candidate is due at now.
// A non-nil error always comes with a skip Decision.
type ConsumptionPolicy interface {
	Name() string
	Evaluate(c Candidate, now time.Time) (Decision, error)
}

// =============================================================================
// DAILY ELAPSED
// =============================================================================

type DailyElapsed struct {
	Location *time.Location
	MaxDays  int
}

func (DailyElapsed) Name() string { return "daily_elapsed" }

func (p DailyElapsed) Evaluate(c Candidate, now time.Time) (Decision, error) {
	m := c.Medication
	name := p.Name()

	if !DailyConsumption(m).IsPositive() {
		return skip(name, m.ID, SkipZeroConsumption), nil
	}
	if m.LastStockMeasuredAt.IsNull() {
		return skip(name, m.ID, SkipNoAnchor), nil
	}

	anchor, err := m.LastStockMeasuredAt.Parse()
	if err != nil {
		return skip(name, m.ID, SkipInvalidTimestamp), &TimestampError{
			MedicationID: m.ID, Field: "last_stock_measured_at", Raw: m.LastStockMeasuredAt.Raw, Err: err,
		}
	}
	if anchor.After(now) {
		return skip(name, m.ID, SkipFutureTimestamp), &TimestampError{
			MedicationID: m.ID, Field: "last_stock_measured_at", Raw: m.LastStockMeasuredAt.String(), Err: ErrFutureTimestamp,
		}
	}
	if SameDay(anchor, now, p.Location) {
		return skip(name, m.ID, SkipSameDay), nil
	}

	today := Day(now, p.Location)
	if c.DeductedOn(ActionAutoDeduction, today) {
		return skip(name, m.ID, SkipAlreadyDeducted), nil
	}

	consumed := ConsumedSince(m, anchor, now, p.MaxDays)
	if consumed.IsZero() {
		d := skip(name, m.ID, SkipZeroConsumption)
		d.Consumption = consumed
		return d, nil
	}

	return Decision{
		Policy:       name,
		MedicationID: m.ID,
		Consumption:  consumed,
		Deductions: []Deduction{{
			Action:        ActionAutoDeduction,
			Amount:        consumed.Amount,
			OccurrenceDay: today,
		}},
	}, nil
}

// =============================================================================
// INTERVAL FIXED
// =============================================================================

type IntervalFixed struct {
	Location *time.Location
}

func (IntervalFixed) Name() string { return "interval_fixed" }

func (p IntervalFixed) Evaluate(c Candidate, now time.Time) (Decision, error) {
	m := c.Medication
	name := p.Name()

	amount := IntervalConsumption(m)
	if !amount.IsPositive() {
		return skip(name, m.ID, SkipZeroConsumption), nil
	}
	if m.NextDueAt.IsNull() {
		return skip(name, m.ID, SkipNoAnchor), nil
	}

	due, err := m.NextDueAt.Parse()
	if err != nil {
		return skip(name, m.ID, SkipInvalidTimestamp), &TimestampError{
			MedicationID: m.ID, Field: "next_due_at", Raw: m.NextDueAt.Raw, Err: err,
		}
	}

	today := Day(now, p.Location)
	dueDay := Day(due, p.Location)
	if dueDay > today {
		return skip(name, m.ID, SkipNotDue), nil
	}

	interval := m.IntervalDays
	if interval < 1 {
		interval = 1
	}
	if c.DeductedOn(ActionAutoDeductionInterval, dueDay) {
		last := c.LastDeductions[ActionAutoDeductionInterval]
		for dueDay <= last {
			due = AddDays(due, interval, p.Location)
			dueDay = Day(due, p.Location)
		}
		if dueDay > today {
			d := skip(name, m.ID, SkipAlreadyDeducted)
			d.NextDueAt = &due
			return d, nil
		}
	}
	next := AddDays(due, interval, p.Location)

	return Decision{
		Policy:       name,
		MedicationID: m.ID,
		NextDueAt:    &next,
		Deductions: []Deduction{{
			Action:        ActionAutoDeductionInterval,
			Amount:        amount,
			Clamp:         true,
			OccurrenceDay: dueDay,
		}},
	}, nil
}

// =============================================================================
// PER TIMEPOINT
// =============================================================================

// DefaultTolerance is how far the tick may be from a dose time and still fire.
const DefaultTolerance = 2 * time.Minute

type PerTimepoint struct {
	Location  *time.Location
	Tolerance time.Duration
}

func (PerTimepoint) Name() string { return "per_timepoint" }

func (p PerTimepoint) Evaluate(c Candidate, now time.Time) (Decision, error) {
	m := c.Medication
	name := p.Name()

	if !DailyConsumption(m).IsPositive() {
		return skip(name, m.ID, SkipZeroConsumption), nil
	}

	today := Day(now, p.Location)
	if !m.NextDueAt.IsNull() {
		due, err := m.NextDueAt.Parse()
		if err != nil {
			return skip(name, m.ID, SkipInvalidTimestamp), &TimestampError{
				MedicationID: m.ID, Field: "next_due_at", Raw: m.NextDueAt.Raw, Err: err,
			}
		}
		if Day(due, p.Location) > today {
			return skip(name, m.ID, SkipNotDue), nil
		}
	}

	tolerance := p.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	window := int(tolerance / time.Minute)
	nowMinute := MinuteOfDay(now, p.Location)

	d := Decision{Policy: name, MedicationID: m.ID}
	var (
		already  bool
		clockErr error
	)
	for _, tp := range Timepoints {
		dose := TimepointConsumption(m, tp)
		if !dose.IsPositive() {
			continue
		}

		clock := c.User.DoseTimes.At(tp)
		if clock == "" {
			clock = DefaultDoseTimes.At(tp)
		}
		minute, err := ParseClock(clock)
		if err != nil {
			clockErr = fmt.Errorf("user %s %s: %w", c.User.ID, tp, err)
			continue
		}
		if abs(nowMinute-minute) > window {
			continue
		}

		action := TimepointAction(tp)
		if c.DeductedOn(action, today) {
			already = true
			continue
		}
		d.Deductions = append(d.Deductions, Deduction{
			Action:        action,
			Amount:        dose,
			OccurrenceDay: today,
		})
	}

	switch {
	case d.Due():
		return d, nil
	case clockErr != nil:
		d.Skip = SkipInvalidDoseTime
		return d, clockErr
	case already:
		d.Skip = SkipAlreadyDeducted
	default:
		d.Skip = SkipOutsideWindow
	}
	return d, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
