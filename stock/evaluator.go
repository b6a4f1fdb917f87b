package stock

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the policy used for daily (IntervalDays == 1) medications.
// Interval medications always use IntervalFixed.
type Mode string

const (
	ModeElapsed   Mode = "elapsed"
	ModeTimepoint Mode = "timepoint"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeElapsed:
		return ModeElapsed, nil
	case ModeTimepoint:
		return ModeTimepoint, nil
	default:
		return "", fmt.Errorf("unknown scheduler mode %q (want %q or %q)", s, ModeElapsed, ModeTimepoint)
	}
}

// Evaluator is the due-check entry point. It holds the explicit timezone all
// calendar-day and wall-clock questions are answered in.
type Evaluator struct {
	Mode           Mode
	Location       *time.Location
	Tolerance      time.Duration
	MaxElapsedDays int
}

func NewEvaluator(mode Mode, loc *time.Location) *Evaluator {
	return &Evaluator{
		Mode:           mode,
		Location:       loc,
		Tolerance:      DefaultTolerance,
		MaxElapsedDays: MaxElapsedDays,
	}
}

// PolicyFor picks the policy for one medication's configuration.
func (e *Evaluator) PolicyFor(m Medication) ConsumptionPolicy {
	if m.IsInterval() {
		return IntervalFixed{Location: e.Location}
	}
	if e.Mode == ModeTimepoint {
		return PerTimepoint{Location: e.Location, Tolerance: e.Tolerance}
	}
	return DailyElapsed{Location: e.Location, MaxDays: e.MaxElapsedDays}
}

// Evaluate runs the selected policy.
func (e *Evaluator) Evaluate(c Candidate, now time.Time) (Decision, error) {
	return e.PolicyFor(c.Medication).Evaluate(c, now)
}
