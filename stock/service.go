package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// STOCK SERVICE - user-driven medication edits and manual stock actions
// =============================================================================

// manualAttempts bounds retries of a manual action that lost a CAS race
// against the scheduler.
const manualAttempts = 3

// StockService is the write API behind the HTTP layer. Every stock change it
// makes goes through Applicator.transition and is audited like an automatic
// deduction.
type StockService struct {
	Store      TxStore
	Applicator *Applicator
	Clock      Clock
	Location   *time.Location
}

func NewStockService(app *Applicator, loc *time.Location) *StockService {
	return &StockService{
		Store:      app.Store,
		Applicator: app,
		Clock:      app.Clock,
		Location:   loc,
	}
}

var (
	maxDosage    = decimal.NewFromInt(10)
	maxPackage   = decimal.NewFromInt(1000)
	maxStock     = decimal.NewFromInt(10000)
	maxInterval  = 365
	maxNameRunes = 100
)

// MedicationInput is a new medication as entered by the user.
type MedicationInput struct {
	Name                 string
	Dosage               Dosage
	IntervalDays         int
	DosagePerInterval    decimal.Decimal
	TabletsPerPackage    decimal.Decimal
	CurrentStock         decimal.Decimal
	WarningThresholdDays int
	NextDueAt            *time.Time
}

func (in *MedicationInput) applyDefaults(now time.Time, loc *time.Location) {
	in.Name = strings.TrimSpace(in.Name)
	if in.IntervalDays == 0 {
		in.IntervalDays = 1
	}
	if in.WarningThresholdDays == 0 {
		in.WarningThresholdDays = 7
	}
	if in.DosagePerInterval.IsZero() {
		in.DosagePerInterval = in.Dosage.Total()
	}
	if in.NextDueAt == nil {
		next := AddDays(now, in.IntervalDays, loc)
		in.NextDueAt = &next
	}
}

// Validate checks the ranges accepted for a medication.
func (in MedicationInput) Validate() error {
	var errs ValidationErrors
	add := func(field, msg string) { errs = append(errs, &ValidationError{Field: field, Message: msg}) }

	switch n := len([]rune(strings.TrimSpace(in.Name))); {
	case n == 0:
		add("name", "is required")
	case n > maxNameRunes:
		add("name", fmt.Sprintf("must be at most %d characters", maxNameRunes))
	}
	for _, tp := range Timepoints {
		d := in.Dosage.At(tp)
		if d.IsNegative() || d.GreaterThan(maxDosage) {
			add("dosage_"+string(tp), "must be between 0 and 10")
		}
	}
	if in.TabletsPerPackage.LessThanOrEqual(decimal.Zero) || in.TabletsPerPackage.GreaterThan(maxPackage) {
		add("tablets_per_package", "must be between 1 and 1000")
	}
	if in.CurrentStock.IsNegative() || in.CurrentStock.GreaterThan(maxStock) {
		add("current_stock", "must be between 0 and 10000")
	}
	if in.WarningThresholdDays < 1 || in.WarningThresholdDays > 30 {
		add("warning_threshold_days", "must be between 1 and 30")
	}
	if in.IntervalDays < 1 || in.IntervalDays > maxInterval {
		add("interval_days", fmt.Sprintf("must be between 1 and %d", maxInterval))
	}
	if in.DosagePerInterval.IsNegative() {
		add("dosage_per_interval", "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CreateMedication stores a new medication. The stock anchor starts now.
func (s *StockService) CreateMedication(ctx context.Context, userID UserID, in MedicationInput) (*Medication, error) {
	now := s.Clock.Now()
	in.applyDefaults(now, s.Location)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.Store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	m := &Medication{
		ID:                   MedicationID(uuid.NewString()),
		UserID:               userID,
		Name:                 in.Name,
		Dosage:               in.Dosage,
		IntervalDays:         in.IntervalDays,
		DosagePerInterval:    in.DosagePerInterval,
		TabletsPerPackage:    in.TabletsPerPackage,
		CurrentStock:         in.CurrentStock,
		WarningThresholdDays: in.WarningThresholdDays,
		LastStockMeasuredAt:  NewTimestamp(now),
		NextDueAt:            NewTimestamp(*in.NextDueAt),
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.Store.CreateMedication(ctx, m); err != nil {
		return nil, fmt.Errorf("create medication: %w", err)
	}
	return m, nil
}

func (s *StockService) GetMedication(ctx context.Context, userID UserID, id MedicationID) (*Medication, error) {
	return s.Store.GetMedication(ctx, userID, id)
}

func (s *StockService) ListMedications(ctx context.Context, userID UserID) ([]Medication, error) {
	return s.Store.ListMedications(ctx, userID)
}

func (s *StockService) DeleteMedication(ctx context.Context, userID UserID, id MedicationID) error {
	return s.Store.DeleteMedication(ctx, userID, id)
}

// MedicationPatch holds the fields a user edit may change. Nil means keep.
type MedicationPatch struct {
	Name                 *string
	DosageMorning        *decimal.Decimal
	DosageNoon           *decimal.Decimal
	DosageEvening        *decimal.Decimal
	IntervalDays         *int
	DosagePerInterval    *decimal.Decimal
	TabletsPerPackage    *decimal.Decimal
	CurrentStock         *decimal.Decimal
	WarningThresholdDays *int
	NextDueAt            *time.Time
}

// UpdateMedication applies a user edit. Any edit counts as a fresh stock
// observation, so the anchor moves to now. A changed stock is audited as
// set_stock in the same transaction.
func (s *StockService) UpdateMedication(ctx context.Context, userID UserID, id MedicationID, p MedicationPatch) (*Medication, error) {
	var updated *Medication
	err := s.Store.WithTx(ctx, func(tx Store) error {
		m, err := tx.GetMedication(ctx, userID, id)
		if err != nil {
			return err
		}
		oldStock := m.CurrentStock

		in := MedicationInput{
			Name:                 m.Name,
			Dosage:               m.Dosage,
			IntervalDays:         m.IntervalDays,
			DosagePerInterval:    m.DosagePerInterval,
			TabletsPerPackage:    m.TabletsPerPackage,
			CurrentStock:         m.CurrentStock,
			WarningThresholdDays: m.WarningThresholdDays,
		}
		dosageChanged := false
		if p.Name != nil {
			in.Name = *p.Name
		}
		if p.DosageMorning != nil {
			in.Dosage.Morning, dosageChanged = *p.DosageMorning, true
		}
		if p.DosageNoon != nil {
			in.Dosage.Noon, dosageChanged = *p.DosageNoon, true
		}
		if p.DosageEvening != nil {
			in.Dosage.Evening, dosageChanged = *p.DosageEvening, true
		}
		if p.IntervalDays != nil {
			in.IntervalDays = *p.IntervalDays
		}
		switch {
		case p.DosagePerInterval != nil:
			in.DosagePerInterval = *p.DosagePerInterval
		case dosageChanged:
			in.DosagePerInterval = in.Dosage.Total()
		}
		if p.TabletsPerPackage != nil {
			in.TabletsPerPackage = *p.TabletsPerPackage
		}
		if p.CurrentStock != nil {
			in.CurrentStock = *p.CurrentStock
		}
		if p.WarningThresholdDays != nil {
			in.WarningThresholdDays = *p.WarningThresholdDays
		}
		in.Name = strings.TrimSpace(in.Name)
		if err := in.Validate(); err != nil {
			return err
		}

		now := s.Clock.Now()
		m.Name = in.Name
		m.Dosage = in.Dosage
		m.IntervalDays = in.IntervalDays
		m.DosagePerInterval = in.DosagePerInterval
		m.TabletsPerPackage = in.TabletsPerPackage
		m.CurrentStock = in.CurrentStock
		m.WarningThresholdDays = in.WarningThresholdDays
		if p.NextDueAt != nil {
			m.NextDueAt = NewTimestamp(*p.NextDueAt)
		}
		m.LastStockMeasuredAt = NewTimestamp(now)
		m.UpdatedAt = now

		if err := tx.UpdateMedication(ctx, m); err != nil {
			return err
		}
		if !oldStock.Equal(m.CurrentStock) {
			if _, err := s.Applicator.Ledger.Record(ctx, tx, HistoryEntry{
				MedicationID: m.ID,
				UserID:       m.UserID,
				Action:       ActionSetStock,
				OldStock:     oldStock,
				NewStock:     m.CurrentStock,
				Timestamp:    now,
			}); err != nil {
				return err
			}
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// MANUAL STOCK ACTIONS
// =============================================================================

// AddPackage increments stock by amount, or by the medication's package size
// when amount is nil. The size must be positive.
func (s *StockService) AddPackage(ctx context.Context, userID UserID, id MedicationID, amount *decimal.Decimal) (*Applied, error) {
	return s.manual(ctx, userID, id, func(m *Medication) (mutation, error) {
		size := m.TabletsPerPackage
		if amount != nil {
			size = *amount
		}
		if !size.IsPositive() {
			return mutation{}, fmt.Errorf("%w: package size must be greater than 0", ErrInvalidAmount)
		}
		return mutation{
			action: ActionAddPackage,
			next:   func(old decimal.Decimal) decimal.Decimal { return old.Add(size) },
		}, nil
	})
}

// SetStock overwrites the stock with an absolute, non-negative amount.
func (s *StockService) SetStock(ctx context.Context, userID UserID, id MedicationID, amount decimal.Decimal) (*Applied, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidAmount)
	}
	return s.manual(ctx, userID, id, func(*Medication) (mutation, error) {
		return mutation{
			action: ActionSetStock,
			next:   func(decimal.Decimal) decimal.Decimal { return amount },
		}, nil
	})
}

// StockAction dispatches a named manual action.
func (s *StockService) StockAction(ctx context.Context, userID UserID, id MedicationID, action Action, amount *decimal.Decimal) (*Applied, error) {
	switch action {
	case ActionAddPackage:
		return s.AddPackage(ctx, userID, id, amount)
	case ActionSetStock:
		if amount == nil {
			return nil, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
		}
		return s.SetStock(ctx, userID, id, *amount)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Correct overwrites stock as an operator correction (manual_correction).
func (s *StockService) Correct(ctx context.Context, m Medication, stock decimal.Decimal) (*Applied, error) {
	return s.Applicator.transition(ctx, m, nil, mutation{
		action: ActionManualCorrection,
		next:   func(decimal.Decimal) decimal.Decimal { return stock },
	})
}

func (s *StockService) manual(ctx context.Context, userID UserID, id MedicationID, build func(*Medication) (mutation, error)) (*Applied, error) {
	var lastErr error
	for attempt := 0; attempt < manualAttempts; attempt++ {
		m, err := s.Store.GetMedication(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		mu, err := build(m)
		if err != nil {
			return nil, err
		}
		applied, err := s.Applicator.transition(ctx, *m, nil, mu)
		if err == nil {
			return applied, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// History returns the newest entries for a medication owned by userID.
func (s *StockService) History(ctx context.Context, userID UserID, id MedicationID, limit int) ([]HistoryEntry, error) {
	if _, err := s.Store.GetMedication(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.Applicator.Ledger.Recent(ctx, id, userID, limit)
}
