/*
applicator.go - Atomic stock transitions

PURPOSE:
  Applies one Decision (automatic) or one manual action to a medication:
  compute the new stock, CAS-write it together with the schedule pointers,
  and append one HistoryEntry per mutation, all in one store transaction.

ATOMICITY:
  Inside Store.WithTx:
    1. UpdateStock with ExpectedVersion = the version the decision was made on
    2. AppendHistory for each mutation, chaining old -> new
  Either every write lands or none does. A concurrent manual edit bumps the
  version, so the automatic write fails with ErrConcurrentModification and
  nothing is recorded.

PUBLISHING:
  After commit, entries go to the optional Publisher. Publishing is best
  effort: the database is the source of truth.

SEE ALSO:
  - policy.go: produces Decisions
  - service.go: manual actions use the same transition path
  - ledger.go: HistoryEntry write path
*/
package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Publisher forwards committed history entries to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, entries []HistoryEntry) error
}

type Applicator struct {
	Store     TxStore
	Ledger    *Ledger
	Clock     Clock
	Publisher Publisher
	Logger    *zap.Logger
}

func NewApplicator(store TxStore, clock Clock, publisher Publisher, logger *zap.Logger) *Applicator {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applicator{
		Store:     store,
		Ledger:    NewLedger(store, clock),
		Clock:     clock,
		Publisher: publisher,
		Logger:    logger,
	}
}

// Applied is the outcome of a committed transition.
type Applied struct {
	Medication Medication
	Entries    []HistoryEntry
}

// mutation is one stock step inside a transition.
type mutation struct {
	action        Action
	next          func(old decimal.Decimal) decimal.Decimal
	occurrenceDay string
}

// Apply commits a due Decision for the candidate's medication.
func (a *Applicator) Apply(ctx context.Context, c Candidate, d Decision) (*Applied, error) {
	if !d.Due() {
		return nil, fmt.Errorf("decision for %s has no deductions", c.Medication.ID)
	}

	muts := make([]mutation, 0, len(d.Deductions))
	for _, ded := range d.Deductions {
		ded := ded
		muts = append(muts, mutation{
			action:        ded.Action,
			occurrenceDay: ded.OccurrenceDay,
			next: func(old decimal.Decimal) decimal.Decimal {
				return ApplyDeduction(old, ded.Amount, ded.Clamp)
			},
		})
	}
	return a.transition(ctx, c.Medication, d.NextDueAt, muts...)
}

// Realign writes a pointer-only Decision: NextDueAt moves, stock, the
// measurement anchor and history stay as they are.
func (a *Applicator) Realign(ctx context.Context, c Candidate, d Decision) (*Medication, error) {
	if !d.Realigns() {
		return nil, fmt.Errorf("decision for %s does not move the due pointer", c.Medication.ID)
	}
	now := a.Clock.Now()
	m := c.Medication
	if err := a.Store.UpdateStock(ctx, StockUpdate{
		MedicationID:    m.ID,
		ExpectedVersion: m.Version,
		Stock:           m.CurrentStock,
		MeasuredAt:      now,
		KeepMeasuredAt:  true,
		NextDueAt:       d.NextDueAt,
	}); err != nil {
		return nil, err
	}
	m.NextDueAt = NewTimestamp(*d.NextDueAt)
	m.UpdatedAt = now
	m.Version++
	return &m, nil
}

func (a *Applicator) transition(ctx context.Context, m Medication, nextDue *time.Time, muts ...mutation) (*Applied, error) {
	now := a.Clock.Now()

	var (
		stock   decimal.Decimal
		entries []HistoryEntry
	)
	err := a.Store.WithTx(ctx, func(tx Store) error {
		stock = m.CurrentStock
		entries = entries[:0]

		type pending struct {
			action        Action
			before, after decimal.Decimal
			occurrenceDay string
		}
		steps := make([]pending, 0, len(muts))
		for _, mu := range muts {
			next := mu.next(stock)
			steps = append(steps, pending{action: mu.action, before: stock, after: next, occurrenceDay: mu.occurrenceDay})
			stock = next
		}

		if err := tx.UpdateStock(ctx, StockUpdate{
			MedicationID:    m.ID,
			ExpectedVersion: m.Version,
			Stock:           stock,
			MeasuredAt:      now,
			NextDueAt:       nextDue,
		}); err != nil {
			return err
		}

		for _, s := range steps {
			e, err := a.Ledger.Record(ctx, tx, HistoryEntry{
				MedicationID:  m.ID,
				UserID:        m.UserID,
				Action:        s.action,
				OldStock:      s.before,
				NewStock:      s.after,
				Timestamp:     now,
				OccurrenceDay: s.occurrenceDay,
			})
			if err != nil {
				return fmt.Errorf("record %s: %w", s.action, err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.CurrentStock = stock
	m.LastStockMeasuredAt = NewTimestamp(now)
	m.UpdatedAt = now
	m.Version++
	if nextDue != nil {
		m.NextDueAt = NewTimestamp(*nextDue)
	}

	a.publish(ctx, entries)
	return &Applied{Medication: m, Entries: entries}, nil
}

func (a *Applicator) publish(ctx context.Context, entries []HistoryEntry) {
	if a.Publisher == nil || len(entries) == 0 {
		return
	}
	if err := a.Publisher.Publish(ctx, entries); err != nil {
		a.Logger.Warn("failed to publish history entries",
			zap.String("medication_id", string(entries[0].MedicationID)),
			zap.Int("entries", len(entries)),
			zap.Error(err),
		)
	}
}
