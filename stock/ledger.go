package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// HISTORY LEDGER - append-only audit trail of stock mutations
// =============================================================================

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Ledger is the single write path for HistoryEntry. Manual and automatic
// mutations share it so both follow the same audit contract.
type Ledger struct {
	Store HistoryStore
	Clock Clock
}

func NewLedger(store HistoryStore, clock Clock) *Ledger {
	if clock == nil {
		clock = RealClock{}
	}
	return &Ledger{Store: store, Clock: clock}
}

// Record appends e through store (pass the tx-scoped store inside WithTx).
// A missing ID or Timestamp is assigned here.
func (l *Ledger) Record(ctx context.Context, store HistoryStore, e HistoryEntry) (HistoryEntry, error) {
	if !e.Action.Valid() {
		return HistoryEntry{}, fmt.Errorf("%w: %q", ErrUnknownAction, e.Action)
	}
	if e.ID == "" {
		e.ID = HistoryID(uuid.NewString())
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.Clock.Now()
	}
	if store == nil {
		store = l.Store
	}
	if err := store.AppendHistory(ctx, e); err != nil {
		return HistoryEntry{}, err
	}
	return e, nil
}

// Recent returns the newest entries for one medication. limit <= 0 means
// DefaultHistoryLimit; anything above MaxHistoryLimit is capped.
func (l *Ledger) Recent(ctx context.Context, medicationID MedicationID, userID UserID, limit int) ([]HistoryEntry, error) {
	return l.Store.ListHistory(ctx, medicationID, userID, ClampHistoryLimit(limit))
}

func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
