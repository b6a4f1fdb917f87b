/*
store.go - Persistence interfaces for medications, users and history

PURPOSE:
  Defines the boundary between the engine and the database. The engine only
  needs a handful of operations; implementations live in stock/store (memory)
  and store/sqlstore (SQLite, PostgreSQL).

KEY INTERFACES:
  MedicationStore: CRUD plus the batch candidate query and the CAS stock write
  UserStore:       users and their dose-time preferences
  HistoryStore:    append-only audit entries
  TxStore:         all of the above plus WithTx for atomic read-write-append

OPTIMISTIC CONCURRENCY:
  UpdateStock and UpdateMedication compare Medication.Version and fail with
  ErrConcurrentModification when the row moved on. A deduction that loses the
  race is skipped; the next tick evaluates the fresh row.

APPEND-ONLY HISTORY:
  HistoryStore has no Update and no Delete. Entries disappear only when their
  medication is deleted (cascade).

SEE ALSO:
  - applicator.go: uses WithTx + UpdateStock + AppendHistory
  - ledger.go: history read path
*/
package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StockUpdate is the CAS write of one stock transition.
type StockUpdate struct {
	MedicationID    MedicationID
	ExpectedVersion int64
	Stock           decimal.Decimal
	// MeasuredAt is also written as updated_at.
	MeasuredAt time.Time
	// KeepMeasuredAt leaves last_stock_measured_at untouched.
	KeepMeasuredAt bool
	// NextDueAt is written only when non-nil.
	NextDueAt *time.Time
}

type MedicationStore interface {
	CreateMedication(ctx context.Context, m *Medication) error
	// GetMedication returns ErrMedicationNotFound when the id does not belong to userID.
	GetMedication(ctx context.Context, userID UserID, id MedicationID) (*Medication, error)
	ListMedications(ctx context.Context, userID UserID) ([]Medication, error)
	// UpdateMedication writes user-editable fields. CAS on m.Version; bumps it.
	UpdateMedication(ctx context.Context, m *Medication) error
	// DeleteMedication removes the medication and its history.
	DeleteMedication(ctx context.Context, userID UserID, id MedicationID) error

	// ListCandidates returns every medication joined with its owner, with the
	// latest occurrence day of each automatic action.
	ListCandidates(ctx context.Context) ([]Candidate, error)
	// ListNegativeStock returns medications whose stock is below zero.
	ListNegativeStock(ctx context.Context) ([]Medication, error)

	// UpdateStock performs the CAS stock write. Bumps Version and UpdatedAt.
	UpdateStock(ctx context.Context, u StockUpdate) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	UpdateDoseTimes(ctx context.Context, id UserID, times DoseTimes) error
}

type HistoryStore interface {
	// AppendHistory persists one entry. Returns ErrDuplicateDeduction when an
	// automatic entry for the same (medication, action, occurrence day) exists.
	AppendHistory(ctx context.Context, e HistoryEntry) error
	// ListHistory returns newest-first, at most limit entries.
	ListHistory(ctx context.Context, medicationID MedicationID, userID UserID, limit int) ([]HistoryEntry, error)
}

type Store interface {
	MedicationStore
	UserStore
	HistoryStore
}

// TxStore runs fn atomically. If fn returns an error everything it wrote is
// rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
