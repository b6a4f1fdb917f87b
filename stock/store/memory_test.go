package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oliverbenduhn/tabletto/stock"
	"github.com/oliverbenduhn/tabletto/stock/store"
)

var now = time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)

func setup(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateUser(ctx, &stock.User{ID: "user-1", Email: "anna@example.com"}))
	require.NoError(t, mem.CreateMedication(ctx, &stock.Medication{
		ID: "med-1", UserID: "user-1", Name: "Ibuprofen",
		CurrentStock: decimal.NewFromInt(10), CreatedAt: now,
	}))
	return mem
}

func TestMemory_UpdateStock_CAS(t *testing.T) {
	mem := setup(t)
	ctx := context.Background()
	u := stock.StockUpdate{MedicationID: "med-1", ExpectedVersion: 1, Stock: decimal.NewFromInt(8), MeasuredAt: now}

	require.NoError(t, mem.UpdateStock(ctx, u))
	assert.ErrorIs(t, mem.UpdateStock(ctx, u), stock.ErrConcurrentModification)

	u.MedicationID = "ghost"
	assert.ErrorIs(t, mem.UpdateStock(ctx, u), stock.ErrMedicationNotFound)
}

func TestMemory_DuplicateOccurrence(t *testing.T) {
	mem := setup(t)
	ctx := context.Background()
	e := stock.HistoryEntry{ID: "h1", MedicationID: "med-1", UserID: "user-1", Action: stock.ActionAutoDeduction, OccurrenceDay: "2026-06-15"}

	require.NoError(t, mem.AppendHistory(ctx, e))
	e.ID = "h2"
	assert.ErrorIs(t, mem.AppendHistory(ctx, e), stock.ErrDuplicateDeduction)

	candidates, err := mem.ListCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "2026-06-15", candidates[0].LastDeductions[stock.ActionAutoDeduction])
}

func TestMemory_WithTx_RollsBack(t *testing.T) {
	// GIVEN: a transaction that writes stock and history, then fails
	mem := setup(t)
	ctx := context.Background()

	// WHEN: it runs
	err := mem.WithTx(ctx, func(tx stock.Store) error {
		require.NoError(t, tx.UpdateStock(ctx, stock.StockUpdate{
			MedicationID: "med-1", ExpectedVersion: 1, Stock: decimal.NewFromInt(4), MeasuredAt: now,
		}))
		require.NoError(t, tx.AppendHistory(ctx, stock.HistoryEntry{
			ID: "h1", MedicationID: "med-1", UserID: "user-1", Action: stock.ActionAutoDeduction, OccurrenceDay: "2026-06-15",
		}))
		return errors.New("boom")
	})

	// THEN: nothing it wrote is visible, including the occurrence
	require.Error(t, err)
	m, err := mem.GetMedication(ctx, "user-1", "med-1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(m.CurrentStock))
	assert.Equal(t, int64(1), m.Version)
	history, err := mem.ListHistory(ctx, "med-1", "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	require.NoError(t, mem.AppendHistory(ctx, stock.HistoryEntry{
		ID: "h1", MedicationID: "med-1", UserID: "user-1", Action: stock.ActionAutoDeduction, OccurrenceDay: "2026-06-15",
	}))
}

func TestMemory_DuplicateEmail(t *testing.T) {
	mem := setup(t)

	err := mem.CreateUser(context.Background(), &stock.User{ID: "user-2", Email: "anna@example.com"})

	assert.ErrorIs(t, err, stock.ErrValidation)
}

func TestMemory_ListNegativeStock(t *testing.T) {
	mem := setup(t)
	ctx := context.Background()
	require.NoError(t, mem.UpdateStock(ctx, stock.StockUpdate{
		MedicationID: "med-1", ExpectedVersion: 1, Stock: decimal.NewFromInt(-2), MeasuredAt: now,
	}))

	meds, err := mem.ListNegativeStock(ctx)

	require.NoError(t, err)
	require.Len(t, meds, 1)
	assert.Equal(t, stock.MedicationID("med-1"), meds[0].ID)
}
