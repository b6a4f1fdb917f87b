package stock_test

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/oliverbenduhn/tabletto/stock"
	"github.com/oliverbenduhn/tabletto/stock/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// now is Monday 2026-06-15 10:00 in Berlin (CEST).
func testNow(t *testing.T) time.Time {
	return time.Date(2026, 6, 15, 10, 0, 0, 0, berlin(t))
}

func testUser() stock.User {
	return stock.User{
		ID:        "user-1",
		Email:     "anna@example.com",
		DoseTimes: stock.DefaultDoseTimes,
	}
}

// dailyMedication takes 1 in the morning and 1 in the evening.
func dailyMedication(stockAmount string, anchor time.Time) stock.Medication {
	return stock.Medication{
		ID:                   "med-1",
		UserID:               "user-1",
		Name:                 "Ibuprofen",
		Dosage:               stock.Dosage{Morning: dec("1"), Evening: dec("1")},
		IntervalDays:         1,
		DosagePerInterval:    dec("2"),
		TabletsPerPackage:    dec("20"),
		CurrentStock:         dec(stockAmount),
		WarningThresholdDays: 7,
		LastStockMeasuredAt:  stock.NewTimestamp(anchor),
		Version:              1,
	}
}

// intervalMedication takes 5 units every 7 days.
func intervalMedication(stockAmount string, nextDue time.Time) stock.Medication {
	return stock.Medication{
		ID:                   "med-2",
		UserID:               "user-1",
		Name:                 "Methotrexat",
		IntervalDays:         7,
		DosagePerInterval:    dec("5"),
		TabletsPerPackage:    dec("10"),
		CurrentStock:         dec(stockAmount),
		WarningThresholdDays: 7,
		NextDueAt:            stock.NewTimestamp(nextDue),
		Version:              1,
	}
}

func candidate(m stock.Medication) stock.Candidate {
	return stock.Candidate{Medication: m, User: testUser()}
}

// seed stores the test user and the given medications in a fresh memory store.
func seed(t *testing.T, meds ...stock.Medication) *store.Memory {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	u := testUser()
	require.NoError(t, mem.CreateUser(ctx, &u))
	for i := range meds {
		require.NoError(t, mem.CreateMedication(ctx, &meds[i]))
	}
	return mem
}

func setupService(t *testing.T, now time.Time, meds ...stock.Medication) (*stock.StockService, *store.Memory) {
	t.Helper()
	mem := seed(t, meds...)
	app := stock.NewApplicator(mem, stock.FixedClock{T: now}, nil, nil)
	return stock.NewStockService(app, berlin(t)), mem
}

func history(t *testing.T, mem *store.Memory, id stock.MedicationID) []stock.HistoryEntry {
	t.Helper()
	entries, err := mem.ListHistory(context.Background(), id, "user-1", 0)
	require.NoError(t, err)
	return entries
}
