package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oliverbenduhn/tabletto/scheduler"
	"github.com/oliverbenduhn/tabletto/stock"
	"github.com/oliverbenduhn/tabletto/stock/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func daily(id stock.MedicationID, stockAmount string, anchor time.Time) stock.Medication {
	return stock.Medication{
		ID:                  id,
		UserID:              "user-1",
		Name:                string(id),
		Dosage:              stock.Dosage{Morning: dec("1"), Evening: dec("1")},
		IntervalDays:        1,
		TabletsPerPackage:   dec("20"),
		CurrentStock:        dec(stockAmount),
		LastStockMeasuredAt: stock.NewTimestamp(anchor),
		CreatedAt:           now,
	}
}

func interval(id stock.MedicationID, stockAmount string, due time.Time) stock.Medication {
	return stock.Medication{
		ID:                id,
		UserID:            "user-1",
		Name:              string(id),
		IntervalDays:      7,
		DosagePerInterval: dec("5"),
		TabletsPerPackage: dec("10"),
		CurrentStock:      dec(stockAmount),
		NextDueAt:         stock.NewTimestamp(due),
		CreatedAt:         now,
	}
}

func seed(t *testing.T, meds ...stock.Medication) *store.Memory {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateUser(ctx, &stock.User{ID: "user-1", Email: "anna@example.com", DoseTimes: stock.DefaultDoseTimes}))
	for i := range meds {
		require.NoError(t, mem.CreateMedication(ctx, &meds[i]))
	}
	return mem
}

func newEngine(st stock.TxStore, logger *zap.Logger) *scheduler.Engine {
	return engineAt(st, now, logger)
}

func engineAt(st stock.TxStore, at time.Time, logger *zap.Logger) *scheduler.Engine {
	app := stock.NewApplicator(st, stock.FixedClock{T: at}, nil, logger)
	return scheduler.NewEngine(stock.NewEvaluator(stock.ModeElapsed, time.UTC), app, logger)
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func stockOf(t *testing.T, st stock.Store, id stock.MedicationID) decimal.Decimal {
	t.Helper()
	m, err := st.GetMedication(context.Background(), "user-1", id)
	require.NoError(t, err)
	return m.CurrentStock
}

// failingTxStore fails every transaction with err.
type failingTxStore struct {
	*store.Memory
	err error
}

func (s *failingTxStore) WithTx(context.Context, func(stock.Store) error) error {
	return s.err
}

// =============================================================================
// RUN ONCE
// =============================================================================

func TestRunOnce_MixedBatch(t *testing.T) {
	// GIVEN: a daily medication three days behind, an interval medication due
	// yesterday and a medication whose anchor is in the future
	mem := seed(t,
		daily("daily", "10", now.Add(-72*time.Hour)),
		interval("weekly", "5", now.AddDate(0, 0, -1)),
		daily("future", "10", now.Add(24*time.Hour)),
	)
	logger, logs := observed()
	engine := newEngine(mem, logger)

	// WHEN: one tick runs
	res, err := engine.RunOnce(context.Background())

	// THEN: two deductions, the bad row is skipped with a warning
	require.NoError(t, err)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.True(t, dec("4").Equal(stockOf(t, mem, "daily")))
	assert.True(t, stockOf(t, mem, "weekly").IsZero())
	assert.True(t, dec("10").Equal(stockOf(t, mem, "future")))

	skipped := logs.FilterMessage("skipping medication").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, zap.WarnLevel, skipped[0].Level)
	assert.Equal(t, "future", skipped[0].ContextMap()["medication_id"])
	assert.Equal(t, 2, logs.FilterMessage("stock deducted").Len())
}

func TestRunOnce_SecondTickSameDay_NoChange(t *testing.T) {
	mem := seed(t,
		daily("daily", "10", now.Add(-72*time.Hour)),
		interval("weekly", "20", now.AddDate(0, 0, -1)),
	)
	engine := newEngine(mem, nil)
	_, err := engine.RunOnce(context.Background())
	require.NoError(t, err)

	res, err := engine.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Equal(t, 2, res.Skipped)
	assert.True(t, dec("4").Equal(stockOf(t, mem, "daily")))
	assert.True(t, dec("15").Equal(stockOf(t, mem, "weekly")))
}

func TestRunOnce_CappedWindow_Warns(t *testing.T) {
	mem := seed(t, daily("old", "500", now.Add(-400*24*time.Hour)))
	logger, logs := observed()

	res, err := newEngine(mem, logger).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.True(t, dec("320").Equal(stockOf(t, mem, "old")))
	capped := logs.FilterMessage("elapsed window capped").All()
	require.Len(t, capped, 1)
	assert.Equal(t, int64(400), capped[0].ContextMap()["raw_days"])
}

func TestRunOnce_Conflict_Counted(t *testing.T) {
	mem := seed(t, daily("daily", "10", now.Add(-72*time.Hour)))
	logger, logs := observed()
	st := &failingTxStore{Memory: mem, err: stock.ErrConcurrentModification}

	res, err := newEngine(st, logger).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Zero(t, res.Processed)
	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestRunOnce_Duplicate_CountedAsSkipped(t *testing.T) {
	mem := seed(t, daily("daily", "10", now.Add(-72*time.Hour)))
	st := &failingTxStore{Memory: mem, err: fmt.Errorf("record: %w", stock.ErrDuplicateDeduction)}

	res, err := newEngine(st, nil).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
}

func TestRunOnce_StoreFailure_IsolatedPerMedication(t *testing.T) {
	mem := seed(t,
		daily("a", "10", now.Add(-72*time.Hour)),
		daily("b", "10", now.Add(-72*time.Hour)),
	)
	logger, logs := observed()
	st := &failingTxStore{Memory: mem, err: errors.New("disk full")}

	res, err := newEngine(st, logger).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 2, logs.FilterMessage("failed to apply deduction").Len())
}

func TestRunOnce_ParallelWorkers(t *testing.T) {
	// GIVEN: fifty medications and four workers
	var meds []stock.Medication
	for i := 0; i < 50; i++ {
		meds = append(meds, daily(stock.MedicationID(fmt.Sprintf("med-%02d", i)), "10", now.Add(-48*time.Hour)))
	}
	mem := seed(t, meds...)
	engine := newEngine(mem, nil)
	engine.Workers = 4

	// WHEN: one tick runs
	res, err := engine.RunOnce(context.Background())

	// THEN: every medication is deducted exactly once
	require.NoError(t, err)
	assert.Equal(t, 50, res.Processed)
	for _, m := range meds {
		assert.True(t, dec("6").Equal(stockOf(t, mem, m.ID)), "medication %s", m.ID)
	}
}

// listFailingStore cannot load candidates.
type listFailingStore struct {
	*store.Memory
}

func (listFailingStore) ListCandidates(context.Context) ([]stock.Candidate, error) {
	return nil, errors.New("database is locked")
}

func TestRunOnce_CandidateLoadFailure_ReturnsError(t *testing.T) {
	st := listFailingStore{Memory: seed(t)}

	_, err := newEngine(st, nil).RunOnce(context.Background())

	assert.Error(t, err)
}

// =============================================================================
// MULTI-DAY
// =============================================================================

func TestRunOnce_IntervalPointerMovedBack_ResumesSchedule(t *testing.T) {
	// GIVEN: a weekly medication deducted today
	med := interval("weekly", "100", now)
	med.WarningThresholdDays = 7
	mem := seed(t, med)
	res, err := newEngine(mem, nil).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.True(t, dec("95").Equal(stockOf(t, mem, "weekly")))

	// AND: the user moves the due date back onto the deducted day
	svc := stock.NewStockService(stock.NewApplicator(mem, stock.FixedClock{T: now}, nil, nil), time.UTC)
	back := now
	_, err = svc.UpdateMedication(context.Background(), "user-1", "weekly", stock.MedicationPatch{NextDueAt: &back})
	require.NoError(t, err)

	// WHEN: one tick runs every day for four weeks
	for day := 1; day <= 28; day++ {
		_, err := engineAt(mem, now.AddDate(0, 0, day), nil).RunOnce(context.Background())
		require.NoError(t, err)

		if day == 1 {
			m, err := mem.GetMedication(context.Background(), "user-1", "weekly")
			require.NoError(t, err)
			assert.Equal(t, "2026-06-22", stock.Day(m.NextDueAt.Time, time.UTC))
			assert.True(t, dec("95").Equal(m.CurrentStock))
		}
	}

	// THEN: the weekly deductions resume on days 7, 14, 21 and 28
	assert.True(t, dec("75").Equal(stockOf(t, mem, "weekly")), "got %s", stockOf(t, mem, "weekly"))
	entries, err := mem.ListHistory(context.Background(), "weekly", "user-1", 0)
	require.NoError(t, err)
	auto := 0
	for _, e := range entries {
		if e.Action == stock.ActionAutoDeductionInterval {
			auto++
		}
	}
	assert.Equal(t, 5, auto)
}

func TestRunOnce_ZeroDosage_NeverRecordsHistory(t *testing.T) {
	// GIVEN: a daily medication with every dose slot at zero
	med := daily("empty", "10", now.Add(-72*time.Hour))
	med.Dosage = stock.Dosage{}
	mem := seed(t, med)

	// WHEN: ticks run over several days
	for day := 0; day < 5; day++ {
		res, err := engineAt(mem, now.AddDate(0, 0, day), nil).RunOnce(context.Background())

		// THEN: each tick counts it as skipped
		require.NoError(t, err)
		assert.Equal(t, 1, res.Skipped)
		assert.Zero(t, res.Processed)
	}

	// AND: stock and history are untouched
	assert.True(t, dec("10").Equal(stockOf(t, mem, "empty")))
	entries, err := mem.ListHistory(context.Background(), "empty", "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
