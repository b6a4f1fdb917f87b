package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oliverbenduhn/tabletto/scheduler"
	"github.com/oliverbenduhn/tabletto/stock"
	"github.com/oliverbenduhn/tabletto/stock/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// blockingStore holds ListCandidates until release is closed.
type blockingStore struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) ListCandidates(ctx context.Context) ([]stock.Candidate, error) {
	close(s.entered)
	<-s.release
	return s.Memory.ListCandidates(ctx)
}

func newDriver(t *testing.T, cfg scheduler.Config) *scheduler.Driver {
	t.Helper()
	engine := newEngine(seed(t, daily("daily", "10", now.Add(-72*time.Hour))), nil)
	d := scheduler.NewDriver(engine, cfg, nil)
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestDriver_Disabled_StaysStopped(t *testing.T) {
	d := newDriver(t, scheduler.Config{Enabled: false})

	err := d.Start()

	assert.ErrorIs(t, err, scheduler.ErrSchedulerDisabled)
	assert.Equal(t, scheduler.StateStopped, d.Status().State)
}

func TestDriver_InvalidSchedule_StaysStopped(t *testing.T) {
	// GIVEN: a malformed cron expression
	d := newDriver(t, scheduler.Config{Enabled: true, Schedule: "every night"})

	// WHEN: started
	err := d.Start()

	// THEN: the error is reported and no tick is registered
	assert.ErrorIs(t, err, scheduler.ErrInvalidSchedule)
	st := d.Status()
	assert.Equal(t, scheduler.StateStopped, st.State)
	assert.Nil(t, st.NextRun)
}

func TestDriver_NoTimezone_StaysStopped(t *testing.T) {
	d := newDriver(t, scheduler.Config{Enabled: true, Schedule: "0 2 * * *"})

	err := d.Start()

	assert.ErrorIs(t, err, scheduler.ErrMissingTimezone)
	st := d.Status()
	assert.Equal(t, scheduler.StateStopped, st.State)
	assert.Empty(t, st.Timezone)
}

func TestDriver_StartStop(t *testing.T) {
	d := newDriver(t, scheduler.Config{Enabled: true, Schedule: "0 2 * * *", Location: time.UTC})

	require.NoError(t, d.Start())
	require.NoError(t, d.Start(), "second start is a no-op")

	st := d.Status()
	assert.Equal(t, scheduler.StateRunning, st.State)
	assert.Equal(t, "UTC", st.Timezone)
	require.NotNil(t, st.NextRun)
	assert.Equal(t, 2, st.NextRun.In(time.UTC).Hour())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, scheduler.StateStopped, d.Status().State)
	assert.Nil(t, d.Status().NextRun)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, scheduler.ValidateSchedule("*/5 * * * *"))
	assert.ErrorIs(t, scheduler.ValidateSchedule("61 * * * *"), scheduler.ErrInvalidSchedule)
}

func TestScheduleFor(t *testing.T) {
	assert.Equal(t, scheduler.DefaultSchedule, scheduler.ScheduleFor("", stock.ModeElapsed))
	assert.Equal(t, scheduler.DefaultTimepointSchedule, scheduler.ScheduleFor("", stock.ModeTimepoint))
	assert.Equal(t, "30 3 * * *", scheduler.ScheduleFor("30 3 * * *", stock.ModeTimepoint))
}

// =============================================================================
// MANUAL TICKS
// =============================================================================

func TestDriver_RunNow_RecordsLastRun(t *testing.T) {
	d := newDriver(t, scheduler.Config{Enabled: false})

	res, err := d.RunNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	st := d.Status()
	require.NotNil(t, st.LastRun)
	assert.Equal(t, 1, st.LastRun.Processed)
	assert.Empty(t, st.LastError)
	assert.False(t, st.Ticking)
}

// cancelAwareStore fails transactions whose context is already done, the way
// a database driver does.
type cancelAwareStore struct {
	*store.Memory
}

func (s cancelAwareStore) WithTx(ctx context.Context, fn func(stock.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.WithTx(ctx, fn)
}

func TestDriver_RunNow_CallerCancelled_FinishesBatch(t *testing.T) {
	// GIVEN: two due medications and a caller that has already gone away
	st := cancelAwareStore{Memory: seed(t,
		daily("a", "10", now.Add(-72*time.Hour)),
		daily("b", "10", now.Add(-72*time.Hour)),
	)}
	d := scheduler.NewDriver(newEngine(st, nil), scheduler.Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// WHEN: a manual tick is requested
	res, err := d.RunNow(ctx)

	// THEN: the whole batch is applied
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Zero(t, res.Failed)
	assert.True(t, dec("4").Equal(stockOf(t, st, "a")))
	assert.True(t, dec("4").Equal(stockOf(t, st, "b")))
}

func TestDriver_RunNow_WhileTicking_Rejected(t *testing.T) {
	// GIVEN: a tick blocked inside candidate loading
	bs := &blockingStore{
		Memory:  seed(t, daily("daily", "10", now.Add(-72*time.Hour))),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	d := scheduler.NewDriver(newEngine(bs, nil), scheduler.Config{}, nil)
	done := make(chan error, 1)
	go func() {
		_, err := d.RunNow(context.Background())
		done <- err
	}()
	<-bs.entered

	// WHEN: a second manual tick is requested
	_, err := d.RunNow(context.Background())

	// THEN: it is rejected instead of running concurrently
	assert.ErrorIs(t, err, scheduler.ErrTickInProgress)
	assert.True(t, d.Status().Ticking)

	close(bs.release)
	require.NoError(t, <-done)
	assert.False(t, d.Status().Ticking)
}

func TestDriver_RunNow_FailureRecorded(t *testing.T) {
	st := listFailingStore{Memory: seed(t)}
	d := scheduler.NewDriver(newEngine(st, nil), scheduler.Config{}, nil)

	_, err := d.RunNow(context.Background())

	require.Error(t, err)
	assert.False(t, errors.Is(err, scheduler.ErrTickInProgress))
	assert.Contains(t, d.Status().LastError, "database is locked")
}
