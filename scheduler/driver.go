/*
Package scheduler runs the stock engine on a cron schedule.

PURPOSE:
  The Driver is the process-lifetime handle around Engine.RunOnce. It owns
  the cron expression, the timezone it is read in and the re-entrancy guard.
  There is no package-level state: the handle is created in main and passed
  around explicitly.

LIFECYCLE:
    stopped --Start()--> running --Stop(ctx)--> stopped

  Start validates the configuration first. A disabled or misconfigured driver
  (bad expression, no timezone) is logged and stays stopped; the process
  keeps serving.
  Stop prevents new ticks and waits for an in-flight tick to finish (or for
  ctx to expire).

RE-ENTRANCY:
  At most one tick runs at a time. Cron ticks that overlap a running tick are
  skipped; RunNow returns ErrTickInProgress instead of waiting.

USAGE:
  d := scheduler.NewDriver(engine, scheduler.Config{Enabled: true, Schedule: "0 2 * * *", Location: berlin}, logger)
  if err := d.Start(); err != nil { ... }
  defer d.Stop(ctx)

SEE ALSO:
  - engine.go: what one tick does
  - api/handlers.go: status and manual trigger endpoints
*/
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/oliverbenduhn/tabletto/stock"
)

var (
	ErrTickInProgress    = errors.New("a scheduler tick is already running")
	ErrInvalidSchedule   = errors.New("invalid schedule expression")
	ErrSchedulerDisabled = errors.New("scheduler is disabled")
	ErrMissingTimezone   = errors.New("scheduler timezone is not set")
)

const (
	// DefaultSchedule runs the elapsed-time policy once a day at 02:00.
	DefaultSchedule = "0 2 * * *"
	// DefaultTimepointSchedule is frequent enough to hit each dose time
	// within the per-timepoint tolerance.
	DefaultTimepointSchedule = "*/5 * * * *"
)

// ScheduleFor returns expr, or the default schedule for mode when expr is empty.
func ScheduleFor(expr string, mode stock.Mode) string {
	if expr != "" {
		return expr
	}
	if mode == stock.ModeTimepoint {
		return DefaultTimepointSchedule
	}
	return DefaultSchedule
}

type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

type Config struct {
	Enabled  bool
	Schedule string
	Location *time.Location
}

// Status is a point-in-time view for the admin endpoint.
type Status struct {
	State     State       `json:"state"`
	Enabled   bool        `json:"enabled"`
	Schedule  string      `json:"schedule"`
	Timezone  string      `json:"timezone"`
	Ticking   bool        `json:"ticking"`
	NextRun   *time.Time  `json:"next_run,omitempty"`
	LastRun   *TickResult `json:"last_run,omitempty"`
	LastError string      `json:"last_error,omitempty"`
}

type Driver struct {
	Engine *Engine
	Config Config
	Logger *zap.Logger

	mu      sync.Mutex
	state   State
	cron    *cron.Cron
	entry   cron.EntryID
	ticking atomic.Bool

	last    *TickResult
	lastErr error
}

func NewDriver(engine *Engine, cfg Config, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	return &Driver{
		Engine: engine,
		Config: cfg,
		Logger: logger,
		state:  StateStopped,
	}
}

// ValidateSchedule parses a standard five-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSchedule, expr, err)
	}
	return nil
}

// Start registers the schedule. Calling Start on a running driver is a no-op.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateRunning {
		return nil
	}
	if !d.Config.Enabled {
		d.Logger.Info("stock scheduler disabled, not starting")
		return ErrSchedulerDisabled
	}

	schedule, err := cron.ParseStandard(d.Config.Schedule)
	if err != nil {
		err = fmt.Errorf("%w %q: %v", ErrInvalidSchedule, d.Config.Schedule, err)
		d.Logger.Error("stock scheduler not started", zap.Error(err))
		return err
	}
	if d.Config.Location == nil {
		d.Logger.Error("stock scheduler not started", zap.Error(ErrMissingTimezone))
		return ErrMissingTimezone
	}

	cl := cronLogger{d.Logger.Sugar()}
	c := cron.New(
		cron.WithLocation(d.Config.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	d.entry = c.Schedule(schedule, cron.FuncJob(d.tick))
	c.Start()

	d.cron = c
	d.state = StateRunning
	d.Logger.Info("stock scheduler started",
		zap.String("schedule", d.Config.Schedule),
		zap.String("timezone", d.Config.Location.String()),
		zap.Timep("next_run", d.nextRunLocked()),
	)
	return nil
}

// Stop prevents new ticks and waits for a running tick to finish, or for ctx
// to be done.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		return nil
	}
	done := d.cron.Stop()
	d.cron = nil
	d.state = StateStopped
	d.mu.Unlock()

	select {
	case <-done.Done():
		d.Logger.Info("stock scheduler stopped")
		return nil
	case <-ctx.Done():
		d.Logger.Warn("stock scheduler stop timed out with a tick in flight", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// RunNow runs one tick immediately through the same path as a scheduled tick.
// It works whether or not the driver is started. Cancelling ctx does not stop
// a tick that has begun; the batch always finishes.
func (d *Driver) RunNow(ctx context.Context) (TickResult, error) {
	return d.run(context.WithoutCancel(ctx), "manual")
}

func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Status{
		State:    d.state,
		Enabled:  d.Config.Enabled,
		Schedule: d.Config.Schedule,
		Ticking:  d.ticking.Load(),
		NextRun:  d.nextRunLocked(),
	}
	if d.Config.Location != nil {
		s.Timezone = d.Config.Location.String()
	}
	if d.last != nil {
		last := *d.last
		s.LastRun = &last
	}
	if d.lastErr != nil {
		s.LastError = d.lastErr.Error()
	}
	return s
}

func (d *Driver) nextRunLocked() *time.Time {
	if d.cron == nil {
		return nil
	}
	next := d.cron.Entry(d.entry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

func (d *Driver) tick() {
	if _, err := d.run(context.Background(), "cron"); errors.Is(err, ErrTickInProgress) {
		d.Logger.Info("skipping scheduled tick, previous tick still running")
	}
}

func (d *Driver) run(ctx context.Context, trigger string) (TickResult, error) {
	if !d.ticking.CompareAndSwap(false, true) {
		return TickResult{}, ErrTickInProgress
	}
	defer d.ticking.Store(false)

	d.Logger.Info("stock tick started", zap.String("trigger", trigger))
	res, err := d.Engine.RunOnce(ctx)

	d.mu.Lock()
	d.last = &res
	d.lastErr = err
	d.mu.Unlock()

	if err != nil {
		d.Logger.Error("stock tick failed", zap.String("trigger", trigger), zap.Error(err))
		return res, err
	}
	d.Logger.Info("stock tick finished",
		zap.String("trigger", trigger),
		zap.Int("candidates", res.Candidates),
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
		zap.Int("conflicts", res.Conflicts),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// cronLogger routes robfig/cron's internal logging to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
