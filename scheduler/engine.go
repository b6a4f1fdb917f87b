package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oliverbenduhn/tabletto/stock"
)

// =============================================================================
// ENGINE - one tick over every medication
// =============================================================================

const (
	DefaultWorkers = 1
	DefaultTimeout = 10 * time.Second
)

// TickResult summarises one run. Counts add up to Candidates.
type TickResult struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Candidates int           `json:"candidates"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Conflicts  int           `json:"conflicts"`
	Failed     int           `json:"failed"`
}

// Engine evaluates and applies deductions. It knows nothing about cron; the
// Driver decides when RunOnce is called.
type Engine struct {
	Store      stock.TxStore
	Evaluator  *stock.Evaluator
	Applicator *stock.Applicator
	Clock      stock.Clock
	Logger     *zap.Logger

	// Workers bounds concurrent medications per tick.
	Workers int
	// Timeout bounds the work on a single medication.
	Timeout time.Duration
}

func NewEngine(evaluator *stock.Evaluator, applicator *stock.Applicator, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Store:      applicator.Store,
		Evaluator:  evaluator,
		Applicator: applicator,
		Clock:      applicator.Clock,
		Logger:     logger,
		Workers:    DefaultWorkers,
		Timeout:    DefaultTimeout,
	}
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeConflict
	outcomeFailed
)

// RunOnce processes every candidate once. It only returns an error when the
// candidates cannot be loaded; per-medication failures are counted and logged.
func (e *Engine) RunOnce(ctx context.Context) (TickResult, error) {
	now := e.Clock.Now()
	res := TickResult{StartedAt: now}

	candidates, err := e.Store.ListCandidates(ctx)
	if err != nil {
		return res, fmt.Errorf("list candidates: %w", err)
	}
	res.Candidates = len(candidates)

	workers := e.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, c := range candidates {
		c := c
		g.Go(func() error {
			o := e.process(ctx, c, now)
			mu.Lock()
			defer mu.Unlock()
			switch o {
			case outcomeProcessed:
				res.Processed++
			case outcomeSkipped:
				res.Skipped++
			case outcomeConflict:
				res.Conflicts++
			default:
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Duration = e.Clock.Now().Sub(now)
	return res, nil
}

func (e *Engine) process(ctx context.Context, c stock.Candidate, now time.Time) (o outcome) {
	m := c.Medication
	logger := e.Logger.With(
		zap.String("medication_id", string(m.ID)),
		zap.String("user_id", string(m.UserID)),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing medication", zap.Any("panic", r))
			o = outcomeFailed
		}
	}()

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	d, err := e.Evaluator.Evaluate(c, now)
	if err != nil {
		logger.Warn("skipping medication",
			zap.String("policy", d.Policy),
			zap.String("reason", string(d.Skip)),
			zap.Error(err),
		)
		return outcomeSkipped
	}
	if d.Consumption.Capped {
		logger.Warn("elapsed window capped",
			zap.Int("raw_days", d.Consumption.RawDays),
			zap.Int("applied_days", d.Consumption.Days),
		)
	}
	if d.Realigns() {
		return e.realign(ctx, logger, c, d)
	}
	if !d.Due() {
		logger.Debug("not due", zap.String("policy", d.Policy), zap.String("reason", string(d.Skip)))
		return outcomeSkipped
	}

	applied, err := e.Applicator.Apply(ctx, c, d)
	switch {
	case err == nil:
	case errors.Is(err, stock.ErrConcurrentModification):
		logger.Warn("medication changed during deduction, retrying next tick", zap.Error(err))
		return outcomeConflict
	case errors.Is(err, stock.ErrDuplicateDeduction):
		logger.Info("deduction already recorded", zap.String("policy", d.Policy))
		return outcomeSkipped
	default:
		logger.Error("failed to apply deduction", zap.String("policy", d.Policy), zap.Error(err))
		return outcomeFailed
	}

	logger.Info("stock deducted",
		zap.String("policy", d.Policy),
		zap.String("amount", d.Total().String()),
		zap.String("old_stock", m.CurrentStock.String()),
		zap.String("new_stock", applied.Medication.CurrentStock.String()),
		zap.Int("entries", len(applied.Entries)),
	)
	return outcomeProcessed
}

// realign steps an interval pointer past an occurrence that is already
// recorded. Nothing is deducted, so it counts as skipped.
func (e *Engine) realign(ctx context.Context, logger *zap.Logger, c stock.Candidate, d stock.Decision) outcome {
	m, err := e.Applicator.Realign(ctx, c, d)
	switch {
	case err == nil:
	case errors.Is(err, stock.ErrConcurrentModification):
		logger.Warn("medication changed during realign, retrying next tick", zap.Error(err))
		return outcomeConflict
	default:
		logger.Error("failed to realign due pointer", zap.Error(err))
		return outcomeFailed
	}
	logger.Info("due pointer realigned",
		zap.String("policy", d.Policy),
		zap.String("old_next_due_at", c.Medication.NextDueAt.String()),
		zap.String("next_due_at", m.NextDueAt.String()),
	)
	return outcomeSkipped
}
