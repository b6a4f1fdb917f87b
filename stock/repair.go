package stock

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// REPAIR - reset negative stock with audited corrections
// =============================================================================

// Repairer resets negative stocks to zero. Each reset is a manual_correction
// history entry; nothing is ever deleted from history.
type Repairer struct {
	Service *StockService
	Logger  *zap.Logger
}

type RepairResult struct {
	Found     int
	Corrected []HistoryEntry
	Failed    map[MedicationID]error
}

// Run corrects every medication with negative stock. With dryRun it only
// reports what would change. One failing medication does not stop the rest.
func (r *Repairer) Run(ctx context.Context, dryRun bool) (RepairResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	meds, err := r.Service.Store.ListNegativeStock(ctx)
	if err != nil {
		return RepairResult{}, fmt.Errorf("list negative stock: %w", err)
	}
	res := RepairResult{Found: len(meds), Failed: map[MedicationID]error{}}

	for _, m := range meds {
		fields := []zap.Field{
			zap.String("medication_id", string(m.ID)),
			zap.String("name", m.Name),
			zap.String("stock", m.CurrentStock.String()),
		}
		if dryRun {
			logger.Info("would reset negative stock", fields...)
			continue
		}
		applied, err := r.Service.Correct(ctx, m, decimal.Zero)
		if err != nil {
			res.Failed[m.ID] = err
			logger.Error("failed to reset negative stock", append(fields, zap.Error(err))...)
			continue
		}
		res.Corrected = append(res.Corrected, applied.Entries...)
		logger.Info("reset negative stock", fields...)
	}
	return res, nil
}
