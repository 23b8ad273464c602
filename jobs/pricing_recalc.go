package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kitworth/kitworth/internal/pricing"
)

// TaskPricingRecalculate triggers a full catalog recompute.
const TaskPricingRecalculate = "pricing:recalculate"

// RecalculatePayload carries who asked for the run and when.
type RecalculatePayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewRecalculateTask constructs an Asynq task for a pricing recompute.
func NewRecalculateTask(reason string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(RecalculatePayload{Reason: reason, RequestedAt: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPricingRecalculate, body, asynq.Queue(QueueDefault)), nil
}

// Recomputer runs one pricing pass over the catalog.
type Recomputer interface {
	Recompute(ctx context.Context, opts pricing.RecomputeOptions) (pricing.Stats, error)
}

// CacheBumper invalidates cached pricing reports after a run.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// NewRecalculateHandler builds the Asynq handler for TaskPricingRecalculate.
// A run that finds another recompute in flight is dropped, not retried: the
// in-flight run already covers this request's data.
func NewRecalculateHandler(svc Recomputer, bumper CacheBumper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RecalculatePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		started := time.Now()
		stats, err := svc.Recompute(ctx, pricing.RecomputeOptions{})
		if errors.Is(err, pricing.ErrBusy) {
			logger.Info("recompute already in progress, dropping task",
				slog.String("reason", payload.Reason))
			return nil
		}
		if err != nil {
			return err
		}
		if bumper != nil {
			if err := bumper.Bump(ctx); err != nil {
				logger.Warn("cache bump failed", slog.Any("error", err))
			}
		}
		logger.Info("recompute finished",
			slog.String("reason", payload.Reason),
			slog.Duration("took", time.Since(started)),
			slog.Int("standalone_updated", stats.StandaloneUpdated),
			slog.Int("prorated_updated", stats.ProratedUpdated),
			slog.Int("skipped", stats.Skipped),
			slog.Int("products_processed", stats.ProductsProcessed),
			slog.Int("errors", len(stats.Errors)))
		return nil
	}
}
