// Package batch runs scheduled multi-user recomputes in bounded commits.
//
// Users are processed in fixed-size batches so a failure aborts only the
// current batch: earlier batches are already committed, later batches are
// never started, and within a batch every per-user invocation is
// independently idempotent, so rerunning the whole sweep converges.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/meridianhealth/meridian/internal/derive"
	"github.com/meridianhealth/meridian/internal/model"
)

// DefaultBatchSize bounds how many users one batch commits. Sized after the
// store's per-commit write limits.
const DefaultBatchSize = 450

// DefaultConcurrency bounds in-flight recomputes within a batch.
const DefaultConcurrency = 8

// Option configures a Runner.
type Option func(*Runner)

// WithBatchSize overrides the per-batch user count.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithConcurrency overrides the in-batch parallelism.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// Runner sweeps a user population through the recompute engine.
type Runner struct {
	engine      *derive.Engine
	logger      *slog.Logger
	batchSize   int
	concurrency int
}

// NewRunner builds a Runner over the given engine.
func NewRunner(engine *derive.Engine, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		engine:      engine,
		logger:      logger,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecomputeUsers recomputes the given day for every user, in batches.
// Returns the number of users successfully recomputed. On error, users from
// fully completed batches stay committed and remaining batches are skipped.
func (r *Runner) RecomputeUsers(ctx context.Context, userIDs []string, day, source string) (int, error) {
	trigger := model.AdminTrigger(source)
	done := 0

	for start := 0; start < len(userIDs); start += r.batchSize {
		end := min(start+r.batchSize, len(userIDs))
		chunk := userIDs[start:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for _, userID := range chunk {
			g.Go(func() error {
				if _, err := r.engine.RecomputeDay(gctx, userID, day, nil, trigger); err != nil {
					return fmt.Errorf("batch: user %s: %w", userID, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			r.logger.Error("batch: aborting sweep",
				"day", day, "completed_users", done, "failed_batch_start", start, "error", err)
			return done, err
		}

		done += len(chunk)
		r.logger.Info("batch: batch committed", "day", day, "users", len(chunk), "total_done", done)
	}
	return done, nil
}
