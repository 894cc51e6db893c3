package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/revfinder/internal/model"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc is called after each record finishes. Calls are serialized.
type ProgressFunc func(done, total int)

// BatchOptions configures ResolveBatch.
type BatchOptions struct {
	Progress ProgressFunc
}

// Batch is the result of resolving one set of records.
type Batch struct {
	StartedAt  time.Time
	FinishedAt time.Time
	RunID      string
	// Resolutions has one entry per input record, in input order.
	// Records never started because the batch was canceled stay NOT_STARTED.
	Resolutions []Resolution
	// Warnings lists degraded-mode conditions, such as learned verdicts that were not persisted.
	Warnings      []string
	Completed     int
	ExternalCalls int
}

// ResolveBatch resolves records in parallel. Independent records run concurrently
// up to Config.Concurrency. On cancellation no new records are started and the
// partial batch is returned with the context error.
func (r *Resolver) ResolveBatch(ctx context.Context, records []model.ProductRecord, opts BatchOptions) (Batch, error) {
	batch := Batch{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now(),
		Resolutions: make([]Resolution, len(records)),
	}
	for i, rec := range records {
		batch.Resolutions[i] = Resolution{Record: rec, State: model.StateNotStarted}
	}

	logger := slog.With("run_id", batch.RunID)
	logger.Info("Starting batch",
		"records", len(records),
		"concurrency", r.config.Concurrency,
		"offline", r.Offline())

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	g.SetLimit(r.config.Concurrency)

	for i := range records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := r.Resolve(ctx, records[i])
			if err != nil {
				logger.Warn("Skipping malformed record",
					"index", i,
					"document", records[i].DocumentID,
					"error", err)
			}

			mu.Lock()
			defer mu.Unlock()
			batch.Resolutions[i] = res
			done++
			if opts.Progress != nil {
				opts.Progress(done, len(records))
			}
			return nil
		})
	}
	_ = g.Wait()

	batch.FinishedAt = time.Now()
	for _, res := range batch.Resolutions {
		if res.State == model.StateNotStarted {
			continue
		}
		batch.Completed++
		if res.External {
			batch.ExternalCalls++
		}
		if res.CacheWarning != nil {
			batch.Warnings = append(batch.Warnings,
				fmt.Sprintf("learned verdict for %q not persisted: %v", res.Record.Description, res.CacheWarning))
		}
	}

	logger.Info("Batch finished",
		"completed", batch.Completed,
		"external_calls", batch.ExternalCalls,
		"warnings", len(batch.Warnings),
		"duration", batch.FinishedAt.Sub(batch.StartedAt))

	if err := ctx.Err(); err != nil {
		return batch, fmt.Errorf("batch %s interrupted after %d of %d records: %w",
			batch.RunID, batch.Completed, len(records), err)
	}
	return batch, nil
}
