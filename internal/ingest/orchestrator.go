package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/recallguard/recallguard-api/internal/alerting"
	"github.com/recallguard/recallguard-api/internal/config"
	"github.com/recallguard/recallguard-api/internal/match"
	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/normalize"
	"github.com/recallguard/recallguard-api/internal/repository"
	"github.com/recallguard/recallguard-api/internal/source"
)

// ErrRefreshInProgress is returned when a refresh is requested while a
// previous one is still running. Overlapping runs are skipped, not queued.
var ErrRefreshInProgress = errors.New("refresh already in progress")

const matchBatchSize = 500

// Summary reports what one refresh did.
type Summary struct {
	New           int               `json:"new"`
	Updated       int               `json:"updated"`
	Total         int               `json:"total"`
	AlertsCreated int               `json:"alerts_created"`
	SourceErrors  map[string]string `json:"source_errors,omitempty"`
}

// Orchestrator runs the fetch -> normalize -> upsert -> match -> alert
// pipeline. Sources are fetched concurrently and fail independently: one
// broken upstream degrades its own feed, never the run.
type Orchestrator struct {
	adapters   []source.Adapter
	recalls    repository.RecallRepository
	watermarks repository.WatermarkRepository
	matcher    *match.Matcher
	generator  *alerting.Generator
	cfg        config.FetchConfig
	logger     zerolog.Logger

	runMu sync.Mutex

	failMu   sync.Mutex
	failures map[models.Source]int
}

func NewOrchestrator(
	adapters []source.Adapter,
	recalls repository.RecallRepository,
	watermarks repository.WatermarkRepository,
	matcher *match.Matcher,
	generator *alerting.Generator,
	cfg config.FetchConfig,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		adapters:   adapters,
		recalls:    recalls,
		watermarks: watermarks,
		matcher:    matcher,
		generator:  generator,
		cfg:        cfg,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		failures:   make(map[models.Source]int),
	}
}

// Refresh runs one full pipeline pass. It is idempotent: re-running
// against unchanged upstreams creates no rows and no alerts.
func (o *Orchestrator) Refresh(ctx context.Context) (Summary, error) {
	if !o.runMu.TryLock() {
		return Summary{}, ErrRefreshInProgress
	}
	defer o.runMu.Unlock()

	started := time.Now()
	cutoff := started.Add(-o.cfg.CutoffWindow).UTC()
	run := o.logger.With().Str("run_id", uuid.NewString()).Logger()
	summary := Summary{SourceErrors: make(map[string]string)}

	batches := o.fetchAll(ctx, cutoff, &summary)

	now := time.Now().UTC()
	for _, recalls := range batches {
		for i := range recalls {
			recalls[i].FetchedAt = now
			stored, wasNew, err := o.recalls.Upsert(ctx, recalls[i])
			if err != nil {
				run.Error().Err(err).
					Str("source", string(recalls[i].Source)).
					Str("external_id", recalls[i].ExternalID).
					Msg("upsert failed")
				continue
			}
			if wasNew {
				summary.New++
				run.Info().
					Str("source", string(stored.Source)).
					Str("external_id", stored.ExternalID).
					Str("product", stored.Product).
					Msg("new recall ingested")
			} else {
				summary.Updated++
			}
		}
	}

	created, err := o.matchNewRecalls(ctx)
	if err != nil {
		return summary, err
	}
	summary.AlertsCreated = created

	if total, err := o.recalls.Count(ctx); err == nil {
		summary.Total = total
	}
	if len(summary.SourceErrors) == 0 {
		summary.SourceErrors = nil
	}

	run.Info().
		Int("new", summary.New).
		Int("updated", summary.Updated).
		Int("alerts_created", summary.AlertsCreated).
		Dur("elapsed", time.Since(started)).
		Msg("refresh complete")
	return summary, nil
}

// fetchAll runs every adapter concurrently under its own timeout and
// returns the normalized batch per source.
func (o *Orchestrator) fetchAll(ctx context.Context, cutoff time.Time, summary *Summary) [][]models.Recall {
	var mu sync.Mutex
	batches := make([][]models.Recall, 0, len(o.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range o.adapters {
		adapter := adapter
		g.Go(func() error {
			name := adapter.Name()
			srcCtx, cancel := context.WithTimeout(gctx, o.cfg.SourceTimeout)
			defer cancel()

			policy := source.Policy{
				UseCache: true,
				Known: func(externalID string) bool {
					exists, err := o.recalls.Exists(srcCtx, name, externalID)
					return err == nil && exists
				},
			}

			raws, err := adapter.Fetch(srcCtx, cutoff, policy)
			if err != nil {
				o.recordFailure(name, err)
				mu.Lock()
				summary.SourceErrors[string(name)] = err.Error()
				mu.Unlock()
				// Cached or partial data may still have come back.
			} else {
				o.recordSuccess(name)
			}
			if len(raws) == 0 {
				return nil
			}

			batch := normalize.Batch(raws, cutoff, o.logger)
			mu.Lock()
			batches = append(batches, batch)
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; failures are contained per source.
	_ = g.Wait()
	return batches
}

// matchNewRecalls matches everything inserted since the matching
// watermark and advances it past the processed rows. Paging within the
// run uses an (inserted_at, id) cursor, so a timestamp shared across the
// batch boundary cannot skip rows. The persisted watermark is time-only:
// a fresh run re-scans rows sitting exactly on it, and crash-and-rerun
// re-matches at most the last batch; the alert uniqueness constraint
// absorbs both replays.
func (o *Orchestrator) matchNewRecalls(ctx context.Context) (int, error) {
	cursor, err := o.watermarks.Get(ctx, models.StageMatching)
	if err != nil {
		return 0, err
	}
	// The empty id makes the tuple comparison inclusive at the watermark
	// itself, so rows sharing its timestamp are never left behind.
	cursorID := ""

	created := 0
	for {
		batch, err := o.recalls.ListInsertedAfter(ctx, cursor, cursorID, matchBatchSize)
		if err != nil {
			return created, err
		}
		if len(batch) == 0 {
			return created, nil
		}

		candidates, err := o.matcher.Match(ctx, batch)
		if err != nil {
			return created, err
		}

		n, err := o.generator.CreateAlerts(ctx, candidates)
		if err != nil {
			return created, err
		}
		created += n

		cursor = batch[len(batch)-1].InsertedAt
		cursorID = batch[len(batch)-1].ID
		if err := o.watermarks.Advance(ctx, models.StageMatching, cursor); err != nil {
			return created, err
		}
	}
}

func (o *Orchestrator) recordFailure(name models.Source, err error) {
	o.failMu.Lock()
	o.failures[name]++
	count := o.failures[name]
	o.failMu.Unlock()

	event := o.logger.Warn()
	if count >= o.cfg.MaxConsecutiveFailures {
		event = o.logger.Error().Bool("needs_attention", true)
	}
	event.Err(err).Str("source", string(name)).Int("consecutive_failures", count).Msg("source fetch failed")
}

func (o *Orchestrator) recordSuccess(name models.Source) {
	o.failMu.Lock()
	delete(o.failures, name)
	o.failMu.Unlock()
}
