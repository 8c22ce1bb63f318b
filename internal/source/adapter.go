package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/recallguard/recallguard-api/internal/models"
)

// RawRecall is the source-specific payload fragment an adapter hands to
// the normalizer. It is ephemeral and never persisted as-is; Payload is
// the untouched upstream record.
type RawRecall struct {
	Source     models.Source
	ExternalID string
	// RecallDate is parsed by the adapter only to drive cutoff/early-stop
	// pagination; nil means the upstream did not provide a usable date.
	RecallDate *time.Time
	Payload    json.RawMessage
}

// KnownFunc reports whether the store already holds a recall with the
// given external ID for the adapter's source. Pagination is newest-first,
// so the first known record marks the boundary of new data.
type KnownFunc func(externalID string) bool

// Policy controls a single fetch run. Scheduled refreshes always attempt
// a live fetch; the disk snapshot is consulted only after the live fetch
// fails entirely.
type Policy struct {
	UseCache bool
	Known    KnownFunc
}

// Adapter is a source-specific fetch+parse unit. Implementations are pure
// with respect to the recall store: they fetch, parse, and dedup within
// the run, and leave persistence to the orchestrator.
type Adapter interface {
	Name() models.Source
	Fetch(ctx context.Context, cutoff time.Time, policy Policy) ([]RawRecall, error)
}

// dedup drops repeated external IDs within a single fetch, keeping the
// first (newest) occurrence.
func dedup(raws []RawRecall) []RawRecall {
	seen := make(map[string]struct{}, len(raws))
	out := raws[:0]
	for _, raw := range raws {
		if _, ok := seen[raw.ExternalID]; ok {
			continue
		}
		seen[raw.ExternalID] = struct{}{}
		out = append(out, raw)
	}
	return out
}

// beforeCutoff treats an absent date as "today": a record without a date
// is never excluded by the cutoff window.
func beforeCutoff(date *time.Time, cutoff time.Time) bool {
	return date != nil && date.Before(cutoff)
}
