package remedy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/alerting"
	"github.com/recallguard/recallguard-api/internal/config"
	"github.com/recallguard/recallguard-api/internal/dispatch"
	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/repository"
)

// polledSources are the upstreams whose detail pages carry a remedy
// section worth re-checking. The FDA/USDA enforcement feeds publish the
// remedy in the record itself, and scraped misc sites have no detail
// page; neither is polled.
var polledSources = []models.Source{
	models.SourceCPSC,
	models.SourceNHTSA,
}

// RemedyChange is published on the broker when a recall's remedy moves.
type RemedyChange struct {
	RecallID string `json:"recall_id"`
	Seq      int    `json:"seq"`
	Text     string `json:"text"`
}

// Poller re-fetches recall detail pages and appends to the remedy history
// when the published remedy changes. Changes re-alert exactly the users
// already notified about the recall; the remedy sequence number makes
// those re-alerts at-most-once per change.
type Poller struct {
	recalls    repository.RecallRepository
	alerts     repository.AlertRepository
	watermarks repository.WatermarkRepository
	generator  *alerting.Generator
	broker     *dispatch.Broker
	client     *http.Client
	minAge     time.Duration
	logger     zerolog.Logger
}

func NewPoller(
	recalls repository.RecallRepository,
	alerts repository.AlertRepository,
	watermarks repository.WatermarkRepository,
	generator *alerting.Generator,
	broker *dispatch.Broker,
	cfg config.RemedyConfig,
	logger zerolog.Logger,
) *Poller {
	return &Poller{
		recalls:    recalls,
		alerts:     alerts,
		watermarks: watermarks,
		generator:  generator,
		broker:     broker,
		client:     &http.Client{Timeout: 20 * time.Second},
		minAge:     cfg.MinAge,
		logger:     logger.With().Str("component", "remedy_poller").Logger(),
	}
}

// Run polls every eligible recall once. Per-recall failures are logged
// and skipped; the next scheduled run tries again.
func (p *Poller) Run(ctx context.Context) (int, error) {
	recalls, err := p.recalls.ListBySources(ctx, polledSources)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range recalls {
		recall := recalls[i]
		// The gap is measured from the last remedy update, falling back
		// to the fetch time for recalls with no remedy yet. Rows seen
		// less than minAge ago were just alerted or just re-checked;
		// burning a detail-page request on them buys nothing.
		lastSeen := recall.FetchedAt
		if last := recall.LastRemedy(); last != nil {
			lastSeen = last.Time
		}
		if time.Since(lastSeen) < p.minAge {
			continue
		}

		updated, err := p.pollOne(ctx, recall)
		if err != nil {
			p.logger.Warn().Err(err).Str("recall_id", recall.ID).Str("url", recall.DetailsURL).Msg("remedy poll failed")
			continue
		}
		if updated {
			changed++
		}
	}

	if err := p.watermarks.Advance(ctx, models.StageRemedyPoll, time.Now().UTC()); err != nil {
		p.logger.Warn().Err(err).Msg("remedy watermark advance failed")
	}

	p.logger.Info().Int("polled", len(recalls)).Int("changed", changed).Msg("remedy poll complete")
	return changed, nil
}

func (p *Poller) pollOne(ctx context.Context, recall models.Recall) (bool, error) {
	html, err := p.fetch(ctx, recall.DetailsURL)
	if err != nil {
		return false, err
	}

	text := ExtractRemedy(html)
	if text == "" {
		return false, nil
	}

	last := recall.LastRemedy()
	if last != nil && strings.TrimSpace(last.Text) == strings.TrimSpace(text) {
		return false, nil
	}

	seq, err := p.recalls.AppendRemedyUpdate(ctx, recall.ID, models.RemedyUpdate{
		Time: time.Now().UTC(),
		Text: text,
	})
	if err != nil {
		return false, err
	}

	// The first observed remedy is the baseline, not a change; only
	// subsequent moves re-alert.
	if last == nil {
		p.logger.Debug().Str("recall_id", recall.ID).Msg("remedy baseline recorded")
		return true, nil
	}

	userIDs, err := p.alerts.ListNotifiedUserIDs(ctx, recall.ID)
	if err != nil {
		return true, err
	}
	created, err := p.generator.CreateRemedyAlerts(ctx, recall, userIDs, seq)
	if err != nil {
		return true, err
	}
	if p.broker != nil {
		p.broker.Publish(dispatch.TopicRemedyUpdates, RemedyChange{RecallID: recall.ID, Seq: seq, Text: text})
	}

	p.logger.Info().Str("recall_id", recall.ID).Int("seq", seq).Int("re_alerts", created).Msg("remedy changed")
	return true, nil
}

func (p *Poller) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "RecallGuard/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("detail page returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
