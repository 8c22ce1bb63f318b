package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/recallguard/recallguard-api/internal/models"
)

// usdaAdapter pulls meat/poultry recall notices from the FSIS API, which
// returns the full active feed in one response.
type usdaAdapter struct {
	url    string
	client *httpClient
	cache  *SnapshotCache
}

func NewUSDA(url string, client *httpClient, cache *SnapshotCache) Adapter {
	return &usdaAdapter{url: url, client: client, cache: cache}
}

func (a *usdaAdapter) Name() models.Source { return models.SourceUSDA }

func (a *usdaAdapter) Fetch(ctx context.Context, cutoff time.Time, policy Policy) ([]RawRecall, error) {
	var records []json.RawMessage
	if err := a.client.getJSON(ctx, a.url, &records); err != nil {
		return fallback(a.cache, a.Name(), policy, nil, err)
	}

	raws := make([]RawRecall, 0, len(records))
	for _, record := range records {
		var envelope struct {
			RecallNumber string `json:"field_recall_number"`
			RecallDate   string `json:"field_recall_date"`
		}
		if err := json.Unmarshal(record, &envelope); err != nil || envelope.RecallNumber == "" {
			continue
		}
		date := ParseDate(envelope.RecallDate)
		if beforeCutoff(date, cutoff) {
			continue
		}
		raws = append(raws, RawRecall{
			Source:     a.Name(),
			ExternalID: envelope.RecallNumber,
			RecallDate: date,
			Payload:    record,
		})
	}

	return fallback(a.cache, a.Name(), policy, dedup(raws), nil)
}
