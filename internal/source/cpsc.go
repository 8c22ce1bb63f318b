package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/recallguard/recallguard-api/internal/models"
)

// cpscAdapter pulls consumer-product recalls from the CPSC REST endpoint.
// The endpoint supports server-side date filtering, so a single request
// covers the whole cutoff window.
type cpscAdapter struct {
	url    string
	client *httpClient
	cache  *SnapshotCache
}

func NewCPSC(url string, client *httpClient, cache *SnapshotCache) Adapter {
	return &cpscAdapter{url: url, client: client, cache: cache}
}

func (a *cpscAdapter) Name() models.Source { return models.SourceCPSC }

func (a *cpscAdapter) Fetch(ctx context.Context, cutoff time.Time, policy Policy) ([]RawRecall, error) {
	requestURL := fmt.Sprintf("%s?format=json&RecallDateStart=%s", a.url, cutoff.Format("2006-01-02"))

	var records []json.RawMessage
	if err := a.client.getJSON(ctx, requestURL, &records); err != nil {
		return fallback(a.cache, a.Name(), policy, nil, err)
	}

	raws := make([]RawRecall, 0, len(records))
	for _, record := range records {
		var envelope struct {
			RecallID     json.Number `json:"RecallID"`
			RecallNumber string      `json:"RecallNumber"`
			RecallDate   string      `json:"RecallDate"`
		}
		if err := json.Unmarshal(record, &envelope); err != nil {
			continue
		}
		id := envelope.RecallNumber
		if id == "" {
			id = envelope.RecallID.String()
		}
		if id == "" {
			continue
		}
		date := ParseDate(envelope.RecallDate)
		if beforeCutoff(date, cutoff) {
			continue
		}
		raws = append(raws, RawRecall{
			Source:     a.Name(),
			ExternalID: id,
			RecallDate: date,
			Payload:    record,
		})
	}

	return fallback(a.cache, a.Name(), policy, dedup(raws), nil)
}
