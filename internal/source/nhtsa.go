package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/recallguard/recallguard-api/internal/models"
)

const nhtsaMaxPages = 25

// nhtsaAdapter pulls vehicle recall campaigns from the NHTSA feed, paging
// newest-first until a page is empty, a known campaign shows up, or the
// page falls wholly outside the cutoff window.
type nhtsaAdapter struct {
	url    string
	client *httpClient
	cache  *SnapshotCache
}

func NewNHTSA(url string, client *httpClient, cache *SnapshotCache) Adapter {
	return &nhtsaAdapter{url: url, client: client, cache: cache}
}

func (a *nhtsaAdapter) Name() models.Source { return models.SourceNHTSA }

func (a *nhtsaAdapter) Fetch(ctx context.Context, cutoff time.Time, policy Policy) ([]RawRecall, error) {
	var raws []RawRecall
	for page := 1; page <= nhtsaMaxPages; page++ {
		requestURL := fmt.Sprintf("%s?page=%d", a.url, page)

		var resp struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := a.client.getJSON(ctx, requestURL, &resp); err != nil {
			return fallback(a.cache, a.Name(), policy, dedup(raws), err)
		}
		if len(resp.Results) == 0 {
			break
		}

		sawKnown := false
		allStale := true
		for _, record := range resp.Results {
			var envelope struct {
				CampaignNumber string `json:"NHTSACampaignNumber"`
				ReportDate     string `json:"ReportReceivedDate"`
			}
			if err := json.Unmarshal(record, &envelope); err != nil || envelope.CampaignNumber == "" {
				continue
			}
			date := ParseDate(envelope.ReportDate)
			if beforeCutoff(date, cutoff) {
				continue
			}
			allStale = false
			if policy.Known != nil && policy.Known(envelope.CampaignNumber) {
				sawKnown = true
			}
			raws = append(raws, RawRecall{
				Source:     a.Name(),
				ExternalID: envelope.CampaignNumber,
				RecallDate: date,
				Payload:    record,
			})
		}

		if sawKnown || allStale {
			break
		}
	}

	return fallback(a.cache, a.Name(), policy, dedup(raws), nil)
}
