package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/recallguard/recallguard-api/internal/models"
)

const (
	fdaPageSize = 100
	fdaMaxPages = 50
)

// fdaAdapter pulls enforcement reports from one openFDA endpoint. The same
// adapter serves the food, drug and device feeds; they differ only in
// source name and URL. Pages are requested newest-first so a known
// external ID marks the end of new data.
type fdaAdapter struct {
	source models.Source
	url    string
	client *httpClient
	cache  *SnapshotCache
}

func NewFDA(source models.Source, url string, client *httpClient, cache *SnapshotCache) Adapter {
	return &fdaAdapter{source: source, url: url, client: client, cache: cache}
}

func (a *fdaAdapter) Name() models.Source { return a.source }

func (a *fdaAdapter) Fetch(ctx context.Context, cutoff time.Time, policy Policy) ([]RawRecall, error) {
	search := fmt.Sprintf("report_date:[%s+TO+%s]",
		cutoff.Format("20060102"), time.Now().UTC().Format("20060102"))

	var raws []RawRecall
	for page := 0; page < fdaMaxPages; page++ {
		requestURL := fmt.Sprintf("%s?search=%s&sort=report_date:desc&limit=%d&skip=%d",
			a.url, search, fdaPageSize, page*fdaPageSize)

		var resp struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := a.client.getJSON(ctx, requestURL, &resp); err != nil {
			return fallback(a.cache, a.Name(), policy, dedup(raws), err)
		}

		sawKnown := false
		for _, record := range resp.Results {
			var envelope struct {
				RecallNumber   string `json:"recall_number"`
				InitiationDate string `json:"recall_initiation_date"`
				ReportDate     string `json:"report_date"`
			}
			if err := json.Unmarshal(record, &envelope); err != nil || envelope.RecallNumber == "" {
				continue
			}
			date := ParseDate(envelope.InitiationDate)
			if date == nil {
				date = ParseDate(envelope.ReportDate)
			}
			if beforeCutoff(date, cutoff) {
				continue
			}
			if policy.Known != nil && policy.Known(envelope.RecallNumber) {
				// Known records are still returned so mutable fields get
				// refreshed; they only stop further paging.
				sawKnown = true
			}
			raws = append(raws, RawRecall{
				Source:     a.Name(),
				ExternalID: envelope.RecallNumber,
				RecallDate: date,
				Payload:    record,
			})
		}

		if sawKnown || len(resp.Results) < fdaPageSize {
			break
		}
	}

	return fallback(a.cache, a.Name(), policy, dedup(raws), nil)
}
