package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
)

// VINSource lists the distinct VINs registered across user products. The
// product repository satisfies this.
type VINSource interface {
	ListDistinctVINs(ctx context.Context) ([]string, error)
}

// vinAdapter looks up open recall campaigns per registered VIN. Campaigns
// shared by several VINs are merged into one record carrying every
// affected VIN, so matching stays exact.
type vinAdapter struct {
	decodeURL string // fmt string, %s = VIN
	recallURL string // fmt string, %s = VIN
	vins      VINSource
	client    *httpClient
	cache     *SnapshotCache
	logger    zerolog.Logger
}

func NewVIN(decodeURL, recallURL string, vins VINSource, client *httpClient, cache *SnapshotCache, logger zerolog.Logger) Adapter {
	return &vinAdapter{
		decodeURL: decodeURL,
		recallURL: recallURL,
		vins:      vins,
		client:    client,
		cache:     cache,
		logger:    logger.With().Str("source", string(models.SourceNHTSAVIN)).Logger(),
	}
}

func (a *vinAdapter) Name() models.Source { return models.SourceNHTSAVIN }

type vinCampaign struct {
	Vehicle            string   `json:"Vehicle,omitempty"`
	Make               string   `json:"Make,omitempty"`
	Summary            string   `json:"Summary,omitempty"`
	ReportReceivedDate string   `json:"ReportReceivedDate,omitempty"`
	VINs               []string `json:"VINs"`
}

func (a *vinAdapter) Fetch(ctx context.Context, cutoff time.Time, policy Policy) ([]RawRecall, error) {
	vinList, err := a.vins.ListDistinctVINs(ctx)
	if err != nil {
		return fallback(a.cache, a.Name(), policy, nil, err)
	}
	if len(vinList) == 0 {
		return nil, nil
	}

	campaigns := make(map[string]*vinCampaign)
	var order []string
	succeeded := 0
	var lastErr error

	for _, vin := range vinList {
		results, err := a.campaignsFor(ctx, vin)
		if err != nil {
			// One bad VIN must not sink the rest of the run.
			a.logger.Warn().Err(err).Str("vin", vin).Msg("campaign lookup failed")
			lastErr = err
			continue
		}
		succeeded++
		if len(results) == 0 {
			continue
		}

		vehicle, vehicleMake := a.decode(ctx, vin)
		for _, result := range results {
			if result.CampaignNumber == "" {
				continue
			}
			existing, ok := campaigns[result.CampaignNumber]
			if !ok {
				existing = &vinCampaign{
					Vehicle:            vehicle,
					Make:               vehicleMake,
					Summary:            result.Summary,
					ReportReceivedDate: result.ReportReceivedDate,
				}
				campaigns[result.CampaignNumber] = existing
				order = append(order, result.CampaignNumber)
			}
			existing.VINs = append(existing.VINs, vin)
		}
	}

	if succeeded == 0 {
		return fallback(a.cache, a.Name(), policy, nil, fmt.Errorf("all %d VIN lookups failed: %w", len(vinList), lastErr))
	}

	raws := make([]RawRecall, 0, len(order))
	for _, number := range order {
		campaign := campaigns[number]
		date := ParseDate(campaign.ReportReceivedDate)
		if beforeCutoff(date, cutoff) {
			continue
		}
		payload, err := json.Marshal(campaign)
		if err != nil {
			continue
		}
		raws = append(raws, RawRecall{
			Source:     a.Name(),
			ExternalID: number,
			RecallDate: date,
			Payload:    payload,
		})
	}

	return fallback(a.cache, a.Name(), policy, raws, nil)
}

type vinCampaignResult struct {
	CampaignNumber     string `json:"NHTSACampaignNumber"`
	Summary            string `json:"Summary"`
	ReportReceivedDate string `json:"ReportReceivedDate"`
}

func (a *vinAdapter) campaignsFor(ctx context.Context, vin string) ([]vinCampaignResult, error) {
	var resp struct {
		Results []vinCampaignResult `json:"results"`
	}
	if err := a.client.getJSON(ctx, fmt.Sprintf(a.recallURL, vin), &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// decode resolves a VIN to a "Make Model Year" label. Failures are fine;
// the campaign record stands on its own.
func (a *vinAdapter) decode(ctx context.Context, vin string) (vehicle, vehicleMake string) {
	var resp struct {
		Results []struct {
			Make      string `json:"Make"`
			Model     string `json:"Model"`
			ModelYear string `json:"ModelYear"`
		} `json:"Results"`
	}
	if err := a.client.getJSON(ctx, fmt.Sprintf(a.decodeURL, vin), &resp); err != nil || len(resp.Results) == 0 {
		return "", ""
	}
	r := resp.Results[0]
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Make, r.Model, r.ModelYear} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, " "), strings.TrimSpace(r.Make)
}
