package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type staticVINs []string

func (s staticVINs) ListDistinctVINs(context.Context) ([]string, error) {
	return s, nil
}

func TestVINFetchMergesCampaignsAcrossVINs(t *testing.T) {
	t.Parallel()

	recent := time.Now().UTC().Format("01/02/2006")
	// Both VINs share campaign 26V-001; the second also has 26V-002.
	campaigns := map[string][]map[string]string{
		"VIN-A": {{"NHTSACampaignNumber": "26V-001", "Summary": "Brake line may leak", "ReportReceivedDate": recent}},
		"VIN-B": {
			{"NHTSACampaignNumber": "26V-001", "Summary": "Brake line may leak", "ReportReceivedDate": recent},
			{"NHTSACampaignNumber": "26V-002", "Summary": "Airbag inflator rupture", "ReportReceivedDate": recent},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/recalls"):
			vin := r.URL.Query().Get("vin")
			json.NewEncoder(w).Encode(map[string]interface{}{"results": campaigns[vin]})
		case strings.HasPrefix(r.URL.Path, "/decode"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"Results": []map[string]string{{"Make": "ACME", "Model": "Roadster", "ModelYear": "2024"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := NewVIN(
		server.URL+"/decode/%s",
		server.URL+"/recalls?vin=%s",
		staticVINs{"VIN-A", "VIN-B"},
		testClient(),
		nil,
		zerolog.Nop(),
	)
	cutoff := time.Now().AddDate(0, -1, 0).UTC()

	raws, err := adapter.Fetch(context.Background(), cutoff, Policy{})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected 2 merged campaigns, got %d", len(raws))
	}

	var shared vinCampaign
	if err := json.Unmarshal(raws[0].Payload, &shared); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if raws[0].ExternalID != "26V-001" {
		t.Fatalf("unexpected campaign: %s", raws[0].ExternalID)
	}
	if len(shared.VINs) != 2 {
		t.Fatalf("expected campaign to carry both VINs, got %v", shared.VINs)
	}
	if shared.Vehicle != "ACME Roadster 2024" {
		t.Fatalf("unexpected vehicle label: %s", shared.Vehicle)
	}
}

func TestVINFetchNoRegisteredVINs(t *testing.T) {
	t.Parallel()

	adapter := NewVIN("%s", "%s", staticVINs{}, testClient(), nil, zerolog.Nop())
	raws, err := adapter.Fetch(context.Background(), time.Now().AddDate(0, -1, 0), Policy{})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(raws) != 0 {
		t.Fatalf("expected no records, got %d", len(raws))
	}
}
