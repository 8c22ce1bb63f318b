package normalize

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/source"
)

func cpscRaw(t *testing.T, payload map[string]interface{}) source.RawRecall {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return source.RawRecall{
		Source:     models.SourceCPSC,
		ExternalID: "26-100",
		Payload:    data,
	}
}

func TestNormalizeCPSCFieldPriority(t *testing.T) {
	t.Parallel()

	raw := cpscRaw(t, map[string]interface{}{
		"Title":   "Press release title",
		"Product": "Acme Toaster",
		"Products": []interface{}{
			map[string]interface{}{"Name": "Toaster Model X", "Type": "Appliances", "UPC": "012345678905"},
		},
		"Hazards":       []interface{}{map[string]interface{}{"Name": "Fire hazard"}},
		"Manufacturers": []interface{}{map[string]interface{}{"Name": "Acme"}},
		"URL":           "https://cpsc.gov/recalls/26-100",
		"RecallDate":    "2026-08-01",
	})

	recall, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	// The top-level Product field outranks Products[0].Name and Title.
	if recall.Product != "Acme Toaster" {
		t.Fatalf("unexpected product: %s", recall.Product)
	}
	if recall.Brand != "Acme" {
		t.Fatalf("unexpected brand: %s", recall.Brand)
	}
	if recall.Category != "Appliances" {
		t.Fatalf("unexpected category: %s", recall.Category)
	}
	if recall.Hazard != "Fire hazard" {
		t.Fatalf("unexpected hazard: %s", recall.Hazard)
	}
	if !reflect.DeepEqual(recall.UPCs, []string{"012345678905"}) {
		t.Fatalf("unexpected upcs: %v", recall.UPCs)
	}
	if recall.RecallDate == nil || recall.RecallDate.Format("2006-01-02") != "2026-08-01" {
		t.Fatalf("unexpected recall date: %v", recall.RecallDate)
	}
}

func TestNormalizeCPSCFallbackFields(t *testing.T) {
	t.Parallel()

	raw := cpscRaw(t, map[string]interface{}{
		"Title": "Press release title",
		"Products": []interface{}{
			map[string]interface{}{"Name": "Toaster Model X"},
		},
	})

	recall, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if recall.Product != "Toaster Model X" {
		t.Fatalf("expected Products[0].Name fallback, got %s", recall.Product)
	}
	if recall.RecallDate != nil {
		t.Fatalf("expected nil date, got %v", recall.RecallDate)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	t.Parallel()

	raw := cpscRaw(t, map[string]interface{}{
		"Product":    "Acme Toaster",
		"RecallDate": "2026-08-01",
	})

	first, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize returned error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("normalization is not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestNormalizeRejectsMissingExternalID(t *testing.T) {
	t.Parallel()

	raw := source.RawRecall{
		Source:  models.SourceCPSC,
		Payload: json.RawMessage(`{"Product":"Acme Toaster"}`),
	}
	if _, err := Normalize(raw); err == nil {
		t.Fatal("expected error for missing external id")
	}
}

func TestNormalizeMiscScraperPayload(t *testing.T) {
	t.Parallel()

	raw := source.RawRecall{
		Source:     models.MiscSource("safetyblog"),
		ExternalID: "acme-stroller-fall-hazard",
		Payload:    json.RawMessage(`{"title":"Acme Stroller Fall Hazard","url":"https://example.com/r/1","date":"2026-08-10","site":"safetyblog"}`),
	}

	recall, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if recall.Product != "Acme Stroller Fall Hazard" {
		t.Fatalf("unexpected product: %s", recall.Product)
	}
	if recall.DetailsURL != "https://example.com/r/1" {
		t.Fatalf("unexpected url: %s", recall.DetailsURL)
	}
}

func TestBatchSkipsMalformedAndStale(t *testing.T) {
	t.Parallel()

	cutoff := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	raws := []source.RawRecall{
		cpscRaw(t, map[string]interface{}{"Product": "Fresh", "RecallDate": "2026-08-15"}),
		{Source: models.SourceCPSC, ExternalID: "bad-json", Payload: json.RawMessage(`{`)},
		cpscRaw(t, map[string]interface{}{"Product": "Stale", "RecallDate": "2026-01-01"}),
	}

	recalls := Batch(raws, cutoff, zerolog.Nop())
	if len(recalls) != 1 {
		t.Fatalf("expected 1 surviving record, got %d", len(recalls))
	}
	if recalls[0].Product != "Fresh" {
		t.Fatalf("unexpected survivor: %s", recalls[0].Product)
	}
}
