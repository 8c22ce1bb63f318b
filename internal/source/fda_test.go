package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
)

func testClient() *httpClient {
	return newHTTPClient(5*time.Second, 1000, zerolog.Nop())
}

func fdaRecord(number, date string) map[string]string {
	return map[string]string{
		"recall_number":          number,
		"recall_initiation_date": date,
		"product_description":    "Widget " + number,
	}
}

func TestFDAFetchSinglePage(t *testing.T) {
	t.Parallel()

	recent := time.Now().UTC().Format("20060102")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []interface{}{
				fdaRecord("F-001", recent),
				fdaRecord("F-002", recent),
				fdaRecord("F-003", recent),
			},
		})
	}))
	defer server.Close()

	adapter := NewFDA(models.SourceFDAFood, server.URL, testClient(), nil)
	cutoff := time.Now().AddDate(0, -1, 0).UTC()

	raws, err := adapter.Fetch(context.Background(), cutoff, Policy{})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(raws) != 3 {
		t.Fatalf("expected 3 records, got %d", len(raws))
	}
	if raws[0].ExternalID != "F-001" || raws[0].Source != models.SourceFDAFood {
		t.Fatalf("unexpected first record: %+v", raws[0])
	}
	if raws[0].RecallDate == nil {
		t.Fatal("expected recall date to be parsed")
	}
}

func TestFDAFetchStopsAtKnownID(t *testing.T) {
	t.Parallel()

	recent := time.Now().UTC().Format("20060102")
	var pages int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pages, 1)
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		results := make([]interface{}, 0, fdaPageSize)
		for i := 0; i < fdaPageSize; i++ {
			results = append(results, fdaRecord(fmt.Sprintf("F-%03d", skip+i), recent))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	}))
	defer server.Close()

	adapter := NewFDA(models.SourceFDADrug, server.URL, testClient(), nil)
	cutoff := time.Now().AddDate(0, -1, 0).UTC()
	policy := Policy{
		Known: func(externalID string) bool { return externalID == "F-050" },
	}

	raws, err := adapter.Fetch(context.Background(), cutoff, policy)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got := atomic.LoadInt32(&pages); got != 1 {
		t.Fatalf("expected pagination to stop after 1 page, requested %d", got)
	}
	// The known record is still returned so its mutable fields refresh.
	if len(raws) != fdaPageSize {
		t.Fatalf("expected full first page, got %d records", len(raws))
	}
}

func TestFDAFetchBadRequestUsesSnapshot(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such search", http.StatusBadRequest)
	}))
	defer server.Close()

	cache := NewSnapshotCache(t.TempDir())
	if err := cache.Store(models.SourceFDAFood, testRaws("F-old")); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	adapter := NewFDA(models.SourceFDAFood, server.URL, testClient(), cache)
	cutoff := time.Now().AddDate(0, -1, 0).UTC()

	raws, err := adapter.Fetch(context.Background(), cutoff, Policy{UseCache: true})
	if err == nil {
		t.Fatal("expected fetch error to propagate alongside cached data")
	}
	if len(raws) != 1 || raws[0].ExternalID != "F-old" {
		t.Fatalf("expected snapshot fallback, got %+v", raws)
	}
}
