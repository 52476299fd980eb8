package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/docmap"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/builder"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/retrieval"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/cache"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/federator"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/tokens"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/config"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	indexRoot, tokenRoot := t.TempDir(), t.TempDir()
	id := shard.ID{Year: 2026, Month: time.August}
	app := docmap.NewAppender(indexRoot)
	src := tokens.NewFileSource(tokenRoot)
	at := time.Date(2026, time.August, 5, 0, 0, 0, 0, time.UTC)

	docs := map[string][]string{
		"aaaaaaaa-0000-0000-0000-000000000000": {"golang", "indexing"},
		"bbbbbbbb-0000-0000-0000-000000000000": {"golang", "golang", "shards"},
		"cccccccc-0000-0000-0000-000000000000": {"unrelated", "words"},
		"dddddddd-0000-0000-0000-000000000000": {"more", "padding"},
	}
	for _, docID := range []string{
		"aaaaaaaa-0000-0000-0000-000000000000",
		"bbbbbbbb-0000-0000-0000-000000000000",
		"cccccccc-0000-0000-0000-000000000000",
		"dddddddd-0000-0000-0000-000000000000",
	} {
		if _, err := app.Append(id, docID, at, "https://example.com/"+docID); err != nil {
			t.Fatal(err)
		}
		if err := src.Write(id, docID, docs[docID]); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := builder.New(indexRoot, src, nil).Build(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	cfg := config.SearchConfig{DefaultLimit: 10, MaxResults: 100, Workers: 4, QueryTimeout: 5 * time.Second}
	f := federator.New(retrieval.NewEngine(indexRoot), cfg.Workers, nil)
	return New(f, cache.New(nil, time.Minute, nil), nil, cfg, nil)
}

func doSearch(t *testing.T, h *Handler, query string) (*httptest.ResponseRecorder, *SearchResponse) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?"+query, nil))
	if rec.Code != http.StatusOK {
		return rec, nil
	}
	var resp SearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, &resp
}

func searchRange() (int64, int64) {
	start := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC).Unix()
	end := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC).Unix()
	return start, end
}

func TestSearchReturnsRankedHits(t *testing.T) {
	h := newTestHandler(t)
	start, end := searchRange()

	rec, resp := doSearch(t, h, fmt.Sprintf("q=golang&start=%d&end=%d", start, end))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if resp.TotalHits != 2 || len(resp.Hits) != 2 {
		t.Fatalf("response = %+v, want 2 hits", resp)
	}
	// golang appears twice in document B of three tokens, once in two of
	// document A's: B must outrank A.
	if resp.Hits[0].DocID != "bbbbbbbb-0000-0000-0000-000000000000" {
		t.Fatalf("top hit = %+v", resp.Hits[0])
	}
	if resp.Hits[0].URL == "" || resp.Hits[0].Timestamp == 0 {
		t.Fatalf("hit missing shard fields: %+v", resp.Hits[0])
	}
}

func TestSearchHonorsLimit(t *testing.T) {
	h := newTestHandler(t)
	start, end := searchRange()

	rec, resp := doSearch(t, h, fmt.Sprintf("q=golang&start=%d&end=%d&limit=1", start, end))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(resp.Hits) != 1 || resp.TotalHits != 2 {
		t.Fatalf("limit=1 gave %d hits of %d total", len(resp.Hits), resp.TotalHits)
	}
}

func TestSearchRejectsBadParams(t *testing.T) {
	h := newTestHandler(t)
	start, end := searchRange()

	cases := []string{
		fmt.Sprintf("q=golang&start=abc&end=%d", end),
		fmt.Sprintf("q=golang&start=%d&end=", start),
		fmt.Sprintf("q=golang&start=%d&end=%d&limit=0", start, end),
		fmt.Sprintf("q=golang&start=%d&end=%d&limit=-3", start, end),
		fmt.Sprintf("q=golang&start=%d&end=%d", end, start),
		fmt.Sprintf("q=%%20&start=%d&end=%d", start, end),
	}
	for _, query := range cases {
		rec, _ := doSearch(t, h, query)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", query, rec.Code)
		}
	}
}

func TestSearchNoHitsIsEmptyNotError(t *testing.T) {
	h := newTestHandler(t)
	start, end := searchRange()

	rec, resp := doSearch(t, h, fmt.Sprintf("q=nonexistent&start=%d&end=%d", start, end))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.TotalHits != 0 || len(resp.Hits) != 0 {
		t.Fatalf("response = %+v, want empty", resp)
	}
}
