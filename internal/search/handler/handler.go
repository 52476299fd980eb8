// Package handler exposes the search API: a federated, cached, ranked query
// over the month shards, enriched with document metadata when the metadata
// store is healthy.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/metadata"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/cache"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/federator"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/ranker"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/config"
	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/metrics"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/resilience"
)

// SearchHit is one ranked result with metadata joined in. Title and Uploader
// are empty when enrichment is degraded or the metadata row is gone.
type SearchHit struct {
	DocID     string `json:"doc_id"`
	Score     int    `json:"score"`
	Shard     string `json:"shard"`
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Uploader  string `json:"uploader,omitempty"`
}

// SearchResponse is the body of a successful search request.
type SearchResponse struct {
	Query     string      `json:"query"`
	Shards    []string    `json:"shards"`
	TotalHits int         `json:"total_hits"`
	Cached    bool        `json:"cached"`
	Hits      []SearchHit `json:"hits"`
}

// Handler serves the search routes.
type Handler struct {
	federator *federator.Federator
	cache     *cache.QueryCache
	store     *metadata.Store
	breaker   *resilience.CircuitBreaker
	cfg       config.SearchConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New wires the search pipeline. store may be nil; results then carry shard
// data only.
func New(f *federator.Federator, qc *cache.QueryCache, store *metadata.Store, cfg config.SearchConfig, m *metrics.Metrics) *Handler {
	return &Handler{
		federator: f,
		cache:     qc,
		store:     store,
		breaker:   resilience.NewCircuitBreaker("metadata-enrichment", resilience.CircuitBreakerConfig{}),
		cfg:       cfg,
		logger:    slog.Default().With("component", "search-handler"),
		metrics:   m,
	}
}

// Register mounts the search routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	// Method-qualified ServeMux patterns need Go 1.22+; guard the method
	// explicitly so the route works on the Go 1.21 toolchain.
	mux.HandleFunc("/search", requireMethod(http.MethodGet, h.handleSearch))
}

func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// handleSearch answers GET /search?q=...&start=...&end=...&limit=...
// with start and end as unix seconds.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	began := time.Now()
	q := r.URL.Query().Get("q")
	start, err := parseUnix(r.URL.Query().Get("start"))
	if err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "start must be unix seconds"))
		return
	}
	end, err := parseUnix(r.URL.Query().Get("end"))
	if err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "end must be unix seconds"))
		return
	}
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var (
		result *federator.Result
		cached bool
	)
	err = resilience.WithTimeout(r.Context(), h.cfg.QueryTimeout, "federated-query", func(ctx context.Context) error {
		var qErr error
		result, cached, qErr = h.cache.GetOrCompute(ctx, q, start, end, func(ctx context.Context) (*federator.Result, error) {
			return h.federator.Query(ctx, q, start, end)
		})
		return qErr
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable, "query timed out")
		}
		h.writeError(w, err)
		return
	}

	top := ranker.TopK(result.Documents, limit)
	hits := h.enrich(r.Context(), top)

	if h.metrics != nil {
		status := "miss"
		if cached {
			status = "hit"
		}
		h.metrics.QueryLatency.WithLabelValues(status).Observe(time.Since(began).Seconds())
	}

	h.writeJSON(w, http.StatusOK, &SearchResponse{
		Query:     result.Query,
		Shards:    result.Shards,
		TotalHits: result.TotalHits,
		Cached:    cached,
		Hits:      hits,
	})
}

// enrich joins ranked documents against the metadata store. The join runs
// behind a circuit breaker: when Postgres is down, searches keep answering
// from shard data alone instead of failing.
func (h *Handler) enrich(ctx context.Context, docs []federator.DocumentScore) []SearchHit {
	hits := make([]SearchHit, len(docs))
	for i, d := range docs {
		hits[i] = SearchHit{
			DocID:     d.DocID,
			Score:     d.Score,
			Shard:     d.Shard,
			Timestamp: d.Timestamp,
			URL:       d.URL,
		}
	}
	if h.store == nil || len(docs) == 0 {
		return hits
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.DocID
	}

	var rows map[string]*metadata.Document
	err := h.breaker.Execute(func() error {
		var bErr error
		rows, bErr = h.store.GetBatch(ctx, ids)
		return bErr
	})
	if err != nil {
		h.logger.Warn("metadata enrichment degraded", "error", err)
		return hits
	}

	for i := range hits {
		if doc, ok := rows[hits[i].DocID]; ok {
			hits[i].Title = doc.Title
			hits[i].Uploader = doc.Uploader
		}
	}
	return hits
}

func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.cfg.DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
	}
	if limit > h.cfg.MaxResults {
		limit = h.cfg.MaxResults
	}
	return limit, nil
}

func parseUnix(raw string) (time.Time, error) {
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
