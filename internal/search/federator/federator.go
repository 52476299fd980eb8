// Package federator answers multi-term queries over a time range by fanning
// out to every month shard the range covers, one lookup task per shard and
// term, and merging the partial scores. Merging is a commutative sum keyed by
// document, so task completion order never changes the result.
package federator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/record"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/retrieval"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/metrics"
)

// DocumentScore is one document's aggregate relevance for a query.
type DocumentScore struct {
	DocID     string `json:"doc_id"`
	Score     int    `json:"score"`
	Shard     string `json:"shard"`
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url"`
}

// Result is a completed federated query.
type Result struct {
	Query     string          `json:"query"`
	Terms     []string        `json:"terms"`
	Shards    []string        `json:"shards"`
	TotalHits int             `json:"total_hits"`
	Documents []DocumentScore `json:"documents"`
}

// Federator coordinates shard lookups. Safe for concurrent use.
type Federator struct {
	engine  *retrieval.Engine
	workers int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns a Federator running at most workers concurrent shard lookups.
func New(engine *retrieval.Engine, workers int, m *metrics.Metrics) *Federator {
	if workers < 1 {
		workers = 1
	}
	return &Federator{
		engine:  engine,
		workers: workers,
		logger:  slog.Default().With("component", "federator"),
		metrics: m,
	}
}

// docKey identifies one document within the query's shard set. Documents
// never span shards, so the pair is unique across the whole fan-out.
type docKey struct {
	shard   shard.ID
	ordinal int
}

// Query runs a whitespace-separated term query over [start, end). Documents
// are returned ordered by score descending, document ID ascending on ties.
// A shard with malformed files contributes nothing and does not abort the
// lookups against its siblings.
func (f *Federator) Query(ctx context.Context, query string, start, end time.Time) (*Result, error) {
	if !start.Before(end) {
		return nil, apperrors.Newf(apperrors.ErrInvalidTimeRange, 400, "start %s is not before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	var terms []string
	for _, raw := range strings.Fields(query) {
		if t := record.NormalizeTerm(raw); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "query has no searchable terms")
	}

	shards := shard.Covering(start, end)
	if f.metrics != nil {
		f.metrics.QueryShards.Observe(float64(len(shards)))
	}

	var (
		mu     sync.Mutex
		scores = make(map[docKey]int)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for _, id := range shards {
		for _, term := range terms {
			id, term := id, term
			g.Go(func() error {
				partial, err := f.lookupOne(gctx, id, term)
				if err != nil {
					return err
				}
				mu.Lock()
				for k, s := range partial {
					scores[k] += s
				}
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs, err := f.resolve(ctx, scores)
	if err != nil {
		return nil, err
	}

	shardNames := make([]string, len(shards))
	for i, id := range shards {
		shardNames[i] = id.String()
	}

	return &Result{
		Query:     query,
		Terms:     terms,
		Shards:    shardNames,
		TotalHits: len(docs),
		Documents: docs,
	}, nil
}

// lookupOne fetches one term's postings from one shard. Faults in the shard's
// files are skipped, not propagated: only context cancellation aborts the
// fan-out.
func (f *Federator) lookupOne(ctx context.Context, id shard.ID, term string) (map[docKey]int, error) {
	entry, ok, err := f.engine.LookupTerm(ctx, id, term)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.skip(id, term, err)
		return nil, nil
	}
	if !ok {
		if f.metrics != nil {
			f.metrics.TermLookupsTotal.WithLabelValues("miss").Inc()
		}
		return nil, nil
	}
	if f.metrics != nil {
		f.metrics.TermLookupsTotal.WithLabelValues("hit").Inc()
	}

	postings, err := f.engine.FetchPostings(ctx, id, entry)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.skip(id, term, err)
		return nil, nil
	}

	partial := make(map[docKey]int, len(postings))
	for _, p := range postings {
		partial[docKey{shard: id, ordinal: p.Ordinal}] += p.Score
	}
	return partial, nil
}

func (f *Federator) skip(id shard.ID, term string, err error) {
	f.logger.Warn("skipping shard lookup", "shard", id.String(), "term", term, "error", err)
	if f.metrics != nil {
		f.metrics.TermLookupsTotal.WithLabelValues("error").Inc()
		f.metrics.ShardSkipsTotal.Inc()
	}
}

// resolve joins merged scores against each shard's document map and URL file
// and orders the result.
func (f *Federator) resolve(ctx context.Context, scores map[docKey]int) ([]DocumentScore, error) {
	docs := make([]DocumentScore, 0, len(scores))
	for k, score := range scores {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := f.engine.ResolveDocument(ctx, k.shard, k.ordinal)
		if err != nil {
			f.skip(k.shard, "", err)
			continue
		}
		url, err := f.engine.ResolveURL(ctx, k.shard, rec.URLOffset)
		if err != nil {
			f.skip(k.shard, "", err)
			continue
		}
		docs = append(docs, DocumentScore{
			DocID:     rec.DocID,
			Score:     score,
			Shard:     k.shard.String(),
			Timestamp: rec.Timestamp,
			URL:       url,
		})
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
	return docs, nil
}
