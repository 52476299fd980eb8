// Package builder constructs a month shard's dictionary and postings files
// from its document map and the token streams of its documents. A build is a
// full rebuild: it derives everything from the map and token files and
// replaces the previous dictionary and postings atomically, so rebuilding an
// unchanged shard produces byte-identical output.
package builder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/hashtable"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/record"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/tokens"
	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/metrics"
)

// ScoreScale converts fractional TF-IDF weights to the integers the posting
// format stores. Changing it invalidates every shard already on disk.
const ScoreScale = 10000

// Stats summarizes a completed build.
type Stats struct {
	Shard         shard.ID
	Documents     int
	DistinctTerms int
	Postings      int
	Elapsed       time.Duration
}

// Builder rebuilds shard indexes. Safe for sequential use; concurrent builds
// of the same shard are the caller's responsibility to avoid.
type Builder struct {
	root    string
	source  tokens.Source
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns a Builder writing shards under root and reading token streams
// from source. Metrics may be nil in tests.
func New(root string, source tokens.Source, m *metrics.Metrics) *Builder {
	return &Builder{
		root:    root,
		source:  source,
		logger:  slog.Default().With("component", "index-builder"),
		metrics: m,
	}
}

// termStats accumulates one term's raw occurrence counts across the shard's
// documents, in document first-appearance order.
type termStats struct {
	docs   []int // ordinals
	counts []int // occurrences per ordinal, parallel to docs
}

// Build rebuilds the dictionary and postings for one shard. A document listed
// in the map whose token stream is missing aborts the build: a shard that
// silently dropped documents would be worse than no shard at all.
func (b *Builder) Build(ctx context.Context, id shard.ID) (*Stats, error) {
	started := time.Now()
	stats, err := b.build(ctx, id)
	elapsed := time.Since(started)

	if b.metrics != nil {
		b.metrics.ShardBuildDuration.Observe(elapsed.Seconds())
		if err != nil {
			b.metrics.ShardBuildsTotal.WithLabelValues("error").Inc()
		} else {
			b.metrics.ShardBuildsTotal.WithLabelValues("success").Inc()
			b.metrics.ShardDocuments.WithLabelValues(id.String()).Set(float64(stats.Documents))
		}
	}
	if err != nil {
		b.logger.Error("shard build failed", "shard", id.String(), "error", err)
		return nil, err
	}

	stats.Elapsed = elapsed
	b.logger.Info("shard build complete",
		"shard", id.String(),
		"documents", stats.Documents,
		"distinct_terms", stats.DistinctTerms,
		"postings", stats.Postings,
		"duration", elapsed)
	return stats, nil
}

func (b *Builder) build(ctx context.Context, id shard.ID) (*Stats, error) {
	docs, err := b.readDocumentMap(id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.Newf(apperrors.ErrEmptyShard, 404, "shard %s has no documents to index", id)
	}

	// First pass: raw counts. Term iteration order must not depend on map
	// iteration, so first appearance across the corpus fixes the order.
	var order []string
	terms := make(map[string]*termStats)
	totals := make(map[int]int) // ordinal -> token count

	for ordinal, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		toks, err := b.source.Tokens(ctx, id, doc.DocID)
		if err != nil {
			return nil, err
		}
		if len(toks) == 0 {
			continue
		}
		totals[ordinal] = len(toks)

		for _, tok := range toks {
			term := record.NormalizeTerm(tok)
			if term == "" {
				continue
			}
			ts, ok := terms[term]
			if !ok {
				ts = &termStats{}
				terms[term] = ts
				order = append(order, term)
			}
			if n := len(ts.docs); n > 0 && ts.docs[n-1] == ordinal {
				ts.counts[n-1]++
			} else {
				ts.docs = append(ts.docs, ordinal)
				ts.counts = append(ts.counts, 1)
			}
		}
	}

	// Second pass: scores. idf depends on each term's final document
	// frequency, so it cannot be computed until all documents are counted.
	n := float64(len(docs))
	tbl := hashtable.New(len(order))
	totalPostings := 0
	for _, term := range order {
		ts := terms[term]
		idf := math.Log(n / float64(1+len(ts.docs)))
		for i, ordinal := range ts.docs {
			tf := float64(ts.counts[i]) / float64(totals[ordinal])
			score := int(math.Round(tf * idf * ScoreScale))
			if !tbl.Insert(term, record.PostingRecord{Score: score, Ordinal: ordinal}) {
				return nil, apperrors.Newf(apperrors.ErrInternal, 500, "dictionary table full inserting %q", term)
			}
			totalPostings++
		}
	}

	postings, err := b.writeShard(id, tbl)
	if err != nil {
		return nil, err
	}
	if postings != totalPostings {
		return nil, apperrors.Newf(apperrors.ErrInternal, 500, "wrote %d postings, accumulated %d", postings, totalPostings)
	}

	return &Stats{
		Shard:         id,
		Documents:     len(docs),
		DistinctTerms: len(order),
		Postings:      postings,
	}, nil
}

// readDocumentMap loads the shard's map records in ordinal order.
func (b *Builder) readDocumentMap(id shard.ID) ([]record.MapRecord, error) {
	f, err := os.Open(id.MapPath(b.root))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open document map: %w", err)
	}
	defer f.Close()

	var docs []record.MapRecord
	r := bufio.NewReader(f)
	buf := make([]byte, record.MapRecordWidth)
	for {
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "document map for %s truncated at record %d", id, len(docs))
		}
		rec, err := record.DecodeMap(buf)
		if err != nil {
			return nil, err
		}
		docs = append(docs, rec)
	}
}

// writeShard serializes the table to the shard's dictionary and postings
// files. Both are written to temporary files and renamed into place so a
// failed build never leaves a half-written shard visible to readers.
func (b *Builder) writeShard(id shard.ID, tbl *hashtable.Table) (int, error) {
	dir := id.Dir(b.root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create shard dir: %w", err)
	}

	dictPath := id.DictPath(b.root)
	postPath := id.PostPath(b.root)

	dictTmp, err := os.Create(dictPath + ".tmp")
	if err != nil {
		return 0, fmt.Errorf("create dictionary temp file: %w", err)
	}
	defer dictTmp.Close()
	postTmp, err := os.Create(postPath + ".tmp")
	if err != nil {
		return 0, fmt.Errorf("create postings temp file: %w", err)
	}
	defer postTmp.Close()

	dictW := bufio.NewWriter(dictTmp)
	postW := bufio.NewWriter(postTmp)

	// Slot order is serialization order. The dictionary's posting-start
	// offsets are a running counter over the postings emitted so far, which
	// makes each term's postings a contiguous run.
	written := 0
	var walkErr error
	tbl.Walk(func(_ int, term string, postings hashtable.Postings, occupied bool) {
		if walkErr != nil {
			return
		}
		if !occupied {
			_, walkErr = dictW.Write(record.EncodeEmptySlot())
			return
		}
		rec, err := record.EncodeDictionary(record.DictionaryRecord{
			Term:         term,
			DocFreq:      len(postings),
			PostingStart: written,
		})
		if err != nil {
			walkErr = err
			return
		}
		if _, walkErr = dictW.Write(rec); walkErr != nil {
			return
		}
		for _, p := range postings {
			pb, err := record.EncodePosting(p)
			if err != nil {
				walkErr = err
				return
			}
			if _, walkErr = postW.Write(pb); walkErr != nil {
				return
			}
			written++
		}
	})
	if walkErr != nil {
		return 0, walkErr
	}

	if err := dictW.Flush(); err != nil {
		return 0, fmt.Errorf("flush dictionary: %w", err)
	}
	if err := postW.Flush(); err != nil {
		return 0, fmt.Errorf("flush postings: %w", err)
	}
	if err := dictTmp.Close(); err != nil {
		return 0, fmt.Errorf("close dictionary temp file: %w", err)
	}
	if err := postTmp.Close(); err != nil {
		return 0, fmt.Errorf("close postings temp file: %w", err)
	}

	if err := os.Rename(dictTmp.Name(), dictPath); err != nil {
		return 0, fmt.Errorf("publish dictionary: %w", err)
	}
	if err := os.Rename(postTmp.Name(), postPath); err != nil {
		return 0, fmt.Errorf("publish postings: %w", err)
	}
	return written, nil
}
