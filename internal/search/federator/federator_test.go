package federator

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/docmap"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/builder"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/retrieval"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/tokens"
	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
)

// seedMonth builds one shard with the given documents.
func seedMonth(t *testing.T, indexRoot, tokenRoot string, id shard.ID, docs map[string][]string, order []string) {
	t.Helper()
	app := docmap.NewAppender(indexRoot)
	src := tokens.NewFileSource(tokenRoot)
	at := id.Time().Add(24 * time.Hour)
	for _, docID := range order {
		if _, err := app.Append(id, docID, at, "https://example.com/"+docID); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := src.Write(id, docID, docs[docID]); err != nil {
			t.Fatalf("write tokens: %v", err)
		}
	}
	if _, err := builder.New(indexRoot, src, nil).Build(context.Background(), id); err != nil {
		t.Fatalf("build %s: %v", id, err)
	}
}

func TestQueryRejectsBadRange(t *testing.T) {
	f := New(retrieval.NewEngine(t.TempDir()), 4, nil)
	at := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.Query(context.Background(), "anything", at, at)
	if !errors.Is(err, apperrors.ErrInvalidTimeRange) {
		t.Fatalf("equal bounds: err = %v, want ErrInvalidTimeRange", err)
	}
	_, err = f.Query(context.Background(), "anything", at.Add(time.Hour), at)
	if !errors.Is(err, apperrors.ErrInvalidTimeRange) {
		t.Fatalf("inverted bounds: err = %v, want ErrInvalidTimeRange", err)
	}
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	f := New(retrieval.NewEngine(t.TempDir()), 4, nil)
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.Query(context.Background(), "   ", start, start.Add(time.Hour))
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestQuerySpansTwoShards(t *testing.T) {
	indexRoot, tokenRoot := t.TempDir(), t.TempDir()
	jan := shard.ID{Year: 2026, Month: time.January}
	feb := shard.ID{Year: 2026, Month: time.February}
	docJan := "aaaaaaaa-0000-0000-0000-000000000000"
	docFeb := "bbbbbbbb-0000-0000-0000-000000000000"

	seedMonth(t, indexRoot, tokenRoot, jan,
		map[string][]string{docJan: {"archive", "history"}}, []string{docJan})
	seedMonth(t, indexRoot, tokenRoot, feb,
		map[string][]string{docFeb: {"archive", "future"}}, []string{docFeb})

	f := New(retrieval.NewEngine(indexRoot), 4, nil)
	res, err := f.Query(context.Background(), "archive",
		time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if len(res.Shards) != 2 || res.Shards[0] != "01-2026" || res.Shards[1] != "02-2026" {
		t.Fatalf("shards = %v, want [01-2026 02-2026]", res.Shards)
	}
	if res.TotalHits != 2 {
		t.Fatalf("TotalHits = %d, want 2", res.TotalHits)
	}
	got := map[string]string{}
	for _, d := range res.Documents {
		got[d.DocID] = d.Shard
	}
	if got[docJan] != "01-2026" || got[docFeb] != "02-2026" {
		t.Fatalf("documents = %+v", res.Documents)
	}
	for _, d := range res.Documents {
		if d.URL == "" || d.Timestamp == 0 {
			t.Fatalf("document %s missing URL or timestamp: %+v", d.DocID, d)
		}
	}
}

func TestMultiTermScoresSum(t *testing.T) {
	indexRoot, tokenRoot := t.TempDir(), t.TempDir()
	mar := shard.ID{Year: 2026, Month: time.March}
	docA := "aaaaaaaa-0000-0000-0000-000000000000"
	docB := "bbbbbbbb-0000-0000-0000-000000000000"
	docC := "cccccccc-0000-0000-0000-000000000000"
	docD := "dddddddd-0000-0000-0000-000000000000"

	// "alpha" and "beta" each hit two of four documents, keeping idf
	// positive; docA holds both terms so its score is the sum of both
	// contributions.
	seedMonth(t, indexRoot, tokenRoot, mar, map[string][]string{
		docA: {"alpha", "beta"},
		docB: {"alpha", "filler"},
		docC: {"beta", "filler"},
		docD: {"filler", "filler"},
	}, []string{docA, docB, docC, docD})

	f := New(retrieval.NewEngine(indexRoot), 4, nil)
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	one, err := f.Query(context.Background(), "alpha", start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("single-term query: %v", err)
	}
	both, err := f.Query(context.Background(), "alpha beta", start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("two-term query: %v", err)
	}

	score := func(res *Result, id string) (int, bool) {
		for _, d := range res.Documents {
			if d.DocID == id {
				return d.Score, true
			}
		}
		return 0, false
	}

	aAlpha, ok := score(one, docA)
	if !ok {
		t.Fatalf("docA missing from single-term result %+v", one.Documents)
	}
	aBoth, ok := score(both, docA)
	if !ok {
		t.Fatalf("docA missing from two-term result %+v", both.Documents)
	}
	if aBoth <= aAlpha {
		t.Fatalf("two-term score %d not greater than single-term %d", aBoth, aAlpha)
	}
	if both.TotalHits != 3 {
		t.Fatalf("TotalHits = %d, want 3", both.TotalHits)
	}
}

func TestQueryNormalizesTerms(t *testing.T) {
	indexRoot, tokenRoot := t.TempDir(), t.TempDir()
	jun := shard.ID{Year: 2026, Month: time.June}
	doc := "aaaaaaaa-0000-0000-0000-000000000000"
	seedMonth(t, indexRoot, tokenRoot, jun,
		map[string][]string{doc: {"cafe", "other"}}, []string{doc})

	f := New(retrieval.NewEngine(indexRoot), 2, nil)
	start := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	res, err := f.Query(context.Background(), "CAFÉ", start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.TotalHits != 1 || res.Terms[0] != "cafe" {
		t.Fatalf("result = %+v, want normalized hit on cafe", res)
	}
}

func TestMalformedShardIsSkippedNotFatal(t *testing.T) {
	indexRoot, tokenRoot := t.TempDir(), t.TempDir()
	jan := shard.ID{Year: 2026, Month: time.January}
	feb := shard.ID{Year: 2026, Month: time.February}
	doc := "aaaaaaaa-0000-0000-0000-000000000000"

	seedMonth(t, indexRoot, tokenRoot, jan,
		map[string][]string{doc: {"archive"}}, []string{doc})

	// February's dictionary is garbage.
	if err := os.MkdirAll(feb.Dir(indexRoot), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(feb.DictPath(indexRoot), []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New(retrieval.NewEngine(indexRoot), 4, nil)
	res, err := f.Query(context.Background(), "archive",
		time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.TotalHits != 1 || res.Documents[0].Shard != "01-2026" {
		t.Fatalf("result = %+v, want the January hit alone", res)
	}
}

func TestResultOrderIsDeterministic(t *testing.T) {
	indexRoot, tokenRoot := t.TempDir(), t.TempDir()
	jul := shard.ID{Year: 2026, Month: time.July}
	ids := []string{
		"aaaaaaaa-0000-0000-0000-000000000000",
		"bbbbbbbb-0000-0000-0000-000000000000",
		"cccccccc-0000-0000-0000-000000000000",
	}
	docs := map[string][]string{
		ids[0]: {"tied", "pad"},
		ids[1]: {"tied", "pad"},
		ids[2]: {"tied", "pad"},
	}
	seedMonth(t, indexRoot, tokenRoot, jul, docs, ids)

	f := New(retrieval.NewEngine(indexRoot), 4, nil)
	start := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)

	var first []string
	for run := 0; run < 5; run++ {
		res, err := f.Query(context.Background(), "tied", start, start.Add(time.Hour))
		if err != nil {
			t.Fatalf("Query run %d: %v", run, err)
		}
		order := make([]string, len(res.Documents))
		for i, d := range res.Documents {
			order[i] = d.DocID
		}
		if run == 0 {
			first = order
			continue
		}
		for i := range order {
			if order[i] != first[i] {
				t.Fatalf("run %d order %v differs from first run %v", run, order, first)
			}
		}
	}
}
