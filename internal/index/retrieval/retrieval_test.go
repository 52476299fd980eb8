package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/docmap"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/builder"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/record"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/tokens"
	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
)

var testShard = shard.ID{Year: 2026, Month: time.May}

// buildFixture builds a real one-shard index and returns its root.
func buildFixture(t *testing.T) string {
	t.Helper()
	indexRoot, tokenRoot := t.TempDir(), t.TempDir()
	app := docmap.NewAppender(indexRoot)
	src := tokens.NewFileSource(tokenRoot)
	at := time.Date(2026, time.May, 15, 8, 0, 0, 0, time.UTC)

	docs := []struct {
		id, url string
		toks    []string
	}{
		{"aaaaaaaa-0000-0000-0000-000000000000", "https://example.com/papers/1", []string{"temporal", "index", "temporal"}},
		{"bbbbbbbb-0000-0000-0000-000000000000", "https://example.com/papers/2", []string{"index", "shard"}},
	}
	for _, d := range docs {
		if _, err := app.Append(testShard, d.id, at, d.url); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := src.Write(testShard, d.id, d.toks); err != nil {
			t.Fatalf("write tokens: %v", err)
		}
	}
	if _, err := builder.New(indexRoot, src, nil).Build(context.Background(), testShard); err != nil {
		t.Fatalf("build: %v", err)
	}
	return indexRoot
}

func TestLookupTermHit(t *testing.T) {
	root := buildFixture(t)
	e := NewEngine(root)
	ctx := context.Background()

	entry, ok, err := e.LookupTerm(ctx, testShard, "temporal")
	if err != nil || !ok {
		t.Fatalf("LookupTerm: ok=%v err=%v", ok, err)
	}
	if entry.Term != "temporal" || entry.DocFreq != 1 {
		t.Fatalf("entry = %+v", entry)
	}

	postings, err := e.FetchPostings(ctx, testShard, entry)
	if err != nil {
		t.Fatalf("FetchPostings: %v", err)
	}
	if len(postings) != 1 || postings[0].Ordinal != 0 {
		t.Fatalf("postings = %+v", postings)
	}

	doc, err := e.ResolveDocument(ctx, testShard, postings[0].Ordinal)
	if err != nil {
		t.Fatalf("ResolveDocument: %v", err)
	}
	if doc.DocID != "aaaaaaaa-0000-0000-0000-000000000000" {
		t.Fatalf("doc = %+v", doc)
	}

	url, err := e.ResolveURL(ctx, testShard, doc.URLOffset)
	if err != nil {
		t.Fatalf("ResolveURL: %v", err)
	}
	if url != "https://example.com/papers/1" {
		t.Fatalf("url = %q", url)
	}
}

func TestLookupTermSpansDocuments(t *testing.T) {
	root := buildFixture(t)
	e := NewEngine(root)
	ctx := context.Background()

	entry, ok, err := e.LookupTerm(ctx, testShard, "index")
	if err != nil || !ok {
		t.Fatalf("LookupTerm: ok=%v err=%v", ok, err)
	}
	if entry.DocFreq != 2 {
		t.Fatalf("index df = %d, want 2", entry.DocFreq)
	}
	postings, err := e.FetchPostings(ctx, testShard, entry)
	if err != nil {
		t.Fatalf("FetchPostings: %v", err)
	}
	if len(postings) != 2 || postings[0].Ordinal != 0 || postings[1].Ordinal != 1 {
		t.Fatalf("postings = %+v, want ordinals 0,1", postings)
	}
}

func TestLookupTermMiss(t *testing.T) {
	root := buildFixture(t)
	e := NewEngine(root)

	_, ok, err := e.LookupTerm(context.Background(), testShard, "absent")
	if err != nil {
		t.Fatalf("LookupTerm: %v", err)
	}
	if ok {
		t.Fatal("absent term reported present")
	}
}

func TestLookupMissingShardIsNotAnError(t *testing.T) {
	e := NewEngine(t.TempDir())
	_, ok, err := e.LookupTerm(context.Background(), testShard, "anything")
	if err != nil {
		t.Fatalf("LookupTerm on missing shard: %v", err)
	}
	if ok {
		t.Fatal("missing shard reported a hit")
	}
}

func TestLookupTerminatesOnFullDictionary(t *testing.T) {
	// A handcrafted dictionary with every slot occupied and no match: the
	// probe must stop after one full cycle rather than spin forever.
	root := t.TempDir()
	if err := os.MkdirAll(testShard.Dir(root), 0o755); err != nil {
		t.Fatal(err)
	}
	var data []byte
	for i := 0; i < 4; i++ {
		b, err := record.EncodeDictionary(record.DictionaryRecord{Term: "filler", DocFreq: 1, PostingStart: i})
		if err != nil {
			t.Fatal(err)
		}
		data = append(data, b...)
	}
	if err := os.WriteFile(testShard.DictPath(root), data, 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(root)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok, err := e.LookupTerm(context.Background(), testShard, "needle")
		if err != nil || ok {
			t.Errorf("full-table lookup: ok=%v err=%v", ok, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lookup did not terminate on a full dictionary")
	}
}

func TestTruncatedDictionaryIsMalformed(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(testShard.Dir(root), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(testShard.DictPath(root), []byte("not a whole record"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(root)
	_, _, err := e.LookupTerm(context.Background(), testShard, "anything")
	if !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Fatalf("err = %v, want ErrMalformedRecord", err)
	}
}

func TestFetchPostingsPastEnd(t *testing.T) {
	root := buildFixture(t)
	e := NewEngine(root)

	_, err := e.FetchPostings(context.Background(), testShard, TermEntry{Term: "phantom", DocFreq: 50, PostingStart: 0})
	if !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Fatalf("err = %v, want ErrMalformedRecord", err)
	}
}

func TestResolveDocumentPastEnd(t *testing.T) {
	root := buildFixture(t)
	e := NewEngine(root)

	_, err := e.ResolveDocument(context.Background(), testShard, 99)
	if !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Fatalf("err = %v, want ErrMalformedRecord", err)
	}
}

func TestResolveURLUnterminated(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(testShard.Dir(root), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(testShard.Dir(root), shard.URLFileName), []byte("https://example.com/no-newline"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(root)
	_, err := e.ResolveURL(context.Background(), testShard, 0)
	if !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Fatalf("err = %v, want ErrMalformedRecord", err)
	}
}
