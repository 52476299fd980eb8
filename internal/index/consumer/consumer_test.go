package consumer

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/docmap"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/builder"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/ingestion"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/tokens"
)

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandleUploadedAppendsToMap(t *testing.T) {
	root := t.TempDir()
	app := docmap.NewAppender(root)
	handle := HandleUploaded(app, nil)

	event := ingestion.UploadedEvent{
		DocumentID: "aaaaaaaa-0000-0000-0000-000000000000",
		Shard:      "03-2026",
		URL:        "https://example.com/doc",
		UploadedAt: 1772323200,
	}
	if err := handle(context.Background(), []byte(event.DocumentID), marshal(t, event)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	id := shard.ID{Year: 2026, Month: time.March}
	n, err := app.Count(id)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
}

func TestHandleUploadedDropsGarbage(t *testing.T) {
	handle := HandleUploaded(docmap.NewAppender(t.TempDir()), nil)

	// Undecodable payloads and bad shard names must be committed, not
	// redelivered forever.
	if err := handle(context.Background(), nil, []byte("not json")); err != nil {
		t.Fatalf("garbage payload: %v", err)
	}
	event := ingestion.UploadedEvent{DocumentID: "x", Shard: "2026-03", URL: "https://e.com", UploadedAt: 1}
	if err := handle(context.Background(), nil, marshal(t, event)); err != nil {
		t.Fatalf("bad shard: %v", err)
	}
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func TestHandleRebuildBuildsAndInvalidates(t *testing.T) {
	indexRoot, tokenRoot := t.TempDir(), t.TempDir()
	id := shard.ID{Year: 2026, Month: time.March}
	app := docmap.NewAppender(indexRoot)
	src := tokens.NewFileSource(tokenRoot)

	docID := "aaaaaaaa-0000-0000-0000-000000000000"
	if _, err := app.Append(id, docID, time.Unix(1772323200, 0), "https://example.com/doc"); err != nil {
		t.Fatal(err)
	}
	if err := src.Write(id, docID, []string{"hello", "world"}); err != nil {
		t.Fatal(err)
	}

	inv := &countingInvalidator{}
	handle := HandleRebuild(builder.New(indexRoot, src, nil), inv)
	if err := handle(context.Background(), nil, marshal(t, ingestion.RebuildEvent{Shard: "03-2026"})); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if inv.calls != 1 {
		t.Fatalf("invalidator called %d times, want 1", inv.calls)
	}

	if _, err := os.Stat(id.DictPath(indexRoot)); err != nil {
		t.Fatalf("dictionary not built: %v", err)
	}
}

func TestHandleRebuildEmptyShardIsNoOp(t *testing.T) {
	inv := &countingInvalidator{}
	handle := HandleRebuild(builder.New(t.TempDir(), tokens.NewFileSource(t.TempDir()), nil), inv)
	if err := handle(context.Background(), nil, marshal(t, ingestion.RebuildEvent{Shard: "01-2026"})); err != nil {
		t.Fatalf("empty shard rebuild: %v", err)
	}
	if inv.calls != 0 {
		t.Fatal("invalidator ran for a skipped rebuild")
	}
}
