package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/blob"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/metadata"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/tokens"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/kafka"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/metrics"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/resilience"
)

// Publisher runs the accept path for one upload: metadata row, raw blob,
// token stream, then the Kafka announcement.
type Publisher struct {
	store    *metadata.Store
	blobs    blob.Store
	tokens   *tokens.FileSource
	producer *kafka.Producer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewPublisher wires the accept path. producer may be nil in tests; the
// announcement is then skipped.
func NewPublisher(store *metadata.Store, blobs blob.Store, toks *tokens.FileSource, producer *kafka.Producer, m *metrics.Metrics) *Publisher {
	return &Publisher{
		store:    store,
		blobs:    blobs,
		tokens:   toks,
		producer: producer,
		logger:   slog.Default().With("component", "ingestion-publisher"),
		metrics:  m,
		now:      time.Now,
	}
}

// BlobKey returns where a document's raw body is stored.
func BlobKey(id shard.ID, docID string) string {
	return fmt.Sprintf("raw/%s/%s", id, docID)
}

// Accept validates and persists one upload. The metadata insert assigns the
// document ID and the upload time fixes its shard. Durable state (metadata,
// blob, tokens) must all land before the event is published; a failed publish
// is logged and left for the shard's next rebuild to reconcile rather than
// failing an upload that is already persisted.
func (p *Publisher) Accept(ctx context.Context, req *UploadRequest) (*UploadResponse, error) {
	if err := ValidateUpload(req); err != nil {
		return nil, err
	}

	uploadedAt := p.now().UTC()
	id := shard.FromTime(uploadedAt)

	doc, err := p.store.Create(ctx, strings.TrimSpace(req.Title), req.URL, req.Uploader, uploadedAt)
	if err != nil {
		return nil, fmt.Errorf("persist metadata: %w", err)
	}

	key := BlobKey(id, doc.ID)
	err = resilience.Retry(ctx, "blob-put", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return p.blobs.Put(ctx, key, strings.NewReader(req.Body))
	})
	if err != nil {
		return nil, fmt.Errorf("persist raw document: %w", err)
	}

	if err := p.tokens.Write(id, doc.ID, Tokenize(req.Body)); err != nil {
		return nil, fmt.Errorf("persist token stream: %w", err)
	}

	if p.producer != nil {
		event := UploadedEvent{
			DocumentID: doc.ID,
			Shard:      id.String(),
			URL:        req.URL,
			UploadedAt: doc.UploadedAt.Unix(),
		}
		err := resilience.Retry(ctx, "publish-uploaded", resilience.RetryConfig{MaxAttempts: 3}, func() error {
			return p.producer.Publish(ctx, kafka.Event{Key: doc.ID, Value: event})
		})
		if err != nil {
			p.logger.Error("document persisted but announcement failed",
				"document_id", doc.ID, "shard", id.String(), "error", err)
		}
	}

	if p.metrics != nil {
		p.metrics.DocumentsUploadedTotal.Inc()
	}
	p.logger.Info("document accepted", "document_id", doc.ID, "shard", id.String())

	return &UploadResponse{
		DocumentID: doc.ID,
		Shard:      id.String(),
		UploadedAt: doc.UploadedAt,
	}, nil
}
