// Package consumer holds the Kafka message handlers of the indexing service:
// one appends uploaded documents to their shard's document map, the other
// rebuilds a shard's index files on request.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/docmap"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/builder"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/ingestion"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/kafka"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/metrics"
)

// Invalidator drops cached query results after a shard changes. The search
// service's query cache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// HandleUploaded returns the handler for the document-uploaded topic. A
// malformed event is logged and committed: redelivering it cannot make it
// parse. Append failures are returned so the message is redelivered.
func HandleUploaded(appender *docmap.Appender, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "uploaded-consumer")
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.UploadedEvent](value)
		if err != nil {
			logger.Error("dropping undecodable uploaded event", "key", string(key), "error", err)
			return nil
		}
		id, err := shard.Parse(event.Shard)
		if err != nil {
			logger.Error("dropping uploaded event with bad shard", "shard", event.Shard, "error", err)
			return nil
		}

		ordinal, err := appender.Append(id, event.DocumentID, time.Unix(event.UploadedAt, 0).UTC(), event.URL)
		if err != nil {
			if m != nil {
				m.MapAppendsTotal.WithLabelValues("error").Inc()
			}
			if errors.Is(err, apperrors.ErrInvalidInput) {
				logger.Error("dropping unmappable uploaded event", "document_id", event.DocumentID, "error", err)
				return nil
			}
			return err
		}
		if m != nil {
			m.MapAppendsTotal.WithLabelValues("success").Inc()
		}
		logger.Info("document mapped", "document_id", event.DocumentID, "shard", id.String(), "ordinal", ordinal)
		return nil
	}
}

// HandleRebuild returns the handler for the shard-rebuild topic. A rebuild of
// an empty shard is a no-op, not a redeliverable failure. After a successful
// rebuild the query cache is invalidated so stale rankings disappear.
func HandleRebuild(b *builder.Builder, inv Invalidator) kafka.MessageHandler {
	logger := slog.Default().With("component", "rebuild-consumer")
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.RebuildEvent](value)
		if err != nil {
			logger.Error("dropping undecodable rebuild event", "key", string(key), "error", err)
			return nil
		}
		id, err := shard.Parse(event.Shard)
		if err != nil {
			logger.Error("dropping rebuild event with bad shard", "shard", event.Shard, "error", err)
			return nil
		}

		stats, err := b.Build(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrEmptyShard) {
				logger.Warn("skipping rebuild of empty shard", "shard", id.String())
				return nil
			}
			return err
		}
		logger.Info("shard rebuilt",
			"shard", id.String(),
			"documents", stats.Documents,
			"distinct_terms", stats.DistinctTerms,
			"postings", stats.Postings)

		if inv != nil {
			if err := inv.Invalidate(ctx); err != nil {
				logger.Warn("cache invalidation failed after rebuild", "shard", id.String(), "error", err)
			}
		}
		return nil
	}
}
