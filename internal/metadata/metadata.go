// Package metadata stores per-document metadata in Postgres. The shard files
// carry only what retrieval needs (ID, timestamp, URL); everything else a
// search response shows, titles and uploader identity, lives here.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/postgres"
)

// Document is one row of the metadata store.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Uploader   string    `json:"uploader"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Store wraps document metadata queries.
type Store struct {
	db *postgres.Client
}

// NewStore returns a Store over the given Postgres client.
func NewStore(db *postgres.Client) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the metadata table if it does not exist. gen_random_uuid
// requires Postgres 13 or the pgcrypto extension.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS document_metadata (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title       TEXT NOT NULL,
			url         TEXT NOT NULL,
			uploader    TEXT NOT NULL DEFAULT '',
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_document_metadata_uploaded_at
			ON document_metadata (uploaded_at);`
	if _, err := s.db.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensuring metadata schema: %w", err)
	}
	return nil
}

// Create inserts a document and returns it with the generated ID and the
// stored timestamp.
func (s *Store) Create(ctx context.Context, title, url, uploader string, uploadedAt time.Time) (*Document, error) {
	doc := &Document{Title: title, URL: url, Uploader: uploader}
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO document_metadata (title, url, uploader, uploaded_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, uploaded_at`,
		title, url, uploader, uploadedAt,
	).Scan(&doc.ID, &doc.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting document metadata: %w", err)
	}
	return doc, nil
}

// Get fetches one document by ID.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, title, url, uploader, uploaded_at
		 FROM document_metadata WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.Title, &doc.URL, &doc.Uploader, &doc.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "document %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching document metadata: %w", err)
	}
	return doc, nil
}

// GetBatch fetches metadata for a set of document IDs in one round trip. IDs
// with no row are simply absent from the result; search enrichment treats
// that as a document with no metadata, not an error.
func (s *Store) GetBatch(ctx context.Context, ids []string) (map[string]*Document, error) {
	if len(ids) == 0 {
		return map[string]*Document{}, nil
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, title, url, uploader, uploaded_at
		 FROM document_metadata WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching document metadata batch: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Document, len(ids))
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.URL, &doc.Uploader, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning document metadata row: %w", err)
		}
		out[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document metadata rows: %w", err)
	}
	return out, nil
}
