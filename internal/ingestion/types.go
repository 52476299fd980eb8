// Package ingestion accepts document uploads, persists their metadata, raw
// body, and token stream, and announces them on Kafka so the indexing service
// can register them in the right month shard.
package ingestion

import "time"

// UploadRequest is one document submitted for indexing. Body is plain text;
// markup stripping happens before documents reach this service.
type UploadRequest struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Uploader string `json:"uploader"`
	Body     string `json:"body"`
}

// UploadResponse acknowledges an accepted upload.
type UploadResponse struct {
	DocumentID string    `json:"document_id"`
	Shard      string    `json:"shard"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// UploadedEvent announces an accepted document on the document-uploaded
// topic. The indexing consumer appends it to its shard's document map.
type UploadedEvent struct {
	DocumentID string `json:"document_id"`
	Shard      string `json:"shard"`
	URL        string `json:"url"`
	UploadedAt int64  `json:"uploaded_at"`
}

// RebuildEvent requests a full rebuild of one shard's index files on the
// shard-rebuild topic.
type RebuildEvent struct {
	Shard string `json:"shard"`
}
