// Package retrieval answers term lookups against shard files on disk without
// loading them into memory. Dictionary probing mirrors the builder exactly:
// the same hash picks the home slot, modulo the slot count derived from the
// file size, and the same linear scan walks forward until the term or an
// empty slot appears.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/hashtable"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/record"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
)

// TermEntry is a dictionary hit for one term in one shard.
type TermEntry struct {
	Term         string
	DocFreq      int
	PostingStart int
}

// Engine reads shard files under a fixed root. It holds no file handles
// between calls and is safe for concurrent use.
type Engine struct {
	root string
}

// NewEngine returns an Engine over shards rooted at root.
func NewEngine(root string) *Engine {
	return &Engine{root: root}
}

// LookupTerm probes a shard's dictionary for a normalized term. The boolean
// reports presence: an absent term, an absent dictionary file, and an absent
// shard all return (zero, false, nil) because none of them is a fault.
func (e *Engine) LookupTerm(ctx context.Context, id shard.ID, term string) (TermEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return TermEntry{}, false, err
	}

	f, err := os.Open(id.DictPath(e.root))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TermEntry{}, false, nil
		}
		return TermEntry{}, false, fmt.Errorf("open dictionary for %s: %w", id, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return TermEntry{}, false, fmt.Errorf("stat dictionary for %s: %w", id, err)
	}
	if st.Size() == 0 || st.Size()%record.DictRecordWidth != 0 {
		return TermEntry{}, false, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "dictionary for %s is %d bytes, not a positive multiple of %d", id, st.Size(), record.DictRecordWidth)
	}
	slots := int(st.Size() / record.DictRecordWidth)

	buf := make([]byte, record.DictRecordWidth)
	idx := hashtable.Bucket(term, slots)
	// A full dictionary has no empty slot to stop at, so the probe is
	// bounded by the slot count.
	for probed := 0; probed < slots; probed++ {
		if _, err := f.ReadAt(buf, int64(idx)*record.DictRecordWidth); err != nil {
			return TermEntry{}, false, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "dictionary for %s: short read at slot %d: %v", id, idx, err)
		}
		rec, ok, err := record.DecodeDictionary(buf)
		if err != nil {
			return TermEntry{}, false, err
		}
		if !ok {
			return TermEntry{}, false, nil
		}
		if rec.Term == term {
			return TermEntry{Term: rec.Term, DocFreq: rec.DocFreq, PostingStart: rec.PostingStart}, true, nil
		}
		idx = (idx + 1) % slots
	}
	return TermEntry{}, false, nil
}

// FetchPostings reads the contiguous posting run a dictionary entry points
// at. A run extending past the end of the file means the dictionary and
// postings are out of sync.
func (e *Engine) FetchPostings(ctx context.Context, id shard.ID, entry TermEntry) ([]record.PostingRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entry.DocFreq <= 0 {
		return nil, nil
	}

	f, err := os.Open(id.PostPath(e.root))
	if err != nil {
		return nil, fmt.Errorf("open postings for %s: %w", id, err)
	}
	defer f.Close()

	buf := make([]byte, entry.DocFreq*record.PostRecordWidth)
	if _, err := f.ReadAt(buf, int64(entry.PostingStart)*record.PostRecordWidth); err != nil {
		return nil, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "postings for %s: %q points past end of file: %v", id, entry.Term, err)
	}

	recs := make([]record.PostingRecord, 0, entry.DocFreq)
	for off := 0; off < len(buf); off += record.PostRecordWidth {
		rec, err := record.DecodePosting(buf[off : off+record.PostRecordWidth])
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ResolveDocument reads the map record for a document ordinal.
func (e *Engine) ResolveDocument(ctx context.Context, id shard.ID, ordinal int) (record.MapRecord, error) {
	if err := ctx.Err(); err != nil {
		return record.MapRecord{}, err
	}
	if ordinal < 0 {
		return record.MapRecord{}, apperrors.Newf(apperrors.ErrInvalidInput, 400, "negative document ordinal %d", ordinal)
	}

	f, err := os.Open(id.MapPath(e.root))
	if err != nil {
		return record.MapRecord{}, fmt.Errorf("open document map for %s: %w", id, err)
	}
	defer f.Close()

	buf := make([]byte, record.MapRecordWidth)
	if _, err := f.ReadAt(buf, int64(ordinal)*record.MapRecordWidth); err != nil {
		return record.MapRecord{}, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "document map for %s: no record at ordinal %d: %v", id, ordinal, err)
	}
	return record.DecodeMap(buf)
}

// ResolveURL reads the source URL stored at a byte offset in the shard's
// companion URL file.
func (e *Engine) ResolveURL(ctx context.Context, id shard.ID, offset int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if offset < 0 {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, 400, "negative URL offset %d", offset)
	}

	f, err := os.Open(id.URLPath(e.root))
	if err != nil {
		return "", fmt.Errorf("open URL file for %s: %w", id, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek URL file for %s: %w", id, err)
	}

	// URLs are newline-terminated and variable length; read in chunks until
	// the terminator.
	var line []byte
	buf := make([]byte, 256)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			for i := 0; i < n; i++ {
				if buf[i] == '\n' {
					return string(append(line, buf[:i]...)), nil
				}
			}
			line = append(line, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", apperrors.Newf(apperrors.ErrMalformedRecord, 500, "URL file for %s: unterminated line at offset %d", id, offset)
			}
			return "", fmt.Errorf("read URL file for %s: %w", id, err)
		}
	}
}
