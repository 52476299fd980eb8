// Package docmap maintains a shard's document map and its companion URL file.
// The map assigns each document a stable ordinal (its record position) that
// posting records refer to; the URL file stores the variable-length source
// URLs the fixed-width map cannot hold, addressed by byte offset.
package docmap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/record"
	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
)

// Appender appends documents to shard maps. Appends to the pair of files must
// not interleave, so a single Appender serializes all writers in a process;
// the indexing consumer is that process's only writer.
type Appender struct {
	mu   sync.Mutex
	root string
}

// NewAppender returns an Appender over index shards rooted at root.
func NewAppender(root string) *Appender {
	return &Appender{root: root}
}

// Append records a document in its shard's map and URL file and returns the
// ordinal it was assigned. The URL line is written first so a crash between
// the two writes leaves a longer URL file but never a map record pointing at
// a missing line.
func (a *Appender) Append(id shard.ID, docID string, uploadedAt time.Time, url string) (int, error) {
	if strings.ContainsRune(url, '\n') {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, 400, "URL for %s contains a newline", docID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(id.Dir(a.root), 0o755); err != nil {
		return 0, fmt.Errorf("create shard dir: %w", err)
	}

	urlFile, err := os.OpenFile(id.URLPath(a.root), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open URL file: %w", err)
	}
	defer urlFile.Close()

	urlStat, err := urlFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat URL file: %w", err)
	}
	urlOffset := urlStat.Size()

	mapFile, err := os.OpenFile(id.MapPath(a.root), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open map file: %w", err)
	}
	defer mapFile.Close()

	mapStat, err := mapFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat map file: %w", err)
	}
	if mapStat.Size()%record.MapRecordWidth != 0 {
		return 0, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "map file for %s is %d bytes, not a multiple of %d", id, mapStat.Size(), record.MapRecordWidth)
	}
	ordinal := int(mapStat.Size() / record.MapRecordWidth)

	rec, err := record.EncodeMap(record.MapRecord{
		DocID:     docID,
		Timestamp: uploadedAt.Unix(),
		URLOffset: urlOffset,
	})
	if err != nil {
		return 0, err
	}

	if _, err := fmt.Fprintln(urlFile, url); err != nil {
		return 0, fmt.Errorf("append URL: %w", err)
	}
	if _, err := mapFile.Write(rec); err != nil {
		return 0, fmt.Errorf("append map record: %w", err)
	}
	return ordinal, nil
}

// Count returns the number of documents mapped in a shard. A shard with no
// map file has zero documents.
func (a *Appender) Count(id shard.ID) (int, error) {
	st, err := os.Stat(id.MapPath(a.root))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat map file: %w", err)
	}
	if st.Size()%record.MapRecordWidth != 0 {
		return 0, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "map file for %s is %d bytes, not a multiple of %d", id, st.Size(), record.MapRecordWidth)
	}
	return int(st.Size() / record.MapRecordWidth), nil
}
