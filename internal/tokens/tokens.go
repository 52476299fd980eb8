// Package tokens reads the tokenized form of uploaded documents. Tokenization
// itself happens upstream in the moderation pipeline; by the time a shard is
// built every approved document has a token file with one token per line.
package tokens

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/shard"
	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
)

// Source yields the token stream of one document within one shard.
type Source interface {
	Tokens(ctx context.Context, id shard.ID, docID string) ([]string, error)
}

// FileSource reads token files laid out as <root>/<MM-YYYY>/<docID>.txt.
type FileSource struct {
	root string
}

// NewFileSource returns a Source rooted at the given directory.
func NewFileSource(root string) *FileSource {
	return &FileSource{root: root}
}

// Path returns where the token file for a document lives.
func (s *FileSource) Path(id shard.ID, docID string) string {
	return filepath.Join(s.root, id.String(), docID+".txt")
}

// Tokens reads one token per line, preserving order and duplicates. Blank
// lines are skipped. A missing file is reported as ErrTokenStreamMissing so a
// build can abort instead of silently indexing a partial shard.
func (s *FileSource) Tokens(ctx context.Context, id shard.ID, docID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path(id, docID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrTokenStreamMissing, 500, "document %s in shard %s", docID, id)
		}
		return nil, fmt.Errorf("open token stream for %s: %w", docID, err)
	}
	defer f.Close()

	var toks []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			toks = append(toks, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read token stream for %s: %w", docID, err)
	}
	return toks, nil
}

// Write stores a document's token stream, one token per line. The ingestion
// path uses it so a later shard build finds every referenced document.
func (s *FileSource) Write(id shard.ID, docID string, toks []string) error {
	dir := filepath.Join(s.root, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	f, err := os.Create(s.Path(id, docID))
	if err != nil {
		return fmt.Errorf("create token stream for %s: %w", docID, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, tok := range toks {
		if _, err := fmt.Fprintln(w, tok); err != nil {
			return fmt.Errorf("write token stream for %s: %w", docID, err)
		}
	}
	return w.Flush()
}
