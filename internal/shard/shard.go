// Package shard identifies the calendar-month partitions of the index and
// locates their on-disk files. A shard owns one triple of fixed-width record
// files (dictionary, postings, document map) plus the companion URL file, all
// under a directory named after the month (MM-YYYY).
package shard

import (
	"fmt"
	"path/filepath"
	"time"

	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
)

// File names within a shard directory.
const (
	DictFileName = "dict.txt"
	PostFileName = "post.txt"
	MapFileName  = "map.txt"
	URLFileName  = "urls.txt"
)

// ID identifies one month shard.
type ID struct {
	Year  int
	Month time.Month
}

// FromTime returns the shard that owns documents uploaded at t (UTC).
func FromTime(t time.Time) ID {
	u := t.UTC()
	return ID{Year: u.Year(), Month: u.Month()}
}

// Parse parses an MM-YYYY shard identifier.
func Parse(s string) (ID, error) {
	t, err := time.Parse("01-2006", s)
	if err != nil {
		return ID{}, apperrors.Newf(apperrors.ErrInvalidInput, 400, "invalid shard identifier %q: want MM-YYYY", s)
	}
	return FromTime(t), nil
}

// String renders the identifier as MM-YYYY.
func (id ID) String() string {
	return fmt.Sprintf("%02d-%04d", int(id.Month), id.Year)
}

// Time returns midnight UTC on the first day of the shard's month.
func (id ID) Time() time.Time {
	return time.Date(id.Year, id.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the following month's shard.
func (id ID) Next() ID {
	return FromTime(id.Time().AddDate(0, 1, 0))
}

// Before reports whether id's month precedes other's.
func (id ID) Before(other ID) bool {
	if id.Year != other.Year {
		return id.Year < other.Year
	}
	return id.Month < other.Month
}

// Covering expands a time range to the ordered list of shards whose months
// intersect it, inclusive of both endpoints' months.
func Covering(start, end time.Time) []ID {
	first := FromTime(start)
	last := FromTime(end)
	ids := make([]ID, 0, 4)
	for id := first; !last.Before(id); id = id.Next() {
		ids = append(ids, id)
	}
	return ids
}

// Dir returns the shard's directory under the index data root.
func (id ID) Dir(root string) string {
	return filepath.Join(root, id.String())
}

// DictPath returns the path of the shard's dictionary file.
func (id ID) DictPath(root string) string {
	return filepath.Join(id.Dir(root), DictFileName)
}

// PostPath returns the path of the shard's postings file.
func (id ID) PostPath(root string) string {
	return filepath.Join(id.Dir(root), PostFileName)
}

// MapPath returns the path of the shard's document-map file.
func (id ID) MapPath(root string) string {
	return filepath.Join(id.Dir(root), MapFileName)
}

// URLPath returns the path of the shard's companion URL file.
func (id ID) URLPath(root string) string {
	return filepath.Join(id.Dir(root), URLFileName)
}
