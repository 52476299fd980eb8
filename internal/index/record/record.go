// Package record implements the fixed-width textual record formats for the
// three shard files: the term dictionary, the postings list, and the document
// map. Every record has a byte-exact width, so record i of a file lives at
// offset i × width and can be read with a single positioned read.
//
// The formats are human-diffable plain text. Empty dictionary slots encode
// the literal sentinel "-1" in every field; decoders classify a slot as empty
// by matching that pattern before attempting any numeric parse.
package record

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/Capstone-Temporal-Search-Engine/backend-indexing/pkg/errors"
)

// Field and record widths, in bytes. Normalized terms are pure ASCII, so
// byte widths equal character widths.
const (
	TermWidth  = 46
	MaxTermLen = 45
	CountWidth = 8
	StartWidth = 8
	// DictRecordWidth is term + count + start, space-separated, newline-terminated.
	DictRecordWidth = TermWidth + 1 + CountWidth + 1 + StartWidth + 1

	ScoreWidth   = 10
	OrdinalWidth = 8
	// PostRecordWidth is score + ordinal, space-separated, newline-terminated.
	PostRecordWidth = ScoreWidth + 1 + OrdinalWidth + 1

	DocIDWidth     = 36
	TimestampWidth = 10
	URLOffsetWidth = 10
	// MapRecordWidth is docID + timestamp + URL offset, space-separated,
	// newline-terminated.
	MapRecordWidth = DocIDWidth + 1 + TimestampWidth + 1 + URLOffsetWidth + 1

	// Sentinel marks every field of an empty dictionary slot.
	Sentinel = "-1"
)

// DictionaryRecord is one occupied slot of the serialized term dictionary.
type DictionaryRecord struct {
	Term         string
	DocFreq      int
	PostingStart int
}

// PostingRecord scores one document for one term. Score is TF-IDF scaled by
// 10000 and rounded; it can be zero or negative for terms that appear in
// most documents of a shard. Ordinal joins against the shard's document map.
type PostingRecord struct {
	Score   int
	Ordinal int
}

// MapRecord resolves a document ordinal to its identity: the opaque document
// ID, the upload timestamp (unix seconds), and the byte offset of the
// document's line in the shard's companion URL file.
type MapRecord struct {
	DocID     string
	Timestamp int64
	URLOffset int64
}

// NormalizeTerm canonicalizes a term to its dictionary key: lower-cased,
// diacritics stripped to ASCII (NFKD with combining marks and remaining
// non-ASCII runes dropped), truncated to MaxTermLen. Build and query paths
// must both pass terms through here so the on-disk probe compares equal keys.
func NormalizeTerm(term string) string {
	term = strings.ToLower(term)
	var b strings.Builder
	b.Grow(len(term))
	for _, r := range norm.NFKD.String(term) {
		if unicode.Is(unicode.Mn, r) || r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	if len(s) > MaxTermLen {
		s = s[:MaxTermLen]
	}
	return s
}

// EncodeDictionary renders an occupied dictionary slot. Over-long terms are
// truncated and padded (matching the historical on-disk format); numeric
// fields that exceed their width are rejected.
func EncodeDictionary(rec DictionaryRecord) ([]byte, error) {
	term := rec.Term
	if len(term) > MaxTermLen {
		term = term[:MaxTermLen]
	}
	df := strconv.Itoa(rec.DocFreq)
	if len(df) > CountWidth {
		return nil, apperrors.Newf(apperrors.ErrFieldOverflow, 500, "document frequency %d needs more than %d digits", rec.DocFreq, CountWidth)
	}
	start := strconv.Itoa(rec.PostingStart)
	if len(start) > StartWidth {
		return nil, apperrors.Newf(apperrors.ErrFieldOverflow, 500, "posting start %d needs more than %d digits", rec.PostingStart, StartWidth)
	}
	return []byte(fmt.Sprintf("%-*s %*s %*s\n", TermWidth, term, CountWidth, df, StartWidth, start)), nil
}

// EncodeEmptySlot renders the sentinel record for an unoccupied slot.
func EncodeEmptySlot() []byte {
	return []byte(fmt.Sprintf("%-*s %*s %*s\n", TermWidth, Sentinel, CountWidth, Sentinel, StartWidth, Sentinel))
}

// DecodeDictionary decodes one dictionary record. The second return value
// reports whether the slot is occupied; sentinel slots decode to (zero,
// false, nil).
func DecodeDictionary(b []byte) (DictionaryRecord, bool, error) {
	if len(b) != DictRecordWidth {
		return DictionaryRecord{}, false, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "dictionary record is %d bytes, want %d", len(b), DictRecordWidth)
	}
	if strings.TrimRight(string(b[:TermWidth]), " ") == Sentinel {
		return DictionaryRecord{}, false, nil
	}
	fields := strings.Fields(string(b))
	if len(fields) < 3 {
		return DictionaryRecord{}, false, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "dictionary record has %d fields, want 3", len(fields))
	}
	df, err := strconv.Atoi(fields[1])
	if err != nil {
		return DictionaryRecord{}, false, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "dictionary document frequency %q: %v", fields[1], err)
	}
	start, err := strconv.Atoi(fields[2])
	if err != nil {
		return DictionaryRecord{}, false, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "dictionary posting start %q: %v", fields[2], err)
	}
	return DictionaryRecord{Term: fields[0], DocFreq: df, PostingStart: start}, true, nil
}

// EncodePosting renders one posting record.
func EncodePosting(rec PostingRecord) ([]byte, error) {
	score := strconv.Itoa(rec.Score)
	if len(score) > ScoreWidth {
		return nil, apperrors.Newf(apperrors.ErrFieldOverflow, 500, "score %d needs more than %d digits", rec.Score, ScoreWidth)
	}
	ord := strconv.Itoa(rec.Ordinal)
	if rec.Ordinal < 0 || len(ord) > OrdinalWidth {
		return nil, apperrors.Newf(apperrors.ErrFieldOverflow, 500, "ordinal %d does not fit %d digits", rec.Ordinal, OrdinalWidth)
	}
	return []byte(fmt.Sprintf("%-*s %-*s\n", ScoreWidth, score, OrdinalWidth, ord)), nil
}

// DecodePosting decodes one posting record.
func DecodePosting(b []byte) (PostingRecord, error) {
	if len(b) != PostRecordWidth {
		return PostingRecord{}, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "posting record is %d bytes, want %d", len(b), PostRecordWidth)
	}
	fields := strings.Fields(string(b))
	if len(fields) < 2 {
		return PostingRecord{}, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "posting record has %d fields, want 2", len(fields))
	}
	score, err := strconv.Atoi(fields[0])
	if err != nil {
		return PostingRecord{}, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "posting score %q: %v", fields[0], err)
	}
	ord, err := strconv.Atoi(fields[1])
	if err != nil {
		return PostingRecord{}, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "posting ordinal %q: %v", fields[1], err)
	}
	return PostingRecord{Score: score, Ordinal: ord}, nil
}

// EncodeMap renders one document-map record. Document IDs are opaque join
// keys and are never truncated; an over-long ID is rejected.
func EncodeMap(rec MapRecord) ([]byte, error) {
	if len(rec.DocID) == 0 || len(rec.DocID) > DocIDWidth {
		return nil, apperrors.Newf(apperrors.ErrFieldOverflow, 500, "document ID %q does not fit %d bytes", rec.DocID, DocIDWidth)
	}
	if strings.ContainsAny(rec.DocID, " \n") {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "document ID %q contains whitespace", rec.DocID)
	}
	ts := strconv.FormatInt(rec.Timestamp, 10)
	if rec.Timestamp < 0 || len(ts) > TimestampWidth {
		return nil, apperrors.Newf(apperrors.ErrFieldOverflow, 500, "timestamp %d does not fit %d digits", rec.Timestamp, TimestampWidth)
	}
	off := fmt.Sprintf("%0*d", URLOffsetWidth, rec.URLOffset)
	if rec.URLOffset < 0 || len(off) > URLOffsetWidth {
		return nil, apperrors.Newf(apperrors.ErrFieldOverflow, 500, "URL offset %d does not fit %d digits", rec.URLOffset, URLOffsetWidth)
	}
	return []byte(fmt.Sprintf("%-*s %*s %s\n", DocIDWidth, rec.DocID, TimestampWidth, ts, off)), nil
}

// DecodeMap decodes one document-map record.
func DecodeMap(b []byte) (MapRecord, error) {
	if len(b) != MapRecordWidth {
		return MapRecord{}, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "map record is %d bytes, want %d", len(b), MapRecordWidth)
	}
	fields := strings.Fields(string(b))
	if len(fields) < 3 {
		return MapRecord{}, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "map record has %d fields, want 3", len(fields))
	}
	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return MapRecord{}, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "map timestamp %q: %v", fields[1], err)
	}
	off, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return MapRecord{}, apperrors.Newf(apperrors.ErrMalformedRecord, 500, "map URL offset %q: %v", fields[2], err)
	}
	return MapRecord{DocID: fields[0], Timestamp: ts, URLOffset: off}, nil
}
