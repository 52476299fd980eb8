// Package hashtable implements the open-addressing table that positions terms
// inside a shard's dictionary file. The table is sized once at three times the
// number of distinct terms and never resized: slot positions are final, so the
// serialized dictionary can be probed on disk with the same hash and the same
// linear scan used in memory.
package hashtable

import (
	"github.com/cespare/xxhash/v2"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/index/record"
)

// SizeFactor is the ratio of table capacity to distinct term count. A third
// full keeps linear-probe runs short without bloating the dictionary file.
const SizeFactor = 3

// Postings is the accumulated posting list for one term, in document
// first-appearance order.
type Postings []record.PostingRecord

type slot struct {
	term     string
	postings Postings
	occupied bool
}

// Table is a linear-probing hash table keyed by normalized term. It is not
// safe for concurrent use; a build owns its table exclusively.
type Table struct {
	slots []slot
	count int
}

// New returns a table sized for the given number of distinct terms.
func New(distinctTerms int) *Table {
	capacity := distinctTerms * SizeFactor
	if capacity < 1 {
		capacity = 1
	}
	return WithCapacity(capacity)
}

// WithCapacity returns a table with exactly the given slot count.
func WithCapacity(capacity int) *Table {
	return &Table{slots: make([]slot, capacity)}
}

// Hash returns the 32-bit hash used to pick a term's home slot. The same
// function positions records on disk, so it must never change for shards
// already written.
func Hash(term string) uint32 {
	return uint32(xxhash.Sum64String(term))
}

// Bucket returns the slot index for term in a table (or file) of n slots.
func Bucket(term string, n int) int {
	return int(Hash(term) % uint32(n))
}

// Capacity returns the number of slots.
func (t *Table) Capacity() int {
	return len(t.slots)
}

// Len returns the number of occupied slots.
func (t *Table) Len() int {
	return t.count
}

// Insert appends a posting to term's list, creating the slot on first sight.
// It reports false when the table is full and the term is not already present;
// with capacity fixed at SizeFactor times the distinct term count that cannot
// happen during a normal build.
func (t *Table) Insert(term string, posting record.PostingRecord) bool {
	n := len(t.slots)
	idx := Bucket(term, n)
	for probed := 0; probed < n; probed++ {
		s := &t.slots[idx]
		if !s.occupied {
			s.term = term
			s.postings = Postings{posting}
			s.occupied = true
			t.count++
			return true
		}
		if s.term == term {
			s.postings = append(s.postings, posting)
			return true
		}
		idx = (idx + 1) % n
	}
	return false
}

// Lookup returns the postings for term and whether the term is present. The
// probe visits at most Capacity slots, so a full table still terminates.
func (t *Table) Lookup(term string) (Postings, bool) {
	n := len(t.slots)
	idx := Bucket(term, n)
	for probed := 0; probed < n; probed++ {
		s := &t.slots[idx]
		if !s.occupied {
			return nil, false
		}
		if s.term == term {
			return s.postings, true
		}
		idx = (idx + 1) % n
	}
	return nil, false
}

// Walk calls fn for every slot in slot order, occupied or not. Serialization
// depends on this order: the dictionary file is the table's slots written out
// verbatim.
func (t *Table) Walk(fn func(index int, term string, postings Postings, occupied bool)) {
	for i := range t.slots {
		s := &t.slots[i]
		fn(i, s.term, s.postings, s.occupied)
	}
}
