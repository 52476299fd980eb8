// Package ranker selects the top results of a federated query. A bounded
// min-heap keeps memory at O(k) however many documents the shards return.
package ranker

import (
	"container/heap"
	"sort"

	"github.com/Capstone-Temporal-Search-Engine/backend-indexing/internal/search/federator"
)

// less orders a before b in the final ranking: higher score first, document
// ID ascending on ties so equal-scored results are stable across runs.
func less(a, b federator.DocumentScore) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// minHeap keeps the k best documents seen so far, worst at the root.
type minHeap []federator.DocumentScore

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return less(h[j], h[i]) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)         { *h = append(*h, x.(federator.DocumentScore)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopK returns the k highest-ranked documents in rank order. k <= 0 returns
// an empty slice; k beyond the input returns everything, sorted.
func TopK(docs []federator.DocumentScore, k int) []federator.DocumentScore {
	if k <= 0 {
		return nil
	}
	if k >= len(docs) {
		out := make([]federator.DocumentScore, len(docs))
		copy(out, docs)
		sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
		return out
	}

	h := make(minHeap, 0, k)
	heap.Init(&h)
	for _, d := range docs {
		if len(h) < k {
			heap.Push(&h, d)
			continue
		}
		if less(d, h[0]) {
			h[0] = d
			heap.Fix(&h, 0)
		}
	}

	out := make([]federator.DocumentScore, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(federator.DocumentScore)
	}
	return out
}
