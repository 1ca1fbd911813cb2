package vector

import (
	"sort"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// topK keeps the best limit results seen so far. Until the buffer is full candidates are
// appended; the buffer is then sorted once and only candidates beating the current minimum
// pay for a shift-insert. Equal scores keep arrival order.
type topK struct {
	limit int
	items []models.QueryResult
	full  bool
	min   float64
}

func newTopK(limit int) *topK {
	return &topK{limit: limit, items: make([]models.QueryResult, 0, limit)}
}

func (t *topK) offer(r models.QueryResult) {
	if !t.full {
		t.items = append(t.items, r)
		if len(t.items) == t.limit {
			sortByScore(t.items)
			t.full = true
			t.min = t.items[t.limit-1].Score
		}
		return
	}
	if r.Score <= t.min {
		return
	}
	// first slot holding a strictly lower score
	pos := sort.Search(t.limit, func(i int) bool { return t.items[i].Score < r.Score })
	copy(t.items[pos+1:], t.items[pos:t.limit-1])
	t.items[pos] = r
	t.min = t.items[t.limit-1].Score
}

func (t *topK) results() []models.QueryResult {
	if !t.full {
		sortByScore(t.items)
	}
	return t.items
}

func sortByScore(results []models.QueryResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}
