package diskann

import "sort"

// candidate is one entry in the best-list: a point id, its current best
// known distance (PQ-approximate until reranked to full precision), and
// whether it has already been drawn as a frontier member this query.
type candidate struct {
	ID       uint64
	Dist     float32
	Expanded bool
}

// less implements the (distance ascending, id ascending) tie-break from
// spec 4.7 "Ordering and tie-breaks".
func (c candidate) less(o candidate) bool {
	if c.Dist != o.Dist {
		return c.Dist < o.Dist
	}
	return c.ID < o.ID
}

// BestList is the size-bounded sorted frontier ("best-list", size L) used
// by the beam search engine. It is kept sorted ascending by distance with
// duplicate ids suppressed, as required by the data-model invariants.
// For the list sizes beam search actually uses (L in the low hundreds),
// a sorted slice with linear insert beats a heap: the engine needs true
// sorted order for "smallest L survive" truncation and for picking the
// next B unexpanded entries, not just amortized log-n push/pop.
type BestList struct {
	L       int
	entries []candidate
	index   map[uint64]int // id -> position in entries, kept in sync
}

func NewBestList(l int) *BestList {
	return &BestList{
		L:       l,
		entries: make([]candidate, 0, l+1),
		index:   make(map[uint64]int, l*2),
	}
}

func (bl *BestList) Len() int { return len(bl.entries) }

// Contains reports whether id is already present.
func (bl *BestList) Contains(id uint64) bool {
	_, ok := bl.index[id]
	return ok
}

func (bl *BestList) reindexFrom(pos int) {
	for i := pos; i < len(bl.entries); i++ {
		bl.index[bl.entries[i].ID] = i
	}
}

// Insert adds (id, dist) if it would fall within the top-L; returns true if
// the candidate is present in the list after the call (whether newly
// inserted or already there, in which case its stored distance is left
// unchanged). Duplicate ids are never inserted twice; see UpdateDistance to
// change an existing entry.
func (bl *BestList) Insert(id uint64, dist float32) bool {
	if bl.Contains(id) {
		return true
	}
	c := candidate{ID: id, Dist: dist}

	if len(bl.entries) >= bl.L {
		worst := bl.entries[len(bl.entries)-1]
		if !c.less(worst) {
			return false
		}
	}

	pos := sort.Search(len(bl.entries), func(i int) bool {
		return c.less(bl.entries[i])
	})
	bl.entries = append(bl.entries, candidate{})
	copy(bl.entries[pos+1:], bl.entries[pos:])
	bl.entries[pos] = c
	bl.reindexFrom(pos)

	if len(bl.entries) > bl.L {
		dropped := bl.entries[len(bl.entries)-1]
		bl.entries = bl.entries[:bl.L]
		delete(bl.index, dropped.ID)
	}
	return true
}

// UpdateDistance replaces an existing entry's distance (e.g. PQ-approximate
// promoted to full precision) and re-sorts its position while preserving
// the expanded bit, per spec 4.7.
func (bl *BestList) UpdateDistance(id uint64, dist float32) {
	pos, ok := bl.index[id]
	if !ok {
		return
	}
	expanded := bl.entries[pos].Expanded
	bl.entries = append(bl.entries[:pos], bl.entries[pos+1:]...)
	delete(bl.index, id)
	bl.reindexFrom(pos)

	c := candidate{ID: id, Dist: dist, Expanded: expanded}
	newPos := sort.Search(len(bl.entries), func(i int) bool {
		return c.less(bl.entries[i])
	})
	bl.entries = append(bl.entries, candidate{})
	copy(bl.entries[newPos+1:], bl.entries[newPos:])
	bl.entries[newPos] = c
	bl.reindexFrom(newPos)
}

// NextUnexpandedBatch draws up to n unexpanded entries with the smallest
// distance and marks them expanded, forming one round's frontier (C7's
// EXPAND state). Returns fewer than n (possibly zero) if the list is
// exhausted of unexpanded entries.
func (bl *BestList) NextUnexpandedBatch(n int) []uint64 {
	out := make([]uint64, 0, n)
	for i := 0; i < len(bl.entries) && len(out) < n; i++ {
		if !bl.entries[i].Expanded {
			bl.entries[i].Expanded = true
			out = append(out, bl.entries[i].ID)
		}
	}
	return out
}

// HasUnexpanded reports whether any entry still awaits expansion,
// the beam search termination condition from spec 4.7.
func (bl *BestList) HasUnexpanded() bool {
	for _, c := range bl.entries {
		if !c.Expanded {
			return true
		}
	}
	return false
}

// Top returns the k smallest entries (already sorted ascending).
func (bl *BestList) Top(k int) []candidate {
	if k > len(bl.entries) {
		k = len(bl.entries)
	}
	out := make([]candidate, k)
	copy(out, bl.entries[:k])
	return out
}

// Worst returns the current Lth-best distance and true, or (0, false) if the
// list isn't yet full; used by callers that need the current admission
// threshold.
func (bl *BestList) Worst() (float32, bool) {
	if len(bl.entries) < bl.L {
		return 0, false
	}
	return bl.entries[len(bl.entries)-1].Dist, true
}

// Reset clears the list for reuse from a scratch pool.
func (bl *BestList) Reset() {
	bl.entries = bl.entries[:0]
	for k := range bl.index {
		delete(bl.index, k)
	}
}
