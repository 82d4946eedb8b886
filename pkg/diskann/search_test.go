package diskann

import "testing"

// memFetcher is an in-memory NodeFetcher for search engine tests: no disk
// I/O, optionally injecting a retryable failure on the first call to
// exercise the retry path (scenario 6).
type memFetcher struct {
	nodes       map[uint64]fetchedNode
	failOnce    map[uint64]bool
	fetchCalls  int
}

func (f *memFetcher) FetchMany(ids []uint64, stats *QueryStats) (map[uint64]fetchedNode, error) {
	f.fetchCalls++
	for _, id := range ids {
		if f.failOnce[id] {
			delete(f.failOnce, id)
			stats.Retries++
			return nil, &RetryableIOError{Err: errTransient}
		}
	}
	out := make(map[uint64]fetchedNode, len(ids))
	for _, id := range ids {
		n, ok := f.nodes[id]
		if !ok {
			return nil, graphCorruptErrorf("unknown id %d", id)
		}
		out[id] = n
	}
	stats.IOsIssued++
	return out, nil
}

var errTransient = &RetryableIOError{}

// retryingFetcher wraps memFetcher the way fetcher.go's submitWithRetry
// wraps a BlockReader: retries up to maxFetchRetries times on a
// RetryableIOError before giving up.
type retryingFetcher struct {
	inner *memFetcher
}

func (r *retryingFetcher) FetchMany(ids []uint64, stats *QueryStats) (map[uint64]fetchedNode, error) {
	for attempt := 0; attempt <= maxFetchRetries; attempt++ {
		out, err := r.inner.FetchMany(ids, stats)
		if err == nil {
			return out, nil
		}
		if _, retryable := err.(*RetryableIOError); !retryable {
			return nil, err
		}
	}
	return nil, ioFatalErrorf("exceeded retries")
}

// ringGraph builds N nodes in D dims where node i's vector is supplied by
// makeVec(i), each pointing at the next R ids in a ring, enough for any
// node to reach any other in a handful of hops, matching the spec's
// "fully connected" end-to-end fixtures without literally computing a
// complete graph.
func ringGraph(n, r int, makeVec func(i int) []float32) map[uint64]fetchedNode {
	nodes := make(map[uint64]fetchedNode, n)
	for i := 0; i < n; i++ {
		nbrs := make([]uint32, r)
		for j := 0; j < r; j++ {
			nbrs[j] = uint32((i + j + 1) % n)
		}
		nodes[uint64(i)] = fetchedNode{Vector: makeVec(i), Neighbors: nbrs}
	}
	return nodes
}

func canonicalBasisVectors(n, d int) func(i int) []float32 {
	return func(i int) []float32 {
		v := make([]float32, d)
		v[i%d] = 1
		return v
	}
}

func newScratchForTest(l, beamWidth int) *Scratch {
	return NewScratch(l, beamWidth, sectorLen, 0, 64)
}

// Scenario 1: flat L2/f32, N=10, D=4, R=4, medoid=0, canonical basis
// vectors, query=e_3, k=1, L=4, beam=2 -> [(3, 0.0)].
func TestSearchScenario1ExactMatch(t *testing.T) {
	nodes := ringGraph(10, 4, canonicalBasisVectors(10, 4))
	fetcher := &memFetcher{nodes: nodes}
	engine := NewSearchEngine(fetcher, nil, nil, nil, L2, 4, []uint64{0}, nil, 0)

	query := []float32{0, 0, 0, 1}
	scratch := newScratchForTest(4, 2)
	ids, dists, err := engine.Search(query, SearchParams{K: 1, L: 4, BeamWidth: 2}, scratch)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("ids = %v, want [3]", ids)
	}
	if !almostEqual(dists[0], 0.0) {
		t.Fatalf("dists = %v, want [0.0]", dists)
	}
}

// Scenario 2: query=(0.5,0.5,0,0), k=2 -> ids {0,1} tie-broken ascending,
// both at squared distance 0.5.
func TestSearchScenario2TieBreak(t *testing.T) {
	nodes := ringGraph(10, 4, canonicalBasisVectors(10, 4))
	fetcher := &memFetcher{nodes: nodes}
	engine := NewSearchEngine(fetcher, nil, nil, nil, L2, 4, []uint64{0}, nil, 0)

	query := []float32{0.5, 0.5, 0, 0}
	scratch := newScratchForTest(4, 2)
	ids, dists, err := engine.Search(query, SearchParams{K: 2, L: 4, BeamWidth: 2}, scratch)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("ids = %v, want [0 1]", ids)
	}
	if !almostEqual(dists[0], 0.5) || !almostEqual(dists[1], 0.5) {
		t.Fatalf("dists = %v, want [0.5 0.5]", dists)
	}
}

// Scenario 3: cosine/f32, all vectors unit-norm, query = a dataset vector
// -> top-1 returns that vector's id at distance 0.
func TestSearchScenario3CosineExactMatch(t *testing.T) {
	nodes := ringGraph(6, 3, canonicalBasisVectors(6, 4))
	fetcher := &memFetcher{nodes: nodes}
	engine := NewSearchEngine(fetcher, nil, nil, nil, Cosine, 4, []uint64{0}, nil, 0)

	query := []float32{0, 1, 0, 0} // matches node 1's vector exactly
	scratch := newScratchForTest(4, 2)
	ids, dists, err := engine.Search(query, SearchParams{K: 1, L: 4, BeamWidth: 2}, scratch)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("ids = %v, want [1]", ids)
	}
	if !almostEqual(dists[0], 0.0) {
		t.Fatalf("dists = %v, want [0.0]", dists)
	}
}

// Scenario 6: a transient I/O fault on the first read of a query still
// completes, with at least one retry counted, and an identical result to
// the fault-free baseline.
func TestSearchScenario6TransientFaultRetried(t *testing.T) {
	nodes := ringGraph(10, 4, canonicalBasisVectors(10, 4))

	baseline := &memFetcher{nodes: nodes}
	baseEngine := NewSearchEngine(baseline, nil, nil, nil, L2, 4, []uint64{0}, nil, 0)
	baseScratch := newScratchForTest(4, 2)
	wantIDs, wantDists, err := baseEngine.Search([]float32{0, 0, 0, 1}, SearchParams{K: 1, L: 4, BeamWidth: 2}, baseScratch)
	if err != nil {
		t.Fatalf("baseline Search: %v", err)
	}

	faulty := &memFetcher{nodes: nodes, failOnce: map[uint64]bool{0: true}}
	engine := NewSearchEngine(&retryingFetcher{inner: faulty}, nil, nil, nil, L2, 4, []uint64{0}, nil, 0)
	scratch := newScratchForTest(4, 2)
	ids, dists, err := engine.Search([]float32{0, 0, 0, 1}, SearchParams{K: 1, L: 4, BeamWidth: 2}, scratch)
	if err != nil {
		t.Fatalf("Search with injected fault: %v", err)
	}
	if scratch.Stats.Retries < 1 {
		t.Fatalf("expected at least one retry, got %d", scratch.Stats.Retries)
	}
	if len(ids) != len(wantIDs) || ids[0] != wantIDs[0] {
		t.Fatalf("ids = %v, want %v", ids, wantIDs)
	}
	if !almostEqual(dists[0], wantDists[0]) {
		t.Fatalf("dists = %v, want %v", dists, wantDists)
	}
}

// Boundary: io_limit reached before convergence truncates to k and sets
// stats.IOLimitHit.
func TestSearchIOLimitHit(t *testing.T) {
	nodes := ringGraph(10, 4, canonicalBasisVectors(10, 4))
	fetcher := &memFetcher{nodes: nodes}
	engine := NewSearchEngine(fetcher, nil, nil, nil, L2, 4, []uint64{0}, nil, 0)

	scratch := newScratchForTest(4, 2)
	ids, _, err := engine.Search([]float32{0, 0, 0, 1}, SearchParams{K: 1, L: 4, BeamWidth: 2, IOLimit: 1}, scratch)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !scratch.Stats.IOLimitHit {
		t.Fatalf("expected IOLimitHit to be set")
	}
	if len(ids) == 0 {
		t.Fatalf("expected a best-so-far result even when io_limit is hit")
	}
}

// Boundary: k = L = 1, beam = 1 degenerates to serial best-first search
// and still finds the exact match.
func TestSearchDegenerateKLBeamOne(t *testing.T) {
	nodes := ringGraph(10, 4, canonicalBasisVectors(10, 4))
	fetcher := &memFetcher{nodes: nodes}
	engine := NewSearchEngine(fetcher, nil, nil, nil, L2, 4, []uint64{0}, nil, 0)

	scratch := newScratchForTest(1, 1)
	ids, dists, err := engine.Search([]float32{0, 0, 0, 1}, SearchParams{K: 1, L: 1, BeamWidth: 1}, scratch)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("ids = %v, want exactly one result", ids)
	}
	_ = dists
}
