package diskann

import (
	"math"
	"testing"
)

// Scenario 4: range search with r=0.25 on the scenario-1 fixture (N=10,
// D=4, R=4, canonical basis vectors), query = e_3 + 0.05*e_0, L_min=4,
// L_max=16, max_results=3 -> exactly [(3, 0.0025)].
func TestRangeSearchScenario4(t *testing.T) {
	nodes := ringGraph(10, 4, canonicalBasisVectors(10, 4))
	fetcher := &memFetcher{nodes: nodes}
	engine := NewSearchEngine(fetcher, nil, nil, nil, L2, 4, []uint64{0}, nil, 0)

	query := []float32{0.05, 0, 0, 1}
	scratch := newScratchForTest(4, 2)
	ids, dists, err := engine.RangeSearch(query, RangeParams{
		Radius:        0.25,
		LMin:          4,
		LMax:          16,
		BeamWidth:     2,
		MaxResultSize: 3,
	}, scratch)
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("ids = %v, want [3]", ids)
	}
	if !almostEqual(dists[0], 0.0025) {
		t.Fatalf("dists = %v, want [0.0025]", dists)
	}
}

// Boundary: r = +Inf never filters anything out, so the result saturates
// at min(L_max, max_results) regardless of how small L_min starts.
func TestRangeSearchInfiniteRadiusSaturatesAtCap(t *testing.T) {
	nodes := ringGraph(20, 4, canonicalBasisVectors(20, 4))
	fetcher := &memFetcher{nodes: nodes}
	engine := NewSearchEngine(fetcher, nil, nil, nil, L2, 4, []uint64{0}, nil, 0)

	query := []float32{0, 0, 0, 1}
	scratch := newScratchForTest(2, 2)
	ids, _, err := engine.RangeSearch(query, RangeParams{
		Radius:        float32(math.Inf(1)),
		LMin:          2,
		LMax:          8,
		BeamWidth:     2,
		MaxResultSize: 5,
	}, scratch)
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(ids) != 5 {
		t.Fatalf("ids = %v, want 5 results (min(L_max=8, max_results=5))", ids)
	}
	if scratch.Stats.RangeWidenings == 0 {
		t.Fatalf("expected at least one widening from L_min=2 toward L_max=8")
	}
}

// Boundary: a radius narrower than anything in the dataset returns no
// results rather than erroring.
func TestRangeSearchEmptyResult(t *testing.T) {
	nodes := ringGraph(10, 4, canonicalBasisVectors(10, 4))
	fetcher := &memFetcher{nodes: nodes}
	engine := NewSearchEngine(fetcher, nil, nil, nil, L2, 4, []uint64{0}, nil, 0)

	query := []float32{0.05, 0, 0, 1}
	scratch := newScratchForTest(4, 2)
	ids, dists, err := engine.RangeSearch(query, RangeParams{
		Radius:        0.0001,
		LMin:          4,
		LMax:          16,
		BeamWidth:     2,
		MaxResultSize: 3,
	}, scratch)
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(ids) != 0 || len(dists) != 0 {
		t.Fatalf("ids = %v, dists = %v, want empty", ids, dists)
	}
}
