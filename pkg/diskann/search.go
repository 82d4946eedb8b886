package diskann

// fullPrecisionReorderMultiplier mirrors FULL_PRECISION_REORDER_MULTIPLIER
// from the original pq_flash_index.h: when reorder data is requested, the
// engine reranks k * this-many candidates at full precision
// before truncating to k. It is a fixed constant, not configurable.
const fullPrecisionReorderMultiplier = 3

// searchState names the cached beam search state machine from the data
// model: INIT selects the entry point, EXPAND draws the next frontier,
// FETCH pulls those nodes' records, RERANK scores their neighbors and
// updates the best-list, and the loop either returns to EXPAND or halts
// at DONE.
type searchState int

const (
	stateInit searchState = iota
	stateExpand
	stateFetch
	stateRerank
	stateDone
)

// SearchEngine runs cached beam search against one opened index: a
// NodeFetcher for cold nodes, an optional NodeCache for warm ones, a
// PQTable for approximate scoring, and the full-precision distance
// function matching the index's metric.
type SearchEngine struct {
	fetcher   NodeFetcher
	cache     *cacheFetcher // nil if no warm cache was populated
	pq        *PQTable
	pqCodes   map[uint64][]byte // nil unless PQ-compressed codes were loaded separately
	metric    Metric
	dim       int
	medoids   []uint64
	centroids [][]float32 // len(medoids) rows of dim floats, or nil for a single medoid
	fullDist  CompareFunc[float32]
}

// NewSearchEngine wires together the pieces an opened index produces.
// cache may be nil. centroids may be nil when there is exactly one medoid.
// pq and pqCodes may both be nil, in which case every distance (including
// frontier expansion, not just the final rerank) is computed at full
// precision, a valid if slower configuration. maxBaseNorm rescales
// inner-product distances the way the build-time normalization in the
// original requires; pass 0 when the index wasn't built with that rescale.
func NewSearchEngine(fetcher NodeFetcher, cache *NodeCache, pq *PQTable, pqCodes map[uint64][]byte, metric Metric, dim int, medoids []uint64, centroids [][]float32, maxBaseNorm float32) *SearchEngine {
	e := &SearchEngine{
		fetcher:   fetcher,
		pq:        pq,
		pqCodes:   pqCodes,
		metric:    metric,
		dim:       dim,
		medoids:   medoids,
		centroids: centroids,
		fullDist:  GetDistanceFunc[float32](metric, maxBaseNorm),
	}
	if cache != nil {
		e.cache = &cacheFetcher{cache: cache}
	}
	return e
}

// lookup resolves each id through the warm cache first, falling back to
// the backend fetcher, the node-cache shortcut from spec 4.5.
func (e *SearchEngine) lookup(ids []uint64, stats *QueryStats) (map[uint64]fetchedNode, error) {
	out := make(map[uint64]fetchedNode, len(ids))
	var cold []uint64
	for _, id := range ids {
		if e.cache != nil {
			if n, ok := e.cache.lookup(id); ok {
				out[id] = n
				stats.CacheHits++
				continue
			}
		}
		cold = append(cold, id)
	}
	if len(cold) == 0 {
		return out, nil
	}
	fetched, err := e.fetcher.FetchMany(cold, stats)
	if err != nil {
		return nil, err
	}
	for id, n := range fetched {
		out[id] = n
	}
	return out, nil
}

// entryPoint picks the medoid whose centroid is closest to query, or the
// sole medoid when there is only one, spec 4.2's "entry point selection".
func (e *SearchEngine) entryPoint(query []float32) uint64 {
	if len(e.medoids) == 1 || e.centroids == nil {
		return e.medoids[0]
	}
	best := 0
	bestDist := e.fullDist(query, e.centroids[0])
	for i := 1; i < len(e.centroids); i++ {
		d := e.fullDist(query, e.centroids[i])
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return e.medoids[best]
}

// SearchParams bundles the knobs cached beam search takes per query.
type SearchParams struct {
	K              int
	L              int
	BeamWidth      int
	IOLimit        int // 0 means unlimited
	UseReorderData bool
}

// Search runs the INIT -> EXPAND -> FETCH -> RERANK -> (EXPAND|DONE) loop
// against scratch and returns the k nearest ids and distances in ascending
// order. scratch must come from a ScratchPool sized for at least L and
// BeamWidth; the caller owns releasing it back to the pool.
func (e *SearchEngine) Search(query []float32, params SearchParams, scratch *Scratch) ([]uint64, []float32, error) {
	state := stateInit
	var frontier []uint64
	resolved := make(map[uint64]fetchedNode)

	if e.pq != nil {
		scratch.LUT = e.pq.BuildLUT(query)
	}

	for state != stateDone {
		switch state {
		case stateInit:
			entry := e.entryPoint(query)
			nodes, err := e.lookup([]uint64{entry}, &scratch.Stats)
			if err != nil {
				scratch.Stats.Aborted = true
				scratch.Stats.AbortKind = errorKind(err)
				return nil, nil, err
			}
			n := nodes[entry]
			resolved[entry] = n
			d := e.fullDist(query, n.Vector)
			scratch.Best.Insert(entry, d)
			scratch.Visited[entry] = true
			state = stateExpand

		case stateExpand:
			if params.IOLimit > 0 && scratch.Stats.IOsIssued >= params.IOLimit {
				scratch.Stats.IOLimitHit = true
				state = stateDone
				break
			}
			frontier = scratch.Best.NextUnexpandedBatch(params.BeamWidth)
			if len(frontier) == 0 {
				state = stateDone
				break
			}
			state = stateFetch

		case stateFetch:
			// Only fetch nodes not already resolved via the entry-point
			// lookup or an earlier round's FETCH.
			toFetch := frontier[:0:0]
			for _, id := range frontier {
				if _, ok := resolved[id]; !ok {
					toFetch = append(toFetch, id)
				}
			}
			if len(toFetch) > 0 {
				nodes, err := e.lookup(toFetch, &scratch.Stats)
				if err != nil {
					scratch.Stats.Aborted = true
					scratch.Stats.AbortKind = errorKind(err)
					return nil, nil, err
				}
				for id, n := range nodes {
					resolved[id] = n
				}
			}
			state = stateRerank

		case stateRerank:
			scratch.Stats.Hops++
			for _, id := range frontier {
				node, ok := resolved[id]
				if !ok {
					return nil, nil, graphCorruptErrorf("frontier node %d missing after fetch", id)
				}
				// The frontier node's own best-list entry may still hold the
				// PQ-approximate distance from the round it was admitted as a
				// neighbor; now that its full record is in hand, replace it
				// with the exact value (C7).
				scratch.Best.UpdateDistance(id, e.fullDist(query, node.Vector))
				for _, nbr := range node.Neighbors {
					if scratch.Visited[uint64(nbr)] {
						continue
					}
					scratch.Visited[uint64(nbr)] = true
					nd, err := e.distanceToUnresolved(query, uint64(nbr), resolved, scratch.LUT, &scratch.Stats)
					if err != nil {
						scratch.Stats.Aborted = true
						scratch.Stats.AbortKind = errorKind(err)
						return nil, nil, err
					}
					scratch.Best.Insert(uint64(nbr), nd)
				}
			}
			if scratch.Best.HasUnexpanded() {
				state = stateExpand
			} else {
				state = stateDone
			}
		}
	}

	return e.finish(query, params, scratch, resolved)
}

// nodeRecord resolves a node's full record, consulting resolved first so a
// node seen earlier in this query (via FETCH or a prior rerank) never
// issues a second I/O for the same id.
func (e *SearchEngine) nodeRecord(id uint64, resolved map[uint64]fetchedNode, stats *QueryStats) (fetchedNode, error) {
	if n, ok := resolved[id]; ok {
		return n, nil
	}
	nodes, err := e.lookup([]uint64{id}, stats)
	if err != nil {
		return fetchedNode{}, err
	}
	n := nodes[id]
	resolved[id] = n
	return n, nil
}

// distanceToUnresolved scores a neighbor id against the query. When a PQ
// table and the node's compressed code are both available it uses the
// approximate LUT distance and defers fetching the full vector until
// RERANK actually needs it; otherwise it fetches the full vector up front
// and scores exactly.
func (e *SearchEngine) distanceToUnresolved(query []float32, id uint64, resolved map[uint64]fetchedNode, lut [][]float32, stats *QueryStats) (float32, error) {
	if n, ok := resolved[id]; ok {
		return e.fullDist(query, n.Vector), nil
	}
	if e.pq != nil && e.pqCodes != nil {
		if code, ok := e.pqCodes[id]; ok {
			return e.pq.Distance(code, lut), nil
		}
	}
	n, err := e.nodeRecord(id, resolved, stats)
	if err != nil {
		return 0, err
	}
	return e.fullDist(query, n.Vector), nil
}

// finish truncates the best-list to k, optionally reranking the top
// k*fullPrecisionReorderMultiplier candidates at full precision
// first (UseReorderData), and returns ascending (ids, dists).
func (e *SearchEngine) finish(query []float32, params SearchParams, scratch *Scratch, resolved map[uint64]fetchedNode) ([]uint64, []float32, error) {
	reorderN := params.K
	if params.UseReorderData {
		reorderN = params.K * fullPrecisionReorderMultiplier
	}
	top := scratch.Best.Top(reorderN)

	if params.UseReorderData {
		for i, c := range top {
			n, err := e.nodeRecord(c.ID, resolved, &scratch.Stats)
			if err != nil {
				return nil, nil, err
			}
			top[i].Dist = e.fullDist(query, n.Vector)
		}
		sortCandidatesByDist(top)
	}

	if len(top) > params.K {
		top = top[:params.K]
	}

	ids := make([]uint64, len(top))
	dists := make([]float32, len(top))
	for i, c := range top {
		ids[i] = c.ID
		dists[i] = c.Dist
	}
	return ids, dists, nil
}

func sortCandidatesByDist(cs []candidate) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].less(cs[j-1]); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

func errorKind(err error) ErrorKind {
	if de, ok := err.(*Error); ok {
		return de.Kind
	}
	return KindIOFatal
}
