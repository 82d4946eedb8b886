package diskann

// cachedNode is what NodeCache hands back: borrowed slices into the
// cache's own arenas. The cache outlives every lookup result; there is no
// per-lookup allocation and no cycle back from the slices to the cache.
type cachedNode struct {
	Vector    []float32
	Degree    int
	Neighbors []uint32
}

// NodeCache is a read-only-after-populate map from point id to
// (full-precision vector, adjacency list), backed by two arenas it owns:
// one of alignedDim-per-entry vector storage, one of maxDegree-per-entry
// neighbor storage. Lookup is lock-free once Populate has returned,
// matching spec 4.5 ("The cache is read-only after population; lookup is
// lock-free").
type NodeCache struct {
	alignedDim int
	maxDegree  int

	vectorArena   []float32
	neighborArena []uint32
	degrees       []int

	index map[uint64]int // id -> slot, fixed after Populate
}

func NewNodeCache(alignedDim, maxDegree int) *NodeCache {
	return &NodeCache{
		alignedDim: alignedDim,
		maxDegree:  maxDegree,
		index:      make(map[uint64]int),
	}
}

// Populate grows the two arenas to hold len(ids) entries and fills them by
// calling fetch once per id. fetch is whatever already-built loader the
// caller has on hand (the flat reader or the slice reader); this type
// itself never touches storage. The list of ids to warm is produced by a
// caller-supplied policy (BFS-from-medoid is the only one this core
// implements; see Engine.BFSCache); a sample-query-driven selector is an
// optional external collaborator per spec 4.5 and is not implemented here.
func (c *NodeCache) Populate(ids []uint64, fetch func(id uint64) (vector []float32, neighbors []uint32, err error)) error {
	c.vectorArena = make([]float32, 0, len(ids)*c.alignedDim)
	c.neighborArena = make([]uint32, 0, len(ids)*c.maxDegree)
	c.degrees = make([]int, 0, len(ids))
	c.index = make(map[uint64]int, len(ids))

	for _, id := range ids {
		if _, dup := c.index[id]; dup {
			continue
		}
		vec, nbrs, err := fetch(id)
		if err != nil {
			return err
		}
		slot := len(c.degrees)
		padded := make([]float32, c.alignedDim)
		copy(padded, vec)
		c.vectorArena = append(c.vectorArena, padded...)

		nbrPadded := make([]uint32, c.maxDegree)
		copy(nbrPadded, nbrs)
		c.neighborArena = append(c.neighborArena, nbrPadded...)

		c.degrees = append(c.degrees, len(nbrs))
		c.index[id] = slot
	}
	return nil
}

// Get returns the cached vector and neighbor list for id, or ok=false if
// id was never warmed.
func (c *NodeCache) Get(id uint64) (node cachedNode, ok bool) {
	slot, found := c.index[id]
	if !found {
		return cachedNode{}, false
	}
	vecStart := slot * c.alignedDim
	nbrStart := slot * c.maxDegree
	degree := c.degrees[slot]

	return cachedNode{
		Vector:    c.vectorArena[vecStart : vecStart+c.alignedDim],
		Degree:    degree,
		Neighbors: c.neighborArena[nbrStart : nbrStart+degree],
	}, true
}

// Contains reports whether id was warmed into the cache.
func (c *NodeCache) Contains(id uint64) bool {
	_, ok := c.index[id]
	return ok
}

// Len returns the number of warmed entries.
func (c *NodeCache) Len() int { return len(c.index) }
