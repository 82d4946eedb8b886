package diskann

// fetchedNode is a decoded-to-float32 node record: a full-precision vector
// (regardless of on-disk element type) and its adjacency list.
type fetchedNode struct {
	Vector    []float32
	Neighbors []uint32
}

// maxFetchRetries bounds how many times FETCH resubmits a batch after a
// retryable I/O error before giving up and surfacing KindIOFatal.
const maxFetchRetries = 3

// NodeFetcher is the one thing the search engine needs from either storage
// backend: given a set of point ids, return their full-precision vector
// and neighbor list, retrying transient I/O internally and never
// surfacing a retryable error to the caller.
type NodeFetcher interface {
	FetchMany(ids []uint64, stats *QueryStats) (map[uint64]fetchedNode, error)
}

// flatFetcher adapts a FlatIndexLoader to NodeFetcher, batching ids that
// share a sector into a single read.
type flatFetcher struct {
	loader *FlatIndexLoader
}

func newFlatFetcher(l *FlatIndexLoader) *flatFetcher { return &flatFetcher{loader: l} }

func (f *flatFetcher) FetchMany(ids []uint64, stats *QueryStats) (map[uint64]fetchedNode, error) {
	type sectorGroup struct {
		offset int64
		ids    []uint64
	}
	bySector := make(map[int64]*sectorGroup)
	for _, id := range ids {
		offset, _ := f.loader.NodeSectorOffset(id)
		g, ok := bySector[offset]
		if !ok {
			g = &sectorGroup{offset: offset}
			bySector[offset] = g
		}
		g.ids = append(g.ids, id)
	}

	bufs := make(map[int64][]byte, len(bySector))
	reqs := make([]BlockRequest, 0, len(bySector))
	for offset := range bySector {
		buf := alignedAlloc(sectorLen)
		bufs[offset] = buf
		reqs = append(reqs, BlockRequest{Offset: offset, Length: sectorLen, Buf: buf})
	}

	if err := submitWithRetry(f.loader.Reader(), reqs, stats); err != nil {
		return nil, err
	}

	out := make(map[uint64]fetchedNode, len(ids))
	for offset, g := range bySector {
		sector := bufs[offset]
		for _, id := range g.ids {
			vec, nbrs := f.loader.ParseNodeRecord(sector, f.loader.NodeOffsetInSector(id))
			out[id] = fetchedNode{Vector: vec, Neighbors: nbrs}
		}
	}
	stats.IOsIssued += len(reqs)
	stats.SectorsRead += len(reqs)
	return out, nil
}

func submitWithRetry(r *FileBlockReader, reqs []BlockRequest, stats *QueryStats) error {
	var err error
	for attempt := 0; attempt <= maxFetchRetries; attempt++ {
		err = r.SubmitBatch(reqs)
		if err == nil {
			return nil
		}
		if _, retryable := err.(*RetryableIOError); !retryable {
			return ioFatalErrorf("non-retryable read failure: %w", err)
		}
		stats.Retries++
	}
	return ioFatalErrorf("exceeded %d retries: %w", maxFetchRetries, err)
}

// arrayFetcher adapts an ArraySliceReader to NodeFetcher.
type arrayFetcher struct {
	reader       *ArraySliceReader
	maxNbrsPerPt int
	dim          int
	async        bool
}

func newArrayFetcher(r *ArraySliceReader, dim, maxNbrsPerPt int, async bool) *arrayFetcher {
	return &arrayFetcher{reader: r, dim: dim, maxNbrsPerPt: maxNbrsPerPt, async: async}
}

func (f *arrayFetcher) FetchMany(ids []uint64, stats *QueryStats) (map[uint64]fetchedNode, error) {
	embBufs := make(map[uint64][]float32, len(ids))
	numNbrsBufs := make(map[uint64]*uint32, len(ids))
	nbrBufs := make(map[uint64][]uint32, len(ids))
	reqs := make([]SlicePointRequest, len(ids))
	for i, id := range ids {
		emb := make([]float32, f.dim)
		var n uint32
		nbrs := make([]uint32, f.maxNbrsPerPt)
		embBufs[id] = emb
		numNbrsBufs[id] = &n
		nbrBufs[id] = nbrs
		reqs[i] = SlicePointRequest{ID: id, EmbeddingBuf: emb, NumNbrsBuf: &n, NeighborhoodBuf: nbrs}
	}

	var err error
	for attempt := 0; attempt <= maxFetchRetries; attempt++ {
		err = f.reader.ReadBatch(reqs, f.async, false, false)
		if err == nil {
			break
		}
		if _, retryable := err.(*RetryableIOError); !retryable {
			return nil, ioFatalErrorf("non-retryable read failure: %w", err)
		}
		stats.Retries++
	}
	if err != nil {
		return nil, ioFatalErrorf("exceeded %d retries: %w", maxFetchRetries, err)
	}

	out := make(map[uint64]fetchedNode, len(ids))
	for _, id := range ids {
		n := *numNbrsBufs[id]
		out[id] = fetchedNode{Vector: embBufs[id], Neighbors: nbrBufs[id][:n]}
	}
	stats.IOsIssued += len(reqs)
	return out, nil
}

// cacheFetcher answers from a warm NodeCache with zero I/O, used by the
// search engine before falling back to the real backend fetcher.
type cacheFetcher struct {
	cache *NodeCache
}

func (c *cacheFetcher) lookup(id uint64) (fetchedNode, bool) {
	n, ok := c.cache.Get(id)
	if !ok {
		return fetchedNode{}, false
	}
	return fetchedNode{Vector: n.Vector, Neighbors: n.Neighbors}, true
}
