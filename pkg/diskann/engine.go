package diskann

import (
	"encoding/binary"
	"io"
	"os"
)

// OpenOptions bundles the optional knobs from spec 6's open() signature
// beyond the required (prefix, num_threads): which storage backend to use,
// and where to reach it.
type OpenOptions struct {
	ElementType     ElementType // on-disk element type for the flat backend; ignored for the array backend (always f32)
	Metric          Metric      // distance metric the index was built with; defaults to L2 (the zero value)
	TensorsPrefix   string      // array backend prefix; required when UseTensors is set
	UseTensors      bool
	UseTensorsAsync bool
	RemoteAddr      string // non-empty routes the array backend over HTTP instead of local files
	CachePoolBytes  int64  // advisory array-backend cache budget, 0 = unbounded
}

// Engine is the one entry point spec 6 describes: open a flat or array
// backed index, optionally warm a node cache, and run beam or range
// search against it through a pool of per-thread scratch state.
type Engine struct {
	flat  *FlatIndexLoader
	array *ArraySliceReader

	fetcher NodeFetcher
	cache   *NodeCache
	pq      *PQTable
	pqCodes map[uint64][]byte

	search *SearchEngine
	pool   *ScratchPool

	metric      Metric
	medoids     []uint64
	centroids   [][]float32
	maxBaseNorm float32

	dim        int
	maxDegree  int
	numThreads int
}

// Open implements spec 6's open(): load the header (and, if UseTensors,
// the array triple instead of the flat file), the optional PQ codebook and
// compressed codes, and the optional medoid/centroid siblings, and wire
// them into a ready-to-query Engine.
func Open(prefix string, numThreads int, opts OpenOptions) (*Engine, error) {
	if numThreads <= 0 {
		return nil, usageErrorf("num_threads must be positive, got %d", numThreads)
	}

	e := &Engine{numThreads: numThreads}

	var header FlatIndexHeader
	var maxNbrsPerPt uint64

	if opts.UseTensors {
		if opts.TensorsPrefix == "" {
			return nil, usageErrorf("tensors_prefix is required when use_tensors is set")
		}
		hdrPath := prefix + "_meta.bin"
		hdr, err := readSidecarHeader(hdrPath)
		if err != nil {
			return nil, err
		}
		header = hdr
		maxNbrsPerPt = header.MaxNbrsPerPoint(Float32.Size())

		arr, err := OpenArraySliceReader(opts.TensorsPrefix, int64(header.NumPoints), int64(header.DataDim), int64(maxNbrsPerPt), opts.RemoteAddr, opts.CachePoolBytes)
		if err != nil {
			return nil, err
		}
		e.array = arr
		e.fetcher = newArrayFetcher(arr, int(header.DataDim), int(maxNbrsPerPt), opts.UseTensorsAsync)
	} else {
		loader, err := OpenFlatIndex(prefix, opts.ElementType)
		if err != nil {
			return nil, err
		}
		header = loader.Header
		maxNbrsPerPt = loader.MaxNbrsPerPt
		e.flat = loader
		e.fetcher = newFlatFetcher(loader)
	}

	e.dim = int(header.DataDim)
	e.maxDegree = int(maxNbrsPerPt)

	medoids, centroids, err := loadMedoids(prefix, header.Medoid, e.dim)
	if err != nil {
		return nil, err
	}

	metric, maxBaseNorm := opts.Metric, float32(0)
	pq, pqCodes, err := loadPQ(prefix, int(header.NumPoints), metric)
	if err != nil {
		return nil, err
	}
	if pq != nil {
		maxBaseNorm = pq.MaxBaseNorm()
	}

	e.pq = pq
	e.pqCodes = pqCodes
	e.metric = metric
	e.medoids = medoids
	e.centroids = centroids
	e.maxBaseNorm = maxBaseNorm
	e.search = NewSearchEngine(e.fetcher, nil, pq, pqCodes, metric, e.dim, medoids, centroids, maxBaseNorm)
	e.pool = NewScratchPool(numThreads, func() *Scratch {
		return NewScratch(256, 64, sectorLen, 2, 4096)
	})
	return e, nil
}

// WarmCache implements spec 6's warm_cache(): populate the node cache with
// the given ids, reading each through the open backend, then rewires
// search to consult it before falling back to the backend fetcher.
func (e *Engine) WarmCache(ids []uint64) error {
	if e.cache == nil {
		e.cache = NewNodeCache(e.dim, e.maxDegree)
	}
	fetchOne := func(id uint64) ([]float32, []uint32, error) {
		stats := &QueryStats{}
		nodes, err := e.fetcher.FetchMany([]uint64{id}, stats)
		if err != nil {
			return nil, nil, err
		}
		n := nodes[id]
		return n.Vector, n.Neighbors, nil
	}
	if err := e.cache.Populate(ids, fetchOne); err != nil {
		return err
	}
	e.search = NewSearchEngine(e.fetcher, e.cache, e.pq, e.pqCodes, e.metric, e.dim, e.medoids, e.centroids, e.maxBaseNorm)
	return nil
}

// BFSCache implements spec 6's bfs_cache(): breadth-first traversal from
// the medoid(s) out to numNodes unique ids, the only cache-list selection
// policy this core implements (a sample-query-driven selector is external,
// per spec 4.5).
func (e *Engine) BFSCache(numNodes int) ([]uint64, error) {
	seen := make(map[uint64]bool, numNodes)
	var order []uint64
	queue := append([]uint64(nil), e.medoids...)
	for len(queue) > 0 && len(order) < numNodes {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
		if len(order) >= numNodes {
			break
		}
		stats := &QueryStats{}
		nodes, err := e.fetcher.FetchMany([]uint64{id}, stats)
		if err != nil {
			return nil, err
		}
		for _, nbr := range nodes[id].Neighbors {
			if !seen[uint64(nbr)] {
				queue = append(queue, uint64(nbr))
			}
		}
	}
	return order, nil
}

// Search implements spec 6's search().
func (e *Engine) Search(query []float32, k, l, beam, ioLimit int, reorder bool) ([]uint64, []float32, QueryStats, error) {
	if k <= 0 || l < k {
		return nil, nil, QueryStats{}, usageErrorf("invalid k=%d, L=%d (require k>0, L>=k)", k, l)
	}
	if len(query) != e.dim {
		return nil, nil, QueryStats{}, usageErrorf("query dim %d, want %d", len(query), e.dim)
	}

	scratch := e.pool.Acquire()
	defer e.pool.Release(scratch)
	scratch.Best = NewBestList(l)

	ids, dists, err := e.search.Search(query, SearchParams{K: k, L: l, BeamWidth: beam, IOLimit: ioLimit, UseReorderData: reorder}, scratch)
	stats := scratch.Stats
	if err != nil {
		return nil, nil, stats, err
	}
	return ids, dists, stats, nil
}

// RangeSearch implements spec 6's range_search().
func (e *Engine) RangeSearch(query []float32, r float32, lMin, lMax, maxResults, beam int) ([]uint64, []float32, QueryStats, error) {
	if len(query) != e.dim {
		return nil, nil, QueryStats{}, usageErrorf("query dim %d, want %d", len(query), e.dim)
	}
	scratch := e.pool.Acquire()
	defer e.pool.Release(scratch)

	ids, dists, err := e.search.RangeSearch(query, RangeParams{Radius: r, LMin: lMin, LMax: lMax, BeamWidth: beam, MaxResultSize: maxResults}, scratch)
	stats := scratch.Stats
	if err != nil {
		return nil, nil, stats, err
	}
	return ids, dists, stats, nil
}

// Dimension returns the vector dimensionality of the open index.
func (e *Engine) Dimension() int { return e.dim }

// MaxDegree returns the maximum out-degree (R) of the open index's graph.
func (e *Engine) MaxDegree() int { return e.maxDegree }

// Close implements spec 6's close(): release whichever backend is open.
func (e *Engine) Close() error {
	if e.flat != nil {
		return e.flat.Close()
	}
	if e.array != nil {
		return e.array.Close()
	}
	return nil
}

// readSidecarHeader reads a flat-style header from a standalone file, used
// when the array backend is selected: the array triple carries no header
// of its own, so medoid/shape metadata still comes from this sidecar.
func readSidecarHeader(path string) (FlatIndexHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return FlatIndexHeader{}, loadErrorf("opening tensor sidecar header %s: %w", path, err)
	}
	defer f.Close()
	return ReadFlatIndexHeader(f)
}

// loadMedoids reads the optional <prefix>_medoids.bin / <prefix>_centroid.bin
// sidecars. Absent the medoids file, the single header medoid is used.
// Absent only the centroid file, the listed medoids are kept with no
// centroid-based entry point selection (search starts from the first).
func loadMedoids(prefix string, headerMedoid uint64, dim int) (medoids []uint64, centroids [][]float32, err error) {
	mf, err := os.Open(prefix + "_medoids.bin")
	if err != nil {
		return []uint64{headerMedoid}, nil, nil
	}
	defer mf.Close()

	info, err := mf.Stat()
	if err != nil {
		return nil, nil, loadErrorf("stat medoids file: %w", err)
	}
	n := info.Size() / 8
	ids := make([]uint64, n)
	if err := binary.Read(mf, binary.LittleEndian, &ids); err != nil {
		return nil, nil, loadErrorf("reading medoids: %w", err)
	}

	cf, err := os.Open(prefix + "_centroid.bin")
	if err != nil {
		return ids, nil, nil
	}
	defer cf.Close()
	raw := make([]float32, n*int64(dim))
	if err := binary.Read(cf, binary.LittleEndian, &raw); err != nil {
		return nil, nil, loadErrorf("reading centroids: %w", err)
	}
	centroids = make([][]float32, n)
	for i := range centroids {
		centroids[i] = raw[i*dim : (i+1)*dim]
	}
	return ids, centroids, nil
}

// loadPQ reads the optional <prefix>_pq_pivots.bin codebook and
// <prefix>_pq_compressed.bin codes. Absent the codebook, PQ scoring is
// skipped entirely and every distance is computed at full precision.
func loadPQ(prefix string, numPoints int, metric Metric) (*PQTable, map[uint64][]byte, error) {
	pf, err := os.Open(prefix + "_pq_pivots.bin")
	if err != nil {
		return nil, nil, nil
	}
	defer pf.Close()
	codebook, err := LoadPQCodebook(pf)
	if err != nil {
		return nil, nil, err
	}
	table := NewPQTable(codebook, metric)

	cf, err := os.Open(prefix + "_pq_compressed.bin")
	if err != nil {
		return table, nil, nil
	}
	defer cf.Close()
	codes := make(map[uint64][]byte, numPoints)
	row := make([]byte, codebook.NChunks)
	for id := 0; id < numPoints; id++ {
		if _, err := io.ReadFull(cf, row); err != nil {
			return table, nil, loadErrorf("reading pq codes for id %d: %w", id, err)
		}
		stored := make([]byte, codebook.NChunks)
		copy(stored, row)
		codes[uint64(id)] = stored
	}
	return table, codes, nil
}
