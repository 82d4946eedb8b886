package diskann

import (
	"encoding/binary"
	"io"
)

// PQCodebook holds, for each of n_chunks sub-spaces, a 256-entry centroid
// codebook over that sub-space's dimensions. It is pure consumption-side
// state: training the codebook (k-means over sampled base vectors) is index
// construction and out of scope here; see SPEC_FULL.md.
//
// The on-disk layout this loader expects (sibling file `<prefix>_pq_pivots.bin`):
//
//	int32 nChunks
//	int32 dim
//	int32 chunkBounds[nChunks+1]   // dim offsets bounding each chunk
//	float32 maxBaseNorm            // 0 if the build didn't rescale for IP
//	float32 centroids[nChunks][256][chunkDim]
const pqCodesPerChunk = 256

type PQCodebook struct {
	NChunks     int
	Dim         int
	ChunkBounds []int // length NChunks+1
	MaxBaseNorm float32
	Centroids   [][][]float32 // [chunk][code][chunkDim]
}

// ChunkDim returns the dimensionality of sub-space c.
func (cb *PQCodebook) ChunkDim(c int) int {
	return cb.ChunkBounds[c+1] - cb.ChunkBounds[c]
}

// LoadPQCodebook reads a codebook from r.
func LoadPQCodebook(r io.Reader) (*PQCodebook, error) {
	var nChunks, dim int32
	if err := binary.Read(r, binary.LittleEndian, &nChunks); err != nil {
		return nil, loadErrorf("read pq nChunks: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, loadErrorf("read pq dim: %w", err)
	}
	bounds := make([]int32, nChunks+1)
	if err := binary.Read(r, binary.LittleEndian, &bounds); err != nil {
		return nil, loadErrorf("read pq chunk bounds: %w", err)
	}
	var maxBaseNorm float32
	if err := binary.Read(r, binary.LittleEndian, &maxBaseNorm); err != nil {
		return nil, loadErrorf("read pq max base norm: %w", err)
	}

	cb := &PQCodebook{
		NChunks:     int(nChunks),
		Dim:         int(dim),
		ChunkBounds: make([]int, nChunks+1),
		MaxBaseNorm: maxBaseNorm,
		Centroids:   make([][][]float32, nChunks),
	}
	for i, b := range bounds {
		cb.ChunkBounds[i] = int(b)
	}
	for c := 0; c < int(nChunks); c++ {
		cd := cb.ChunkDim(c)
		cb.Centroids[c] = make([][]float32, pqCodesPerChunk)
		for code := 0; code < pqCodesPerChunk; code++ {
			row := make([]float32, cd)
			if err := binary.Read(r, binary.LittleEndian, &row); err != nil {
				return nil, loadErrorf("read pq centroid chunk=%d code=%d: %w", c, code, err)
			}
			cb.Centroids[c][code] = row
		}
	}
	return cb, nil
}

// PQTable is a codebook bound to a metric: it builds per-query lookup
// tables and scores slabs of PQ codes against them. This is C2 exactly:
// "Given a query of length D, produces LUT of shape [n_chunks][256] ...
// Given a contiguous slab of PQ codes ... produces a parallel distance
// vector."
type PQTable struct {
	codebook *PQCodebook
	metric   Metric
}

func NewPQTable(codebook *PQCodebook, metric Metric) *PQTable {
	return &PQTable{codebook: codebook, metric: metric}
}

// BuildLUT computes LUT[chunk][code] = approximate distance from the
// query's chunk sub-vector to that chunk's code-th centroid.
//
//   - InnerProduct: LUT holds the negated per-chunk dot product.
//   - L2: LUT holds the squared per-chunk difference.
//   - Cosine: LUT is the L2 LUT of the (already build-time) normalized
//     centroids against a normalized query, per spec 4.2.
func (t *PQTable) BuildLUT(query []float32) [][]float32 {
	q := query
	if t.metric == Cosine {
		n := Norm(query)
		if n > 0 {
			q = make([]float32, len(query))
			for i, v := range query {
				q[i] = v / n
			}
		}
	}

	lut := make([][]float32, t.codebook.NChunks)
	for c := 0; c < t.codebook.NChunks; c++ {
		lo, hi := t.codebook.ChunkBounds[c], t.codebook.ChunkBounds[c+1]
		sub := q[lo:hi]
		row := make([]float32, pqCodesPerChunk)
		for code := 0; code < pqCodesPerChunk; code++ {
			centroid := t.codebook.Centroids[c][code]
			switch t.metric {
			case InnerProduct:
				row[code] = InnerProductDistance(sub, centroid)
			default: // L2, Cosine, FastL2 all score via squared L2 on the LUT
				row[code] = l2Distance(sub, centroid)
			}
		}
		lut[c] = row
	}
	return lut
}

// Distance returns the approximate distance for a single point's PQ code
// vector (length n_chunks) against a previously built LUT.
func (t *PQTable) Distance(codes []byte, lut [][]float32) float32 {
	var sum float32
	for c, code := range codes {
		sum += lut[c][code]
	}
	return sum
}

// DistanceSlab scores a contiguous slab of PQ codes for multiple candidate
// points in one pass, returning one distance per point, the "batch"
// variant of Distance used when reranking a frontier in bulk.
func (t *PQTable) DistanceSlab(slab []byte, nChunks int, lut [][]float32) []float32 {
	n := len(slab) / nChunks
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = t.Distance(slab[i*nChunks:(i+1)*nChunks], lut)
	}
	return out
}

// NChunks returns the codebook's chunk count, which must divide the PQ
// code stride exactly per the data-model invariant.
func (t *PQTable) NChunks() int { return t.codebook.NChunks }

// MaxBaseNorm exposes the build-time inner-product rescale factor.
func (t *PQTable) MaxBaseNorm() float32 { return t.codebook.MaxBaseNorm }
