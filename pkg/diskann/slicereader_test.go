package diskann

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeArrayFile(t *testing.T, path, dtype string, rows, cols int64, fill func(row int64) []byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	hdr := make([]byte, arrayHeaderSize)
	copy(hdr, dtype)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(rows))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(cols))
	if _, err := f.Write(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for i := int64(0); i < rows; i++ {
		if _, err := f.Write(fill(i)); err != nil {
			t.Fatalf("write row %d: %v", i, err)
		}
	}
}

func float32RowBytes(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func uint32RowBytes(vals []uint32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

func buildTestArrays(t *testing.T, dir string, numPts, numDims, maxNbrs int64) string {
	t.Helper()
	prefix := filepath.Join(dir, "idx")

	writeArrayFile(t, prefix+"_embedding.arr", DtypeFloat32, numPts, numDims, func(row int64) []byte {
		vals := make([]float32, numDims)
		for j := range vals {
			vals[j] = float32(row)*10 + float32(j)
		}
		return float32RowBytes(vals)
	})
	writeArrayFile(t, prefix+"_num_nbrs.arr", DtypeUint32, numPts, 1, func(row int64) []byte {
		return uint32RowBytes([]uint32{uint32(row % 3)})
	})
	writeArrayFile(t, prefix+"_nbrhood.arr", DtypeUint32, numPts, maxNbrs, func(row int64) []byte {
		vals := make([]uint32, maxNbrs)
		for j := range vals {
			vals[j] = uint32((row + int64(j) + 1) % numPts)
		}
		return uint32RowBytes(vals)
	})
	return prefix
}

func TestArraySliceReaderSyncReadBatch(t *testing.T) {
	dir := t.TempDir()
	prefix := buildTestArrays(t, dir, 5, 4, 3)

	r, err := OpenArraySliceReader(prefix, 5, 4, 3, "", 0)
	if err != nil {
		t.Fatalf("OpenArraySliceReader: %v", err)
	}
	defer r.Close()

	emb := make([]float32, 4)
	var numNbrs uint32
	nbrs := make([]uint32, 3)
	req := SlicePointRequest{ID: 2, EmbeddingBuf: emb, NumNbrsBuf: &numNbrs, NeighborhoodBuf: nbrs}

	if err := r.ReadBatch([]SlicePointRequest{req}, false, false, false); err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	want := []float32{20, 21, 22, 23}
	for i := range want {
		if emb[i] != want[i] {
			t.Fatalf("embedding[%d] = %v, want %v", i, emb[i], want[i])
		}
	}
	if numNbrs != 2 {
		t.Fatalf("numNbrs = %d, want 2", numNbrs)
	}
}

func TestArraySliceReaderSkipFlags(t *testing.T) {
	dir := t.TempDir()
	prefix := buildTestArrays(t, dir, 5, 4, 3)

	r, err := OpenArraySliceReader(prefix, 5, 4, 3, "", 0)
	if err != nil {
		t.Fatalf("OpenArraySliceReader: %v", err)
	}
	defer r.Close()

	emb := []float32{-1, -1, -1, -1}
	nbrs := []uint32{99, 99, 99}
	req := SlicePointRequest{ID: 1, EmbeddingBuf: emb, NeighborhoodBuf: nbrs}

	if err := r.ReadBatch([]SlicePointRequest{req}, true, true, true); err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	for _, v := range emb {
		if v != -1 {
			t.Fatalf("embedding buffer was touched despite skip_embedding: %v", emb)
		}
	}
	for _, v := range nbrs {
		if v != 99 {
			t.Fatalf("neighborhood buffer was touched despite skip_neighbors: %v", nbrs)
		}
	}
}

func TestArraySliceReaderRejectsShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	prefix := buildTestArrays(t, dir, 5, 4, 3)

	if _, err := OpenArraySliceReader(prefix, 5, 8, 3, "", 0); err == nil {
		t.Fatalf("expected shape mismatch error for wrong numDims")
	}
}

func TestArraySliceReaderOutOfRangeID(t *testing.T) {
	dir := t.TempDir()
	prefix := buildTestArrays(t, dir, 5, 4, 3)

	r, err := OpenArraySliceReader(prefix, 5, 4, 3, "", 0)
	if err != nil {
		t.Fatalf("OpenArraySliceReader: %v", err)
	}
	defer r.Close()

	req := SlicePointRequest{ID: 99, EmbeddingBuf: make([]float32, 4)}
	if err := r.ReadBatch([]SlicePointRequest{req}, false, false, false); err == nil {
		t.Fatalf("expected out-of-range id to error")
	}
}

func TestCacheBudgetAdmission(t *testing.T) {
	b := newCacheBudget(100)
	if !b.TryAdmit(60) {
		t.Fatalf("expected 60 bytes to be admitted under a 100 byte budget")
	}
	if b.TryAdmit(60) {
		t.Fatalf("expected second 60 byte admission to be rejected")
	}
	b.Release(60)
	if !b.TryAdmit(60) {
		t.Fatalf("expected admission to succeed after release")
	}
}

func TestCacheBudgetUnbounded(t *testing.T) {
	b := newCacheBudget(0)
	if !b.TryAdmit(1 << 40) {
		t.Fatalf("expected unbounded budget (limit<=0) to admit anything")
	}
}
