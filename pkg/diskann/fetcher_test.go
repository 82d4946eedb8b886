package diskann

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestFlatFetcherFetchManyBatchesSharedSector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.bin")
	buildFlatIndexFile(t, path, 4, 2, 2)

	loader, err := OpenFlatIndex(path, Float32)
	if err != nil {
		t.Fatalf("OpenFlatIndex: %v", err)
	}
	defer loader.Close()

	f := newFlatFetcher(loader)
	stats := &QueryStats{}
	got, err := f.FetchMany([]uint64{0, 1, 3}, stats)
	if err != nil {
		t.Fatalf("FetchMany: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d nodes, want 3", len(got))
	}
	// All four points share one sector (nodesPerSector == numPts in this
	// fixture), so the three-id batch should cost exactly one sector read.
	if stats.SectorsRead != 1 {
		t.Fatalf("SectorsRead = %d, want 1", stats.SectorsRead)
	}
	for _, id := range []uint64{0, 1, 3} {
		n := got[id]
		if len(n.Vector) != 2 || len(n.Neighbors) != 2 {
			t.Fatalf("node %d: vector/neighbor length mismatch: %+v", id, n)
		}
		if n.Vector[0] != float32(id*10) {
			t.Fatalf("node %d: vector[0] = %v, want %v", id, n.Vector[0], float32(id*10))
		}
	}
}

func TestFlatFetcherRetriesTransientFault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.bin")
	buildFlatIndexFile(t, path, 4, 2, 2)

	loader, err := OpenFlatIndex(path, Float32)
	if err != nil {
		t.Fatalf("OpenFlatIndex: %v", err)
	}
	defer loader.Close()

	offset, _ := loader.NodeSectorOffset(0)
	loader.Reader().InjectTransientFault(offset)

	f := newFlatFetcher(loader)
	stats := &QueryStats{}
	got, err := f.FetchMany([]uint64{0}, stats)
	if err != nil {
		t.Fatalf("FetchMany: %v", err)
	}
	if stats.Retries < 1 {
		t.Fatalf("expected at least one retry, got %d", stats.Retries)
	}
	if len(got) != 1 {
		t.Fatalf("got %d nodes, want 1", len(got))
	}
}

func TestFlatFetcherFatalOnNonRetryableError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.bin")
	buildFlatIndexFile(t, path, 4, 2, 2)

	loader, err := OpenFlatIndex(path, Float32)
	if err != nil {
		t.Fatalf("OpenFlatIndex: %v", err)
	}
	defer loader.Close()
	loader.Close() // force every subsequent ReadAt to fail non-retryably

	f := newFlatFetcher(loader)
	stats := &QueryStats{}
	_, err = f.FetchMany([]uint64{0}, stats)
	if err == nil {
		t.Fatalf("expected an error after closing the underlying file")
	}
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindIOFatal {
		t.Fatalf("err = %v, want KindIOFatal", err)
	}
}

func TestArrayFetcherFetchMany(t *testing.T) {
	dir := t.TempDir()
	prefix := buildTestArrays(t, dir, 5, 4, 3)

	r, err := OpenArraySliceReader(prefix, 5, 4, 3, "", 0)
	if err != nil {
		t.Fatalf("OpenArraySliceReader: %v", err)
	}
	defer r.Close()

	f := newArrayFetcher(r, 4, 3, false)
	stats := &QueryStats{}
	got, err := f.FetchMany([]uint64{0, 2, 4}, stats)
	if err != nil {
		t.Fatalf("FetchMany: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d nodes, want 3", len(got))
	}
	n2 := got[2]
	if n2.Vector[0] != 20 || n2.Vector[1] != 21 {
		t.Fatalf("node 2 vector = %v, want [20 21 ...]", n2.Vector)
	}
	if len(n2.Neighbors) != int(2%3) {
		t.Fatalf("node 2 neighbors = %v, want length %d", n2.Neighbors, 2%3)
	}
	if stats.IOsIssued != 3 {
		t.Fatalf("IOsIssued = %d, want 3", stats.IOsIssued)
	}
}

func TestCacheFetcherLookup(t *testing.T) {
	cache := NewNodeCache(2, 2)
	err := cache.Populate([]uint64{0, 1}, func(id uint64) ([]float32, []uint32, error) {
		return []float32{float32(id), float32(id) + 1}, []uint32{uint32((id + 1) % 2)}, nil
	})
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}

	cf := &cacheFetcher{cache: cache}
	n, ok := cf.lookup(1)
	if !ok {
		t.Fatalf("expected id 1 to be cached")
	}
	if n.Vector[0] != 1 || n.Vector[1] != 2 {
		t.Fatalf("vector = %v, want [1 2]", n.Vector)
	}

	if _, ok := cf.lookup(99); ok {
		t.Fatalf("expected id 99 to be a cache miss")
	}
}
