package diskann

import "unsafe"

// Scratch holds everything one query needs that shouldn't be allocated
// fresh per query: the visited set, the best-list, a retry set for I/O
// retries, the PQ lookup table buffer, a work queue of frontier ids
// pending fetch, an aligned I/O slab, and the statistics counters, per spec
// 4.6 exactly. Scratches are leased from a ScratchPool and must be Reset
// before being returned.
type Scratch struct {
	L         int
	BeamWidth int

	Visited  map[uint64]bool
	Best     *BestList
	Retries  map[uint64]int
	LUT      [][]float32
	Frontier []uint64 // reused buffer for the current round's frontier ids

	// IOBuf is sized for beam_width * sectorLen plus head-room, page
	// aligned by alignedAlloc when NewScratch allocates it.
	IOBuf []byte

	Stats QueryStats
}

// NewScratch allocates one scratch sized for the given search parameters.
// visitedReserve pre-sizes the visited-set hash map, matching the
// SSDThreadData construction hint in the source ("visited_reserve = 4096").
func NewScratch(l, beamWidth, sectorLen, headroomSectors, visitedReserve int) *Scratch {
	return &Scratch{
		L:         l,
		BeamWidth: beamWidth,
		Visited:   make(map[uint64]bool, visitedReserve),
		Best:      NewBestList(l),
		Retries:   make(map[uint64]int),
		Frontier:  make([]uint64, 0, beamWidth),
		IOBuf:     alignedAlloc((beamWidth + headroomSectors) * sectorLen),
	}
}

// Reset clears per-query state so the scratch can be returned to the pool
// and leased again. The aligned I/O buffer is reused, not reallocated.
func (s *Scratch) Reset() {
	for k := range s.Visited {
		delete(s.Visited, k)
	}
	s.Best.Reset()
	for k := range s.Retries {
		delete(s.Retries, k)
	}
	s.LUT = nil
	s.Frontier = s.Frontier[:0]
	s.Stats = QueryStats{}
}

// ScratchPool is a bounded pool of pre-allocated Scratch objects, sized to
// max_threads, matching spec 4.6 ("Scratches are pooled in a blocking
// concurrent queue sized to max_threads"). Acquire blocks when exhausted;
// Release always returns the scratch whether the query succeeded or
// errored, so callers must defer it immediately after Acquire.
type ScratchPool struct {
	ch chan *Scratch
}

// NewScratchPool pre-allocates maxThreads scratches using factory and
// returns a pool ready for Acquire/Release.
func NewScratchPool(maxThreads int, factory func() *Scratch) *ScratchPool {
	p := &ScratchPool{ch: make(chan *Scratch, maxThreads)}
	for i := 0; i < maxThreads; i++ {
		p.ch <- factory()
	}
	return p
}

// Acquire blocks until a scratch is available.
func (p *ScratchPool) Acquire() *Scratch {
	return <-p.ch
}

// Release resets and returns a scratch to the pool.
func (p *ScratchPool) Release(s *Scratch) {
	s.Reset()
	p.ch <- s
}

// alignedAlloc returns a byte slice whose start address is 4096-aligned,
// sized to at least n bytes, matching the aligned-I/O-buffer requirement
// from spec 5 ("Memory: aligned I/O buffers are 4096-aligned").
func alignedAlloc(n int) []byte {
	const alignment = sectorLen
	buf := make([]byte, n+alignment)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	offset := (alignment - int(addr%uintptr(alignment))) % alignment
	return buf[offset : offset+n]
}
