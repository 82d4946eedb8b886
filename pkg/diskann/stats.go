package diskann

// QueryStats carries the per-query telemetry spec 4.7 "Statistics"
// requires: I/O issued, 4K blocks read, CPU/wall time, hop count, cache
// hits, and retries, plus an abort flag so failure never shows up as a
// silent partial result (spec section 7).
type QueryStats struct {
	IOsIssued      int
	SectorsRead    int
	CPUMicros      int64
	TotalMicros    int64
	Hops           int
	CacheHits      int
	Retries        int
	IOLimitHit     bool
	Aborted        bool
	AbortKind      ErrorKind
	RangeWidenings int // C8 only: number of times L was doubled
}
