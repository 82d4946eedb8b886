package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the disk-resident ANN engine.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Search metrics
	SearchesTotal    prometheus.Counter
	SearchLatency    prometheus.Histogram
	SearchResultSize prometheus.Histogram
	SearchHops       prometheus.Histogram
	SearchAborts     *prometheus.CounterVec

	// Range search metrics
	RangeSearchesTotal prometheus.Counter
	RangeWidenings     prometheus.Histogram

	// I/O metrics
	IOsIssued   prometheus.Counter
	SectorsRead prometheus.Counter
	IORetries   prometheus.Counter
	IOFatals    prometheus.Counter

	// Node cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSize   prometheus.Gauge

	// Index metrics
	IndexLoadDuration prometheus.Histogram
	IndexNumPoints    prometheus.Gauge
	CacheWarmTotal    prometheus.Counter

	// System metrics
	GoroutinesCount prometheus.Gauge
	MemoryUsage     prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diskann_requests_total",
				Help: "Total number of requests by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "diskann_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diskann_request_errors_total",
				Help: "Total number of request errors by method and error type",
			},
			[]string{"method", "error_type"},
		),

		SearchesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "diskann_searches_total",
				Help: "Total number of beam search operations",
			},
		),
		SearchLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diskann_search_latency_seconds",
				Help:    "Beam search latency in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		SearchResultSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diskann_search_result_size",
				Help:    "Number of results returned by search",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
			},
		),
		SearchHops: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diskann_search_hops",
				Help:    "Number of EXPAND hops per query",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
			},
		),
		SearchAborts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diskann_search_aborts_total",
				Help: "Total number of searches that hit io_limit before converging",
			},
			[]string{"reason"},
		),

		RangeSearchesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "diskann_range_searches_total",
				Help: "Total number of range search operations",
			},
		),
		RangeWidenings: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diskann_range_search_widenings",
				Help:    "Number of L-doubling widening rounds per range search",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 6},
			},
		),

		IOsIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "diskann_ios_issued_total",
				Help: "Total number of block/slice read requests issued",
			},
		),
		SectorsRead: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "diskann_sectors_read_total",
				Help: "Total number of 4096-byte sectors read from the flat backend",
			},
		),
		IORetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "diskann_io_retries_total",
				Help: "Total number of retried reads after a transient I/O error",
			},
		),
		IOFatals: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "diskann_io_fatal_total",
				Help: "Total number of reads that exhausted retries or hit a non-retryable error",
			},
		),

		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "diskann_node_cache_hits_total",
				Help: "Total number of node cache hits",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "diskann_node_cache_misses_total",
				Help: "Total number of node cache misses",
			},
		),
		CacheSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "diskann_node_cache_size",
				Help: "Current number of nodes resident in the warm node cache",
			},
		),

		IndexLoadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diskann_index_load_duration_seconds",
				Help:    "Time taken to open an index (header parse plus backend init)",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30},
			},
		),
		IndexNumPoints: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "diskann_index_num_points",
				Help: "Number of points in the currently open index",
			},
		),
		CacheWarmTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "diskann_cache_warm_total",
				Help: "Total number of warm_cache calls",
			},
		),

		GoroutinesCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "diskann_goroutines",
				Help: "Current number of goroutines",
			},
		),
		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "diskann_memory_bytes",
				Help: "Memory usage in bytes",
			},
		),
	}

	return m
}

// RecordRequest records a request with duration and status
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(method, errorType string) {
	m.RequestErrors.WithLabelValues(method, errorType).Inc()
}

// RecordSearch records a completed beam search: latency, result size, and
// the number of EXPAND hops the scratch state machine took.
func (m *Metrics) RecordSearch(duration time.Duration, resultSize, hops int) {
	m.SearchesTotal.Inc()
	m.SearchLatency.Observe(duration.Seconds())
	m.SearchResultSize.Observe(float64(resultSize))
	m.SearchHops.Observe(float64(hops))
}

// RecordSearchAbort records a search that hit io_limit before the beam
// converged.
func (m *Metrics) RecordSearchAbort(reason string) {
	m.SearchAborts.WithLabelValues(reason).Inc()
}

// RecordRangeSearch records a completed range search's widening count.
func (m *Metrics) RecordRangeSearch(widenings int) {
	m.RangeSearchesTotal.Inc()
	m.RangeWidenings.Observe(float64(widenings))
}

// RecordIO records block/slice reads, sectors, retries, and fatal I/O errors
// for one FetchMany call.
func (m *Metrics) RecordIO(iosIssued, sectorsRead, retries int, fatal bool) {
	m.IOsIssued.Add(float64(iosIssued))
	m.SectorsRead.Add(float64(sectorsRead))
	m.IORetries.Add(float64(retries))
	if fatal {
		m.IOFatals.Inc()
	}
}

// RecordCacheHit records a node cache hit
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a node cache miss
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// UpdateCacheSize updates the node cache size gauge
func (m *Metrics) UpdateCacheSize(size int) {
	m.CacheSize.Set(float64(size))
}

// RecordIndexLoad records the time taken by Open and the resulting point
// count.
func (m *Metrics) RecordIndexLoad(duration time.Duration, numPoints int) {
	m.IndexLoadDuration.Observe(duration.Seconds())
	m.IndexNumPoints.Set(float64(numPoints))
}

// RecordCacheWarm records a warm_cache call.
func (m *Metrics) RecordCacheWarm() {
	m.CacheWarmTotal.Inc()
}

// UpdateGoroutineCount updates goroutine count
func (m *Metrics) UpdateGoroutineCount(count int) {
	m.GoroutinesCount.Set(float64(count))
}

// UpdateMemoryUsage updates memory usage
func (m *Metrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// GetCacheHitRate returns the cache hit rate. Needs to be computed from the
// counters at scrape time by the caller; this helper only exists for
// in-process reporting where the raw counts aren't otherwise visible.
func (m *Metrics) GetCacheHitRate(hits, misses float64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return hits / total
}
