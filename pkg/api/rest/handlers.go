package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vamanaio/diskann/pkg/diskann"
	"github.com/vamanaio/diskann/pkg/observability"
)

// Handler serves the Engine API (search/range_search/warm_cache/bfs_cache)
// over plain HTTP+JSON, with an optional response cache in front of Search
// and RangeSearch.
type Handler struct {
	engine  *diskann.Engine
	cache   *QueryCache
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewHandler creates a new REST API handler. cache may be nil to disable
// response caching.
func NewHandler(engine *diskann.Engine, cache *QueryCache, metrics *observability.Metrics, logger *observability.Logger) *Handler {
	return &Handler{engine: engine, cache: cache, metrics: metrics, logger: logger}
}

// HealthCheck handles GET /v1/health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats := map[string]interface{}{
		"dimension":  h.engine.Dimension(),
		"max_degree": h.engine.MaxDegree(),
	}
	if h.cache != nil {
		cs := h.cache.Stats()
		stats["response_cache"] = map[string]interface{}{
			"hits": cs.Hits, "misses": cs.Misses, "size": cs.Size, "hit_rate": cs.HitRate,
		}
	}
	writeJSON(w, stats, http.StatusOK)
}

type searchRequest struct {
	Query          []float32 `json:"query"`
	K              int       `json:"k"`
	L              int       `json:"l"`
	BeamWidth      int       `json:"beam_width"`
	IOLimit        int       `json:"io_limit"`
	UseReorderData bool      `json:"use_reorder_data"`
}

type searchResponse struct {
	IDs   []uint64  `json:"ids"`
	Dists []float32 `json:"dists"`
	Hops  int       `json:"hops,omitempty"`
}

// Search handles POST /v1/search
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	var key CacheKey
	if h.cache != nil {
		key = GenerateSearchKey(req.Query, req.K, req.L, req.BeamWidth, req.IOLimit, req.UseReorderData)
		if cached, ok := h.cache.GetSearchResult(key); ok {
			h.metrics.RecordCacheHit()
			writeJSON(w, searchResponse{IDs: cached.IDs, Dists: cached.Dists}, http.StatusOK)
			return
		}
		h.metrics.RecordCacheMiss()
	}

	start := time.Now()
	ids, dists, stats, err := h.engine.Search(req.Query, req.K, req.L, req.BeamWidth, req.IOLimit, req.UseReorderData)
	if err != nil {
		h.metrics.RecordError("Search", "engine_error")
		writeError(w, fmt.Sprintf("Search failed: %v", err), http.StatusBadRequest)
		return
	}
	h.metrics.RecordSearch(time.Since(start), len(ids), stats.Hops)

	if h.cache != nil {
		h.cache.PutSearchResult(key, SearchResult{IDs: ids, Dists: dists})
	}

	writeJSON(w, searchResponse{IDs: ids, Dists: dists, Hops: stats.Hops}, http.StatusOK)
}

type rangeSearchRequest struct {
	Query         []float32 `json:"query"`
	Radius        float32   `json:"radius"`
	LMin          int       `json:"l_min"`
	LMax          int       `json:"l_max"`
	MaxResultSize int       `json:"max_result_size"`
	BeamWidth     int       `json:"beam_width"`
}

type rangeSearchResponse struct {
	IDs       []uint64  `json:"ids"`
	Dists     []float32 `json:"dists"`
	Widenings int       `json:"widenings,omitempty"`
}

// RangeSearch handles POST /v1/range_search
func (h *Handler) RangeSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rangeSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	var key CacheKey
	if h.cache != nil {
		key = GenerateRangeSearchKey(req.Query, req.Radius, req.LMin, req.LMax, req.MaxResultSize, req.BeamWidth)
		if cached, ok := h.cache.GetSearchResult(key); ok {
			h.metrics.RecordCacheHit()
			writeJSON(w, rangeSearchResponse{IDs: cached.IDs, Dists: cached.Dists}, http.StatusOK)
			return
		}
		h.metrics.RecordCacheMiss()
	}

	ids, dists, stats, err := h.engine.RangeSearch(req.Query, req.Radius, req.LMin, req.LMax, req.MaxResultSize, req.BeamWidth)
	if err != nil {
		h.metrics.RecordError("RangeSearch", "engine_error")
		writeError(w, fmt.Sprintf("Range search failed: %v", err), http.StatusBadRequest)
		return
	}
	h.metrics.RecordRangeSearch(stats.RangeWidenings)

	if h.cache != nil {
		h.cache.PutSearchResult(key, SearchResult{IDs: ids, Dists: dists})
	}

	writeJSON(w, rangeSearchResponse{IDs: ids, Dists: dists, Widenings: stats.RangeWidenings}, http.StatusOK)
}

type warmCacheRequest struct {
	IDs []uint64 `json:"ids"`
}

// WarmCache handles POST /v1/warm_cache
func (h *Handler) WarmCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req warmCacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.engine.WarmCache(req.IDs); err != nil {
		h.metrics.RecordError("WarmCache", "engine_error")
		writeError(w, fmt.Sprintf("Warm cache failed: %v", err), http.StatusBadRequest)
		return
	}
	h.metrics.RecordCacheWarm()

	writeJSON(w, map[string]int{"warmed": len(req.IDs)}, http.StatusOK)
}

// BFSCache handles GET /v1/bfs_cache?num_nodes=N
func (h *Handler) BFSCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	numNodes := ParseIntQuery(r, "num_nodes", 0)
	if numNodes <= 0 {
		writeError(w, "num_nodes query parameter must be a positive integer", http.StatusBadRequest)
		return
	}

	ids, err := h.engine.BFSCache(numNodes)
	if err != nil {
		h.metrics.RecordError("BFSCache", "engine_error")
		writeError(w, fmt.Sprintf("BFS cache selection failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string][]uint64{"ids": ids}, http.StatusOK)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  message,
		"status": statusCode,
	})
}

// ParseIntQuery parses an integer query parameter
func ParseIntQuery(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	var parsed int
	if _, err := fmt.Sscanf(value, "%d", &parsed); err != nil {
		return defaultValue
	}

	return parsed
}
