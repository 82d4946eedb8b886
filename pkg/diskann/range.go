package diskann

// RangeParams bundles the knobs range search takes per query: every point
// within radius r of query, found by adaptively widening L from LMin until
// either it saturates at LMax or the full L-sized result isn't entirely
// within range (meaning nothing further out would qualify either).
type RangeParams struct {
	Radius        float32
	LMin          int
	LMax          int
	BeamWidth     int
	IOLimit       int
	MaxResultSize int
}

// RangeSearch implements spec 4.8: run beam search at L = LMin, then if
// every one of the L results returned is within radius r, meaning there
// may be more in-range points just beyond what this L reached; double L
// and search again, up to LMax. The result is filtered to exact distance
// <= r (results come back ascending, so filtering stops at the first miss)
// and truncated to MaxResultSize.
func (e *SearchEngine) RangeSearch(query []float32, params RangeParams, scratch *Scratch) ([]uint64, []float32, error) {
	l := params.LMin
	if l <= 0 {
		l = 1
	}

	var ids []uint64
	var dists []float32
	for {
		scratch.Best = NewBestList(l)
		for k := range scratch.Visited {
			delete(scratch.Visited, k)
		}

		searchK := l
		if params.MaxResultSize > l {
			searchK = params.MaxResultSize
		}
		res, resDists, err := e.Search(query, SearchParams{
			K:         searchK,
			L:         l,
			BeamWidth: params.BeamWidth,
			IOLimit:   params.IOLimit,
		}, scratch)
		if err != nil {
			return nil, nil, err
		}

		ids, dists = filterWithinRadius(res, resDists, params.Radius)

		reachedCap := l >= params.LMax || scratch.Stats.IOLimitHit
		allInRange := len(ids) == len(res)
		if reachedCap || !allInRange {
			break
		}
		scratch.Stats.RangeWidenings++
		l *= 2
		if l > params.LMax {
			l = params.LMax
		}
	}

	if params.MaxResultSize > 0 && len(ids) > params.MaxResultSize {
		ids = ids[:params.MaxResultSize]
		dists = dists[:params.MaxResultSize]
	}
	return ids, dists, nil
}

// filterWithinRadius keeps the leading run of (ids, dists) with distance
// <= r. dists arrives sorted ascending, so the first entry exceeding r
// marks the end of qualifying results.
func filterWithinRadius(ids []uint64, dists []float32, r float32) ([]uint64, []float32) {
	n := 0
	for n < len(dists) && dists[n] <= r {
		n++
	}
	outIDs := make([]uint64, n)
	outDists := make([]float32, n)
	copy(outIDs, ids[:n])
	copy(outDists, dists[:n])
	return outIDs, outDists
}
