package index

import (
	"math"
	"sort"

	"github.com/litedb/litedb/dberr"
)

// Metric is a vector distance function.
type Metric int

const (
	MetricEuclidean Metric = iota
	MetricCosine
	MetricDotProduct
)

// VectorOptions configures a vector index: the expected dimensionality and
// the distance metric used for ranking.
type VectorOptions struct {
	Dimensions int
	Metric     Metric
}

type vectorEntry struct {
	addr   Address
	vector []float32
}

// VectorIndex is a flat (brute-force) nearest-neighbor index: every vector
// is kept in a slice and scored against the query at read time, the
// baseline strategy when there's no cheaper structure to fall back to —
// here the "index" is exactly a full scan, just scoped to the field's
// vectors instead of the whole collection. Kept as a simple linear
// structure rather than reaching for an ANN library.
type VectorIndex struct {
	opts    VectorOptions
	entries []vectorEntry
}

// NewVectorIndex creates an empty vector index under the given options.
func NewVectorIndex(opts VectorOptions) *VectorIndex {
	return &VectorIndex{opts: opts}
}

// Insert adds a document's vector, rejecting any whose length doesn't
// match the index's declared dimensionality.
func (v *VectorIndex) Insert(addr Address, vector []float32) error {
	if len(vector) != v.opts.Dimensions {
		return &dberr.KeyError{Kind: dberr.ErrVectorDimensionMismatch, Key: len(vector)}
	}
	v.entries = append(v.entries, vectorEntry{addr: addr, vector: vector})
	return nil
}

// Remove drops every entry at addr.
func (v *VectorIndex) Remove(addr Address) {
	out := v.entries[:0]
	for _, e := range v.entries {
		if e.addr != addr {
			out = append(out, e)
		}
	}
	v.entries = out
}

func (v *VectorIndex) distance(a, b []float32) (float64, error) {
	switch v.opts.Metric {
	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum), nil
	case MetricCosine:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		norm := math.Sqrt(na) * math.Sqrt(nb)
		if norm == 0 {
			return 1, nil
		}
		return 1 - dot/norm, nil
	case MetricDotProduct:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return -dot, nil
	default:
		return 0, dberr.ErrUnsupportedMetric
	}
}

// WhereNear returns every address whose distance to target is <= maxDistance.
func (v *VectorIndex) WhereNear(target []float32, maxDistance float64) ([]Address, error) {
	var out []Address
	for _, e := range v.entries {
		d, err := v.distance(target, e.vector)
		if err != nil {
			return nil, err
		}
		if d <= maxDistance {
			out = append(out, e.addr)
		}
	}
	return out, nil
}

// ScoredAddress pairs an address with its computed distance, ascending
// order meaning "closer" regardless of metric.
type ScoredAddress struct {
	Addr     Address
	Distance float64
}

// TopKNear returns the k closest entries, sorted ascending by distance
// then by address as a deterministic tie-break.
func (v *VectorIndex) TopKNear(target []float32, k int) ([]ScoredAddress, error) {
	scored := make([]ScoredAddress, 0, len(v.entries))
	for _, e := range v.entries {
		d, err := v.distance(target, e.vector)
		if err != nil {
			return nil, err
		}
		scored = append(scored, ScoredAddress{Addr: e.addr, Distance: d})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		if scored[i].Addr.PageID != scored[j].Addr.PageID {
			return scored[i].Addr.PageID < scored[j].Addr.PageID
		}
		return scored[i].Addr.Slot < scored[j].Addr.Slot
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}
