package index

import (
	"math"
	"sort"
)

// Point is a (latitude, longitude) pair in degrees.
type Point struct {
	Lat, Lon float64
}

// BoundingBox is an axis-aligned min/max box in degrees.
type BoundingBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// earthRadiusMeters is used for the haversine radius-to-box conversion and
// the great-circle distance filter.
const earthRadiusMeters = 6371000.0

// mortonKey computes the 64-bit Morton (Z-order) interleaving of
// (lat, lon), each first mapped onto 32-bit unsigned grids").
func mortonKey(p Point) uint64 {
	x := latLonToGrid(p.Lat, -90, 90)
	y := latLonToGrid(p.Lon, -180, 180)
	return interleave(x, y)
}

func latLonToGrid(v, min, max float64) uint32 {
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	frac := (v - min) / (max - min)
	return uint32(frac * float64(math.MaxUint32))
}

func interleave(x, y uint32) uint64 {
	return spread(uint64(x)) | (spread(uint64(y)) << 1)
}

// spread inserts a zero bit between each bit of the low 32 bits of v.
func spread(v uint64) uint64 {
	v &= 0xFFFFFFFF
	v = (v | (v << 16)) & 0x0000FFFF0000FFFF
	v = (v | (v << 8)) & 0x00FF00FF00FF00FF
	v = (v | (v << 4)) & 0x0F0F0F0F0F0F0F0F
	v = (v | (v << 2)) & 0x3333333333333333
	v = (v | (v << 1)) & 0x5555555555555555
	return v
}

type zEntry struct {
	z     uint64
	addr  Address
	point Point
}

// PointIndex is the Morton-keyed point index of: entries sorted
// by Z key, range-queried by turning a bounding box into a single covering
// Z-range (see boxZRanges) and binary-searching the sorted slice for it.
// The box is not split into several tighter ranges.
//
// Kept as a sorted slice rather than built atop SkipList: Z keys are plain
// uint64s, not BSON values under a collation, so the generality SkipList
// buys for document field indexes isn't needed here — a sorted slice with
// binary search gives the same O(log n) seek with less machinery.
type PointIndex struct {
	entries []zEntry
}

// NewPointIndex creates an empty spatial point index.
func NewPointIndex() *PointIndex { return &PointIndex{} }

// Insert adds a point at the given address, keeping entries sorted by Z key.
func (pi *PointIndex) Insert(p Point, addr Address) {
	z := mortonKey(p)
	i := sort.Search(len(pi.entries), func(i int) bool { return pi.entries[i].z >= z })
	pi.entries = append(pi.entries, zEntry{})
	copy(pi.entries[i+1:], pi.entries[i:])
	pi.entries[i] = zEntry{z: z, addr: addr, point: p}
}

// Remove drops every entry at addr.
func (pi *PointIndex) Remove(addr Address) {
	out := pi.entries[:0]
	for _, e := range pi.entries {
		if e.addr != addr {
			out = append(out, e)
		}
	}
	pi.entries = out
}

// boxZRanges returns one Z-order range, from the smallest to the largest
// Morton key among the box's corners and midpoint. That range covers every
// point in the box, but no longest-common-prefix decomposition into
// several tighter ranges is done, so it can also cover many points outside
// the box; Query below confirms each candidate against the box exactly.
func boxZRanges(box BoundingBox) [2]uint64 {
	corners := []Point{
		{box.MinLat, box.MinLon}, {box.MinLat, box.MaxLon},
		{box.MaxLat, box.MinLon}, {box.MaxLat, box.MaxLon},
		{(box.MinLat + box.MaxLat) / 2, (box.MinLon + box.MaxLon) / 2},
	}
	lo, hi := mortonKey(corners[0]), mortonKey(corners[0])
	for _, c := range corners[1:] {
		z := mortonKey(c)
		if z < lo {
			lo = z
		}
		if z > hi {
			hi = z
		}
	}
	return [2]uint64{lo, hi}
}

func inBox(p Point, box BoundingBox) bool {
	return p.Lat >= box.MinLat && p.Lat <= box.MaxLat && p.Lon >= box.MinLon && p.Lon <= box.MaxLon
}

// Query returns every indexed address whose point falls within box: the
// Z-range seeks candidates, and each candidate is confirmed against the
// exact box (the Z decomposition can over-select near box edges).
func (pi *PointIndex) Query(box BoundingBox) []Address {
	zr := boxZRanges(box)
	lo := sort.Search(len(pi.entries), func(i int) bool { return pi.entries[i].z >= zr[0] })
	var out []Address
	for i := lo; i < len(pi.entries) && pi.entries[i].z <= zr[1]; i++ {
		if inBox(pi.entries[i].point, box) {
			out = append(out, pi.entries[i].addr)
		}
	}
	return out
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// radiusToBox converts a radius in meters around a center point into an
// enclosing bounding box via the small-angle haversine approximation.
func radiusToBox(center Point, radiusMeters float64) BoundingBox {
	dLat := (radiusMeters / earthRadiusMeters) * (180 / math.Pi)
	dLon := dLat / math.Cos(center.Lat*math.Pi/180)
	return BoundingBox{
		MinLat: center.Lat - dLat, MaxLat: center.Lat + dLat,
		MinLon: center.Lon - dLon, MaxLon: center.Lon + dLon,
	}
}

// Near returns every point within radiusMeters of center, filtered by
// exact great-circle distance after the bounding-box prefilter.
func (pi *PointIndex) Near(center Point, radiusMeters float64) []Address {
	box := radiusToBox(center, radiusMeters)
	var out []Address
	for _, e := range pi.entries {
		if !inBox(e.point, box) {
			continue
		}
		if Haversine(center, e.point) <= radiusMeters {
			out = append(out, e.addr)
		}
	}
	return out
}

// ShapeEntry is the MBB directory entry describes for the shape
// index: each record stores its Morton centroid key (implicitly, via
// insertion into a PointIndex keyed by centroid) and its bounding box, so
// queries can prune by MBB overlap before the exact polygon predicate.
type ShapeEntry struct {
	Addr Address
	MBB  BoundingBox
}

// ShapeIndex prunes candidate shapes by MBB overlap);
// the exact predicate confirmation (Within/Intersects/Contains via
// ray-casting and segment-orientation tests) runs in the query package, which owns
// the polygon geometry the stored documents carry.
type ShapeIndex struct {
	entries []ShapeEntry
}

// NewShapeIndex creates an empty shape index.
func NewShapeIndex() *ShapeIndex { return &ShapeIndex{} }

// Insert records a shape's bounding box.
func (si *ShapeIndex) Insert(addr Address, mbb BoundingBox) {
	si.entries = append(si.entries, ShapeEntry{Addr: addr, MBB: mbb})
}

// Remove drops every entry at addr.
func (si *ShapeIndex) Remove(addr Address) {
	out := si.entries[:0]
	for _, e := range si.entries {
		if e.Addr != addr {
			out = append(out, e)
		}
	}
	si.entries = out
}

func boxesOverlap(a, b BoundingBox) bool {
	return a.MinLat <= b.MaxLat && a.MaxLat >= b.MinLat && a.MinLon <= b.MaxLon && a.MaxLon >= b.MinLon
}

// CandidatesOverlapping returns every address whose MBB overlaps box,
// the coarse pruning pass of two-stage shape query.
func (si *ShapeIndex) CandidatesOverlapping(box BoundingBox) []Address {
	var out []Address
	for _, e := range si.entries {
		if boxesOverlap(e.MBB, box) {
			out = append(out, e.Addr)
		}
	}
	return out
}
