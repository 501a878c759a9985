package query

import (
	"fmt"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/index"
)

// Spatial predicate function names usable inside a WHERE/FILTER
// expression. These confirm exactly what a coarse index-assisted scan
// (PointIndex.Near/Query, ShapeIndex.CandidatesOverlapping) only narrows
// down to, the same two-stage prune-then-confirm shape the spatial
// indexes themselves describe.
const (
	fnSpatialNear       = "SPATIAL_NEAR"
	fnSpatialWithin     = "SPATIAL_WITHIN"
	fnSpatialWithinBox  = "SPATIAL_WITHIN_BOX"
	fnSpatialIntersects = "SPATIAL_INTERSECTS"
	fnSpatialContains   = "SPATIAL_CONTAINS"
)

func isSpatialFuncName(name string) bool {
	switch name {
	case fnSpatialNear, fnSpatialWithin, fnSpatialWithinBox, fnSpatialIntersects, fnSpatialContains:
		return true
	}
	return false
}

func evalSpatialFunc(fc *FuncCallExpr, doc *bson.Document, params []bson.Value, collation bson.Collation) (bson.Value, error) {
	args := make([]bson.Value, len(fc.Args))
	for i, a := range fc.Args {
		v, err := Eval(a, doc, params, collation)
		if err != nil {
			return bson.Value{}, err
		}
		args[i] = v
	}

	switch fc.Name {
	case fnSpatialNear:
		// SPATIAL_NEAR(field, lat, lon, radiusMeters)
		if err := checkArgs(fc.Name, args, 4); err != nil {
			return bson.Value{}, err
		}
		p, ok := parsePoint(args[0])
		if !ok {
			return bson.Boolean(false), nil
		}
		center := index.Point{Lat: args[1].AsFloat64(), Lon: args[2].AsFloat64()}
		radius := args[3].AsFloat64()
		return bson.Boolean(index.Haversine(p, center) <= radius), nil

	case fnSpatialWithinBox:
		// SPATIAL_WITHIN_BOX(field, minLat, minLon, maxLat, maxLon)
		if err := checkArgs(fc.Name, args, 5); err != nil {
			return bson.Value{}, err
		}
		p, ok := parsePoint(args[0])
		if !ok {
			return bson.Boolean(false), nil
		}
		box := index.BoundingBox{
			MinLat: args[1].AsFloat64(), MinLon: args[2].AsFloat64(),
			MaxLat: args[3].AsFloat64(), MaxLon: args[4].AsFloat64(),
		}
		return bson.Boolean(pointInBox(p, box)), nil

	case fnSpatialWithin:
		// SPATIAL_WITHIN(field, polygon) — field is a point or polygon
		// entirely inside the literal polygon.
		if err := checkArgs(fc.Name, args, 2); err != nil {
			return bson.Value{}, err
		}
		polygon, ok := parsePolygon(args[1])
		if !ok {
			return bson.Boolean(false), nil
		}
		if p, ok := parsePoint(args[0]); ok {
			return bson.Boolean(pointInPolygon(p, polygon)), nil
		}
		if shape, ok := parsePolygon(args[0]); ok {
			return bson.Boolean(polygonWithin(shape, polygon)), nil
		}
		return bson.Boolean(false), nil

	case fnSpatialIntersects:
		if err := checkArgs(fc.Name, args, 2); err != nil {
			return bson.Value{}, err
		}
		a, ok1 := parsePolygon(args[0])
		b, ok2 := parsePolygon(args[1])
		if !ok1 || !ok2 {
			return bson.Boolean(false), nil
		}
		return bson.Boolean(polygonsIntersect(a, b)), nil

	case fnSpatialContains:
		// SPATIAL_CONTAINS(field, point) — field's polygon contains point.
		if err := checkArgs(fc.Name, args, 2); err != nil {
			return bson.Value{}, err
		}
		polygon, ok := parsePolygon(args[0])
		if !ok {
			return bson.Boolean(false), nil
		}
		if p, ok := parsePoint(args[1]); ok {
			return bson.Boolean(pointInPolygon(p, polygon)), nil
		}
		other, ok := parsePolygon(args[1])
		if !ok {
			return bson.Boolean(false), nil
		}
		return bson.Boolean(polygonWithin(other, polygon)), nil
	}
	return bson.Value{}, fmt.Errorf("query: unknown spatial function %s", fc.Name)
}

// parsePoint reads a {lat, lon} sub-document into a Point.
func parsePoint(v bson.Value) (index.Point, bool) {
	if v.T != bson.TypeDocument || v.Doc == nil {
		return index.Point{}, false
	}
	lat, ok1 := v.Doc.Get("lat")
	lon, ok2 := v.Doc.Get("lon")
	if !ok1 || !ok2 {
		return index.Point{}, false
	}
	return index.Point{Lat: lat.AsFloat64(), Lon: lon.AsFloat64()}, true
}

// parsePolygon reads an array of {lat, lon} sub-documents into a ring of
// points, the shape a stored or literal polygon is expected to carry.
func parsePolygon(v bson.Value) ([]index.Point, bool) {
	if v.T != bson.TypeArray || len(v.Arr) < 3 {
		return nil, false
	}
	out := make([]index.Point, 0, len(v.Arr))
	for _, el := range v.Arr {
		p, ok := parsePoint(el)
		if !ok {
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

func pointInBox(p index.Point, box index.BoundingBox) bool {
	return p.Lat >= box.MinLat && p.Lat <= box.MaxLat && p.Lon >= box.MinLon && p.Lon <= box.MaxLon
}

// pointInPolygon implements the standard ray-casting point-in-polygon test.
func pointInPolygon(p index.Point, poly []index.Point) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		intersects := (pi.Lon > p.Lon) != (pj.Lon > p.Lon) &&
			p.Lat < (pj.Lat-pi.Lat)*(p.Lon-pi.Lon)/(pj.Lon-pi.Lon)+pi.Lat
		if intersects {
			inside = !inside
		}
	}
	return inside
}

// segmentsIntersect reports whether segments (a1,a2) and (b1,b2) cross,
// via the standard orientation test.
func segmentsIntersect(a1, a2, b1, b2 index.Point) bool {
	d1 := orientation(b1, b2, a1)
	d2 := orientation(b1, b2, a2)
	d3 := orientation(a1, a2, b1)
	d4 := orientation(a1, a2, b2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func orientation(a, b, c index.Point) float64 {
	return (b.Lon-a.Lon)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lon-a.Lon)
}

// polygonsIntersect reports whether two simple polygon rings overlap: any
// edge crossing, or either polygon containing a vertex of the other.
func polygonsIntersect(a, b []index.Point) bool {
	for i := range a {
		a1, a2 := a[i], a[(i+1)%len(a)]
		for j := range b {
			b1, b2 := b[j], b[(j+1)%len(b)]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	if pointInPolygon(a[0], b) || pointInPolygon(b[0], a) {
		return true
	}
	return false
}

// polygonWithin reports whether every vertex of inner lies inside outer
// and no edge of inner crosses an edge of outer — sufficient for the
// simple (non-self-intersecting) polygons this engine stores.
func polygonWithin(inner, outer []index.Point) bool {
	for _, p := range inner {
		if !pointInPolygon(p, outer) {
			return false
		}
	}
	for i := range inner {
		a1, a2 := inner[i], inner[(i+1)%len(inner)]
		for j := range outer {
			b1, b2 := outer[j], outer[(j+1)%len(outer)]
			if segmentsIntersect(a1, a2, b1, b2) {
				return false
			}
		}
	}
	return true
}
