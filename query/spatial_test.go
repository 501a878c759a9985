package query

import (
	"testing"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/index"
)

func point(lat, lon float64) bson.Value {
	return bson.DocValue(bson.NewDocument().Set("lat", bson.Double(lat)).Set("lon", bson.Double(lon)))
}

func square(minLat, minLon, maxLat, maxLon float64) []index.Point {
	return []index.Point{
		{Lat: minLat, Lon: minLon}, {Lat: minLat, Lon: maxLon},
		{Lat: maxLat, Lon: maxLon}, {Lat: maxLat, Lon: minLon},
	}
}

func TestSpatialNear(t *testing.T) {
	d := bson.NewDocument().Set("loc", point(40.0, -73.0))
	expr := mustParse(t, `SPATIAL_NEAR(loc, 40.0001, -73.0001, 500)`)
	v, err := Eval(expr, d, nil, bson.Binary)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if !v.Bool {
		t.Error("expected a nearby point to satisfy SPATIAL_NEAR")
	}
}

func TestSpatialNearOutOfRange(t *testing.T) {
	d := bson.NewDocument().Set("loc", point(40.0, -73.0))
	expr := mustParse(t, `SPATIAL_NEAR(loc, 41.0, -74.0, 500)`)
	v, err := Eval(expr, d, nil, bson.Binary)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if v.Bool {
		t.Error("expected a far point not to satisfy SPATIAL_NEAR")
	}
}

func TestSpatialWithinBox(t *testing.T) {
	d := bson.NewDocument().Set("loc", point(10, 10))
	expr := mustParse(t, `SPATIAL_WITHIN_BOX(loc, 0, 0, 20, 20)`)
	v, err := Eval(expr, d, nil, bson.Binary)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if !v.Bool {
		t.Error("expected point within box bounds")
	}

	outside := bson.NewDocument().Set("loc", point(50, 50))
	expr2 := mustParse(t, `SPATIAL_WITHIN_BOX(loc, 0, 0, 20, 20)`)
	v2, err := Eval(expr2, outside, nil, bson.Binary)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if v2.Bool {
		t.Error("expected point outside box bounds not to match")
	}
}

func TestPointInPolygon(t *testing.T) {
	sq := square(0, 0, 10, 10)
	if !pointInPolygon(index.Point{Lat: 5, Lon: 5}, sq) {
		t.Error("expected (5,5) to be inside the unit square")
	}
	if pointInPolygon(index.Point{Lat: 50, Lon: 50}, sq) {
		t.Error("expected (50,50) to be outside the unit square")
	}
}

func TestPolygonsIntersect(t *testing.T) {
	a := square(0, 0, 10, 10)
	b := square(5, 5, 15, 15)
	c := square(100, 100, 110, 110)
	if !polygonsIntersect(a, b) {
		t.Error("expected overlapping squares to intersect")
	}
	if polygonsIntersect(a, c) {
		t.Error("expected far-apart squares not to intersect")
	}
}

func TestPolygonWithin(t *testing.T) {
	outer := square(0, 0, 20, 20)
	inner := square(5, 5, 10, 10)
	if !polygonWithin(inner, outer) {
		t.Error("expected inner square to be within the outer square")
	}
	if polygonWithin(outer, inner) {
		t.Error("expected outer square not to be within the smaller inner square")
	}
}

func TestParsePointAndPolygon(t *testing.T) {
	p, ok := parsePoint(point(1, 2))
	if !ok || p.Lat != 1 || p.Lon != 2 {
		t.Fatalf("expected parsed point {1,2}, got %#v, ok=%v", p, ok)
	}
	if _, ok := parsePoint(bson.String("not a point")); ok {
		t.Error("expected non-document value to fail parsePoint")
	}

	poly := []bson.Value{point(0, 0), point(0, 10), point(10, 10)}
	pts, ok := parsePolygon(bson.Array(poly))
	if !ok || len(pts) != 3 {
		t.Fatalf("expected a 3-point polygon, got %#v, ok=%v", pts, ok)
	}
	if _, ok := parsePolygon(bson.Array(poly[:2])); ok {
		t.Error("expected fewer than 3 points to fail parsePolygon")
	}
}
