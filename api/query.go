package api

import (
	"errors"
	"fmt"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/dberr"
	"github.com/litedb/litedb/index"
	"github.com/litedb/litedb/query"
)

// emptyCollection reports whether err is the Scan-time ErrCollectionNotFound
// a collection that has never had a document inserted produces -- expected
// here (the collection itself is only created on first Insert), so every
// terminal query call treats it as "zero matches", not a failure.
func emptyCollection(err error) bool {
	return errors.Is(err, dberr.ErrCollectionNotFound)
}

// OrderTerm is one ORDER BY term: a parsed expression source and its
// direction.
type OrderTerm struct {
	Expr string
	Desc bool
}

// SelectField is one projected output field: its output name and the
// expression source producing it.
type SelectField struct {
	Name string
	Expr string
}

// Query builds a query.Query against one collection using the same
// string-expression surface Find takes, deferring transaction handling
// (one read snapshot per terminal call) to its ToList/Count/First/Single
// methods.
type Query struct {
	col   *Collection
	inner *query.Query
	err   error // first parse error across the builder chain, surfaced by the terminal call
}

func newQuery(c *Collection) *Query {
	return &Query{col: c, inner: query.New(c.col, c.db.indexes, bson.Binary)}
}

func (q *Query) parse(src string) query.Expr {
	if q.err != nil || src == "" {
		return nil
	}
	expr, err := query.Parse(src)
	if err != nil {
		q.err = fmt.Errorf("api: query: %w", err)
		return nil
	}
	return expr
}

// Where filters documents by a boolean expression. An empty filter matches
// every document.
func (q *Query) Where(filter string, params ...bson.Value) *Query {
	if expr := q.parse(filter); expr != nil {
		q.inner.Where(expr)
	}
	if len(params) > 0 {
		q.inner.Params(params...)
	}
	return q
}

// Select projects the given fields instead of returning whole documents.
func (q *Query) Select(fields ...SelectField) *Query {
	out := make([]query.SelectField, 0, len(fields))
	for _, f := range fields {
		if expr := q.parse(f.Expr); expr != nil {
			out = append(out, query.SelectField{Name: f.Name, Expr: expr})
		}
	}
	q.inner.Select(out...)
	return q
}

// OrderBy sorts results by the given terms, in order.
func (q *Query) OrderBy(terms ...OrderTerm) *Query {
	out := make([]query.OrderTerm, 0, len(terms))
	for _, t := range terms {
		if expr := q.parse(t.Expr); expr != nil {
			out = append(out, query.OrderTerm{Expr: expr, Desc: t.Desc})
		}
	}
	q.inner.OrderBy(out...)
	return q
}

// GroupBy partitions results by the given key expressions before
// projection.
func (q *Query) GroupBy(exprs ...string) *Query {
	out := make([]query.Expr, 0, len(exprs))
	for _, src := range exprs {
		if expr := q.parse(src); expr != nil {
			out = append(out, expr)
		}
	}
	q.inner.GroupBy(out...)
	return q
}

// Having filters groups after GroupBy, evaluated against each group's
// aggregate projection.
func (q *Query) Having(filter string) *Query {
	if expr := q.parse(filter); expr != nil {
		q.inner.Having(expr)
	}
	return q
}

// Limit caps the number of returned documents. Negative means unbounded.
func (q *Query) Limit(n int) *Query { q.inner.Limit(n); return q }

// Offset skips the first n matching documents before Limit is applied.
func (q *Query) Offset(n int) *Query { q.inner.Offset(n); return q }

// Include is a documented no-op: this engine has no cross-collection
// reference/join model for Include to eagerly resolve, unlike the
// reference it's named after.
func (q *Query) Include(path string) *Query { q.inner.Include(path); return q }

// WhereNear narrows to documents whose vector field lies within
// maxDistance of target under the field's declared metric.
func (q *Query) WhereNear(field string, target []float32, maxDistance float64) *Query {
	q.inner.WhereNear(field, target, maxDistance)
	return q
}

// TopKNear narrows to the k nearest documents to target by the field's
// declared metric.
func (q *Query) TopKNear(field string, target []float32, k int) *Query {
	q.inner.TopKNear(field, target, k)
	return q
}

// SpatialWithin narrows to documents whose point field falls inside box.
func (q *Query) SpatialWithin(field string, box index.BoundingBox) *Query {
	q.inner.SpatialWithin(field, box)
	return q
}

// SpatialIntersects narrows to documents whose point field's cell overlaps
// box.
func (q *Query) SpatialIntersects(field string, box index.BoundingBox) *Query {
	q.inner.SpatialIntersects(field, box)
	return q
}

// SpatialNear narrows to documents within radiusMeters of center.
func (q *Query) SpatialNear(field string, center index.Point, radiusMeters float64) *Query {
	q.inner.SpatialNear(field, center, radiusMeters)
	return q
}

func (q *Query) run() (func() (*bson.Document, bool), func(), error) {
	if q.err != nil {
		return nil, nil, q.err
	}
	rtx := q.col.db.mgr.BeginRead()
	next, err := q.inner.ToEnumerable(rtx.Snapshot())
	if err != nil {
		rtx.Rollback()
		if emptyCollection(err) {
			return func() (*bson.Document, bool) { return nil, false }, func() {}, nil
		}
		return nil, nil, err
	}
	return next, rtx.Rollback, nil
}

// ToEnumerable returns a closure yielding one document per call, plus a
// cleanup to call once enumeration is done (releasing the read snapshot).
func (q *Query) ToEnumerable() (func() (*bson.Document, bool), func(), error) {
	return q.run()
}

// ToList materializes every matching document.
func (q *Query) ToList() ([]*bson.Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	rtx := q.col.db.mgr.BeginRead()
	defer rtx.Rollback()
	docs, err := q.inner.ToList(rtx.Snapshot())
	if err != nil && emptyCollection(err) {
		return nil, nil
	}
	return docs, err
}

// Count returns the number of matching documents.
func (q *Query) Count() (int, error) {
	if q.err != nil {
		return 0, q.err
	}
	rtx := q.col.db.mgr.BeginRead()
	defer rtx.Rollback()
	n, err := q.inner.Count(rtx.Snapshot())
	if err != nil && emptyCollection(err) {
		return 0, nil
	}
	return n, err
}

// First returns the first matching document, or nil if none match.
func (q *Query) First() (*bson.Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	rtx := q.col.db.mgr.BeginRead()
	defer rtx.Rollback()
	doc, err := q.inner.First(rtx.Snapshot())
	if err != nil && emptyCollection(err) {
		return nil, nil
	}
	return doc, err
}

// Single returns the one matching document, erroring if zero or more than
// one match.
func (q *Query) Single() (*bson.Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	rtx := q.col.db.mgr.BeginRead()
	defer rtx.Rollback()
	doc, err := q.inner.Single(rtx.Snapshot())
	if err != nil && emptyCollection(err) {
		return nil, fmt.Errorf("query: expected exactly one result, got 0")
	}
	return doc, err
}
