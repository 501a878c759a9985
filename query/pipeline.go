package query

import (
	"fmt"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/collection"
	"github.com/litedb/litedb/index"
	"github.com/litedb/litedb/sort"
	"github.com/litedb/litedb/storage"
)

// SelectField is one projected output field: name = Expr evaluated
// against each result document (or, once grouped, against the `{key,
// items}` document).
type SelectField struct {
	Name string
	Expr Expr
}

// OrderTerm is one ORDER BY component.
type OrderTerm struct {
	Expr Expr
	Desc bool
}

// nearKind distinguishes the two vector-index access patterns a Query can
// request.
type nearKind int

const (
	nearNone nearKind = iota
	nearThreshold
	nearTopK
)

// Query assembles the scan -> (index-assisted) narrow -> filter -> group
// -> map (select) -> sort -> limit/offset pipeline described, built
// against one collection and its declared indexes.
type Query struct {
	col       *collection.Collection
	indexes   *index.Manager
	collation bson.Collation
	params    []bson.Value

	where   Expr
	selects []SelectField
	orderBy []OrderTerm
	groupBy []Expr
	having  Expr
	limit   int
	offset  int
	include []string

	nearKind   nearKind
	nearField  string
	nearTarget []float32
	nearArg    float64 // maxDistance (threshold) or k (topK)

	spatialField   string
	spatialBox     *index.BoundingBox
	spatialRadius  float64
	spatialCenter  index.Point
	useSpatialNear bool
}

// New creates a query over one collection, evaluated under collation and
// planned against the given index manager.
func New(col *collection.Collection, indexes *index.Manager, collation bson.Collation) *Query {
	return &Query{col: col, indexes: indexes, collation: collation, limit: -1}
}

// Where sets the FILTER predicate.
func (q *Query) Where(expr Expr) *Query { q.where = expr; return q }

// Select sets the MAP projection; an empty Select yields whole documents.
func (q *Query) Select(fields ...SelectField) *Query { q.selects = fields; return q }

// OrderBy appends composite sort terms, applied lexicographically.
func (q *Query) OrderBy(terms ...OrderTerm) *Query { q.orderBy = terms; return q }

// GroupBy partitions results by a composite key before projection.
func (q *Query) GroupBy(exprs ...Expr) *Query { q.groupBy = exprs; return q }

// Having filters groups (evaluated against the `{key, items}` document)
// after GroupBy.
func (q *Query) Having(expr Expr) *Query { q.having = expr; return q }

// Limit caps the result count; -1 (the default) means unbounded.
func (q *Query) Limit(n int) *Query { q.limit = n; return q }

// Offset skips the first n results after sorting.
func (q *Query) Offset(n int) *Query { q.offset = n; return q }

// Params supplies the ? placeholder values referenced by Where/Select/...
func (q *Query) Params(params ...bson.Value) *Query { q.params = params; return q }

// Include records a path for eager expansion; this engine has no
// cross-collection references to expand, so it is kept only as a
// documented no-op for API-surface compatibility with callers migrating
// queries written against a referencing document store.
func (q *Query) Include(path string) *Query { q.include = append(q.include, path); return q }

// WhereNear filters to documents whose vector field lies within
// maxDistance of target, using the field's declared vector index.
func (q *Query) WhereNear(field string, target []float32, maxDistance float64) *Query {
	q.nearKind, q.nearField, q.nearTarget, q.nearArg = nearThreshold, field, target, maxDistance
	return q
}

// TopKNear narrows to the k closest documents by vector field, using the
// field's declared vector index.
func (q *Query) TopKNear(field string, target []float32, k int) *Query {
	q.nearKind, q.nearField, q.nearTarget, q.nearArg = nearTopK, field, target, float64(k)
	return q
}

// SpatialNear narrows to documents whose spatial field lies within
// radiusMeters of center, using the field's declared point index.
func (q *Query) SpatialNear(field string, center index.Point, radiusMeters float64) *Query {
	q.spatialField, q.useSpatialNear, q.spatialCenter, q.spatialRadius = field, true, center, radiusMeters
	return q
}

// SpatialWithin narrows to documents whose spatial field's bounding box
// overlaps box, using the field's declared shape index. No exact
// containment test is added; FILTER checks only the Where predicate.
func (q *Query) SpatialWithin(field string, box index.BoundingBox) *Query {
	q.spatialField, q.spatialBox = field, &box
	return q
}

// SpatialIntersects behaves exactly like SpatialWithin (the same coarse
// MBB-overlap prune); an exact polygon test runs only when the Where
// predicate itself carries a SPATIAL_INTERSECTS term.
func (q *Query) SpatialIntersects(field string, box index.BoundingBox) *Query {
	return q.SpatialWithin(field, box)
}

// run executes the pipeline and returns the final, ordered, paginated
// documents (each a projection if Select was set).
func (q *Query) run(snap *storage.Snapshot) ([]*bson.Document, error) {
	candidates, err := q.candidateDocs(snap)
	if err != nil {
		return nil, err
	}

	filtered := candidates[:0]
	for _, d := range candidates {
		ok, err := EvalPredicate(q.where, d, q.params, q.collation)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, d)
		}
	}

	grouped := filtered
	isGrouped := len(q.groupBy) > 0
	if isGrouped {
		grouped, err = applyGroupBy(filtered, q.groupBy, q.params, q.collation)
		if err != nil {
			return nil, err
		}
		if q.having != nil {
			havingOut := grouped[:0]
			for _, d := range grouped {
				ok, err := EvalPredicate(q.having, d, q.params, q.collation)
				if err != nil {
					return nil, err
				}
				if ok {
					havingOut = append(havingOut, d)
				}
			}
			grouped = havingOut
		}
	}

	projected, err := q.project(grouped, isGrouped)
	if err != nil {
		return nil, err
	}

	ordered, err := q.applyOrder(projected)
	if err != nil {
		return nil, err
	}

	return paginate(ordered, q.offset, q.limit), nil
}

// candidateDocs resolves the pre-filter candidate set: a vector/spatial
// index narrowing, a scalar-index narrowing via the planner, or a full
// collection scan when none apply.
func (q *Query) candidateDocs(snap *storage.Snapshot) ([]*bson.Document, error) {
	switch {
	case q.nearKind != nearNone:
		return q.candidatesFromVectorIndex(snap)
	case q.useSpatialNear || q.spatialBox != nil:
		return q.candidatesFromSpatialIndex(snap)
	default:
		return q.candidatesFromScalarPlan(snap)
	}
}

func (q *Query) candidatesFromVectorIndex(snap *storage.Snapshot) ([]*bson.Document, error) {
	entry := q.indexes.Get(q.col.Name(), q.nearField)
	if entry == nil || entry.Vector == nil {
		return nil, fmt.Errorf("query: no vector index declared on %s.%s", q.col.Name(), q.nearField)
	}
	var addrs []index.Address
	if q.nearKind == nearTopK {
		scored, err := entry.Vector.TopKNear(q.nearTarget, int(q.nearArg))
		if err != nil {
			return nil, err
		}
		for _, s := range scored {
			addrs = append(addrs, s.Addr)
		}
	} else {
		var err error
		addrs, err = entry.Vector.WhereNear(q.nearTarget, q.nearArg)
		if err != nil {
			return nil, err
		}
	}
	return q.fetchAddrs(snap, addrs)
}

func (q *Query) candidatesFromSpatialIndex(snap *storage.Snapshot) ([]*bson.Document, error) {
	entry := q.indexes.Get(q.col.Name(), q.spatialField)
	if entry == nil || entry.Point == nil {
		return nil, fmt.Errorf("query: no spatial index declared on %s.%s", q.col.Name(), q.spatialField)
	}
	var addrs []index.Address
	switch {
	case q.useSpatialNear:
		addrs = entry.Point.Near(q.spatialCenter, q.spatialRadius)
	case q.spatialBox != nil:
		addrs = entry.Shape.CandidatesOverlapping(*q.spatialBox)
		if len(addrs) == 0 {
			addrs = entry.Point.Query(*q.spatialBox)
		}
	}
	return q.fetchAddrs(snap, addrs)
}

func (q *Query) candidatesFromScalarPlan(snap *storage.Snapshot) ([]*bson.Document, error) {
	plan, err := planIndex(q.col.Name(), q.indexes, q.where, q.params, q.collation)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		return q.fetchAddrs(snap, plan.addrs)
	}
	results, err := q.col.Scan(snap)
	if err != nil {
		return nil, err
	}
	docs := make([]*bson.Document, len(results))
	for i, r := range results {
		docs[i] = r.Doc
	}
	return docs, nil
}

func (q *Query) fetchAddrs(snap *storage.Snapshot, addrs []index.Address) ([]*bson.Document, error) {
	docs := make([]*bson.Document, 0, len(addrs))
	for _, a := range addrs {
		d, err := q.col.Get(snap, a)
		if err != nil {
			continue // stale index entry (page reused/emptied); skip rather than fail the query
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// project applies the MAP stage: each doc becomes a fresh document whose
// fields are Select's (name, expr) pairs, with grouped aggregate function
// calls evaluated specially since their argument paths reach into a
// group's `items` array rather than the group document's own fields. A
// query without Select yields the documents unchanged.
func (q *Query) project(docs []*bson.Document, isGrouped bool) ([]*bson.Document, error) {
	if len(q.selects) == 0 {
		return docs, nil
	}
	out := make([]*bson.Document, len(docs))
	for i, d := range docs {
		proj := bson.NewDocument()
		for _, f := range q.selects {
			v, err := q.evalProjection(f.Expr, d, isGrouped)
			if err != nil {
				return nil, err
			}
			proj.Set(f.Name, v)
		}
		out[i] = proj
	}
	return out, nil
}

func (q *Query) evalProjection(expr Expr, doc *bson.Document, isGrouped bool) (bson.Value, error) {
	if isGrouped {
		if fc, ok := expr.(*FuncCallExpr); ok && isAggregateFunc(fc.Name) {
			return evalAggregate(fc, doc, q.params, q.collation)
		}
	}
	return Eval(expr, doc, q.params, q.collation)
}

// applyOrder runs the ORDER BY stage through the external sort service:
// each document's composite key is computed once, handed to the service
// as a (key, synthetic address) pair — the address is a positional index
// into docs rather than a real page location — and the merge phase's
// lazily-produced order is read back to reorder docs.
func (q *Query) applyOrder(docs []*bson.Document) ([]*bson.Document, error) {
	if len(q.orderBy) == 0 {
		return docs, nil
	}
	orders := make([]sort.Order, len(q.orderBy))
	for i, t := range q.orderBy {
		orders[i] = sort.Order{Ascending: !t.Desc}
	}
	svc := sort.NewService(q.collation, orders, 0)
	for i, d := range docs {
		key := make([]bson.Value, len(q.orderBy))
		for j, t := range q.orderBy {
			v, err := Eval(t.Expr, d, q.params, q.collation)
			if err != nil {
				return nil, err
			}
			key[j] = v
		}
		svc.Insert(sort.Pair{Key: key, Addr: index.Address{PageID: uint32(i)}})
	}
	svc.Flush()

	out := make([]*bson.Document, 0, len(docs))
	next := svc.Merge()
	for {
		p, ok := next()
		if !ok {
			break
		}
		out = append(out, docs[p.Addr.PageID])
	}
	return out, nil
}

func paginate(docs []*bson.Document, offset, limit int) []*bson.Document {
	if offset > 0 {
		if offset >= len(docs) {
			return nil
		}
		docs = docs[offset:]
	}
	if limit >= 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// ToEnumerable returns a lazy iterator over the pipeline's results.
func (q *Query) ToEnumerable(snap *storage.Snapshot) (func() (*bson.Document, bool), error) {
	docs, err := q.run(snap)
	if err != nil {
		return nil, err
	}
	i := 0
	return func() (*bson.Document, bool) {
		if i >= len(docs) {
			return nil, false
		}
		d := docs[i]
		i++
		return d, true
	}, nil
}

// ToList materializes every result document.
func (q *Query) ToList(snap *storage.Snapshot) ([]*bson.Document, error) {
	return q.run(snap)
}

// Count returns the number of result documents.
func (q *Query) Count(snap *storage.Snapshot) (int, error) {
	docs, err := q.run(snap)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// First returns the first result document, or nil if there are none.
func (q *Query) First(snap *storage.Snapshot) (*bson.Document, error) {
	saved := q.limit
	q.limit = 1
	docs, err := q.run(snap)
	q.limit = saved
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Single returns the sole result document, erroring if there is not
// exactly one.
func (q *Query) Single(snap *storage.Snapshot) (*bson.Document, error) {
	docs, err := q.run(snap)
	if err != nil {
		return nil, err
	}
	if len(docs) != 1 {
		return nil, fmt.Errorf("query: expected exactly one result, got %d", len(docs))
	}
	return docs[0], nil
}
