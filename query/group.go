package query

import (
	"github.com/litedb/litedb/bson"
)

// groupKey renders a composite group-by key comparable with ==, used as a
// map key; bson.Value isn't comparable in general (it embeds a slice and a
// *Document), so grouping keys on the value's string rendering instead,
// which is exact for every scalar type docs are realistically grouped by.
func groupKey(vals []bson.Value) string {
	s := ""
	for _, v := range vals {
		s += v.String() + "\x00"
	}
	return s
}

// groupBucket keeps a group's key values alongside its member documents,
// in first-seen order, for a deterministic groupBy output.
type groupBucket struct {
	key   []bson.Value
	items []*bson.Document
}

// applyGroupBy partitions docs by the composite key exprs evaluate to,
// then materializes each group as a `{key, items}` document:  key holds
// the (single, or array for a composite) group key and items holds every
// member document, the shape a grouped query projects scalar aggregates
// over.
func applyGroupBy(docs []*bson.Document, groupBy []Expr, params []bson.Value, collation bson.Collation) ([]*bson.Document, error) {
	if len(groupBy) == 0 {
		return docs, nil
	}

	var order []string
	buckets := make(map[string]*groupBucket)
	for _, doc := range docs {
		keyVals := make([]bson.Value, len(groupBy))
		for i, ge := range groupBy {
			v, err := Eval(ge, doc, params, collation)
			if err != nil {
				return nil, err
			}
			keyVals[i] = v
		}
		k := groupKey(keyVals)
		b, ok := buckets[k]
		if !ok {
			b = &groupBucket{key: keyVals}
			buckets[k] = b
			order = append(order, k)
		}
		b.items = append(b.items, doc)
	}

	out := make([]*bson.Document, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		grouped := bson.NewDocument()
		if len(b.key) == 1 {
			grouped.Set("key", b.key[0])
		} else {
			grouped.Set("key", bson.Array(b.key))
		}
		items := make([]bson.Value, len(b.items))
		for i, d := range b.items {
			items[i] = bson.DocValue(d)
		}
		grouped.Set("items", bson.Array(items))
		out = append(out, grouped)
	}
	return out, nil
}

// aggregate funcs recognized in a projection over a grouped `items` array.
const (
	aggCount = "COUNT"
	aggSum   = "SUM"
	aggAvg   = "AVG"
	aggMin   = "MIN"
	aggMax   = "MAX"
	aggAny   = "ANY"
	aggAll   = "ALL"
)

func isAggregateFunc(name string) bool {
	switch name {
	case aggCount, aggSum, aggAvg, aggMin, aggMax, aggAny, aggAll:
		return true
	}
	return false
}

// evalAggregate evaluates an aggregate function call against a grouped
// document's `items` array, projecting fc.Args[0] (or * for COUNT) over
// every member and folding the results.
func evalAggregate(fc *FuncCallExpr, grouped *bson.Document, params []bson.Value, collation bson.Collation) (bson.Value, error) {
	itemsVal, ok := grouped.Get("items")
	if !ok {
		return bson.Int32(0), nil
	}
	items := itemsVal.Arr

	if fc.Name == aggCount {
		if len(fc.Args) == 0 {
			return bson.Int32(int32(len(items))), nil
		}
		if id, ok := fc.Args[0].(*IdentExpr); ok && id.Name == "*" {
			return bson.Int32(int32(len(items))), nil
		}
	}

	var projExpr Expr = fc.Args[0]
	values := make([]bson.Value, 0, len(items))
	for _, it := range items {
		if it.T != bson.TypeDocument {
			continue
		}
		v, err := Eval(projExpr, it.Doc, params, collation)
		if err != nil {
			return bson.Value{}, err
		}
		values = append(values, v)
	}

	switch fc.Name {
	case aggCount:
		n := 0
		for _, v := range values {
			if v.T != bson.TypeNull {
				n++
			}
		}
		return bson.Int32(int32(n)), nil

	case aggSum:
		var sum float64
		for _, v := range values {
			sum += v.AsFloat64()
		}
		return bson.Double(sum), nil

	case aggAvg:
		if len(values) == 0 {
			return bson.Null(), nil
		}
		var sum float64
		for _, v := range values {
			sum += v.AsFloat64()
		}
		return bson.Double(sum / float64(len(values))), nil

	case aggMin:
		return foldExtreme(values, collation, -1), nil

	case aggMax:
		return foldExtreme(values, collation, 1), nil

	case aggAny:
		for _, v := range values {
			if toBool(v) {
				return bson.Boolean(true), nil
			}
		}
		return bson.Boolean(false), nil

	case aggAll:
		for _, v := range values {
			if !toBool(v) {
				return bson.Boolean(false), nil
			}
		}
		return bson.Boolean(true), nil
	}
	return bson.Value{}, nil
}

// foldExtreme returns the min (want<0) or max (want>0) value under collation.
func foldExtreme(values []bson.Value, collation bson.Collation, want int) bson.Value {
	if len(values) == 0 {
		return bson.Null()
	}
	best := values[0]
	for _, v := range values[1:] {
		cmp := collation.Compare(v, best)
		if (want < 0 && cmp < 0) || (want > 0 && cmp > 0) {
			best = v
		}
	}
	return best
}
