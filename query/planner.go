package query

import (
	"strings"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/index"
)

// isPlannableValue reports whether expr can be evaluated without a
// document — only literals, parameters, and arithmetic/array
// combinations of those. Planning only narrows the candidate set, so an
// expression that turns out to depend on the very document it would
// narrow (e.g. BETWEEN otherField AND 10) must be rejected here rather
// than silently evaluated against a nil document.
func isPlannableValue(e Expr) bool {
	switch v := e.(type) {
	case *LiteralExpr, *ParamExpr:
		return true
	case *BinaryExpr:
		return isPlannableValue(v.Left) && isPlannableValue(v.Right)
	case *ArrayLiteralExpr:
		for _, el := range v.Elements {
			if !isPlannableValue(el) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// exprFieldPath returns an expression's dotted field name if it is a bare
// identifier or path, for matching against a declared index's field.
func exprFieldPath(e Expr) (string, bool) {
	switch v := e.(type) {
	case *IdentExpr:
		return v.Name, true
	case *PathExpr:
		if hasWildcard(v.Parts) {
			return "", false
		}
		return strings.Join(v.Parts, "."), true
	default:
		return "", false
	}
}

// splitConjuncts flattens a top-level chain of AND expressions.
func splitConjuncts(e Expr) []Expr {
	if b, ok := e.(*BinaryExpr); ok && b.Op == TokenAnd {
		return append(splitConjuncts(b.Left), splitConjuncts(b.Right)...)
	}
	return []Expr{e}
}

// indexPlan is the outcome of planning: either a narrowed candidate
// address set from an index, or nil meaning "fall back to a full scan".
type indexPlan struct {
	addrs []index.Address
}

// planIndex looks at where's top-level conjunction for an equality or
// range test on a field carrying a declared scalar index and, if found,
// resolves it against that index. The predicate is still evaluated in
// full afterward (FILTER), since the index only narrows the candidate
// set down to the leading indexed conjunct.
func planIndex(col string, idxMgr *index.Manager, where Expr, params []bson.Value, collation bson.Collation) (*indexPlan, error) {
	if where == nil || idxMgr == nil {
		return nil, nil
	}
	for _, conjunct := range splitConjuncts(where) {
		b, ok := conjunct.(*BinaryExpr)
		if ok {
			if plan, err := planBinaryConjunct(col, idxMgr, b, params, collation); err != nil {
				return nil, err
			} else if plan != nil {
				return plan, nil
			}
			continue
		}
		if between, ok := conjunct.(*BetweenExpr); ok {
			field, ok := exprFieldPath(between.Expr)
			if !ok {
				continue
			}
			if !isPlannableValue(between.Low) || !isPlannableValue(between.High) {
				continue
			}
			entry := idxMgr.Get(col, field)
			if entry == nil || entry.Def.Kind != index.KindScalar {
				continue
			}
			low, err := Eval(between.Low, nil, params, collation)
			if err != nil {
				continue
			}
			high, err := Eval(between.High, nil, params, collation)
			if err != nil {
				continue
			}
			if between.Negate {
				continue
			}
			rng := entry.Scalar.Range(low, high, true)
			addrs := make([]index.Address, len(rng))
			for i, r := range rng {
				addrs[i] = r.Addr
			}
			return &indexPlan{addrs: addrs}, nil
		}
	}
	return nil, nil
}

func planBinaryConjunct(col string, idxMgr *index.Manager, b *BinaryExpr, params []bson.Value, collation bson.Collation) (*indexPlan, error) {
	field, val, op, ok := normalizeComparison(b)
	if !ok || !isPlannableValue(val) {
		return nil, nil
	}
	entry := idxMgr.Get(col, field)
	if entry == nil || entry.Def.Kind != index.KindScalar {
		return nil, nil
	}
	key, err := Eval(val, nil, params, collation)
	if err != nil {
		return nil, nil
	}

	switch op {
	case TokenEQ:
		rng := entry.Scalar.Range(key, key, true)
		return &indexPlan{addrs: addrsOf(rng)}, nil
	case TokenGTE:
		rng := entry.Scalar.Range(key, bson.MaxValue(), true)
		return &indexPlan{addrs: addrsOf(rng)}, nil
	case TokenGT:
		rng := entry.Scalar.Range(key, bson.MaxValue(), true)
		return &indexPlan{addrs: addrsOf(excludeEqual(rng, key, collation))}, nil
	case TokenLTE:
		rng := entry.Scalar.Range(bson.MinValue(), key, true)
		return &indexPlan{addrs: addrsOf(rng)}, nil
	case TokenLT:
		rng := entry.Scalar.Range(bson.MinValue(), key, true)
		return &indexPlan{addrs: addrsOf(excludeEqual(rng, key, collation))}, nil
	}
	return nil, nil
}

type rangeResult = struct {
	Key  bson.Value
	Addr index.Address
}

func addrsOf(rng []rangeResult) []index.Address {
	out := make([]index.Address, len(rng))
	for i, r := range rng {
		out[i] = r.Addr
	}
	return out
}

func excludeEqual(rng []rangeResult, key bson.Value, collation bson.Collation) []rangeResult {
	out := rng[:0]
	for _, r := range rng {
		if collation.Compare(r.Key, key) != 0 {
			out = append(out, r)
		}
	}
	return out
}

// normalizeComparison recognizes `field op literal` or `literal op field`,
// returning the field path, the non-field side, and an operator oriented
// so the field is always the left-hand side.
func normalizeComparison(b *BinaryExpr) (field string, val Expr, op TokenType, ok bool) {
	switch b.Op {
	case TokenEQ, TokenNEQ, TokenLT, TokenGT, TokenLTE, TokenGTE:
	default:
		return "", nil, 0, false
	}
	if f, isField := exprFieldPath(b.Left); isField {
		return f, b.Right, b.Op, true
	}
	if f, isField := exprFieldPath(b.Right); isField {
		return f, b.Left, flipComparison(b.Op), true
	}
	return "", nil, 0, false
}

func flipComparison(op TokenType) TokenType {
	switch op {
	case TokenLT:
		return TokenGT
	case TokenGT:
		return TokenLT
	case TokenLTE:
		return TokenGTE
	case TokenGTE:
		return TokenLTE
	default:
		return op
	}
}
