package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/litedb/litedb/bson"
)

// Eval evaluates expr against doc and the query's parameter list, under
// collation, producing a single BSON value. FILTER/WHERE callers use
// EvalPredicate instead, which also folds the result to bool.
func Eval(expr Expr, doc *bson.Document, params []bson.Value, collation bson.Collation) (bson.Value, error) {
	v, err := evalValue(expr, doc, params, collation)
	if err != nil {
		return bson.Value{}, err
	}
	if wv, ok := v.(*wildcardValues); ok {
		if len(wv.values) == 0 {
			return bson.Null(), nil
		}
		return wv.values[0], nil
	}
	return v.(bson.Value), nil
}

// EvalPredicate evaluates expr and folds the result to a bool the way a
// WHERE/FILTER clause does.
func EvalPredicate(expr Expr, doc *bson.Document, params []bson.Value, collation bson.Collation) (bool, error) {
	if expr == nil {
		return true, nil
	}
	v, err := evalValue(expr, doc, params, collation)
	if err != nil {
		return false, err
	}
	return toBool(v), nil
}

// wildcardValues carries every value a "*"/"**" path component resolved
// to; a comparison against one is true if any carried value satisfies it.
type wildcardValues struct {
	values []bson.Value
}

func hasWildcard(parts []string) bool {
	for _, p := range parts {
		if p == "*" || p == "**" {
			return true
		}
	}
	return false
}

func resolveWildcard(doc *bson.Document, parts []string) []bson.Value {
	if doc == nil || len(parts) == 0 {
		return nil
	}
	return resolveWildcardRec(doc, parts)
}

func resolveWildcardRec(doc *bson.Document, parts []string) []bson.Value {
	if len(parts) == 0 {
		return nil
	}
	head, rest := parts[0], parts[1:]

	switch head {
	case "*":
		var out []bson.Value
		for _, k := range doc.Keys() {
			v, _ := doc.Get(k)
			if len(rest) == 0 {
				out = append(out, v)
			} else if v.T == bson.TypeDocument && v.Doc != nil {
				out = append(out, resolveWildcardRec(v.Doc, rest)...)
			}
		}
		return out

	case "**":
		var out []bson.Value
		for _, k := range doc.Keys() {
			v, _ := doc.Get(k)
			if len(rest) == 0 {
				out = append(out, v)
				if v.T == bson.TypeDocument && v.Doc != nil {
					out = append(out, resolveWildcardRec(v.Doc, parts)...)
				}
			} else {
				if k == rest[0] {
					if len(rest) == 1 {
						out = append(out, v)
					} else if v.T == bson.TypeDocument && v.Doc != nil {
						out = append(out, resolveWildcardRec(v.Doc, rest[1:])...)
					}
				}
				if v.T == bson.TypeDocument && v.Doc != nil {
					out = append(out, resolveWildcardRec(v.Doc, parts)...)
				}
			}
		}
		return out

	default:
		v, ok := doc.GetPath([]string{head})
		if !ok {
			return nil
		}
		if len(rest) == 0 {
			return []bson.Value{v}
		}
		if v.T == bson.TypeArray && rest[0] == "*" {
			var out []bson.Value
			for _, el := range v.Arr {
				if len(rest) == 1 {
					out = append(out, el)
				} else if el.T == bson.TypeDocument && el.Doc != nil {
					out = append(out, resolveWildcardRec(el.Doc, rest[1:])...)
				}
			}
			return out
		}
		if v.T != bson.TypeDocument || v.Doc == nil {
			return nil
		}
		return resolveWildcardRec(v.Doc, rest)
	}
}

// evalValue returns either a bson.Value or a *wildcardValues.
func evalValue(expr Expr, doc *bson.Document, params []bson.Value, collation bson.Collation) (interface{}, error) {
	switch e := expr.(type) {
	case *LiteralExpr:
		return literalToValue(e.Token)

	case *ParamExpr:
		if e.Index < 0 || e.Index >= len(params) {
			return nil, fmt.Errorf("query: parameter index %d out of range", e.Index)
		}
		return params[e.Index], nil

	case *IdentExpr:
		if doc == nil {
			return bson.Null(), nil
		}
		v, ok := doc.Get(e.Name)
		if !ok {
			return bson.Null(), nil
		}
		return v, nil

	case *PathExpr:
		if hasWildcard(e.Parts) {
			return &wildcardValues{values: resolveWildcard(doc, e.Parts)}, nil
		}
		if doc == nil {
			return bson.Null(), nil
		}
		v, ok := doc.GetPath(e.Parts)
		if !ok {
			return bson.Null(), nil
		}
		return v, nil

	case *BinaryExpr:
		return evalBinary(e, doc, params, collation)

	case *NotExpr:
		v, err := evalValue(e.Expr, doc, params, collation)
		if err != nil {
			return nil, err
		}
		return bson.Boolean(!toBool(v)), nil

	case *IsNullExpr:
		return evalIsNull(e, doc, params, collation)

	case *LikeExpr:
		return evalLike(e, doc, params, collation)

	case *BetweenExpr:
		return evalBetween(e, doc, params, collation)

	case *InExpr:
		return evalIn(e, doc, params, collation)

	case *ArrayLiteralExpr:
		arr := make([]bson.Value, len(e.Elements))
		for i, el := range e.Elements {
			v, err := evalValue(el, doc, params, collation)
			if err != nil {
				return nil, err
			}
			if wv, ok := v.(*wildcardValues); ok {
				if len(wv.values) > 0 {
					arr[i] = wv.values[0]
				}
				continue
			}
			arr[i] = v.(bson.Value)
		}
		return bson.Array(arr), nil

	case *FuncCallExpr:
		if isScalarFuncName(e.Name) {
			return evalScalarFunc(e, doc, params, collation)
		}
		if isSpatialFuncName(e.Name) {
			return evalSpatialFunc(e, doc, params, collation)
		}
		return nil, fmt.Errorf("query: %w: %s is not usable outside a pipeline stage", errInvalidExpr, e.Name)

	default:
		return nil, fmt.Errorf("query: unsupported expression type %T", expr)
	}
}

var errInvalidExpr = fmt.Errorf("invalid expression")

func evalBinary(e *BinaryExpr, doc *bson.Document, params []bson.Value, collation bson.Collation) (interface{}, error) {
	if e.Op == TokenAnd {
		left, err := evalValue(e.Left, doc, params, collation)
		if err != nil {
			return nil, err
		}
		if !toBool(left) {
			return bson.Boolean(false), nil
		}
		right, err := evalValue(e.Right, doc, params, collation)
		if err != nil {
			return nil, err
		}
		return bson.Boolean(toBool(right)), nil
	}
	if e.Op == TokenOr {
		left, err := evalValue(e.Left, doc, params, collation)
		if err != nil {
			return nil, err
		}
		if toBool(left) {
			return bson.Boolean(true), nil
		}
		right, err := evalValue(e.Right, doc, params, collation)
		if err != nil {
			return nil, err
		}
		return bson.Boolean(toBool(right)), nil
	}

	left, err := evalValue(e.Left, doc, params, collation)
	if err != nil {
		return nil, err
	}
	right, err := evalValue(e.Right, doc, params, collation)
	if err != nil {
		return nil, err
	}

	if wv, ok := left.(*wildcardValues); ok {
		for _, v := range wv.values {
			if v.T == bson.TypeDocument {
				continue
			}
			r, err := applyOp(v, singleOf(right), e.Op, collation)
			if err != nil {
				continue
			}
			if toBool(r) {
				return bson.Boolean(true), nil
			}
		}
		return bson.Boolean(false), nil
	}
	if wv, ok := right.(*wildcardValues); ok {
		for _, v := range wv.values {
			if v.T == bson.TypeDocument {
				continue
			}
			r, err := applyOp(singleOf(left), v, e.Op, collation)
			if err != nil {
				continue
			}
			if toBool(r) {
				return bson.Boolean(true), nil
			}
		}
		return bson.Boolean(false), nil
	}

	return applyOp(left.(bson.Value), right.(bson.Value), e.Op, collation)
}

func singleOf(v interface{}) bson.Value {
	if wv, ok := v.(*wildcardValues); ok {
		if len(wv.values) == 0 {
			return bson.Null()
		}
		return wv.values[0]
	}
	return v.(bson.Value)
}

func applyOp(left, right bson.Value, op TokenType, collation bson.Collation) (bson.Value, error) {
	switch op {
	case TokenPlus, TokenMinus, TokenStar, TokenSlash:
		return evalArithmetic(left, right, op)
	default:
		return compareOp(left, right, op, collation), nil
	}
}

func evalArithmetic(left, right bson.Value, op TokenType) (bson.Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return bson.Value{}, fmt.Errorf("query: %w: non-numeric operand in arithmetic", errInvalidExpr)
	}
	lf, rf := left.AsFloat64(), right.AsFloat64()
	var result float64
	switch op {
	case TokenPlus:
		result = lf + rf
	case TokenMinus:
		result = lf - rf
	case TokenStar:
		result = lf * rf
	case TokenSlash:
		if rf == 0 {
			return bson.Value{}, fmt.Errorf("query: division by zero")
		}
		result = lf / rf
	}
	if left.T == bson.TypeInt32 && right.T == bson.TypeInt32 && op != TokenSlash && result == float64(int64(result)) {
		return bson.Int32(int32(result)), nil
	}
	return bson.Double(result), nil
}

func compareOp(left, right bson.Value, op TokenType, collation bson.Collation) bson.Value {
	cmp := collation.Compare(left, right)
	switch op {
	case TokenEQ:
		return bson.Boolean(cmp == 0)
	case TokenNEQ:
		return bson.Boolean(cmp != 0)
	case TokenLT:
		return bson.Boolean(cmp < 0)
	case TokenGT:
		return bson.Boolean(cmp > 0)
	case TokenLTE:
		return bson.Boolean(cmp <= 0)
	case TokenGTE:
		return bson.Boolean(cmp >= 0)
	default:
		return bson.Boolean(false)
	}
}

func evalIsNull(e *IsNullExpr, doc *bson.Document, params []bson.Value, collation bson.Collation) (bson.Value, error) {
	v, err := evalValue(e.Expr, doc, params, collation)
	if err != nil {
		return bson.Value{}, err
	}
	if wv, ok := v.(*wildcardValues); ok {
		for _, val := range wv.values {
			isNull := val.T == bson.TypeNull
			if e.Negate && !isNull {
				return bson.Boolean(true), nil
			}
			if !e.Negate && isNull {
				return bson.Boolean(true), nil
			}
		}
		return bson.Boolean(false), nil
	}
	isNull := v.(bson.Value).T == bson.TypeNull
	if e.Negate {
		return bson.Boolean(!isNull), nil
	}
	return bson.Boolean(isNull), nil
}

func evalLike(e *LikeExpr, doc *bson.Document, params []bson.Value, collation bson.Collation) (bson.Value, error) {
	v, err := evalValue(e.Expr, doc, params, collation)
	if err != nil {
		return bson.Value{}, err
	}
	test := func(val bson.Value) bool {
		if val.T != bson.TypeString {
			return false
		}
		return matchLikePattern(strings.ToLower(val.Str), strings.ToLower(e.Pattern))
	}
	if wv, ok := v.(*wildcardValues); ok {
		for _, val := range wv.values {
			matched := test(val)
			if matched != e.Negate {
				return bson.Boolean(true), nil
			}
		}
		return bson.Boolean(e.Negate), nil
	}
	matched := test(v.(bson.Value))
	return bson.Boolean(matched != e.Negate), nil
}

// matchLikePattern implements SQL LIKE matching: % any run, _ single char.
func matchLikePattern(s, pattern string) bool {
	si, pi := 0, 0
	starSi, starPi := -1, -1
	for si < len(s) {
		if pi < len(pattern) && (pattern[pi] == '_' || pattern[pi] == s[si]) {
			si++
			pi++
		} else if pi < len(pattern) && pattern[pi] == '%' {
			starSi, starPi = si, pi
			pi++
		} else if starPi >= 0 {
			starSi++
			si = starSi
			pi = starPi + 1
		} else {
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '%' {
		pi++
	}
	return pi == len(pattern)
}

func evalBetween(e *BetweenExpr, doc *bson.Document, params []bson.Value, collation bson.Collation) (bson.Value, error) {
	v, err := evalValue(e.Expr, doc, params, collation)
	if err != nil {
		return bson.Value{}, err
	}
	low, err := Eval(e.Low, doc, params, collation)
	if err != nil {
		return bson.Value{}, err
	}
	high, err := Eval(e.High, doc, params, collation)
	if err != nil {
		return bson.Value{}, err
	}
	inRange := func(val bson.Value) bool {
		return collation.Compare(val, low) >= 0 && collation.Compare(val, high) <= 0
	}
	if wv, ok := v.(*wildcardValues); ok {
		for _, val := range wv.values {
			if val.T == bson.TypeDocument {
				continue
			}
			if inRange(val) != e.Negate {
				return bson.Boolean(true), nil
			}
		}
		return bson.Boolean(e.Negate), nil
	}
	return bson.Boolean(inRange(v.(bson.Value)) != e.Negate), nil
}

func evalIn(e *InExpr, doc *bson.Document, params []bson.Value, collation bson.Collation) (bson.Value, error) {
	v, err := evalValue(e.Expr, doc, params, collation)
	if err != nil {
		return bson.Value{}, err
	}
	candidates := make([]bson.Value, len(e.Values))
	for i, ve := range e.Values {
		c, err := Eval(ve, doc, params, collation)
		if err != nil {
			return bson.Value{}, err
		}
		candidates[i] = c
	}
	matches := func(val bson.Value) bool {
		for _, c := range candidates {
			if collation.Compare(val, c) == 0 {
				return true
			}
		}
		return false
	}
	if wv, ok := v.(*wildcardValues); ok {
		for _, val := range wv.values {
			if matches(val) != e.Negate {
				return bson.Boolean(true), nil
			}
		}
		return bson.Boolean(e.Negate), nil
	}
	return bson.Boolean(matches(v.(bson.Value)) != e.Negate), nil
}

func literalToValue(tok Token) (bson.Value, error) {
	switch tok.Type {
	case TokenInteger:
		n, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			return bson.Value{}, err
		}
		if n >= -(1<<31) && n < 1<<31 {
			return bson.Int32(int32(n)), nil
		}
		return bson.Int64(n), nil
	case TokenFloat:
		f, err := literalAsFloat(tok)
		if err != nil {
			return bson.Value{}, err
		}
		return bson.Double(f), nil
	case TokenString:
		return bson.String(tok.Literal), nil
	case TokenTrue:
		return bson.Boolean(true), nil
	case TokenFalse:
		return bson.Boolean(false), nil
	case TokenNull:
		return bson.Null(), nil
	default:
		return bson.String(tok.Literal), nil
	}
}

func toBool(v interface{}) bool {
	if wv, ok := v.(*wildcardValues); ok {
		return len(wv.values) > 0
	}
	val := v.(bson.Value)
	switch val.T {
	case bson.TypeNull:
		return false
	case bson.TypeBoolean:
		return val.Bool
	case bson.TypeInt32, bson.TypeInt64, bson.TypeDouble, bson.TypeDecimal:
		return val.AsFloat64() != 0
	case bson.TypeString:
		return val.Str != ""
	default:
		return true
	}
}
