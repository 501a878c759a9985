package query

import (
	"testing"

	"github.com/litedb/litedb/bson"
)

func evalBool(t *testing.T, src string, doc *bson.Document, params ...bson.Value) bool {
	t.Helper()
	expr, err := Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	ok, err := EvalPredicate(expr, doc, params, bson.Binary)
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return ok
}

func TestEvalComparison(t *testing.T) {
	doc := bson.NewDocument().Set("age", bson.Int32(30))
	if !evalBool(t, "age > 18", doc) {
		t.Error("expected age > 18 to match")
	}
	if evalBool(t, "age < 18", doc) {
		t.Error("expected age < 18 not to match")
	}
}

func TestEvalAndOrShortCircuit(t *testing.T) {
	doc := bson.NewDocument().Set("status", bson.String("open")).Set("retry", bson.Int32(5))
	if !evalBool(t, `status = "open" AND retry > 3`, doc) {
		t.Error("expected AND predicate to match")
	}
	if evalBool(t, `status = "closed" AND retry > 3`, doc) {
		t.Error("expected AND predicate to fail")
	}
	if !evalBool(t, `status = "closed" OR retry > 3`, doc) {
		t.Error("expected OR predicate to match")
	}
}

func TestEvalMissingFieldIsNull(t *testing.T) {
	doc := bson.NewDocument()
	if !evalBool(t, "missing IS NULL", doc) {
		t.Error("expected a missing field to read as NULL")
	}
}

func TestEvalWildcardAnySatisfies(t *testing.T) {
	items := bson.Array([]bson.Value{
		bson.DocValue(bson.NewDocument().Set("name", bson.String("a"))),
		bson.DocValue(bson.NewDocument().Set("name", bson.String("b"))),
	})
	doc := bson.NewDocument().Set("items", items)
	if !evalBool(t, `items.*.name = "b"`, doc) {
		t.Error("expected wildcard path to match if any element satisfies the predicate")
	}
	if evalBool(t, `items.*.name = "z"`, doc) {
		t.Error("expected wildcard path not to match when no element satisfies the predicate")
	}
}

func TestEvalLike(t *testing.T) {
	doc := bson.NewDocument().Set("name", bson.String("Johnson"))
	if !evalBool(t, `name LIKE "john%"`, doc) {
		t.Error("expected case-insensitive LIKE prefix match")
	}
	if evalBool(t, `name NOT LIKE "john%"`, doc) {
		t.Error("expected NOT LIKE to fail when the pattern matches")
	}
}

func TestEvalBetween(t *testing.T) {
	doc := bson.NewDocument().Set("age", bson.Int32(25))
	if !evalBool(t, "age BETWEEN 18 AND 65", doc) {
		t.Error("expected age to fall within range")
	}
	if !evalBool(t, "age NOT BETWEEN 30 AND 65", doc) {
		t.Error("expected age outside range under NOT BETWEEN")
	}
}

func TestEvalIn(t *testing.T) {
	doc := bson.NewDocument().Set("status", bson.String("closed"))
	if !evalBool(t, `status IN ("open", "closed")`, doc) {
		t.Error("expected status to be found in the list")
	}
	if evalBool(t, `status IN ("open", "pending")`, doc) {
		t.Error("expected status not to be found in the list")
	}
}

func TestEvalParams(t *testing.T) {
	doc := bson.NewDocument().Set("age", bson.Int32(42))
	if !evalBool(t, "age = ?", doc, bson.Int32(42)) {
		t.Error("expected parameter substitution to match")
	}
}

func TestEvalArithmetic(t *testing.T) {
	doc := bson.NewDocument().Set("price", bson.Int32(10)).Set("qty", bson.Int32(3))
	v, err := Eval(mustParse(t, "price * qty"), doc, nil, bson.Binary)
	if err != nil {
		t.Fatalf("eval error: %v", err)
	}
	if v.T != bson.TypeInt32 || v.I32 != 30 {
		t.Errorf("expected int32 30, got %#v", v)
	}
}

func TestEvalUpperScalarFunc(t *testing.T) {
	doc := bson.NewDocument().Set("name", bson.String("ana"))
	if !evalBool(t, `UPPER(name) = "ANA"`, doc) {
		t.Error("expected UPPER to uppercase the field before comparing")
	}
}

func mustParse(t *testing.T, src string) Expr {
	t.Helper()
	e, err := Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return e
}
