package query

import (
	"testing"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/collection"
	"github.com/litedb/litedb/index"
	"github.com/litedb/litedb/storage"
)

func newPipelineFixture(t *testing.T) (*collection.Collection, *index.Manager, *storage.Snapshot) {
	t.Helper()
	pager, err := storage.OpenPagerMemory()
	if err != nil {
		t.Fatalf("OpenPagerMemory: %v", err)
	}
	t.Cleanup(func() { pager.Close() })

	indexes := index.NewManager()
	col := collection.New("people", indexes)
	snap := pager.BeginTx(true)

	rows := []struct {
		name string
		age  int32
	}{
		{"ada", 36}, {"grace", 85}, {"margaret", 61}, {"alan", 41},
	}
	for _, r := range rows {
		d := bson.NewDocument().Set("name", bson.String(r.name)).Set("age", bson.Int32(r.age))
		if _, err := col.Insert(snap, d); err != nil {
			t.Fatalf("insert %s: %v", r.name, err)
		}
	}
	return col, indexes, snap
}

func TestQueryWhereFiltersDocuments(t *testing.T) {
	col, indexes, snap := newPipelineFixture(t)
	q := New(col, indexes, bson.Binary).Where(mustParse(t, "age > 60"))
	docs, err := q.ToList(snap)
	if err != nil {
		t.Fatalf("ToList error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 matches (grace, margaret), got %d", len(docs))
	}
}

func TestQueryOrderByAscending(t *testing.T) {
	col, indexes, snap := newPipelineFixture(t)
	q := New(col, indexes, bson.Binary).OrderBy(OrderTerm{Expr: &IdentExpr{Name: "age"}})
	docs, err := q.ToList(snap)
	if err != nil {
		t.Fatalf("ToList error: %v", err)
	}
	if len(docs) != 4 {
		t.Fatalf("expected all 4 documents, got %d", len(docs))
	}
	var prev int32 = -1
	for _, d := range docs {
		age, _ := d.Get("age")
		if age.I32 < prev {
			t.Fatalf("expected ascending order, got %d after %d", age.I32, prev)
		}
		prev = age.I32
	}
}

func TestQueryOrderByDescendingWithLimit(t *testing.T) {
	col, indexes, snap := newPipelineFixture(t)
	q := New(col, indexes, bson.Binary).
		OrderBy(OrderTerm{Expr: &IdentExpr{Name: "age"}, Desc: true}).
		Limit(1)
	docs, err := q.ToList(snap)
	if err != nil {
		t.Fatalf("ToList error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 result under Limit(1), got %d", len(docs))
	}
	name, _ := docs[0].Get("name")
	if name.Str != "grace" {
		t.Errorf("expected the oldest (grace) first under descending order, got %s", name.Str)
	}
}

func TestQueryCountAndFirst(t *testing.T) {
	col, indexes, snap := newPipelineFixture(t)
	q := New(col, indexes, bson.Binary).Where(mustParse(t, "age > 30"))
	n, err := q.Count(snap)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 4 {
		t.Errorf("expected all 4 rows to match age > 30, got %d", n)
	}

	first, err := New(col, indexes, bson.Binary).
		Where(mustParse(t, `name = "alan"`)).First(snap)
	if err != nil {
		t.Fatalf("First error: %v", err)
	}
	if first == nil {
		t.Fatal("expected a match for name = alan")
	}
	age, _ := first.Get("age")
	if age.I32 != 41 {
		t.Errorf("expected alan's age 41, got %d", age.I32)
	}
}

func TestQuerySelectProjection(t *testing.T) {
	col, indexes, snap := newPipelineFixture(t)
	q := New(col, indexes, bson.Binary).
		Where(mustParse(t, `name = "ada"`)).
		Select(SelectField{Name: "upperName", Expr: &FuncCallExpr{Name: "UPPER", Args: []Expr{&IdentExpr{Name: "name"}}}})
	docs, err := q.ToList(snap)
	if err != nil {
		t.Fatalf("ToList error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 result, got %d", len(docs))
	}
	v, ok := docs[0].Get("upperName")
	if !ok || v.Str != "ADA" {
		t.Errorf("expected projected upperName ADA, got %#v (ok=%v)", v, ok)
	}
}

func TestQueryGroupByWithAggregate(t *testing.T) {
	col, indexes, snap := newPipelineFixture(t)
	q := New(col, indexes, bson.Binary).
		Where(mustParse(t, "age > 0")).
		GroupBy(&LiteralExpr{Token: Token{Type: TokenInteger, Literal: "1"}}).
		Select(SelectField{Name: "total", Expr: &FuncCallExpr{Name: "COUNT", Args: []Expr{&IdentExpr{Name: "*"}}}})
	docs, err := q.ToList(snap)
	if err != nil {
		t.Fatalf("ToList error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected a single group, got %d", len(docs))
	}
	total, _ := docs[0].Get("total")
	if total.I32 != 4 {
		t.Errorf("expected COUNT(*) 4, got %d", total.I32)
	}
}

func TestQueryOffsetAndLimitPaginate(t *testing.T) {
	col, indexes, snap := newPipelineFixture(t)
	q := New(col, indexes, bson.Binary).
		OrderBy(OrderTerm{Expr: &IdentExpr{Name: "age"}}).
		Offset(1).Limit(2)
	docs, err := q.ToList(snap)
	if err != nil {
		t.Fatalf("ToList error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 results after Offset(1).Limit(2), got %d", len(docs))
	}
	name, _ := docs[0].Get("name")
	if name.Str != "alan" {
		t.Errorf("expected alan (age 41, second-youngest) first after Offset(1), got %s", name.Str)
	}
}

func TestQuerySingleErrorsOnMultipleMatches(t *testing.T) {
	col, indexes, snap := newPipelineFixture(t)
	_, err := New(col, indexes, bson.Binary).Where(mustParse(t, "age > 0")).Single(snap)
	if err == nil {
		t.Fatal("expected Single to error when more than one document matches")
	}
}
