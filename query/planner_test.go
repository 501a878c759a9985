package query

import (
	"testing"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/index"
)

func setupScalarIndex(t *testing.T, col, field string, pairs map[int32]index.Address) *index.Manager {
	t.Helper()
	mgr := index.NewManager()
	entry, err := mgr.CreateScalarIndex(col, field, bson.Binary, false)
	if err != nil {
		t.Fatalf("CreateScalarIndex: %v", err)
	}
	for k, addr := range pairs {
		if err := entry.Scalar.Insert(bson.Int32(k), addr); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	return mgr
}

func TestPlanIndexEquality(t *testing.T) {
	mgr := setupScalarIndex(t, "people", "age", map[int32]index.Address{
		30: {PageID: 1}, 40: {PageID: 2},
	})
	where := mustParse(t, "age = 30")
	plan, err := planIndex("people", mgr, where, nil, bson.Binary)
	if err != nil {
		t.Fatalf("planIndex error: %v", err)
	}
	if plan == nil {
		t.Fatal("expected a plan using the declared index")
	}
	if len(plan.addrs) != 1 || plan.addrs[0].PageID != 1 {
		t.Errorf("expected exactly page 1, got %v", plan.addrs)
	}
}

func TestPlanIndexRange(t *testing.T) {
	mgr := setupScalarIndex(t, "people", "age", map[int32]index.Address{
		10: {PageID: 1}, 20: {PageID: 2}, 30: {PageID: 3}, 40: {PageID: 4},
	})
	where := mustParse(t, "age >= 20")
	plan, err := planIndex("people", mgr, where, nil, bson.Binary)
	if err != nil {
		t.Fatalf("planIndex error: %v", err)
	}
	if plan == nil {
		t.Fatal("expected a plan using the declared index")
	}
	if len(plan.addrs) != 3 {
		t.Errorf("expected 3 addresses (age 20, 30, 40), got %d", len(plan.addrs))
	}
}

func TestPlanIndexStrictRangeExcludesEqual(t *testing.T) {
	mgr := setupScalarIndex(t, "people", "age", map[int32]index.Address{
		10: {PageID: 1}, 20: {PageID: 2}, 30: {PageID: 3},
	})
	where := mustParse(t, "age > 20")
	plan, err := planIndex("people", mgr, where, nil, bson.Binary)
	if err != nil {
		t.Fatalf("planIndex error: %v", err)
	}
	if plan == nil {
		t.Fatal("expected a plan using the declared index")
	}
	if len(plan.addrs) != 1 || plan.addrs[0].PageID != 3 {
		t.Errorf("expected only page 3 (age 30), got %v", plan.addrs)
	}
}

func TestPlanIndexNoUsableConjunct(t *testing.T) {
	mgr := setupScalarIndex(t, "people", "age", map[int32]index.Address{30: {PageID: 1}})
	where := mustParse(t, `name = "bob"`)
	plan, err := planIndex("people", mgr, where, nil, bson.Binary)
	if err != nil {
		t.Fatalf("planIndex error: %v", err)
	}
	if plan != nil {
		t.Errorf("expected no plan when no conjunct matches a declared index, got %v", plan.addrs)
	}
}

func TestPlanIndexFieldDependentBoundIsUnplannable(t *testing.T) {
	mgr := setupScalarIndex(t, "people", "age", map[int32]index.Address{30: {PageID: 1}})
	where := mustParse(t, "age BETWEEN minAge AND maxAge")
	plan, err := planIndex("people", mgr, where, nil, bson.Binary)
	if err != nil {
		t.Fatalf("planIndex error: %v", err)
	}
	if plan != nil {
		t.Error("expected a field-dependent BETWEEN bound to fall back to a full scan rather than plan off a nil document")
	}
}

func TestPlanIndexFlippedComparison(t *testing.T) {
	mgr := setupScalarIndex(t, "people", "age", map[int32]index.Address{
		10: {PageID: 1}, 20: {PageID: 2}, 30: {PageID: 3},
	})
	where := mustParse(t, "20 <= age")
	plan, err := planIndex("people", mgr, where, nil, bson.Binary)
	if err != nil {
		t.Fatalf("planIndex error: %v", err)
	}
	if plan == nil {
		t.Fatal("expected literal-on-the-left comparison to still resolve to a plan")
	}
	if len(plan.addrs) != 2 {
		t.Errorf("expected 2 addresses (age 20, 30), got %d", len(plan.addrs))
	}
}
