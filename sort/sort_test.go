package sort

import (
	"testing"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/index"
)

func TestServiceSortsWithinOneContainer(t *testing.T) {
	svc := NewService(bson.Binary, []Order{{Ascending: true}}, DefaultContainerCapacity)
	keys := []string{"mysql", "oracle", "cassandra", "redis", "etcd"}
	for i, k := range keys {
		svc.Insert(Pair{Key: []bson.Value{bson.String(k)}, Addr: index.Address{PageID: uint32(i)}})
	}
	svc.Flush()

	if sizes := svc.ContainerSizes(); len(sizes) != 1 || sizes[0] != len(keys) {
		t.Fatalf("expected a single container of %d, got %v", len(keys), sizes)
	}

	next := svc.Merge()
	var got []string
	for {
		p, ok := next()
		if !ok {
			break
		}
		got = append(got, p.Key[0].Str)
	}
	want := []string{"cassandra", "etcd", "mysql", "oracle", "redis"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("merged order mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestServiceDescendingOrder(t *testing.T) {
	svc := NewService(bson.Binary, []Order{{Ascending: false}}, DefaultContainerCapacity)
	for i := 0; i < 5; i++ {
		svc.Insert(Pair{Key: []bson.Value{bson.Int64(int64(i))}, Addr: index.Address{PageID: uint32(i)}})
	}
	svc.Flush()

	next := svc.Merge()
	prev := int64(1 << 62)
	for {
		p, ok := next()
		if !ok {
			break
		}
		v := p.Key[0].I64
		if v > prev {
			t.Fatalf("expected descending order, got %d after %d", v, prev)
		}
		prev = v
	}
}

// TestServiceSpillsMultipleContainers mirrors the spilling scenario of
//: enough keys inserted that a small container capacity forces
// more than one spill, and the merged output is still a single globally
// sorted sequence spanning every container.
func TestServiceSpillsMultipleContainers(t *testing.T) {
	const n = 2000
	const containerCap = 10 * 8192

	svc := NewService(bson.Binary, []Order{{Ascending: true}}, containerCap)
	for i := 0; i < n; i++ {
		g := bson.NewGuid()
		svc.InsertSized(Pair{Key: []bson.Value{g}, Addr: index.Address{PageID: uint32(i)}}, guidPairSize)
	}
	svc.Flush()

	sizes := svc.ContainerSizes()
	if len(sizes) < 2 {
		t.Fatalf("expected spilling to produce multiple containers, got %v", sizes)
	}
	total := 0
	for _, s := range sizes {
		total += s
	}
	if total != n {
		t.Fatalf("container sizes %v don't sum to %d", sizes, n)
	}

	next := svc.Merge()
	var prev bson.Value
	count := 0
	for {
		p, ok := next()
		if !ok {
			break
		}
		if count > 0 && bson.Binary.Compare(p.Key[0], prev) < 0 {
			t.Fatalf("merge output not sorted at entry %d", count)
		}
		prev = p.Key[0]
		count++
	}
	if count != n {
		t.Fatalf("expected %d merged entries, got %d", n, count)
	}
}

// guidPairSize approximates the on-disk footprint of one (guid key,
// address) pair: a 16-byte GUID plus an 8-byte Address plus 19 bytes of
// tag and length overhead. At 43 bytes a 10*8192-byte container spills
// after 1906 pairs, so 2000 pairs fill two containers.
const guidPairSize = 16 + 8 + 19

func TestCompareKeysTieBreaksByInsertionOrder(t *testing.T) {
	svc := NewService(bson.Binary, []Order{{Ascending: true}}, DefaultContainerCapacity)
	for i := 0; i < 3; i++ {
		svc.Insert(Pair{Key: []bson.Value{bson.String("same")}, Addr: index.Address{PageID: uint32(i)}})
	}
	svc.Flush()

	next := svc.Merge()
	for i := 0; i < 3; i++ {
		p, ok := next()
		if !ok {
			t.Fatalf("expected entry %d", i)
		}
		if p.Addr.PageID != uint32(i) {
			t.Errorf("expected insertion-order tie-break, got PageID %d at position %d", p.Addr.PageID, i)
		}
	}
}

func TestMergeEmptyService(t *testing.T) {
	svc := NewService(bson.Binary, nil, 0)
	next := svc.Merge()
	if _, ok := next(); ok {
		t.Fatal("expected no entries from an empty service")
	}
}
