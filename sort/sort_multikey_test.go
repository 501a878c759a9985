package sort

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/index"
)

func TestServiceMultiKeyOrdering(t *testing.T) {
	svc := NewService(bson.Binary, []Order{{Ascending: true}, {Ascending: false}}, DefaultContainerCapacity)
	rows := []struct {
		dept  string
		score int32
	}{
		{"eng", 3}, {"eng", 9}, {"eng", 1}, {"ops", 5}, {"ops", 2},
	}
	for i, r := range rows {
		svc.Insert(Pair{
			Key:  []bson.Value{bson.String(r.dept), bson.Int32(r.score)},
			Addr: index.Address{PageID: uint32(i)},
		})
	}
	svc.Flush()

	next := svc.Merge()
	var got [][2]any
	for {
		p, ok := next()
		if !ok {
			break
		}
		got = append(got, [2]any{p.Key[0].Str, p.Key[1].I32})
	}

	want := [][2]any{
		{"eng", int32(9)}, {"eng", int32(3)}, {"eng", int32(1)},
		{"ops", int32(5)}, {"ops", int32(2)},
	}
	assert.Equal(t, want, got)
}

func TestServiceFlushIsIdempotentBetweenInserts(t *testing.T) {
	svc := NewService(bson.Binary, []Order{{Ascending: true}}, DefaultContainerCapacity)
	svc.Insert(Pair{Key: []bson.Value{bson.Int32(2)}, Addr: index.Address{PageID: 1}})
	svc.Flush()
	svc.Insert(Pair{Key: []bson.Value{bson.Int32(1)}, Addr: index.Address{PageID: 2}})
	svc.Flush()

	next := svc.Merge()
	var pages []uint32
	for {
		p, ok := next()
		if !ok {
			break
		}
		pages = append(pages, p.Addr.PageID)
	}
	assert.Equal(t, []uint32{2, 1}, pages)
}
