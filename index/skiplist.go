// Package index implements the secondary index structures: a
// collation-aware skip list for scalar/equality/range lookups, a flat
// vector index for nearest-neighbor queries, and a Morton-coded spatial
// index for point/shape queries.
package index

import (
	"math/rand"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/dberr"
)

// Address is where a record lives: the first page of its document chain,
// generalized from a single uint64 row id to a page/slot pair since
// documents are addressed by physical page location.
type Address struct {
	PageID uint32
	Slot   uint16
}

// maxLevel bounds the skip list's height; a geometric(1/2) distribution
// over 32 levels comfortably covers any realistic index size.
const maxLevel = 32

type skipNode struct {
	key   bson.Value
	addr  Address
	next  []*skipNode
	alive bool
}

// SkipList is an in-memory ordered multimap from bson.Value keys (ordered
// under a Collation) to Address, supporting duplicate keys chained in
// insertion order unless the index is declared unique.
//
// Exposes Insert/Delete/Find/Range, the same operations a B+Tree index
// would, but the on-disk B+Tree node layout is replaced by a
// randomized skip list. Kept as an in-memory structure rather than paged
// onto disk — see DESIGN.md's Open Question note on this simplification.
type SkipList struct {
	collation bson.Collation
	unique    bool
	head      *skipNode
	level     int
	size      int
	rng       *rand.Rand
}

// NewSkipList creates an empty index under the given collation.
func NewSkipList(collation bson.Collation, unique bool) *SkipList {
	return &SkipList{
		collation: collation,
		unique:    unique,
		head:      &skipNode{next: make([]*skipNode, maxLevel)},
		level:     1,
		rng:       rand.New(rand.NewSource(1)),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Intn(2) == 0 {
		lvl++
	}
	return lvl
}

// Find returns the address of the first live node whose key equals target
// under the collation, or (zero, false) if there is none. It does not
// return the next greater key when target is absent; that seek is findGE.
func (s *SkipList) Find(target bson.Value) (Address, bool) {
	node := s.findGE(target)
	if node == nil || s.collation.Compare(node.key, target) != 0 {
		return Address{}, false
	}
	return node.addr, true
}

// findGE returns the first alive node with key >= target (sentinel-less:
// nil means no such node), walking top-down, left-to-right
func (s *SkipList) findGE(target bson.Value) *skipNode {
	cur := s.head
	for lvl := s.level - 1; lvl >= 0; lvl-- {
		for cur.next[lvl] != nil && s.collation.Compare(cur.next[lvl].key, target) < 0 {
			cur = cur.next[lvl]
		}
	}
	for cur.next[0] != nil && !cur.next[0].alive {
		cur = cur.next[0]
	}
	return cur.next[0]
}

// Insert adds (key, addr). Ties chain in insertion order;
// uniqueness is enforced only when the list was created Unique.
func (s *SkipList) Insert(key bson.Value, addr Address) error {
	if s.unique {
		if next := s.findGE(key); next != nil && s.collation.Compare(next.key, key) == 0 {
			return &dberr.KeyError{Kind: dberr.ErrIndexKeyAlreadyExists, Key: key.String()}
		}
	}

	update := make([]*skipNode, maxLevel)
	cur := s.head
	for lvl := s.level - 1; lvl >= 0; lvl-- {
		for cur.next[lvl] != nil && s.collation.Compare(cur.next[lvl].key, key) <= 0 {
			cur = cur.next[lvl]
		}
		update[lvl] = cur
	}

	lvl := s.randomLevel()
	if lvl > s.level {
		for i := s.level; i < lvl; i++ {
			update[i] = s.head
		}
		s.level = lvl
	}

	node := &skipNode{key: key, addr: addr, next: make([]*skipNode, lvl), alive: true}
	for i := 0; i < lvl; i++ {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
	}
	s.size++
	return nil
}

// Delete unlinks the first live node matching (key, addr) exactly.
func (s *SkipList) Delete(key bson.Value, addr Address) bool {
	update := make([]*skipNode, maxLevel)
	cur := s.head
	for lvl := s.level - 1; lvl >= 0; lvl-- {
		for cur.next[lvl] != nil && s.collation.Compare(cur.next[lvl].key, key) < 0 {
			cur = cur.next[lvl]
		}
		update[lvl] = cur
	}

	target := cur.next[0]
	for target != nil && s.collation.Compare(target.key, key) == 0 {
		if target.addr == addr && target.alive {
			for i := 0; i < len(target.next); i++ {
				prev := update[i]
				for prev.next[i] != nil && prev.next[i] != target && s.collation.Compare(prev.next[i].key, key) == 0 {
					prev = prev.next[i]
				}
				if prev.next[i] == target {
					prev.next[i] = target.next[i]
				}
			}
			target.alive = false
			s.size--
			return true
		}
		target = target.next[0]
	}
	return false
}

// Range returns every (key, addr) with from <= key <= to (or from < key <
// to when inclusive is false), walking level 0 left to right.
func (s *SkipList) Range(from, to bson.Value, inclusive bool) []struct {
	Key  bson.Value
	Addr Address
} {
	var out []struct {
		Key  bson.Value
		Addr Address
	}
	cur := s.findGE(from)
	for cur != nil {
		cmpFrom := s.collation.Compare(cur.key, from)
		if !inclusive && cmpFrom == 0 {
			cur = cur.next[0]
			continue
		}
		cmpTo := s.collation.Compare(cur.key, to)
		if cmpTo > 0 || (!inclusive && cmpTo == 0) {
			break
		}
		if cur.alive {
			out = append(out, struct {
				Key  bson.Value
				Addr Address
			}{cur.key, cur.addr})
		}
		cur = cur.next[0]
	}
	return out
}

// Len returns the number of live entries.
func (s *SkipList) Len() int { return s.size }

// All returns every live (key, addr) pair in ascending order, for full
// scans and EnsureIndex rebuilds.
func (s *SkipList) All() []struct {
	Key  bson.Value
	Addr Address
} {
	var out []struct {
		Key  bson.Value
		Addr Address
	}
	for cur := s.head.next[0]; cur != nil; cur = cur.next[0] {
		if cur.alive {
			out = append(out, struct {
				Key  bson.Value
				Addr Address
			}{cur.key, cur.addr})
		}
	}
	return out
}
