package index

import (
	"fmt"
	"sync"

	"github.com/litedb/litedb/bson"
)

// Kind distinguishes the three index flavors: scalar, vector, spatial.
type Kind int

const (
	KindScalar Kind = iota
	KindVector
	KindSpatial
)

// Def describes one declared index, generalized from a single
// (collection, field) SQL index to the three kinds a document store
// needs.
type Def struct {
	Collection string
	Field      string
	Kind       Kind
	Unique     bool
	Vector     VectorOptions // only meaningful when Kind == KindVector
}

// Entry is one managed index instance: Def.Kind selects which structure
// is set -- Scalar, Vector, or Point together with Shape for a spatial
// index.
type Entry struct {
	Def    Def
	Scalar *SkipList
	Vector *VectorIndex
	Point  *PointIndex
	Shape  *ShapeIndex
}

type indexKey struct {
	collection string
	field      string
}

// Manager owns every index across every collection of one database,
// generalized from a single BTree-backed kind to the scalar/vector/spatial
// trio.
type Manager struct {
	mu      sync.RWMutex
	indexes map[indexKey]*Entry
}

// NewManager creates an empty index manager.
func NewManager() *Manager {
	return &Manager{indexes: make(map[indexKey]*Entry)}
}

// CreateScalarIndex adds a skip-list index over collection.field.
func (m *Manager) CreateScalarIndex(collection, field string, collation bson.Collation, unique bool) (*Entry, error) {
	key := indexKey{collection, field}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[key]; exists {
		return nil, fmt.Errorf("index: index on %s.%s already exists", collection, field)
	}
	e := &Entry{
		Def:    Def{Collection: collection, Field: field, Kind: KindScalar, Unique: unique},
		Scalar: NewSkipList(collation, unique),
	}
	m.indexes[key] = e
	return e, nil
}

// CreateVectorIndex adds a flat vector index over collection.field.
func (m *Manager) CreateVectorIndex(collection, field string, opts VectorOptions) (*Entry, error) {
	key := indexKey{collection, field}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[key]; exists {
		return nil, fmt.Errorf("index: index on %s.%s already exists", collection, field)
	}
	e := &Entry{
		Def:    Def{Collection: collection, Field: field, Kind: KindVector, Vector: opts},
		Vector: NewVectorIndex(opts),
	}
	m.indexes[key] = e
	return e, nil
}

// CreateSpatialIndex adds a point+shape spatial index over collection.field.
func (m *Manager) CreateSpatialIndex(collection, field string) (*Entry, error) {
	key := indexKey{collection, field}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[key]; exists {
		return nil, fmt.Errorf("index: index on %s.%s already exists", collection, field)
	}
	e := &Entry{
		Def:   Def{Collection: collection, Field: field, Kind: KindSpatial},
		Point: NewPointIndex(),
		Shape: NewShapeIndex(),
	}
	m.indexes[key] = e
	return e, nil
}

// DropIndex removes an index.
func (m *Manager) DropIndex(collection, field string) error {
	key := indexKey{collection, field}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[key]; !exists {
		return fmt.Errorf("index: index on %s.%s not found", collection, field)
	}
	delete(m.indexes, key)
	return nil
}

// Get returns the index entry for collection.field, or nil.
func (m *Manager) Get(collection, field string) *Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexes[indexKey{collection, field}]
}

// DropAllForCollection removes every index belonging to a collection from
// the catalog. It touches no pages; freeing data blocks is left to the
// caller.
func (m *Manager) DropAllForCollection(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.indexes {
		if k.collection == collection {
			delete(m.indexes, k)
		}
	}
}

// ForCollection returns every index entry declared on a collection, used
// by Insert/Update/Delete to maintain all of a document's indexes and by
// the query planner to look for a usable index.
func (m *Manager) ForCollection(collection string) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Entry
	for k, e := range m.indexes {
		if k.collection == collection {
			out = append(out, e)
		}
	}
	return out
}
