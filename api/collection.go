package api

import (
	"fmt"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/collection"
	"github.com/litedb/litedb/dberr"
	"github.com/litedb/litedb/index"
)

// IndexOptions configures EnsureIndex. Kind defaults to a scalar skip-list
// index; set VectorDimensions (with VectorMetric) for a vector index, or
// Kind = index.KindSpatial for a {lat,lon} spatial index. There is no
// further spatial sub-kind to select -- the spatial index is always the
// point+shape pair (see index/spatialindex.go), so no SpatialKind field
// exists here.
type IndexOptions struct {
	Kind             index.Kind
	Unique           bool
	Collation        bson.Collation
	VectorDimensions int
	VectorMetric     index.Metric
}

// Collection is a named set of documents: CRUD against the storage layer
// plus the index catalog and query pipeline scoped to this collection's
// name.
type Collection struct {
	db  *Database
	col *collection.Collection
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.col.Name() }

// ensureIDIndex declares the implicit unique index every collection
// carries on _id, backfilling it from any documents already on disk. This
// engine has no on-disk index declarations (txn.UpgradeV4's doc comment:
// indexes are always rebuilt by a scan), so the _id index is declared
// fresh on every GetCollection rather than read from the file header.
func (c *Collection) ensureIDIndex() error {
	if c.db.indexes.Get(c.col.Name(), "_id") != nil {
		return nil
	}
	rtx := c.db.mgr.BeginRead()
	defer rtx.Rollback()
	_, err := c.col.EnsureIndex(rtx.Snapshot(), index.Def{
		Collection: c.col.Name(),
		Field:      "_id",
		Kind:       index.KindScalar,
		Unique:     true,
	}, bson.Binary)
	return err
}

// EnsureIndex declares a secondary index on field, backfilling it by
// scanning the collection's current contents. Building the index only
// populates the in-memory catalog (index.Manager); nothing is written to
// storage, so this runs over a read snapshot even on a writable database
// and works unchanged on a read-only one.
func (c *Collection) EnsureIndex(field string, opts IndexOptions) error {
	rtx := c.db.mgr.BeginRead()
	defer rtx.Rollback()
	def := index.Def{
		Collection: c.col.Name(),
		Field:      field,
		Kind:       opts.Kind,
		Unique:     opts.Unique,
		Vector:     index.VectorOptions{Dimensions: opts.VectorDimensions, Metric: opts.VectorMetric},
	}
	_, err := c.col.EnsureIndex(rtx.Snapshot(), def, opts.Collation)
	return err
}

func (c *Collection) idAddr(id bson.Value) (index.Address, bool) {
	entry := c.db.indexes.Get(c.col.Name(), "_id")
	if entry == nil || entry.Scalar == nil {
		return index.Address{}, false
	}
	return entry.Scalar.Find(id)
}

// Insert assigns an _id if the document doesn't carry one and stores it,
// maintaining every declared index. Returns the document's _id.
func (c *Collection) Insert(doc *bson.Document) (bson.Value, error) {
	tx, err := c.db.mgr.BeginWrite()
	if err != nil {
		return bson.Value{}, err
	}
	if _, err := c.col.Insert(tx.Snapshot(), doc); err != nil {
		tx.Rollback()
		return bson.Value{}, err
	}
	if err := tx.Commit(); err != nil {
		return bson.Value{}, err
	}
	id, _ := doc.Get("_id")
	return id, nil
}

// Update replaces the document matching doc's _id. Reports false, no
// error, if no such document exists.
func (c *Collection) Update(doc *bson.Document) (bool, error) {
	id, ok := doc.Get("_id")
	if !ok {
		return false, fmt.Errorf("api: update requires an _id field: %w", dberr.ErrInvalidExpression)
	}
	tx, err := c.db.mgr.BeginWrite()
	if err != nil {
		return false, err
	}
	addr, found := c.idAddr(id)
	if !found {
		tx.Rollback()
		return false, nil
	}
	if _, err := c.col.Update(tx.Snapshot(), addr, doc); err != nil {
		tx.Rollback()
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Upsert inserts doc if its _id is absent or unmatched, otherwise updates
// the existing document in place. Reports true when it inserted.
func (c *Collection) Upsert(doc *bson.Document) (bool, error) {
	if id, ok := doc.Get("_id"); ok {
		tx, err := c.db.mgr.BeginWrite()
		if err != nil {
			return false, err
		}
		if addr, found := c.idAddr(id); found {
			if _, err := c.col.Update(tx.Snapshot(), addr, doc); err != nil {
				tx.Rollback()
				return false, err
			}
			return false, tx.Commit()
		}
		if _, err := c.col.Insert(tx.Snapshot(), doc); err != nil {
			tx.Rollback()
			return false, err
		}
		return true, tx.Commit()
	}
	if _, err := c.Insert(doc); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the document with the given _id. Reports false, no
// error, if no such document exists.
func (c *Collection) Delete(id bson.Value) (bool, error) {
	tx, err := c.db.mgr.BeginWrite()
	if err != nil {
		return false, err
	}
	addr, found := c.idAddr(id)
	if !found {
		tx.Rollback()
		return false, nil
	}
	if err := c.col.Delete(tx.Snapshot(), addr); err != nil {
		tx.Rollback()
		return false, err
	}
	return true, tx.Commit()
}

// FindById returns the document with the given _id, or nil if none
// matches.
func (c *Collection) FindById(id bson.Value) (*bson.Document, error) {
	rtx := c.db.mgr.BeginRead()
	defer rtx.Rollback()
	addr, found := c.idAddr(id)
	if !found {
		return nil, nil
	}
	return c.col.Get(rtx.Snapshot(), addr)
}

// Find evaluates filter (the same expression language Query().Where
// takes) against every document and returns the matches. An empty filter
// matches every document.
func (c *Collection) Find(filter string, params ...bson.Value) ([]*bson.Document, error) {
	return c.Query().Where(filter, params...).ToList()
}

// Query starts a pipeline builder over this collection.
func (c *Collection) Query() *Query {
	return newQuery(c)
}
