// Package collection implements the per-collection document service:
// Insert/Update/Delete against a transaction's Snapshot, with every
// declared index kept in step.
//
// Follows the usual exec{Insert,Update,Delete} sequencing (read doc ->
// mutate storage -> update every index), generalized from SQL rows keyed
// by a numeric record id to BSON documents keyed by an Address
// (page/slot) and an _id field.
package collection

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/snappy"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/dberr"
	"github.com/litedb/litedb/index"
	"github.com/litedb/litedb/storage"
)

// overflowHeaderSize is the fixed prefix every primary document page
// carries before its own encoded bytes: a 4-byte pointer to the first
// overflow (Extend) page (0 means none), a 4-byte total document length
// (top bit flags whether the overflow portion is snappy-compressed, the
// teacher's compressRecord's "skip if it doesn't shrink" convention), and
// a 4-byte count of the bytes actually stored in the overflow chain
// (equal to the uncompressed remainder's length unless compression won).
const overflowHeaderSize = 12

// docLenCompressedFlag marks, in the high bit of the stored document
// length, that the portion spilled into Extend pages is snappy-compressed.
const docLenCompressedFlag = uint32(1) << 31

// Collection is one named document collection: a chain of storage.Data
// pages (one document per page, continuing into storage.Extend pages for
// documents too large for a single page) plus the secondary indexes
// declared on it.
type Collection struct {
	name    string
	indexes *index.Manager
}

// New wraps a named collection. Indexes are shared across every
// Collection instance via the supplied Manager, keyed by (name, field).
func New(name string, indexes *index.Manager) *Collection {
	return &Collection{name: name, indexes: indexes}
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// ScanResult pairs a live document with its storage address.
type ScanResult struct {
	Addr index.Address
	Doc  *bson.Document
}

// Insert assigns an _id if absent, serializes the document, allocates
// enough data page(s) for it, appends it to the collection's page chain,
// and maintains every declared index.
func (c *Collection) Insert(snap *storage.Snapshot, doc *bson.Document) (index.Address, error) {
	if _, ok := doc.Get("_id"); !ok {
		doc.Set("_id", bson.ObjectIDValue(bson.NewObjectID()))
	}

	addr, err := c.writeNewDocument(snap, doc)
	if err != nil {
		return index.Address{}, err
	}
	if err := c.addToIndexes(doc, addr); err != nil {
		return index.Address{}, err
	}
	return addr, nil
}

// Update re-evaluates every index key, removing stale entries and
// inserting new ones, and rewrites the document in place if it still fits
// in its current page chain, relocating otherwise.
func (c *Collection) Update(snap *storage.Snapshot, addr index.Address, doc *bson.Document) (index.Address, error) {
	oldDoc, err := c.Get(snap, addr)
	if err != nil {
		return index.Address{}, err
	}

	encoded, err := doc.Encode()
	if err != nil {
		return index.Address{}, err
	}

	newAddr := addr
	if c.fitsInPlace(snap, addr, len(encoded)) {
		if err := c.rewriteInPlace(snap, addr, encoded); err != nil {
			return index.Address{}, err
		}
	} else {
		if err := c.markDeleted(snap, addr); err != nil {
			return index.Address{}, err
		}
		newAddr, err = c.writeNewDocument(snap, doc)
		if err != nil {
			return index.Address{}, err
		}
	}

	c.removeFromIndexes(oldDoc, addr)
	if err := c.addToIndexes(doc, newAddr); err != nil {
		// Best-effort restore: the storage write this error accompanies
		// is about to be rolled back by the caller, so the index catalog
		// shouldn't be left missing the document's prior entries either.
		c.addToIndexes(oldDoc, addr)
		return index.Address{}, err
	}
	return newAddr, nil
}

// Delete removes every index entry for the document at addr, then frees
// its data block(s). Freed pages are not physically
// reclaimed, matching the pager's policy of never reusing abandoned pages
// (storage/snapshot.go's Rollback comment).
func (c *Collection) Delete(snap *storage.Snapshot, addr index.Address) error {
	doc, err := c.Get(snap, addr)
	if err != nil {
		return err
	}
	c.removeFromIndexes(doc, addr)
	if err := c.markDeleted(snap, addr); err != nil {
		c.addToIndexes(doc, addr)
		return err
	}
	return nil
}

// Get resolves a document at addr, following any overflow chain.
func (c *Collection) Get(snap *storage.Snapshot, addr index.Address) (*bson.Document, error) {
	page, err := snap.GetPage(storage.PageID(addr.PageID))
	if err != nil {
		return nil, err
	}
	if page.Type() != storage.PageTypeData {
		return nil, fmt.Errorf("collection: %w", dberr.ErrDatabaseCorrupted)
	}
	encoded, err := c.gatherBytes(snap, page)
	if err != nil {
		return nil, err
	}
	return bson.Decode(encoded)
}

// Scan walks every live document in the collection's page chain, in
// physical (insertion) order.
func (c *Collection) Scan(snap *storage.Snapshot) ([]ScanResult, error) {
	meta := snap.GetCollection(c.name)
	if meta == nil {
		return nil, dberr.ErrCollectionNotFound
	}
	var out []ScanResult
	id := meta.FirstPageID
	for id != 0 {
		page, err := snap.GetPage(id)
		if err != nil {
			return nil, err
		}
		if page.Type() == storage.PageTypeData {
			encoded, err := c.gatherBytes(snap, page)
			if err != nil {
				return nil, err
			}
			doc, err := bson.Decode(encoded)
			if err != nil {
				return nil, err
			}
			out = append(out, ScanResult{Addr: index.Address{PageID: uint32(id)}, Doc: doc})
		}
		next := page.NextPageID()
		if next == id {
			break
		}
		id = next
		if id == 0 {
			break
		}
	}
	return out, nil
}

// EnsureIndex builds an index's contents by a full scan within the
// current transaction.
func (c *Collection) EnsureIndex(snap *storage.Snapshot, def index.Def, collation bson.Collation) (*index.Entry, error) {
	var entry *index.Entry
	var err error
	switch def.Kind {
	case index.KindScalar:
		entry, err = c.indexes.CreateScalarIndex(c.name, def.Field, collation, def.Unique)
	case index.KindVector:
		entry, err = c.indexes.CreateVectorIndex(c.name, def.Field, def.Vector)
	case index.KindSpatial:
		entry, err = c.indexes.CreateSpatialIndex(c.name, def.Field)
	}
	if err != nil {
		return nil, err
	}

	results, err := c.Scan(snap)
	if err != nil {
		if errors.Is(err, dberr.ErrCollectionNotFound) {
			return entry, nil
		}
		return nil, err
	}
	for _, r := range results {
		if err := addEntryForDoc(entry, def.Field, r.Doc, r.Addr); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// ---------- index maintenance ----------

// addToIndexes adds doc's entry to every index declared on the
// collection, stopping at and returning the first failure (e.g. a
// Unique-index collision). Entries already added for earlier indexes in
// the same call are unwound first, so a rejected insert doesn't leave
// the catalog partially indexing a document the caller is about to roll
// back out of storage.
func (c *Collection) addToIndexes(doc *bson.Document, addr index.Address) error {
	entries := c.indexes.ForCollection(c.name)
	for i, e := range entries {
		if err := addEntryForDoc(e, e.Def.Field, doc, addr); err != nil {
			for _, done := range entries[:i] {
				removeEntryForDoc(done, done.Def.Field, doc, addr)
			}
			return err
		}
	}
	return nil
}

func (c *Collection) removeFromIndexes(doc *bson.Document, addr index.Address) {
	for _, e := range c.indexes.ForCollection(c.name) {
		removeEntryForDoc(e, e.Def.Field, doc, addr)
	}
}

func addEntryForDoc(e *index.Entry, field string, doc *bson.Document, addr index.Address) error {
	path := strings.Split(field, ".")
	val, ok := doc.GetPath(path)
	if !ok {
		return nil
	}
	switch e.Def.Kind {
	case index.KindScalar:
		return e.Scalar.Insert(val, addr)
	case index.KindVector:
		if val.T != bson.TypeVector {
			return nil
		}
		return e.Vector.Insert(addr, val.Vec)
	case index.KindSpatial:
		point, ok := pointFromValue(val)
		if !ok {
			return nil
		}
		e.Point.Insert(point, addr)
		e.Shape.Insert(addr, index.BoundingBox{MinLat: point.Lat, MaxLat: point.Lat, MinLon: point.Lon, MaxLon: point.Lon})
	}
	return nil
}

func removeEntryForDoc(e *index.Entry, field string, doc *bson.Document, addr index.Address) {
	path := strings.Split(field, ".")
	val, ok := doc.GetPath(path)
	if !ok {
		return
	}
	switch e.Def.Kind {
	case index.KindScalar:
		e.Scalar.Delete(val, addr)
	case index.KindVector:
		e.Vector.Remove(addr)
	case index.KindSpatial:
		e.Point.Remove(addr)
		e.Shape.Remove(addr)
	}
}

// pointFromValue reads a {lat, lon} sub-document into a spatial Point,
// the BSON shape a spatially-indexed field is expected to carry.
func pointFromValue(v bson.Value) (index.Point, bool) {
	if v.T != bson.TypeDocument || v.Doc == nil {
		return index.Point{}, false
	}
	lat, ok1 := v.Doc.Get("lat")
	lon, ok2 := v.Doc.Get("lon")
	if !ok1 || !ok2 {
		return index.Point{}, false
	}
	return index.Point{Lat: lat.AsFloat64(), Lon: lon.AsFloat64()}, true
}

// ---------- physical page I/O ----------

// writeNewDocument allocates one primary data page (plus overflow pages
// if needed) and appends it to the collection's chain, implicitly
// creating the collection on its first document (LiteDB's usual
// get-or-create-on-insert behavior).
func (c *Collection) writeNewDocument(snap *storage.Snapshot, doc *bson.Document) (index.Address, error) {
	encoded, err := doc.Encode()
	if err != nil {
		return index.Address{}, err
	}

	page, err := snap.NewPage(storage.PageTypeData)
	if err != nil {
		return index.Address{}, err
	}

	meta := snap.GetCollection(c.name)
	var existingTail storage.PageID
	if meta == nil || meta.FirstPageID == 0 {
		snap.CreateCollection(c.name, page.PageID())
		page.SetColID(uint32(page.PageID()))
	} else {
		page.SetColID(uint32(meta.FirstPageID))
		existingTail, err = c.tailPageID(snap, meta.FirstPageID)
		if err != nil {
			return index.Address{}, err
		}
	}

	if err := c.writeBytes(snap, page, encoded); err != nil {
		return index.Address{}, err
	}

	if existingTail != 0 {
		tailPage, err := snap.MutatePage(existingTail)
		if err != nil {
			return index.Address{}, err
		}
		tailPage.SetNextPageID(page.PageID())
		page.SetPrevPageID(existingTail)
	}
	return index.Address{PageID: uint32(page.PageID())}, nil
}

func (c *Collection) tailPageID(snap *storage.Snapshot, first storage.PageID) (storage.PageID, error) {
	id := first
	for {
		page, err := snap.GetPage(id)
		if err != nil {
			return 0, err
		}
		next := page.NextPageID()
		if next == 0 || next == id {
			return id, nil
		}
		id = next
	}
}

// writeBytes stores encoded into page, spilling into a chain of Extend
// pages when it doesn't fit in one page's payload. The spilled portion is
// snappy-compressed first when that actually shrinks it, mirroring the
// teacher's compressRecord: try compression, keep the original on no gain.
func (c *Collection) writeBytes(snap *storage.Snapshot, page *storage.Page, encoded []byte) error {
	payload := page.Payload()
	primaryCap := len(payload) - overflowHeaderSize
	binary.LittleEndian.PutUint32(payload[0:4], 0)

	if len(encoded) <= primaryCap {
		binary.LittleEndian.PutUint32(payload[4:8], uint32(len(encoded)))
		binary.LittleEndian.PutUint32(payload[8:12], 0)
		copy(payload[overflowHeaderSize:], encoded)
		return nil
	}

	copy(payload[overflowHeaderSize:], encoded[:primaryCap])
	rest := encoded[primaryCap:]

	docLenField := uint32(len(encoded))
	stored := rest
	if compressed := snappy.Encode(nil, rest); len(compressed) < len(rest) {
		stored = compressed
		docLenField |= docLenCompressedFlag
	}
	binary.LittleEndian.PutUint32(payload[4:8], docLenField)
	binary.LittleEndian.PutUint32(payload[8:12], uint32(len(stored)))

	firstOverflow, err := c.writeOverflowChain(snap, stored)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(payload[0:4], uint32(firstOverflow))
	return nil
}

// writeOverflowChain stores rest across one or more Extend pages, each
// using its entire payload for continuation bytes and NextPageID (0 =
// none) to chain further.
func (c *Collection) writeOverflowChain(snap *storage.Snapshot, rest []byte) (storage.PageID, error) {
	var firstID storage.PageID
	var prevPage *storage.Page

	for len(rest) > 0 {
		page, err := snap.NewPage(storage.PageTypeExtend)
		if err != nil {
			return 0, err
		}
		if firstID == 0 {
			firstID = page.PageID()
		}
		if prevPage != nil {
			prevPage.SetNextPageID(page.PageID())
		}
		chunk := rest
		if len(chunk) > len(page.Payload()) {
			chunk = rest[:len(page.Payload())]
		}
		copy(page.Payload(), chunk)
		rest = rest[len(chunk):]
		prevPage = page
	}
	return firstID, nil
}

// gatherBytes reconstructs a document's encoded bytes from its primary
// page and any overflow chain, snappy-decompressing the overflow portion
// when writeBytes flagged it as compressed.
func (c *Collection) gatherBytes(snap *storage.Snapshot, page *storage.Page) ([]byte, error) {
	payload := page.Payload()
	overflow := storage.PageID(binary.LittleEndian.Uint32(payload[0:4]))
	docLenField := binary.LittleEndian.Uint32(payload[4:8])
	compressed := docLenField&docLenCompressedFlag != 0
	docLen := int(docLenField &^ docLenCompressedFlag)
	storedLen := int(binary.LittleEndian.Uint32(payload[8:12]))
	primaryCap := len(payload) - overflowHeaderSize

	n := docLen
	if n > primaryCap {
		n = primaryCap
	}
	out := make([]byte, 0, docLen)
	out = append(out, payload[overflowHeaderSize:overflowHeaderSize+n]...)

	if docLen <= primaryCap {
		return out, nil
	}

	stored := make([]byte, 0, storedLen)
	remaining := storedLen
	id := overflow
	for remaining > 0 && id != 0 {
		ext, err := snap.GetPage(id)
		if err != nil {
			return nil, err
		}
		chunk := ext.Payload()
		take := remaining
		if take > len(chunk) {
			take = len(chunk)
		}
		stored = append(stored, chunk[:take]...)
		remaining -= take
		id = ext.NextPageID()
	}

	if compressed {
		decoded, err := snappy.Decode(nil, stored)
		if err != nil {
			return nil, fmt.Errorf("collection: decompressing overflow bytes: %w", err)
		}
		stored = decoded
	}
	return append(out, stored...), nil
}

// fitsInPlace reports whether a re-encoded document still fits within its
// existing primary-page-plus-overflow-chain capacity without reallocating
// extend pages — true only when the new length doesn't exceed a single
// primary page, keeping the in-place path simple (oversized updates always
// relocate, see Update).
func (c *Collection) fitsInPlace(snap *storage.Snapshot, addr index.Address, newLen int) bool {
	page, err := snap.GetPage(storage.PageID(addr.PageID))
	if err != nil {
		return false
	}
	primaryCap := len(page.Payload()) - overflowHeaderSize
	overflow := binary.LittleEndian.Uint32(page.Payload()[0:4])
	return newLen <= primaryCap && overflow == 0
}

func (c *Collection) rewriteInPlace(snap *storage.Snapshot, addr index.Address, encoded []byte) error {
	page, err := snap.MutatePage(storage.PageID(addr.PageID))
	if err != nil {
		return err
	}
	payload := page.Payload()
	for i := overflowHeaderSize; i < len(payload); i++ {
		payload[i] = 0
	}
	binary.LittleEndian.PutUint32(payload[4:8], uint32(len(encoded)))
	binary.LittleEndian.PutUint32(payload[8:12], 0)
	copy(payload[overflowHeaderSize:], encoded)
	return nil
}

func (c *Collection) markDeleted(snap *storage.Snapshot, addr index.Address) error {
	page, err := snap.MutatePage(storage.PageID(addr.PageID))
	if err != nil {
		return err
	}
	page.SetType(storage.PageTypeEmpty)
	return nil
}
