package storage

import "github.com/litedb/litedb/dberr"

// Snapshot is a transaction-scoped view over the Pager: a read-consistent
// page cache as of the transaction's start LSN, plus (when writable) the
// set of pages it has dirtied.
type Snapshot struct {
	pager    *Pager
	txID     uint64
	startLSN int64
	writable bool

	cache map[PageID]*Page // pages already resolved this transaction
	dirty map[PageID]*Page // pages mutated this transaction, pending commit

	collectionsChanged bool
	createdCollections map[string]PageID // staged, applied to the Pager only on Commit
	droppedCollections map[string]bool   // staged, applied to the Pager only on Commit
}

// TxID returns the snapshot's transaction id, used to tag WAL entries and
// as the write-lock key in the transaction manager.
func (s *Snapshot) TxID() uint64 { return s.txID }

// StartLSN returns the log position visible at the time this snapshot was
// created.
func (s *Snapshot) StartLSN() int64 { return s.startLSN }

// Writable reports whether this snapshot may allocate pages and commit.
func (s *Snapshot) Writable() bool { return s.writable }

// GetPage resolves a page through the three-step lookup of:
// transaction-local cache, then the WAL (own writes or a committed version
// at or before this snapshot's start LSN), then the data file.
func (s *Snapshot) GetPage(id PageID) (*Page, error) {
	if pg, ok := s.cache[id]; ok {
		return pg, nil
	}
	if pg, ok := s.pager.wal.Lookup(id, s.txID, s.startLSN); ok {
		s.cache[id] = pg
		return pg, nil
	}
	pg, err := s.pager.readDataPage(id)
	if err != nil {
		return nil, err
	}
	s.cache[id] = pg
	return pg, nil
}

// MutatePage returns a writable clone of a page, registering it as dirty.
// Per "clone on first mutation": later calls in the same
// transaction return the same dirtied instance.
func (s *Snapshot) MutatePage(id PageID) (*Page, error) {
	if !s.writable {
		return nil, dberr.ErrReadOnlyDatabase
	}
	if pg, ok := s.dirty[id]; ok {
		return pg, nil
	}
	pg, err := s.GetPage(id)
	if err != nil {
		return nil, err
	}
	clone := pg.Clone()
	s.cache[id] = clone
	s.dirty[id] = clone
	return clone, nil
}

// NewPage allocates a fresh page and registers it as dirty.
func (s *Snapshot) NewPage(t PageType) (*Page, error) {
	if !s.writable {
		return nil, dberr.ErrReadOnlyDatabase
	}
	pg := s.pager.allocatePage(t)
	s.cache[pg.PageID()] = pg
	s.dirty[pg.PageID()] = pg
	return pg, nil
}

// CreateCollection stages a new collection rooted at the given first
// page. Staged rather than applied to the Pager directly, so a snapshot
// that's later rolled back never leaves a dangling directory entry
// pointing at a page nobody committed; Commit applies it to the Pager's
// live directory and marks the header dirty for that commit.
func (s *Snapshot) CreateCollection(name string, firstPageID PageID) {
	if s.createdCollections == nil {
		s.createdCollections = make(map[string]PageID)
	}
	s.createdCollections[name] = firstPageID
	delete(s.droppedCollections, name)
	s.collectionsChanged = true
}

// DropCollection stages removing a collection from the directory,
// applied to the Pager only on Commit (see CreateCollection).
func (s *Snapshot) DropCollection(name string) {
	if s.droppedCollections == nil {
		s.droppedCollections = make(map[string]bool)
	}
	s.droppedCollections[name] = true
	delete(s.createdCollections, name)
	s.collectionsChanged = true
}

// GetCollection resolves a collection's metadata, checking this
// transaction's own staged creates/drops first so a collection created
// or dropped earlier in the same uncommitted transaction is visible to
// it before any other snapshot can see it.
func (s *Snapshot) GetCollection(name string) *CollectionMeta {
	if s.droppedCollections[name] {
		return nil
	}
	if firstPageID, ok := s.createdCollections[name]; ok {
		return &CollectionMeta{Name: name, FirstPageID: firstPageID}
	}
	return s.pager.GetCollection(name)
}

// Commit appends every dirty page to the WAL as one confirmed group,
// making the transaction's writes durable and visible to later snapshots.
func (s *Snapshot) Commit() error {
	return s.pager.commitSnapshot(s)
}

// Rollback discards the snapshot's dirty pages and staged collection
// directory changes without touching the log or the Pager's live
// directory. Allocated page ids are not reclaimed; pages freed by a
// commit are merely marked empty, never physically reused.
func (s *Snapshot) Rollback() {
	s.dirty = nil
	s.cache = nil
	s.createdCollections = nil
	s.droppedCollections = nil
	s.collectionsChanged = false
}
