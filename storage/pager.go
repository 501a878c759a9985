package storage

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/litedb/litedb/dberr"
)

func fillRandom(b []byte) (int, error) { return rand.Read(b) }

// headerPageID is the fixed location of the database header: salt,
// collection directory, total page count.
const headerPageID PageID = 0

// CurrentVersion is the file layout version every database created by
// this engine is stamped with. A lower value read back from an existing
// file's header marks it as a legacy database the txn package's upgrade
// path can rewrite.
const CurrentVersion byte = 5

// CollectionMeta records a collection's first data page, the header
// directory entry the pager persists on every structural change.
type CollectionMeta struct {
	Name        string
	FirstPageID PageID
}

// Pager is the disk service's front door: it owns the Disk (data+log
// streams), the WAL index and the page cache, and hands out per-transaction
// Snapshots that resolve (PageID, TransactionID) to a concrete page.
//
// Bundles a single data file, its own WAL and an LRU cache behind one
// RWMutex, generalized to a separate data/log stream pair and to a BSON
// collection directory instead of SQL table metadata.
type Pager struct {
	mu       sync.RWMutex
	disk     *Disk
	wal      *WAL
	cache    *pageCache
	lock     *fileLock
	readOnly bool

	totalPages  PageID
	collections map[string]*CollectionMeta
	salt        [16]byte
	version     byte

	nextTxID uint64
}

// OpenPager opens or creates a database file pair (path for the data file,
// path+".log" for the log file), taking the OS-level exclusive lock used by
// direct (non-shared) connections.
func OpenPager(path, password string, readOnly bool) (*Pager, error) {
	var lock *fileLock
	if !readOnly {
		var err error
		lock, err = lockFile(path)
		if err != nil {
			return nil, err
		}
	}

	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	dataFile, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if lock != nil {
			lock.unlock()
		}
		return nil, fmt.Errorf("storage: open data file: %w", err)
	}
	logFile, err := os.OpenFile(path+".log", flags|os.O_CREATE, 0644)
	if err != nil {
		dataFile.Close()
		if lock != nil {
			lock.unlock()
		}
		return nil, fmt.Errorf("storage: open log file: %w", err)
	}

	p, err := newPager(dataFile, logFile, password, readOnly)
	if err != nil {
		dataFile.Close()
		logFile.Close()
		if lock != nil {
			lock.unlock()
		}
		return nil, err
	}
	p.lock = lock
	return p, nil
}

// OpenPagerMemory opens an entirely in-memory database: no OS lock, no
// encryption, and a log stream that is checkpointed away on Close.
func OpenPagerMemory() (*Pager, error) {
	return newPager(NewMemFile(), NewMemFile(), "", false)
}

func newPager(dataFile, logFile StorageFile, password string, readOnly bool) (*Pager, error) {
	p := &Pager{
		cache:       newPageCache(1024),
		collections: make(map[string]*CollectionMeta),
		readOnly:    readOnly,
	}

	info, err := dataFile.Stat()
	if err != nil {
		return nil, err
	}

	if info.Size() == 0 {
		if readOnly {
			return nil, fmt.Errorf("storage: cannot create database in read-only mode")
		}
		if _, err := fillRandom(p.salt[:]); err != nil {
			return nil, err
		}
	}

	disk, err := OpenDisk(dataFile, logFile, password, p.salt)
	if err != nil {
		return nil, err
	}
	p.disk = disk

	if info.Size() == 0 {
		p.totalPages = 1
		p.version = CurrentVersion
		if err := p.flushHeaderUnlocked(); err != nil {
			return nil, err
		}
	} else {
		if err := p.loadHeaderUnlocked(); err != nil {
			return nil, err
		}
		// Reopen disk now the real salt is known, so encrypted pages decode.
		disk, err = OpenDisk(dataFile, logFile, password, p.salt)
		if err != nil {
			return nil, err
		}
		p.disk = disk
	}

	wal, err := OpenWAL(p.disk)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	p.wal = wal

	if !readOnly {
		if err := p.Checkpoint(); err != nil {
			return nil, fmt.Errorf("storage: recovery checkpoint: %w", err)
		}
	}
	return p, nil
}

// IsReadOnly reports whether writes are rejected.
func (p *Pager) IsReadOnly() bool { return p.readOnly }

// Version reports the file layout version stamped in the header, read at
// open time.
func (p *Pager) Version() byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// Close flushes the header, checkpoints the log, and releases the OS lock.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.readOnly {
		if err := p.flushHeaderUnlocked(); err != nil {
			return err
		}
	}
	var checkpointErr error
	if !p.readOnly {
		checkpointErr = p.wal.Checkpoint()
	}
	closeErr := p.disk.Close()
	if p.lock != nil {
		p.lock.unlock()
	}
	if checkpointErr != nil {
		return checkpointErr
	}
	return closeErr
}

// Checkpoint moves confirmed log pages into the data file.
func (p *Pager) Checkpoint() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.wal.Checkpoint(); err != nil {
		return err
	}
	size, err := p.disk.DataFileSize()
	if err != nil {
		return err
	}
	if size > p.totalPages {
		p.totalPages = size
	}
	return p.loadHeaderUnlocked()
}

// LogSize reports the WAL's current size in pages, used by the checkpoint
// threshold pragma.
func (p *Pager) LogSize() (PageID, error) {
	return p.wal.Size()
}

// CacheStats exposes the page cache's hit/miss counters.
func (p *Pager) CacheStats() (hits, misses uint64, size, capacity int) {
	return p.cache.Stats()
}

// ClearCache drops every cached page, used by the NO_CACHE hint.
func (p *Pager) ClearCache() { p.cache.clear() }

// BeginTx allocates a fresh transaction id and a Snapshot over the pager's
// current state. startLSN is the WAL position visible at snapshot creation,
// the boundary a reader's page lookups won't see past.
func (p *Pager) BeginTx(writable bool) *Snapshot {
	txID := atomic.AddUint64(&p.nextTxID, 1)
	p.mu.RLock()
	startLSN := p.wal.NextLSN()
	p.mu.RUnlock()
	return &Snapshot{
		pager:    p,
		txID:     txID,
		startLSN: startLSN,
		writable: writable,
		cache:    make(map[PageID]*Page),
		dirty:    make(map[PageID]*Page),
	}
}

func (p *Pager) readDataPage(id PageID) (*Page, error) {
	if data, ok := p.cache.get(id); ok {
		pg := &Page{Data: data}
		return pg, nil
	}
	pg, err := p.disk.ReadDataPage(id)
	if err != nil {
		return nil, err
	}
	p.cache.put(id, pg.Data)
	return pg, nil
}

// allocatePage reserves the next PageID. Visible only to a writable
// Snapshot, which tracks the new page as dirty until commit.
func (p *Pager) allocatePage(t PageType) *Page {
	p.mu.Lock()
	id := p.totalPages
	p.totalPages++
	p.mu.Unlock()
	return NewPage(t, id)
}

// commitSnapshot appends every dirty page as one WAL group, applies the
// snapshot's staged collection directory changes (if any) to the live
// directory, and invalidates cached pages so later readers see the new
// version. Directory changes are applied here rather than when
// CreateCollection/DropCollection were called, so a snapshot that never
// reaches Commit never touches the shared directory at all.
func (p *Pager) commitSnapshot(s *Snapshot) error {
	if p.readOnly {
		return dberr.ErrReadOnlyDatabase
	}
	if len(s.dirty) == 0 && !s.collectionsChanged {
		return nil
	}
	pages := make([]*Page, 0, len(s.dirty))
	for _, pg := range s.dirty {
		pages = append(pages, pg)
	}
	p.mu.Lock()
	_, err := p.wal.AppendGroup(pages, s.txID)
	if err == nil {
		for _, pg := range pages {
			p.cache.invalidate(pg.PageID())
		}
		if s.collectionsChanged {
			p.applyCollectionChangesLocked(s)
			err = p.flushHeaderUnlocked()
		}
	}
	p.mu.Unlock()
	return err
}

// ---------- Collection directory ----------

// GetCollection returns a collection's metadata, or nil if it doesn't exist.
func (p *Pager) GetCollection(name string) *CollectionMeta {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.collections[name]
}

// ListCollections returns every known collection name.
func (p *Pager) ListCollections() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.collections))
	for name := range p.collections {
		names = append(names, name)
	}
	return names
}

// applyCollectionChangesLocked merges a committed snapshot's staged
// collection directory creates/drops into the live directory. Called from
// commitSnapshot with p.mu already held, so it must not lock it itself.
func (p *Pager) applyCollectionChangesLocked(s *Snapshot) {
	for name, firstPageID := range s.createdCollections {
		p.collections[name] = &CollectionMeta{Name: name, FirstPageID: firstPageID}
	}
	for name := range s.droppedCollections {
		delete(p.collections, name)
	}
}

// ---------- Header page (page 0) ----------
//
// Layout, following PageHeaderSize bytes:
//
//	[0:16]  salt
//	[16]    version byte
//	[17:21] totalPages  uint32
//	[21:23] numCollections uint16
//	repeated: [nameLen:2][name][firstPageID:4]

func (p *Pager) flushHeaderUnlocked() error {
	page := NewPage(PageTypeHeader, headerPageID)
	off := PageHeaderSize
	copy(page.Data[off:], p.salt[:])
	off += 16
	page.Data[off] = p.version
	off++
	binary.LittleEndian.PutUint32(page.Data[off:], uint32(p.totalPages))
	off += 4
	binary.LittleEndian.PutUint16(page.Data[off:], uint16(len(p.collections)))
	off += 2
	for _, c := range p.collections {
		name := []byte(c.Name)
		binary.LittleEndian.PutUint16(page.Data[off:], uint16(len(name)))
		off += 2
		copy(page.Data[off:], name)
		off += len(name)
		binary.LittleEndian.PutUint32(page.Data[off:], uint32(c.FirstPageID))
		off += 4
	}
	return p.disk.WriteDataPage(page)
}

func (p *Pager) loadHeaderUnlocked() error {
	page, err := p.disk.ReadDataPage(headerPageID)
	if err != nil {
		return fmt.Errorf("storage: read header page: %w", err)
	}
	if page.Type() != PageTypeHeader {
		return fmt.Errorf("storage: page 0: %w", dberr.ErrDatabaseCorrupted)
	}
	off := PageHeaderSize
	copy(p.salt[:], page.Data[off:off+16])
	off += 16
	p.version = page.Data[off]
	off++
	p.totalPages = PageID(binary.LittleEndian.Uint32(page.Data[off:]))
	off += 4
	numColl := binary.LittleEndian.Uint16(page.Data[off:])
	off += 2

	p.collections = make(map[string]*CollectionMeta, numColl)
	for i := 0; i < int(numColl); i++ {
		nameLen := binary.LittleEndian.Uint16(page.Data[off:])
		off += 2
		name := string(page.Data[off : off+int(nameLen)])
		off += int(nameLen)
		firstPage := PageID(binary.LittleEndian.Uint32(page.Data[off:]))
		off += 4
		p.collections[name] = &CollectionMeta{Name: name, FirstPageID: firstPage}
	}
	return nil
}
