package api

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/collection"
	"github.com/litedb/litedb/dberr"
	"github.com/litedb/litedb/index"
	"github.com/litedb/litedb/storage"
	"github.com/litedb/litedb/txn"
)

// Database is one open engine instance: a transaction manager serializing
// writers over a single Pager, the index catalog every collection shares,
// and (for connection=shared) the cross-process named mutex.
type Database struct {
	mgr     *txn.Manager
	indexes *index.Manager
	mutex   *storage.SharedMutex

	mu          sync.Mutex
	collections map[string]*Collection
}

// OpenDatabase parses connString and opens (or creates) the file it names,
// applying the v4-to-v5 upgrade first when the header requests it and
// upgrade=true is set. An empty connection string opens an in-memory
// database, as OpenDatabaseMemory does; a non-empty one with no
// "filename" is rejected with InvalidConnectionString.
func OpenDatabase(connString string) (*Database, error) {
	cs, err := ParseConnectionString(connString)
	if err != nil {
		return nil, err
	}
	if cs.Filename == "" {
		return OpenDatabaseMemory()
	}
	return openWithConnectionString(cs)
}

// OpenDatabaseReadOnly opens path rejecting every write.
func OpenDatabaseReadOnly(path string) (*Database, error) {
	return openWithConnectionString(ConnectionString{
		Filename:  path,
		ReadOnly:  true,
		Collation: bson.Binary,
		Timeout:   60 * time.Second,
	})
}

// OpenDatabaseMemory opens a throwaway, non-persistent database backed by
// an in-memory page store -- no file, no OS lock, no shared mode.
func OpenDatabaseMemory() (*Database, error) {
	pager, err := storage.OpenPagerMemory()
	if err != nil {
		return nil, err
	}
	return newDatabase(pager, nil), nil
}

func openWithConnectionString(cs ConnectionString) (*Database, error) {
	var mutex *storage.SharedMutex
	if cs.Connection == ConnectionShared {
		m, err := storage.AcquireSharedMutex(cs.Filename, !cs.ReadOnly)
		if err != nil {
			return nil, err
		}
		mutex = m
	}

	pager, err := openUpgradingIfNeeded(cs)
	if err != nil {
		mutex.Release()
		return nil, err
	}

	db := newDatabase(pager, mutex)
	if err := db.mgr.SetPragma("COLLATION", bson.String(cs.Collation.Locale)); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.mgr.SetPragma("TIMEOUT", bson.Int32(int32(cs.Timeout.Seconds()))); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openUpgradingIfNeeded opens cs.Filename, running the legacy-layout
// rewrite first when the header is stale and the caller asked for it.
func openUpgradingIfNeeded(cs ConnectionString) (*storage.Pager, error) {
	probe, err := storage.OpenPager(cs.Filename, cs.Password, true)
	if err == nil {
		stale := probe.Version() < storage.CurrentVersion
		probe.Close()
		if stale {
			if !cs.Upgrade {
				return nil, dberr.ErrUpgradeRequired
			}
			if err := txn.UpgradeV4(cs.Filename, cs.Password); err != nil {
				return nil, err
			}
		}
	}
	return storage.OpenPager(cs.Filename, cs.Password, cs.ReadOnly)
}

func newDatabase(pager *storage.Pager, mutex *storage.SharedMutex) *Database {
	return &Database{
		mgr:         txn.NewManager(pager),
		indexes:     index.NewManager(),
		mutex:       mutex,
		collections: make(map[string]*Collection),
	}
}

// GetCollection returns the named collection's handle, creating the
// wrapper (and its implicit unique _id index) on first reference. The
// underlying page chain itself is created lazily on the first Insert,
// matching the pager's get-or-create-on-insert behavior.
func (db *Database) GetCollection(name string) (*Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if c, ok := db.collections[name]; ok {
		return c, nil
	}

	col := collection.New(name, db.indexes)
	c := &Collection{db: db, col: col}
	if err := c.ensureIDIndex(); err != nil {
		return nil, err
	}
	db.collections[name] = c
	return c, nil
}

// Pragma reads a named pragma's current value.
func (db *Database) Pragma(name string) (bson.Value, bool) { return db.mgr.Pragma(name) }

// SetPragma updates a named pragma.
func (db *Database) SetPragma(name string, value bson.Value) error {
	return db.mgr.SetPragma(name, value)
}

// SetLogger attaches a structured diagnostic logger for checkpoint and
// lock-wait events. Unset by default, in which case the database stays
// silent; passing nil turns logging back off.
func (db *Database) SetLogger(logger *zerolog.Logger) {
	db.mgr.SetLogger(logger)
}

// Close flushes and releases the underlying pager, and the shared mutex if
// one was acquired at open.
func (db *Database) Close() error {
	err := db.mgr.Pager().Close()
	if releaseErr := db.mutex.Release(); releaseErr != nil && err == nil {
		err = releaseErr
	}
	return err
}

func validateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("api: empty collection name: %w", dberr.ErrInvalidCollectionName)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("api: collection name %q: %w", name, dberr.ErrInvalidNullCharInString)
	}
	return nil
}
