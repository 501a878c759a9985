// Package txn is the transaction manager: one writer at a time, unlimited
// readers on their own snapshot, pragma storage, checkpoint-on-commit
// thresholds, and the legacy-file upgrade path.
//
// The write lock is a single buffered channel holding one token — take it
// to become the writer, put it back to release — which gives the same
// acquire-with-timeout shape as a per-record lock manager (a goroutine
// racing the acquisition against time.After in a select) but scoped to
// the whole database instead of one record, since only one write
// transaction may be open at a time.
package txn

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/collection"
	"github.com/litedb/litedb/dberr"
	"github.com/litedb/litedb/index"
	"github.com/litedb/litedb/storage"
)

// defaultTimeout is the TIMEOUT pragma's default: how long a writer waits
// for the write lock before giving up.
const defaultTimeout = 60 * time.Second

// Pragmas holds the engine's tunable settings.
type Pragmas struct {
	UserVersion     int32
	Collation       bson.Collation
	Timeout         time.Duration
	UTCDate         bool
	CheckpointPages int   // 0 disables the automatic checkpoint-on-commit
	LimitSize       int64 // 0 means unbounded
}

func defaultPragmas() Pragmas {
	return Pragmas{
		Collation: bson.Binary,
		Timeout:   defaultTimeout,
	}
}

// Manager serializes writers over one Pager and tracks its pragmas.
type Manager struct {
	pager    *storage.Pager
	writeTok chan struct{}
	logger   *zerolog.Logger // nil means silent; see SetLogger

	mu      sync.RWMutex
	pragmas Pragmas
}

// NewManager wraps a pager with write serialization and default pragmas.
func NewManager(pager *storage.Pager) *Manager {
	m := &Manager{
		pager:    pager,
		writeTok: make(chan struct{}, 1),
		pragmas:  defaultPragmas(),
	}
	m.writeTok <- struct{}{}
	return m
}

// SetLogger attaches a diagnostic logger for checkpoint, lock-wait, and
// upgrade events. A nil logger (the default) leaves the manager silent;
// every log call site checks m.logger first, so this is safe to skip
// entirely for callers that don't want structured diagnostics.
func (m *Manager) SetLogger(logger *zerolog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

func (m *Manager) log() *zerolog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// Pager exposes the underlying pager for components that need direct
// access (e.g. api.Database.Close, or Pager.CacheStats).
func (m *Manager) Pager() *storage.Pager { return m.pager }

// Pragma returns a pragma's current value.
func (m *Manager) Pragma(name string) (bson.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch strings.ToUpper(name) {
	case "USER_VERSION":
		return bson.Int32(m.pragmas.UserVersion), true
	case "COLLATION":
		return bson.String(m.pragmas.Collation.Locale), true
	case "TIMEOUT":
		return bson.Int32(int32(m.pragmas.Timeout / time.Second)), true
	case "UTC_DATE":
		return bson.Boolean(m.pragmas.UTCDate), true
	case "CHECKPOINT":
		return bson.Int32(int32(m.pragmas.CheckpointPages)), true
	case "LIMIT_SIZE":
		return bson.Int64(m.pragmas.LimitSize), true
	default:
		return bson.Value{}, false
	}
}

// SetPragma updates a pragma by name, case-insensitively.
func (m *Manager) SetPragma(name string, value bson.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch strings.ToUpper(name) {
	case "USER_VERSION":
		m.pragmas.UserVersion = int32(value.AsFloat64())
	case "COLLATION":
		m.pragmas.Collation = bson.Collation{Locale: value.Str, Strength: bson.StrengthTertiary}
	case "TIMEOUT":
		m.pragmas.Timeout = time.Duration(value.AsFloat64()) * time.Second
	case "UTC_DATE":
		m.pragmas.UTCDate = value.Bool
	case "CHECKPOINT":
		m.pragmas.CheckpointPages = int(value.AsFloat64())
	case "LIMIT_SIZE":
		m.pragmas.LimitSize = int64(value.AsFloat64())
	default:
		return fmt.Errorf("txn: unknown pragma %q", name)
	}
	return nil
}

func (m *Manager) timeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pragmas.Timeout
}

func (m *Manager) checkpointThreshold() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pragmas.CheckpointPages
}

// acquireWrite takes the write token within the TIMEOUT pragma, or raises
// LockTimeout.
func (m *Manager) acquireWrite() error {
	select {
	case <-m.writeTok:
		return nil
	case <-time.After(m.timeout()):
		if logger := m.log(); logger != nil {
			logger.Warn().Dur("timeout", m.timeout()).Msg("write lock wait timed out")
		}
		return dberr.ErrLockTimeout
	}
}

func (m *Manager) releaseWrite() {
	m.writeTok <- struct{}{}
}

// Transaction wraps a storage.Snapshot with commit/rollback accounting
// and, for writers, the write lock's release.
type Transaction struct {
	mgr      *Manager
	snap     *storage.Snapshot
	writable bool
	done     bool
}

// Snapshot returns the underlying storage snapshot, the handle every
// collection operation needs.
func (t *Transaction) Snapshot() *storage.Snapshot { return t.snap }

// Writable reports whether this transaction may mutate pages.
func (t *Transaction) Writable() bool { return t.writable }

// BeginRead starts a read transaction pinned to the pager's current
// committed state. Readers never block on the write lock.
func (m *Manager) BeginRead() *Transaction {
	return &Transaction{mgr: m, snap: m.pager.BeginTx(false)}
}

// BeginWrite acquires the single write lock (honoring the TIMEOUT pragma)
// and starts a writable transaction. Every BeginWrite must be matched by
// exactly one Commit or Rollback to release the lock. Rejects with
// ReadOnlyDatabase immediately, before taking the lock, when the pager was
// opened read-only.
func (m *Manager) BeginWrite() (*Transaction, error) {
	if m.pager.IsReadOnly() {
		return nil, dberr.ErrReadOnlyDatabase
	}
	if err := m.acquireWrite(); err != nil {
		return nil, err
	}
	return &Transaction{mgr: m, snap: m.pager.BeginTx(true), writable: true}, nil
}

// Commit appends the transaction's dirty pages to the log as one
// confirmed group, making them durable and visible to later snapshots,
// then releases the write lock. If the log has grown past the CHECKPOINT
// pragma's threshold, it also folds the log into the data file before
// returning.
func (t *Transaction) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.writable {
		defer t.mgr.releaseWrite()
	}
	if err := t.snap.Commit(); err != nil {
		return err
	}
	if t.writable {
		if err := t.mgr.checkpointIfDue(); err != nil {
			return err
		}
	}
	return nil
}

// Rollback discards the transaction's dirty pages and releases the write
// lock without touching the log.
func (t *Transaction) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.snap.Rollback()
	if t.writable {
		t.mgr.releaseWrite()
	}
}

func (m *Manager) checkpointIfDue() error {
	threshold := m.checkpointThreshold()
	if threshold <= 0 {
		return nil
	}
	size, err := m.pager.LogSize()
	if err != nil {
		return err
	}
	if int(size) < threshold {
		return nil
	}
	logger := m.log()
	if logger != nil {
		logger.Debug().Int64("log_pages", size).Msg("checkpoint starting")
	}
	err = m.pager.Checkpoint()
	if logger != nil {
		if err != nil {
			logger.Error().Err(err).Msg("checkpoint failed")
		} else {
			logger.Debug().Msg("checkpoint complete")
		}
	}
	return err
}

// UpgradeV4 rewrites a pre-v5 database file into the current layout: read
// every collection's live documents from the old file and reinsert them
// through the normal collection pipeline into a fresh file, checkpoint
// the fresh file, then rename it and its log over the old pair (two
// separate renames, each atomic on its own). Indexes are not carried
// over — this engine doesn't persist index declarations across opens
// (EnsureIndex backfills an index from a scan whenever it's re-declared),
// so there is nothing to read besides the documents themselves. A no-op,
// returning nil, if the file is already current.
func UpgradeV4(path, password string) error {
	old, err := storage.OpenPager(path, password, false)
	if err != nil {
		return err
	}
	if old.Version() >= storage.CurrentVersion {
		return old.Close()
	}

	tmpPath := path + ".upgrade-tmp"
	defer cleanupUpgradeTemp(tmpPath)

	fresh, err := storage.OpenPager(tmpPath, password, false)
	if err != nil {
		old.Close()
		return err
	}

	names := old.ListCollections()
	readTx := old.BeginTx(false)
	writeTx := fresh.BeginTx(true)

	for _, name := range names {
		src := collection.New(name, index.NewManager())
		dst := collection.New(name, index.NewManager())
		docs, err := src.Scan(readTx)
		if err != nil {
			old.Close()
			fresh.Close()
			return fmt.Errorf("txn: upgrade scan %q: %w", name, err)
		}
		for _, d := range docs {
			if _, err := dst.Insert(writeTx, d.Doc); err != nil {
				old.Close()
				fresh.Close()
				return fmt.Errorf("txn: upgrade reinsert into %q: %w", name, err)
			}
		}
	}

	if err := writeTx.Commit(); err != nil {
		old.Close()
		fresh.Close()
		return fmt.Errorf("txn: upgrade commit: %w", err)
	}
	if err := fresh.Checkpoint(); err != nil {
		old.Close()
		fresh.Close()
		return fmt.Errorf("txn: upgrade checkpoint: %w", err)
	}
	if err := old.Close(); err != nil {
		fresh.Close()
		return fmt.Errorf("txn: closing legacy file: %w", err)
	}
	if err := fresh.Close(); err != nil {
		return fmt.Errorf("txn: closing upgraded file: %w", err)
	}

	if err := swapFile(tmpPath, path); err != nil {
		return err
	}
	return swapFile(tmpPath+".log", path+".log")
}

func swapFile(tmpPath, path string) error {
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("txn: swapping upgraded file into place: %w", err)
	}
	return nil
}

func cleanupUpgradeTemp(tmpPath string) {
	os.Remove(tmpPath)
	os.Remove(tmpPath + ".log")
}
