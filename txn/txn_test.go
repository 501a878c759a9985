package txn

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/collection"
	"github.com/litedb/litedb/index"
	"github.com/litedb/litedb/storage"
)

func TestManagerCommitIsVisibleToLaterReaders(t *testing.T) {
	pager, err := storage.OpenPagerMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pager.Close()
	mgr := NewManager(pager)

	wtx, err := mgr.BeginWrite()
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	col := collection.New("jobs", index.NewManager())
	if _, err := col.Insert(wtx.Snapshot(), bson.NewDocument().Set("name", bson.String("backup"))); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rtx := mgr.BeginRead()
	results, err := col.Scan(rtx.Snapshot())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 document after commit, got %d", len(results))
	}
}

func TestManagerSerializesWriters(t *testing.T) {
	pager, err := storage.OpenPagerMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pager.Close()
	mgr := NewManager(pager)

	wtx, err := mgr.BeginWrite()
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}

	done := make(chan error, 1)
	var started sync.WaitGroup
	started.Add(1)
	go func() {
		started.Done()
		_, err := mgr.BeginWrite()
		done <- err
	}()
	started.Wait()
	time.Sleep(20 * time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("expected second writer to block, got %v", err)
	default:
	}

	wtx.Rollback()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected second writer to acquire after rollback, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired the lock after the first released it")
	}
}

func TestManagerWriteLockTimesOut(t *testing.T) {
	pager, err := storage.OpenPagerMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pager.Close()
	mgr := NewManager(pager)
	mgr.SetPragma("TIMEOUT", bson.Int32(0))

	wtx, err := mgr.BeginWrite()
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	defer wtx.Rollback()

	if _, err := mgr.BeginWrite(); err == nil {
		t.Fatal("expected a zero-timeout second writer to fail immediately")
	}
}

func TestManagerPragmaRoundTrip(t *testing.T) {
	pager, err := storage.OpenPagerMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pager.Close()
	mgr := NewManager(pager)

	if err := mgr.SetPragma("user_version", bson.Int32(7)); err != nil {
		t.Fatalf("set pragma: %v", err)
	}
	v, ok := mgr.Pragma("USER_VERSION")
	if !ok || v.I32 != 7 {
		t.Fatalf("expected USER_VERSION 7, got %+v ok=%v", v, ok)
	}

	if err := mgr.SetPragma("bogus", bson.Int32(1)); err == nil {
		t.Fatal("expected unknown pragma to error")
	}
}

func TestManagerCheckpointsOnCommitPastThreshold(t *testing.T) {
	path := tempDBPath(t)
	defer os.Remove(path)
	defer os.Remove(path + ".log")

	pager, err := storage.OpenPager(path, "", false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pager.Close()
	mgr := NewManager(pager)
	mgr.SetPragma("CHECKPOINT", bson.Int32(1))

	col := collection.New("events", index.NewManager())
	wtx, err := mgr.BeginWrite()
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	if _, err := col.Insert(wtx.Snapshot(), bson.NewDocument().Set("n", bson.Int32(1))); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	size, err := pager.LogSize()
	if err != nil {
		t.Fatalf("log size: %v", err)
	}
	if size != 0 {
		t.Errorf("expected log to be checkpointed away, still has %d pages", size)
	}
}

func tempDBPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "litedb_txn_*.db")
	if err != nil {
		t.Fatal(err)
	}
	path := f.Name()
	f.Close()
	os.Remove(path)
	return path
}

// buildLegacyFixture creates a v4-stamped database file by opening a
// fresh one and then hand-poking the version byte in its header page,
// standing in for the real legacy format (no MAUIDB source survived the
// distillation this engine was built from, so there's nothing to
// replicate byte for byte).
func buildLegacyFixture(t *testing.T, path string) {
	t.Helper()
	pager, err := storage.OpenPager(path, "", false)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	col := collection.New("widgets", index.NewManager())
	tx := pager.BeginTx(true)
	for _, n := range []string{"a", "b", "c"} {
		if _, err := col.Insert(tx, bson.NewDocument().Set("name", bson.String(n))); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("seed commit: %v", err)
	}
	if err := pager.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("reopen raw: %v", err)
	}
	defer f.Close()
	// Header layout: PageHeaderSize(34) + 16-byte salt, then the version
	// byte. Every page ends in a CRC32 of the bytes before it, so the
	// checksum is recomputed after the poke.
	page := make([]byte, storage.PageSize)
	if _, err := f.ReadAt(page, 0); err != nil {
		t.Fatalf("read raw header: %v", err)
	}
	page[storage.PageHeaderSize+16] = 4
	crcAt := storage.PageSize - 4
	binary.LittleEndian.PutUint32(page[crcAt:], crc32.ChecksumIEEE(page[:crcAt]))
	if _, err := f.WriteAt(page, 0); err != nil {
		t.Fatalf("poke legacy version: %v", err)
	}
}

func TestUpgradeV4RewritesLegacyFile(t *testing.T) {
	path := tempDBPath(t)
	defer os.Remove(path)
	defer os.Remove(path + ".log")

	buildLegacyFixture(t, path)

	if err := UpgradeV4(path, ""); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	pager, err := storage.OpenPager(path, "", false)
	if err != nil {
		t.Fatalf("reopen upgraded: %v", err)
	}
	defer pager.Close()

	if pager.Version() != storage.CurrentVersion {
		t.Fatalf("expected version %d after upgrade, got %d", storage.CurrentVersion, pager.Version())
	}

	col := collection.New("widgets", index.NewManager())
	tx := pager.BeginTx(false)
	results, err := col.Scan(tx)
	if err != nil {
		t.Fatalf("scan after upgrade: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 documents preserved across upgrade, got %d", len(results))
	}
}

func TestUpgradeV4IsIdempotent(t *testing.T) {
	path := tempDBPath(t)
	defer os.Remove(path)
	defer os.Remove(path + ".log")

	buildLegacyFixture(t, path)

	if err := UpgradeV4(path, ""); err != nil {
		t.Fatalf("first upgrade: %v", err)
	}
	if err := UpgradeV4(path, ""); err != nil {
		t.Fatalf("second upgrade should be a no-op, got: %v", err)
	}

	pager, err := storage.OpenPager(path, "", false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer pager.Close()
	col := collection.New("widgets", index.NewManager())
	tx := pager.BeginTx(false)
	results, err := col.Scan(tx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected idempotent upgrade to preserve 3 documents, got %d", len(results))
	}
}
