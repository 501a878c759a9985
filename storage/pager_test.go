package storage

import (
	"os"
	"testing"
)

func tempPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "litedb_pager_*.db")
	if err != nil {
		t.Fatal(err)
	}
	path := f.Name()
	f.Close()
	os.Remove(path)
	return path
}

func TestPagerCreateClose(t *testing.T) {
	path := tempPath(t)
	defer os.Remove(path)
	defer os.Remove(path + ".log")

	p, err := OpenPager(path, "", false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() < PageSize {
		t.Errorf("expected file >= %d bytes, got %d", PageSize, info.Size())
	}
}

func TestPagerReopenPersistence(t *testing.T) {
	path := tempPath(t)
	defer os.Remove(path)
	defer os.Remove(path + ".log")

	p, err := OpenPager(path, "", false)
	if err != nil {
		t.Fatalf("open1: %v", err)
	}
	tx := p.BeginTx(true)
	pg, err := tx.NewPage(PageTypeData)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	tx.CreateCollection("jobs", pg.PageID())
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close1: %v", err)
	}

	p2, err := OpenPager(path, "", false)
	if err != nil {
		t.Fatalf("open2: %v", err)
	}
	defer p2.Close()

	coll := p2.GetCollection("jobs")
	if coll == nil {
		t.Fatal("expected collection 'jobs' after reopen")
	}
	if coll.Name != "jobs" {
		t.Errorf("expected name 'jobs', got %q", coll.Name)
	}
}

func TestPagerSnapshotIsolation(t *testing.T) {
	p, err := OpenPagerMemory()
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer p.Close()

	writer := p.BeginTx(true)
	pg, err := writer.NewPage(PageTypeData)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	id := pg.PageID()
	copy(pg.Payload(), []byte("v1"))

	// A reader started before the writer commits must not see the new page.
	reader := p.BeginTx(false)
	if _, err := reader.GetPage(id); err == nil {
		t.Error("expected snapshot started before commit to miss the new page")
	}

	if err := writer.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A reader started after commit sees it.
	reader2 := p.BeginTx(false)
	got, err := reader2.GetPage(id)
	if err != nil {
		t.Fatalf("get page after commit: %v", err)
	}
	if string(got.Payload()[:2]) != "v1" {
		t.Errorf("expected payload v1, got %q", got.Payload()[:2])
	}
}

func TestPagerRollbackDiscardsWrites(t *testing.T) {
	p, err := OpenPagerMemory()
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer p.Close()

	writer := p.BeginTx(true)
	pg, err := writer.NewPage(PageTypeData)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	id := pg.PageID()
	writer.Rollback()

	reader := p.BeginTx(false)
	if _, err := reader.GetPage(id); err == nil {
		t.Error("expected rolled-back page to remain invisible")
	}
}

func TestPagerMutatePageClonesOnce(t *testing.T) {
	p, err := OpenPagerMemory()
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer p.Close()

	tx := p.BeginTx(true)
	pg, err := tx.NewPage(PageTypeData)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	id := pg.PageID()
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx2 := p.BeginTx(true)
	first, err := tx2.MutatePage(id)
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	second, err := tx2.MutatePage(id)
	if err != nil {
		t.Fatalf("mutate again: %v", err)
	}
	if first != second {
		t.Error("expected the same cloned page instance on repeated MutatePage calls")
	}
}

func TestPagerListCollections(t *testing.T) {
	p, err := OpenPagerMemory()
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer p.Close()

	tx := p.BeginTx(true)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		pg, err := tx.NewPage(PageTypeData)
		if err != nil {
			t.Fatalf("new page: %v", err)
		}
		tx.CreateCollection(name, pg.PageID())
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	names := p.ListCollections()
	if len(names) != 3 {
		t.Errorf("expected 3 collections, got %d", len(names))
	}
}

func TestPagerCheckpointPersistsAcrossReopen(t *testing.T) {
	path := tempPath(t)
	defer os.Remove(path)
	defer os.Remove(path + ".log")

	p, err := OpenPager(path, "", false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tx := p.BeginTx(true)
	pg, err := tx.NewPage(PageTypeData)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	copy(pg.Payload(), []byte("checkpointed"))
	id := pg.PageID()
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := p.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := OpenPager(path, "", false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()

	reader := p2.BeginTx(false)
	got, err := reader.GetPage(id)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if string(got.Payload()[:12]) != "checkpointed" {
		t.Errorf("expected checkpointed payload to survive reopen, got %q", got.Payload()[:12])
	}
}
