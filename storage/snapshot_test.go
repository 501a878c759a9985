package storage

import "testing"

func TestSnapshotRollbackDiscardsStagedCollection(t *testing.T) {
	p, err := OpenPagerMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	tx := p.BeginTx(true)
	pg, err := tx.NewPage(PageTypeData)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	tx.CreateCollection("pending", pg.PageID())

	if meta := tx.GetCollection("pending"); meta == nil {
		t.Fatal("expected the staged collection to be visible within its own transaction")
	}

	tx.Rollback()

	if meta := p.GetCollection("pending"); meta != nil {
		t.Fatal("rolled-back transaction leaked a collection into the live directory")
	}
}

func TestSnapshotCommitAppliesStagedCollection(t *testing.T) {
	p, err := OpenPagerMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	tx := p.BeginTx(true)
	pg, err := tx.NewPage(PageTypeData)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	tx.CreateCollection("committed", pg.PageID())
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	meta := p.GetCollection("committed")
	if meta == nil {
		t.Fatal("expected the committed collection to be visible on the live pager")
	}
	if meta.FirstPageID != pg.PageID() {
		t.Errorf("FirstPageID = %d, want %d", meta.FirstPageID, pg.PageID())
	}
}

func TestSnapshotDropCollectionStagedUntilCommit(t *testing.T) {
	p, err := OpenPagerMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	setup := p.BeginTx(true)
	pg, err := setup.NewPage(PageTypeData)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	setup.CreateCollection("doomed", pg.PageID())
	if err := setup.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx := p.BeginTx(true)
	tx.DropCollection("doomed")
	if meta := tx.GetCollection("doomed"); meta != nil {
		t.Fatal("expected the drop to be visible within its own transaction before commit")
	}
	if meta := p.GetCollection("doomed"); meta == nil {
		t.Fatal("drop must not be visible on the live pager before commit")
	}

	tx.Rollback()
	if meta := p.GetCollection("doomed"); meta == nil {
		t.Fatal("rolled-back drop must leave the collection intact")
	}
}
