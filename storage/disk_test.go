package storage

import (
	"os"
	"testing"
)

func TestDiskEncryptedPageRoundTrip(t *testing.T) {
	disk, err := OpenDisk(NewMemFile(), NewMemFile(), "hunter2", [16]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("open disk: %v", err)
	}
	if disk.block == nil {
		t.Fatal("expected encryption to be enabled for a non-empty password")
	}

	p := NewPage(PageTypeData, 7)
	copy(p.Payload(), []byte("secret payload"))

	if err := disk.WriteDataPage(p); err != nil {
		t.Fatalf("write data page: %v", err)
	}
	got, err := disk.ReadDataPage(7)
	if err != nil {
		t.Fatalf("read data page: %v", err)
	}
	if string(got.Payload()[:14]) != "secret payload" {
		t.Errorf("unexpected payload after decrypt: %q", got.Payload()[:14])
	}
}

func TestDiskWrongPasswordFailsChecksum(t *testing.T) {
	file := NewMemFile()
	disk, err := OpenDisk(file, NewMemFile(), "correct horse", [16]byte{9, 9, 9})
	if err != nil {
		t.Fatalf("open disk: %v", err)
	}
	p := NewPage(PageTypeData, 1)
	copy(p.Payload(), []byte("hello"))
	if err := disk.WriteDataPage(p); err != nil {
		t.Fatalf("write data page: %v", err)
	}

	wrong, err := OpenDisk(file, NewMemFile(), "wrong password", [16]byte{9, 9, 9})
	if err != nil {
		t.Fatalf("open disk: %v", err)
	}
	if _, err := wrong.ReadDataPage(1); err == nil {
		t.Fatal("expected a CRC mismatch when decrypting with the wrong password")
	}
}

func TestPagerPasswordProtectedReopen(t *testing.T) {
	path := tempPath(t)
	defer os.Remove(path)
	defer os.Remove(path + ".log")

	p, err := OpenPager(path, "s3cr3t", false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tx := p.BeginTx(true)
	pg, err := tx.NewPage(PageTypeData)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	copy(pg.Payload(), []byte("encrypted database"))
	tx.CreateCollection("secrets", pg.PageID())
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := p.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := OpenPager(path, "s3cr3t", false)
	if err != nil {
		t.Fatalf("reopen with correct password: %v", err)
	}
	defer p2.Close()
	coll := p2.GetCollection("secrets")
	if coll == nil {
		t.Fatal("expected the committed collection to survive reopen")
	}
	rtx := p2.BeginTx(false)
	got, err := rtx.GetPage(coll.FirstPageID)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if string(got.Payload()[:19]) != "encrypted database" {
		t.Errorf("unexpected payload: %q", got.Payload()[:19])
	}

	if _, err := OpenPager(path, "wrong", false); err == nil {
		t.Fatal("expected reopening with the wrong password to fail")
	}
}
