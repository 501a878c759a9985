package storage

import (
	"fmt"
	"sort"
	"sync"
)

// logEntry indexes one page version living in the log file.
type logEntry struct {
	Offset        int64
	TransactionID uint64
	Confirmed     bool
	LSN           int64 // = Offset / PageSize; monotonic by append order
}

// WAL is the write-ahead log: the in-memory index over the log file's
// append-only sequence of page images, plus the confirm-page group-commit
// discipline that makes a transaction's writes visible atomically.
//
// Replays a flat slice of page-image records on open, same as a
// traditional WAL built on typed log records; here the "record" is simply
// a whole Page (already self-describing via its header), and the commit
// marker is a dedicated confirm page instead of a separate record type.
type WAL struct {
	mu      sync.Mutex
	disk    *Disk
	index   map[PageID][]logEntry // newest-last per page
	nextLSN int64
}

// confirmMarkerType tags the trailing marker page of a commit group. It
// reuses PageTypeEmpty (a confirm marker holds no payload of its own) with
// IsConfirmed=true and ItemsCount = number of preceding pages in the group.
const confirmMarkerType = PageTypeEmpty

// OpenWAL scans the log file end to end, rebuilding the page-version index
// and recognizing confirmed groups. A torn write (an incomplete trailing
// page, or a dirty-page run with no following confirm marker) is simply
// not indexed — ignored on recovery
func OpenWAL(disk *Disk) (*WAL, error) {
	w := &WAL{disk: disk, index: make(map[PageID][]logEntry)}

	var pending []logEntry
	var pendingPages []*Page
	err := disk.ScanLog(func(offset int64, p *Page) error {
		lsn := offset / PageSize
		if p.Type() == confirmMarkerType && p.IsConfirmed() {
			n := int(p.ItemsCount())
			if n > len(pending) {
				n = len(pending) // defensive: truncated group, confirm only what we actually saw
			}
			start := len(pending) - n
			for i := start; i < len(pending); i++ {
				e := pending[i]
				e.Confirmed = true
				w.index[pendingPages[i].PageID()] = append(w.index[pendingPages[i].PageID()], e)
			}
			pending = pending[:0]
			pendingPages = pendingPages[:0]
		} else {
			pending = append(pending, logEntry{Offset: offset, TransactionID: p.TransactionID(), LSN: lsn})
			pendingPages = append(pendingPages, p)
		}
		if lsn+1 > w.nextLSN {
			w.nextLSN = lsn + 1
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for id := range w.index {
		sort.Slice(w.index[id], func(i, j int) bool { return w.index[id][i].LSN < w.index[id][j].LSN })
	}
	return w, nil
}

// AppendGroup appends every dirty page followed by a confirm marker,
// making the whole group visible atomically. Returns the
// commit LSN (the confirm marker's log position).
func (w *WAL) AppendGroup(pages []*Page, txID uint64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := make([]logEntry, 0, len(pages))
	for _, p := range pages {
		p.SetTransactionID(txID)
		p.SetConfirmed(false)
		offset, err := w.disk.AppendLogPage(p)
		if err != nil {
			return 0, fmt.Errorf("storage: wal append: %w", err)
		}
		entries = append(entries, logEntry{Offset: offset, TransactionID: txID, LSN: offset / PageSize})
	}

	marker := NewPage(confirmMarkerType, 0)
	marker.SetTransactionID(txID)
	marker.SetConfirmed(true)
	marker.SetItemsCount(uint16(len(pages)))
	markerOffset, err := w.disk.AppendLogPage(marker)
	if err != nil {
		return 0, fmt.Errorf("storage: wal commit marker: %w", err)
	}
	if err := w.disk.Sync(); err != nil {
		return 0, fmt.Errorf("storage: wal fsync: %w", err)
	}

	commitLSN := markerOffset / PageSize
	for i, p := range pages {
		e := entries[i]
		e.Confirmed = true
		w.index[p.PageID()] = append(w.index[p.PageID()], e)
	}
	if commitLSN+1 > w.nextLSN {
		w.nextLSN = commitLSN + 1
	}
	return commitLSN, nil
}

// Lookup returns the most recent page version visible to a snapshot that
// started at startLSN and is running as transaction txID: either a page
// this same transaction wrote (regardless of confirmation), or the newest
// confirmed version appended before startLSN.
func (w *WAL) Lookup(id PageID, txID uint64, startLSN int64) (*Page, bool) {
	w.mu.Lock()
	entries := w.index[id]
	var best *logEntry
	for i := range entries {
		e := &entries[i]
		if e.TransactionID == txID {
			best = e // this transaction's own writes always win
			continue
		}
		if e.Confirmed && e.LSN < startLSN {
			if best == nil || e.LSN > best.LSN {
				best = e
			}
		}
	}
	var offset int64
	found := best != nil
	if found {
		offset = best.Offset
	}
	w.mu.Unlock()

	if !found {
		return nil, false
	}
	p, err := w.disk.ReadLogPage(offset)
	if err != nil {
		return nil, false
	}
	return p, true
}

// NextLSN returns the log position the next AppendGroup will land on,
// suitable as a new transaction's start LSN.
func (w *WAL) NextLSN() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextLSN
}

// Checkpoint moves every confirmed page's newest version into the data
// file, in LSN order, then truncates the log.
func (w *WAL) Checkpoint() error {
	w.mu.Lock()
	type versioned struct {
		id PageID
		logEntry
	}
	var latest []versioned
	for id, entries := range w.index {
		var newest *logEntry
		for i := range entries {
			if !entries[i].Confirmed {
				continue
			}
			if newest == nil || entries[i].LSN > newest.LSN {
				newest = &entries[i]
			}
		}
		if newest != nil {
			latest = append(latest, versioned{id: id, logEntry: *newest})
		}
	}
	w.mu.Unlock()

	sort.Slice(latest, func(i, j int) bool { return latest[i].LSN < latest[j].LSN })

	for _, v := range latest {
		p, err := w.disk.ReadLogPage(v.Offset)
		if err != nil {
			return fmt.Errorf("storage: checkpoint read log page %d: %w", v.id, err)
		}
		p.SetConfirmed(true)
		if err := w.disk.WriteDataPage(p); err != nil {
			return fmt.Errorf("storage: checkpoint write data page %d: %w", v.id, err)
		}
	}
	if err := w.disk.Sync(); err != nil {
		return err
	}
	if err := w.disk.TruncateLog(); err != nil {
		return err
	}

	w.mu.Lock()
	w.index = make(map[PageID][]logEntry)
	w.mu.Unlock()
	return nil
}

// Size reports how many pages currently live in the log, used by the
// transaction manager's CHECKPOINT pragma threshold.
func (w *WAL) Size() (PageID, error) {
	info, err := w.disk.LogFile.Stat()
	if err != nil {
		return 0, err
	}
	return PageID(info.Size() / PageSize), nil
}
