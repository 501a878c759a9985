// Package storage implements the page-oriented file format: the fixed
// 4096-byte page layout, the disk service (data file + log file), the
// page-level buffer pool, the write-ahead log and the pager/snapshot that
// resolves (PageID, TransactionID) to a concrete page.
//
// Generalized from a 5-variant SQL-row page format to a BSON document
// page format, with the disk/WAL/cache plumbing carried over otherwise
// unchanged.
package storage

import "encoding/binary"

// PageSize is the fixed unit of disk I/O.
const PageSize = 4096

// PageType identifies a page's role.
type PageType byte

const (
	PageTypeHeader     PageType = 1
	PageTypeCollection PageType = 2
	PageTypeIndex      PageType = 3
	PageTypeData       PageType = 4
	PageTypeExtend     PageType = 5
	PageTypeEmpty      PageType = 6
)

// PageID addresses a page by its 0-based position in the data file.
type PageID uint32

// Header layout, 34 bytes, immediately followed by the
// page's payload:
//
//	[0]     PageType
//	[1-4]   PageID        uint32
//	[5-8]   PrevPageID    uint32
//	[9-12]  NextPageID    uint32
//	[13-14] ItemsCount    uint16
//	[15-16] FreeBytes     uint16
//	[17-20] ColID         uint32 (owning collection's first page id, 0 = none)
//	[21-28] TransactionID uint64
//	[29]    IsConfirmed   byte (0/1)
//	[30-33] ColFreeDataPageList uint32
const PageHeaderSize = 34

// Page is a single in-memory 4096-byte page: a fixed header followed by
// a type-specific payload.
type Page struct {
	Data [PageSize]byte
}

// NewPage allocates a zeroed page stamped with the given type and id.
func NewPage(t PageType, id PageID) *Page {
	p := &Page{}
	p.Data[0] = byte(t)
	binary.LittleEndian.PutUint32(p.Data[1:5], uint32(id))
	p.SetFreeBytes(PageSize - PageHeaderSize)
	return p
}

func (p *Page) Type() PageType     { return PageType(p.Data[0]) }
func (p *Page) SetType(t PageType) { p.Data[0] = byte(t) }

func (p *Page) PageID() PageID { return PageID(binary.LittleEndian.Uint32(p.Data[1:5])) }
func (p *Page) SetPageID(id PageID) {
	binary.LittleEndian.PutUint32(p.Data[1:5], uint32(id))
}

func (p *Page) PrevPageID() PageID { return PageID(binary.LittleEndian.Uint32(p.Data[5:9])) }
func (p *Page) SetPrevPageID(id PageID) {
	binary.LittleEndian.PutUint32(p.Data[5:9], uint32(id))
}

func (p *Page) NextPageID() PageID { return PageID(binary.LittleEndian.Uint32(p.Data[9:13])) }
func (p *Page) SetNextPageID(id PageID) {
	binary.LittleEndian.PutUint32(p.Data[9:13], uint32(id))
}

func (p *Page) ItemsCount() uint16 { return binary.LittleEndian.Uint16(p.Data[13:15]) }
func (p *Page) SetItemsCount(n uint16) {
	binary.LittleEndian.PutUint16(p.Data[13:15], n)
}

// FreeBytes returns the free-space counter. Invariant: FreeBytes <= PageSize
// - PageHeaderSize.
func (p *Page) FreeBytes() uint16 { return binary.LittleEndian.Uint16(p.Data[15:17]) }
func (p *Page) SetFreeBytes(n uint16) {
	if int(n) > PageSize-PageHeaderSize {
		n = PageSize - PageHeaderSize
	}
	binary.LittleEndian.PutUint16(p.Data[15:17], n)
}

func (p *Page) ColID() uint32 { return binary.LittleEndian.Uint32(p.Data[17:21]) }
func (p *Page) SetColID(id uint32) {
	binary.LittleEndian.PutUint32(p.Data[17:21], id)
}

func (p *Page) TransactionID() uint64 { return binary.LittleEndian.Uint64(p.Data[21:29]) }
func (p *Page) SetTransactionID(id uint64) {
	binary.LittleEndian.PutUint64(p.Data[21:29], id)
}

func (p *Page) IsConfirmed() bool { return p.Data[29] != 0 }
func (p *Page) SetConfirmed(v bool) {
	if v {
		p.Data[29] = 1
	} else {
		p.Data[29] = 0
	}
}

func (p *Page) ColFreeDataPageList() uint32 {
	return binary.LittleEndian.Uint32(p.Data[30:34])
}
func (p *Page) SetColFreeDataPageList(id uint32) {
	binary.LittleEndian.PutUint32(p.Data[30:34], id)
}

// Payload returns the mutable slice following the header, where item
// slots (records, index nodes, collection metadata) are packed.
func (p *Page) Payload() []byte { return p.Data[PageHeaderSize:] }

// Clone returns a deep copy, used by the pager's copy-on-write snapshot
// semantics.
func (p *Page) Clone() *Page {
	clone := &Page{}
	clone.Data = p.Data
	return clone
}
