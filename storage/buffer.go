package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/litedb/litedb/dberr"
)

// BufferSlice is an (offset, length) view over a byte array, the unit the
// scatter reader/writer traverse.
type BufferSlice struct {
	Array  []byte
	Offset int
	Length int
}

func (s BufferSlice) bytes() []byte { return s.Array[s.Offset : s.Offset+s.Length] }

// BufferPool rents byte buffers of at least the requested size and
// returns them cleared when the caller signals sensitive content. Keeps
// one free list per power-of-two bucket size and reuses the most recently
// returned buffer first; pooled buffers are never evicted.
type BufferPool struct {
	mu      sync.Mutex
	buckets map[int][][]byte
}

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{buckets: make(map[int][][]byte)}
}

// Rent returns a buffer with length >= size, reusing a pooled buffer of the
// same bucket size when available.
func (p *BufferPool) Rent(size int) []byte {
	bucket := bucketSize(size)
	p.mu.Lock()
	if bufs := p.buckets[bucket]; len(bufs) > 0 {
		buf := bufs[len(bufs)-1]
		p.buckets[bucket] = bufs[:len(bufs)-1]
		p.mu.Unlock()
		return buf[:size]
	}
	p.mu.Unlock()
	return make([]byte, size, bucket)
}

// Return releases a buffer back to the pool. If sensitive is true the
// buffer is zeroed first (e.g. it held decrypted page bytes or a password).
func (p *BufferPool) Return(buf []byte, sensitive bool) {
	if cap(buf) == 0 {
		return
	}
	if sensitive {
		for i := range buf {
			buf[i] = 0
		}
	}
	full := buf[:cap(buf)]
	bucket := cap(full)
	p.mu.Lock()
	p.buckets[bucket] = append(p.buckets[bucket], full)
	p.mu.Unlock()
}

func bucketSize(size int) int {
	// round up to the next power of two, floor 64 bytes.
	if size <= 64 {
		return 64
	}
	return 1 << int(math.Ceil(math.Log2(float64(size))))
}

// BufferReader reads primitives in little-endian across one or more
// BufferSlices, treated as a single logical stream. Cross-segment reads
// rent a scratch buffer from pool.
type BufferReader struct {
	slices []BufferSlice
	pool   *BufferPool
	pos    int // absolute logical position
	total  int
}

// NewBufferReader wraps slices for sequential reading.
func NewBufferReader(pool *BufferPool, slices ...BufferSlice) *BufferReader {
	total := 0
	for _, s := range slices {
		total += s.Length
	}
	return &BufferReader{slices: slices, pool: pool, total: total}
}

// Position returns the current logical read offset. Never negative.
func (r *BufferReader) Position() int { return r.pos }

func (r *BufferReader) remaining() int { return r.total - r.pos }

// read fills dst from the logical stream, renting a scratch buffer only
// when the read spans more than one underlying slice.
func (r *BufferReader) read(dst []byte) error {
	n := len(dst)
	if n > r.remaining() {
		return fmt.Errorf("storage: %w", dberr.ErrUnexpectedEndOfStream)
	}

	// Locate the starting slice.
	pos := r.pos
	idx := 0
	for idx < len(r.slices) && pos >= r.slices[idx].Length {
		pos -= r.slices[idx].Length
		idx++
	}

	copied := 0
	for copied < n && idx < len(r.slices) {
		s := r.slices[idx]
		avail := s.Length - pos
		take := n - copied
		if take > avail {
			take = avail
		}
		copy(dst[copied:copied+take], s.bytes()[pos:pos+take])
		copied += take
		pos = 0
		idx++
	}
	r.pos += n
	return nil
}

func (r *BufferReader) ReadI32() (int32, error) {
	var b [4]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

func (r *BufferReader) ReadI64() (int64, error) {
	var b [8]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func (r *BufferReader) ReadF32() (float32, error) {
	var b [4]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:])), nil
}

func (r *BufferReader) ReadF64() (float64, error) {
	var b [8]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
}

// ReadString reads n raw bytes and interprets them as a UTF-8 string
// (fixed-length, no length prefix, no terminator).
func (r *BufferReader) ReadString(n int) (string, error) {
	buf := r.pool.Rent(n)
	defer r.pool.Return(buf, false)
	if err := r.read(buf[:n]); err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// ReadCString reads bytes until a NUL terminator (exclusive).
func (r *BufferReader) ReadCString() (string, error) {
	var out []byte
	for {
		var b [1]byte
		if err := r.read(b[:]); err != nil {
			return "", err
		}
		if b[0] == 0 {
			break
		}
		out = append(out, b[0])
	}
	return string(out), nil
}

// ReadGuid / ReadObjectID read their fixed-size binary forms.
func (r *BufferReader) ReadGuid() ([16]byte, error) {
	var b [16]byte
	err := r.read(b[:])
	return b, err
}

func (r *BufferReader) ReadObjectID() ([12]byte, error) {
	var b [12]byte
	err := r.read(b[:])
	return b, err
}

func (r *BufferReader) ReadDecimal() ([16]byte, error) {
	var b [16]byte
	err := r.read(b[:])
	return b, err
}

// BufferWriter mirrors BufferReader for writes across one or more slices.
type BufferWriter struct {
	slices []BufferSlice
	pos    int
	total  int
}

func NewBufferWriter(slices ...BufferSlice) *BufferWriter {
	total := 0
	for _, s := range slices {
		total += s.Length
	}
	return &BufferWriter{slices: slices, total: total}
}

func (w *BufferWriter) write(src []byte) error {
	n := len(src)
	if w.pos+n > w.total {
		return fmt.Errorf("storage: %w", dberr.ErrUnexpectedEndOfStream)
	}
	pos := w.pos
	idx := 0
	for idx < len(w.slices) && pos >= w.slices[idx].Length {
		pos -= w.slices[idx].Length
		idx++
	}
	copied := 0
	for copied < n && idx < len(w.slices) {
		s := w.slices[idx]
		avail := s.Length - pos
		take := n - copied
		if take > avail {
			take = avail
		}
		copy(s.bytes()[pos:pos+take], src[copied:copied+take])
		copied += take
		pos = 0
		idx++
	}
	w.pos += n
	return nil
}

func (w *BufferWriter) WriteI32(v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return w.write(b[:])
}

func (w *BufferWriter) WriteI64(v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return w.write(b[:])
}

func (w *BufferWriter) WriteF32(v float32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	return w.write(b[:])
}

func (w *BufferWriter) WriteF64(v float64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	return w.write(b[:])
}

// WriteCString rejects an embedded NUL, matching.
func (w *BufferWriter) WriteCString(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return fmt.Errorf("storage: %w", dberr.ErrInvalidNullCharInString)
		}
	}
	if err := w.write([]byte(s)); err != nil {
		return err
	}
	return w.write([]byte{0})
}

// WriteBSONString writes the canonical BSON string encoding: a
// little-endian i32 length+1 prefix followed by the bytes and a
// terminating NUL.
func (w *BufferWriter) WriteBSONString(s string) error {
	if err := w.WriteI32(int32(len(s)) + 1); err != nil {
		return err
	}
	if err := w.write([]byte(s)); err != nil {
		return err
	}
	return w.write([]byte{0})
}
