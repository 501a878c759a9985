package bson

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/litedb/litedb/dberr"
)

// Encode serializes a document to the canonical binary layout:
// [nb_fields:uint16] then, per field, [name_len:uint16][name][type:byte]
// [value bytes]. Covers the full BSON union including the LiteDB
// extensions (ObjectId 12 bytes, Decimal 16 bytes, Guid 16 bytes, Vector
// as a length-prefixed body of a u16 count and that many f32s). A Vector
// carries no 0x05 subtype byte; its type byte alone marks it.
func (d *Document) Encode() ([]byte, error) {
	buf := make([]byte, 0, 256)
	var tmp [8]byte

	binary.LittleEndian.PutUint16(tmp[:2], uint16(len(d.keys)))
	buf = append(buf, tmp[:2]...)

	for _, name := range d.keys {
		v := d.values[name]
		nameBytes := []byte(name)
		if len(nameBytes) > math.MaxUint16 {
			return nil, fmt.Errorf("bson: field name too long: %s", name)
		}
		binary.LittleEndian.PutUint16(tmp[:2], uint16(len(nameBytes)))
		buf = append(buf, tmp[:2]...)
		buf = append(buf, nameBytes...)
		buf = append(buf, byte(v.T))

		vb, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		buf = append(buf, vb...)
	}
	return buf, nil
}

// Decode deserializes a document from the Encode layout.
func Decode(data []byte) (*Document, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("bson: %w (document header)", dberr.ErrUnexpectedEndOfStream)
	}
	doc := NewDocument()
	off := 0
	n := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2

	for i := 0; i < n; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("bson: %w (field name length)", dberr.ErrUnexpectedEndOfStream)
		}
		nameLen := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if off+nameLen+1 > len(data) {
			return nil, fmt.Errorf("bson: %w (field name)", dberr.ErrUnexpectedEndOfStream)
		}
		name := string(data[off : off+nameLen])
		off += nameLen
		t := Type(data[off])
		off++

		v, consumed, err := decodeValue(t, data[off:])
		if err != nil {
			return nil, err
		}
		off += consumed
		doc.Set(name, v)
	}
	return doc, nil
}

func encodeValue(v Value) ([]byte, error) {
	switch v.T {
	case TypeNull, TypeMinValue, TypeMaxValue:
		return nil, nil
	case TypeBoolean:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TypeInt32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v.I32))
		return b[:], nil
	case TypeInt64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.I64))
		return b[:], nil
	case TypeDouble:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.F64))
		return b[:], nil
	case TypeDecimal:
		b := v.Dec.Bytes()
		return b[:], nil
	case TypeDateTime:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.Time.UTC().UnixNano()))
		return b[:], nil
	case TypeObjectID:
		return v.OID[:], nil
	case TypeGuid:
		return v.Guid[:], nil
	case TypeString:
		return encodeLenPrefixed([]byte(v.Str)), nil
	case TypeBinary:
		return encodeLenPrefixed(v.Bin), nil
	case TypeVector:
		// u16 length, length x f32, wrapped in the usual length prefix;
		// no subtype byte is written.
		body := make([]byte, 2+4*len(v.Vec))
		binary.LittleEndian.PutUint16(body[0:2], uint16(len(v.Vec)))
		for i, f := range v.Vec {
			binary.LittleEndian.PutUint32(body[2+4*i:], math.Float32bits(f))
		}
		return encodeLenPrefixed(body), nil
	case TypeDocument:
		inner, err := v.Doc.Encode()
		if err != nil {
			return nil, err
		}
		return encodeLenPrefixed(inner), nil
	case TypeArray:
		inner := make([]byte, 0, 64)
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(len(v.Arr)))
		inner = append(inner, tmp[:]...)
		for _, e := range v.Arr {
			inner = append(inner, byte(e.T))
			eb, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			inner = append(inner, eb...)
		}
		return encodeLenPrefixed(inner), nil
	default:
		return nil, fmt.Errorf("bson: unknown type %d", v.T)
	}
}

func encodeLenPrefixed(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out
}

func decodeValue(t Type, data []byte) (Value, int, error) {
	need := func(n int) error {
		if len(data) < n {
			return fmt.Errorf("bson: %w (value)", dberr.ErrUnexpectedEndOfStream)
		}
		return nil
	}
	switch t {
	case TypeNull:
		return Null(), 0, nil
	case TypeMinValue:
		return MinValue(), 0, nil
	case TypeMaxValue:
		return MaxValue(), 0, nil
	case TypeBoolean:
		if err := need(1); err != nil {
			return Value{}, 0, err
		}
		return Boolean(data[0] != 0), 1, nil
	case TypeInt32:
		if err := need(4); err != nil {
			return Value{}, 0, err
		}
		return Int32(int32(binary.LittleEndian.Uint32(data))), 4, nil
	case TypeInt64:
		if err := need(8); err != nil {
			return Value{}, 0, err
		}
		return Int64(int64(binary.LittleEndian.Uint64(data))), 8, nil
	case TypeDouble:
		if err := need(8); err != nil {
			return Value{}, 0, err
		}
		return Double(math.Float64frombits(binary.LittleEndian.Uint64(data))), 8, nil
	case TypeDecimal:
		if err := need(16); err != nil {
			return Value{}, 0, err
		}
		var b [16]byte
		copy(b[:], data[:16])
		return DecimalValue(DecimalFromBytes(b)), 16, nil
	case TypeDateTime:
		if err := need(8); err != nil {
			return Value{}, 0, err
		}
		ns := int64(binary.LittleEndian.Uint64(data))
		return DateTime(time.Unix(0, ns).UTC()), 8, nil
	case TypeObjectID:
		if err := need(12); err != nil {
			return Value{}, 0, err
		}
		var oid ObjectID
		copy(oid[:], data[:12])
		return ObjectIDValue(oid), 12, nil
	case TypeGuid:
		if err := need(16); err != nil {
			return Value{}, 0, err
		}
		var g [16]byte
		copy(g[:], data[:16])
		return GuidValue(g), 16, nil
	case TypeString:
		body, n, err := decodeLenPrefixed(data)
		if err != nil {
			return Value{}, 0, err
		}
		return String(string(body)), n, nil
	case TypeBinary:
		body, n, err := decodeLenPrefixed(data)
		if err != nil {
			return Value{}, 0, err
		}
		return Binary(append([]byte(nil), body...)), n, nil
	case TypeVector:
		body, n, err := decodeLenPrefixed(data)
		if err != nil {
			return Value{}, 0, err
		}
		if len(body) < 2 {
			return Value{}, 0, fmt.Errorf("bson: %w (vector header)", dberr.ErrUnexpectedEndOfStream)
		}
		length := int(binary.LittleEndian.Uint16(body))
		if len(body) < 2+4*length {
			return Value{}, 0, fmt.Errorf("bson: %w (vector body)", dberr.ErrUnexpectedEndOfStream)
		}
		vec := make([]float32, length)
		for i := 0; i < length; i++ {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[2+4*i:]))
		}
		return VectorValue(vec), n, nil
	case TypeDocument:
		body, n, err := decodeLenPrefixed(data)
		if err != nil {
			return Value{}, 0, err
		}
		sub, err := Decode(body)
		if err != nil {
			return Value{}, 0, err
		}
		return DocValue(sub), n, nil
	case TypeArray:
		body, n, err := decodeLenPrefixed(data)
		if err != nil {
			return Value{}, 0, err
		}
		if len(body) < 2 {
			return Value{}, 0, fmt.Errorf("bson: %w (array header)", dberr.ErrUnexpectedEndOfStream)
		}
		count := int(binary.LittleEndian.Uint16(body))
		off := 2
		arr := make([]Value, 0, count)
		for i := 0; i < count; i++ {
			if off >= len(body) {
				return Value{}, 0, fmt.Errorf("bson: %w (array element type)", dberr.ErrUnexpectedEndOfStream)
			}
			et := Type(body[off])
			off++
			ev, consumed, err := decodeValue(et, body[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += consumed
			arr = append(arr, ev)
		}
		return Array(arr), n, nil
	default:
		return Value{}, 0, fmt.Errorf("bson: unknown type %d", t)
	}
}

func decodeLenPrefixed(data []byte) ([]byte, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("bson: %w (length prefix)", dberr.ErrUnexpectedEndOfStream)
	}
	n := int(binary.LittleEndian.Uint32(data))
	if len(data) < 4+n {
		return nil, 0, fmt.Errorf("bson: %w (body)", dberr.ErrUnexpectedEndOfStream)
	}
	return data[4 : 4+n], 4 + n, nil
}
