// Package bson implements the document engine's BSON-like value model: a
// tagged union, a total order under a configurable Collation, and the
// canonical binary layout used by the storage layer.
//
// The union generalizes a typical SQL Field/FieldType tag (which only
// spans string/int64/float64/bool/document/array) to the full BSON type
// set a document store needs, including ObjectId, Decimal, Guid, DateTime
// and Vector.
package bson

import (
	"fmt"
	"time"
)

// Type identifies a BSON value's variant.
type Type byte

const (
	TypeNull Type = iota
	TypeInt32
	TypeInt64
	TypeDouble
	TypeDecimal
	TypeString
	TypeBinary
	TypeObjectID
	TypeGuid
	TypeBoolean
	TypeDateTime
	TypeArray
	TypeDocument
	TypeMinValue
	TypeMaxValue
	TypeVector
)

// typeRank orders variants for cross-type comparisons:
// MinValue < Null < numbers < String < Document < Array < Binary <
// ObjectId < Guid < DateTime < Boolean < MaxValue. Vector is compared only
// against Vector (a dimension/metric mismatch is a caller error, not an
// ordering question), so it shares Binary's rank.
var typeRank = map[Type]int{
	TypeMinValue: 0,
	TypeNull:     1,
	TypeInt32:    2,
	TypeInt64:    2,
	TypeDouble:   2,
	TypeDecimal:  2,
	TypeString:   3,
	TypeDocument: 4,
	TypeArray:    5,
	TypeBinary:   6,
	TypeVector:   6,
	TypeObjectID: 7,
	TypeGuid:     8,
	TypeDateTime: 9,
	TypeBoolean:  10,
	TypeMaxValue: 11,
}

// Value is a single tagged BSON value. Only the field matching Type is
// meaningful; the rest are zero. A plain struct (rather than an interface
// per variant) keeps comparison and serialization as explicit match arms,
// per the "reserve dynamic dispatch for pluggable stream backends" design
// note — not for the value union itself.
type Value struct {
	T    Type
	I32  int32
	I64  int64
	F64  float64
	Dec  Decimal128
	Str  string
	Bin  []byte
	OID  ObjectID
	Guid [16]byte
	Bool bool
	Time time.Time
	Arr  []Value
	Doc  *Document
	Vec  []float32
}

// Document is an ordered key -> Value mapping, preserving insertion order.
type Document struct {
	keys   []string
	values map[string]Value
}

// NewDocument creates an empty ordered document.
func NewDocument() *Document {
	return &Document{values: make(map[string]Value)}
}

// Set inserts or overwrites a field, preserving first-insertion order.
func (d *Document) Set(name string, v Value) *Document {
	if _, ok := d.values[name]; !ok {
		d.keys = append(d.keys, name)
	}
	d.values[name] = v
	return d
}

// Get returns a field's value and whether it was present.
func (d *Document) Get(name string) (Value, bool) {
	v, ok := d.values[name]
	return v, ok
}

// Delete removes a field if present.
func (d *Document) Delete(name string) {
	if _, ok := d.values[name]; !ok {
		return
	}
	delete(d.values, name)
	for i, k := range d.keys {
		if k == name {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns field names in insertion order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of fields.
func (d *Document) Len() int { return len(d.keys) }

// GetPath resolves a dotted path ("a.b.c") against nested documents.
func (d *Document) GetPath(parts []string) (Value, bool) {
	if len(parts) == 0 {
		return Value{}, false
	}
	v, ok := d.Get(parts[0])
	if !ok {
		return Value{}, false
	}
	if len(parts) == 1 {
		return v, true
	}
	if v.T != TypeDocument || v.Doc == nil {
		return Value{}, false
	}
	return v.Doc.GetPath(parts[1:])
}

// Constructors for the common scalar variants.

func Null() Value                { return Value{T: TypeNull} }
func Int32(v int32) Value        { return Value{T: TypeInt32, I32: v} }
func Int64(v int64) Value        { return Value{T: TypeInt64, I64: v} }
func Double(v float64) Value     { return Value{T: TypeDouble, F64: v} }
func String(v string) Value      { return Value{T: TypeString, Str: v} }
func Binary(v []byte) Value      { return Value{T: TypeBinary, Bin: v} }
func Boolean(v bool) Value       { return Value{T: TypeBoolean, Bool: v} }
func DateTime(v time.Time) Value { return Value{T: TypeDateTime, Time: v.UTC()} }
func Array(v []Value) Value      { return Value{T: TypeArray, Arr: v} }
func DocValue(d *Document) Value { return Value{T: TypeDocument, Doc: d} }
func MinValue() Value            { return Value{T: TypeMinValue} }
func MaxValue() Value            { return Value{T: TypeMaxValue} }
func ObjectIDValue(id ObjectID) Value { return Value{T: TypeObjectID, OID: id} }
func GuidValue(g [16]byte) Value { return Value{T: TypeGuid, Guid: g} }

// VectorValue builds a fixed-length float-array value.
func VectorValue(v []float32) Value { return Value{T: TypeVector, Vec: v} }

// IsNumeric reports whether the value is one of the four numeric variants.
func (v Value) IsNumeric() bool {
	switch v.T {
	case TypeInt32, TypeInt64, TypeDouble, TypeDecimal:
		return true
	}
	return false
}

// AsFloat64 widens any numeric variant to float64; non-numeric values yield 0.
func (v Value) AsFloat64() float64 {
	switch v.T {
	case TypeInt32:
		return float64(v.I32)
	case TypeInt64:
		return float64(v.I64)
	case TypeDouble:
		return v.F64
	case TypeDecimal:
		return v.Dec.Float64()
	}
	return 0
}

// String implements fmt.Stringer for error messages and KeyError formatting.
func (v Value) String() string {
	switch v.T {
	case TypeNull:
		return "null"
	case TypeInt32:
		return fmt.Sprintf("%d", v.I32)
	case TypeInt64:
		return fmt.Sprintf("%d", v.I64)
	case TypeDouble:
		return fmt.Sprintf("%g", v.F64)
	case TypeDecimal:
		return v.Dec.String()
	case TypeString:
		return v.Str
	case TypeObjectID:
		return v.OID.Hex()
	case TypeBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case TypeDateTime:
		return v.Time.Format(time.RFC3339)
	case TypeVector:
		return fmt.Sprintf("vector(%d)", len(v.Vec))
	case TypeMinValue:
		return "MinValue"
	case TypeMaxValue:
		return "MaxValue"
	default:
		return fmt.Sprintf("<%v>", v.T)
	}
}

// rankOf returns the comparison rank, folding the four numeric variants and
// Binary/Vector into shared buckets per typeRank.
func rankOf(t Type) int {
	if r, ok := typeRank[t]; ok {
		return r
	}
	return 99
}
