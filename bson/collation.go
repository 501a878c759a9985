package bson

import "strings"

// CollationStrength controls whether a locale collation folds case.
type CollationStrength int

const (
	StrengthPrimary   CollationStrength = iota // case-insensitive
	StrengthSecondary                          // case-insensitive, same as StrengthPrimary
	StrengthTertiary                           // case-sensitive byte order (default)
)

// Collation is the total order used by index keys and sorts. Binary
// collation compares UTF-8 bytes directly; locale collations at Primary
// or Secondary strength lower-case both strings before comparing. No
// accent folding is applied at any strength.
type Collation struct {
	Locale   string // "" or "binary" means byte-wise
	Strength CollationStrength
}

// Binary is the default, byte-wise collation.
var Binary = Collation{Locale: "binary", Strength: StrengthTertiary}

func (c Collation) isBinary() bool {
	return c.Locale == "" || c.Locale == "binary"
}

// foldString applies the collation's case folding to a string for
// comparison purposes only (never mutates stored data).
func (c Collation) foldString(s string) string {
	if c.isBinary() {
		return s
	}
	if c.Strength == StrengthTertiary {
		return s
	}
	return strings.ToLower(s)
}

// CompareStrings orders two strings under the collation.
func (c Collation) CompareStrings(a, b string) int {
	if c.isBinary() || c.Strength == StrengthTertiary {
		return strings.Compare(a, b)
	}
	return strings.Compare(c.foldString(a), c.foldString(b))
}

// Compare orders two BSON values under the collation: numeric variants
// compare as values, cross-type comparisons fall back to the fixed type
// rank, and equal-rank non-numeric non-string variants compare
// structurally.
func (c Collation) Compare(a, b Value) int {
	ra, rb := rankOf(a.T), rankOf(b.T)
	if a.IsNumeric() && b.IsNumeric() {
		return compareFloat(a.AsFloat64(), b.AsFloat64())
	}
	if ra != rb {
		return compareInt(ra, rb)
	}
	switch a.T {
	case TypeNull, TypeMinValue, TypeMaxValue:
		return 0
	case TypeString:
		return c.CompareStrings(a.Str, b.Str)
	case TypeBoolean:
		return compareBool(a.Bool, b.Bool)
	case TypeDateTime:
		switch {
		case a.Time.Before(b.Time):
			return -1
		case a.Time.After(b.Time):
			return 1
		default:
			return 0
		}
	case TypeObjectID:
		return compareBytes(a.OID[:], b.OID[:])
	case TypeGuid:
		return compareBytes(a.Guid[:], b.Guid[:])
	case TypeBinary:
		return compareBytes(a.Bin, b.Bin)
	case TypeVector:
		return compareVectorBytes(a.Vec, b.Vec)
	case TypeDocument:
		return compareDocuments(c, a.Doc, b.Doc)
	case TypeArray:
		return compareArrays(c, a.Arr, b.Arr)
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func compareBytes(a, b []byte) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return compareInt(la, lb)
}

func compareVectorBytes(a, b []float32) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareFloat(float64(a[i]), float64(b[i])); c != 0 {
			return c
		}
	}
	return compareInt(len(a), len(b))
}

func compareDocuments(c Collation, a, b *Document) int {
	if a == nil || b == nil {
		return compareInt(boolToInt(a != nil), boolToInt(b != nil))
	}
	ak, bk := a.Keys(), b.Keys()
	n := len(ak)
	if len(bk) < n {
		n = len(bk)
	}
	for i := 0; i < n; i++ {
		if cmp := strings.Compare(ak[i], bk[i]); cmp != 0 {
			return cmp
		}
		av, _ := a.Get(ak[i])
		bv, _ := b.Get(bk[i])
		if cmp := c.Compare(av, bv); cmp != 0 {
			return cmp
		}
	}
	return compareInt(len(ak), len(bk))
}

func compareArrays(c Collation, a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if cmp := c.Compare(a[i], b[i]); cmp != 0 {
			return cmp
		}
	}
	return compareInt(len(a), len(b))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
