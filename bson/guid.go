package bson

import "github.com/google/uuid"

// NewGuid generates a random (v4) Guid value, wired through
// github.com/google/uuid.
func NewGuid() Value {
	u := uuid.New()
	var g [16]byte
	copy(g[:], u[:])
	return GuidValue(g)
}

// GuidFromString parses a canonical "xxxxxxxx-xxxx-..." guid string.
func GuidFromString(s string) (Value, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Value{}, err
	}
	var g [16]byte
	copy(g[:], u[:])
	return GuidValue(g), nil
}

// GuidString renders a Guid value in canonical form.
func (v Value) GuidString() string {
	return uuid.UUID(v.Guid).String()
}
