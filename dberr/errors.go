// Package dberr lists the sentinel error kinds the engine can surface.
// Every layer wraps one of these with context via fmt.Errorf("...: %w", ...),
// mirroring the storage.ErrReadOnly pattern the engine was built on.
package dberr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConnectionString = errors.New("litedb: invalid connection string")
	ErrFileNotFound            = errors.New("litedb: file not found")
	ErrInvalidPassword         = errors.New("litedb: invalid password")
	ErrDatabaseCorrupted       = errors.New("litedb: database corrupted")
	ErrUnexpectedEndOfStream   = errors.New("litedb: unexpected end of stream")
	ErrInvalidNullCharInString = errors.New("litedb: invalid null char in string")
	ErrIndexKeyAlreadyExists   = errors.New("litedb: index key already exists")
	ErrIndexKeyTooLong         = errors.New("litedb: index key too long")
	ErrCollectionNotFound      = errors.New("litedb: collection not found")
	ErrInvalidCollectionName   = errors.New("litedb: invalid collection name")
	ErrVectorDimensionMismatch = errors.New("litedb: vector dimension mismatch")
	ErrUnsupportedMetric       = errors.New("litedb: unsupported metric")
	ErrLockTimeout             = errors.New("litedb: lock timeout")
	ErrReadOnlyDatabase        = errors.New("litedb: read-only database")
	ErrUpgradeRequired         = errors.New("litedb: upgrade required")
	ErrPlatformNotSupported    = errors.New("litedb: platform not supported")
	ErrInvalidExpression       = errors.New("litedb: invalid expression")
	ErrInvalidCast             = errors.New("litedb: invalid cast")
)

// KeyError carries the offending key or id alongside a sentinel kind, per
// ("surface to the caller with the offending key or id").
type KeyError struct {
	Kind error
	Key  any
}

func (e *KeyError) Error() string {
	return e.Kind.Error() + ": " + formatKey(e.Key)
}

func (e *KeyError) Unwrap() error { return e.Kind }

func formatKey(k any) string {
	type stringer interface{ String() string }
	if s, ok := k.(stringer); ok {
		return s.String()
	}
	return fmt.Sprint(k)
}
