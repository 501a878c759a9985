// Package api is the public surface: OpenDatabase, Database, Collection and
// Query wrap the lower-level storage/txn/index/collection/query packages
// into the shape an embedding application actually calls.
package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/dberr"
)

// ConnectionMode selects between an exclusive-per-process file handle and
// one coordinated across processes via the named shared mutex.
type ConnectionMode int

const (
	ConnectionDirect ConnectionMode = iota
	ConnectionShared
)

// ConnectionString holds the parsed semicolon-delimited "key=value;..."
// options. Keys are case-insensitive; the zero value is an in-memory,
// read-write, direct-mode connection.
type ConnectionString struct {
	Filename    string
	Password    string
	Connection  ConnectionMode
	ReadOnly    bool
	Upgrade     bool
	InitialSize int64
	Collation   bson.Collation
	Timeout     time.Duration
}

// ParseConnectionString splits s on ';' into key=value pairs and fills a
// ConnectionString, defaulting Collation to binary and Timeout to 60s.
// An empty string yields an in-memory database (no Filename).
func ParseConnectionString(s string) (ConnectionString, error) {
	cs := ConnectionString{Collation: bson.Binary, Timeout: 60 * time.Second}
	s = strings.TrimSpace(s)
	if s == "" {
		return cs, nil
	}

	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return ConnectionString{}, fmt.Errorf("api: option %q: %w", part, dberr.ErrInvalidConnectionString)
		}
		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		val := strings.TrimSpace(part[eq+1:])

		switch key {
		case "filename":
			cs.Filename = val
		case "password":
			cs.Password = val
		case "connection":
			switch strings.ToLower(val) {
			case "direct":
				cs.Connection = ConnectionDirect
			case "shared":
				cs.Connection = ConnectionShared
			default:
				return ConnectionString{}, fmt.Errorf("api: connection %q: %w", val, dberr.ErrInvalidConnectionString)
			}
		case "readonly":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return ConnectionString{}, fmt.Errorf("api: readonly %q: %w", val, dberr.ErrInvalidConnectionString)
			}
			cs.ReadOnly = b
		case "upgrade":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return ConnectionString{}, fmt.Errorf("api: upgrade %q: %w", val, dberr.ErrInvalidConnectionString)
			}
			cs.Upgrade = b
		case "initial size":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return ConnectionString{}, fmt.Errorf("api: initial size %q: %w", val, dberr.ErrInvalidConnectionString)
			}
			cs.InitialSize = n
		case "collation":
			cs.Collation = bson.Collation{Locale: val, Strength: bson.StrengthTertiary}
		case "timeout":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return ConnectionString{}, fmt.Errorf("api: timeout %q: %w", val, dberr.ErrInvalidConnectionString)
			}
			cs.Timeout = time.Duration(n) * time.Second
		default:
			return ConnectionString{}, fmt.Errorf("api: unknown option %q: %w", key, dberr.ErrInvalidConnectionString)
		}
	}
	if cs.Filename == "" {
		return ConnectionString{}, fmt.Errorf("api: missing filename: %w", dberr.ErrInvalidConnectionString)
	}
	return cs, nil
}
