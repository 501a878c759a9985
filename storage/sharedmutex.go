package storage

import (
	"crypto/sha1"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/litedb/litedb/dberr"
)

// sharedMutexPrefix/sharedMutexMaxLength bound the platform name-length budget referenced
// in (Windows named-mutex names are capped around 250 chars).
const (
	sharedMutexPrefix    = "litedb-"
	sharedMutexMaxLength = 250
)

// SharedMutex is the cross-process mutual-exclusion coordinator used when
// the connection string requests "connection=shared". It is
// acquired before opening the database file and released on close.
//
// Built on the same per-OS file-lock primitives as the direct-mode
// database lock (filelock_unix.go / filelock_windows.go / filelock_js.go),
// but named after the absolute, lowercased database path rather than the
// path itself, so that several direct-mode opens of distinct files never
// collide with the shared-mode name, and several shared-mode opens of the
// same file always do.
type SharedMutex struct {
	lock *fileLock
	name string
}

// sharedMutexName derives the OS-global name from the absolute, lowercased
// database path: URI-escape it, and fall back to "sha1-"+hex(sha1(path))
// if the escaped form would blow past the platform's name-length limit.
func sharedMutexName(absPath string) string {
	normalized := strings.ToLower(filepath.ToSlash(absPath))
	escaped := url.QueryEscape(normalized)
	if len(sharedMutexPrefix)+len(escaped) <= sharedMutexMaxLength {
		return sharedMutexPrefix + escaped
	}
	sum := sha1.Sum([]byte(normalized))
	return sharedMutexPrefix + "sha1-" + fmt.Sprintf("%x", sum)
}

// AcquireSharedMutex acquires the named mutex for path in either shared
// (reader) or exclusive (writer) mode.
func AcquireSharedMutex(path string, exclusive bool) (*SharedMutex, error) {
	if !sharedModeSupported() {
		return nil, fmt.Errorf("storage: shared mode: %w", dberr.ErrPlatformNotSupported)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	name := sharedMutexName(abs)
	lockPath := filepath.Join(os.TempDir(), name+".mutex")

	var lock *fileLock
	if exclusive {
		lock, err = lockFileExclusiveAt(lockPath)
	} else {
		lock, err = lockFileShared(lockPath)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: shared mode: %w", err)
	}
	return &SharedMutex{lock: lock, name: name}, nil
}

// Release drops the named mutex.
func (m *SharedMutex) Release() error {
	if m == nil || m.lock == nil {
		return nil
	}
	return m.lock.unlock()
}

// Name exposes the derived mutex name, mostly for diagnostics/tests.
func (m *SharedMutex) Name() string { return m.name }
