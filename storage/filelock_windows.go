//go:build windows

package storage

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock = 0x00000002
	lockfileFailImmediate = 0x00000001
)

// fileLock represents an OS-level file lock (Windows implementation).
type fileLock struct {
	file *os.File
}

// lockFile acquires an exclusive lock on the given database path.
// Returns a fileLock that must be released with unlock().
func lockFile(path string) (*fileLock, error) {
	return lockFileAt(path+".lock", true)
}

// lockFileShared approximates a shared-mode lock on Windows with the same
// exclusive LockFileEx call — Windows offers no portable read-lock
// byte-range primitive here, so shared mode degrades to mutual exclusion
// between processes, which is still correct, just not concurrent for
// readers.
func lockFileShared(path string) (*fileLock, error) {
	return lockFileAt(path, true)
}

// lockFileExclusiveAt blocks until it can take an exclusive lock at an
// arbitrary path (used for the shared-mode writer handoff).
func lockFileExclusiveAt(path string) (*fileLock, error) {
	return lockFileAt(path, false)
}

func sharedModeSupported() bool { return true }

func lockFileAt(lockPath string, failImmediate bool) (*fileLock, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("filelock: cannot open lock file: %w", err)
	}

	flags := uintptr(lockfileExclusiveLock)
	if failImmediate {
		flags |= lockfileFailImmediate
	}
	ol := new(syscall.Overlapped)
	r1, _, callErr := procLockFileEx.Call(f.Fd(), flags, 0, 1, 0, uintptr(unsafe.Pointer(ol)))
	if r1 == 0 {
		f.Close()
		return nil, fmt.Errorf("filelock: %q is locked by another process: %w", lockPath, callErr)
	}

	return &fileLock{file: f}, nil
}

// unlock releases the file lock.
func (fl *fileLock) unlock() error {
	if fl.file == nil {
		return nil
	}
	ol := new(syscall.Overlapped)
	procUnlockFileEx.Call(
		fl.file.Fd(),
		0,
		1, 0,
		uintptr(unsafe.Pointer(ol)),
	)
	name := fl.file.Name()
	err := fl.file.Close()
	os.Remove(name)
	return err
}
