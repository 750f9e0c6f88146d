// Package filelock holds an exclusive advisory lock on a file for the
// lifetime of the process.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
)

type Lock struct {
	f    *os.File
	path string
}

// TryLock takes a non-blocking exclusive lock on name. When another process
// holds it the returned error wraps apperrors.ErrLocked.
func TryLock(name string) (*Lock, error) {
	name, err := filepath.Abs(name)
	if err != nil {
		return nil, err
	}
	for {
		fp, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open lock file: %w", err)
		}
		if err := unix.Flock(int(fp.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			fp.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, fmt.Errorf("%w: %s", apperrors.ErrLocked, name)
			}
			return nil, fmt.Errorf("flock %s: %w", name, err)
		}
		// The previous holder may have unlinked the file between our open and
		// flock. Retry against the current inode.
		var nfi, ofi os.FileInfo
		nfi, err = os.Stat(name)
		if err == nil {
			ofi, err = fp.Stat()
		}
		if err == nil && os.SameFile(nfi, ofi) {
			_ = fp.Truncate(0)
			_, _ = fp.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			return &Lock{f: fp, path: name}, nil
		}
		fp.Close()
	}
}

func (l *Lock) Path() string { return l.path }

// Unlock removes the lock file and releases the lock.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.f.Close()
	l.f = nil
	return err
}
