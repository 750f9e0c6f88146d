// Package localdisk is the engine's view of the mounted storage where
// unmerged files live.
package localdisk

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/yungbote/samerge/internal/platform/logger"
)

type Disk interface {
	Exists(path string) (bool, error)
	Remove(path string) error
}

// OS resolves existence through a per-directory listing cache so a RESET of a
// large work item costs one readdir per directory, not one stat per file.
type OS struct {
	log *logger.Logger

	mu   sync.Mutex
	dirs map[string]map[string]bool
}

func NewOS(log *logger.Logger) *OS {
	return &OS{log: log.With("component", "localdisk"), dirs: map[string]map[string]bool{}}
}

func (d *OS) Exists(path string) (bool, error) {
	dir, base := filepath.Split(filepath.Clean(path))
	d.mu.Lock()
	defer d.mu.Unlock()
	names, ok := d.dirs[dir]
	if !ok {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			names = map[string]bool{}
		} else if err != nil {
			return false, err
		} else {
			names = make(map[string]bool, len(entries))
			for _, e := range entries {
				names[e.Name()] = true
			}
		}
		d.dirs[dir] = names
	}
	return names[base], nil
}

// Remove deletes path. A file that is already gone is not an error.
func (d *OS) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	dir, base := filepath.Split(filepath.Clean(path))
	d.mu.Lock()
	if names, ok := d.dirs[dir]; ok {
		delete(names, base)
	}
	d.mu.Unlock()
	d.log.Debug("removed disk copy", "path", path)
	return nil
}
