package merge

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// ArchiveEntry is an in-memory file placed in the job archive.
type ArchiveEntry struct {
	Name string
	Body []byte
}

// BuildArchive writes a gzip tar into dir holding entries followed by the
// helper files (stored under their base names). The caller removes the
// returned path once the submission has uploaded it.
func BuildArchive(dir string, entries []ArchiveEntry, helpers []string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive dir: %w", err)
	}
	path := filepath.Join(dir, "work"+uuid.NewString()+".tar.gz")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			f.Close()
			_ = os.Remove(path)
		}
	}()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Size: int64(len(e.Body)), ModTime: now}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", fmt.Errorf("archive %s: %w", e.Name, err)
		}
		if _, err := tw.Write(e.Body); err != nil {
			return "", fmt.Errorf("archive %s: %w", e.Name, err)
		}
	}
	for _, h := range helpers {
		if err := addFile(tw, h); err != nil {
			return "", err
		}
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("close gzip: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	ok = true
	return path, nil
}

func addFile(tw *tar.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("helper %s: %w", path, err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("helper %s: %w", path, err)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("helper %s: %w", path, err)
	}
	hdr.Name = filepath.Base(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("helper %s: %w", path, err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("helper %s: %w", path, err)
	}
	return nil
}
