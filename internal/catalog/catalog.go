// Package catalog describes the slice of the SAM file catalog the merge
// engine consumes. Implementations live elsewhere (samweb over HTTP, an
// in-memory fake for tests); the engine only sees Catalog.
package catalog

import (
	"context"
	"path"
	"strconv"
	"strings"
	"time"
)

type Catalog interface {
	ListFiles(ctx context.Context, dims string) ([]string, error)
	GetMetadata(ctx context.Context, name string) (*Metadata, error)
	ModifyMetadata(ctx context.Context, name string, changes map[string]any) error
	LocateFile(ctx context.Context, name string) ([]Location, error)
	AddFileLocation(ctx context.Context, name, location string) error
	RemoveFileLocation(ctx context.Context, name, location string) error
	CreateDefinition(ctx context.Context, defname, dims string) error
	StartProject(ctx context.Context, project, defname string) error
	StopProject(ctx context.Context, project string) error
	ProjectSummary(ctx context.Context, project string) (*ProjectSummary, error)
}

const (
	LocationDisk = "disk"
	LocationTape = "tape"
)

type Location struct {
	Type       string `json:"location_type"`
	FullPath   string `json:"full_path"`
	Location   string `json:"location"`
	MountPoint string `json:"mount_point"`
	Subdir     string `json:"subdir"`
}

// OnTape reports whether the location is durable. Some sites register tape
// backed areas with a disk location type and a /tape/ path.
func (l Location) OnTape() bool {
	return l.Type == LocationTape || strings.Contains(l.Location, "/tape/")
}

// IsDisk reports whether the location is a plain disk copy that may be
// deleted once the file is safe elsewhere.
func (l Location) IsDisk() bool {
	return l.Type == LocationDisk && !strings.Contains(l.Location, "/tape/")
}

// DiskPath is the path of file under this location.
func (l Location) DiskPath(file string) string {
	return path.Join(l.MountPoint, l.Subdir, file)
}

type Consumer struct {
	ProcessID int    `json:"process_id"`
	Status    string `json:"status"`
}

type ProjectSummary struct {
	Name      string
	Status    string
	StartTime *time.Time
	EndTime   *time.Time
	Consumers []Consumer
}

// Ended reports whether the project has an end time.
func (p *ProjectSummary) Ended() bool {
	return p != nil && p.EndTime != nil && !p.EndTime.IsZero()
}

// FileNameDims builds a dimension selecting exactly the given files.
func FileNameDims(names []string) string {
	var b strings.Builder
	b.WriteString("file_name ")
	for i, n := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('\'')
		b.WriteString(n)
		b.WriteByte('\'')
	}
	return b.String()
}

// MergeableDims is the dimension of files eligible for merging.
func MergeableDims(defname string, limit int) string {
	var b strings.Builder
	b.WriteString("merge.merge 1 and merge.merged 0")
	if defname != "" {
		b.WriteString(" and defname: ")
		b.WriteString(defname)
	}
	b.WriteString(" with availability physical")
	if limit > 0 {
		b.WriteString(" with limit ")
		b.WriteString(strconv.Itoa(limit))
	}
	return b.String()
}
