// Package catalogtest provides an in-memory catalog for engine tests.
package catalogtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/samerge/internal/catalog"
)

type Fake struct {
	mu sync.Mutex

	// Mergeable is what ListFiles returns, in order.
	Mergeable   []string
	Metadata    map[string]map[string]any
	Locations   map[string][]catalog.Location
	Definitions map[string]string
	Projects    map[string]*catalog.ProjectSummary
	Modified    map[string]map[string]any
	Stopped     []string
	Queries     []string

	// Errs injects a failure for "<op>" or "<op>:<name>".
	Errs  map[string]error
	Calls map[string]int
}

func New() *Fake {
	return &Fake{
		Metadata:    map[string]map[string]any{},
		Locations:   map[string][]catalog.Location{},
		Definitions: map[string]string{},
		Projects:    map[string]*catalog.ProjectSummary{},
		Modified:    map[string]map[string]any{},
		Errs:        map[string]error{},
		Calls:       map[string]int{},
	}
}

// AddFile registers a mergeable file with a disk location under mount.
func (f *Fake) AddFile(name string, md map[string]any, mount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	md["file_name"] = name
	f.Metadata[name] = md
	f.Mergeable = append(f.Mergeable, name)
	if mount != "" {
		f.Locations[name] = append(f.Locations[name], catalog.Location{
			Type:       catalog.LocationDisk,
			FullPath:   "dcache:" + mount,
			Location:   mount,
			MountPoint: mount,
		})
	}
}

// Declare registers an output file as it would appear after a merge job.
func (f *Fake) Declare(name string, created time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Metadata[name] = map[string]any{
		"file_name":   name,
		"file_type":   "data",
		"file_format": "artroot",
		"data_tier":   "reconstructed",
		"file_size":   float64(1),
		"create_date": created.UTC().Format("2006-01-02T15:04:05+00:00"),
	}
}

func (f *Fake) AddTape(name, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Locations[name] = append(f.Locations[name], catalog.Location{
		Type:     catalog.LocationTape,
		FullPath: "enstore:" + path,
		Location: path,
	})
}

func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

func (f *Fake) call(op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[op]++
	if err, ok := f.Errs[op+":"+name]; ok {
		return err
	}
	return f.Errs[op]
}

func (f *Fake) ListFiles(ctx context.Context, dims string) ([]string, error) {
	if err := f.call("ListFiles", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries = append(f.Queries, dims)
	var out []string
	for _, name := range f.Mergeable {
		mod := f.Modified[name]
		if v, ok := mod["merge.merged"]; ok && fmt.Sprint(v) == "1" {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func (f *Fake) GetMetadata(ctx context.Context, name string) (*catalog.Metadata, error) {
	if err := f.call("GetMetadata", name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	raw, ok := f.Metadata[name]
	f.mu.Unlock()
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return catalog.ParseMetadata(raw)
}

func (f *Fake) ModifyMetadata(ctx context.Context, name string, changes map[string]any) error {
	if err := f.call("ModifyMetadata", name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Modified[name] == nil {
		f.Modified[name] = map[string]any{}
	}
	for k, v := range changes {
		f.Modified[name][k] = v
	}
	return nil
}

func (f *Fake) LocateFile(ctx context.Context, name string) ([]catalog.Location, error) {
	if err := f.call("LocateFile", name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.Location(nil), f.Locations[name]...), nil
}

func (f *Fake) AddFileLocation(ctx context.Context, name, location string) error {
	if err := f.call("AddFileLocation", name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Locations[name] = append(f.Locations[name], catalog.Location{
		Type:       catalog.LocationDisk,
		FullPath:   location,
		Location:   location,
		MountPoint: location,
	})
	return nil
}

func (f *Fake) RemoveFileLocation(ctx context.Context, name, location string) error {
	if err := f.call("RemoveFileLocation", name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.Locations[name][:0]
	for _, l := range f.Locations[name] {
		if l.FullPath != location {
			kept = append(kept, l)
		}
	}
	f.Locations[name] = kept
	return nil
}

func (f *Fake) CreateDefinition(ctx context.Context, defname, dims string) error {
	if err := f.call("CreateDefinition", defname); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Definitions[defname] = dims
	return nil
}

func (f *Fake) StartProject(ctx context.Context, project, defname string) error {
	if err := f.call("StartProject", project); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	f.Projects[project] = &catalog.ProjectSummary{Name: project, Status: "running", StartTime: &now}
	return nil
}

func (f *Fake) StopProject(ctx context.Context, project string) error {
	if err := f.call("StopProject", project); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = append(f.Stopped, project)
	if p, ok := f.Projects[project]; ok {
		now := time.Now().UTC()
		p.Status = "stopped"
		p.EndTime = &now
	}
	return nil
}

// EndProject marks a project as ended at the given time.
func (f *Fake) EndProject(project string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Projects[project]
	if !ok {
		p = &catalog.ProjectSummary{Name: project}
		f.Projects[project] = p
	}
	p.Status = "completed"
	p.EndTime = &at
}

func (f *Fake) ProjectSummary(ctx context.Context, project string) (*catalog.ProjectSummary, error) {
	if err := f.call("ProjectSummary", project); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Projects[project]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// DefinitionFiles returns the file names a definition created by
// catalog.FileNameDims selects.
func (f *Fake) DefinitionFiles(defname string) []string {
	f.mu.Lock()
	dims := f.Definitions[defname]
	f.mu.Unlock()
	dims = strings.TrimPrefix(dims, "file_name ")
	var out []string
	for _, part := range strings.Split(dims, ",") {
		if part = strings.Trim(part, "'"); part != "" {
			out = append(out, part)
		}
	}
	sort.Strings(out)
	return out
}
