package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/samerge/internal/domain/merge"
	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
)

type Run struct {
	Number  int
	Subrun  int
	RunType string
}

type Application struct {
	Family  string
	Name    string
	Version string
}

// Metadata is the typed subset of a catalog metadata record that the merge
// engine reads. Raw keeps the full record for consumers that aggregate
// arbitrary keys (merged-file metadata).
type Metadata struct {
	FileName      string
	FileType      string
	FileFormat    string
	DataTier      string
	DataStream    string
	Project       string
	Stage         string
	Version       string
	Runs          []Run
	FileSize      int64
	CreateDate    time.Time
	Parents       []string
	Application   Application
	Group         string
	ContentStatus string
	Raw           map[string]any
}

// GroupKey extracts the merge-group 8-tuple. Files without runs fall in run 0.
func (m *Metadata) GroupKey() merge.GroupKey {
	run := 0
	if len(m.Runs) > 0 {
		run = m.Runs[0].Number
	}
	return merge.GroupKey{
		FileType:   m.FileType,
		FileFormat: m.FileFormat,
		DataTier:   m.DataTier,
		DataStream: m.DataStream,
		Project:    m.Project,
		Stage:      m.Stage,
		Version:    m.Version,
		Run:        run,
	}
}

// RunType of the first run, empty when the file has no runs.
func (m *Metadata) RunType() string {
	if len(m.Runs) == 0 {
		return ""
	}
	return m.Runs[0].RunType
}

// ParseMetadata converts a raw catalog record. Records missing a field the
// engine depends on are rejected rather than defaulted.
func ParseMetadata(raw map[string]any) (*Metadata, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty metadata", apperrors.ErrInvalidArgument)
	}
	md := &Metadata{
		FileName:      str(raw["file_name"]),
		FileType:      str(raw["file_type"]),
		FileFormat:    str(raw["file_format"]),
		DataTier:      str(raw["data_tier"]),
		DataStream:    str(raw["data_stream"]),
		Project:       str(raw["ub_project.name"]),
		Stage:         str(raw["ub_project.stage"]),
		Version:       str(raw["ub_project.version"]),
		Group:         str(raw["group"]),
		ContentStatus: str(raw["content_status"]),
		Raw:           raw,
	}
	var missing []string
	for key, val := range map[string]string{
		"file_name":   md.FileName,
		"file_type":   md.FileType,
		"file_format": md.FileFormat,
		"data_tier":   md.DataTier,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}

	size, ok := toInt64(raw["file_size"])
	if !ok {
		missing = append(missing, "file_size")
	}
	md.FileSize = size

	created, err := ParseTime(str(raw["create_date"]))
	if err != nil {
		missing = append(missing, "create_date")
	}
	md.CreateDate = created

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: metadata for %q missing %s", apperrors.ErrInvalidArgument, md.FileName, strings.Join(missing, ","))
	}

	if runs, ok := raw["runs"].([]any); ok {
		for _, r := range runs {
			parts, ok := r.([]any)
			if !ok || len(parts) == 0 {
				continue
			}
			var run Run
			if n, ok := toInt64(parts[0]); ok {
				run.Number = int(n)
			}
			if len(parts) > 1 {
				if n, ok := toInt64(parts[1]); ok {
					run.Subrun = int(n)
				}
			}
			if len(parts) > 2 {
				run.RunType = str(parts[2])
			}
			md.Runs = append(md.Runs, run)
		}
	}

	if parents, ok := raw["parents"].([]any); ok {
		for _, p := range parents {
			switch v := p.(type) {
			case map[string]any:
				if name := str(v["file_name"]); name != "" {
					md.Parents = append(md.Parents, name)
				}
			case string:
				md.Parents = append(md.Parents, v)
			}
		}
	}

	if app, ok := raw["application"].(map[string]any); ok {
		md.Application = Application{
			Family:  str(app["family"]),
			Name:    str(app["name"]),
			Version: str(app["version"]),
		}
	}
	return md, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime parses catalog timestamps. Values without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", apperrors.ErrInvalidArgument)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad timestamp %q", apperrors.ErrInvalidArgument, s)
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case interface{ Int64() (int64, error) }:
		n, err := t.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
