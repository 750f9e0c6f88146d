// Package mergemeta computes the catalog metadata of a file merged from a
// list of inputs.
package mergemeta

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/yungbote/samerge/internal/catalog"
	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
)

// Source is the part of the catalog the calculator reads.
type Source interface {
	GetMetadata(ctx context.Context, name string) (*catalog.Metadata, error)
}

// skipped keys describe a single physical file or are recomputed. Blinding
// keys are dropped so merged files start unblinded.
var skipped = map[string]bool{
	"file_name":             true,
	"file_id":               true,
	"file_size":             true,
	"checksum":              true,
	"create_date":           true,
	"update_date":           true,
	"update_user":           true,
	"parents":               true,
	"start_time":            true,
	"end_time":              true,
	"ub_blinding.blind":     true,
	"ub_blinding.processed": true,
	"merge.merge":           true,
	"merge.merged":          true,
}

// firstWins lists keys whose values may differ between inputs; the first
// input's value is kept.
var firstWins = map[string]bool{
	"user": true,
}

const timeLayout = "2006-01-02T15:04:05+00:00"

type Options struct {
	// ProcessID is recorded as process_id when non-nil.
	ProcessID *int
	Now       time.Time
}

type merger struct {
	out        map[string]any
	firstEvent *float64
	lastEvent  *float64
	events     *float64
	pot        *float64
	runs       []any
}

// Merge fetches the metadata of every file in names and folds it into the
// metadata of their merge. Non-aggregated keys must agree across inputs.
func Merge(ctx context.Context, src Source, names []string, opts Options) (map[string]any, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no input files", apperrors.ErrInvalidArgument)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	m := &merger{out: map[string]any{}}
	stamp := now.UTC().Format(timeLayout)
	m.out["start_time"] = stamp
	m.out["end_time"] = stamp
	if opts.ProcessID != nil {
		m.out["process_id"] = *opts.ProcessID
	}

	parents := make([]any, 0, len(names))
	for _, name := range names {
		parents = append(parents, map[string]any{"file_name": name})
		md, err := src.GetMetadata(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("metadata of %s: %w", name, err)
		}
		if err := m.add(name, md.Raw); err != nil {
			return nil, err
		}
	}

	setNum(m.out, "first_event", m.firstEvent)
	setNum(m.out, "last_event", m.lastEvent)
	setNum(m.out, "event_count", m.events)
	setNum(m.out, "mc.pot", m.pot)
	if len(m.runs) > 0 {
		m.out["runs"] = m.runs
	}
	m.out["parents"] = parents
	return m.out, nil
}

func (m *merger) add(name string, raw map[string]any) error {
	for key, val := range raw {
		if skipped[key] {
			continue
		}
		switch key {
		case "first_event":
			if v, ok := num(val); ok && (m.firstEvent == nil || v < *m.firstEvent) {
				m.firstEvent = &v
			}
			continue
		case "last_event":
			if v, ok := num(val); ok && (m.lastEvent == nil || v > *m.lastEvent) {
				m.lastEvent = &v
			}
			continue
		case "event_count":
			m.events = sum(m.events, val)
			continue
		case "mc.pot":
			m.pot = sum(m.pot, val)
			continue
		case "runs":
			list, _ := val.([]any)
			for _, r := range list {
				if !containsValue(m.runs, r) {
					m.runs = append(m.runs, r)
				}
			}
			continue
		}

		prev, seen := m.out[key]
		switch {
		case !seen:
			m.out[key] = val
		case reflect.DeepEqual(prev, val), firstWins[key]:
		default:
			return fmt.Errorf("%w: %s disagrees on %s (%v != %v)", apperrors.ErrInvalidArgument, name, key, val, prev)
		}
	}
	return nil
}

func setNum(out map[string]any, key string, v *float64) {
	if v != nil {
		out[key] = *v
	}
}

func sum(acc *float64, val any) *float64 {
	v, ok := num(val)
	if !ok {
		return acc
	}
	if acc != nil {
		v += *acc
	}
	return &v
}

func num(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func containsValue(list []any, v any) bool {
	for _, x := range list {
		if reflect.DeepEqual(x, v) {
			return true
		}
	}
	return false
}

// ReadFileList reads one file name per line, ignoring blank lines.
func ReadFileList(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names, sc.Err()
}
