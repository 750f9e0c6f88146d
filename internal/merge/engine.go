// Package merge is the merge engine: it discovers mergeable catalog files,
// packs them into work items, submits merge jobs and walks every work item
// through its lifecycle until the inputs can be retired.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/samerge/internal/batch"
	"github.com/yungbote/samerge/internal/catalog"
	"github.com/yungbote/samerge/internal/data/repos/merges"
	types "github.com/yungbote/samerge/internal/domain/merge"
	"github.com/yungbote/samerge/internal/jobtemplate"
	"github.com/yungbote/samerge/internal/pkg/dbctx"
	"github.com/yungbote/samerge/internal/platform/ctxutil"
	"github.com/yungbote/samerge/internal/platform/localdisk"
	"github.com/yungbote/samerge/internal/platform/logger"
)

type Deps struct {
	Log     *logger.Logger
	DB      *gorm.DB
	Groups  merges.GroupRepo
	Files   merges.FileRepo
	Items   merges.ItemRepo
	Catalog catalog.Catalog
	Batch   batch.Gateway
	Disk    localdisk.Disk
	// Template may be nil; submission then fails with a configuration error.
	Template *jobtemplate.Template
	Stats    *Stats
	Now      func() time.Time
	NewID    func() uuid.UUID
}

type Engine struct {
	cfg    Config
	log    *logger.Logger
	db     *gorm.DB
	groups merges.GroupRepo
	files  merges.FileRepo
	items  merges.ItemRepo
	cat    catalog.Catalog
	batch  batch.Gateway
	disk   localdisk.Disk
	tpl    *jobtemplate.Template
	stats  *Stats
	now    func() time.Time
	newID  func() uuid.UUID
}

func New(cfg Config, d Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case d.Log == nil:
		return nil, fmt.Errorf("merge engine: logger required")
	case d.DB == nil || d.Groups == nil || d.Files == nil || d.Items == nil:
		return nil, fmt.Errorf("merge engine: store required")
	case d.Catalog == nil:
		return nil, fmt.Errorf("merge engine: catalog required")
	case d.Batch == nil:
		return nil, fmt.Errorf("merge engine: batch gateway required")
	case d.Disk == nil:
		return nil, fmt.Errorf("merge engine: disk required")
	}
	if d.Stats == nil {
		d.Stats = NewStats()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.New
	}
	return &Engine{
		cfg:    cfg,
		log:    d.Log.With("component", "MergeEngine"),
		db:     d.DB,
		groups: d.Groups,
		files:  d.Files,
		items:  d.Items,
		cat:    d.Catalog,
		batch:  d.Batch,
		disk:   d.Disk,
		tpl:    d.Template,
		stats:  d.Stats,
		now:    d.Now,
		newID:  d.NewID,
	}, nil
}

func (e *Engine) Stats() *Stats { return e.stats }

type Report struct {
	RunID           string
	Discovered      int
	Planned         int
	Sweep           SweepReport
	GroupsCollected int64
	Elapsed         time.Duration
}

// Run executes the enabled phases once. Per-item failures are logged and
// left for the next run; only local store failures are returned.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	rd := &ctxutil.RunData{RunID: e.newID().String()}
	ctx = ctxutil.WithRunData(ctx, rd)
	log := e.log.With("run_id", rd.RunID)
	phases := e.cfg.Phases.Normalize()
	rep := &Report{RunID: rd.RunID}

	if phases.Discover {
		rd.Phase = "discover"
		added, err := e.DiscoverEligibleFiles(ctx)
		rep.Discovered = len(added)
		if err != nil {
			return rep, fmt.Errorf("discover: %w", err)
		}
		plans, err := e.PlanMerges(ctx)
		rep.Planned = len(plans)
		if err != nil {
			return rep, fmt.Errorf("plan: %w", err)
		}
	}

	enabled := map[types.Status]bool{}
	if phases.Submit {
		for _, st := range []types.Status{types.StatusError, types.StatusDeclared, types.StatusSubmitted, types.StatusReady} {
			enabled[st] = true
		}
	}
	if phases.Cleanup {
		enabled[types.StatusFinished] = true
		enabled[types.StatusLocated] = true
	}
	if len(enabled) > 0 {
		rd.Phase = "sweep"
		sweep, err := e.Sweep(ctx, enabled)
		if sweep != nil {
			rep.Sweep = *sweep
		}
		if err != nil {
			return rep, fmt.Errorf("sweep: %w", err)
		}
	}

	if phases.Cleanup {
		rd.Phase = "cleanup"
		n, err := e.CollectGroups(ctx)
		if err != nil {
			return rep, fmt.Errorf("collect groups: %w", err)
		}
		rep.GroupsCollected = n
	}

	if counts, err := e.items.CountByStatus(dbctx.Context{Ctx: ctx}); err == nil {
		e.stats.setItemCounts(counts)
	}
	e.stats.LastRunTimestamp.Set(float64(e.now().Unix()))
	rep.Elapsed = time.Since(start)
	log.Info("run complete",
		"discovered", rep.Discovered,
		"planned", rep.Planned,
		"handled", rep.Sweep.Handled,
		"submitted", rep.Sweep.Submitted,
		"resets", rep.Sweep.Resets,
		"finished", rep.Sweep.Finished,
		"groups_collected", rep.GroupsCollected,
		"elapsed", rep.Elapsed,
	)
	return rep, nil
}

// Summary is the store content reported by the status command.
type Summary struct {
	Groups     int64
	Unassigned int64
	Items      map[types.Status]int64
}

func (e *Engine) Summary(ctx context.Context) (*Summary, error) {
	dbc := dbctx.Context{Ctx: ctx}
	groups, err := e.groups.Count(dbc)
	if err != nil {
		return nil, err
	}
	free, err := e.files.CountUnassigned(dbc)
	if err != nil {
		return nil, err
	}
	items, err := e.items.CountByStatus(dbc)
	if err != nil {
		return nil, err
	}
	return &Summary{Groups: groups, Unassigned: free, Items: items}, nil
}
