package merge

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/samerge/internal/catalog"
	types "github.com/yungbote/samerge/internal/domain/merge"
	"github.com/yungbote/samerge/internal/pkg/dbctx"
	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
	"github.com/yungbote/samerge/internal/platform/logger"
)

// Reset reasons, used as the stats label.
const (
	ResetNoProject      = "no_project"
	ResetProjectMissing = "project_missing"
	ResetProjectEnded   = "project_ended"
	ResetFailed         = "failed"
)

type SweepReport struct {
	Handled      int
	Submitted    int
	Declared     int
	Located      int
	Failed       int
	Resets       int
	Finished     int
	Deleted      int
	FilesCleaned int
}

// Sweep visits every item whose status is enabled, in types.PollOrder, and
// advances each at most once. Catalog and batch failures leave the item
// where it is for the next sweep; local store failures abort the sweep.
func (e *Engine) Sweep(ctx context.Context, enabled map[types.Status]bool) (*SweepReport, error) {
	rep := &SweepReport{}
	handled := map[uint]bool{}
	dbc := dbctx.Context{Ctx: ctx}

	for _, st := range types.PollOrder {
		if !enabled[st] {
			continue
		}
		items, err := e.items.ListByStatus(dbc, st)
		if err != nil {
			return rep, err
		}
		if st == types.StatusReady {
			if err := e.submitReady(ctx, items, handled, rep); err != nil {
				return rep, err
			}
			continue
		}
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			if handled[item.ID] {
				continue
			}
			handled[item.ID] = true
			rep.Handled++
			if err := e.handle(ctx, item, rep); err != nil {
				return rep, fmt.Errorf("item %d (%s): %w", item.ID, item.Status, err)
			}
		}
	}
	return rep, nil
}

func (e *Engine) handle(ctx context.Context, item *types.MergeItem, rep *SweepReport) error {
	switch item.Status {
	case types.StatusError:
		return e.handleError(ctx, item, rep)
	case types.StatusFinished:
		if err := e.items.Delete(dbctx.Context{Ctx: ctx}, item.ID); err != nil {
			return err
		}
		rep.Deleted++
		e.log.Debug("finished work item deleted", "item_id", item.ID)
		return nil
	case types.StatusLocated:
		return e.handleLocated(ctx, item, rep)
	case types.StatusDeclared:
		return e.handleDeclared(ctx, item, rep)
	case types.StatusSubmitted:
		return e.handleSubmitted(ctx, item, rep)
	default:
		e.log.Warn("work item in unexpected status", "item_id", item.ID, "status", item.Status)
		return nil
	}
}

// submitReady submits READY items within this run's job budget and the
// global cap on in-flight projects. Failed attempts use up the budget too.
// A configuration error stops submission for the rest of the sweep.
func (e *Engine) submitReady(ctx context.Context, items []*types.MergeItem, handled map[uint]bool, rep *SweepReport) error {
	if len(items) == 0 {
		return nil
	}
	inFlight, err := e.items.CountInFlight(dbctx.Context{Ctx: ctx})
	if err != nil {
		return err
	}
	budget, attempts := 0, 0
	if e.tpl != nil {
		budget = e.tpl.NumJobs
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if handled[item.ID] {
			continue
		}
		if e.tpl != nil && attempts >= budget {
			e.log.Info("job budget for this run used", "num_jobs", budget, "submitted", rep.Submitted)
			return nil
		}
		if e.cfg.MaxProjects > 0 && inFlight+int64(rep.Submitted) >= int64(e.cfg.MaxProjects) {
			e.log.Info("in-flight project limit reached", "max_projects", e.cfg.MaxProjects, "in_flight", inFlight)
			return nil
		}
		handled[item.ID] = true
		rep.Handled++
		res, err := e.Submit(ctx, item.ID)
		switch {
		case errors.Is(err, apperrors.ErrConfig):
			e.log.Error("submission disabled for this run", "error", err)
			return nil
		case err != nil:
			attempts++
			e.log.Warn("submission failed, item stays ready", "item_id", item.ID, "error", err)
		case res != nil:
			attempts++
			rep.Submitted++
		}
	}
	return nil
}

func (e *Engine) handleSubmitted(ctx context.Context, item *types.MergeItem, rep *SweepReport) error {
	log := e.log.With("item_id", item.ID, "output", item.Name, "project", item.SamProject)
	md, err := e.cat.GetMetadata(ctx, item.Name)
	// A record that exists but does not parse is still a declared output.
	if err == nil || errors.Is(err, apperrors.ErrInvalidArgument) {
		created := e.now()
		if err != nil {
			log.Warn("merged output declared with incomplete metadata", "error", err)
		} else if !md.CreateDate.IsZero() {
			created = md.CreateDate
		}
		moved, err := e.advance(ctx, item, EventDeclare, map[string]interface{}{"output_created_at": created})
		if moved {
			rep.Declared++
			log.Info("merged output declared")
		}
		return err
	}
	if !catalog.IsNotFound(err) {
		log.Warn("checking merged output failed", "error", err)
		return nil
	}

	if !validProjectName(item.SamProject) {
		return e.reset(ctx, item, ResetNoProject, rep)
	}
	sum, err := e.cat.ProjectSummary(ctx, item.SamProject)
	switch {
	case catalog.IsNotFound(err):
		return e.reset(ctx, item, ResetProjectMissing, rep)
	case err != nil:
		log.Warn("project summary failed", "error", err)
		return nil
	}
	if sum.Ended() && e.now().Sub(*sum.EndTime) > e.cfg.projectGrace() {
		log.Info("project ended without a declared output", "end_time", sum.EndTime)
		return e.reset(ctx, item, ResetProjectEnded, rep)
	}
	return nil
}

func (e *Engine) handleDeclared(ctx context.Context, item *types.MergeItem, rep *SweepReport) error {
	log := e.log.With("item_id", item.ID, "output", item.Name)
	locs, err := e.cat.LocateFile(ctx, item.Name)
	if err != nil && !catalog.IsNotFound(err) {
		log.Warn("locating merged output failed", "error", err)
		return nil
	}
	for _, l := range locs {
		if l.OnTape() {
			moved, err := e.advance(ctx, item, EventLocate, nil)
			if moved {
				rep.Located++
				log.Info("merged output on tape", "location", l.FullPath)
			}
			return err
		}
	}
	if item.OutputCreatedAt == nil || e.now().Sub(*item.OutputCreatedAt) <= e.cfg.LocateTimeout {
		return nil
	}
	log.Warn("merged output never reached tape", "created", item.OutputCreatedAt, "timeout", e.cfg.LocateTimeout)
	moved, err := e.advance(ctx, item, EventFail, nil)
	if err != nil || !moved {
		return err
	}
	rep.Failed++
	item.Status = types.StatusError
	return e.handleError(ctx, item, rep)
}

// handleError flags the merged output bad and returns the members to the
// planner.
func (e *Engine) handleError(ctx context.Context, item *types.MergeItem, rep *SweepReport) error {
	if item.Name != "" {
		err := e.cat.ModifyMetadata(ctx, item.Name, map[string]any{"content_status": "bad"})
		switch {
		case err == nil, catalog.IsNotFound(err):
		case catalog.IsTransient(err):
			e.log.Warn("flagging merged output bad failed, retrying next run", "item_id", item.ID, "output", item.Name, "error", err)
			return nil
		default:
			e.log.Error("flagging merged output bad failed", "item_id", item.ID, "output", item.Name, "error", err)
		}
	}
	return e.reset(ctx, item, ResetFailed, rep)
}

func (e *Engine) handleLocated(ctx context.Context, item *types.MergeItem, rep *SweepReport) error {
	done, cleaned, err := e.cleanupMembers(ctx, item)
	rep.FilesCleaned += cleaned
	if err != nil || !done {
		return err
	}
	moved, err := e.advance(ctx, item, EventFinish, nil)
	if moved {
		rep.Finished++
		e.log.Info("work item finished", "item_id", item.ID, "output", item.Name)
	}
	return err
}

// advance applies event to item and persists the new status guarded on the
// old one. It reports false if the item had already moved.
func (e *Engine) advance(ctx context.Context, item *types.MergeItem, event string, updates map[string]interface{}) (bool, error) {
	to, err := Next(ctx, item.Status, event)
	if err != nil {
		return false, err
	}
	ok, err := e.items.TransitionStatus(dbctx.Context{Ctx: ctx}, item.ID, item.Status, to, updates)
	if err != nil || !ok {
		return false, err
	}
	e.stats.transition(item.Status, to)
	item.Status = to
	return true, nil
}

// reset returns the members of item to the unassigned pool and deletes the
// item. Members whose every catalog location is gone are dropped from the
// store instead.
func (e *Engine) reset(ctx context.Context, item *types.MergeItem, reason string, rep *SweepReport) error {
	if !Can(item.Status, EventReset) {
		return fmt.Errorf("%w: cannot reset item in status %s", apperrors.ErrInvalidArgument, item.Status)
	}
	log := e.log.With("item_id", item.ID, "reason", reason)
	members, err := e.files.ListByItem(dbctx.Context{Ctx: ctx}, item.ID)
	if err != nil {
		return err
	}
	var lost []*types.UnmergedFile
	for _, m := range members {
		if remaining, known := e.repairLocations(ctx, log, m.Name); known && remaining == 0 {
			lost = append(lost, m)
		}
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		for _, m := range lost {
			if err := e.files.Delete(dbc, m.ID); err != nil {
				return err
			}
		}
		if _, err := e.files.UnassignItem(dbc, item.ID); err != nil {
			return err
		}
		return e.items.Delete(dbc, item.ID)
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	e.stats.Resets.WithLabelValues(reason).Inc()
	rep.Resets++
	log.Info("work item reset", "members", len(members), "dropped", len(lost))
	return nil
}

// repairLocations removes catalog disk locations of name whose file is no
// longer on disk. It returns how many locations remain; known is false when
// the catalog could not be asked.
func (e *Engine) repairLocations(ctx context.Context, log *logger.Logger, name string) (remaining int, known bool) {
	locs, err := e.cat.LocateFile(ctx, name)
	if catalog.IsNotFound(err) {
		return 0, true
	}
	if err != nil {
		log.Warn("locating member failed", "file", name, "error", err)
		return 0, false
	}
	for _, l := range locs {
		if !l.IsDisk() {
			remaining++
			continue
		}
		exists, err := e.disk.Exists(l.DiskPath(name))
		if err != nil || exists {
			remaining++
			continue
		}
		if err := e.cat.RemoveFileLocation(ctx, name, l.FullPath); err != nil && !catalog.IsNotFound(err) {
			log.Warn("removing stale location failed", "file", name, "location", l.FullPath, "error", err)
			remaining++
			continue
		}
		log.Info("removed stale location", "file", name, "location", l.FullPath)
	}
	return remaining, true
}
