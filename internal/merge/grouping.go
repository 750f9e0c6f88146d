package merge

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/samerge/internal/catalog"
	types "github.com/yungbote/samerge/internal/domain/merge"
	"github.com/yungbote/samerge/internal/pkg/dbctx"
)

// ClassifyFile returns the id of the merge group for md's 8-tuple, creating
// the group on first sight. The bool reports creation.
func (e *Engine) ClassifyFile(ctx context.Context, md *catalog.Metadata) (uint, bool, error) {
	g, created, err := e.groups.GetOrCreate(dbctx.Context{Ctx: ctx}, md.GroupKey())
	if err != nil {
		return 0, false, fmt.Errorf("classify %s: %w", md.FileName, err)
	}
	if created {
		e.stats.GroupsCreated.Inc()
	}
	return g.ID, created, nil
}

// DiscoverEligibleFiles records mergeable catalog files not yet in the local
// store and returns their names. It never mutates the catalog. A catalog
// listing failure ends discovery for this run without an error; store
// failures are returned.
func (e *Engine) DiscoverEligibleFiles(ctx context.Context) ([]string, error) {
	dbc := dbctx.Context{Ctx: ctx}
	log := e.log.With("phase", "discover")

	dims := catalog.MergeableDims(e.cfg.DefName, e.cfg.QueryLimit)
	names, err := e.cat.ListFiles(ctx, dims)
	if err != nil {
		log.Warn("listing mergeable files failed", "dims", dims, "error", err)
		return nil, nil
	}
	log.Debug("mergeable files listed", "count", len(names))

	known, err := e.files.ExistingNames(dbc, names)
	if err != nil {
		return nil, err
	}
	unassigned, err := e.files.CountUnassigned(dbc)
	if err != nil {
		return nil, err
	}

	var added []string
	newGroups := 0
	for _, name := range names {
		if known[name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if e.cfg.FileLimit > 0 && unassigned >= int64(e.cfg.FileLimit) {
			log.Info("unassigned file limit reached", "limit", e.cfg.FileLimit)
			break
		}

		md, err := e.cat.GetMetadata(ctx, name)
		if err != nil {
			log.Warn("skipping file without usable metadata", "file", name, "error", err)
			e.stats.FilesSkipped.Inc()
			continue
		}

		if e.cfg.MaxGroups > 0 && newGroups >= e.cfg.MaxGroups {
			g, err := e.groups.Find(dbc, md.GroupKey())
			if err != nil {
				return added, err
			}
			if g == nil {
				log.Debug("new group limit reached, deferring file", "file", name)
				continue
			}
		}

		groupID, created, err := e.ClassifyFile(ctx, md)
		if err != nil {
			return added, err
		}
		if created {
			newGroups++
		}

		row := &types.UnmergedFile{
			Name:       name,
			GroupID:    groupID,
			Size:       md.FileSize,
			CreateDate: md.CreateDate,
			Parents:    datatypes.JSONSlice[string](md.Parents),
		}
		if err := e.files.Create(dbc, row); err != nil {
			return added, fmt.Errorf("record %s: %w", name, err)
		}
		known[name] = true
		unassigned++
		added = append(added, name)
		e.stats.FilesDiscovered.Inc()
	}
	log.Info("discovery done", "added", len(added), "new_groups", newGroups)
	return added, nil
}

// Plan is one batch closed by PlanMerges.
type Plan struct {
	GroupID uint
	ItemID  uint
	FileIDs []uint
	Size    int64
}

// PlanMerges packs every group's unassigned files into READY work items,
// groups in ascending id order.
func (e *Engine) PlanMerges(ctx context.Context) ([]Plan, error) {
	dbc := dbctx.Context{Ctx: ctx}
	now := e.now()

	groupIDs, err := e.groups.ListIDsWithUnassigned(dbc)
	if err != nil {
		return nil, err
	}

	var plans []Plan
	for _, gid := range groupIDs {
		files, err := e.files.ListUnassignedByGroup(dbc, gid)
		if err != nil {
			return plans, err
		}
		for _, b := range PackBatches(files, e.cfg.MaxSize, e.cfg.MinSize, e.cfg.MaxCount, e.cfg.MaxAge, now) {
			p, err := e.createItem(ctx, gid, b)
			if err != nil {
				return plans, err
			}
			plans = append(plans, p)
		}
	}
	if len(plans) > 0 {
		e.log.Info("planned merges", "items", len(plans))
	}
	return plans, nil
}

func (e *Engine) createItem(ctx context.Context, groupID uint, files []*types.UnmergedFile) (Plan, error) {
	p := Plan{GroupID: groupID}
	for _, f := range files {
		p.FileIDs = append(p.FileIDs, f.ID)
		p.Size += f.Size
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		item := &types.MergeItem{GroupID: groupID, Status: types.StatusReady}
		if err := e.items.Create(dbc, item); err != nil {
			return err
		}
		n, err := e.files.AssignToItem(dbc, p.FileIDs, item.ID)
		if err != nil {
			return err
		}
		if n != int64(len(p.FileIDs)) {
			return fmt.Errorf("assigned %d of %d files to item %d", n, len(p.FileIDs), item.ID)
		}
		p.ItemID = item.ID
		return nil
	})
	if err != nil {
		return Plan{}, fmt.Errorf("create item for group %d: %w", groupID, err)
	}
	e.stats.ItemsPlanned.Inc()
	e.log.Debug("work item created", "item_id", p.ItemID, "group_id", groupID, "files", len(p.FileIDs), "bytes", p.Size)
	return p, nil
}

// PackBatches splits files (oldest first) greedily. A batch closes before a
// file that would push it past maxSize, and as soon as it holds maxCount
// files when maxCount is positive. A single file larger than maxSize forms
// its own batch. The trailing batch is kept only if it reaches minSize or
// its oldest file is older than maxAge.
func PackBatches(files []*types.UnmergedFile, maxSize, minSize int64, maxCount int, maxAge time.Duration, now time.Time) [][]*types.UnmergedFile {
	var out [][]*types.UnmergedFile
	var cur []*types.UnmergedFile
	var total int64
	for _, f := range files {
		if len(cur) > 0 && total+f.Size > maxSize {
			out = append(out, cur)
			cur, total = nil, 0
		}
		cur = append(cur, f)
		total += f.Size
		if maxCount > 0 && len(cur) >= maxCount {
			out = append(out, cur)
			cur, total = nil, 0
		}
	}
	if len(cur) == 0 {
		return out
	}
	oldest := cur[0].CreateDate
	for _, f := range cur[1:] {
		if f.CreateDate.Before(oldest) {
			oldest = f.CreateDate
		}
	}
	if total >= minSize || now.Sub(oldest) > maxAge {
		out = append(out, cur)
	}
	return out
}
