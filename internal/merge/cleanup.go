package merge

import (
	"context"

	"github.com/yungbote/samerge/internal/catalog"
	types "github.com/yungbote/samerge/internal/domain/merge"
	"github.com/yungbote/samerge/internal/pkg/dbctx"
)

// cleanupMembers retires every member of a LOCATED item: the catalog record
// is flagged merged, disk copies and their locations are removed and the
// store row is deleted. done is false when any member must be retried.
func (e *Engine) cleanupMembers(ctx context.Context, item *types.MergeItem) (done bool, cleaned int, err error) {
	dbc := dbctx.Context{Ctx: ctx}
	members, err := e.files.ListByItem(dbc, item.ID)
	if err != nil {
		return false, 0, err
	}
	log := e.log.With("item_id", item.ID, "output", item.Name)
	done = true
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return false, cleaned, err
		}
		if !e.retireFile(ctx, m.Name) {
			done = false
			continue
		}
		if err := e.files.Delete(dbc, m.ID); err != nil {
			return false, cleaned, err
		}
		cleaned++
		e.stats.FilesCleaned.Inc()
	}
	if !done {
		log.Info("cleanup incomplete, item stays located", "cleaned", cleaned, "members", len(members))
	}
	return done, cleaned, nil
}

func (e *Engine) retireFile(ctx context.Context, name string) bool {
	log := e.log.With("file", name)
	if err := e.cat.ModifyMetadata(ctx, name, map[string]any{"merge.merged": 1}); err != nil && !catalog.IsNotFound(err) {
		log.Warn("flagging file merged failed", "error", err)
		return false
	}
	locs, err := e.cat.LocateFile(ctx, name)
	if err != nil && !catalog.IsNotFound(err) {
		log.Warn("locating file failed", "error", err)
		return false
	}
	for _, l := range locs {
		if !l.IsDisk() {
			continue
		}
		path := l.DiskPath(name)
		if err := e.disk.Remove(path); err != nil {
			log.Warn("removing disk copy failed", "path", path, "error", err)
			return false
		}
		if err := e.cat.RemoveFileLocation(ctx, name, l.FullPath); err != nil && !catalog.IsNotFound(err) {
			log.Warn("removing location failed", "location", l.FullPath, "error", err)
			return false
		}
	}
	return true
}

// CollectGroups deletes groups no file references any more.
func (e *Engine) CollectGroups(ctx context.Context) (int64, error) {
	n, err := e.groups.DeleteUnreferenced(dbctx.Context{Ctx: ctx})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.stats.GroupsCollected.Add(float64(n))
		e.log.Info("empty merge groups deleted", "count", n)
	}
	return n, nil
}
