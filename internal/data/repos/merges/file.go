package merges

import (
	"gorm.io/gorm"

	types "github.com/yungbote/samerge/internal/domain/merge"
	"github.com/yungbote/samerge/internal/pkg/dbctx"
	"github.com/yungbote/samerge/internal/platform/logger"
)

type FileRepo interface {
	Create(dbc dbctx.Context, f *types.UnmergedFile) error
	ExistingNames(dbc dbctx.Context, names []string) (map[string]bool, error)
	CountUnassigned(dbc dbctx.Context) (int64, error)
	ListUnassignedByGroup(dbc dbctx.Context, groupID uint) ([]*types.UnmergedFile, error)
	ListByItem(dbc dbctx.Context, itemID uint) ([]*types.UnmergedFile, error)
	AssignToItem(dbc dbctx.Context, ids []uint, itemID uint) (int64, error)
	UnassignItem(dbc dbctx.Context, itemID uint) (int64, error)
	Delete(dbc dbctx.Context, id uint) error
}

type fileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileRepo(db *gorm.DB, baseLog *logger.Logger) FileRepo {
	return &fileRepo{
		db:  db,
		log: baseLog.With("repo", "FileRepo"),
	}
}

func (r *fileRepo) Create(dbc dbctx.Context, f *types.UnmergedFile) error {
	return dbc.DB(r.db).Create(f).Error
}

// sqlite caps bound parameters per statement.
const nameChunk = 500

func (r *fileRepo) ExistingNames(dbc dbctx.Context, names []string) (map[string]bool, error) {
	out := make(map[string]bool, len(names))
	for start := 0; start < len(names); start += nameChunk {
		end := start + nameChunk
		if end > len(names) {
			end = len(names)
		}
		var found []string
		if err := dbc.DB(r.db).
			Model(&types.UnmergedFile{}).
			Where("name IN ?", names[start:end]).
			Pluck("name", &found).Error; err != nil {
			return nil, err
		}
		for _, n := range found {
			out[n] = true
		}
	}
	return out, nil
}

func (r *fileRepo) CountUnassigned(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.UnmergedFile{}).Where("item_id IS NULL").Count(&n).Error
	return n, err
}

// ListUnassignedByGroup returns the group's free files oldest first.
func (r *fileRepo) ListUnassignedByGroup(dbc dbctx.Context, groupID uint) ([]*types.UnmergedFile, error) {
	var out []*types.UnmergedFile
	err := dbc.DB(r.db).
		Where("group_id = ? AND item_id IS NULL", groupID).
		Order("create_date ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) ListByItem(dbc dbctx.Context, itemID uint) ([]*types.UnmergedFile, error) {
	var out []*types.UnmergedFile
	err := dbc.DB(r.db).
		Where("item_id = ?", itemID).
		Order("create_date ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignToItem claims only files that are still free.
func (r *fileRepo) AssignToItem(dbc dbctx.Context, ids []uint, itemID uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Model(&types.UnmergedFile{}).
		Where("id IN ? AND item_id IS NULL", ids).
		Update("item_id", itemID)
	return res.RowsAffected, res.Error
}

func (r *fileRepo) UnassignItem(dbc dbctx.Context, itemID uint) (int64, error) {
	res := dbc.DB(r.db).
		Model(&types.UnmergedFile{}).
		Where("item_id = ?", itemID).
		Update("item_id", nil)
	return res.RowsAffected, res.Error
}

func (r *fileRepo) Delete(dbc dbctx.Context, id uint) error {
	return dbc.DB(r.db).Delete(&types.UnmergedFile{}, id).Error
}
