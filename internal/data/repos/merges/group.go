package merges

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/samerge/internal/domain/merge"
	"github.com/yungbote/samerge/internal/pkg/dbctx"
	"github.com/yungbote/samerge/internal/platform/logger"
)

type GroupRepo interface {
	GetOrCreate(dbc dbctx.Context, key types.GroupKey) (*types.MergeGroup, bool, error)
	Find(dbc dbctx.Context, key types.GroupKey) (*types.MergeGroup, error)
	GetByID(dbc dbctx.Context, id uint) (*types.MergeGroup, error)
	ListIDsWithUnassigned(dbc dbctx.Context) ([]uint, error)
	DeleteUnreferenced(dbc dbctx.Context) (int64, error)
	Count(dbc dbctx.Context) (int64, error)
}

type groupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return &groupRepo{
		db:  db,
		log: baseLog.With("repo", "GroupRepo"),
	}
}

func keyScope(key types.GroupKey) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where(`file_type = ? AND file_format = ? AND data_tier = ? AND data_stream = ?
			AND project = ? AND stage = ? AND version = ? AND run = ?`,
			key.FileType, key.FileFormat, key.DataTier, key.DataStream,
			key.Project, key.Stage, key.Version, key.Run)
	}
}

// GetOrCreate returns the group for key, inserting it when unseen. The bool
// reports whether this call created the row. A concurrent insert of the same
// key is absorbed by the unique index and the existing row is returned.
func (r *groupRepo) GetOrCreate(dbc dbctx.Context, key types.GroupKey) (*types.MergeGroup, bool, error) {
	existing, err := r.Find(dbc, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	g := types.NewMergeGroup(key)
	res := dbc.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(g)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 && g.ID != 0 {
		r.log.Debug("created merge group", "group_id", g.ID, "project", key.Project, "stage", key.Stage, "run", key.Run)
		return g, true, nil
	}

	existing, err = r.Find(dbc, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, gorm.ErrRecordNotFound
	}
	return existing, false, nil
}

// Find looks key up without creating it. A missing group is (nil, nil).
func (r *groupRepo) Find(dbc dbctx.Context, key types.GroupKey) (*types.MergeGroup, error) {
	var g types.MergeGroup
	if err := dbc.DB(r.db).Scopes(keyScope(key)).Limit(1).Find(&g).Error; err != nil {
		return nil, err
	}
	if g.ID == 0 {
		return nil, nil
	}
	return &g, nil
}

func (r *groupRepo) GetByID(dbc dbctx.Context, id uint) (*types.MergeGroup, error) {
	var g types.MergeGroup
	err := dbc.DB(r.db).First(&g, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *groupRepo) ListIDsWithUnassigned(dbc dbctx.Context) ([]uint, error) {
	var ids []uint
	err := dbc.DB(r.db).
		Model(&types.UnmergedFile{}).
		Where("item_id IS NULL").
		Distinct("group_id").
		Order("group_id ASC").
		Pluck("group_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteUnreferenced removes groups that no file and no work item points at.
func (r *groupRepo) DeleteUnreferenced(dbc dbctx.Context) (int64, error) {
	res := dbc.DB(r.db).
		Where("id NOT IN (?)", r.db.Model(&types.UnmergedFile{}).Select("group_id")).
		Where("id NOT IN (?)", r.db.Model(&types.MergeItem{}).Select("group_id")).
		Delete(&types.MergeGroup{})
	return res.RowsAffected, res.Error
}

func (r *groupRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.MergeGroup{}).Count(&n).Error
	return n, err
}
