package merges

import (
	"errors"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/samerge/internal/domain/merge"
	"github.com/yungbote/samerge/internal/pkg/dbctx"
	"github.com/yungbote/samerge/internal/platform/logger"
)

type ItemRepo interface {
	Create(dbc dbctx.Context, item *types.MergeItem) error
	GetByID(dbc dbctx.Context, id uint) (*types.MergeItem, error)
	ListByStatus(dbc dbctx.Context, status types.Status) ([]*types.MergeItem, error)
	CountByStatus(dbc dbctx.Context) (map[types.Status]int64, error)
	CountInFlight(dbc dbctx.Context) (int64, error)
	UpdateFields(dbc dbctx.Context, id uint, updates map[string]interface{}) error
	TransitionStatus(dbc dbctx.Context, id uint, from, to types.Status, updates map[string]interface{}) (bool, error)
	Delete(dbc dbctx.Context, id uint) error
}

type itemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemRepo(db *gorm.DB, baseLog *logger.Logger) ItemRepo {
	return &itemRepo{
		db:  db,
		log: baseLog.With("repo", "ItemRepo"),
	}
}

func (r *itemRepo) Create(dbc dbctx.Context, item *types.MergeItem) error {
	return dbc.DB(r.db).Create(item).Error
}

func (r *itemRepo) GetByID(dbc dbctx.Context, id uint) (*types.MergeItem, error) {
	var item types.MergeItem
	err := dbc.DB(r.db).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepo) ListByStatus(dbc dbctx.Context, status types.Status) ([]*types.MergeItem, error) {
	var out []*types.MergeItem
	err := dbc.DB(r.db).
		Where("status = ?", status).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *itemRepo) CountByStatus(dbc dbctx.Context) (map[types.Status]int64, error) {
	var rows []struct {
		Status types.Status
		N      int64
	}
	err := dbc.DB(r.db).
		Model(&types.MergeItem{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[types.Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

func (r *itemRepo) CountInFlight(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.MergeItem{}).
		Where("status IN ?", []types.Status{types.StatusSubmitted, types.StatusDeclared}).
		Count(&n).Error
	return n, err
}

func (r *itemRepo) UpdateFields(dbc dbctx.Context, id uint, updates map[string]interface{}) error {
	if id == 0 {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.MergeItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// TransitionStatus moves the item from one status to another in a single
// UPDATE guarded on the current status. It reports false when the item was
// not in the expected status (or no longer exists).
func (r *itemRepo) TransitionStatus(dbc dbctx.Context, id uint, from, to types.Status, updates map[string]interface{}) (bool, error) {
	if id == 0 {
		return false, nil
	}
	fields := map[string]interface{}{}
	for k, v := range updates {
		fields[k] = v
	}
	fields["status"] = to
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now().UTC()
	}
	res := dbc.DB(r.db).
		Model(&types.MergeItem{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *itemRepo) Delete(dbc dbctx.Context, id uint) error {
	return dbc.DB(r.db).Delete(&types.MergeItem{}, id).Error
}
