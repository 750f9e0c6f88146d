package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/samerge/internal/domain/merge"
)

func Key(run int) types.GroupKey {
	return types.GroupKey{
		FileType:   "data",
		FileFormat: "artroot",
		DataTier:   "reconstructed",
		DataStream: "outbnb",
		Project:    "prod_reco",
		Stage:      "reco1",
		Version:    "v08_00_00",
		Run:        run,
	}
}

func SeedGroup(tb testing.TB, ctx context.Context, tx *gorm.DB, key types.GroupKey) *types.MergeGroup {
	tb.Helper()
	g := types.NewMergeGroup(key)
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed group: %v", err)
	}
	return g
}

func SeedFile(tb testing.TB, ctx context.Context, tx *gorm.DB, groupID uint, name string, size int64, created time.Time) *types.UnmergedFile {
	tb.Helper()
	f := &types.UnmergedFile{
		Name:       name,
		GroupID:    groupID,
		Size:       size,
		CreateDate: created.UTC(),
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed file: %v", err)
	}
	return f
}

func SeedItem(tb testing.TB, ctx context.Context, tx *gorm.DB, groupID uint, status types.Status, fileIDs ...uint) *types.MergeItem {
	tb.Helper()
	item := &types.MergeItem{GroupID: groupID, Status: status}
	if err := tx.WithContext(ctx).Create(item).Error; err != nil {
		tb.Fatalf("seed item: %v", err)
	}
	if len(fileIDs) > 0 {
		if err := tx.WithContext(ctx).
			Model(&types.UnmergedFile{}).
			Where("id IN ?", fileIDs).
			Update("item_id", item.ID).Error; err != nil {
			tb.Fatalf("assign files: %v", err)
		}
	}
	return item
}
