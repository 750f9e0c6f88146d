package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/samerge/internal/domain/merge"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&merge.MergeGroup{},
		&merge.UnmergedFile{},
		&merge.MergeItem{},
	); err != nil {
		return err
	}
	return EnsureMergeIndexes(db)
}

// EnsureMergeIndexes adds the composite indexes the planner and poller scan by.
func EnsureMergeIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_unmerged_file_group_unassigned
		ON unmerged_file(group_id, create_date, id)
		WHERE item_id IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_unmerged_file_group_unassigned: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_merge_item_status_id ON merge_item(status, id);`).Error; err != nil {
		return fmt.Errorf("create idx_merge_item_status_id: %w", err)
	}
	return nil
}
