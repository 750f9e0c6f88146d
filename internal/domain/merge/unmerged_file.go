package merge

import (
	"time"

	"gorm.io/datatypes"
)

// UnmergedFile is a catalog file waiting to be merged. ItemID is nil while
// the file is unassigned.
type UnmergedFile struct {
	ID         uint                        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string                      `gorm:"column:name;not null;uniqueIndex" json:"name"`
	GroupID    uint                        `gorm:"column:group_id;not null;index" json:"group_id"`
	ItemID     *uint                       `gorm:"column:item_id;index" json:"item_id,omitempty"`
	Size       int64                       `gorm:"column:size;not null" json:"size"`
	CreateDate time.Time                   `gorm:"column:create_date;not null;index" json:"create_date"`
	Parents    datatypes.JSONSlice[string] `gorm:"column:parents" json:"parents,omitempty"`
	CreatedAt  time.Time                   `gorm:"not null" json:"created_at"`
}

func (UnmergedFile) TableName() string { return "unmerged_file" }
