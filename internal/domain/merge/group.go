package merge

import "time"

// GroupKey is the 8-tuple that decides which files may be merged together.
type GroupKey struct {
	FileType   string
	FileFormat string
	DataTier   string
	DataStream string
	Project    string
	Stage      string
	Version    string
	Run        int
}

type MergeGroup struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileType   string    `gorm:"column:file_type;not null;uniqueIndex:idx_merge_group_key" json:"file_type"`
	FileFormat string    `gorm:"column:file_format;not null;uniqueIndex:idx_merge_group_key" json:"file_format"`
	DataTier   string    `gorm:"column:data_tier;not null;uniqueIndex:idx_merge_group_key" json:"data_tier"`
	DataStream string    `gorm:"column:data_stream;not null;uniqueIndex:idx_merge_group_key" json:"data_stream"`
	Project    string    `gorm:"column:project;not null;uniqueIndex:idx_merge_group_key" json:"project"`
	Stage      string    `gorm:"column:stage;not null;uniqueIndex:idx_merge_group_key" json:"stage"`
	Version    string    `gorm:"column:version;not null;uniqueIndex:idx_merge_group_key" json:"version"`
	Run        int       `gorm:"column:run;not null;uniqueIndex:idx_merge_group_key" json:"run"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (MergeGroup) TableName() string { return "merge_group" }

func (g MergeGroup) Key() GroupKey {
	return GroupKey{
		FileType:   g.FileType,
		FileFormat: g.FileFormat,
		DataTier:   g.DataTier,
		DataStream: g.DataStream,
		Project:    g.Project,
		Stage:      g.Stage,
		Version:    g.Version,
		Run:        g.Run,
	}
}

func NewMergeGroup(k GroupKey) *MergeGroup {
	return &MergeGroup{
		FileType:   k.FileType,
		FileFormat: k.FileFormat,
		DataTier:   k.DataTier,
		DataStream: k.DataStream,
		Project:    k.Project,
		Stage:      k.Stage,
		Version:    k.Version,
		Run:        k.Run,
	}
}
