package merge

import "time"

// MergeItem is one in-flight merge: a set of member files, the catalog
// project staging them and the batch job producing the merged output.
type MergeItem struct {
	ID              uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID         uint       `gorm:"column:group_id;not null;index" json:"group_id"`
	Name            string     `gorm:"column:name;not null;default:''" json:"name"`
	JobID           string     `gorm:"column:job_id;not null;default:''" json:"job_id"`
	DefName         string     `gorm:"column:defname;not null;default:''" json:"defname"`
	SamProject      string     `gorm:"column:sam_project;not null;default:''" json:"sam_project"`
	Status          Status     `gorm:"column:status;not null;default:0;index" json:"status"`
	SubmitTime      *time.Time `gorm:"column:submit_time" json:"submit_time,omitempty"`
	OutputCreatedAt *time.Time `gorm:"column:output_created_at" json:"output_created_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

func (MergeItem) TableName() string { return "merge_item" }
