package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/samerge/internal/data/repos/merges"
	"github.com/yungbote/samerge/internal/platform/logger"
)

type GroupRepo = merges.GroupRepo
type FileRepo = merges.FileRepo
type ItemRepo = merges.ItemRepo

// Set is every repository of the merge store, bound to one database.
type Set struct {
	Groups GroupRepo
	Files  FileRepo
	Items  ItemRepo
}

func New(db *gorm.DB, log *logger.Logger) Set {
	log.Debug("wiring repos")
	return Set{
		Groups: merges.NewGroupRepo(db, log),
		Files:  merges.NewFileRepo(db, log),
		Items:  merges.NewItemRepo(db, log),
	}
}
