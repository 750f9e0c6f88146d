package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/samerge/internal/data/db"
	"github.com/yungbote/samerge/internal/data/repos"
	"github.com/yungbote/samerge/internal/jobtemplate"
	"github.com/yungbote/samerge/internal/merge"
	"github.com/yungbote/samerge/internal/platform/filelock"
	"github.com/yungbote/samerge/internal/platform/jobsub"
	"github.com/yungbote/samerge/internal/platform/localdisk"
	"github.com/yungbote/samerge/internal/platform/logger"
	"github.com/yungbote/samerge/internal/platform/samweb"
)

type App struct {
	Log    *logger.Logger
	Cfg    Config
	Store  *db.SQLiteService
	Engine *merge.Engine
	lock   *filelock.Lock
}

func NewLogger(mode string) (*logger.Logger, error) {
	if mode == "" {
		mode = "development"
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

func NewCatalog(cfg Config, log *logger.Logger) (*samweb.Client, error) {
	return samweb.New(cfg.SAM, log)
}

// New takes the database lock and wires the engine. When another process
// holds the lock the error wraps apperrors.ErrLocked.
func New(cfg Config, log *logger.Logger) (*App, error) {
	lock, err := filelock.TryLock(cfg.Database + ".lock")
	if err != nil {
		return nil, err
	}
	a := &App{Log: log, Cfg: cfg, lock: lock}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	log := a.Log
	store, err := db.NewSQLiteService(a.Cfg.Database, log)
	if err != nil {
		return err
	}
	a.Store = store

	cat, err := NewCatalog(a.Cfg, log)
	if err != nil {
		return err
	}

	var tpl *jobtemplate.Template
	jobOpts := []jobsub.Option{jobsub.WithBinary(a.Cfg.JobsubBinary)}
	if a.Cfg.JobTemplate != "" {
		tpl, err = jobtemplate.Load(a.Cfg.JobTemplate)
		if err != nil {
			log.Error("job template unusable, submission disabled", "path", a.Cfg.JobTemplate, "error", err)
			tpl = nil
		} else {
			jobOpts = append(jobOpts, jobsub.WithTimeout(tpl.SubmitTimeout))
		}
	}

	rs := repos.New(store.DB(), log)
	eng, err := merge.New(a.Cfg.Merge, merge.Deps{
		Log:      log,
		DB:       store.DB(),
		Groups:   rs.Groups,
		Files:    rs.Files,
		Items:    rs.Items,
		Catalog:  cat,
		Batch:    jobsub.New(log, jobOpts...),
		Disk:     localdisk.NewOS(log),
		Template: tpl,
	})
	if err != nil {
		return err
	}
	a.Engine = eng
	return nil
}

// Run executes one engine pass and exports the statistics when a metrics
// file is configured. A failed export is logged only.
func (a *App) Run(ctx context.Context) (*merge.Report, error) {
	rep, runErr := a.Engine.Run(ctx)
	if a.Cfg.MetricsFile != "" {
		if err := a.Engine.Stats().WriteTextfile(a.Cfg.MetricsFile); err != nil {
			a.Log.Warn("metrics export failed", "error", err)
		}
	}
	return rep, runErr
}

func (a *App) Close() {
	if a == nil {
		return
	}
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.lock != nil {
		errs = append(errs, a.lock.Unlock())
	}
	if err := errors.Join(errs...); err != nil && a.Log != nil {
		a.Log.Warn("shutdown", "error", err)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
