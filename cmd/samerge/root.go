package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/samerge/internal/app"
	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
)

type flagBinding struct {
	flag string
	key  string
}

var bindings = []flagBinding{
	{"log-mode", app.KeyLogMode},
	{"database", app.KeyDatabase},
	{"defname", app.KeyDefName},
	{"max-size", app.KeyMaxSize},
	{"min-size", app.KeyMinSize},
	{"max-count", app.KeyMaxCount},
	{"max-age", app.KeyMaxAge},
	{"max-projects", app.KeyMaxProjects},
	{"max-groups", app.KeyMaxGroups},
	{"query-limit", app.KeyQueryLimit},
	{"file-limit", app.KeyFileLimit},
	{"phase1", app.KeyPhase1},
	{"phase2", app.KeyPhase2},
	{"phase3", app.KeyPhase3},
	{"nobatch", app.KeyNoBatch},
	{"job-template", app.KeyJobTemplate},
	{"project", app.KeyProject},
	{"stage", app.KeyStage},
	{"metrics-file", app.KeyMetricsFile},
	{"samweb-url", app.KeySAMURL},
	{"token-file", app.KeySAMTokenFile},
}

type options struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	o := &options{v: app.NewViper()}
	root := &cobra.Command{
		Use:   "samerge",
		Short: "Merge small catalog files into tape-sized files through batch jobs",
		Long: `samerge discovers mergeable files in the SAM catalog, groups and packs them
into work items, submits one merge job per item and follows each item until its
merged output is on tape, after which the inputs are retired. It is meant to be
run repeatedly from cron against the same database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, b := range bindings {
				if f := cmd.Flags().Lookup(b.flag); f != nil {
					if err := o.v.BindPFlag(b.key, f); err != nil {
						return err
					}
				}
			}
			return app.ReadConfigFile(o.v, o.cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd.Context(), o)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.cfgFile, "config", "", "yaml config file")
	pf.String("log-mode", "development", "log mode: development or production")
	pf.String("database", "merge.db", "merge database path; <database>.lock guards it")
	pf.String("samweb-url", "", "SAM web API base url")
	pf.String("token-file", "", "bearer token file for the SAM web API")

	f := root.Flags()
	addRunFlags(f)

	root.AddCommand(newRunCmd(o), newStatusCmd(o), newMergeMetadataCmd(o))
	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// openApp builds the application. ok is false when another instance holds the
// database lock; that is a normal exit.
func openApp(o *options) (a *app.App, ok bool, err error) {
	cfg, err := app.LoadConfig(o.v)
	if err != nil {
		return nil, false, err
	}
	log, err := app.NewLogger(cfg.LogMode)
	if err != nil {
		return nil, false, err
	}
	a, err = app.New(cfg, log)
	if errors.Is(err, apperrors.ErrLocked) {
		log.Info("another instance is running, exiting", "database", cfg.Database)
		log.Sync()
		return nil, false, nil
	}
	if err != nil {
		log.Error("setup failed", "error", err)
		log.Sync()
		return nil, false, fmt.Errorf("setup: %w", err)
	}
	return a, true, nil
}
