package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func addRunFlags(f *pflag.FlagSet) {
	f.String("defname", "", "restrict discovery to this dataset definition")
	f.Float64("max-size", 2.5e9, "maximum merged file size in bytes")
	f.Float64("min-size", 1e9, "minimum merged file size in bytes")
	f.Int("max-count", 0, "maximum files per merged file (0 = unlimited)")
	f.String("max-age", "72h", "merge undersized batches older than this (seconds, or h/d suffix)")
	f.Int("max-projects", 500, "maximum in-flight merge projects")
	f.Int("max-groups", 100, "maximum new merge groups per run")
	f.Int("query-limit", 1000, "maximum files returned by the discovery query")
	f.Int("file-limit", 10000, "stop discovery at this many unassigned files")
	f.Bool("phase1", false, "run discovery and planning")
	f.Bool("phase2", false, "run submission and monitoring")
	f.Bool("phase3", false, "run cleanup (no phase flag runs all phases)")
	f.Bool("nobatch", false, "reset items as soon as their project ends")
	f.String("job-template", "", "job template yaml")
	f.String("project", "", "job template project")
	f.String("stage", "", "job template stage")
	f.String("metrics-file", "", "write run statistics to this Prometheus textfile")
}

func newRunCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run discovery, submission, monitoring and cleanup once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd.Context(), o)
		},
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func runMerge(parent context.Context, o *options) error {
	a, ok, err := openApp(o)
	if err != nil || !ok {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(parent)
	defer stop()
	_, err = a.Run(ctx)
	if err != nil {
		a.Log.Error("merge run failed", "error", err)
	}
	return err
}
