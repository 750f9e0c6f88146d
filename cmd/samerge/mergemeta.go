package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/yungbote/samerge/internal/app"
	"github.com/yungbote/samerge/internal/mergemeta"
)

func newMergeMetadataCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "merge-metadata <file-list> [process-id]",
		Short: "Print the catalog metadata of a file merged from the listed files",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts mergemeta.Options
			if len(args) == 2 {
				pid, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("bad process id %q", args[1])
				}
				opts.ProcessID = &pid
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			names, err := mergemeta.ReadFileList(f)
			f.Close()
			if err != nil {
				return err
			}

			cfg, err := app.LoadConfig(o.v)
			if err != nil {
				return err
			}
			log, err := app.NewLogger(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()
			cat, err := app.NewCatalog(cfg, log)
			if err != nil {
				return err
			}

			md, err := mergemeta.Merge(cmd.Context(), cat, names, opts)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(md, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
