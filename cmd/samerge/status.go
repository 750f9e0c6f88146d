package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	types "github.com/yungbote/samerge/internal/domain/merge"
)

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print merge groups, unassigned files and work items per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := openApp(o)
			if err != nil || !ok {
				return err
			}
			defer a.Close()

			sum, err := a.Engine.Summary(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "groups\t%d\n", sum.Groups)
			fmt.Fprintf(w, "unassigned files\t%d\n", sum.Unassigned)
			for i := len(types.PollOrder) - 1; i >= 0; i-- {
				st := types.PollOrder[i]
				fmt.Fprintf(w, "%s\t%d\n", st, sum.Items[st])
			}
			return w.Flush()
		},
	}
}
