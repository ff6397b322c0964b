// runs.go implements `setctl runs`: the local journal of past deploys.
package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kubekattle/setctl/internal/runlog"
)

func newRunsCommand(gopts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent deploy runs from the local journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := runlog.Open("")
			if err != nil {
				return err
			}
			defer journal.Close()

			entries, err := journal.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded runs")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tNAMESPACE\tSETS\tSTATUS\tSTARTED")
			for _, e := range entries {
				status := e.Status
				if status == "failed" {
					status = color.RedString(status)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.RunID, e.Namespace, strings.Join(e.Sets, ","), status,
					e.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}
