package cron

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRunsCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs <job-id>",
		Short: "Show a job's firing history, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListCronRunsByJob(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("list cron runs: %w", err)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintln(tw, "RUN ID\tTRIGGERED\tSTATUS\tAGENT RUN\tPIPELINE EXEC\tERROR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.TriggeredAt.Local().Format("2006-01-02 15:04:05"), r.Status,
					valueOr(r.AgentRunID, "-"), valueOr(r.PipelineExecutionID, "-"), valueOr(r.Error, "-"))
			}
			return nil
		},
	}
	return cmd
}
