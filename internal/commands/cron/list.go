package cron

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand(configPath *string) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project is required")
			}
			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			jobs, err := store.ListCronJobsByProject(context.Background(), projectID)
			if err != nil {
				return fmt.Errorf("list cron jobs: %w", err)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintln(tw, "ID\tNAME\tSCHEDULE\tACTION\tENABLED\tNEXT RUN\tLAST STATUS")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
					j.ID, j.Name, scheduleSummary(j), j.ActionType, j.Enabled,
					formatOptTime(j.NextRunAt), valueOr(j.LastStatus, "-"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id to list jobs for (required)")
	return cmd
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
