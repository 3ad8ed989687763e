package cron

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCommand(configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Delete a job and its run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("pass --yes to confirm deletion of job %s and its run history", args[0])
			}

			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteCronJob(context.Background(), args[0]); err != nil {
				return fmt.Errorf("delete cron job: %w", err)
			}

			fmt.Printf("deleted job %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
