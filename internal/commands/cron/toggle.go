package cron

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newToggleCommand(configPath *string) *cobra.Command {
	var enable, disable bool

	cmd := &cobra.Command{
		Use:   "toggle <job-id>",
		Short: "Enable or disable a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable == disable {
				return fmt.Errorf("exactly one of --enable or --disable is required")
			}

			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			job, err := store.GetCronJob(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get cron job: %w", err)
			}

			job.Enabled = enable
			if enable {
				job.ConsecutiveFailures = 0
			}
			if err := store.UpdateCronJob(ctx, job); err != nil {
				return fmt.Errorf("update cron job: %w", err)
			}

			fmt.Printf("job %s enabled=%t\n", job.ID, job.Enabled)
			return nil
		},
	}
	cmd.Flags().BoolVar(&enable, "enable", false, "enable the job")
	cmd.Flags().BoolVar(&disable, "disable", false, "disable the job")
	return cmd
}
