package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRunCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <job-id>",
		Short: "Mark a job due so the daemon's scheduler fires it on its next poll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			now := time.Now()
			job.NextRunAt = &now
			job.Enabled = true
			if err := store.UpdateCronJob(ctx, job); err != nil {
				return fmt.Errorf("update cron job: %w", err)
			}

			fmt.Printf("job %s marked due; gobbyd will fire it on its next poll\n", job.ID)
			return nil
		},
	}
	return cmd
}
