package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gobby-dev/gobby/internal/cronutil"
	"github.com/gobby-dev/gobby/internal/model"
)

func newAddCommand(configPath *string) *cobra.Command {
	var (
		projectID       string
		name            string
		scheduleType    string
		cronExpr        string
		intervalSeconds int
		runAt           string
		timezone        string
		actionType      string
		actionConfig    string
		description     string
		disabled        bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a new scheduled job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" || name == "" || actionType == "" || actionConfig == "" {
				return fmt.Errorf("--project, --name, --action-type, and --action-config are required")
			}

			job := &model.CronJob{
				ID:              model.NewCronJobID(),
				ProjectID:       projectID,
				Name:            name,
				ScheduleType:    model.ScheduleType(scheduleType),
				CronExpr:        cronExpr,
				IntervalSeconds: intervalSeconds,
				Timezone:        timezone,
				ActionType:      actionType,
				ActionConfig:    actionConfig,
				Description:     description,
				Enabled:         !disabled,
			}
			if runAt != "" {
				t, err := time.Parse(time.RFC3339, runAt)
				if err != nil {
					return fmt.Errorf("--run-at must be RFC3339 (got %q): %w", runAt, err)
				}
				job.RunAt = &t
			}

			next, err := cronutil.ComputeNextRun(job, time.Now())
			if err != nil {
				return fmt.Errorf("compute next run: %w", err)
			}
			job.NextRunAt = next

			store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.CreateCronJob(context.Background(), job); err != nil {
				return fmt.Errorf("create cron job: %w", err)
			}

			fmt.Printf("created cron job %s (next run: %s)\n", job.ID, formatOptTime(job.NextRunAt))
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project id (required)")
	cmd.Flags().StringVar(&name, "name", "", "job name (required)")
	cmd.Flags().StringVar(&scheduleType, "schedule-type", string(model.ScheduleTypeCron), "cron | interval | once")
	cmd.Flags().StringVar(&cronExpr, "cron-expr", "", "cron expression, required when --schedule-type=cron")
	cmd.Flags().IntVar(&intervalSeconds, "interval-seconds", 0, "interval in seconds, required when --schedule-type=interval")
	cmd.Flags().StringVar(&runAt, "run-at", "", "RFC3339 timestamp, required when --schedule-type=once")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for cron schedules (default UTC)")
	cmd.Flags().StringVar(&actionType, "action-type", "", "shell | agent_spawn | pipeline_run (required)")
	cmd.Flags().StringVar(&actionConfig, "action-config", "", "JSON payload matching --action-type (required)")
	cmd.Flags().StringVar(&description, "description", "", "free-text description")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the job disabled")

	return cmd
}
