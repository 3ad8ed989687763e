package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gobby-dev/gobby/internal/cronutil"
	"github.com/gobby-dev/gobby/internal/model"
)

func newEditCommand(configPath *string) *cobra.Command {
	var (
		name            string
		scheduleType    string
		cronExpr        string
		intervalSeconds int
		runAt           string
		timezone        string
		actionType      string
		actionConfig    string
		description     string
	)

	cmd := &cobra.Command{
		Use:   "edit <job-id>",
		Short: "Change a job's schedule, action, or description",
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

			scheduleChanged := false
			flags := cmd.Flags()
			if flags.Changed("name") {
				job.Name = name
			}
			if flags.Changed("schedule-type") {
				job.ScheduleType = model.ScheduleType(scheduleType)
				scheduleChanged = true
			}
			if flags.Changed("cron-expr") {
				job.CronExpr = cronExpr
				scheduleChanged = true
			}
			if flags.Changed("interval-seconds") {
				job.IntervalSeconds = intervalSeconds
				scheduleChanged = true
			}
			if flags.Changed("run-at") {
				t, err := time.Parse(time.RFC3339, runAt)
				if err != nil {
					return fmt.Errorf("--run-at must be RFC3339 (got %q): %w", runAt, err)
				}
				job.RunAt = &t
				scheduleChanged = true
			}
			if flags.Changed("timezone") {
				job.Timezone = timezone
				scheduleChanged = true
			}
			if flags.Changed("action-type") {
				job.ActionType = actionType
			}
			if flags.Changed("action-config") {
				job.ActionConfig = actionConfig
			}
			if flags.Changed("description") {
				job.Description = description
			}

			if scheduleChanged {
				next, err := cronutil.ComputeNextRun(job, time.Now())
				if err != nil {
					return fmt.Errorf("compute next run: %w", err)
				}
				job.NextRunAt = next
			}

			if err := store.UpdateCronJob(ctx, job); err != nil {
				return fmt.Errorf("update cron job: %w", err)
			}

			fmt.Printf("updated job %s (next run: %s)\n", job.ID, formatOptTime(job.NextRunAt))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new job name")
	cmd.Flags().StringVar(&scheduleType, "schedule-type", "", "cron | interval | once")
	cmd.Flags().StringVar(&cronExpr, "cron-expr", "", "new cron expression")
	cmd.Flags().IntVar(&intervalSeconds, "interval-seconds", 0, "new interval in seconds")
	cmd.Flags().StringVar(&runAt, "run-at", "", "new RFC3339 one-shot timestamp")
	cmd.Flags().StringVar(&timezone, "timezone", "", "new IANA timezone")
	cmd.Flags().StringVar(&actionType, "action-type", "", "new action type")
	cmd.Flags().StringVar(&actionConfig, "action-config", "", "new JSON action config")
	cmd.Flags().StringVar(&description, "description", "", "new description")

	return cmd
}
