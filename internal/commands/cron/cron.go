// Package cron implements the `gobby cron` subcommands, grounded on the
// teacher's internal/commands/triggers (one file per subcommand, sharing a
// helper that opens state directly from the config-resolved path rather
// than calling a running daemon's API).
package cron

import (
	"github.com/spf13/cobra"
)

// NewCommand builds the `gobby cron` command tree. configPath is read at
// Execute time, after cobra has parsed the --config persistent flag.
func NewCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs (cron, interval, and one-shot)",
		Long: `Manage the jobs gobbyd's scheduler dispatches: shell commands, agent
spawns, and pipeline runs fired on a cron expression, fixed interval, or
one-shot timestamp.

Subcommands:
  list    - list jobs for a project
  add     - create a new job
  run     - mark a job due so the daemon fires it on its next poll
  toggle  - enable or disable a job
  runs    - show a job's firing history
  remove  - delete a job and its run history
  edit    - change a job's schedule or action`,
	}

	cmd.AddCommand(newListCommand(configPath))
	cmd.AddCommand(newAddCommand(configPath))
	cmd.AddCommand(newRunCommand(configPath))
	cmd.AddCommand(newToggleCommand(configPath))
	cmd.AddCommand(newRunsCommand(configPath))
	cmd.AddCommand(newRemoveCommand(configPath))
	cmd.AddCommand(newEditCommand(configPath))

	return cmd
}
