// Command gobby is the control-plane CLI, grounded on the teacher's
// cmd/conductor (a cobra root wiring one subcommand package per concern)
// but scoped to spec.md's client-side surface: inspecting and editing the
// scheduled jobs a running gobbyd dispatches. Every subcommand opens the
// daemon's SQLite file directly rather than calling its HTTP API, the same
// way the teacher's internal/commands/triggers opens its YAML config
// directly instead of round-tripping through the controller.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gobby-dev/gobby/internal/commands/clihelp"
	"github.com/gobby-dev/gobby/internal/commands/cron"
)

// Version information, injected via ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "gobby",
		Short:        "Control-plane CLI for a local gobbyd daemon",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to gobby config.yaml (defaults to the XDG config path)")

	root.AddCommand(cron.NewCommand(&configPath))
	root.AddCommand(clihelp.NewCommand(root))

	return root
}
