// Command gobbyd is the daemon entrypoint, grounded on the teacher's
// cmd/conductord/main.go: flag-based overrides, a -version flag, and a
// foreground signal-driven run loop, simplified for Gobby's single-process
// deployment (no distributed/postgres backend flags, no controller-child
// re-exec).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gobby-dev/gobby/internal/daemon"
)

// Version information, injected via ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to the XDG config path)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gobbyd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return
	}

	err := daemon.Run(daemon.RunOptions{
		ConfigPath: *configPath,
		Options: daemon.Options{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "gobbyd: %v\n", err)
		os.Exit(1)
	}
}
