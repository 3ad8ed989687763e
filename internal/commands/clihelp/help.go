// Package clihelp implements a machine-readable `gobby help --json` command,
// grounded on the teacher's internal/cli/help.go: the same command walks the
// cobra tree and serializes each command's flags via pflag.Flag.VisitAll,
// so an agent driving gobby over a subprocess pipe can discover the CLI's
// surface without scraping --help text.
package clihelp

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// CommandMetadata describes one cobra command for JSON output.
type CommandMetadata struct {
	Name        string         `json:"name"`
	Short       string         `json:"short"`
	Long        string         `json:"long,omitempty"`
	Usage       string         `json:"usage"`
	Flags       []FlagMetadata `json:"flags,omitempty"`
	Subcommands []string       `json:"subcommands,omitempty"`
}

// FlagMetadata describes one pflag.Flag for JSON output.
type FlagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// HelpResponse is the top-level JSON payload for `gobby help --json`.
type HelpResponse struct {
	Commands    []CommandMetadata `json:"commands,omitempty"`
	Command     *CommandMetadata  `json:"command,omitempty"`
	GlobalFlags []FlagMetadata    `json:"global_flags,omitempty"`
}

// NewCommand builds the `gobby help` command. rootCmd is the tree it
// introspects; it must already have every other subcommand attached.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Run 'gobby help' to list every command, or 'gobby help <command>' for
one command's detail. Pass --json for machine-readable output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if jsonOutput {
					return outputAllCommandsJSON(cmd, rootCmd)
				}
				return rootCmd.Help()
			}

			target, _, err := rootCmd.Find(args)
			if err != nil {
				return fmt.Errorf("command %q not found", args[0])
			}
			if jsonOutput {
				return outputCommandJSON(cmd, target, rootCmd)
			}
			return target.Help()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func outputAllCommandsJSON(cmd *cobra.Command, rootCmd *cobra.Command) error {
	commands := []CommandMetadata{}
	for _, c := range rootCmd.Commands() {
		if c.Hidden {
			continue
		}
		commands = append(commands, extractCommandMetadata(c))
	}

	resp := HelpResponse{
		Commands:    commands,
		GlobalFlags: extractFlags(rootCmd.PersistentFlags()),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func outputCommandJSON(cmd *cobra.Command, target *cobra.Command, rootCmd *cobra.Command) error {
	meta := extractCommandMetadata(target)
	resp := HelpResponse{
		Command:     &meta,
		GlobalFlags: extractFlags(rootCmd.PersistentFlags()),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func extractCommandMetadata(cmd *cobra.Command) CommandMetadata {
	meta := CommandMetadata{
		Name:  cmd.Name(),
		Short: cmd.Short,
		Long:  cmd.Long,
		Usage: cmd.UseLine(),
		Flags: extractFlags(cmd.Flags()),
	}
	for _, sub := range cmd.Commands() {
		if !sub.Hidden {
			meta.Subcommands = append(meta.Subcommands, sub.Name())
		}
	}
	return meta
}

func extractFlags(flags *pflag.FlagSet) []FlagMetadata {
	out := []FlagMetadata{}
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		out = append(out, FlagMetadata{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return out
}
