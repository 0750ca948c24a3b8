// Package cli is the pbrify command-line front-end.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"pbrify/internal/logging"
	"pbrify/internal/settings"
)

const defaultStateDir = ".pbrify"

type rootOptions struct {
	configPath string
	stateDir   string
	logLevel   string
	noColor    bool
}

// Run executes the command line and returns the first error.
func Run(args []string) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "pbrify",
		Short:         "Batch PBR texture conversion for mods",
		Long:          "pbrify renames texture suffixes and runs create_pbr.exe once per mod,\nwriting each result next to the others in the output directory.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.noColor {
				logging.DisableColor()
			}
			_, err := logging.ParseLevel(opts.logLevel)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", settings.DefaultConfigPath, "key=value settings file")
	flags.StringVar(&opts.stateDir, "state-dir", defaultStateDir, "directory for the run lock and run history")
	flags.StringVar(&opts.logLevel, "log-level", "info", "console log level: debug|output|info|warn|error")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newScanCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))
	rootCmd.AddCommand(newDoctorCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newManageCommand(opts))
	return rootCmd
}

// loadSettings reads the config file and reports discarded entries on w.
func (o *rootOptions) loadSettings(w io.Writer) (settings.Settings, error) {
	cfg, discarded, err := settings.Load(strings.TrimSpace(o.configPath))
	if err != nil {
		return settings.Settings{}, err
	}
	for _, d := range discarded {
		fmt.Fprintf(w, "warning: %s: ignoring %s=%q (%s)\n", o.configPath, d.Key, d.Value, d.Reason)
	}
	return cfg, nil
}

func (o *rootOptions) level() slog.Level {
	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func (o *rootOptions) colorize(w io.Writer) bool {
	return !o.noColor && logging.IsTerminal(w)
}
