package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pbrify/internal/settings"
)

// configView is what "config show" prints.
type configView struct {
	ConfigPath string            `json:"config_path" yaml:"config_path"`
	Settings   settings.Settings `json:"settings" yaml:"settings"`
	Valid      bool              `json:"valid" yaml:"valid"`
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigShowCommand(opts))
	cmd.AddCommand(newConfigSetCommand(opts))
	cmd.AddCommand(newConfigPathCommand(opts))
	return cmd
}

func newConfigShowCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			cfg, err := opts.loadSettings(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			view := configView{ConfigPath: opts.configPath, Settings: cfg, Valid: cfg.IsValid()}
			w := cmd.OutOrStdout()
			if ok, err := printStructured(w, output, view); ok || err != nil {
				return err
			}
			printSettings(w, view)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text|json|yaml")
	return cmd
}

func printSettings(w io.Writer, view configView) {
	fmt.Fprintln(w, kv("config", view.ConfigPath))
	for _, key := range settings.Keys {
		fmt.Fprintln(w, kv(key, defaultIfEmpty(view.Settings.Get(key), "(not set)")))
	}
	fmt.Fprintln(w, kv("valid", yesNo(view.Valid)))
}

func newConfigSetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Check and store one setting",
		Long:  "Keys: " + strings.Join(settings.Keys, ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadSettings(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Save(opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s in %s\n", args[0], opts.configPath)
			fmt.Fprintln(cmd.OutOrStdout(), kv(args[0], cfg.Get(args[0])))
			return nil
		},
	}
}

func newConfigPathCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the absolute path of the settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := filepath.Abs(opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
}
