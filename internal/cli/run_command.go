package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pbrify/internal/batch"
	"pbrify/internal/createpbr"
	"pbrify/internal/discovery"
	"pbrify/internal/logging"
	"pbrify/internal/model"
	"pbrify/internal/settings"
)

type settingsFlags struct {
	modsDir     string
	outputDir   string
	createPBR   string
	checkpoint  string
	format      string
	maxTileSize string
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.modsDir, "mods-dir", "", "directory containing one folder per mod")
	flags.StringVar(&f.outputDir, "output-dir", "", "directory receiving '<mod> PBR' folders")
	flags.StringVar(&f.createPBR, "create-pbr", "", "path to "+settings.ExecutableName)
	flags.StringVar(&f.checkpoint, "checkpoint", "", "segformer checkpoint: "+strings.Join(settings.Checkpoints, "|"))
	flags.StringVar(&f.format, "format", "", "texture format: "+strings.Join(settings.TextureFormats, "|"))
	flags.StringVar(&f.maxTileSize, "max-tile-size", "", "max tile size: "+strings.Join(settings.MaxTileSizes, "|"))
}

// apply overrides cfg with every flag set on the command line.
func (f *settingsFlags) apply(cmd *cobra.Command, cfg *settings.Settings) error {
	pairs := []struct {
		flag string
		key  string
		val  string
	}{
		{"mods-dir", settings.KeyModsDir, f.modsDir},
		{"output-dir", settings.KeyOutputDir, f.outputDir},
		{"create-pbr", settings.KeyCreatePBRPath, f.createPBR},
		{"checkpoint", settings.KeyCheckpoint, f.checkpoint},
		{"format", settings.KeyTextureFormat, f.format},
		{"max-tile-size", settings.KeyMaxTileSize, f.maxTileSize},
	}
	for _, p := range pairs {
		if !cmd.Flags().Changed(p.flag) {
			continue
		}
		if err := cfg.Set(p.key, p.val); err != nil {
			return fmt.Errorf("--%s: %w", p.flag, err)
		}
	}
	return nil
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var overrides settingsFlags
	var stopGrace time.Duration
	var yes bool
	var output string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Convert every eligible mod",
		Long: "Scans the mods directory, then for each eligible mod lowercases texture\n" +
			"suffixes and runs create_pbr.exe. Ctrl+C stops after terminating the\n" +
			"current converter; a second Ctrl+C kills it at once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			stderr := cmd.ErrOrStderr()
			cfg, err := opts.loadSettings(stderr)
			if err != nil {
				return err
			}
			if err := overrides.apply(cmd, &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if !yes && stdinIsTTY() {
				preview, err := discovery.Scan(cmd.Context(), discovery.ScanOptions{ModsDir: cfg.ModsDir, OutputDir: cfg.OutputDir})
				if err != nil {
					return err
				}
				prompt := fmt.Sprintf("Convert %d mod(s) from %s into %s? [y/N]: ", len(preview.Jobs), cfg.ModsDir, cfg.OutputDir)
				ok, err := promptConfirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "run cancelled")
					return nil
				}
			}

			coord := batch.New(batch.Options{
				Settings:       cfg,
				ConfigPath:     opts.configPath,
				StateDir:       opts.stateDir,
				RunLogPath:     logging.RunLogFileName,
				TerminateGrace: stopGrace,
			})
			renderer := newConsoleRenderer(stderr, opts.level(), opts.colorize(stderr), logging.IsTerminal(stderr) && output == outputText)
			finished, err := executeRun(cmd.Context(), coord, renderer, stderr)
			if err != nil {
				return err
			}
			return reportRun(cmd.OutOrStdout(), output, finished, renderer.failure)
		},
	}

	overrides.register(cmd)
	cmd.Flags().DurationVar(&stopGrace, "stop-grace", createpbr.DefaultTerminateGrace, "time create_pbr gets to exit after a stop before it is killed")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text|json|yaml")
	return cmd
}

// executeRun drives the coordinator until its event stream closes. The first
// interrupt requests a stop; the second kills the converter.
func executeRun(ctx context.Context, coord *batch.Coordinator, renderer *consoleRenderer, stderr io.Writer) (model.RunFinished, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	events, err := coord.Start(ctx)
	if err != nil {
		return model.RunFinished{}, err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		interrupts := 0
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				interrupts++
				if interrupts == 1 {
					fmt.Fprintln(stderr, "stopping after the current converter exits (Ctrl+C again to kill it)")
					coord.Stop()
					continue
				}
				fmt.Fprintln(stderr, "killing create_pbr")
				coord.Kill()
			}
		}
	}()

	for ev := range events {
		renderer.handle(ev)
	}
	if renderer.finished == nil {
		return model.RunFinished{}, errors.New("run ended without a summary")
	}
	return *renderer.finished, nil
}

func reportRun(w io.Writer, output string, finished model.RunFinished, failure string) error {
	structured, err := printStructured(w, output, finished)
	if err != nil {
		return err
	}
	if !structured {
		if len(finished.Jobs) > 0 {
			fmt.Fprintln(w, renderJobsTable(finished.Jobs))
		}
		fmt.Fprintln(w, renderStatsTable(finished.State, finished.Stats))
	}
	return runExitError(finished, failure)
}

// runExitError maps a finished run onto the command's exit status.
func runExitError(finished model.RunFinished, failure string) error {
	switch {
	case finished.State == model.StateFatal:
		if failure == "" {
			failure = "run failed"
		}
		return errors.New(failure)
	case finished.Stats.FailedJobs > 0:
		return fmt.Errorf("%d mod(s) failed; see %s and the per-mod logs", finished.Stats.FailedJobs, logging.RunLogFileName)
	}
	return nil
}
