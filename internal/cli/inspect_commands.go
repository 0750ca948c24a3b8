package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"pbrify/internal/discovery"
)

func newScanCommand(opts *rootOptions) *cobra.Command {
	var overrides settingsFlags
	var output string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the mods a run would convert, without touching them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			cfg, err := opts.loadSettings(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := overrides.apply(cmd, &cfg); err != nil {
				return err
			}
			res, err := discovery.Scan(cmd.Context(), discovery.ScanOptions{
				ModsDir:   cfg.ModsDir,
				OutputDir: cfg.OutputDir,
			})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if ok, err := printStructured(w, output, res); ok || err != nil {
				return err
			}
			printScanResult(w, res)
			return nil
		},
	}

	overrides.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text|json|yaml")
	return cmd
}

func printScanResult(w io.Writer, res discovery.ScanResult) {
	if len(res.Jobs) > 0 {
		rows := make([][]string, 0, len(res.Jobs))
		for i, job := range res.Jobs {
			rows = append(rows, []string{strconv.Itoa(i + 1), job.Name, job.OutputPath})
		}
		fmt.Fprintln(w, renderTable([]string{"#", "Mod", "Output"}, rows, []columnAlignment{alignRight}))
	}
	if len(res.Rejected) > 0 {
		rows := make([][]string, 0, len(res.Rejected))
		for _, r := range res.Rejected {
			rows = append(rows, []string{r.Name, r.Reason, truncateRunes(r.Detail, 60)})
		}
		fmt.Fprintln(w, renderTable([]string{"Not Converted", "Reason", "Detail"}, rows, nil))
	}
	fmt.Fprintf(w, "%d candidate(s), %d to convert, %d not converted\n", res.Candidates, len(res.Jobs), len(res.Rejected))
}

func newDoctorCommand(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration and directories before a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			cfg, err := opts.loadSettings(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			res := discovery.Doctor(discovery.DoctorOptions{
				Settings:   cfg,
				ConfigPath: opts.configPath,
				StateDir:   opts.stateDir,
			})
			w := cmd.OutOrStdout()
			structured, err := printStructured(w, output, res)
			if err != nil {
				return err
			}
			if !structured {
				for _, c := range res.Checks {
					status := "ok"
					if !c.OK {
						status = "fail"
					}
					fmt.Fprintf(w, "%s: %s (%s)\n", c.Name, status, c.Message)
				}
			}
			if !res.OK {
				return errors.New("doctor checks failed")
			}
			if output == outputText {
				fmt.Fprintln(w, "doctor: all checks passed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text|json|yaml")
	return cmd
}
