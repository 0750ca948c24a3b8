package cli

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pbrify/internal/batch"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int
	var output string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			records, err := batch.LoadHistory(opts.stateDir, limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if ok, err := printStructured(w, output, records); ok || err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(w, "no runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				started := "-"
				if !rec.Stats.StartTime.IsZero() {
					started = humanize.Time(rec.Stats.StartTime)
				}
				rows = append(rows, []string{
					shortID(rec.RunID),
					started,
					rec.State,
					rec.Stats.FormatDuration(),
					strconv.Itoa(rec.Stats.ProcessedJobs),
					strconv.Itoa(rec.Stats.SkippedJobs),
					strconv.Itoa(rec.Stats.FailedJobs),
					humanize.Comma(int64(rec.Stats.ProcessedUnits)),
				})
			}
			fmt.Fprintln(w, renderTable(
				[]string{"Run", "Started", "State", "Duration", "Converted", "Skipped", "Failed", "Textures"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show (0 for all)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text|json|yaml")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
