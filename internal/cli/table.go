package cli

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"pbrify/internal/model"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func renderStatsTable(state string, stats model.RunStatistics) string {
	rows := [][]string{
		{"State", state},
		{"Duration", stats.FormatDuration()},
		{"Total Mods", strconv.Itoa(stats.TotalJobs)},
		{"Mods Processed", strconv.Itoa(stats.ProcessedJobs)},
		{"Mods Skipped", strconv.Itoa(stats.SkippedJobs)},
		{"Mods Failed", strconv.Itoa(stats.FailedJobs)},
		{"Files Renamed", strconv.Itoa(stats.RenamedFiles)},
		{"Textures Found", strconv.Itoa(stats.TotalUnits)},
		{"Textures Processed", strconv.Itoa(stats.ProcessedUnits)},
		{"Textures Skipped", strconv.Itoa(stats.SkippedUnits)},
	}
	return renderTable([]string{"Summary", ""}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderJobsTable(reports []model.JobReport) string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		textures := "-"
		if r.UnitsFound > 0 || r.UnitsProcessed > 0 {
			textures = fmt.Sprintf("%d/%d", r.UnitsProcessed, r.UnitsFound-r.UnitsSkipped)
		}
		rows = append(rows, []string{
			r.Job.Name,
			r.Outcome,
			textures,
			strconv.Itoa(r.RenamedFiles),
			truncateRunes(r.Reason, 60),
		})
	}
	return renderTable(
		[]string{"Mod", "Outcome", "Textures", "Renamed", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
