package model

import (
	"fmt"
	"path/filepath"
	"time"
)

const (
	// OutputSuffix is appended to a mod name to form its output directory name.
	OutputSuffix = " PBR"
	// JobLogSuffix is appended to a mod name to form its per-job log file name.
	JobLogSuffix = "_LOG.txt"
)

// Job is one mod eligible for conversion. It is immutable once discovered.
type Job struct {
	SourcePath string `json:"source_path"`
	Name       string `json:"name"`
	OutputPath string `json:"output_path"`
	AssetsPath string `json:"assets_path,omitempty"`
}

func (j Job) LogPath() string {
	return filepath.Join(j.OutputPath, j.Name+JobLogSuffix)
}

const (
	OutcomeSuccess   = "success"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// JobReport is what the supervisor hands back for one job.
type JobReport struct {
	Job            Job       `json:"job"`
	Outcome        string    `json:"outcome"`
	Reason         string    `json:"reason,omitempty"`
	ExitCode       int       `json:"exit_code"`
	RenamedFiles   int       `json:"renamed_files"`
	UnitsFound     int       `json:"units_found"`
	UnitsProcessed int       `json:"units_processed"`
	UnitsSkipped   int       `json:"units_skipped"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// RunStatistics is owned by the coordinator during a run. Front-ends only
// ever see copies of it.
type RunStatistics struct {
	TotalJobs      int       `json:"total_jobs"`
	ProcessedJobs  int       `json:"processed_jobs"`
	SkippedJobs    int       `json:"skipped_jobs"`
	FailedJobs     int       `json:"failed_jobs"`
	TotalUnits     int       `json:"total_units"`
	ProcessedUnits int       `json:"processed_units"`
	SkippedUnits   int       `json:"skipped_units"`
	RenamedFiles   int       `json:"renamed_files"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

// Record folds one job report into the counters.
func (s *RunStatistics) Record(r JobReport) {
	switch r.Outcome {
	case OutcomeSuccess:
		s.ProcessedJobs++
	case OutcomeSkipped:
		s.SkippedJobs++
	case OutcomeFailed:
		s.FailedJobs++
	}
}

// Duration is zero until the run has started. A run still in progress
// reports its elapsed time so far.
func (s RunStatistics) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime)
}

func (s RunStatistics) FormatDuration() string {
	if s.StartTime.IsZero() {
		return "N/A"
	}
	return FormatDuration(s.Duration())
}

// FormatDuration renders d as "1h 2m 3s", dropping leading zero units.
func FormatDuration(d time.Duration) string {
	total := int64(d.Round(time.Second) / time.Second)
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// Summary returns the lines written to the run log when a run finishes.
func (s RunStatistics) Summary() []string {
	return []string{
		"Processing Summary:",
		"Duration: " + s.FormatDuration(),
		fmt.Sprintf("Total Mods: %d", s.TotalJobs),
		fmt.Sprintf("Mods Processed: %d", s.ProcessedJobs),
		fmt.Sprintf("Mods Skipped: %d", s.SkippedJobs),
		fmt.Sprintf("Mods Failed: %d", s.FailedJobs),
		fmt.Sprintf("Files Renamed: %d", s.RenamedFiles),
		fmt.Sprintf("Total Textures Found: %d", s.TotalUnits),
		fmt.Sprintf("Textures Processed: %d", s.ProcessedUnits),
		fmt.Sprintf("Textures Skipped: %d", s.SkippedUnits),
	}
}
