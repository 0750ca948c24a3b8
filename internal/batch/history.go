package batch

import (
	"pbrify/internal/discovery"
	"pbrify/internal/model"
	"pbrify/internal/runstore"
	"pbrify/internal/settings"
)

// RunRecord is what a finished run leaves in the history store.
type RunRecord struct {
	RunID    string                `json:"run_id" yaml:"run_id"`
	State    string                `json:"state" yaml:"state"`
	Error    string                `json:"error,omitempty" yaml:"error,omitempty"`
	Settings settings.Settings     `json:"settings" yaml:"settings"`
	Stats    model.RunStatistics   `json:"stats" yaml:"stats"`
	Jobs     []model.JobReport     `json:"jobs" yaml:"jobs"`
	Rejected []discovery.Rejection `json:"rejected,omitempty" yaml:"rejected,omitempty"`
}

// LoadHistory returns up to limit records, newest first. A limit of zero or
// less returns all of them. Unreadable records are skipped.
func LoadHistory(stateDir string, limit int) ([]RunRecord, error) {
	paths, err := runstore.ListHistoryRecords(stateDir)
	if err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(paths))
	for _, p := range paths {
		if limit > 0 && len(out) >= limit {
			break
		}
		var rec RunRecord
		if err := runstore.ReadJSON(p, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
