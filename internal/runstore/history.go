package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const historyDirName = "history"

func HistoryDir(stateDir string) string {
	return filepath.Join(stateDir, historyDirName)
}

func HistoryRecordPath(stateDir, runID string) string {
	return filepath.Join(HistoryDir(stateDir), runID+".json")
}

// SaveHistoryRecord writes one run record atomically.
func SaveHistoryRecord(stateDir, runID string, v any) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	return WriteJSON(HistoryRecordPath(stateDir, runID), v)
}

// ListHistoryRecords returns record paths, newest first. A missing history
// directory is not an error.
func ListHistoryRecords(stateDir string) ([]string, error) {
	dir := HistoryDir(stateDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read history directory %s: %w", dir, err)
	}

	type rec struct {
		path    string
		modTime int64
	}
	recs := make([]rec, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		recs = append(recs, rec{path: filepath.Join(dir, e.Name()), modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].modTime != recs[j].modTime {
			return recs[i].modTime > recs[j].modTime
		}
		return recs[i].path > recs[j].path
	})

	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.path
	}
	return out, nil
}
