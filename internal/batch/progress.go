package batch

import (
	"regexp"
	"strconv"
	"strings"

	"pbrify/internal/model"
)

const (
	markerFound    = ": found"
	markerComplete = "PBR inference complete"
	markerSkipping = " Skipping "
)

var reTrailingCount = regexp.MustCompile(`(\d+)\s*$`)

// unitTracker follows the converter's per-texture progress lines for one
// job. It is best-effort: nothing here decides success or failure.
type unitTracker struct {
	total     int
	processed int
	skipped   int
	found     int
}

type lineResult struct {
	progress *model.UnitProgress
	warning  string
}

func (t *unitTracker) handle(line string) lineResult {
	switch {
	case strings.Contains(line, markerFound):
		m := reTrailingCount.FindStringSubmatch(line)
		if len(m) < 2 {
			return lineResult{warning: "could not read texture count from converter output"}
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return lineResult{warning: "texture count out of range: " + m[1]}
		}
		t.total = n
		t.found += n
		return lineResult{progress: t.snapshot()}
	case strings.Contains(line, markerComplete):
		t.processed++
		return lineResult{progress: t.snapshot()}
	case strings.Contains(line, markerSkipping):
		t.total--
		t.skipped++
		return lineResult{progress: t.snapshot()}
	}
	return lineResult{}
}

func (t *unitTracker) snapshot() *model.UnitProgress {
	return &model.UnitProgress{Current: t.processed, Total: t.total}
}
