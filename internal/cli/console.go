package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"pbrify/internal/logging"
	"pbrify/internal/model"
)

// consoleRenderer turns run events into console output: log lines at or
// above level, and a live progress bar when the writer is a terminal.
type consoleRenderer struct {
	w        io.Writer
	level    slog.Level
	colorize bool
	live     bool

	bar      *progressbar.ProgressBar
	job      model.OverallProgress
	units    model.UnitProgress
	finished *model.RunFinished
	failure  string
}

func newConsoleRenderer(w io.Writer, level slog.Level, colorize, live bool) *consoleRenderer {
	return &consoleRenderer{w: w, level: level, colorize: colorize, live: live}
}

func (r *consoleRenderer) handle(ev model.Event) {
	switch ev := ev.(type) {
	case model.LogLine:
		level, err := logging.ParseLevel(ev.Level)
		if err != nil || level < r.level {
			return
		}
		r.clearBar()
		fmt.Fprintln(r.w, logging.FormatEvent(ev, r.colorize))
		r.redrawBar()
	case model.OverallProgress:
		r.job = ev
		r.units = model.UnitProgress{}
		if !r.live {
			return
		}
		if r.bar == nil {
			r.bar = r.newBar(ev.Total)
		}
		r.bar.ChangeMax(ev.Total)
		_ = r.bar.Set(ev.Current - 1)
		r.bar.Describe(r.describe())
	case model.UnitProgress:
		r.units = ev
		if r.bar != nil {
			r.bar.Describe(r.describe())
		}
	case model.RunFailed:
		r.failure = ev.Reason
	case model.RunFinished:
		r.finished = &ev
		if r.bar != nil {
			if ev.State == model.StateCompleted {
				_ = r.bar.Set(r.job.Total)
			}
			_ = r.bar.Clear()
			r.bar = nil
		}
	}
}

func (r *consoleRenderer) describe() string {
	desc := fmt.Sprintf("[%d/%d] %s", r.job.Current, r.job.Total, truncateRunes(r.job.JobName, 32))
	if r.units.Total > 0 || r.units.Current > 0 {
		desc += fmt.Sprintf(" (%d/%d textures)", r.units.Current, r.units.Total)
	}
	return desc
}

func (r *consoleRenderer) newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetWidth(barWidth(r.w)),
		progressbar.OptionEnableColorCodes(r.colorize),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (r *consoleRenderer) clearBar() {
	if r.bar != nil {
		_ = r.bar.Clear()
	}
}

func (r *consoleRenderer) redrawBar() {
	if r.bar != nil {
		_ = r.bar.RenderBlank()
	}
}

// barWidth leaves room for the description and counters next to the bar.
func barWidth(w io.Writer) int {
	width := 100
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			width = cols
		}
	}
	return clampInt(width-70, 10, 50)
}
