package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"pbrify/internal/model"
)

const (
	consoleTimeFormat = "15:04:05"
	fileTimeFormat    = "2006-01-02 15:04:05"
)

// lineHandler renders one record per line as "time [LEVEL] message k=v".
type lineHandler struct {
	mu         *sync.Mutex
	w          io.Writer
	level      slog.Leveler
	timeFormat string
	colorize   bool
	attrs      []slog.Attr
	groups     []string
}

func newLineHandler(w io.Writer, level slog.Leveler, timeFormat string, colorize bool) *lineHandler {
	return &lineHandler{
		mu:         &sync.Mutex{},
		w:          w,
		level:      level,
		timeFormat: timeFormat,
		colorize:   colorize,
	}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *lineHandler) Handle(_ context.Context, record slog.Record) error {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var buf bytes.Buffer
	buf.WriteString(ts.Format(h.timeFormat))
	buf.WriteByte(' ')
	tag := "[" + LevelName(record.Level) + "]"
	if h.colorize {
		tag = levelColor(record.Level).Sprint(tag)
	}
	buf.WriteString(tag)
	buf.WriteByte(' ')
	buf.WriteString(formatMessage(record, h.groups, h.attrs))
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), qualify(h.groups, attrs)...)
	return &next
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

// formatMessage renders the message followed by key=value pairs.
func formatMessage(record slog.Record, groups []string, base []slog.Attr) string {
	var b strings.Builder
	b.WriteString(record.Message)
	write := func(a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			return
		}
		if a.Value.Kind() == slog.KindGroup {
			for _, ga := range a.Value.Group() {
				ga.Key = a.Key + "." + ga.Key
				b.WriteByte(' ')
				writeAttr(&b, ga)
			}
			return
		}
		b.WriteByte(' ')
		writeAttr(&b, a)
	}
	for _, a := range base {
		write(a)
	}
	record.Attrs(func(a slog.Attr) bool {
		for _, q := range qualify(groups, []slog.Attr{a}) {
			write(q)
		}
		return true
	})
	return b.String()
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	b.WriteString(a.Key)
	b.WriteByte('=')
	v := a.Value.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindTime:
		s = v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		s = v.Duration().Round(time.Millisecond).String()
	default:
		s = fmt.Sprint(v.Any())
	}
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		s = fmt.Sprintf("%q", s)
	}
	b.WriteString(s)
}

func qualify(groups []string, attrs []slog.Attr) []slog.Attr {
	if len(groups) == 0 {
		return attrs
	}
	prefix := strings.Join(groups, ".") + "."
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		a.Key = prefix + a.Key
		out[i] = a
	}
	return out
}

func levelColor(level slog.Level) *color.Color {
	switch {
	case level >= slog.LevelError:
		return color.New(color.FgRed, color.Bold)
	case level >= slog.LevelWarn:
		return color.New(color.FgYellow)
	case level >= slog.LevelInfo:
		return color.New(color.FgCyan)
	case level >= LevelOutput:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgMagenta)
	}
}

// FormatEvent renders a log event the way the console handler renders
// records, without the trailing newline.
func FormatEvent(ev model.LogLine, colorize bool) string {
	level, err := ParseLevel(ev.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	tag := "[" + LevelName(level) + "]"
	if colorize {
		tag = levelColor(level).Sprint(tag)
	}
	return ts.Format(consoleTimeFormat) + " " + tag + " " + ev.Text
}
