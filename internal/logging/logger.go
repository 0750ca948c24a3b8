// Package logging provides the slog handlers used by pbrify: a console
// handler, the per-run log file, and an adapter that turns records into
// front-end events.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"pbrify/internal/model"
)

// LevelOutput is used for raw converter output lines. It sorts between
// debug and info so consoles can hide it while the run log keeps it.
const LevelOutput = slog.Level(-2)

const RunLogFileName = "pbrify_log.txt"

func LevelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= slog.LevelInfo:
		return "INFO"
	case level >= LevelOutput:
		return "OUTPUT"
	default:
		return "DEBUG"
	}
}

func ModelLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return model.LevelError
	case level >= slog.LevelWarn:
		return model.LevelWarn
	case level >= slog.LevelInfo:
		return model.LevelInfo
	case level >= LevelOutput:
		return model.LevelOutput
	default:
		return model.LevelDebug
	}
}

// ParseLevel accepts debug, output, info, warn/warning and error.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "output":
		return LevelOutput, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, output, info, warn, or error)", raw)
	}
}

type ConsoleOptions struct {
	Writer  io.Writer
	Level   slog.Leveler
	NoColor bool
}

// NewConsoleHandler writes short timestamped lines. Level tags are colored
// only when the writer is a terminal.
func NewConsoleHandler(opts ConsoleOptions) slog.Handler {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	return newLineHandler(w, level, consoleTimeFormat, !opts.NoColor && IsTerminal(w))
}

// IsTerminal reports whether w is a terminal, including Cygwin/MSYS ptys.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// DisableColor turns off color for every fatih/color writer in the process.
func DisableColor() {
	color.NoColor = true
}

// RunLog is the per-run log file, truncated when opened.
type RunLog struct {
	file *os.File
	h    slog.Handler
}

func OpenRunLog(path string) (*RunLog, error) {
	if strings.TrimSpace(path) == "" {
		path = RunLogFileName
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	return &RunLog{
		file: f,
		h:    newLineHandler(f, slog.LevelDebug, fileTimeFormat, false),
	}, nil
}

func (l *RunLog) Handler() slog.Handler {
	if l == nil {
		return nil
	}
	return l.h
}

func (l *RunLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// NewTextHandler writes run-log style lines to w. Used where a caller wants
// the file format on an arbitrary writer.
func NewTextHandler(w io.Writer, level slog.Leveler) slog.Handler {
	if level == nil {
		level = slog.LevelDebug
	}
	return newLineHandler(w, level, fileTimeFormat, false)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
