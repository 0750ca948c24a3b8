package logging

import (
	"context"
	"log/slog"
	"time"

	"pbrify/internal/model"
)

// eventHandler turns log records into model.LogLine events.
type eventHandler struct {
	emit   model.EmitFunc
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewEventHandler forwards every record at or above level to emit.
func NewEventHandler(emit model.EmitFunc, level slog.Leveler) slog.Handler {
	if emit == nil {
		return nil
	}
	if level == nil {
		level = LevelOutput
	}
	return &eventHandler{emit: emit, level: level}
}

func (h *eventHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *eventHandler) Handle(_ context.Context, record slog.Record) error {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.emit(model.LogLine{
		Time:  ts,
		Level: ModelLevel(record.Level),
		Text:  formatMessage(record, h.groups, h.attrs),
	})
	return nil
}

func (h *eventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), qualify(h.groups, attrs)...)
	return &next
}

func (h *eventHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}
