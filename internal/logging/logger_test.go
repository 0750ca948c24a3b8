package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbrify/internal/model"
)

func TestLineHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTextHandler(&buf, slog.LevelDebug)).With("mod", "ModA")

	logger.Info("renamed texture", "from", "foo_Diffuse.dds", "count", 2)
	logger.Log(context.Background(), LevelOutput, "Textures: found 12")
	logger.WithGroup("job").Warn("odd", "path", "a b")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	ts := `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`
	assert.Regexp(t, regexp.MustCompile(`^`+ts+` \[INFO\] renamed texture mod=ModA from=foo_Diffuse.dds count=2$`), lines[0])
	assert.Regexp(t, regexp.MustCompile(`^`+ts+` \[OUTPUT\] Textures: found 12 mod=ModA$`), lines[1])
	assert.Regexp(t, regexp.MustCompile(`^`+ts+` \[WARNING\] odd mod=ModA job.path="a b"$`), lines[2])
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(ConsoleOptions{Writer: &buf, Level: slog.LevelInfo}))

	logger.Log(context.Background(), LevelOutput, "raw line")
	logger.Debug("hidden")
	logger.Error("boom")

	out := buf.String()
	assert.NotContains(t, out, "raw line")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[ERROR] boom")
	assert.NotContains(t, out, "\x1b[", "non-terminal writers get no color")
}

func TestEventHandlerEmitsLogLines(t *testing.T) {
	var events []model.Event
	h := NewEventHandler(func(ev model.Event) { events = append(events, ev) }, LevelOutput)
	logger := slog.New(h)

	logger.Debug("dropped")
	logger.Log(context.Background(), LevelOutput, "PBR inference complete")
	logger.Warn("careful", "mod", "ModA")

	require.Len(t, events, 2)
	first := events[0].(model.LogLine)
	assert.Equal(t, model.LevelOutput, first.Level)
	assert.Equal(t, "PBR inference complete", first.Text)
	assert.False(t, first.Time.IsZero())

	second := events[1].(model.LogLine)
	assert.Equal(t, model.LevelWarn, second.Level)
	assert.Equal(t, "careful mod=ModA", second.Text)

	assert.Nil(t, NewEventHandler(nil, nil))
}

func TestFanoutFiltersAndRoutes(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoH := NewTextHandler(&infoBuf, slog.LevelInfo)
	debugH := NewTextHandler(&debugBuf, slog.LevelDebug)

	assert.Equal(t, slog.DiscardHandler, newFanoutHandler(nil, nil))
	assert.Equal(t, infoH, newFanoutHandler(nil, infoH))

	logger := slog.New(newFanoutHandler(infoH, debugH))
	logger.Debug("detail")
	logger.Info("summary")

	assert.NotContains(t, infoBuf.String(), "detail")
	assert.Contains(t, infoBuf.String(), "summary")
	assert.Contains(t, debugBuf.String(), "detail")
	assert.Contains(t, debugBuf.String(), "summary")

	var teeBuf bytes.Buffer
	tee := Tee(slog.New(infoH), NewTextHandler(&teeBuf, slog.LevelDebug))
	tee.Info("both")
	assert.Contains(t, infoBuf.String(), "both")
	assert.Contains(t, teeBuf.String(), "both")
}

func TestOpenRunLogTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), RunLogFileName)
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

	rl, err := OpenRunLog(path)
	require.NoError(t, err)
	slog.New(rl.Handler()).Info("fresh")
	require.NoError(t, rl.Close())
	require.NoError(t, rl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "previous run")
	assert.Contains(t, string(data), "[INFO] fresh")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"OUTPUT":  LevelOutput,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestFormatEvent(t *testing.T) {
	ev := model.LogLine{
		Time:  time.Date(2026, 3, 1, 14, 5, 9, 0, time.Local),
		Level: model.LevelWarn,
		Text:  "mod skipped mod=ModA",
	}
	assert.Equal(t, "14:05:09 [WARNING] mod skipped mod=ModA", FormatEvent(ev, false))

	ev.Level = "bogus"
	assert.Equal(t, "14:05:09 [INFO] mod skipped mod=ModA", FormatEvent(ev, false))
}
