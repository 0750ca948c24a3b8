package cli

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbrify/internal/model"
	"pbrify/internal/settings"
)

func TestManageSelectFieldCycles(t *testing.T) {
	m := manageModel{
		mode: manageModeForm,
		form: newManageSettingsForm(settings.Defaults(), 80),
	}
	m.form.Index = findFieldIndexByKey(m.form, settings.KeyCheckpoint)
	require.GreaterOrEqual(t, m.form.Index, 0)

	next, _ := m.updateForm(tea.KeyMsg{Type: tea.KeyRight})
	m2 := next.(manageModel)
	assert.Equal(t, settings.CheckpointS4Alt, m2.form.currentField().Value)

	next, _ = m2.updateForm(tea.KeyMsg{Type: tea.KeySpace})
	m3 := next.(manageModel)
	assert.Equal(t, settings.CheckpointS4, m3.form.currentField().Value, "wraps around")

	next, _ = m3.updateForm(tea.KeyMsg{Type: tea.KeyLeft})
	m4 := next.(manageModel)
	assert.Equal(t, settings.CheckpointS4Alt, m4.form.currentField().Value)
}

func TestManageFormRejectsMissingPaths(t *testing.T) {
	m := manageModel{
		opts: &rootOptions{configPath: filepath.Join(t.TempDir(), "config.txt")},
		mode: manageModeForm,
		form: newManageSettingsForm(settings.Defaults(), 80),
	}

	next, cmd := m.updateForm(tea.KeyMsg{Type: tea.KeyCtrlS})
	m2 := next.(manageModel)
	assert.Nil(t, cmd)
	assert.False(t, m2.form.Saving)
	assert.Contains(t, m2.form.Error, "mods directory is required")
	assert.Contains(t, m2.form.Error, "create_pbr.exe is required")
}

func TestManageFormSavesValidSettings(t *testing.T) {
	root := t.TempDir()
	mods := filepath.Join(root, "mods")
	out := filepath.Join(root, "out")
	exe := filepath.Join(root, "create_pbr.exe")
	require.NoError(t, os.MkdirAll(mods, 0o755))
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	configPath := filepath.Join(root, "config.txt")

	cfg := settings.Defaults()
	cfg.ModsDir = mods
	cfg.OutputDir = out
	cfg.CreatePBRPath = exe
	m := manageModel{
		opts: &rootOptions{configPath: configPath},
		mode: manageModeForm,
		form: newManageSettingsForm(cfg, 80),
	}
	m.form.Index = findFieldIndexByKey(m.form, settings.KeyTextureFormat)
	next, _ := m.updateForm(tea.KeyMsg{Type: tea.KeyRight})
	m = next.(manageModel)

	next, cmd := m.updateForm(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = next.(manageModel)
	require.NotNil(t, cmd)
	assert.True(t, m.form.Saving)

	next, _ = m.Update(cmd())
	m = next.(manageModel)
	assert.Equal(t, manageModeBrowse, m.mode)
	assert.Nil(t, m.form)
	assert.NoError(t, m.cfgErr)
	assert.Equal(t, settings.FormatPNG, m.cfg.TextureFormat)
	assert.True(t, strings.HasPrefix(m.statusMessage, "settings saved"))

	saved, _, err := settings.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, settings.FormatPNG, saved.TextureFormat)
	assert.Equal(t, mods, saved.ModsDir)
}

func TestManageFormRejectsSameDirectories(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "create_pbr.exe")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	cfg := settings.Defaults()
	cfg.ModsDir = dir
	cfg.OutputDir = dir
	cfg.CreatePBRPath = exe

	form := newManageSettingsForm(cfg, 80)
	_, err := form.toSettings()
	require.Error(t, err)
	assert.ErrorIs(t, err, settings.ErrInvalid)
	assert.Contains(t, err.Error(), "cannot be the same")
}

func TestManageBrowseRunNeedsValidSettings(t *testing.T) {
	m := newManageModel(&rootOptions{})
	m.cfgErr = m.cfg.Validate()
	m.cursor = manageActionRun

	next, cmd := m.updateBrowse(tea.KeyMsg{Type: tea.KeyEnter})
	m2 := next.(manageModel)
	assert.Nil(t, cmd)
	assert.Equal(t, manageModeBrowse, m2.mode)
	assert.True(t, strings.HasPrefix(m2.statusMessage, "error:"))
}

func TestManageBrowseOpensSettingsForm(t *testing.T) {
	m := newManageModel(&rootOptions{})
	m.cursor = manageActionSettings

	next, _ := m.updateBrowse(tea.KeyMsg{Type: tea.KeyEnter})
	m2 := next.(manageModel)
	assert.Equal(t, manageModeForm, m2.mode)
	require.NotNil(t, m2.form)
	assert.Len(t, m2.form.Fields, len(settings.Keys))
}

func TestManageRunTracksEvents(t *testing.T) {
	events := make(chan model.Event, 8)
	r := newManageRun(nil, events, 100, 30)

	r.handle(model.LogLine{Time: time.Now(), Level: model.LevelDebug, Text: "hidden"}, slog.LevelInfo)
	r.handle(model.LogLine{Time: time.Now(), Level: model.LevelInfo, Text: "Processing ModA"}, slog.LevelInfo)
	r.handle(model.OverallProgress{Current: 1, Total: 2, JobName: "ModA"}, slog.LevelInfo)
	r.handle(model.UnitProgress{Current: 3, Total: 4}, slog.LevelInfo)
	require.Len(t, r.logs, 1)
	assert.Contains(t, r.logs[0], "Processing ModA")
	assert.Equal(t, 2, r.overall.Total)
	assert.Equal(t, 3, r.units.Current)

	r.handle(model.OverallProgress{Current: 2, Total: 2, JobName: "ModB"}, slog.LevelInfo)
	assert.Zero(t, r.units.Total, "unit progress resets per mod")

	r.handle(model.RunFinished{State: model.StateCompleted}, slog.LevelInfo)
	require.NotNil(t, r.finished)
	assert.Equal(t, 2, r.overall.Current)

	close(events)
	assert.Equal(t, manageRunClosedMsg{}, waitForEventCmd(events)())
}

func TestManageRunLogIsBounded(t *testing.T) {
	r := newManageRun(nil, nil, 100, 30)
	for range manageLogLimit + 10 {
		r.appendLog("line")
	}
	assert.Len(t, r.logs, manageLogLimit)
}

func findFieldIndexByKey(f *manageForm, key string) int {
	if f == nil {
		return -1
	}
	for i, field := range f.Fields {
		if field.Key == key {
			return i
		}
	}
	return -1
}
