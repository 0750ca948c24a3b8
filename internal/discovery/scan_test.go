package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbrify/internal/settings"
)

func mkdirs(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(r)), 0o755))
	}
}

func jobNames(res ScanResult) []string {
	out := make([]string, 0, len(res.Jobs))
	for _, j := range res.Jobs {
		out = append(out, j.Name)
	}
	return out
}

func rejectionReasons(res ScanResult) map[string]string {
	out := make(map[string]string, len(res.Rejected))
	for _, r := range res.Rejected {
		out[r.Name] = r.Reason
	}
	return out
}

func TestScanExampleScenario(t *testing.T) {
	tmp := t.TempDir()
	mods := filepath.Join(tmp, "mods")
	out := filepath.Join(tmp, "out")
	mkdirs(t, mods, "ModA/Textures", "ModB/textures/pbr")
	mkdirs(t, tmp, "out")
	require.NoError(t, os.WriteFile(filepath.Join(mods, "ModA", "Textures", "foo_Diffuse.dds"), nil, 0o644))

	res, err := Scan(context.Background(), ScanOptions{ModsDir: mods, OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	require.Len(t, res.Jobs, 1)

	job := res.Jobs[0]
	assert.Equal(t, "ModA", job.Name)
	assert.Equal(t, filepath.Join(mods, "ModA"), job.SourcePath)
	assert.Equal(t, filepath.Join(out, "ModA PBR"), job.OutputPath)
	assert.Equal(t, filepath.Join(mods, "ModA", "Textures"), job.AssetsPath)
	assert.Equal(t, map[string]string{"ModB": ReasonAlreadyConverted}, rejectionReasons(res))
}

func TestNewJobDerivesOutputAndLogPaths(t *testing.T) {
	job := NewJob(filepath.Join("mods", "ModA"), "out")
	assert.Equal(t, "ModA", job.Name)
	assert.Equal(t, OutputPathFor("out", "ModA"), job.OutputPath)
	assert.Equal(t, filepath.Join("out", "ModA PBR"), job.OutputPath)
	assert.Equal(t, filepath.Join("out", "ModA PBR", "ModA_LOG.txt"), job.LogPath())
}

func TestScanExclusions(t *testing.T) {
	tmp := t.TempDir()
	mods := filepath.Join(tmp, "mods")
	out := filepath.Join(tmp, "out")
	mkdirs(t, mods,
		"Zeta/textures",
		"Alpha/TEXTURES",
		"NoAssets/meshes",
		"Converted/textures/PbR",
		"Done/textures",
		"Partial/textures",
		"NestedPbr/textures/sub/pbr",
	)
	mkdirs(t, out, "Done PBR", "Partial PBR")
	require.NoError(t, MarkComplete(filepath.Join(out, "Done PBR")))
	require.NoError(t, os.WriteFile(filepath.Join(mods, "stray.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(mods, "Zeta", "textures.txt"), nil, 0o644))

	res, err := Scan(context.Background(), ScanOptions{ModsDir: mods, OutputDir: out})
	require.NoError(t, err)

	assert.Equal(t, []string{"Alpha", "NestedPbr", "Zeta"}, jobNames(res))
	assert.Equal(t, map[string]string{
		"Converted": ReasonAlreadyConverted,
		"Done":      ReasonOutputExists,
		"NoAssets":  ReasonNoAssets,
		"Partial":   ReasonOutputIncomplete,
	}, rejectionReasons(res))
	assert.Equal(t, 7, res.Candidates)
}

func TestScanRejectsAmbiguousAssets(t *testing.T) {
	tmp := t.TempDir()
	mods := filepath.Join(tmp, "mods")
	mkdirs(t, mods, "Both/textures", "Both/Textures")
	if entries, _ := os.ReadDir(filepath.Join(mods, "Both")); len(entries) < 2 {
		t.Skip("needs a case-sensitive filesystem")
	}

	res, err := Scan(context.Background(), ScanOptions{ModsDir: mods, OutputDir: filepath.Join(tmp, "out")})
	require.NoError(t, err)
	assert.Empty(t, res.Jobs)
	assert.Equal(t, map[string]string{"Both": ReasonAmbiguousAssets}, rejectionReasons(res))

	_, err = FindAssetsDir(filepath.Join(mods, "Both"))
	assert.True(t, errors.Is(err, ErrAmbiguousAssets))
}

func TestScanOutputExistsAsFileOrDanglingLink(t *testing.T) {
	tmp := t.TempDir()
	mods := filepath.Join(tmp, "mods")
	out := filepath.Join(tmp, "out")
	mkdirs(t, mods, "FileOut/textures", "LinkOut/textures")
	mkdirs(t, tmp, "out")
	require.NoError(t, os.WriteFile(filepath.Join(out, "FileOut PBR"), nil, 0o644))
	require.NoError(t, os.Symlink(filepath.Join(tmp, "gone"), filepath.Join(out, "LinkOut PBR")))

	res, err := Scan(context.Background(), ScanOptions{ModsDir: mods, OutputDir: out})
	require.NoError(t, err)
	assert.Empty(t, res.Jobs)
	assert.Len(t, res.Rejected, 2)
}

func TestScanFollowsSymlinkedMods(t *testing.T) {
	tmp := t.TempDir()
	mods := filepath.Join(tmp, "mods")
	mkdirs(t, tmp, "elsewhere/Linked/textures", "mods")
	require.NoError(t, os.Symlink(filepath.Join(tmp, "elsewhere", "Linked"), filepath.Join(mods, "Linked")))
	require.NoError(t, os.Symlink(filepath.Join(tmp, "missing"), filepath.Join(mods, "Broken")))

	res, err := Scan(context.Background(), ScanOptions{ModsDir: mods, OutputDir: filepath.Join(tmp, "out")})
	require.NoError(t, err)
	assert.Equal(t, []string{"Linked"}, jobNames(res))
	assert.Equal(t, 1, res.Candidates)
}

func TestScanIsDeterministic(t *testing.T) {
	tmp := t.TempDir()
	mods := filepath.Join(tmp, "mods")
	out := filepath.Join(tmp, "out")
	mkdirs(t, mods, "c/textures", "a/textures", "b/textures/pbr", "d/other")

	first, err := Scan(context.Background(), ScanOptions{ModsDir: mods, OutputDir: out})
	require.NoError(t, err)
	second, err := Scan(context.Background(), ScanOptions{ModsDir: mods, OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a", "c"}, jobNames(first))
}

func TestScanRootFailureIsFatal(t *testing.T) {
	_, err := Scan(context.Background(), ScanOptions{ModsDir: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScanRoot))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = Scan(context.Background(), ScanOptions{})
	assert.True(t, errors.Is(err, ErrScanRoot))
}

func TestScanSkipsUnreadableCandidate(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	tmp := t.TempDir()
	mods := filepath.Join(tmp, "mods")
	mkdirs(t, mods, "Locked/textures", "Open/textures")
	locked := filepath.Join(mods, "Locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	res, err := Scan(context.Background(), ScanOptions{ModsDir: mods, OutputDir: filepath.Join(tmp, "out")})
	require.NoError(t, err)
	assert.Equal(t, []string{"Open"}, jobNames(res))
	assert.Equal(t, map[string]string{"Locked": ReasonScanError}, rejectionReasons(res))
}

func TestDoctorReportsMissingSettings(t *testing.T) {
	res := Doctor(DoctorOptions{Settings: settings.Defaults()})
	assert.False(t, res.OK)

	byName := map[string]DoctorCheck{}
	for _, c := range res.Checks {
		byName[c.Name] = c
	}
	assert.False(t, byName["directory:mods"].OK)
	assert.False(t, byName["directory:output"].OK)
	assert.False(t, byName["converter:create_pbr.exe"].OK)
	assert.True(t, byName["settings:options"].OK)
}

func TestDoctorPassesForValidSetup(t *testing.T) {
	tmp := t.TempDir()
	mkdirs(t, tmp, "mods", "out", "tool")
	exe := filepath.Join(tmp, "tool", "create_pbr.exe")
	require.NoError(t, os.WriteFile(exe, nil, 0o755))

	s := settings.Defaults()
	s.ModsDir = filepath.Join(tmp, "mods")
	s.OutputDir = filepath.Join(tmp, "out")
	s.CreatePBRPath = exe

	res := Doctor(DoctorOptions{
		Settings:   s,
		ConfigPath: filepath.Join(tmp, "config.txt"),
		StateDir:   filepath.Join(tmp, ".pbrify"),
	})
	for _, c := range res.Checks {
		assert.True(t, c.OK, "%s: %s", c.Name, c.Message)
	}
	assert.True(t, res.OK)
}
