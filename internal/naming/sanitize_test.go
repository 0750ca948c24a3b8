package naming

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeLowercasesRecognizedSuffix(t *testing.T) {
	s := Default()
	cases := map[string]string{
		"foo_Diffuse.dds":      "foo_diffuse.dds",
		"foo_DIFF.dds":         "foo_diff.dds",
		"foo_D.dds":            "foo_d.dds",
		"Rock_Wall_Normal.dds": "Rock_Wall_normal.dds",
		"rock_NoRm.dds":        "rock_norm.dds",
		"lamp_N.DDS":           "lamp_n.DDS",
		"lamp_Glow.Dds":        "lamp_glow.Dds",
		"Lamp_G.dds":           "Lamp_g.dds",
		"My.Tex_Diffuse.dds":   "My.Tex_diffuse.dds",
	}
	for in, want := range cases {
		assert.Equal(t, want, s.Sanitize(in), "input %q", in)
	}
}

func TestSanitizeLeavesOtherNamesUnchanged(t *testing.T) {
	s := Default()
	for _, name := range []string{
		"foo_diffuse.dds",   // already lowercase
		"foo_Specular.dds",  // unrecognized suffix
		"foo_Diffuse.png",   // wrong extension
		"foo_Diffuse.dds.bak",
		"Diffuse.dds",       // no underscore
		"foo_.dds",          // empty suffix
		"foo_Dif.fuse.dds",  // suffix may not contain a dot
		"foo_D_.dds",
		"",
	} {
		assert.Equal(t, name, s.Sanitize(name), "input %q", name)
	}
}

func TestSanitizeOnlyTouchesSuffixSegment(t *testing.T) {
	s := Default()
	for _, suffix := range DefaultSuffixes {
		for _, variant := range []string{strings.ToUpper(suffix), strings.ToUpper(suffix[:1]) + suffix[1:]} {
			in := "Some_MIXED_Name_" + variant + ".DdS"
			out := s.Sanitize(in)
			require.Len(t, out, len(in))
			prefix := "Some_MIXED_Name_"
			assert.Equal(t, prefix, out[:len(prefix)])
			assert.Equal(t, ".DdS", out[len(out)-4:])
			assert.Equal(t, suffix, out[len(prefix):len(out)-4])
			assert.Equal(t, out, s.Sanitize(out), "second pass must be a no-op for %q", out)
		}
	}
}

func TestSanitizeCustomSuffixesAndExtension(t *testing.T) {
	s := NewSanitizer([]string{"Albedo"}, "png")
	assert.Equal(t, ".png", s.Extension())
	assert.Equal(t, "wall_albedo.png", s.Sanitize("wall_ALBEDO.png"))
	assert.Equal(t, "wall_Diffuse.png", s.Sanitize("wall_Diffuse.png"))
	assert.True(t, s.HasAssetExtension("x.PNG"))
	assert.False(t, s.HasAssetExtension("png"))
}

func TestSanitizeTreeRenamesRecursively(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Textures")
	writeFiles(t, root,
		"foo_Diffuse.dds",
		"sub/deeper/bar_NORMAL.DDS",
		"sub/already_glow.dds",
		"sub/skip_Diffuse.png",
		"plain.dds",
	)

	renamed, err := SanitizeTree(context.Background(), root, Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, renamed)

	assert.Equal(t, []string{
		"foo_diffuse.dds",
		"plain.dds",
		"sub/already_glow.dds",
		"sub/deeper/bar_normal.DDS",
		"sub/skip_Diffuse.png",
	}, listFiles(t, root))

	again, err := SanitizeTree(context.Background(), root, Default(), nil)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestSanitizeTreeSkipsCollisions(t *testing.T) {
	root := t.TempDir()
	if caseInsensitive(t, root) {
		t.Skip("collision between case variants needs a case-sensitive filesystem")
	}
	writeFiles(t, root, "foo_Diffuse.dds", "foo_diffuse.dds", "bar_N.dds")

	renamed, err := SanitizeTree(context.Background(), root, Default(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, renamed)
	assert.Equal(t, []string{"bar_n.dds", "foo_Diffuse.dds", "foo_diffuse.dds"}, listFiles(t, root))

	err = renameAsset(filepath.Join(root, "foo_Diffuse.dds"), filepath.Join(root, "foo_diffuse.dds"))
	assert.True(t, errors.Is(err, ErrCollision))
}

func TestSanitizeTreeMissingRoot(t *testing.T) {
	_, err := SanitizeTree(context.Background(), filepath.Join(t.TempDir(), "nope"), Default(), nil)
	assert.Error(t, err)
}

func TestSanitizeTreeHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "foo_Diffuse.dds")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	renamed, err := SanitizeTree(ctx, root, Default(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, renamed)
	assert.Equal(t, []string{"foo_Diffuse.dds"}, listFiles(t, root))
}

func writeFiles(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, filepath.FromSlash(r))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("dds"), 0o644))
	}
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func caseInsensitive(t *testing.T, dir string) bool {
	t.Helper()
	probe := filepath.Join(dir, "CaseProbe")
	require.NoError(t, os.WriteFile(probe, nil, 0o644))
	defer os.Remove(probe)
	_, err := os.Stat(filepath.Join(dir, "caseprobe"))
	return err == nil
}
