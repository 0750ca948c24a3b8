// Package settings loads, validates and persists the key=value config file.
package settings

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pbrify/internal/runstore"
)

const (
	DefaultConfigPath = "config.txt"

	// ExecutableName is the only converter file name accepted, compared
	// without regard to case.
	ExecutableName = "create_pbr.exe"

	KeyModsDir       = "mods_directory"
	KeyOutputDir     = "output_directory"
	KeyCreatePBRPath = "create_pbr_path"
	KeyCheckpoint    = "checkpoint"
	KeyTextureFormat = "texture_format"
	KeyMaxTileSize   = "max_tile_size"

	CheckpointS4    = "s4"
	CheckpointS4Alt = "s4_alt"
	FormatDDS       = "dds"
	FormatPNG       = "png"
	TileSize1024    = "1024"
	TileSize2048    = "2048"

	DefaultCheckpoint    = CheckpointS4
	DefaultTextureFormat = FormatDDS
	DefaultMaxTileSize   = TileSize1024
)

var (
	Checkpoints    = []string{CheckpointS4, CheckpointS4Alt}
	TextureFormats = []string{FormatDDS, FormatPNG}
	MaxTileSizes   = []string{TileSize1024, TileSize2048}

	// Keys lists every recognized key in the order Save writes them.
	Keys = []string{KeyModsDir, KeyOutputDir, KeyCreatePBRPath, KeyCheckpoint, KeyTextureFormat, KeyMaxTileSize}
)

// ErrInvalid marks configuration problems the operator has to fix.
var ErrInvalid = errors.New("invalid settings")

type Settings struct {
	ModsDir       string `json:"mods_directory" yaml:"mods_directory"`
	OutputDir     string `json:"output_directory" yaml:"output_directory"`
	CreatePBRPath string `json:"create_pbr_path" yaml:"create_pbr_path"`
	Checkpoint    string `json:"checkpoint" yaml:"checkpoint"`
	TextureFormat string `json:"texture_format" yaml:"texture_format"`
	MaxTileSize   string `json:"max_tile_size" yaml:"max_tile_size"`
}

// Discarded records a config entry that was dropped while loading.
type Discarded struct {
	Key    string
	Value  string
	Reason string
}

func Defaults() Settings {
	return Settings{
		Checkpoint:    DefaultCheckpoint,
		TextureFormat: DefaultTextureFormat,
		MaxTileSize:   DefaultMaxTileSize,
	}
}

// Load reads path. A missing file yields defaults. Entries that fail their
// check are dropped and reported, never treated as fatal. The error is only
// set when an existing file could not be read; Settings is usable either way.
func Load(path string) (Settings, []Discarded, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil, nil
		}
		return Defaults(), nil, fmt.Errorf("read config %s: %w", path, err)
	}
	defer f.Close()
	s, discarded, err := Parse(f)
	if err != nil {
		return Defaults(), nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return s, discarded, nil
}

// Parse reads key=value lines. Unknown keys are ignored and the last value
// of a repeated key wins.
func Parse(r io.Reader) (Settings, []Discarded, error) {
	raw := map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		raw[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return Defaults(), nil, err
	}

	s := Defaults()
	var discarded []Discarded
	for _, key := range Keys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		if err := s.Set(key, value); err != nil {
			discarded = append(discarded, Discarded{Key: key, Value: value, Reason: err.Error()})
		}
	}
	return s, discarded, nil
}

// Set assigns one field after checking it. On failure the field keeps its
// previous value.
func (s *Settings) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case KeyModsDir:
		if !runstore.IsDir(value) {
			return fieldError(key, "not an existing directory: %q", value)
		}
		s.ModsDir = value
	case KeyOutputDir:
		if !runstore.IsDir(value) {
			return fieldError(key, "not an existing directory: %q", value)
		}
		s.OutputDir = value
	case KeyCreatePBRPath:
		if err := checkExecutable(value); err != nil {
			return fieldError(key, "%v", err)
		}
		s.CreatePBRPath = value
	case KeyCheckpoint:
		if !slices.Contains(Checkpoints, value) {
			return fieldError(key, "must be one of %s", strings.Join(Checkpoints, ", "))
		}
		s.Checkpoint = value
	case KeyTextureFormat:
		if !slices.Contains(TextureFormats, value) {
			return fieldError(key, "must be one of %s", strings.Join(TextureFormats, ", "))
		}
		s.TextureFormat = value
	case KeyMaxTileSize:
		if !slices.Contains(MaxTileSizes, value) {
			return fieldError(key, "must be one of %s", strings.Join(MaxTileSizes, ", "))
		}
		s.MaxTileSize = value
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalid, key)
	}
	return nil
}

// Get returns the stored value for key, or "" for unknown keys.
func (s Settings) Get(key string) string {
	switch key {
	case KeyModsDir:
		return s.ModsDir
	case KeyOutputDir:
		return s.OutputDir
	case KeyCreatePBRPath:
		return s.CreatePBRPath
	case KeyCheckpoint:
		return s.Checkpoint
	case KeyTextureFormat:
		return s.TextureFormat
	case KeyMaxTileSize:
		return s.MaxTileSize
	default:
		return ""
	}
}

// Validate checks the whole configuration against the filesystem as it is
// now. All problems are reported together.
func (s Settings) Validate() error {
	var errs []error
	if !runstore.IsDir(s.ModsDir) {
		errs = append(errs, fieldError(KeyModsDir, "mods directory is not set or does not exist"))
	}
	if !runstore.IsDir(s.OutputDir) {
		errs = append(errs, fieldError(KeyOutputDir, "output directory is not set or does not exist"))
	}
	if err := checkExecutable(s.CreatePBRPath); err != nil {
		errs = append(errs, fieldError(KeyCreatePBRPath, "%v", err))
	}
	if s.ModsDir != "" && s.OutputDir != "" && samePath(s.ModsDir, s.OutputDir) {
		errs = append(errs, fieldError(KeyOutputDir, "mods directory and output directory cannot be the same"))
	}
	if !slices.Contains(Checkpoints, s.Checkpoint) {
		errs = append(errs, fieldError(KeyCheckpoint, "must be one of %s", strings.Join(Checkpoints, ", ")))
	}
	if !slices.Contains(TextureFormats, s.TextureFormat) {
		errs = append(errs, fieldError(KeyTextureFormat, "must be one of %s", strings.Join(TextureFormats, ", ")))
	}
	if !slices.Contains(MaxTileSizes, s.MaxTileSize) {
		errs = append(errs, fieldError(KeyMaxTileSize, "must be one of %s", strings.Join(MaxTileSizes, ", ")))
	}
	return errors.Join(errs...)
}

func (s Settings) IsValid() bool {
	return s.Validate() == nil
}

// Save writes every set field with absolute paths. Unset paths are left out
// so a later Load falls back to "unset" for them.
func (s Settings) Save(path string) error {
	var b strings.Builder
	for _, key := range Keys {
		value := s.Get(key)
		switch key {
		case KeyModsDir, KeyOutputDir, KeyCreatePBRPath:
			if strings.TrimSpace(value) == "" {
				continue
			}
			if abs, err := filepath.Abs(value); err == nil {
				value = abs
			}
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	if err := runstore.WriteBytes(path, []byte(b.String())); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func checkExecutable(path string) error {
	if !runstore.IsFile(path) {
		return errors.New(ExecutableName + " is not set or does not exist")
	}
	if !strings.EqualFold(filepath.Base(path), ExecutableName) {
		return fmt.Errorf("selected file is not %s", ExecutableName)
	}
	return nil
}

func samePath(a, b string) bool {
	if runstore.SameEntry(a, b) {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func fieldError(key, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, key, fmt.Sprintf(format, args...))
}
