package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pbrify/internal/model"
	"pbrify/internal/runstore"
)

const (
	AssetsDirName    = "textures"
	ConvertedDirName = "pbr"

	// CompleteMarkerName is written into an output directory once its job
	// finished successfully.
	CompleteMarkerName = ".pbrify-complete"
)

const (
	ReasonNoAssets         = "no_assets"
	ReasonAmbiguousAssets  = "ambiguous_assets"
	ReasonAlreadyConverted = "already_converted"
	ReasonOutputExists     = "output_exists"
	ReasonOutputIncomplete = "output_incomplete"
	ReasonScanError        = "scan_error"
)

var (
	// ErrScanRoot means the mods directory itself could not be listed.
	ErrScanRoot        = errors.New("cannot scan mods directory")
	ErrNoAssets        = errors.New("no textures folder")
	ErrAmbiguousAssets = errors.New("more than one textures folder")
)

type ScanOptions struct {
	ModsDir   string
	OutputDir string
	Logger    *slog.Logger
}

// Rejection explains why a candidate mod was not turned into a job.
type Rejection struct {
	Name   string `json:"name" yaml:"name"`
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

type ScanResult struct {
	Candidates int         `json:"candidates" yaml:"candidates"`
	Jobs       []model.Job `json:"jobs" yaml:"jobs"`
	Rejected   []Rejection `json:"rejected" yaml:"rejected"`
}

// Scan lists the mods under ModsDir that still need converting, sorted by
// name. Only a failure to list ModsDir itself is returned as an error.
func Scan(ctx context.Context, opts ScanOptions) (ScanResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	modsDir := strings.TrimSpace(opts.ModsDir)
	if modsDir == "" {
		return ScanResult{}, fmt.Errorf("%w: mods directory is required", ErrScanRoot)
	}

	entries, err := os.ReadDir(modsDir)
	if err != nil {
		return ScanResult{}, fmt.Errorf("%w %s: %w", ErrScanRoot, modsDir, err)
	}

	candidates := make([]string, 0, len(entries))
	for _, e := range entries {
		path := filepath.Join(modsDir, e.Name())
		if e.IsDir() || (e.Type()&os.ModeSymlink != 0 && runstore.IsDir(path)) {
			candidates = append(candidates, e.Name())
		}
	}
	sort.Strings(candidates)

	res := ScanResult{
		Candidates: len(candidates),
		Jobs:       []model.Job{},
		Rejected:   []Rejection{},
	}
	reject := func(name, path, reason, detail string) {
		res.Rejected = append(res.Rejected, Rejection{Name: name, Path: path, Reason: reason, Detail: detail})
	}

	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		path := filepath.Join(modsDir, name)

		assets, err := FindAssetsDir(path)
		switch {
		case errors.Is(err, ErrNoAssets):
			logger.Debug("mod has no textures folder", "mod", name)
			reject(name, path, ReasonNoAssets, "")
			continue
		case errors.Is(err, ErrAmbiguousAssets):
			logger.Warn("mod has more than one textures folder; skipping", "mod", name)
			reject(name, path, ReasonAmbiguousAssets, err.Error())
			continue
		case err != nil:
			logger.Warn("could not inspect mod; skipping", "mod", name, "error", err)
			reject(name, path, ReasonScanError, err.Error())
			continue
		}

		converted, err := HasConvertedMarker(assets)
		if err != nil {
			logger.Warn("could not inspect textures folder; skipping", "mod", name, "error", err)
			reject(name, path, ReasonScanError, err.Error())
			continue
		}
		if converted {
			logger.Debug("mod already has a pbr folder", "mod", name)
			reject(name, path, ReasonAlreadyConverted, "")
			continue
		}

		job := NewJob(path, opts.OutputDir)
		job.AssetsPath = assets
		if runstore.Exists(job.OutputPath) {
			if IsComplete(job.OutputPath) {
				reject(name, path, ReasonOutputExists, job.OutputPath)
			} else {
				logger.Warn("output exists without a completion marker; remove it to convert again",
					"mod", name, "output", job.OutputPath)
				reject(name, path, ReasonOutputIncomplete, job.OutputPath)
			}
			continue
		}
		res.Jobs = append(res.Jobs, job)
	}
	return res, nil
}

// FindAssetsDir returns the single immediate subdirectory of modPath named
// "textures" in any case.
func FindAssetsDir(modPath string) (string, error) {
	matches, err := subdirsNamed(modPath, AssetsDirName)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", ErrNoAssets
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousAssets, strings.Join(baseNames(matches), ", "))
	}
}

// HasConvertedMarker reports whether assetsPath already holds a "pbr"
// subdirectory in any case.
func HasConvertedMarker(assetsPath string) (bool, error) {
	matches, err := subdirsNamed(assetsPath, ConvertedDirName)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func OutputPathFor(outputDir, modName string) string {
	return filepath.Join(outputDir, modName+model.OutputSuffix)
}

// NewJob describes the mod at modPath converted into outputDir.
func NewJob(modPath, outputDir string) model.Job {
	name := filepath.Base(modPath)
	return model.Job{
		SourcePath: modPath,
		Name:       name,
		OutputPath: OutputPathFor(outputDir, name),
	}
}

func IsComplete(outputPath string) bool {
	return runstore.IsFile(filepath.Join(outputPath, CompleteMarkerName))
}

func MarkComplete(outputPath string) error {
	return runstore.WriteBytes(filepath.Join(outputPath, CompleteMarkerName), nil)
}

func subdirsNamed(parent, name string) ([]string, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", parent, err)
	}
	var out []string
	for _, e := range entries {
		if !strings.EqualFold(e.Name(), name) {
			continue
		}
		path := filepath.Join(parent, e.Name())
		if e.IsDir() || runstore.IsDir(path) {
			out = append(out, path)
		}
	}
	return out, nil
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
