package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"pbrify/internal/runstore"
	"pbrify/internal/settings"
)

type DoctorOptions struct {
	Settings   settings.Settings
	ConfigPath string
	StateDir   string
}

type DoctorResult struct {
	OK     bool          `json:"ok" yaml:"ok"`
	Checks []DoctorCheck `json:"checks" yaml:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name" yaml:"name"`
	OK      bool   `json:"ok" yaml:"ok"`
	Message string `json:"message" yaml:"message"`
}

// Doctor runs preflight checks without touching any mod.
func Doctor(opts DoctorOptions) DoctorResult {
	s := opts.Settings
	checks := make([]DoctorCheck, 0, 7)

	checks = append(checks, dirCheck("directory:mods", s.ModsDir))
	outCheck := dirCheck("directory:output", s.OutputDir)
	if outCheck.OK {
		outCheck.OK, outCheck.Message = checkWritableDir(s.OutputDir)
	}
	checks = append(checks, outCheck)

	exe := DoctorCheck{Name: "converter:" + settings.ExecutableName}
	switch {
	case strings.TrimSpace(s.CreatePBRPath) == "":
		exe.Message = "not set"
	case !runstore.IsFile(s.CreatePBRPath):
		exe.Message = "not found at " + s.CreatePBRPath
	case !strings.EqualFold(filepath.Base(s.CreatePBRPath), settings.ExecutableName):
		exe.Message = "file name must be " + settings.ExecutableName
	default:
		exe.OK = true
		exe.Message = "found at " + s.CreatePBRPath
	}
	checks = append(checks, exe)

	distinct := DoctorCheck{Name: "directories:distinct", OK: true, Message: "mods and output directories differ"}
	if s.ModsDir != "" && s.OutputDir != "" && runstore.SameEntry(s.ModsDir, s.OutputDir) {
		distinct.OK = false
		distinct.Message = "mods directory and output directory are the same"
	}
	checks = append(checks, distinct)

	options := DoctorCheck{Name: "settings:options", OK: true, Message: s.Checkpoint + " / " + s.TextureFormat + " / " + s.MaxTileSize}
	for _, key := range []string{settings.KeyCheckpoint, settings.KeyTextureFormat, settings.KeyMaxTileSize} {
		probe := settings.Defaults()
		if err := probe.Set(key, s.Get(key)); err != nil {
			options.OK = false
			options.Message = err.Error()
			break
		}
	}
	checks = append(checks, options)

	if strings.TrimSpace(opts.ConfigPath) != "" {
		ok, msg := checkWritableDir(filepath.Dir(opts.ConfigPath))
		checks = append(checks, DoctorCheck{Name: "directory:config", OK: ok, Message: msg})
	}
	if strings.TrimSpace(opts.StateDir) != "" {
		ok, msg := ensureWritableDir(opts.StateDir)
		checks = append(checks, DoctorCheck{Name: "directory:state", OK: ok, Message: msg})
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}
}

func dirCheck(name, path string) DoctorCheck {
	c := DoctorCheck{Name: name}
	switch {
	case strings.TrimSpace(path) == "":
		c.Message = "not set"
	case !runstore.IsDir(path):
		c.Message = "not a directory: " + path
	default:
		c.OK = true
		c.Message = path
	}
	return c
}

// checkWritableDir probes an existing directory without creating it.
func checkWritableDir(path string) (bool, string) {
	if !runstore.IsDir(path) {
		return false, "not a directory: " + path
	}
	return probeWrite(path)
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	return probeWrite(path)
}

func probeWrite(path string) (bool, string) {
	f, err := os.CreateTemp(path, "pbrify-check-*.tmp")
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return false, "not writable: " + path
		}
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
