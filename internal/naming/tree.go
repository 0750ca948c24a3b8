package naming

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrCollision means the sanitized name already belongs to another file.
var ErrCollision = errors.New("target name already taken")

// SanitizeTree renames every asset file under root whose name Sanitize would
// change. Failures on individual files are logged as warnings and skipped.
// The returned error is non-nil only when root itself cannot be walked or
// ctx is cancelled.
func SanitizeTree(ctx context.Context, root string, s *Sanitizer, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if _, err := os.Stat(root); err != nil {
		return 0, fmt.Errorf("sanitize %s: %w", root, err)
	}

	var candidates []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			logger.Warn("skipping unreadable entry during rename pass", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if s.HasAssetExtension(d.Name()) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sanitize %s: %w", root, err)
	}

	renamed := 0
	for _, oldPath := range candidates {
		if err := ctx.Err(); err != nil {
			return renamed, err
		}
		name := filepath.Base(oldPath)
		newName := s.Sanitize(name)
		if newName == name {
			continue
		}
		newPath := filepath.Join(filepath.Dir(oldPath), newName)
		if err := renameAsset(oldPath, newPath); err != nil {
			logger.Warn("could not rename texture", "from", oldPath, "to", newName, "error", err)
			continue
		}
		logger.Info("renamed texture", "from", name, "to", newName)
		renamed++
	}
	return renamed, nil
}

func renameAsset(oldPath, newPath string) error {
	if target, err := os.Lstat(newPath); err == nil {
		// On case-insensitive filesystems the target resolves to the source
		// itself; that rename only changes case and is allowed.
		source, srcErr := os.Lstat(oldPath)
		if srcErr != nil {
			return srcErr
		}
		if !os.SameFile(source, target) {
			return ErrCollision
		}
	}
	return os.Rename(oldPath, newPath)
}
