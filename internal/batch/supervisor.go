package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"pbrify/internal/createpbr"
	"pbrify/internal/discovery"
	"pbrify/internal/logging"
	"pbrify/internal/model"
	"pbrify/internal/naming"
	"pbrify/internal/runstore"
	"pbrify/internal/settings"
)

// ErrBusy is returned when a supervisor is asked to launch a converter while
// one it started is still running.
var ErrBusy = errors.New("a converter process is already running")

const (
	reasonAssetsMissing = "textures folder no longer present"
	reasonOutputExists  = "output directory already exists"
)

// Supervisor runs one job at a time: rename pass, converter launch, output
// parsing and exit classification.
type Supervisor struct {
	Sanitizer      *naming.Sanitizer
	TerminateGrace time.Duration

	busy atomic.Bool
	kill <-chan struct{}
}

func NewSupervisor(grace time.Duration) *Supervisor {
	return &Supervisor{Sanitizer: naming.Default(), TerminateGrace: grace}
}

// Run converts a single job. The returned error is non-nil only for ErrBusy;
// everything else is reported through the JobReport outcome.
func (s *Supervisor) Run(ctx context.Context, job model.Job, cfg settings.Settings, logger *slog.Logger, emit model.EmitFunc) (model.JobReport, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return model.JobReport{}, ErrBusy
	}
	defer s.busy.Store(false)

	if logger == nil {
		logger = logging.Discard()
	}
	// Converter lines are forwarded verbatim, without the mod attribute.
	output := logger
	logger = logger.With("mod", job.Name)
	report := model.JobReport{Job: job, ExitCode: -1, StartedAt: time.Now().UTC()}
	finish := func(outcome, reason string) (model.JobReport, error) {
		report.Outcome = outcome
		report.Reason = reason
		report.FinishedAt = time.Now().UTC()
		return report, nil
	}

	if err := ctx.Err(); err != nil {
		return finish(model.OutcomeCancelled, "stop requested")
	}

	assetsPath, err := discovery.FindAssetsDir(job.SourcePath)
	if err != nil {
		logger.Warn("skipping mod: textures folder changed since scan", "error", err)
		return finish(model.OutcomeSkipped, reasonAssetsMissing)
	}
	report.Job.AssetsPath = assetsPath
	if runstore.Exists(job.OutputPath) {
		logger.Warn("skipping mod: output appeared since scan", "output", job.OutputPath)
		return finish(model.OutcomeSkipped, reasonOutputExists)
	}

	if err := runstore.MkdirExclusive(job.OutputPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			logger.Warn("skipping mod: output directory already exists", "output", job.OutputPath)
			return finish(model.OutcomeSkipped, reasonOutputExists)
		}
		logger.Error("could not create output directory", "output", job.OutputPath, "error", err)
		return finish(model.OutcomeFailed, err.Error())
	}

	sanitizer := s.Sanitizer
	if sanitizer == nil {
		sanitizer = naming.Default()
	}
	renamed, err := naming.SanitizeTree(ctx, assetsPath, sanitizer, logger)
	report.RenamedFiles = renamed
	if err != nil {
		if ctx.Err() != nil {
			return finish(model.OutcomeCancelled, "stop requested")
		}
		logger.Warn("rename pass did not complete", "error", err)
	}

	logFile, err := os.Create(job.LogPath())
	if err != nil {
		logger.Error("could not create job log", "path", job.LogPath(), "error", err)
		return finish(model.OutcomeFailed, fmt.Sprintf("create job log: %v", err))
	}
	defer func() {
		_ = logFile.Close()
	}()

	inputDir, outputDir, executable := absOrSelf(job.SourcePath), absOrSelf(job.OutputPath), absOrSelf(cfg.CreatePBRPath)
	logger.Info("starting create_pbr", "input", inputDir, "output", outputDir)

	var tracker unitTracker
	res, runErr := createpbr.Run(ctx, createpbr.Options{
		Executable:     executable,
		InputDir:       inputDir,
		OutputDir:      outputDir,
		Format:         cfg.TextureFormat,
		MaxTileSize:    cfg.MaxTileSize,
		Checkpoint:     cfg.Checkpoint,
		LogWriter:      logFile,
		TerminateGrace: s.TerminateGrace,
		Kill:           s.kill,
		Line: func(line string) {
			output.Log(ctx, logging.LevelOutput, line)
			r := tracker.handle(line)
			if r.warning != "" {
				logger.Warn(r.warning, "line", line)
			}
			if r.progress != nil {
				emit.Emit(*r.progress)
			}
		},
	})
	report.UnitsFound = tracker.found
	report.UnitsProcessed = tracker.processed
	report.UnitsSkipped = tracker.skipped
	if res.OutputErr != nil {
		logger.Warn("could not read all create_pbr output", "error", res.OutputErr)
	}
	if res.ExitKnown {
		report.ExitCode = res.ExitCode
	}

	switch {
	case res.Cancelled:
		logger.Warn("create_pbr stopped; partial output left in place", "output", outputDir)
		return finish(model.OutcomeCancelled, "stop requested")
	case runErr != nil:
		logger.Error("create_pbr failed", "error", runErr)
		return finish(model.OutcomeFailed, runErr.Error())
	}

	if !res.ExitKnown {
		logger.Warn("create_pbr exit status unavailable; treating as success")
	}
	if err := discovery.MarkComplete(job.OutputPath); err != nil {
		logger.Warn("could not write completion marker", "output", job.OutputPath, "error", err)
	}
	logger.Info("mod converted", "textures", tracker.processed, "renamed", renamed)
	return finish(model.OutcomeSuccess, "")
}

func absOrSelf(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
