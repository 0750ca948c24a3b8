// Package batch drives a conversion run: discovery, one supervised
// create_pbr process per mod, statistics and events for front-ends.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pbrify/internal/discovery"
	"pbrify/internal/logging"
	"pbrify/internal/model"
	"pbrify/internal/runstore"
	"pbrify/internal/settings"
)

// ErrRunActive is returned when a run is started while another is active.
var ErrRunActive = errors.New("a run is already active")

const eventBuffer = 256

type Options struct {
	Settings settings.Settings
	// ConfigPath receives the settings before the run starts. Empty skips
	// persisting.
	ConfigPath string
	// StateDir holds the run lock and history. Empty disables both.
	StateDir       string
	RunLogPath     string
	Logger         *slog.Logger
	TerminateGrace time.Duration
}

type Coordinator struct {
	opts Options
	sup  *Supervisor

	active atomic.Bool
	stop   atomic.Bool

	mu     sync.Mutex
	state  model.RunState
	cancel context.CancelFunc
	kill   chan struct{}
}

func New(opts Options) *Coordinator {
	if opts.TerminateGrace <= 0 {
		opts.TerminateGrace = 5 * time.Second
	}
	return &Coordinator{
		opts:  opts,
		sup:   NewSupervisor(opts.TerminateGrace),
		state: model.RunState{Current: model.StateIdle},
	}
}

func (c *Coordinator) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Current
}

// Stop asks the active run to halt. The in-flight converter is terminated
// and no further mod is started. Safe to call from any goroutine.
func (c *Coordinator) Stop() {
	c.stop.Store(true)
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Start runs in the background. Events arrive on the returned channel, which
// is closed after the final RunFinished. Callers must drain it.
func (c *Coordinator) Start(ctx context.Context) (<-chan model.Event, error) {
	if !c.active.CompareAndSwap(false, true) {
		return nil, ErrRunActive
	}
	runCtx := c.begin(ctx)
	events := make(chan model.Event, eventBuffer)
	go func() {
		defer close(events)
		defer c.active.Store(false)
		_, _ = c.run(runCtx, func(ev model.Event) { events <- ev })
	}()
	return events, nil
}

// Run is the synchronous form of Start. The returned error is the cause of a
// fatal run; stopped and completed runs return nil.
func (c *Coordinator) Run(ctx context.Context, emit model.EmitFunc) (model.RunFinished, error) {
	if !c.active.CompareAndSwap(false, true) {
		return model.RunFinished{}, ErrRunActive
	}
	defer c.active.Store(false)
	return c.run(c.begin(ctx), emit)
}

// Kill is Stop without the termination grace period: the in-flight
// converter is killed at once.
func (c *Coordinator) Kill() {
	c.mu.Lock()
	if c.kill != nil {
		close(c.kill)
		c.kill = nil
	}
	c.mu.Unlock()
	c.Stop()
}

func (c *Coordinator) begin(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancel(ctx)
	kill := make(chan struct{})
	c.stop.Store(false)
	c.mu.Lock()
	c.cancel = cancel
	c.kill = kill
	c.sup.kill = kill
	c.mu.Unlock()
	return runCtx
}

func (c *Coordinator) end() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.kill = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) transition(to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Transition(to)
}

func (c *Coordinator) stopping(ctx context.Context) bool {
	return c.stop.Load() || ctx.Err() != nil
}

func (c *Coordinator) run(ctx context.Context, emit model.EmitFunc) (model.RunFinished, error) {
	defer c.end()

	runID := uuid.NewString()
	cfg := c.opts.Settings
	stats := model.RunStatistics{StartTime: time.Now()}
	reports := []model.JobReport{}
	var rejected []discovery.Rejection

	runLog, logErr := logging.OpenRunLog(c.opts.RunLogPath)
	defer func() {
		_ = runLog.Close()
	}()
	logger := logging.Tee(c.opts.Logger, runLog.Handler(), logging.NewEventHandler(emit, logging.LevelOutput))
	if logErr != nil {
		logger.Warn("run log unavailable", "error", logErr)
	}

	finish := func(state string, cause error) (model.RunFinished, error) {
		if err := c.transition(state); err != nil {
			logger.Error("run state", "error", err)
		}
		stats.EndTime = time.Now()
		if cause != nil {
			logger.Error("run failed", "error", cause)
			emit.Emit(model.RunFailed{Reason: cause.Error()})
		}
		for _, line := range stats.Summary() {
			logger.Info(line)
		}
		c.saveHistory(logger, RunRecord{
			RunID:    runID,
			State:    state,
			Error:    errorString(cause),
			Settings: cfg,
			Stats:    stats,
			Jobs:     reports,
			Rejected: rejected,
		})
		ev := model.RunFinished{RunID: runID, State: state, Stats: stats, Jobs: reports}
		emit.Emit(ev)
		if err := c.transition(model.StateIdle); err != nil {
			logger.Error("run state", "error", err)
		}
		return ev, cause
	}

	if err := c.transition(model.StateScanning); err != nil {
		return model.RunFinished{}, err
	}
	logger.Info("run started", "run_id", runID)

	if err := cfg.Validate(); err != nil {
		return finish(model.StateFatal, err)
	}
	if c.opts.ConfigPath != "" {
		if err := cfg.Save(c.opts.ConfigPath); err != nil {
			logger.Warn("could not save settings", "path", c.opts.ConfigPath, "error", err)
		}
	}
	if c.opts.StateDir != "" {
		lock, err := runstore.AcquireRunLock(c.opts.StateDir)
		if err != nil {
			return finish(model.StateFatal, err)
		}
		defer func() {
			_ = lock.Release()
		}()
	}

	scan, err := discovery.Scan(ctx, discovery.ScanOptions{
		ModsDir:   cfg.ModsDir,
		OutputDir: cfg.OutputDir,
		Logger:    logger,
	})
	rejected = scan.Rejected
	if err != nil {
		if c.stopping(ctx) && !errors.Is(err, discovery.ErrScanRoot) {
			logger.Warn("processing stopped by user")
			return finish(model.StateStopped, nil)
		}
		return finish(model.StateFatal, err)
	}
	stats.TotalJobs = len(scan.Jobs)
	if len(scan.Jobs) == 0 {
		logger.Info("no mods to process")
		return finish(model.StateCompleted, nil)
	}
	if c.stopping(ctx) {
		logger.Warn("processing stopped by user")
		return finish(model.StateStopped, nil)
	}

	if err := c.transition(model.StateRunning); err != nil {
		return finish(model.StateFatal, err)
	}
	logger.Info(fmt.Sprintf("found %d mods to process", len(scan.Jobs)))

	for i, job := range scan.Jobs {
		if c.stopping(ctx) {
			logger.Warn("processing stopped by user")
			return finish(model.StateStopped, nil)
		}
		emit.Emit(model.OverallProgress{Current: i + 1, Total: len(scan.Jobs), JobName: job.Name})
		logger.Info("processing mod", "mod", job.Name, "index", i+1, "total", len(scan.Jobs))

		report, err := c.sup.Run(ctx, job, cfg, logger, emit)
		if err != nil {
			report = model.JobReport{Job: job, Outcome: model.OutcomeFailed, Reason: err.Error(), ExitCode: -1}
		}
		reports = append(reports, report)
		stats.Record(report)
		stats.RenamedFiles += report.RenamedFiles
		stats.TotalUnits += report.UnitsFound
		stats.ProcessedUnits += report.UnitsProcessed
		stats.SkippedUnits += report.UnitsSkipped

		switch report.Outcome {
		case model.OutcomeCancelled:
			logger.Warn("processing stopped by user")
			return finish(model.StateStopped, nil)
		case model.OutcomeFailed:
			logger.Error("mod failed", "mod", job.Name, "reason", report.Reason)
		case model.OutcomeSkipped:
			logger.Warn("mod skipped", "mod", job.Name, "reason", report.Reason)
		}
	}
	return finish(model.StateCompleted, nil)
}

func (c *Coordinator) saveHistory(logger *slog.Logger, rec RunRecord) {
	if c.opts.StateDir == "" {
		return
	}
	if err := runstore.SaveHistoryRecord(c.opts.StateDir, rec.RunID, rec); err != nil {
		logger.Warn("could not save run history", "error", err)
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
