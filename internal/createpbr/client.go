// Package createpbr runs create_pbr.exe for one mod and streams its output.
package createpbr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultTerminateGrace is how long a process may take to exit after a
// termination request before it is killed.
const DefaultTerminateGrace = 5 * time.Second

const (
	// exitDrain bounds how long output is still read after the converter
	// has exited.
	exitDrain = 2 * time.Second
	// maxLineBytes is the longest line delivered in one piece; longer lines
	// arrive split at this size.
	maxLineBytes = 64 * 1024
)

// ErrLaunch wraps any failure to start the converter process.
var ErrLaunch = errors.New("could not launch create_pbr")

type Options struct {
	Executable     string
	InputDir       string
	OutputDir      string
	Format         string
	MaxTileSize    string
	Checkpoint     string
	LogWriter      io.Writer
	Line           func(line string)
	TerminateGrace time.Duration
	// Kill, when closed, kills the process without a termination request.
	Kill <-chan struct{}
}

type Result struct {
	Command   []string
	ExitCode  int
	ExitKnown bool
	Cancelled bool
	Output    string
	// OutputErr is set when reading the converter's output failed. The exit
	// status still decides the outcome.
	OutputErr error
}

// ExitError reports a converter that ran but did not exit cleanly.
type ExitError struct {
	Code   int
	Signal string
	Output string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return "create_pbr terminated by signal " + e.Signal
	}
	return fmt.Sprintf("create_pbr exited with code %d", e.Code)
}

// Args builds the fixed argument list, in the order the converter expects.
func Args(opts Options) []string {
	return []string{
		"--input_dir", opts.InputDir,
		"--output_dir", opts.OutputDir,
		"--format", opts.Format,
		"--max_tile_size", opts.MaxTileSize,
		"--segformer_checkpoint", opts.Checkpoint,
		"--create_jsons", "true",
	}
}

// Run starts the converter and blocks until it exits. Standard output and
// standard error share one pipe so lines arrive in the order written. Output
// still buffered when the process exits is read for at most exitDrain.
// Cancelling ctx asks the process to terminate and kills it once
// TerminateGrace has passed; Result.Cancelled is then set and ctx.Err() is
// returned. Closing Kill skips the grace period.
func Run(ctx context.Context, opts Options) (Result, error) {
	if strings.TrimSpace(opts.Executable) == "" {
		return Result{}, fmt.Errorf("%w: executable path is required", ErrLaunch)
	}
	args := Args(opts)
	res := Result{Command: append([]string{opts.Executable}, args...), ExitCode: -1}

	grace := opts.TerminateGrace
	if grace <= 0 {
		grace = DefaultTerminateGrace
	}

	cmd := exec.Command(opts.Executable, args...)
	configureProcess(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return res, fmt.Errorf("%w: setup output pipe: %w", ErrLaunch, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return res, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	// The child holds its own copy; keeping ours open would hide EOF.
	_ = pw.Close()

	lines := make(chan string, 64)
	var readErr error
	var readerDone sync.WaitGroup
	readerDone.Add(1)
	go func() {
		defer readerDone.Done()
		defer close(lines)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 2*maxLineBytes)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lines <- line
		}
		if err := scanner.Err(); err != nil {
			readErr = err
			// Keep the pipe drained so the converter never blocks or dies
			// writing to it.
			_, _ = io.Copy(io.Discard, pr)
		}
	}()

	var waitErr error
	waitDone := make(chan struct{})
	go func() {
		waitErr = cmd.Wait()
		close(waitDone)
	}()

	var tail tailBuffer
	var killTimer *time.Timer
	var drainDeadline <-chan time.Time
	done := ctx.Done()
	kill := opts.Kill
	exited := (<-chan struct{})(waitDone)
	output := (<-chan string)(lines)

loop:
	for {
		select {
		case <-exited:
			exited = nil
			if killTimer != nil {
				killTimer.Stop()
			}
			if output == nil {
				break loop
			}
			// Helpers the converter left behind may hold the pipe open.
			drainDeadline = time.After(exitDrain)
		case <-kill:
			kill = nil
			if hasExited(waitDone) {
				continue
			}
			done = nil
			res.Cancelled = true
			_ = killProcess(cmd)
		case <-done:
			done = nil
			if hasExited(waitDone) {
				continue
			}
			res.Cancelled = true
			_ = terminateProcess(cmd)
			killTimer = time.AfterFunc(grace, func() {
				_ = killProcess(cmd)
			})
		case <-drainDeadline:
			break loop
		case line, ok := <-output:
			if !ok {
				output = nil
				if exited == nil {
					break loop
				}
				continue
			}
			tail.add(line)
			if opts.LogWriter != nil {
				_, _ = io.WriteString(opts.LogWriter, line+"\n")
			}
			if opts.Line != nil {
				opts.Line(line)
			}
		}
	}

	_ = pr.Close()
	<-waitDone
	if killTimer != nil {
		killTimer.Stop()
	}
	go func() {
		// Unblock the reader if it is stuck sending after an early exit.
		for range lines {
		}
	}()
	readerDone.Wait()
	res.Output = tail.String()
	if readErr != nil && !errors.Is(readErr, os.ErrClosed) {
		res.OutputErr = readErr
	}

	if res.Cancelled {
		if cmd.ProcessState != nil {
			res.ExitCode = cmd.ProcessState.ExitCode()
			res.ExitKnown = true
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		return res, context.Canceled
	}
	return classifyExit(res, cmd, waitErr)
}

func hasExited(waitDone <-chan struct{}) bool {
	select {
	case <-waitDone:
		return true
	default:
		return false
	}
}

func classifyExit(res Result, cmd *exec.Cmd, waitErr error) (Result, error) {
	if waitErr == nil {
		res.ExitCode = 0
		res.ExitKnown = true
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.ExitKnown = true
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode == -1 {
			return res, &ExitError{Code: -1, Signal: signalName(exitErr.ProcessState), Output: res.Output}
		}
		return res, &ExitError{Code: res.ExitCode, Output: res.Output}
	}
	if cmd.ProcessState == nil {
		// The process ran but its state could not be collected.
		return res, nil
	}
	res.ExitKnown = true
	res.ExitCode = cmd.ProcessState.ExitCode()
	if cmd.ProcessState.Success() {
		return res, nil
	}
	return res, &ExitError{Code: res.ExitCode, Output: res.Output}
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	limit := min(len(data), maxLineBytes)
	for i := 0; i < limit; i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if len(data) > maxLineBytes {
		n := maxLineBytes
		for n > 0 && !utf8.RuneStart(data[n]) {
			n--
		}
		if n == 0 {
			n = maxLineBytes
		}
		return n, data[:n], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last lines of output for error reports.
type tailBuffer struct {
	lines []string
}

const tailKeep = 20

func (t *tailBuffer) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > tailKeep {
		t.lines = t.lines[len(t.lines)-tailKeep:]
	}
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}
