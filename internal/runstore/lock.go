package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	runLockFileName  = "run.lock"
	runLockOwnerFile = "run.owner.json"
)

// ErrLocked is returned when another process already holds the run lock.
var ErrLocked = errors.New("another run is already active")

type RunLock struct {
	lock      *flock.Flock
	ownerPath string
}

type runLockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireRunLock takes the single-run lock inside stateDir without blocking.
func AcquireRunLock(stateDir string) (*RunLock, error) {
	target := strings.TrimSpace(stateDir)
	if target == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := Mkdir(target); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(target, runLockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock for %s: %w", target, err)
	}
	ownerPath := filepath.Join(target, runLockOwnerFile)
	if !ok {
		var owner runLockOwner
		if readErr := ReadJSON(ownerPath, &owner); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
			return nil, fmt.Errorf(
				"%w: %s (pid=%d created_at=%s host=%s)",
				ErrLocked, target, owner.PID, owner.CreatedAt, owner.Hostname,
			)
		}
		return nil, fmt.Errorf("%w: %s", ErrLocked, target)
	}

	owner := runLockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(ownerPath, owner); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write run lock owner for %s: %w", target, err)
	}

	return &RunLock{lock: lock, ownerPath: ownerPath}, nil
}

func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	_ = os.Remove(l.ownerPath)
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release run lock %s: %w", l.lock.Path(), err)
	}
	l.lock = nil
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
