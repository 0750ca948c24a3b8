package model

import "fmt"

const (
	StateIdle      = "idle"
	StateScanning  = "scanning"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateStopped   = "stopped"
	StateFatal     = "fatal"
)

var allowedTransitions = map[string]map[string]bool{
	StateIdle: {
		StateScanning: true,
	},
	StateScanning: {
		StateRunning:   true,
		StateCompleted: true, // nothing to convert
		StateStopped:   true,
		StateFatal:     true,
	},
	StateRunning: {
		StateCompleted: true,
		StateStopped:   true,
		StateFatal:     true,
	},
	StateCompleted: {
		StateIdle: true,
	},
	StateStopped: {
		StateIdle: true,
	},
	StateFatal: {
		StateIdle: true,
	},
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// RunState is the coordinator's position in its state machine.
type RunState struct {
	Current string
}

func (s *RunState) Transition(to string) error {
	from := s.Current
	if from == "" {
		from = StateIdle
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid run state transition: %q -> %q", from, to)
	}
	s.Current = to
	return nil
}
