package model

import "time"

const (
	LevelDebug  = "debug"
	LevelOutput = "output"
	LevelInfo   = "info"
	LevelWarn   = "warn"
	LevelError  = "error"
)

// Event is anything the coordinator sends to a front-end. The set of
// implementations is closed.
type Event interface {
	isEvent()
}

type OverallProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	JobName string `json:"job_name"`
}

type UnitProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type LogLine struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level"`
	Text  string    `json:"text"`
}

type RunFinished struct {
	RunID string        `json:"run_id"`
	State string        `json:"state"`
	Stats RunStatistics `json:"stats"`
	Jobs  []JobReport   `json:"jobs"`
}

type RunFailed struct {
	Reason string `json:"reason"`
}

func (OverallProgress) isEvent() {}
func (UnitProgress) isEvent()    {}
func (LogLine) isEvent()         {}
func (RunFinished) isEvent()     {}
func (RunFailed) isEvent()       {}

// EmitFunc receives events. Implementations must not block for long; the
// coordinator calls it inline.
type EmitFunc func(Event)

func (f EmitFunc) Emit(ev Event) {
	if f != nil {
		f(ev)
	}
}
