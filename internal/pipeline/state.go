package pipeline

import (
	"github.com/Iron-Ham/piper/internal/process"
)

// State is the lifecycle state of one stage.
type State int

const (
	// StateNotStarted indicates the stage has not been started; its spec may
	// still change.
	StateNotStarted State = iota
	// StateStarting indicates the start wave containing the stage has begun.
	StateStarting
	// StateRunning indicates the stage's process is running.
	StateRunning
	// StateExited indicates the stage's process has exited.
	StateExited
	// StateFailed indicates the stage could not be spawned.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateExited:
		return "Exited"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Mutable reports whether a stage in this state still accepts changes.
func (s State) Mutable() bool {
	return s == StateNotStarted
}

// StageInfo is a snapshot of one stage of a running or finished pipeline.
type StageInfo struct {
	Index   int // 1-indexed declared position
	Command string
	State   State
	Pid     int
	Exit    process.ExitStatus // valid when State is StateExited
	Err     error              // spawn error when State is StateFailed
}
