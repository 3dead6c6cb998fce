package event

import "time"

// Event is a lifecycle transition of one pipeline run.
type Event interface {
	// EventType returns a "category.action" identifier, e.g. "stage.spawned".
	EventType() string
	// Pipeline returns the ID of the run that published the event.
	Pipeline() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent carries the fields every event shares. Its PipelineID is
// promoted onto each concrete event.
type baseEvent struct {
	PipelineID string // Run ID shared by every event of one pipeline

	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Pipeline() string     { return e.PipelineID }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType, pipelineID string) baseEvent {
	return baseEvent{
		PipelineID: pipelineID,
		eventType:  eventType,
		timestamp:  time.Now(),
	}
}

// Event type identifiers.
const (
	TypePipelineStarted   = "pipeline.started"
	TypePipelineCompleted = "pipeline.completed"
	TypeStageSpawned      = "stage.spawned"
	TypeStageFailed       = "stage.failed"
	TypeStageExited       = "stage.exited"
	TypeLinkUnwired       = "link.unwired"
)

// -----------------------------------------------------------------------------
// Pipeline Events
// -----------------------------------------------------------------------------

// PipelineStartedEvent is emitted before the first stage of a pipeline is
// spawned.
type PipelineStartedEvent struct {
	baseEvent
	Stages int    // Number of declared stages
	Mode   string // "eager" or "builder"
}

// NewPipelineStartedEvent creates a PipelineStartedEvent.
func NewPipelineStartedEvent(pipelineID string, stages int, mode string) PipelineStartedEvent {
	return PipelineStartedEvent{
		baseEvent: newBaseEvent(TypePipelineStarted, pipelineID),
		Stages:    stages,
		Mode:      mode,
	}
}

// PipelineCompletedEvent is emitted once every spawned stage has exited and
// every stream of the pipeline has drained.
type PipelineCompletedEvent struct {
	baseEvent
	ExitCode int           // Exit code of the last surviving stage, -1 if none
	Failed   int           // Number of stages that failed to spawn
	Duration time.Duration // Wall time from start to completion
}

// NewPipelineCompletedEvent creates a PipelineCompletedEvent.
func NewPipelineCompletedEvent(pipelineID string, exitCode, failed int, duration time.Duration) PipelineCompletedEvent {
	return PipelineCompletedEvent{
		baseEvent: newBaseEvent(TypePipelineCompleted, pipelineID),
		ExitCode:  exitCode,
		Failed:    failed,
		Duration:  duration,
	}
}

// -----------------------------------------------------------------------------
// Stage Events
// -----------------------------------------------------------------------------

// StageSpawnedEvent is emitted when a stage's process has started.
type StageSpawnedEvent struct {
	baseEvent
	Stage   int // 1-indexed declared position
	Command string
	PID     int
}

// NewStageSpawnedEvent creates a StageSpawnedEvent.
func NewStageSpawnedEvent(pipelineID string, stage int, command string, pid int) StageSpawnedEvent {
	return StageSpawnedEvent{
		baseEvent: newBaseEvent(TypeStageSpawned, pipelineID),
		Stage:     stage,
		Command:   command,
		PID:       pid,
	}
}

// StageFailedEvent is emitted when a stage could not be spawned and was
// dropped from the chain.
type StageFailedEvent struct {
	baseEvent
	Stage   int
	Command string
	Err     error
}

// NewStageFailedEvent creates a StageFailedEvent.
func NewStageFailedEvent(pipelineID string, stage int, command string, err error) StageFailedEvent {
	return StageFailedEvent{
		baseEvent: newBaseEvent(TypeStageFailed, pipelineID),
		Stage:     stage,
		Command:   command,
		Err:       err,
	}
}

// StageExitedEvent is emitted when a spawned stage's process terminates.
type StageExitedEvent struct {
	baseEvent
	Stage    int
	Command  string
	ExitCode int    // -1 when terminated by a signal
	Signal   string // Terminating signal name, empty on normal exit
}

// NewStageExitedEvent creates a StageExitedEvent.
func NewStageExitedEvent(pipelineID string, stage int, command string, exitCode int, signal string) StageExitedEvent {
	return StageExitedEvent{
		baseEvent: newBaseEvent(TypeStageExited, pipelineID),
		Stage:     stage,
		Command:   command,
		ExitCode:  exitCode,
		Signal:    signal,
	}
}

// -----------------------------------------------------------------------------
// Link Events
// -----------------------------------------------------------------------------

// UnwireTrigger names the side whose exit tore down a link.
type UnwireTrigger string

// Unwire triggers.
const (
	TriggerUpstream   UnwireTrigger = "upstream"
	TriggerDownstream UnwireTrigger = "downstream"
)

// LinkUnwiredEvent is emitted when the stream link between two adjacent
// stages is torn down.
type LinkUnwiredEvent struct {
	baseEvent
	Upstream   int // declared position of the writing stage
	Downstream int // declared position of the reading stage
	Trigger    UnwireTrigger
}

// NewLinkUnwiredEvent creates a LinkUnwiredEvent.
func NewLinkUnwiredEvent(pipelineID string, upstream, downstream int, trigger UnwireTrigger) LinkUnwiredEvent {
	return LinkUnwiredEvent{
		baseEvent:  newBaseEvent(TypeLinkUnwired, pipelineID),
		Upstream:   upstream,
		Downstream: downstream,
		Trigger:    trigger,
	}
}
