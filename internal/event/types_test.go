package event

import (
	"errors"
	"testing"
	"time"
)

func TestEventTypes(t *testing.T) {
	cause := errors.New("not found")

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"pipeline started", NewPipelineStartedEvent("p", 2, "eager"), TypePipelineStarted},
		{"pipeline completed", NewPipelineCompletedEvent("p", 0, 0, time.Second), TypePipelineCompleted},
		{"stage spawned", NewStageSpawnedEvent("p", 1, "cat", 42), TypeStageSpawned},
		{"stage failed", NewStageFailedEvent("p", 2, "nope", cause), TypeStageFailed},
		{"stage exited", NewStageExitedEvent("p", 1, "cat", 0, ""), TypeStageExited},
		{"link unwired", NewLinkUnwiredEvent("p", 1, 2, TriggerDownstream), TypeLinkUnwired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.EventType(); got != tt.want {
				t.Errorf("EventType() = %q, want %q", got, tt.want)
			}
			if got := tt.event.Pipeline(); got != "p" {
				t.Errorf("Pipeline() = %q, want %q", got, "p")
			}
			if tt.event.Timestamp().IsZero() {
				t.Error("Timestamp() should be set")
			}
		})
	}
}

func TestStageFailedEvent_CarriesError(t *testing.T) {
	cause := errors.New("exec: \"nope\": executable file not found in $PATH")
	e := NewStageFailedEvent("run-1", 3, "nope", cause)

	if e.Stage != 3 || e.Command != "nope" || e.PipelineID != "run-1" {
		t.Errorf("unexpected fields: %+v", e)
	}
	if !errors.Is(e.Err, cause) {
		t.Error("Err should carry the spawn failure")
	}
}

func TestLinkUnwiredEvent_Fields(t *testing.T) {
	e := NewLinkUnwiredEvent("run-1", 1, 2, TriggerUpstream)

	if e.Upstream != 1 || e.Downstream != 2 {
		t.Errorf("Upstream/Downstream = %d/%d, want 1/2", e.Upstream, e.Downstream)
	}
	if e.Trigger != TriggerUpstream {
		t.Errorf("Trigger = %q, want %q", e.Trigger, TriggerUpstream)
	}
}
