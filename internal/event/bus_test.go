package event

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/piper/internal/logging"
)

// collect returns a handler appending event types to a guarded slice.
func collect() (Handler, func() []string) {
	var mu sync.Mutex
	var got []string
	return func(e Event) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, e.EventType())
		}, func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), got...)
		}
}

func TestBus_SubscribeByType(t *testing.T) {
	bus := NewBus(nil)
	handler, got := collect()

	id := bus.Subscribe(TypeStageExited, handler)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, bus.Len())

	bus.Publish(NewStageSpawnedEvent("run-1", 1, "cat", 10))
	bus.Publish(NewStageExitedEvent("run-1", 1, "cat", 0, ""))

	assert.Equal(t, []string{TypeStageExited}, got())
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(nil)
	handler, got := collect()
	bus.SubscribeAll(handler)

	bus.Publish(NewPipelineStartedEvent("run-1", 2, "eager"))
	bus.Publish(NewStageFailedEvent("run-1", 2, "nope", assert.AnError))
	bus.Publish(NewPipelineCompletedEvent("run-1", 0, 1, time.Millisecond))

	assert.Equal(t, []string{TypePipelineStarted, TypeStageFailed, TypePipelineCompleted}, got())
}

func TestBus_RegistrationOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "all") })
	bus.Subscribe(TypeLinkUnwired, func(Event) { order = append(order, "typed") })
	bus.SubscribeFunc(OfPipeline("run-1"), func(Event) { order = append(order, "pipeline") })

	bus.Publish(NewLinkUnwiredEvent("run-1", 1, 2, TriggerUpstream))
	assert.Equal(t, []string{"all", "typed", "pipeline"}, order)
}

func TestBus_Filters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name:   "of type",
			filter: OfType(TypeStageSpawned, TypeStageExited),
			want:   []string{TypeStageSpawned, TypeStageExited, TypeStageSpawned},
		},
		{
			name:   "of pipeline",
			filter: OfPipeline("run-b"),
			want:   []string{TypePipelineStarted, TypeStageSpawned},
		},
		{
			name:   "nil matches everything",
			filter: nil,
			want:   []string{TypePipelineStarted, TypeStageSpawned, TypeStageExited, TypePipelineStarted, TypeStageSpawned},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewBus(nil)
			handler, got := collect()
			bus.SubscribeFunc(tt.filter, handler)

			bus.Publish(NewPipelineStartedEvent("run-a", 1, "eager"))
			bus.Publish(NewStageSpawnedEvent("run-a", 1, "cat", 1))
			bus.Publish(NewStageExitedEvent("run-a", 1, "cat", 0, ""))
			bus.Publish(NewPipelineStartedEvent("run-b", 1, "builder"))
			bus.Publish(NewStageSpawnedEvent("run-b", 1, "wc", 2))

			assert.Equal(t, tt.want, got())
		})
	}
}

// A handler may subscribe to a run's events when that run starts.
func TestBus_SubscribeFromHandler(t *testing.T) {
	bus := NewBus(nil)
	handler, got := collect()

	bus.Subscribe(TypePipelineStarted, func(e Event) {
		if e.(PipelineStartedEvent).Mode == "builder" {
			bus.SubscribeFunc(OfPipeline(e.Pipeline()), handler)
		}
	})

	bus.Publish(NewPipelineStartedEvent("run-a", 1, "eager"))
	bus.Publish(NewPipelineStartedEvent("run-b", 1, "builder"))
	bus.Publish(NewStageSpawnedEvent("run-a", 1, "cat", 1))
	bus.Publish(NewStageSpawnedEvent("run-b", 1, "wc", 2))
	bus.Publish(NewPipelineCompletedEvent("run-b", 0, 0, time.Second))

	assert.Equal(t, []string{TypeStageSpawned, TypePipelineCompleted}, got())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)
	first, gotFirst := collect()
	second, gotSecond := collect()

	id := bus.SubscribeAll(first)
	bus.SubscribeAll(second)

	assert.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.Unsubscribe(id), "second unsubscribe must report missing")
	assert.False(t, bus.Unsubscribe("no-such-id"))
	assert.Equal(t, 1, bus.Len())

	bus.Publish(NewStageExitedEvent("run-1", 1, "cat", 0, ""))
	assert.Empty(t, gotFirst())
	assert.Equal(t, []string{TypeStageExited}, gotSecond())
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(logging.NewWithWriter(&buf, logging.LevelError, nil))
	handler, got := collect()

	bus.SubscribeAll(func(Event) { panic("boom") })
	bus.SubscribeAll(handler)

	require.NotPanics(t, func() {
		bus.Publish(NewPipelineStartedEvent("run-9", 1, "eager"))
	})
	assert.Equal(t, []string{TypePipelineStarted}, got(), "handlers after a panic still run")

	out := buf.String()
	assert.Contains(t, out, "event handler panicked")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "run-9")
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(nil)
	handler, got := collect()
	bus.SubscribeAll(handler)

	const publishers = 50
	var wg sync.WaitGroup
	for i := range publishers {
		wg.Add(1)
		go func(stage int) {
			defer wg.Done()
			bus.Publish(NewStageExitedEvent("run-1", stage, "cat", 0, ""))
		}(i + 1)
	}
	wg.Wait()

	assert.Len(t, got(), publishers)
}

func TestBus_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus(nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := bus.Subscribe(TypeStageSpawned, func(Event) {})
			bus.Publish(NewStageSpawnedEvent("run-1", 1, "cat", 1))
			bus.Unsubscribe(id)
		}()
	}
	wg.Wait()

	assert.Zero(t, bus.Len())
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus(nil)
	ids := make(map[string]bool)
	for range 100 {
		id := bus.SubscribeAll(func(Event) {})
		require.False(t, ids[id], "duplicate subscription ID %s", id)
		ids[id] = true
	}
}

func TestBus_NilBusDiscards(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() {
		bus.Publish(NewPipelineStartedEvent("run-1", 1, "eager"))
	})
}
