// Package event provides a pub-sub event bus for observing pipeline
// lifecycles in piper.
//
// The pipeline engine publishes events as stages are spawned, fail, exit, and
// as the stream links between them are torn down. Consumers (the CLI's verbose
// summary, tests, log sinks) subscribe without the engine knowing about them.
//
// # Main Types
//
//   - [Event]: A lifecycle transition, identified by EventType() and tagged with the Pipeline() run ID
//   - [Bus]: Synchronous pub-sub dispatcher shared by any number of pipeline runs
//   - [Handler]: Function type for event handlers (func(Event))
//   - [Filter]: Subscription predicate; see [OfType] and [OfPipeline]
//
// # Event Categories
//
// Pipeline:
//   - [PipelineStartedEvent]: Emitted before the first stage is spawned
//   - [PipelineCompletedEvent]: Emitted when every stage has exited and every stream drained
//
// Stage:
//   - [StageSpawnedEvent]: Emitted when a stage's process starts
//   - [StageFailedEvent]: Emitted when a stage cannot be spawned and is dropped
//   - [StageExitedEvent]: Emitted when a stage's process terminates
//
// Link:
//   - [LinkUnwiredEvent]: Emitted when the stream between two stages is torn down
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine, which for stage and link events
// is the engine's exit-watcher goroutine. Handlers must not block. A panicking
// handler is recovered and logged and does not prevent other handlers from
// being called.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//
//	bus.Subscribe(event.TypeStageExited, func(e event.Event) {
//	    exited := e.(event.StageExitedEvent)
//	    fmt.Printf("stage %d (%s) exited %d\n", exited.Stage, exited.Command, exited.ExitCode)
//	})
//
//	bus.SubscribeAll(func(e event.Event) {
//	    logger.Debug("event", "type", e.EventType(), "pipeline", e.Pipeline())
//	})
//
// Following a single run on a shared bus:
//
//	bus.Subscribe(event.TypePipelineStarted, func(e event.Event) {
//	    bus.SubscribeFunc(event.OfPipeline(e.Pipeline()), record)
//	})
package event
