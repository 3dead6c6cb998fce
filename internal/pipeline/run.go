package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/piper/internal/errors"
	"github.com/Iron-Ham/piper/internal/event"
	"github.com/Iron-Ham/piper/internal/logging"
	"github.com/Iron-Ham/piper/internal/process"
	"github.com/Iron-Ham/piper/internal/stream"
)

// stage is one declared stage inside a start wave.
type stage struct {
	index int
	spec  StageSpec
	log   *logging.Logger
	// report receives the stage's asynchronous errors.
	report func(error)

	mu     sync.Mutex
	state  State
	handle *process.Handle
	err    error

	// linkedIn and linkedOut record whether a neighbour took over the
	// stage's stdin or stdout. Set only during the start wave.
	linkedIn  bool
	linkedOut bool
}

func (s *stage) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *stage) info() StageInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := StageInfo{
		Index:   s.index,
		Command: s.spec.Name(),
		State:   s.state,
		Err:     s.err,
	}
	if s.handle != nil {
		info.Command = s.handle.Name()
		info.Pid = s.handle.Pid()
		info.Exit, _ = s.handle.Status()
	}
	return info
}

// stdout returns the stage's own output unless a downstream link consumes
// it.
func (s *stage) stdout() *stream.Output {
	if s.handle == nil {
		return stream.EmptyOutput(nil)
	}
	if src := s.handle.Stdout(); src != nil && !s.linkedOut {
		return stream.NewOutput(src)
	}
	return stream.EmptyOutput(s.handle.Done())
}

// run is one start wave: the stages spawned together, the links between
// them and the stderr aggregator they share.
type run struct {
	id       string
	mode     string
	opts     options
	resolver *process.Resolver
	log      *logging.Logger
	agg      *stream.Aggregator
	stages   []*stage
	started  time.Time

	track conc.WaitGroup
	done  chan struct{}
}

func newRun(mode string, opts options) *run {
	id := uuid.NewString()
	r := &run{
		id:       id,
		mode:     mode,
		opts:     opts,
		resolver: opts.resolver(),
		log:      opts.logger.WithPipeline(id),
		done:     make(chan struct{}),
	}
	r.agg = stream.NewAggregator(r.reportStreamError)
	return r
}

// addStage registers a stage. All stages must be added before start.
func (r *run) addStage(spec StageSpec, report func(error)) *stage {
	s := &stage{
		index:  len(r.stages) + 1,
		spec:   spec,
		report: report,
		state:  StateStarting,
	}
	s.log = r.log.WithStage(s.index, spec.Name())
	r.stages = append(r.stages, s)
	return s
}

func (r *run) publish(e event.Event) {
	r.opts.bus.Publish(e)
}

// start spawns every stage in declaration order and links each one to the
// last stage that spawned before it. A stage that fails to spawn is dropped
// and takes no part in linking or stderr accounting. start returns once
// every link is in place.
func (r *run) start(ctx context.Context) {
	r.started = time.Now()
	r.publish(event.NewPipelineStartedEvent(r.id, len(r.stages), r.mode))

	var prev *stage
	for i, s := range r.stages {
		h, err := r.spawn(ctx, s, i == 0, i == len(r.stages)-1)
		if err != nil {
			s.mu.Lock()
			s.state = StateFailed
			s.err = err
			s.mu.Unlock()

			s.log.Warn("stage failed to spawn", "error", err)
			r.publish(event.NewStageFailedEvent(r.id, s.index, s.spec.Name(), err))
			s.report(err)
			continue
		}

		s.mu.Lock()
		s.handle = h
		s.state = StateRunning
		s.mu.Unlock()

		s.log.Debug("stage spawned", "pid", h.Pid())
		r.publish(event.NewStageSpawnedEvent(r.id, s.index, h.Name(), h.Pid()))

		h.OnExit(func(status process.ExitStatus) {
			s.setState(StateExited)
			s.log.Debug("stage exited", "exit_code", status.Code, "signal", status.Signal)
			r.publish(event.NewStageExitedEvent(r.id, s.index, h.Name(), status.Code, status.Signal))
		})

		if stderr := h.Stderr(); stderr != nil {
			if err := r.agg.Add(stream.Contributor{
				Stage:   s.index,
				Command: h.Name(),
				Src:     stderr,
				Exited:  h.Done(),
			}); err != nil {
				_ = stderr.Close()
				s.report(errors.NewStreamError("merge stage stderr", err).
					WithStage(s.index).
					WithCommand(h.Name()).
					WithStream("stderr"))
			}
		}

		switch {
		case prev != nil:
			r.link(prev, s)
		case i > 0:
			// The declared first stage is gone, so nothing will ever feed
			// this one.
			if stdin := h.Stdin(); stdin != nil {
				_ = stdin.Close()
				s.linkedIn = true
			}
		}

		r.track.Go(func() {
			if _, err := h.Wait(context.Background()); err != nil {
				s.report(errors.NewStreamError("wait for stage", err).
					WithStage(s.index).
					WithCommand(h.Name()).
					WithStream("process"))
			}
		})
		prev = s
	}

	r.agg.Seal()
	r.track.Go(func() {
		<-r.agg.Done()
		r.agg.Wait()
		r.log.Debug("stderr aggregator closed")
	})
}

// finish waits in the background for the wave to complete, then runs onDone
// and closes done. It must be called once, after start.
func (r *run) finish(onDone func()) {
	go func() {
		r.track.Wait()
		r.complete()
		if onDone != nil {
			onDone()
		}
		close(r.done)
	}()
}

// spawn resolves the stage's stdio and starts its process.
func (r *run) spawn(ctx context.Context, s *stage, first, last bool) (*process.Handle, error) {
	base := process.DefaultStdio()
	if r.opts.attachTerminal {
		if first {
			base[process.Stdin] = process.Inherit()
		}
		if last {
			base[process.Stdout] = process.Inherit()
		}
	}

	stdio, err := r.resolver.ResolveAll(base, s.spec.Redirections)
	if err != nil {
		return nil, errors.NewSpawnError(s.spec.Name(), err).WithStage(s.index)
	}

	h, err := process.Spawn(ctx, s.spec.processSpec(r.opts.inheritEnv), stdio)
	if err != nil {
		var spawnErr *errors.SpawnError
		if errors.As(err, &spawnErr) {
			return nil, spawnErr.WithStage(s.index)
		}
		return nil, errors.NewSpawnError(s.spec.Name(), err).WithStage(s.index)
	}
	return h, nil
}

// link connects up's stdout to down's stdin. When only one end is piped
// the other is redirected. An unread downstream stdin is closed so the stage
// reads EOF; an unread upstream stdout is drained so the stage runs to
// completion.
func (r *run) link(up, down *stage) {
	src := up.handle.Stdout()
	dst := down.handle.Stdin()
	up.linkedOut = src != nil
	down.linkedIn = dst != nil

	switch {
	case src != nil && dst != nil:
	case src != nil:
		r.track.Go(func() {
			_, _ = io.Copy(io.Discard, src)
			_ = src.Close()
		})
		return
	case dst != nil:
		_ = dst.Close()
		return
	default:
		return
	}

	l := stream.NewLink(src, dst, stream.LinkConfig{
		Upstream:   up.index,
		Downstream: down.index,
		Command:    up.handle.Name(),
		OnUnwire: func(side stream.Side) {
			r.log.Debug("link unwired",
				"upstream", up.index,
				"downstream", down.index,
				"trigger", string(side))
			r.publish(event.NewLinkUnwiredEvent(r.id, up.index, down.index, event.UnwireTrigger(side)))
		},
		OnError: up.report,
	})
	up.handle.OnExit(func(process.ExitStatus) { l.Unwire(stream.Upstream) })
	down.handle.OnExit(func(process.ExitStatus) { l.Unwire(stream.Downstream) })
	r.track.Go(func() { <-l.Done() })
}

// reportStreamError routes an aggregator failure to the stage it came from.
func (r *run) reportStreamError(err error) {
	var streamErr *errors.StreamError
	if errors.As(err, &streamErr) && streamErr.Stage > 0 && streamErr.Stage <= len(r.stages) {
		r.stages[streamErr.Stage-1].report(err)
		return
	}
	r.log.Warn("unroutable stream error", "error", err)
}

// complete publishes the completion event.
func (r *run) complete() {
	exitCode := -1
	failed := 0
	for _, s := range r.stages {
		info := s.info()
		if info.State == StateFailed {
			failed++
			continue
		}
		exitCode = info.Exit.Code
	}
	duration := time.Since(r.started)
	if r.log.Enabled(slog.LevelDebug) {
		states := make([]string, len(r.stages))
		for i, s := range r.stages {
			states[i] = s.info().State.String()
		}
		r.log.Debug("pipeline completed",
			"exit_code", exitCode, "failed", failed, "duration", duration, "states", states)
	}
	r.publish(event.NewPipelineCompletedEvent(r.id, exitCode, failed, duration))
}

// head returns the stdin of the declared first stage if it spawned and is
// still owned by the caller.
func (r *run) head() io.WriteCloser {
	if len(r.stages) == 0 {
		return nil
	}
	s := r.stages[0]
	if s.handle == nil {
		return nil
	}
	return s.handle.Stdin()
}

// tail returns the last stage that spawned, or nil.
func (r *run) tail() *stage {
	for i := len(r.stages) - 1; i >= 0; i-- {
		if r.stages[i].handle != nil {
			return r.stages[i]
		}
	}
	return nil
}

// spawnErrors returns the spawn failures in declaration order.
func (r *run) spawnErrors() []error {
	var errs []error
	for _, s := range r.stages {
		if info := s.info(); info.Err != nil {
			errs = append(errs, info.Err)
		}
	}
	return errs
}

func (r *run) infos() []StageInfo {
	infos := make([]StageInfo, len(r.stages))
	for i, s := range r.stages {
		infos[i] = s.info()
	}
	return infos
}
