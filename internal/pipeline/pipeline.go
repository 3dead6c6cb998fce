package pipeline

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/piper/internal/errors"
	"github.com/Iron-Ham/piper/internal/process"
	"github.com/Iron-Ham/piper/internal/stream"
)

// Pipeline spawns stage lists eagerly. A Pipeline holds only configuration
// and may run any number of stage lists concurrently.
type Pipeline struct {
	opts options
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	return &Pipeline{opts: buildOptions(opts)}
}

// Run spawns stages with default options. See [Pipeline.Run].
func Run(ctx context.Context, stages ...StageSpec) *Result {
	return New().Run(ctx, stages...)
}

// Run spawns every stage in declaration order, connecting the stdout of
// each stage to the stdin of the next one that spawned, and returns once all
// links are in place. It never returns nil.
//
// A stage that fails to spawn is reported on the result's error channel and
// skipped; the stages around it are linked directly. If no stage spawns, the
// error channel also carries an *errors.AggregateError, which Wait returns.
// Cancelling ctx kills every running stage.
func (p *Pipeline) Run(ctx context.Context, stages ...StageSpec) *Result {
	res := &Result{
		// One extra slot is held for the terminal error.
		errs: make(chan error, p.opts.errorBuffer+1),
	}
	r := newRun("eager", p.opts)
	res.run = r
	res.ID = r.id

	for _, spec := range stages {
		r.addStage(spec, res.report)
	}

	r.start(ctx)

	if len(stages) == 0 {
		res.fatal = errors.Wrap(errors.ErrNoStages, "run pipeline")
	} else if spawnErrs := r.spawnErrors(); len(spawnErrs) == len(stages) {
		res.fatal = errors.NewAggregateError(spawnErrs)
	}
	if res.fatal != nil {
		r.log.Warn("pipeline has no running stage", "error", res.fatal)
		res.send(res.fatal, true)
	}
	r.finish(func() { close(res.errs) })

	res.Stdin = r.head()
	res.Stderr = r.agg.Output()
	if res.last = r.tail(); res.last != nil {
		res.Stdout = res.last.stdout()
	} else {
		res.Stdout = stream.EmptyOutput(nil)
	}
	return res
}

// Result is the composite view of a running pipeline: the first stage's
// stdin, the last surviving stage's stdout, every unredirected stderr merged
// into one stream, and the last surviving stage's exit status.
type Result struct {
	// ID identifies the run in logs and events.
	ID string
	// Stdin feeds the declared first stage. It is nil when that stage failed
	// to spawn or its stdin is redirected or attached to the terminal. The
	// caller must close it for stages that read to EOF.
	Stdin io.WriteCloser
	// Stdout is the output of the last stage that spawned.
	Stdout *stream.Output
	// Stderr merges the stderr of every stage not redirected elsewhere. It
	// closes once every contributing stage has exited.
	Stderr *stream.Output

	run     *run
	last    *stage
	fatal   error
	sendMu  sync.Mutex
	errs    chan error
	dropped atomic.Int64
}

// report delivers err on the error channel without ever blocking.
func (r *Result) report(err error) {
	r.send(err, false)
}

// send delivers err unless the channel is full. Only a terminal send may use
// the last slot.
func (r *Result) send(err error, terminal bool) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	if terminal || len(r.errs) < cap(r.errs)-1 {
		select {
		case r.errs <- err:
			return
		default:
		}
	}
	r.dropped.Add(1)
	r.run.log.Warn("error channel full, dropping error", "error", err)
}

// Errors returns the pipeline's error channel. It receives every spawn,
// stream and wait failure of every stage, and is closed once the pipeline
// has completed. Callers that do not read it simply miss failures.
func (r *Result) Errors() <-chan error {
	return r.errs
}

// Dropped returns how many errors were discarded because the error channel
// was full.
func (r *Result) Dropped() int64 {
	return r.dropped.Load()
}

// Wait blocks until the last surviving stage exits and returns its exit
// status. A non-zero exit code is not an error. If no stage spawned, Wait
// returns the aggregate spawn failure immediately.
func (r *Result) Wait(ctx context.Context) (process.ExitStatus, error) {
	if r.fatal != nil {
		return process.ExitStatus{Code: -1}, r.fatal
	}
	return r.last.handle.Wait(ctx)
}

// ExitCode is Wait reduced to the exit code. It returns -1 with the error
// when Wait fails.
func (r *Result) ExitCode(ctx context.Context) (int, error) {
	status, err := r.Wait(ctx)
	if err != nil {
		return -1, err
	}
	return status.Code, nil
}

// Done returns a channel closed once every stage has exited, every link has
// drained and the merged stderr has closed.
func (r *Result) Done() <-chan struct{} {
	return r.run.done
}

// Stages returns a snapshot of every declared stage.
func (r *Result) Stages() []StageInfo {
	return r.run.infos()
}

// Kill terminates every running stage.
func (r *Result) Kill() error {
	var errs []error
	for _, s := range r.run.stages {
		if s.handle == nil {
			continue
		}
		if err := s.handle.Kill(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
