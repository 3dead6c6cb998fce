package pipeline

import (
	"context"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/piper/internal/errors"
	"github.com/Iron-Ham/piper/internal/process"
	"github.com/Iron-Ham/piper/internal/stream"
)

// Builder constructs stage chains without spawning anything. A chain starts
// as one wave the first time any of its commands is started, explicitly
// through Start or implicitly by reading its streams or awaiting it. A
// chain that is never started, read or awaited is never spawned.
//
//	wc := pipeline.NewBuilder().
//		Run("cat", path).
//		Pipe("grep", "test").
//		Pipe("wc", "-w")
//	count, err := wc.Stdout().TrimmedString(ctx)
type Builder struct {
	opts options

	// mu guards the structure of every chain built here: specs, neighbours
	// and the started flag.
	mu sync.Mutex
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	return &Builder{opts: buildOptions(opts)}
}

// Run begins a new chain with name and args.
func (b *Builder) Run(name string, args ...string) *Command {
	return b.Stage(Cmd(name, args...))
}

// Stage begins a new chain with spec.
func (b *Builder) Stage(spec StageSpec) *Command {
	ch := &chain{b: b, ready: make(chan struct{}), done: make(chan struct{})}
	c := b.newCommand(ch, spec)
	ch.commands = []*Command{c}
	return c
}

func (b *Builder) newCommand(ch *chain, spec StageSpec) *Command {
	return &Command{
		b:     b,
		chain: ch,
		spec:  spec.clone(),
		errs:  make(chan error, b.opts.errorBuffer),
	}
}

// chain is an ordered list of commands awaiting one start wave.
type chain struct {
	b *Builder

	// guarded by b.mu
	commands []*Command
	started  bool

	// absorbed holds chains merged into this one by PipeTo; their channels
	// follow this chain's. Guarded by b.mu.
	absorbed []*chain

	once  sync.Once
	ready chan struct{}
	done  chan struct{}
	run   *run
}

// start spawns every command of the chain in order, exactly once.
// Concurrent callers block until the wave has been wired.
func (ch *chain) start(ctx context.Context) {
	ch.once.Do(func() {
		b := ch.b

		b.mu.Lock()
		ch.started = true
		cmds := slices.Clone(ch.commands)
		absorbed := slices.Clone(ch.absorbed)
		r := newRun("builder", b.opts)
		for _, c := range cmds {
			c.stage = r.addStage(c.spec, c.emit)
		}
		ch.run = r
		b.mu.Unlock()

		r.start(ctx)

		for _, c := range cmds {
			c.stdout = c.stage.stdout()
			if c.stage.index == 1 && c.stage.handle != nil && !c.stage.linkedIn {
				c.stdin = c.stage.handle.Stdin()
			}
		}
		r.finish(func() {
			for _, c := range cmds {
				close(c.errs)
			}
			close(ch.done)
			for _, a := range absorbed {
				close(a.done)
			}
		})
		close(ch.ready)
		for _, a := range absorbed {
			close(a.ready)
		}
	})
}

// Command is one stage of a Builder chain.
type Command struct {
	b *Builder

	// guarded by b.mu
	chain *chain
	spec  StageSpec
	prev  *Command
	next  *Command
	stage *stage

	// set during the start wave, read after chain.ready
	stdin  io.WriteCloser
	stdout *stream.Output

	errs    chan error
	dropped atomic.Int64
}

// Pipe appends a stage reading this command's stdout and returns it.
func (c *Command) Pipe(name string, args ...string) *Command {
	return c.PipeSpec(Cmd(name, args...))
}

// PipeSpec appends a stage built from spec and returns it. It panics with a
// *errors.LifecycleError if the chain has started.
func (c *Command) PipeSpec(spec StageSpec) *Command {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	c.mustBeTailLocked("Pipe")
	n := c.b.newCommand(c.chain, spec)
	n.prev = c
	c.next = n
	c.chain.commands = append(c.chain.commands, n)
	return n
}

// PipeTo connects this command's stdout to the stdin of other, which must be
// the unstarted head of another chain built by the same Builder. The two
// chains become one and other is returned.
func (c *Command) PipeTo(other *Command) *Command {
	if other.b != c.b {
		panic(errors.NewValidationError("cannot pipe to a command from another builder").WithField("other"))
	}

	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	c.mustBeTailLocked("PipeTo")
	if other.chain.started {
		panic(errors.NewLifecycleError(other.spec.Name(), "PipeTo"))
	}
	if other.prev != nil || other.chain == c.chain {
		panic(errors.NewValidationError("pipe target must be the head of another chain").
			WithField("other").
			WithValue(other.spec.Name()))
	}

	old := other.chain
	for _, m := range old.commands {
		m.chain = c.chain
	}
	c.chain.absorbed = append(c.chain.absorbed, old)
	c.chain.absorbed = append(c.chain.absorbed, old.absorbed...)
	old.absorbed = nil
	merged := old.commands
	other.prev = c
	c.next = other
	c.chain.commands = append(c.chain.commands, merged...)
	return other
}

func (c *Command) mustBeTailLocked(op string) {
	if c.chain.started {
		panic(errors.NewLifecycleError(c.spec.Name(), op))
	}
	if c.next != nil {
		panic(errors.NewValidationError("command already pipes to another stage").
			WithField("next").
			WithValue(c.next.spec.Name()))
	}
}

// InputFrom reads stdin from path. It panics with a *errors.LifecycleError
// once the chain has started; SetRedirect reports the same failure as an
// error.
func (c *Command) InputFrom(path string) *Command {
	return c.mustRedirect("InputFrom", path, Stdin)
}

// OutputTo writes stdout to path.
func (c *Command) OutputTo(path string) *Command {
	return c.mustRedirect("OutputTo", path, Stdout)
}

// ErrorTo writes stderr to path.
func (c *Command) ErrorTo(path string) *Command {
	return c.mustRedirect("ErrorTo", path, Stderr)
}

// RedirectTo redirects channel ch to path.
func (c *Command) RedirectTo(path string, ch Channel) *Command {
	return c.mustRedirect("RedirectTo", path, ch)
}

func (c *Command) mustRedirect(op, path string, ch Channel) *Command {
	if err := c.redirect(op, path, ch); err != nil {
		panic(err)
	}
	return c
}

// SetRedirect redirects ch to path, returning a *errors.LifecycleError once
// the chain has started.
func (c *Command) SetRedirect(ch Channel, path string) error {
	return c.redirect("SetRedirect", path, ch)
}

func (c *Command) redirect(op, path string, ch Channel) error {
	if !ch.Valid() {
		return errors.NewValidationError("unknown stdio channel").
			WithField("channel").
			WithValue(int(ch))
	}

	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.chain.started {
		return errors.NewLifecycleError(c.spec.Name(), op)
	}
	c.spec = c.spec.RedirectTo(path, ch)
	return nil
}

// Start spawns the whole chain in one wave if it has not started yet, bound
// to ctx: cancelling ctx kills every stage. It returns this command's spawn
// failure, if any.
func (c *Command) Start(ctx context.Context) error {
	ch := c.currentChain()
	ch.start(ctx)
	return c.stage.info().Err
}

// ensureStarted starts the chain in the background context if nothing has
// started it yet.
func (c *Command) ensureStarted() *chain {
	ch := c.currentChain()
	ch.start(context.Background())
	return ch
}

func (c *Command) currentChain() *chain {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.chain
}

// Started triggers the chain and waits until this command has been spawned.
// It returns the spawn failure, if any. Once it returns, the command no
// longer accepts changes.
func (c *Command) Started(ctx context.Context) error {
	ch := c.ensureStarted()
	select {
	case <-ch.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.stage.info().Err
}

// Wait triggers the chain and blocks until this command exits. It returns
// the spawn failure if the command never ran.
func (c *Command) Wait(ctx context.Context) (process.ExitStatus, error) {
	if err := c.Started(ctx); err != nil {
		return process.ExitStatus{Code: -1}, err
	}
	return c.stage.handle.Wait(ctx)
}

// Stdin triggers the chain and returns the stdin of the chain's first
// command. It is nil for every other command and when stdin is redirected.
func (c *Command) Stdin() io.WriteCloser {
	<-c.ensureStarted().ready
	return c.stdin
}

// Stdout triggers the chain and returns this command's stdout. A command
// whose stdout feeds the next stage yields no bytes and ends when it exits.
func (c *Command) Stdout() *stream.Output {
	<-c.ensureStarted().ready
	return c.stdout
}

// Stderr triggers the chain and returns the stderr of every unredirected
// stage of the chain, merged.
func (c *Command) Stderr() *stream.Output {
	ch := c.ensureStarted()
	<-ch.ready
	return ch.run.agg.Output()
}

// Errors returns this command's error channel. It carries the command's own
// failures and those forwarded from the stage before it, and is closed once
// the chain has completed. Reading it does not start the chain.
func (c *Command) Errors() <-chan error {
	return c.errs
}

// Done returns a channel closed once the whole chain has completed. It does
// not start the chain.
func (c *Command) Done() <-chan struct{} {
	return c.currentChain().done
}

// emit delivers err to this command and forwards it one hop downstream,
// which forwards it again, so the tail observes every error of the chain.
func (c *Command) emit(err error) {
	for cur := c; cur != nil; cur = cur.next {
		select {
		case cur.errs <- err:
		default:
			cur.dropped.Add(1)
			cur.stage.log.Warn("error channel full, dropping error", "error", err)
		}
	}
}

// Name returns the command name.
func (c *Command) Name() string {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.spec.Name()
}

// Spec returns a copy of the command's stage spec.
func (c *Command) Spec() StageSpec {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.spec.clone()
}

// Index returns the command's 1-indexed position in its chain.
func (c *Command) Index() int {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	n := 1
	for p := c.prev; p != nil; p = p.prev {
		n++
	}
	return n
}

// State returns the command's lifecycle state.
func (c *Command) State() State {
	c.b.mu.Lock()
	s, started := c.stage, c.chain.started
	c.b.mu.Unlock()

	if s == nil {
		if started {
			return StateStarting
		}
		return StateNotStarted
	}
	return s.info().State
}

// Info returns a snapshot of the command's stage.
func (c *Command) Info() StageInfo {
	c.b.mu.Lock()
	s := c.stage
	c.b.mu.Unlock()

	if s == nil {
		return StageInfo{Index: c.Index(), Command: c.Name(), State: c.State()}
	}
	return s.info()
}
