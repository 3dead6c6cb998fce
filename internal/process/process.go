package process

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"

	"github.com/Iron-Ham/piper/internal/errors"
)

// CommandFunc builds the command for a stage from its arguments. The engine
// attaches the resolved stdio to the returned command and starts it.
type CommandFunc func(ctx context.Context, args []string) *exec.Cmd

// Spec describes a process to spawn.
type Spec struct {
	// Command is the executable name or path. Ignored when Func is set.
	Command string
	Args    []string
	// Func, when set, builds the command instead of Command.
	Func CommandFunc
	// Dir is the working directory. Empty means the caller's.
	Dir string
	// Env holds extra KEY=VALUE entries.
	Env []string
	// InheritEnv starts the child from the caller's environment before Env
	// is applied. Without it the child sees only Env.
	InheritEnv bool
}

// Name returns the command name used in errors, logs and events.
func (s Spec) Name() string {
	if s.Command != "" {
		return s.Command
	}
	if s.Func != nil {
		return "<func>"
	}
	return ""
}

// build constructs the exec.Cmd for s bound to ctx.
func (s Spec) build(ctx context.Context) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	switch {
	case s.Func != nil:
		cmd = s.Func(ctx, s.Args)
		if cmd == nil {
			return nil, errors.NewValidationError("command func returned nil").WithField("command")
		}
	case s.Command != "":
		cmd = exec.CommandContext(ctx, s.Command, s.Args...)
	default:
		return nil, errors.NewValidationError("command cannot be empty").WithField("command")
	}

	if s.Dir != "" {
		cmd.Dir = s.Dir
	}
	switch {
	case !s.InheritEnv:
		cmd.Env = append([]string{}, s.Env...)
	case len(s.Env) > 0:
		base := cmd.Env
		if base == nil {
			base = os.Environ()
		}
		cmd.Env = append(base, s.Env...)
	}
	return cmd, nil
}

// Handle is a running process with the parent ends of its piped channels.
// Piped ends are owned by the caller; exiting does not close them, so output
// produced before exit can still be read afterwards.
type Handle struct {
	name string
	cmd  *exec.Cmd

	stdin  *os.File
	stdout *os.File
	stderr *os.File

	// closers run after the process has exited (redirection targets)
	closers []io.Closer

	mu      sync.Mutex
	exited  bool
	status  ExitStatus
	waitErr error
	hooks   []func(ExitStatus)
	done    chan struct{}
}

// Spawn starts the process described by spec with the given stdio
// configuration. The handle takes ownership of any file targets in stdio,
// including on failure. Cancelling ctx kills the process.
//
// Failures are returned as *errors.SpawnError wrapping ErrCommandNotFound or
// ErrSpawnFailed.
func Spawn(ctx context.Context, spec Spec, stdio StdioSet) (*Handle, error) {
	name := spec.Name()

	cmd, err := spec.build(ctx)
	if err != nil {
		stdio.Close()
		return nil, errors.NewSpawnError(name, fmt.Errorf("%w: %w", errors.ErrSpawnFailed, err))
	}
	if name == "<func>" && cmd.Path != "" {
		name = cmd.Path
	}

	h := &Handle{
		name: name,
		cmd:  cmd,
		done: make(chan struct{}),
	}

	// child ends are closed in the parent once the child holds them
	var childEnds []*os.File
	abort := func(cause error) (*Handle, error) {
		for _, f := range childEnds {
			_ = f.Close()
		}
		h.closeParentEnds()
		stdio.Close()
		return nil, errors.NewSpawnError(name, classifySpawnError(cause))
	}

	switch stdio[Stdin].Kind {
	case KindPipe:
		r, w, err := os.Pipe()
		if err != nil {
			return abort(err)
		}
		cmd.Stdin, h.stdin = r, w
		childEnds = append(childEnds, r)
	case KindInherit:
		cmd.Stdin = os.Stdin
	case KindFile:
		cmd.Stdin = stdio[Stdin].File
		h.closers = append(h.closers, stdio[Stdin].File)
	}

	for _, ch := range []Channel{Stdout, Stderr} {
		var dst io.Writer
		switch stdio[ch].Kind {
		case KindPipe:
			r, w, err := os.Pipe()
			if err != nil {
				return abort(err)
			}
			dst = w
			childEnds = append(childEnds, w)
			if ch == Stdout {
				h.stdout = r
			} else {
				h.stderr = r
			}
		case KindInherit:
			if ch == Stdout {
				dst = os.Stdout
			} else {
				dst = os.Stderr
			}
		case KindFile:
			dst = stdio[ch].File
			h.closers = append(h.closers, stdio[ch].File)
		}
		if ch == Stdout {
			cmd.Stdout = dst
		} else {
			cmd.Stderr = dst
		}
	}

	if err := cmd.Start(); err != nil {
		return abort(err)
	}

	for _, f := range childEnds {
		_ = f.Close()
	}

	go h.watch()
	return h, nil
}

// classifySpawnError tags cause with the matching sentinel.
func classifySpawnError(cause error) error {
	if errors.Is(cause, exec.ErrNotFound) || errors.Is(cause, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", errors.ErrCommandNotFound, cause)
	}
	if errors.Is(cause, errors.ErrSpawnFailed) {
		return cause
	}
	return fmt.Errorf("%w: %w", errors.ErrSpawnFailed, cause)
}

// watch waits for the process, records its status, runs exit hooks in
// registration order and only then closes done.
func (h *Handle) watch() {
	err := h.cmd.Wait()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}

	for _, c := range h.closers {
		_ = c.Close()
	}

	h.mu.Lock()
	h.exited = true
	h.status = exitStatusOf(h.cmd.ProcessState)
	h.waitErr = err
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	for _, hook := range hooks {
		hook(h.status)
	}
	close(h.done)
}

// closeParentEnds closes the parent ends of every piped channel.
func (h *Handle) closeParentEnds() {
	for _, f := range []*os.File{h.stdin, h.stdout, h.stderr} {
		if f != nil {
			_ = f.Close()
		}
	}
}

// Name returns the command name of the process.
func (h *Handle) Name() string { return h.name }

// Pid returns the OS process ID.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Stdin returns the writable end of the process's stdin, or nil if stdin is
// not piped.
func (h *Handle) Stdin() io.WriteCloser {
	if h.stdin == nil {
		return nil
	}
	return h.stdin
}

// Stdout returns the readable end of the process's stdout, or nil if stdout
// is not piped.
func (h *Handle) Stdout() io.ReadCloser {
	if h.stdout == nil {
		return nil
	}
	return h.stdout
}

// Stderr returns the readable end of the process's stderr, or nil if stderr
// is not piped.
func (h *Handle) Stderr() io.ReadCloser {
	if h.stderr == nil {
		return nil
	}
	return h.stderr
}

// OnExit registers fn to run once the process has exited. Hooks run on the
// exit-watcher goroutine in registration order and must not block on the
// handle. If the process has already exited, fn runs immediately on the
// calling goroutine.
func (h *Handle) OnExit(fn func(ExitStatus)) {
	h.mu.Lock()
	if h.exited {
		status := h.status
		h.mu.Unlock()
		fn(status)
		return
	}
	h.hooks = append(h.hooks, fn)
	h.mu.Unlock()
}

// Done returns a channel closed once the process has exited and its exit
// hooks have run.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports whether the process has exited.
func (h *Handle) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// Wait blocks until the process exits or ctx is done. The returned error is
// nil for any exit code; it is non-nil only if ctx ended first or the process
// could not be waited on.
func (h *Handle) Wait(ctx context.Context) (ExitStatus, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return ExitStatus{}, errors.Wrap(ctx.Err(), "waiting for "+h.name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.waitErr
}

// Status returns the exit status and whether the process has exited.
func (h *Handle) Status() (ExitStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.exited
}

// Kill terminates the process immediately. It is a no-op once the process has
// exited.
func (h *Handle) Kill() error {
	if h.Exited() || h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
