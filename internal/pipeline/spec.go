package pipeline

import (
	"slices"

	"github.com/Iron-Ham/piper/internal/errors"
	"github.com/Iron-Ham/piper/internal/process"
)

// Channel re-exports the stdio channel indices used in redirections.
type Channel = process.Channel

// Standard channels.
const (
	Stdin  = process.Stdin
	Stdout = process.Stdout
	Stderr = process.Stderr
)

// CommandFunc builds a stage's command from its arguments. See
// [process.CommandFunc].
type CommandFunc = process.CommandFunc

// StageSpec describes one stage of a pipeline: a command, its arguments and
// optional per-channel file redirections.
//
// The With* and redirection helpers return modified copies, so a spec can be
// shared between pipelines without aliasing.
type StageSpec struct {
	Command string
	Args    []string
	// Redirections maps a channel to a file path. An empty path keeps the
	// channel piped.
	Redirections process.Redirections
	// Func, when set, builds the command instead of Command.
	Func CommandFunc
	// Dir is the working directory of the stage.
	Dir string
	// Env holds extra KEY=VALUE entries for the stage.
	Env []string
}

// Cmd returns a StageSpec for name with args.
func Cmd(name string, args ...string) StageSpec {
	return StageSpec{Command: name, Args: slices.Clone(args)}
}

// Func returns a StageSpec whose command is built by fn.
func Func(fn CommandFunc, args ...string) StageSpec {
	return StageSpec{Func: fn, Args: slices.Clone(args)}
}

// Name returns the command name used in errors, logs and events.
func (s StageSpec) Name() string {
	return s.processSpec(false).Name()
}

// InputFrom returns a copy of s reading stdin from path.
func (s StageSpec) InputFrom(path string) StageSpec { return s.RedirectTo(path, Stdin) }

// OutputTo returns a copy of s writing stdout to path.
func (s StageSpec) OutputTo(path string) StageSpec { return s.RedirectTo(path, Stdout) }

// ErrorTo returns a copy of s writing stderr to path.
func (s StageSpec) ErrorTo(path string) StageSpec { return s.RedirectTo(path, Stderr) }

// RedirectTo returns a copy of s with ch redirected to path. An invalid
// channel leaves the copy unchanged; use Validate to detect it.
func (s StageSpec) RedirectTo(path string, ch Channel) StageSpec {
	c := s.clone()
	if ch.Valid() {
		c.Redirections[ch] = path
	}
	return c
}

// InDir returns a copy of s running in dir.
func (s StageSpec) InDir(dir string) StageSpec {
	c := s.clone()
	c.Dir = dir
	return c
}

// WithEnv returns a copy of s with extra KEY=VALUE environment entries.
func (s StageSpec) WithEnv(env ...string) StageSpec {
	c := s.clone()
	c.Env = append(c.Env, env...)
	return c
}

// Validate reports a spec that can never spawn.
func (s StageSpec) Validate() error {
	if s.Command == "" && s.Func == nil {
		return errors.NewValidationError("stage has no command").WithField("command")
	}
	return nil
}

func (s StageSpec) clone() StageSpec {
	c := s
	c.Args = slices.Clone(s.Args)
	c.Env = slices.Clone(s.Env)
	return c
}

// processSpec converts s into the spawn request for the process layer.
func (s StageSpec) processSpec(inheritEnv bool) process.Spec {
	return process.Spec{
		Command:    s.Command,
		Args:       s.Args,
		Func:       s.Func,
		Dir:        s.Dir,
		Env:        s.Env,
		InheritEnv: inheritEnv,
	}
}
