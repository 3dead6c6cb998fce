// Package process spawns the OS processes behind pipeline stages.
//
// A [Spec] names the command, arguments, working directory and environment.
// [Spawn] starts it with a [StdioSet] choosing, per channel, a new pipe, the
// caller's own stream, or an already-open file. The returned [Handle] exposes
// the parent ends of the piped channels and an exit notification.
//
// Pipes are created with os.Pipe rather than exec.Cmd's pipe helpers, so the
// parent ends stay open after the process exits. Output written just before
// exit can still be read, and the caller decides when each end is closed.
//
// # Exit Hooks
//
// [Handle.OnExit] registers callbacks that run on the handle's exit-watcher
// goroutine in registration order. The pipeline engine uses them to unwire
// stream links and to account for finished stderr contributors.
//
// # Redirections
//
// A [Resolver] opens redirection targets through an afero.Fs: stdin targets
// for reading, stdout and stderr targets created or truncated for writing.
// Tests use afero.NewMemMapFs to resolve without touching disk.
package process
