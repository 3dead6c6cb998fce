package process

import (
	"fmt"
	"os"
	"syscall"
)

// ExitStatus is a process's exit code or terminating signal.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was killed by a signal.
	Code int
	// Signal is the name of the terminating signal, empty on normal exit.
	Signal string
	// SignalNumber is the terminating signal's number, 0 on normal exit.
	SignalNumber int
}

// Success reports whether the process exited normally with code 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == ""
}

// ShellCode returns the code a POSIX shell would report: the exit code, or
// 128 plus the signal number for a signalled process.
func (s ExitStatus) ShellCode() int {
	if s.SignalNumber > 0 {
		return 128 + s.SignalNumber
	}
	if s.Code < 0 {
		return 1
	}
	return s.Code
}

// String renders the status the way a shell reports it.
func (s ExitStatus) String() string {
	if s.Signal != "" {
		return fmt.Sprintf("signal: %s", s.Signal)
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// exitStatusOf extracts the status from a finished process.
func exitStatusOf(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signal: ws.Signal().String(), SignalNumber: int(ws.Signal())}
	}
	return ExitStatus{Code: state.ExitCode()}
}
