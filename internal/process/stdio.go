package process

import (
	"fmt"

	"github.com/spf13/afero"
)

// Channel identifies one of a process's three standard streams.
type Channel int

// Standard stream channels, numbered like their file descriptors.
const (
	Stdin Channel = iota
	Stdout
	Stderr
)

// String returns the conventional stream name.
func (c Channel) String() string {
	switch c {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Valid reports whether c names one of the three standard streams.
func (c Channel) Valid() bool {
	return c >= Stdin && c <= Stderr
}

// StdioKind selects how a channel of a spawned process is connected.
type StdioKind int

const (
	// KindPipe creates a new pipe whose parent end is exposed on the Handle.
	KindPipe StdioKind = iota
	// KindInherit hands the caller's own stream to the child.
	KindInherit
	// KindFile connects the channel to an already-open file.
	KindFile
)

// String returns the kind name.
func (k StdioKind) String() string {
	switch k {
	case KindPipe:
		return "pipe"
	case KindInherit:
		return "inherit"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// StdioConfig describes how a single channel is connected.
type StdioConfig struct {
	Kind StdioKind
	// File is the open redirection target when Kind is KindFile. The Handle
	// takes ownership and closes it once the process has exited.
	File afero.File
}

// Pipe returns a StdioConfig requesting a new pipe.
func Pipe() StdioConfig { return StdioConfig{Kind: KindPipe} }

// Inherit returns a StdioConfig handing the caller's stream to the child.
func Inherit() StdioConfig { return StdioConfig{Kind: KindInherit} }

// FromFile returns a StdioConfig bound to an open file.
func FromFile(f afero.File) StdioConfig { return StdioConfig{Kind: KindFile, File: f} }

// StdioSet holds the configuration of all three channels, indexed by Channel.
type StdioSet [3]StdioConfig

// DefaultStdio returns a set with a new pipe on every channel.
func DefaultStdio() StdioSet {
	return StdioSet{Pipe(), Pipe(), Pipe()}
}

// Close closes any file targets held by the set. It is used when a spawn is
// abandoned before the Handle takes ownership of them.
func (s StdioSet) Close() {
	for _, cfg := range s {
		if cfg.Kind == KindFile && cfg.File != nil {
			_ = cfg.File.Close()
		}
	}
}
