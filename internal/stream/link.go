package stream

import (
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/Iron-Ham/piper/internal/errors"
)

// Side names the endpoint of a link whose exit tore it down.
type Side string

// Link endpoints.
const (
	Upstream   Side = "upstream"
	Downstream Side = "downstream"
)

// LinkConfig describes the stages joined by a link and the callbacks it
// reports through.
type LinkConfig struct {
	// Upstream and Downstream are the declared positions of the two stages.
	Upstream   int
	Downstream int
	// Command names the upstream stage in stream errors.
	Command string
	// OnUnwire runs exactly once, on the goroutine that triggered the unwire.
	OnUnwire func(Side)
	// OnError receives copy failures other than broken-pipe conditions.
	OnError func(error)
}

// Link copies an upstream stage's stdout into a downstream stage's stdin.
//
// A link moves from connected to disconnected exactly once, triggered by
// whichever endpoint exits first. When the downstream exits, both ends are
// closed immediately so the upstream stops on a broken pipe instead of
// blocking on a full one. When the upstream exits, the remaining output is
// drained before the downstream's stdin is closed.
type Link struct {
	cfg LinkConfig
	src io.ReadCloser
	dst io.WriteCloser

	unwireOnce sync.Once
	srcOnce    sync.Once
	dstOnce    sync.Once

	mu      sync.Mutex
	trigger Side

	done chan struct{}
}

// NewLink connects src to dst and starts copying.
func NewLink(src io.ReadCloser, dst io.WriteCloser, cfg LinkConfig) *Link {
	l := &Link{
		cfg:  cfg,
		src:  src,
		dst:  dst,
		done: make(chan struct{}),
	}
	go l.pump()
	return l
}

// pump copies until the upstream reaches EOF or either end is closed.
func (l *Link) pump() {
	defer close(l.done)

	_, err := io.Copy(l.dst, l.src)
	l.closeDst()
	l.closeSrc()

	if err == nil || isBrokenPipe(err) {
		return
	}
	if l.Trigger() == Downstream {
		return
	}
	if l.cfg.OnError != nil {
		l.cfg.OnError(errors.NewStreamError("copy to downstream stage", err).
			WithStage(l.cfg.Upstream).
			WithCommand(l.cfg.Command).
			WithStream("stdout"))
	}
}

// Unwire disconnects the link on behalf of side. Only the first call has any
// effect. A downstream unwire closes both ends at once; an upstream unwire
// lets the pending output drain.
func (l *Link) Unwire(side Side) {
	l.unwireOnce.Do(func() {
		l.mu.Lock()
		l.trigger = side
		l.mu.Unlock()

		if side == Downstream {
			l.closeSrc()
			l.closeDst()
		}
		if l.cfg.OnUnwire != nil {
			l.cfg.OnUnwire(side)
		}
	})
}

// Trigger returns the side that unwired the link, or "" while connected.
func (l *Link) Trigger() Side {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trigger
}

// Connected reports whether the link has not been unwired yet.
func (l *Link) Connected() bool {
	return l.Trigger() == ""
}

// Done returns a channel closed once copying has stopped and both ends are
// closed.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) closeSrc() {
	l.srcOnce.Do(func() { _ = l.src.Close() })
}

func (l *Link) closeDst() {
	l.dstOnce.Do(func() { _ = l.dst.Close() })
}

// isBrokenPipe reports whether err is the write-after-reader-exit class of
// failure that unwiring exists to absorb.
func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, errors.ErrBrokenPipe)
}
