package stream

import (
	"io"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/piper/internal/errors"
)

// ErrAggregatorClosed is returned when a contributor is added after the
// merged stream has closed.
var ErrAggregatorClosed = errors.New("stderr aggregator already closed")

// Contributor is one stage's stderr feeding an Aggregator.
type Contributor struct {
	Stage   int
	Command string
	// Src is the stage's stderr. The aggregator closes it after reading EOF.
	Src io.ReadCloser
	// Exited is closed when the stage's process has exited.
	Exited <-chan struct{}
}

// Aggregator fans the stderr of many stages into one stream. Bytes from a
// single contributor keep their order; bytes from different contributors
// interleave in arrival order.
//
// The merged stream closes once the aggregator is sealed and every
// contributor has both reached EOF and exited. A stage that never joined
// contributes nothing to the count.
type Aggregator struct {
	out    *Buffer
	output *Output

	mu     sync.Mutex
	open   int
	sealed bool
	closed bool
	done   chan struct{}

	wg      conc.WaitGroup
	onError func(error)
}

// NewAggregator creates an Aggregator. onError, if non-nil, receives read
// failures from contributors.
func NewAggregator(onError func(error)) *Aggregator {
	out := NewBuffer()
	return &Aggregator{
		out:     out,
		output:  NewOutput(out),
		done:    make(chan struct{}),
		onError: onError,
	}
}

// Add registers a contributor and starts copying its stderr.
func (a *Aggregator) Add(c Contributor) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrAggregatorClosed
	}
	a.open++
	a.mu.Unlock()

	a.wg.Go(func() {
		_, err := io.Copy(a.out, c.Src)
		_ = c.Src.Close()
		if err != nil && !isBrokenPipe(err) && a.onError != nil {
			a.onError(errors.NewStreamError("read stage stderr", err).
				WithStage(c.Stage).
				WithCommand(c.Command).
				WithStream("stderr"))
		}
		if c.Exited != nil {
			<-c.Exited
		}
		a.release()
	})
	return nil
}

// release marks one contributor as finished.
func (a *Aggregator) release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.open--
	a.closeIfDoneLocked()
}

// Seal declares that no more contributors will be added. With zero
// contributors the merged stream closes immediately.
func (a *Aggregator) Seal() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sealed = true
	a.closeIfDoneLocked()
}

func (a *Aggregator) closeIfDoneLocked() {
	if a.closed || !a.sealed || a.open > 0 {
		return
	}
	a.closed = true
	_ = a.out.CloseWrite()
	close(a.done)
}

// Output returns the merged stream.
func (a *Aggregator) Output() *Output {
	return a.output
}

// Open returns the number of contributors still running.
func (a *Aggregator) Open() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

// Done returns a channel closed when the merged stream has closed.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until every contributor goroutine has returned. It must only
// be called after Seal.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}
