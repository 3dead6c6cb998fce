package stream

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Output is a byte source that can also be awaited to its fully buffered
// contents. Read and Bytes share the same underlying stream: bytes consumed
// by Read before Bytes is called are not part of the buffered value.
type Output struct {
	src io.ReadCloser

	once sync.Once
	done chan struct{}
	data []byte
	err  error
}

// NewOutput wraps src.
func NewOutput(src io.ReadCloser) *Output {
	return &Output{
		src:  src,
		done: make(chan struct{}),
	}
}

// EmptyOutput returns an Output that yields no bytes and reaches EOF once
// done is closed. A nil done reaches EOF immediately.
func EmptyOutput(done <-chan struct{}) *Output {
	return NewOutput(&waitReader{done: done})
}

// Read implements io.Reader.
func (o *Output) Read(p []byte) (int, error) {
	return o.src.Read(p)
}

// Close closes the underlying source.
func (o *Output) Close() error {
	return o.src.Close()
}

// Bytes reads the source to EOF and returns everything read. The first call
// starts buffering; later calls return the same value. If ctx ends first,
// buffering continues in the background and ctx's error is returned.
func (o *Output) Bytes(ctx context.Context) ([]byte, error) {
	o.once.Do(func() {
		go func() {
			defer close(o.done)
			o.data, o.err = io.ReadAll(o.src)
		}()
	})

	select {
	case <-o.done:
		return o.data, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// String is Bytes as a string.
func (o *Output) String(ctx context.Context) (string, error) {
	data, err := o.Bytes(ctx)
	return string(data), err
}

// TrimmedString is String with surrounding whitespace removed.
func (o *Output) TrimmedString(ctx context.Context) (string, error) {
	data, err := o.Bytes(ctx)
	return string(bytes.TrimSpace(data)), err
}

// waitReader yields EOF once done is closed.
type waitReader struct {
	done <-chan struct{}
}

func (w *waitReader) Read([]byte) (int, error) {
	if w.done != nil {
		<-w.done
	}
	return 0, io.EOF
}

func (w *waitReader) Close() error { return nil }
