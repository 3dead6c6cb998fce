package stream

import (
	"bytes"
	"io"
	"sync"
)

// Buffer is an in-memory pipe whose writes never block. Readers block until
// data is available or the write side is closed. Closing the read side
// discards buffered and future data so writers can keep draining their
// sources.
type Buffer struct {
	mu          sync.Mutex
	cond        *sync.Cond
	buf         bytes.Buffer
	writeClosed bool
	readClosed  bool
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write appends p. It fails with io.ErrClosedPipe once the write side is
// closed.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writeClosed {
		return 0, io.ErrClosedPipe
	}
	if b.readClosed {
		return len(p), nil
	}
	n, err := b.buf.Write(p)
	b.cond.Broadcast()
	return n, err
}

// Read reads buffered data, blocking while the buffer is empty and the write
// side is open. It returns io.EOF once the write side is closed and drained.
func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.buf.Len() == 0 && !b.writeClosed && !b.readClosed {
		b.cond.Wait()
	}
	if b.readClosed {
		return 0, io.ErrClosedPipe
	}
	if b.buf.Len() == 0 {
		return 0, io.EOF
	}
	return b.buf.Read(p)
}

// CloseWrite marks the end of the data. Pending and future reads return
// io.EOF after the buffer drains. It is idempotent.
func (b *Buffer) CloseWrite() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writeClosed = true
	b.cond.Broadcast()
	return nil
}

// Close closes the read side and discards buffered data.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.readClosed = true
	b.buf.Reset()
	b.cond.Broadcast()
	return nil
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
