package textstream

import (
	"fmt"
	"io"
	"sync"
)

// Builder is the producer side of a Stream. The producer calls Add for each
// chunk and finishes with Done or Abort. Add fails once the consumer has
// closed the stream so the producer can stop early.
type Builder struct {
	mu       sync.Mutex
	chunks   []string
	changed  chan struct{}
	done     bool
	closeErr error
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{changed: make(chan struct{})}
}

// notifyLocked wakes every goroutine waiting in Next.
func (b *Builder) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// Add appends chunks. Empty chunks are skipped.
func (b *Builder) Add(chunks ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return fmt.Errorf("textstream: add to closed stream: %w", b.closeErr)
	}
	if b.done {
		return fmt.Errorf("textstream: add after done: %w", io.ErrClosedPipe)
	}
	for _, c := range chunks {
		if c != "" {
			b.chunks = append(b.chunks, c)
		}
	}
	b.notifyLocked()
	return nil
}

// Done marks the end of the stream. Buffered chunks remain readable.
func (b *Builder) Done() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done || b.closeErr != nil {
		return nil
	}
	b.done = true
	b.notifyLocked()
	return nil
}

// Abort ends the stream with err. Buffered chunks are discarded.
func (b *Builder) Abort(err error) error {
	return b.closeWithError(err)
}

// Closed reports whether the consumer closed the stream or it was aborted.
func (b *Builder) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeErr != nil
}

func (b *Builder) closeWithError(err error) error {
	if err == nil {
		err = ErrClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return nil
	}
	b.closeErr = err
	b.chunks = nil
	b.notifyLocked()
	return nil
}

// Stream returns the consumer side.
func (b *Builder) Stream() Stream {
	return (*builderStream)(b)
}

type builderStream Builder

func (s *builderStream) Next() (string, error) {
	b := (*Builder)(s)
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if b.closeErr != nil {
			return "", b.closeErr
		}
		if len(b.chunks) > 0 {
			c := b.chunks[0]
			b.chunks[0] = ""
			b.chunks = b.chunks[1:]
			return c, nil
		}
		if b.done {
			return "", io.EOF
		}
		ch := b.changed
		b.mu.Unlock()
		<-ch
		b.mu.Lock()
	}
}

func (s *builderStream) Close() error {
	return (*Builder)(s).closeWithError(ErrClosed)
}

func (s *builderStream) CloseWithError(err error) error {
	return (*Builder)(s).closeWithError(err)
}
