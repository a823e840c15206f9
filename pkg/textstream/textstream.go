// Package textstream provides lazy, single-pass streams of text chunks and
// the primitives to produce, drain and duplicate them.
//
// A Stream yields chunks from Next until it returns io.EOF. Any other error
// is terminal. Streams returned by this package are safe for concurrent Next
// calls; each chunk is handed to exactly one caller.
package textstream

import (
	"errors"
	"io"
	"strings"
)

// ErrClosed is returned by Next after the stream was closed by a consumer.
var ErrClosed = errors.New("textstream: closed")

// Stream is a lazy sequence of text chunks.
type Stream interface {
	// Next returns the next chunk, io.EOF at the end, or a terminal error.
	Next() (string, error)

	// Close releases the stream. Pending and future Next calls return ErrClosed.
	Close() error

	// CloseWithError closes the stream with a specific error.
	CloseWithError(err error) error
}

// FromChunks returns a finished stream over the given chunks.
func FromChunks(chunks ...string) Stream {
	b := NewBuilder()
	b.Add(chunks...)
	b.Done()
	return b.Stream()
}

// Error returns a stream that fails immediately with err.
func Error(err error) Stream {
	b := NewBuilder()
	b.Abort(err)
	return b.Stream()
}

// ReadAll drains s and returns the concatenated text. io.EOF is not
// reported as an error.
func ReadAll(s Stream) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
}
