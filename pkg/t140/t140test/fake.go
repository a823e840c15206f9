// Package t140test provides in-memory transports for testing code that
// opens and drives t140 transports.
package t140test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/t140cast/pkg/t140"
	"github.com/haivivi/t140cast/pkg/textstream"
)

// Transport records everything sent to it. AttachStream drains the stream
// in a goroutine.
type Transport struct {
	Endpoint t140.Endpoint

	// CloseErr is returned by Close.
	CloseErr error
	// AttachErr is returned by AttachStream.
	AttachErr error

	mu     sync.Mutex
	sent   []string
	closed bool
	subs   map[int]func(t140.Event)
	nextID int
	pumps  sync.WaitGroup
}

func (t *Transport) SendText(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t140.ErrClosed
	}
	t.sent = append(t.sent, text)
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.CloseErr
}

func (t *Transport) Subscribe(fn func(t140.Event)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs == nil {
		t.subs = make(map[int]func(t140.Event))
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// AttachStream drains s into the sent log.
func (t *Transport) AttachStream(s textstream.Stream, opts t140.AttachOptions) error {
	if t.AttachErr != nil {
		return t.AttachErr
	}
	if t.Closed() {
		return t140.ErrClosed
	}
	t.pumps.Add(1)
	go func() {
		defer t.pumps.Done()
		var err error
		for {
			var chunk string
			chunk, err = s.Next()
			if err != nil {
				break
			}
			if opts.ProcessBackspaces {
				chunk = t140.ProcessBackspaces(chunk)
			}
			if err = t.SendText(chunk); err != nil {
				break
			}
		}
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if opts.OnDone != nil {
			opts.OnDone(err)
		}
	}()
	return nil
}

// Drop simulates the peer closing the transport.
func (t *Transport) Drop() {
	t.mu.Lock()
	t.closed = true
	fns := make([]func(t140.Event), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(t140.Event{Type: t140.EventClose})
	}
}

// Closed reports whether Close or Drop was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Text returns everything sent so far.
func (t *Transport) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.sent, "")
}

// WaitPumps waits for attached streams to finish, up to timeout.
func (t *Transport) WaitPumps(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// sendOnly exposes a Transport without AttachStream.
type sendOnly struct{ t *Transport }

func (s sendOnly) SendText(text string) error           { return s.t.SendText(text) }
func (s sendOnly) Close() error                         { return s.t.Close() }
func (s sendOnly) Subscribe(fn func(t140.Event)) func() { return s.t.Subscribe(fn) }

// Factory hands out fake transports.
type Factory struct {
	// Delay is slept before each Open returns.
	Delay time.Duration
	// Err, if set, fails every Open.
	Err error
	// NoAttach makes transports without stream attachment.
	NoAttach bool
	// CloseErr is set on every created transport.
	CloseErr error

	opens atomic.Int32

	mu         sync.Mutex
	transports []*Transport
}

func (f *Factory) Open(ctx context.Context, ep t140.Endpoint) (t140.Transport, error) {
	f.opens.Add(1)
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	tr := &Transport{Endpoint: ep, CloseErr: f.CloseErr}
	f.mu.Lock()
	f.transports = append(f.transports, tr)
	f.mu.Unlock()
	if f.NoAttach {
		return sendOnly{tr}, nil
	}
	return tr, nil
}

// Opens returns how many times Open was called.
func (f *Factory) Opens() int {
	return int(f.opens.Load())
}

// Transports returns the transports created so far.
func (f *Factory) Transports() []*Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Transport(nil), f.transports...)
}

// Last returns the most recently created transport.
func (f *Factory) Last() *Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

var (
	_ t140.Transport      = (*Transport)(nil)
	_ t140.StreamAttacher = (*Transport)(nil)
	_ t140.Factory        = (*Factory)(nil)
)
