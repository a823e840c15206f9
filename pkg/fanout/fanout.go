// Package fanout delivers one text stream to many device connections.
//
// Each target is resolved against the live connection table first. Targets
// without a connection are reported as NotConnected and never read from the
// stream. The remaining targets are attached concurrently; one target's
// attach failure never affects another.
package fanout

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/haivivi/t140cast/pkg/connmgr"
	"github.com/haivivi/t140cast/pkg/device"
	"github.com/haivivi/t140cast/pkg/metrics"
	"github.com/haivivi/t140cast/pkg/t140"
	"github.com/haivivi/t140cast/pkg/textstream"
)

// Mode selects how the stream is split between targets.
type Mode int

const (
	// ModeShared attaches the same stream to every target. The targets share
	// one read position: each chunk goes to whichever pump reads it first,
	// and once one consumer exhausts or cancels the stream, all do.
	ModeShared Mode = iota

	// ModeTee gives every target its own branch of the stream so each reads
	// every chunk at its own pace.
	ModeTee
)

func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModeTee:
		return "tee"
	default:
		return "unknown"
	}
}

// ParseMode parses "shared" or "tee".
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "", "shared":
		return ModeShared, true
	case "tee":
		return ModeTee, true
	}
	return ModeShared, false
}

// Lookup resolves a device id to its live connection.
// *connmgr.Manager implements it.
type Lookup interface {
	Connection(id string) (*connmgr.Connection, bool)
}

// Result is the delivery outcome for one target.
type Result struct {
	DeviceID string        `json:"deviceId"`
	Success  bool          `json:"success"`
	Reason   device.Reason `json:"reason,omitempty"`
	Err      error         `json:"-"`
}

// AnySuccess reports whether at least one target succeeded.
func AnySuccess(results []Result) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}

// Engine is the fan-out engine.
type Engine struct {
	lookup  Lookup
	mode    Mode
	limit   int
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMode sets the split mode. The default is ModeShared.
func WithMode(m Mode) Option {
	return func(e *Engine) { e.mode = m }
}

// WithMaxConcurrency caps concurrent attach calls per Deliver.
// Zero or less means one goroutine per target.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) { e.limit = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics records delivery metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine over lookup.
func New(lookup Lookup, opts ...Option) *Engine {
	e := &Engine{lookup: lookup, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Mode returns the configured split mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

type target struct {
	idx  int
	conn *connmgr.Connection
}

// Deliver attaches s to every target and returns one Result per target in
// input order. Deliver returns once every attach call has completed;
// delivery itself continues in the background.
//
// Deliver takes ownership of s. It is closed when no target could be
// attached, or after the last attached pump stops.
func (e *Engine) Deliver(ctx context.Context, s textstream.Stream, targets []string) []Result {
	results := make([]Result, len(targets))
	var live []target
	for i, id := range targets {
		results[i].DeviceID = id
		conn, ok := e.lookup.Connection(id)
		if !ok {
			results[i].Reason = device.ReasonNotConnected
			results[i].Err = device.Errorf(device.ReasonNotConnected, id, "no active connection")
			e.metrics.Delivery("not_connected")
			continue
		}
		live = append(live, target{idx: i, conn: conn})
	}
	if len(live) == 0 {
		s.Close()
		return results
	}

	streams := e.split(s, len(live))
	var g errgroup.Group
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i, tg := range live {
		g.Go(func() error {
			results[tg.idx] = e.attach(ctx, tg.conn, streams[i])
			return nil
		})
	}
	g.Wait()
	return results
}

// split returns one stream per target. In shared mode the source is closed
// once every target finished; in tee mode each branch is closed on its own.
func (e *Engine) split(s textstream.Stream, n int) []*release {
	out := make([]*release, n)
	if e.mode == ModeTee {
		for i, br := range textstream.Tee(s, n) {
			out[i] = &release{Stream: br, done: func() { br.Close() }}
		}
		return out
	}
	var mu sync.Mutex
	remaining := n
	done := func() {
		mu.Lock()
		remaining--
		last := remaining == 0
		mu.Unlock()
		if last {
			s.Close()
		}
	}
	for i := range out {
		out[i] = &release{Stream: s, done: done}
	}
	return out
}

// release is one target's share of a stream. finish runs done at most once.
type release struct {
	textstream.Stream
	once sync.Once
	done func()
}

func (r *release) finish() {
	r.once.Do(r.done)
}

func (e *Engine) attach(ctx context.Context, conn *connmgr.Connection, s *release) Result {
	id := conn.DeviceID()
	res := Result{DeviceID: id}
	log := e.log.With("target", id, "mode", e.mode.String())

	if err := ctx.Err(); err != nil {
		s.finish()
		res.Reason = device.ReasonAttachFailed
		res.Err = device.Wrap(device.ReasonAttachFailed, id, err)
		e.metrics.Delivery("attach_failed")
		return res
	}

	stopped := e.metrics.PumpStarted()
	err := t140.Attach(conn.Transport, s, t140.AttachOptions{
		ProcessBackspaces: conn.ProcessBackspaces,
		OnDone: func(err error) {
			stopped()
			if err != nil {
				log.Warn("fanout: delivery ended with error", "err", err)
			} else {
				log.Debug("fanout: delivery complete")
			}
			s.finish()
		},
	})
	if err != nil {
		stopped()
		s.finish()
		log.Warn("fanout: attach failed", "err", err)
		res.Reason = device.ReasonAttachFailed
		res.Err = device.Wrap(device.ReasonAttachFailed, id, err)
		e.metrics.Delivery("attach_failed")
		return res
	}
	res.Success = true
	e.metrics.Delivery("attached")
	return res
}
