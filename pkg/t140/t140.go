// Package t140 implements real-time text transports for assistive devices.
//
// Two transports are provided: WebSocket, which sends each piece of text as a
// text frame, and RTP, which packetizes text per RFC 4103 (payload type 98,
// 1000 Hz clock) over UDP with per-character pacing. Both accept an attached
// text stream and pump it to the device in the background.
package t140

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haivivi/t140cast/pkg/textstream"
)

var (
	// ErrClosed is returned when sending on a closed transport.
	ErrClosed = errors.New("t140: transport closed")

	// ErrAttachUnsupported is returned by Attach for transports that cannot
	// take a stream.
	ErrAttachUnsupported = errors.New("t140: transport does not support stream attachment")

	// ErrUnsupportedEndpoint is returned by Dialer.Open for unknown endpoint kinds.
	ErrUnsupportedEndpoint = errors.New("t140: unsupported endpoint")
)

// Transport is a live text channel to one device.
type Transport interface {
	// SendText transmits text verbatim.
	SendText(text string) error

	// Close tears the transport down. Attached streams stop being pumped.
	Close() error

	// Subscribe registers fn for transport events and returns a function
	// that removes it. fn must not block.
	Subscribe(fn func(Event)) (cancel func())
}

// AttachOptions configures how an attached stream is delivered.
type AttachOptions struct {
	// ProcessBackspaces applies backspace characters in the stream before
	// transmission instead of sending them verbatim.
	ProcessBackspaces bool

	// OnDone, if set, is called once when the pump stops. err is nil when the
	// stream ended normally.
	OnDone func(err error)
}

// StreamAttacher is implemented by transports that can pump a stream.
type StreamAttacher interface {
	// AttachStream starts delivering s in the background and returns once
	// the pump is running.
	AttachStream(s textstream.Stream, opts AttachOptions) error
}

// Attach attaches s to t, or returns ErrAttachUnsupported.
func Attach(t Transport, s textstream.Stream, opts AttachOptions) error {
	a, ok := t.(StreamAttacher)
	if !ok {
		return ErrAttachUnsupported
	}
	return a.AttachStream(s, opts)
}

// Endpoint is where a transport connects to. It is either a
// WebSocketEndpoint or an RTPEndpoint.
type Endpoint interface {
	isEndpoint()
}

// WebSocketEndpoint describes a device reachable over WebSocket.
type WebSocketEndpoint struct {
	URL              string
	HandshakeTimeout time.Duration
}

// RTPEndpoint describes a device reachable over RTP/UDP.
type RTPEndpoint struct {
	Host string
	Port int

	// CharRateLimit is the maximum characters per second. Zero disables pacing.
	CharRateLimit int

	// ProcessBackspaces is the default for streams attached without an
	// explicit preference.
	ProcessBackspaces bool

	// PayloadType defaults to DefaultPayloadType.
	PayloadType uint8

	// SSRC defaults to a random value.
	SSRC uint32
}

func (WebSocketEndpoint) isEndpoint() {}
func (RTPEndpoint) isEndpoint()       {}

// Factory opens transports.
type Factory interface {
	Open(ctx context.Context, ep Endpoint) (Transport, error)
}

// Dialer is the default Factory.
type Dialer struct {
	Logger *slog.Logger
}

// Open dials the endpoint.
func (d *Dialer) Open(ctx context.Context, ep Endpoint) (Transport, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch ep := ep.(type) {
	case WebSocketEndpoint:
		return DialWebSocket(ctx, ep, logger)
	case RTPEndpoint:
		return DialRTP(ctx, ep, logger)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedEndpoint, ep)
	}
}

var _ Factory = (*Dialer)(nil)
