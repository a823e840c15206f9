package t140

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/rtp"
	"golang.org/x/time/rate"

	"github.com/haivivi/t140cast/pkg/textstream"
)

const (
	// DefaultPayloadType is the dynamic payload type commonly bound to
	// text/t140.
	DefaultPayloadType uint8 = 98

	// ClockRate is the RTP timestamp rate for text/t140.
	ClockRate = 1000

	// idleGap is the silence after which the next packet sets the marker bit.
	idleGap = 300 * time.Millisecond
)

// RTP is a Transport that sends T.140 text over RTP/UDP.
//
// Text is paced per character by the endpoint's CharRateLimit. Each
// character leaves in its own packet once the limiter admits it.
type RTP struct {
	conn    net.Conn
	log     *slog.Logger
	limiter *rate.Limiter
	hub

	ptype             uint8
	ssrc              uint32
	processBackspaces bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	seq      uint16
	start    time.Time
	lastSent time.Time
	closed   bool
}

// DialRTP opens a UDP socket to ep.
func DialRTP(ctx context.Context, ep RTPEndpoint, log *slog.Logger) (*RTP, error) {
	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("t140: dial rtp %s: %w", addr, err)
	}
	limit := rate.Inf
	if ep.CharRateLimit > 0 {
		limit = rate.Limit(ep.CharRateLimit)
	}
	ptype := ep.PayloadType
	if ptype == 0 {
		ptype = DefaultPayloadType
	}
	ssrc := ep.SSRC
	if ssrc == 0 {
		ssrc = rand.Uint32()
	}
	pctx, cancel := context.WithCancel(context.Background())
	return &RTP{
		conn:              conn,
		log:               log.With("transport", "rtp", "addr", addr),
		limiter:           rate.NewLimiter(limit, 1),
		ptype:             ptype,
		ssrc:              ssrc,
		processBackspaces: ep.ProcessBackspaces,
		ctx:               pctx,
		cancel:            cancel,
		seq:               uint16(rand.Uint32()),
		start:             time.Now(),
	}, nil
}

// SSRC returns the synchronization source of outgoing packets.
func (r *RTP) SSRC() uint32 { return r.ssrc }

// SendText transmits text one character per packet, waiting on the rate
// limiter between characters.
func (r *RTP) SendText(text string) error {
	for _, ch := range text {
		if err := r.limiter.Wait(r.ctx); err != nil {
			return ErrClosed
		}
		if err := r.writeRune(ch); err != nil {
			r.hub.publish(Event{Type: EventError, Err: err})
			return err
		}
	}
	r.hub.publish(Event{Type: EventSent, Text: text})
	return nil
}

func (r *RTP) writeRune(ch rune) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	now := time.Now()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         r.lastSent.IsZero() || now.Sub(r.lastSent) >= idleGap,
			PayloadType:    r.ptype,
			SequenceNumber: r.seq,
			Timestamp:      uint32(now.Sub(r.start).Milliseconds()),
			SSRC:           r.ssrc,
		},
		Payload: []byte(string(ch)),
	}
	data, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("t140: marshal rtp: %w", err)
	}
	if _, err := r.conn.Write(data); err != nil {
		return fmt.Errorf("t140: write rtp: %w", err)
	}
	r.seq++
	r.lastSent = now
	return nil
}

// AttachStream pumps s through SendText. Backspaces are processed when
// either opts or the endpoint asks for it.
func (r *RTP) AttachStream(s textstream.Stream, opts AttachOptions) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	opts.ProcessBackspaces = opts.ProcessBackspaces || r.processBackspaces
	startPump(r.log, &r.hub, s, opts, r.ctx.Done(), r.SendText)
	return nil
}

// Close stops pacing and closes the socket.
func (r *RTP) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	err := r.conn.Close()
	r.hub.publish(Event{Type: EventClose})
	if err != nil {
		return fmt.Errorf("t140: close rtp: %w", err)
	}
	return nil
}

var (
	_ Transport      = (*RTP)(nil)
	_ StreamAttacher = (*RTP)(nil)
)
