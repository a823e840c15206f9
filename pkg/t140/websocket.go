package t140

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/t140cast/pkg/textstream"
)

// DefaultHandshakeTimeout bounds the WebSocket opening handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// WebSocket is a Transport that sends text as WebSocket text frames.
type WebSocket struct {
	conn *websocket.Conn
	log  *slog.Logger
	hub

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// DialWebSocket connects to ep.URL.
func DialWebSocket(ctx context.Context, ep WebSocketEndpoint, log *slog.Logger) (*WebSocket, error) {
	timeout := ep.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, ep.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("t140: dial %s: %w (status %d)", ep.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("t140: dial %s: %w", ep.URL, err)
	}
	ws := &WebSocket{
		conn: conn,
		log:  log.With("transport", "websocket", "url", ep.URL),
		done: make(chan struct{}),
	}
	go ws.readLoop()
	return ws, nil
}

func (ws *WebSocket) readLoop() {
	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			select {
			case <-ws.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					ws.hub.publish(Event{Type: EventError, Err: err})
				}
				ws.shutdown()
			}
			return
		}
		ws.hub.publish(Event{Type: EventMessage, Text: string(data)})
	}
}

// SendText writes text as a single text frame.
func (ws *WebSocket) SendText(text string) error {
	select {
	case <-ws.done:
		return ErrClosed
	default:
	}
	ws.writeMu.Lock()
	err := ws.conn.WriteMessage(websocket.TextMessage, []byte(text))
	ws.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("t140: websocket write: %w", err)
	}
	ws.hub.publish(Event{Type: EventSent, Text: text})
	return nil
}

// AttachStream pumps s as text frames until it ends or the transport closes.
func (ws *WebSocket) AttachStream(s textstream.Stream, opts AttachOptions) error {
	select {
	case <-ws.done:
		return ErrClosed
	default:
	}
	startPump(ws.log, &ws.hub, s, opts, ws.done, ws.SendText)
	return nil
}

// shutdown marks the transport closed and releases the socket.
func (ws *WebSocket) shutdown() (err error) {
	ws.closeOnce.Do(func() {
		close(ws.done)
		err = ws.conn.Close()
		ws.hub.publish(Event{Type: EventClose})
	})
	return err
}

// Close sends a close frame and closes the connection.
func (ws *WebSocket) Close() error {
	select {
	case <-ws.done:
		return nil
	default:
	}
	ws.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	ws.writeMu.Unlock()
	if err := ws.shutdown(); err != nil {
		return fmt.Errorf("t140: websocket close: %w", err)
	}
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return fmt.Errorf("t140: websocket close frame: %w", werr)
	}
	return nil
}

var (
	_ Transport      = (*WebSocket)(nil)
	_ StreamAttacher = (*WebSocket)(nil)
)
