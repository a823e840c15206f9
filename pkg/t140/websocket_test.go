package t140_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/t140cast/pkg/t140"
	"github.com/haivivi/t140cast/pkg/textstream"
)

// wsDevice is a fake WebSocket device that records received text frames.
type wsDevice struct {
	srv *httptest.Server

	mu       sync.Mutex
	received []string
	conns    []*websocket.Conn
	got      chan struct{}
}

func newWSDevice(t *testing.T) *wsDevice {
	t.Helper()
	d := &wsDevice{got: make(chan struct{}, 64)}
	upgrader := websocket.Upgrader{}
	d.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			d.mu.Lock()
			d.received = append(d.received, string(data))
			d.mu.Unlock()
			d.got <- struct{}{}
		}
	}))
	t.Cleanup(d.srv.Close)
	return d
}

func (d *wsDevice) url() string {
	return "ws" + strings.TrimPrefix(d.srv.URL, "http")
}

func (d *wsDevice) text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.received, "")
}

func (d *wsDevice) waitFrames(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-d.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frames, have %q", d.text())
		}
	}
}

func dialWS(t *testing.T, d *wsDevice) *t140.WebSocket {
	t.Helper()
	ws, err := t140.DialWebSocket(context.Background(), t140.WebSocketEndpoint{URL: d.url()}, discardLogger())
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWebSocketSendText(t *testing.T) {
	d := newWSDevice(t)
	ws := dialWS(t, d)

	sent := make(chan string, 1)
	cancel := ws.Subscribe(func(e t140.Event) {
		if e.Type == t140.EventSent {
			sent <- e.Text
		}
	})
	defer cancel()

	if err := ws.SendText("hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	d.waitFrames(t, 1)
	if d.text() != "hello" {
		t.Fatalf("device got %q", d.text())
	}
	if got := <-sent; got != "hello" {
		t.Fatalf("sent event = %q", got)
	}
}

func TestWebSocketAttachStream(t *testing.T) {
	d := newWSDevice(t)
	ws := dialWS(t, d)

	done := make(chan error, 1)
	err := t140.Attach(ws, textstream.FromChunks("helo\b", "lo ", "world"), t140.AttachOptions{
		ProcessBackspaces: true,
		OnDone:            func(err error) { done <- err },
	})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("pump error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not finish")
	}
	d.waitFrames(t, 3)
	if d.text() != "hello world" {
		t.Fatalf("device got %q", d.text())
	}
}

func TestWebSocketReceivesMessages(t *testing.T) {
	d := newWSDevice(t)
	ws := dialWS(t, d)

	msgs := make(chan string, 1)
	ws.Subscribe(func(e t140.Event) {
		if e.Type == t140.EventMessage {
			msgs <- e.Text
		}
	})
	// Wait for the server side to register the connection.
	ws.SendText("ping")
	d.waitFrames(t, 1)

	d.mu.Lock()
	conn := d.conns[0]
	d.mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ack")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	select {
	case m := <-msgs:
		if m != "ack" {
			t.Fatalf("message = %q", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message event")
	}
}

func TestWebSocketClose(t *testing.T) {
	d := newWSDevice(t)
	ws := dialWS(t, d)

	closed := make(chan struct{}, 1)
	ws.Subscribe(func(e t140.Event) {
		if e.Type == t140.EventClose {
			closed <- struct{}{}
		}
	})
	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("no close event")
	}
	if err := ws.SendText("late"); !errors.Is(err, t140.ErrClosed) {
		t.Fatalf("SendText after close = %v", err)
	}
	if err := t140.Attach(ws, textstream.FromChunks("x"), t140.AttachOptions{}); !errors.Is(err, t140.ErrClosed) {
		t.Fatalf("Attach after close = %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestDialWebSocketFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, err := t140.DialWebSocket(context.Background(), t140.WebSocketEndpoint{URL: url}, discardLogger()); err == nil {
		t.Fatal("expected handshake failure")
	}
}
