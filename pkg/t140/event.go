package t140

import "sync"

// EventType classifies transport events.
type EventType int

const (
	EventMessage EventType = iota // inbound text from the device
	EventSent                     // text left the transport
	EventError                    // send or receive failure
	EventClose                    // transport closed
)

func (t EventType) String() string {
	switch t {
	case EventMessage:
		return "message"
	case EventSent:
		return "sent"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is a transport notification.
type Event struct {
	Type EventType
	Text string
	Err  error
}

type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func (h *hub) Subscribe(fn func(Event)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *hub) publish(e Event) {
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}
