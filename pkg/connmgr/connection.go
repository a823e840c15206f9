package connmgr

import (
	"time"

	"github.com/haivivi/t140cast/pkg/device"
	"github.com/haivivi/t140cast/pkg/t140"
)

// Connection is the live pairing of a device snapshot and its transport.
// Values handed out by the Manager are copies; the Transport is shared.
type Connection struct {
	Device            *device.Record `json:"device"`
	Transport         t140.Transport `json:"-"`
	Status            device.Status  `json:"status"`
	ProcessBackspaces bool           `json:"processBackspaces"`
	ConnectedAt       time.Time      `json:"connectedAt"`
	DisconnectedAt    *time.Time     `json:"disconnectedAt,omitempty"`
	Error             string         `json:"error,omitempty"`

	cancelEvents func()
}

// DeviceID returns the id of the connected device.
func (c *Connection) DeviceID() string {
	return c.Device.ID
}

func (c *Connection) clone() *Connection {
	cp := *c
	cp.Device = c.Device.Clone()
	if c.DisconnectedAt != nil {
		t := *c.DisconnectedAt
		cp.DisconnectedAt = &t
	}
	cp.cancelEvents = nil
	return &cp
}

// EventType classifies lifecycle events.
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventFailed
	EventDropped // the transport closed on its own
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventFailed:
		return "failed"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event reports a lifecycle transition.
type Event struct {
	Type     EventType
	DeviceID string
	Status   device.Status
	Err      error
}
