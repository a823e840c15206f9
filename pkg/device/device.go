// Package device defines the durable description of an assistive device,
// the error taxonomy shared by the connection and streaming layers, and the
// record store those layers persist devices through.
package device

import (
	"fmt"
	"maps"
	"net"
	"strconv"
	"time"
)

// Type is the assistive category of a device.
type Type int

const (
	TypeUnknown Type = iota
	TypeHearing
	TypeVisual
	TypeMobility
	TypeCognitive
	TypeMulti
)

// Types lists every valid device type.
var Types = []Type{TypeHearing, TypeVisual, TypeMobility, TypeCognitive, TypeMulti}

// String returns the wire name of the type.
func (t Type) String() string {
	switch t {
	case TypeHearing:
		return "hearing"
	case TypeVisual:
		return "visual"
	case TypeMobility:
		return "mobility"
	case TypeCognitive:
		return "cognitive"
	case TypeMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// ParseType parses a wire name. "multi-purpose" is accepted for TypeMulti.
func ParseType(s string) (Type, error) {
	switch s {
	case "hearing":
		return TypeHearing, nil
	case "visual":
		return TypeVisual, nil
	case "mobility":
		return TypeMobility, nil
	case "cognitive":
		return TypeCognitive, nil
	case "multi", "multi-purpose":
		return TypeMulti, nil
	}
	return TypeUnknown, fmt.Errorf("device: unknown type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Protocol selects the transport variant used to reach a device.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolWebSocket
	ProtocolRTP
)

// Protocols lists every supported protocol.
var Protocols = []Protocol{ProtocolWebSocket, ProtocolRTP}

func (p Protocol) String() string {
	switch p {
	case ProtocolWebSocket:
		return "websocket"
	case ProtocolRTP:
		return "rtp"
	default:
		return "unknown"
	}
}

// ParseProtocol parses a wire name.
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "websocket":
		return ProtocolWebSocket, nil
	case "rtp":
		return ProtocolRTP, nil
	}
	return ProtocolUnknown, fmt.Errorf("device: unknown protocol %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Protocol) UnmarshalText(b []byte) error {
	v, err := ParseProtocol(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Status is the connection lifecycle state of a device.
//
//	OFFLINE -> CONNECTING -> ONLINE -> OFFLINE
//	CONNECTING -> ERROR -> CONNECTING
type Status int

const (
	StatusOffline Status = iota
	StatusConnecting
	StatusOnline
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOnline:
		return "online"
	case StatusError:
		return "error"
	default:
		return "offline"
	}
}

// ParseStatus parses a wire name.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "offline":
		return StatusOffline, nil
	case "connecting":
		return StatusConnecting, nil
	case "online":
		return StatusOnline, nil
	case "error":
		return StatusError, nil
	}
	return StatusOffline, fmt.Errorf("device: unknown status %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Stale reports whether a persisted status cannot be true after a restart.
func (s Status) Stale() bool {
	return s == StatusOnline || s == StatusConnecting
}

// Address is the network location of a device.
type Address struct {
	Host string `json:"ipAddress" msgpack:"host"`
	Port int    `json:"port" msgpack:"port"`
}

// String returns host:port.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Settings holds per-device delivery and presentation preferences.
// Nil pointers mean "use the global default".
type Settings struct {
	CharacterRateLimit  int            `json:"characterRateLimit,omitempty" msgpack:"char_rate_limit,omitempty"`
	BackspaceProcessing *bool          `json:"backspaceProcessing,omitempty" msgpack:"backspace_processing,omitempty"`
	TextSize            string         `json:"textSize,omitempty" msgpack:"text_size,omitempty"`
	Contrast            string         `json:"contrast,omitempty" msgpack:"contrast,omitempty"`
	AudioFeedback       *bool          `json:"audioFeedback,omitempty" msgpack:"audio_feedback,omitempty"`
	Custom              map[string]any `json:"customSettings,omitempty" msgpack:"custom,omitempty"`
}

// RateLimit returns the device rate limit, or def when unset.
func (s Settings) RateLimit(def int) int {
	if s.CharacterRateLimit > 0 {
		return s.CharacterRateLimit
	}
	return def
}

// Backspaces returns the backspace-processing flag, or def when unset.
func (s Settings) Backspaces(def bool) bool {
	if s.BackspaceProcessing != nil {
		return *s.BackspaceProcessing
	}
	return def
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	c := s
	if s.BackspaceProcessing != nil {
		v := *s.BackspaceProcessing
		c.BackspaceProcessing = &v
	}
	if s.AudioFeedback != nil {
		v := *s.AudioFeedback
		c.AudioFeedback = &v
	}
	if s.Custom != nil {
		c.Custom = maps.Clone(s.Custom)
	}
	return c
}

// Record is the durable description of an assistive device.
//
// ID and CreatedAt never change after creation. Status is owned by the
// connection manager and always reflects whether a live connection exists.
type Record struct {
	ID   string `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
	Type Type   `json:"type" msgpack:"type"`
	Address
	Protocol      Protocol   `json:"protocol" msgpack:"protocol"`
	Settings      Settings   `json:"settings" msgpack:"settings"`
	Status        Status     `json:"status" msgpack:"status"`
	LastConnected *time.Time `json:"lastConnected,omitempty" msgpack:"last_connected,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" msgpack:"created_at"`
	UpdatedAt     time.Time  `json:"updatedAt" msgpack:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Settings = r.Settings.Clone()
	if r.LastConnected != nil {
		t := *r.LastConnected
		c.LastConnected = &t
	}
	return &c
}
