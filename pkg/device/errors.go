package device

import (
	"errors"
	"fmt"
)

// Reason is a machine-readable failure classification.
type Reason string

const (
	ReasonNotFound                    Reason = "NotFound"
	ReasonAlreadyConnected            Reason = "AlreadyConnected"
	ReasonNotConnected                Reason = "NotConnected"
	ReasonUnsupportedProtocol         Reason = "UnsupportedProtocol"
	ReasonTransportConstructionFailed Reason = "TransportConstructionFailed"
	ReasonAttachFailed                Reason = "AttachFailed"
	ReasonProviderUnavailable         Reason = "ProviderUnavailable"
	ReasonValidationFailed            Reason = "ValidationFailed"
)

// Sentinels for errors.Is. Any *Error with the same Reason matches.
var (
	ErrNotFound                    = &Error{Reason: ReasonNotFound}
	ErrNotConnected                = &Error{Reason: ReasonNotConnected}
	ErrUnsupportedProtocol         = &Error{Reason: ReasonUnsupportedProtocol}
	ErrTransportConstructionFailed = &Error{Reason: ReasonTransportConstructionFailed}
	ErrAttachFailed                = &Error{Reason: ReasonAttachFailed}
	ErrProviderUnavailable         = &Error{Reason: ReasonProviderUnavailable}
	ErrValidationFailed            = &Error{Reason: ReasonValidationFailed}
)

// Error is a classified failure, optionally tied to a device.
type Error struct {
	Reason   Reason
	DeviceID string
	Err      error
}

// Errorf returns an *Error with a formatted cause.
func Errorf(reason Reason, id string, format string, args ...any) *Error {
	return &Error{Reason: reason, DeviceID: id, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err under reason. A nil err yields a bare reason.
func Wrap(reason Reason, id string, err error) *Error {
	return &Error{Reason: reason, DeviceID: id, Err: err}
}

func (e *Error) Error() string {
	msg := "device"
	if e.DeviceID != "" {
		msg += " " + e.DeviceID
	}
	msg += ": " + string(e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// ReasonOf returns the reason of the first *Error in err's chain, or "".
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
