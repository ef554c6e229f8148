package sfuclient

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed is returned by signaling operations on a closed channel.
	ErrChannelClosed = errors.New("signaling channel is closed")

	// ErrTransportClosed is returned by operations on a closed transport.
	ErrTransportClosed = errors.New("transport is closed")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// ConnectionError indicates the signaling channel is unreachable or dropped.
// It is retried with bounded backoff before being surfaced as fatal.
type ConnectionError struct {
	message string
	cause   error
}

func NewConnectionError(cause error, format string, args ...interface{}) error {
	return &ConnectionError{
		message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ConnectionError: %s: %s", e.message, e.cause)
	}
	return fmt.Sprintf("ConnectionError: %s", e.message)
}

func (e *ConnectionError) Unwrap() error { return e.cause }

// NegotiationError indicates the capability load failed. It is fatal to the
// session, there is no retry: the negotiated codec set cannot be partially
// loaded.
type NegotiationError struct {
	message string
}

func NewNegotiationError(format string, args ...interface{}) error {
	return &NegotiationError{message: fmt.Sprintf(format, args...)}
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("NegotiationError: %s", e.message)
}

// TransportError indicates an ICE/DTLS level failure on one transport.
type TransportError struct {
	TransportId string
	message     string
}

func NewTransportError(transportId, format string, args ...interface{}) error {
	return &TransportError{
		TransportId: transportId,
		message:     fmt.Sprintf(format, args...),
	}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("TransportError [transportId:%s]: %s", e.TransportId, e.message)
}

// MediaAccessError indicates a capture device was denied or unavailable. The
// session degrades to whichever tracks are available rather than aborting.
type MediaAccessError struct {
	Kind    MediaKind
	message string
}

func NewMediaAccessError(kind MediaKind, format string, args ...interface{}) error {
	return &MediaAccessError{
		Kind:    kind,
		message: fmt.Sprintf(format, args...),
	}
}

func (e *MediaAccessError) Error() string {
	return fmt.Sprintf("MediaAccessError [kind:%s]: %s", e.Kind, e.message)
}

// ProtocolTimeoutError indicates a correlated signaling round-trip was never
// answered. It is surfaced to the caller of that operation, not to the whole
// session.
type ProtocolTimeoutError struct {
	Event string
	Id    uint32
}

func NewProtocolTimeoutError(event string, id uint32) error {
	return &ProtocolTimeoutError{Event: event, Id: id}
}

func (e *ProtocolTimeoutError) Error() string {
	return fmt.Sprintf("ProtocolTimeoutError: no response for %q [id:%d]", e.Event, e.Id)
}

// IncompatibilityError indicates the server answered a consume request with
// cannotConsume. It signals codec incompatibility, not a bug, and is skipped
// silently aside from logging.
type IncompatibilityError struct {
	ProducerId string
}

func NewIncompatibilityError(producerId string) error {
	return &IncompatibilityError{ProducerId: producerId}
}

func (e *IncompatibilityError) Error() string {
	return fmt.Sprintf("IncompatibilityError: cannot consume producer %q", e.ProducerId)
}

// NotReadyError is produced when an operation requires loaded router
// capabilities and Load has not completed yet.
type NotReadyError struct {
	message string
}

func NewNotReadyError(format string, args ...interface{}) error {
	return &NotReadyError{message: fmt.Sprintf(format, args...)}
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("NotReadyError: %s", e.message)
}

// InvalidStateError is produced when calling a method in an invalid state.
type InvalidStateError struct {
	message string
}

func NewInvalidStateError(format string, args ...interface{}) error {
	return &InvalidStateError{message: fmt.Sprintf(format, args...)}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("InvalidStateError: %s", e.message)
}

// ServerError is a rejection carried in a signaling response envelope.
type ServerError struct {
	Code   string
	Reason string
}

func (e *ServerError) Error() string {
	if len(e.Reason) > 0 {
		return fmt.Sprintf("ServerError [code:%s]: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("ServerError [code:%s]", e.Code)
}
