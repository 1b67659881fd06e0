// Package errs defines the closed error taxonomy shared by every motionlink
// package, so callers can errors.Is/errors.As against a stable set of codes
// instead of matching on string-formatted messages.
package errs

import "fmt"

// Code identifies one member of the closed error taxonomy.
type Code int

const (
	_ Code = iota

	// NotFound indicates descriptor resolution failed.
	NotFound
	// InvalidArgument indicates a caller-supplied value violated a precondition.
	InvalidArgument
	// UnknownProperty indicates a property key has no registered handler.
	UnknownProperty
	// WrongDataType indicates a property value arrived in an unexpected shape.
	WrongDataType
	// BufferTooSmall indicates the caller's destination buffer cannot hold a read result.
	BufferTooSmall

	// TransportOpenFailed indicates the underlying transport could not be opened.
	TransportOpenFailed
	// TransportReadFailed indicates a read from the underlying transport failed.
	TransportReadFailed
	// TransportWriteFailed indicates a write to the underlying transport failed.
	TransportWriteFailed
	// TransportBaudrateUnsupported indicates the transport cannot honor a requested baud rate.
	TransportBaudrateUnsupported
	// TransportCancelled indicates an in-flight transport operation was cancelled by a close.
	TransportCancelled

	// ProtocolMessageCorrupt indicates a frame failed checksum, length, or field validation.
	ProtocolMessageCorrupt
	// ProtocolUnsupportedFunction indicates a function code has no handler in the active protocol version.
	ProtocolUnsupportedFunction
	// ProtocolResponseTimeout indicates no matching response arrived before the caller's deadline.
	ProtocolResponseTimeout
	// ProtocolNegativeAck indicates the device returned a non-success status for a request.
	ProtocolNegativeAck

	// SessionNotInitialized indicates an operation was attempted before init() completed.
	SessionNotInitialized
	// SessionAlreadyClosed indicates an operation was attempted on a closed session.
	SessionAlreadyClosed
	// SessionVersionUnsupported indicates negotiation could not identify a supported protocol version.
	SessionVersionUnsupported
)

var codeNames = map[Code]string{
	NotFound:                     "NotFound",
	InvalidArgument:              "InvalidArgument",
	UnknownProperty:              "UnknownProperty",
	WrongDataType:                "WrongDataType",
	BufferTooSmall:               "BufferTooSmall",
	TransportOpenFailed:          "Transport.OpenFailed",
	TransportReadFailed:          "Transport.ReadFailed",
	TransportWriteFailed:         "Transport.WriteFailed",
	TransportBaudrateUnsupported: "Transport.BaudrateUnsupported",
	TransportCancelled:           "Transport.Cancelled",
	ProtocolMessageCorrupt:       "Protocol.MessageCorrupt",
	ProtocolUnsupportedFunction:  "Protocol.UnsupportedFunction",
	ProtocolResponseTimeout:      "Protocol.ResponseTimeout",
	ProtocolNegativeAck:          "Protocol.NegativeAck",
	SessionNotInitialized:        "Session.NotInitialized",
	SessionAlreadyClosed:         "Session.AlreadyClosed",
	SessionVersionUnsupported:    "Session.VersionUnsupported",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is the single error type surfaced by every public motionlink
// operation. It always carries a Code from the taxonomy above plus,
// optionally, the underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error that carries cause as its Unwrap() target.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is reports whether err is a *Error carrying the given code. It lets
// callers write `errs.Is(err, errs.ProtocolResponseTimeout)` instead of a
// type assertion.
func Is(err error, code Code) bool {
	var e *Error
	if as(err, &e) {
		return e.Code == code
	}
	return false
}

// as is a hand-written equivalent of errors.As for *Error: it follows the
// single-error Unwrap chain until it finds one (used only by Is above).
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// NegativeAck builds the Protocol.NegativeAck error for a specific function
// code returned with a non-success status byte.
func NegativeAck(functionCode uint16, status byte) *Error {
	return New(ProtocolNegativeAck, fmt.Sprintf("function 0x%04x returned status %d", functionCode, status))
}
