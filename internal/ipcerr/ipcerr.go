// Package ipcerr defines the IPC error taxonomy shared by ipcserver and
// ipcclient: a small set of kinds, not a sentinel per failure, so callers can
// branch on Kind (close the socket or not, log and continue, etc.) instead
// of matching error strings.
package ipcerr

import "errors"

// Kind classifies an IPC-layer failure.
type Kind string

const (
	// Transport covers socket write/read failures and malformed frames.
	// The affected socket is closed; the client marks itself detached.
	Transport Kind = "transport"
	// Protocol covers an unknown method, a missing requestId, a hello
	// missing clientId, or a request arriving from an inactive client.
	Protocol Kind = "protocol"
	// Revoked covers a hello carrying a clientId already revoked.
	Revoked Kind = "revoked"
	// NotFound covers a request naming an unknown ptyId or sessionId.
	NotFound Kind = "notFound"
	// Parse covers malformed guest bytes from a PTY; swallowed and logged,
	// never surfaced to a client.
	Parse Kind = "parse"
	// Lifecycle covers operations on a pty whose child has already exited.
	Lifecycle Kind = "lifecycle"
)

// Error is an IPC-layer error tagged with a Kind, for errors.As dispatch.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that wraps cause, preserving it for errors.Is/As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Sentinel errors for the two hello-time rejections named verbatim by the
// protocol: a revoked clientId, and a non-hello request on a socket that
// never attached.
var (
	ErrClientDetached = New(Revoked, "Client is detached")
	ErrInactiveClient = New(Protocol, "Inactive client")
)
