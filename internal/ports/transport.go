package ports

import (
	"context"
	"errors"

	"github.com/evlink-labs/evlink/internal/domain"
)

// FrameKind distinguishes the transport frame types a session can receive.
type FrameKind int

const (
	// FrameText is a UTF-8 text frame, the only kind the protocol accepts.
	FrameText FrameKind = iota

	// FrameBinary is any non-text data frame.
	FrameBinary
)

// String returns "text" or "binary".
func (k FrameKind) String() string {
	if k == FrameText {
		return "text"
	}
	return "binary"
}

// Transport is a persistent, bidirectional, message-oriented connection.
// The session consumes exactly three capabilities: receive a frame, send a
// text frame, and close with a status code. Everything else about the
// connection (upgrade handshakes, TLS, keepalive, rate limits) belongs to
// the implementation.
type Transport interface {
	// Receive blocks until the next inbound frame arrives, the context
	// ends, or the connection fails. A peer-initiated close surfaces as a
	// *CloseError; receiving on a locally closed transport returns
	// ErrTransportClosed.
	Receive(ctx context.Context) (FrameKind, []byte, error)

	// Send transmits a single text frame.
	Send(ctx context.Context, data []byte) error

	// Close terminates the connection, conveying the status code and
	// reason to the peer when the transport supports close frames.
	// Subsequent calls are no-ops.
	Close(code domain.CloseCode, reason string) error
}

// ErrTransportClosed indicates the transport was closed on this side.
var ErrTransportClosed = errors.New("evlink: transport closed")

// CloseError reports that the peer closed the connection. It carries the
// status code and reason from the peer's close frame so sessions and
// callers can tell a protocol termination from a plain disconnect.
type CloseError struct {
	// Code is the close status code sent by the peer.
	Code domain.CloseCode

	// Reason is the close frame's reason text, often empty.
	Reason string
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	msg := "evlink: closed by peer: " + e.Code.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}
