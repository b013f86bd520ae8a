// Package evlink implements a symmetric event/ack message flow over a
// persistent bidirectional text transport.
//
// A server session opens by declaring its delivery policy; the client
// acknowledges it and both sides may then exchange events freely. Every
// event must be acknowledged before the declared ack timeout expires.
// Protocol violations terminate the link immediately with a close code
// in the 4000 range and no further messages.
//
// Example usage:
//
//	sess, err := evlink.Dial(ctx, "ws://127.0.0.1:8787/v1/events", evlink.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	err = sess.SendEvent(ctx, &evlink.Event{Payload: map[string]interface{}{"op": "echo"}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for ev := range sess.Inbound() {
//	    _ = sess.SendAck(ctx, ev.ID)
//	}
package evlink

import (
	"context"
	"net/http"
	"time"

	"github.com/evlink-labs/evlink/internal/adapters/ws"
	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/ports"
	"github.com/evlink-labs/evlink/internal/session"
	"github.com/evlink-labs/evlink/pkg/log"
)

// Wire and session types re-exported for callers.
type (
	// Session is a live event/ack link. See internal/session for the
	// full method set: SendEvent, SendAck, Inbound, Close, Done.
	Session = session.Session

	// Option customizes a session at open time.
	Option = session.Option

	// Monitor receives session notifications.
	Monitor = session.Monitor

	// Role distinguishes the policy-declaring end from the adopting end.
	Role = session.Role

	// Phase is the session lifecycle phase.
	Phase = session.Phase

	// Event is the payload-bearing message; every Event must be acked.
	Event = domain.Event

	// Ack acknowledges one Event by id.
	Ack = domain.Ack

	// Status is an Event's delivery status.
	Status = domain.Status

	// Policy is the delivery policy a server declares in the handshake.
	Policy = domain.Policy

	// Fault describes the protocol violation that ended a session.
	Fault = domain.Fault

	// FaultKind classifies protocol violations.
	FaultKind = domain.FaultKind

	// CloseCode is the close status code sent when a session ends.
	CloseCode = domain.CloseCode

	// Transport is the byte-frame connection a session runs over.
	Transport = ports.Transport

	// CloseError reports the peer's close code and reason.
	CloseError = ports.CloseError

	// Logger is the structured logging interface accepted by WithLogger.
	Logger = log.Logger

	// LogField is one structured logging field.
	LogField = log.Field
)

// Event statuses.
const (
	StatusNormal = domain.StatusNormal
	StatusError  = domain.StatusError
	StatusFatal  = domain.StatusFatal
)

// Session roles and phases.
const (
	RoleServer = session.RoleServer
	RoleClient = session.RoleClient

	PhaseHandshake = session.PhaseHandshake
	PhaseMessaging = session.PhaseMessaging
	PhaseClosed    = session.PhaseClosed
)

// Protocol close codes.
const (
	CodeTokenExpired     = domain.CodeTokenExpired
	CodeInvalidFrame     = domain.CodeInvalidFrame
	CodeInvalidJSON      = domain.CodeInvalidJSON
	CodeMissingField     = domain.CodeMissingField
	CodeInvalidType      = domain.CodeInvalidType
	CodeInvalidValue     = domain.CodeInvalidValue
	CodeDuplicateEventID = domain.CodeDuplicateEventID
	CodeAckTimeout       = domain.CodeAckTimeout
	CodeUnknownEvent     = domain.CodeUnknownEvent
	CodeFatalEvent       = domain.CodeFatalEvent
	CodeInternalError    = domain.CodeInternalError

	CodeNormalClosure   = domain.CodeNormalClosure
	CodeGoingAway       = domain.CodeGoingAway
	CodeProtocolError   = domain.CodeProtocolError
	CodePolicyViolation = domain.CodePolicyViolation
)

// Fault kinds.
const (
	FaultInvalidFrame     = domain.FaultInvalidFrame
	FaultInvalidJSON      = domain.FaultInvalidJSON
	FaultMissingField     = domain.FaultMissingField
	FaultInvalidType      = domain.FaultInvalidType
	FaultInvalidValue     = domain.FaultInvalidValue
	FaultDuplicateEventID = domain.FaultDuplicateEventID
	FaultAckTimeout       = domain.FaultAckTimeout
	FaultUnknownEvent     = domain.FaultUnknownEvent
	FaultFatalEvent       = domain.FaultFatalEvent
	FaultPhaseViolation   = domain.FaultPhaseViolation
	FaultInternal         = domain.FaultInternal
)

// Sentinel errors returned by session operations.
var (
	ErrClosed         = domain.ErrClosed
	ErrDuplicateEvent = domain.ErrDuplicateEvent
	ErrNoPendingEvent = domain.ErrNoPendingEvent
	ErrInvalidStatus  = domain.ErrInvalidStatus
	ErrInvalidConfig  = domain.ErrInvalidConfig
)

// Config holds the configuration for opening sessions.
type Config struct {
	// Policy is declared to the peer when acting as the server. Clients
	// ignore it and adopt whatever the server declares. Beyond the ack
	// timeout, the policy carries the transport hints Accept applies to
	// the underlying connection: heartbeat interval, message size cap
	// and inbound rate limit.
	Policy Policy

	// WriteTimeout is the per-write deadline Dial and Accept set on the
	// connection. Zero selects the transport default.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Policy: Policy{
			AckTimeout:          30 * time.Second,
			HeartbeatInterval:   20 * time.Second,
			MaxMessageSize:      1 << 20, // 1MB
			MessageRateInterval: time.Second,
		},
		WriteTimeout: 10 * time.Second,
	}
}

// Server opens the policy-declaring end of a session over any
// Transport. It returns once the peer has acknowledged the policy.
func Server(ctx context.Context, transport Transport, cfg Config, opts ...Option) (*Session, error) {
	return session.Open(ctx, session.RoleServer, transport, session.Config{Policy: cfg.Policy}, opts...)
}

// Client opens the policy-adopting end of a session over any
// Transport. It returns once the server's policy has been adopted; the
// cfg policy is ignored, clients take what the server declares.
func Client(ctx context.Context, transport Transport, cfg Config, opts ...Option) (*Session, error) {
	return session.Open(ctx, session.RoleClient, transport, session.Config{}, opts...)
}

// Dial connects to a WebSocket endpoint and opens a client session on
// it. The context bounds both the dial and the handshake.
func Dial(ctx context.Context, url string, cfg Config, opts ...Option) (*Session, error) {
	conn, err := ws.Dial(ctx, url, ws.Options{WriteTimeout: cfg.WriteTimeout})
	if err != nil {
		return nil, err
	}
	return Client(ctx, conn, cfg, opts...)
}

// Accept upgrades an incoming HTTP request and opens a server session
// on it, applying the policy's transport hints to the connection.
func Accept(w http.ResponseWriter, r *http.Request, cfg Config, opts ...Option) (*Session, error) {
	wsOpts := ws.OptionsFromPolicy(cfg.Policy)
	wsOpts.WriteTimeout = cfg.WriteTimeout

	conn, err := ws.Upgrade(w, r, wsOpts)
	if err != nil {
		return nil, err
	}
	return Server(r.Context(), conn, cfg, opts...)
}

// WithLogger sets the logger used by a session. Sessions log nothing
// by default.
func WithLogger(logger Logger) Option {
	return session.WithLogger(logger)
}

// WithMonitor registers a Monitor for session notifications.
func WithMonitor(m Monitor) Option {
	return session.WithMonitor(m)
}
