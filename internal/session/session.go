// Package session implements one end of an event/ack connection.
//
// A session is a single-goroutine actor: that goroutine alone owns the
// acknowledgement registry and the connection phase, so every registry
// mutation and phase transition is serialized without locks. Inbound
// frames, submissions from callers, deadline expirations, and local close
// requests all funnel into its select loop. Public methods are safe for
// concurrent use.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/ports"
	"github.com/evlink-labs/evlink/internal/registry"
)

// Role distinguishes the two ends of a session.
type Role int

const (
	// RoleServer declares the session policy during the handshake.
	RoleServer Role = iota

	// RoleClient adopts the server's policy. It cannot negotiate: it
	// either acknowledges the policy event or terminates.
	RoleClient
)

// String returns "server" or "client".
func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Phase is the connection phase. Phases only move forward.
type Phase int32

const (
	// PhaseHandshake covers establishment up to the policy acknowledgement.
	PhaseHandshake Phase = iota

	// PhaseMessaging is the symmetric event/ack exchange.
	PhaseMessaging

	// PhaseClosed is terminal.
	PhaseClosed
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseHandshake:
		return "Handshake"
	case PhaseMessaging:
		return "Messaging"
	case PhaseClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Monitor receives session notifications. Callbacks run on the session's
// goroutine; implementations must return promptly and must not call back
// into the session.
type Monitor interface {
	// OnPhaseChange is called after every phase transition.
	OnPhaseChange(previous, current Phase, reason string)

	// OnEventAcked is called when the peer acknowledges an event we sent.
	OnEventAcked(id string, latency time.Duration)

	// OnFault is called once if a protocol fault terminates the session.
	OnFault(fault *domain.Fault)
}

// nopMonitor is the default Monitor.
type nopMonitor struct{}

func (nopMonitor) OnPhaseChange(previous, current Phase, reason string) {}
func (nopMonitor) OnEventAcked(id string, latency time.Duration)        {}
func (nopMonitor) OnFault(fault *domain.Fault)                          {}

// nopLogger is the default logger.
type nopLogger struct{}

func (nopLogger) Debug(msg string, fields ...ports.Field) {}
func (nopLogger) Info(msg string, fields ...ports.Field)  {}
func (nopLogger) Warn(msg string, fields ...ports.Field)  {}
func (nopLogger) Error(msg string, fields ...ports.Field) {}

// Config carries the session parameters.
type Config struct {
	// Policy is the session policy. Servers declare it to the client
	// during the handshake and must set a positive AckTimeout; clients
	// leave it zero and adopt whatever the server declares.
	Policy domain.Policy
}

// Option customizes a session.
type Option func(*Session)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger ports.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithMonitor registers a monitor for session notifications.
func WithMonitor(m Monitor) Option {
	return func(s *Session) { s.monitor = m }
}

// WithClock overrides the time source used for timestamps and deadlines.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// inboundFrame is what the read pump hands to the actor. A non-nil err
// ends the pump; it is the last frame delivered.
type inboundFrame struct {
	kind ports.FrameKind
	data []byte
	err  error
}

// submit is a caller request executed on the actor: an event when ev is
// set, otherwise an acknowledgement of ackID.
type submit struct {
	ev    *domain.Event
	ackID string
	resp  chan error
}

// Session is one end of an event/ack connection.
type Session struct {
	role      Role
	transport ports.Transport
	logger    ports.Logger
	monitor   Monitor
	clock     func() time.Time
	cancel    context.CancelFunc

	// Owned by the actor goroutine.
	reg       *registry.Registry
	pendingIn []*domain.Event

	phase       atomic.Int32
	outstanding atomic.Int32
	pendingAcks atomic.Int32

	mu       sync.Mutex
	policy   domain.Policy
	fault    *domain.Fault
	closeErr error

	inbound  chan *domain.Event
	submitCh chan *submit
	recvCh   chan inboundFrame
	closeCh  chan domain.CloseCode
	ready    chan struct{}
	done     chan struct{}
}

// Open starts a session over the transport and runs the handshake for the
// given role. It returns once the session reaches Messaging, the context
// ends, or the handshake fails. A protocol failure comes back as a
// *domain.Fault after the transport was closed with the mapped code.
//
// The context bounds only the handshake; the session itself lives until
// the transport ends or Close is called.
func Open(ctx context.Context, role Role, transport ports.Transport, cfg Config, opts ...Option) (*Session, error) {
	if role == RoleServer {
		if err := cfg.Policy.Validate(); err != nil {
			return nil, err
		}
	}

	s := &Session{
		role:      role,
		transport: transport,
		logger:    nopLogger{},
		monitor:   nopMonitor{},
		clock:     time.Now,
		reg:       registry.New(),
		inbound:   make(chan *domain.Event),
		submitCh:  make(chan *submit),
		recvCh:    make(chan inboundFrame, 1),
		closeCh:   make(chan domain.CloseCode, 1),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if role == RoleServer {
		s.policy = cfg.Policy
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.readLoop(runCtx)
	go s.run(runCtx)

	select {
	case <-s.ready:
		return s, nil
	case <-s.done:
		if f := s.Fault(); f != nil {
			return nil, f
		}
		if err := s.Err(); err != nil {
			return nil, err
		}
		return nil, domain.ErrClosed
	case <-ctx.Done():
		_ = s.transport.Close(domain.CodeGoingAway, "")
		cancel()
		<-s.done
		return nil, ctx.Err()
	}
}

// SendEvent submits an event and returns once it is on the wire. A zero
// ID is filled with a fresh UUID, a zero SentAt with the current time,
// and an empty status with StatusNormal. Sending a fatal event terminates
// the session right after transmission.
func (s *Session) SendEvent(ctx context.Context, ev *domain.Event) error {
	if ev.Status == "" {
		ev.Status = domain.StatusNormal
	}
	if !ev.Status.Valid() {
		return domain.ErrInvalidStatus
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.SentAt.IsZero() {
		ev.SentAt = s.clock()
	}
	return s.submit(ctx, &submit{ev: ev})
}

// SendAck acknowledges a received event by id. Only events delivered on
// Inbound and not yet acknowledged can be acked; anything else returns
// ErrNoPendingEvent.
func (s *Session) SendAck(ctx context.Context, id string) error {
	return s.submit(ctx, &submit{ackID: id})
}

func (s *Session) submit(ctx context.Context, sub *submit) error {
	sub.resp = make(chan error, 1)

	select {
	case s.submitCh <- sub:
	case <-s.done:
		return domain.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-sub.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbound returns the stream of validated incoming events. The channel is
// closed when the session ends; events queued behind a fault are dropped.
func (s *Session) Inbound() <-chan *domain.Event { return s.inbound }

// Done is closed once the session has fully terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close ends the session with a normal closure. It blocks until the
// session has terminated and is safe to call more than once.
func (s *Session) Close() error {
	return s.CloseWithCode(domain.CodeNormalClosure)
}

// CloseWithCode ends the session with the given close code, for shutdown
// paths that want something other than a normal closure.
func (s *Session) CloseWithCode(code domain.CloseCode) error {
	select {
	case s.closeCh <- code:
	case <-s.done:
	}
	<-s.done
	return nil
}

// Role returns which end of the connection this session is.
func (s *Session) Role() Role { return s.role }

// Phase returns the current connection phase.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Policy returns the effective session policy: the declared one on the
// server, the adopted one on the client once Open has returned.
func (s *Session) Policy() domain.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// Outstanding returns how many events we sent that still await the
// peer's acknowledgement.
func (s *Session) Outstanding() int { return int(s.outstanding.Load()) }

// PendingAcks returns how many received events still await our
// acknowledgement.
func (s *Session) PendingAcks() int { return int(s.pendingAcks.Load()) }

// Fault returns the protocol fault that terminated the session, or nil.
func (s *Session) Fault() *domain.Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// Err returns the transport error that ended the session, if any. A
// peer-initiated close surfaces as a *ports.CloseError.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}
