// Package server runs the evlink daemon: a net/http listener that
// upgrades connections on a configured path and drives one server
// session per peer. Inbound events are acknowledged immediately and
// echo requests are answered with a mirrored event, which makes the
// daemon usable as a wire-level probe target.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evlink-labs/evlink/internal/adapters/ws"
	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/ports"
	"github.com/evlink-labs/evlink/internal/session"
	"github.com/evlink-labs/evlink/pkg/log"
)

// ShutdownTimeout is the maximum time to wait for live sessions to
// drain during graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// httpShutdownTimeout bounds http.Server.Shutdown. Upgraded
// connections are hijacked and not tracked by the http.Server, so
// this only covers the listener and plain HTTP requests.
const httpShutdownTimeout = 5 * time.Second

// Config contains configuration for the daemon.
type Config struct {
	// ListenAddr is the TCP address the HTTP listener binds to.
	ListenAddr string

	// Path is the URL path connections are upgraded on.
	Path string

	// Policy is declared to every new session. It can be swapped at
	// runtime with SetPolicy; established sessions keep the policy
	// they were opened with.
	Policy domain.Policy

	// WriteTimeout is the per-write deadline on upgraded connections.
	// Zero selects the transport default.
	WriteTimeout time.Duration
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger used by the server and its sessions.
func WithLogger(logger ports.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server accepts connections and supervises their sessions.
type Server struct {
	cfg      Config
	logger   ports.Logger
	policy   atomic.Value // domain.Policy
	sessions *supervisor
}

// New creates a Server. The configured policy must be valid; it is
// what every connecting peer will be asked to adopt.
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}

	s := &Server{
		cfg:      cfg,
		logger:   log.NewNop(),
		sessions: newSupervisor(),
	}
	s.policy.Store(cfg.Policy)

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetPolicy replaces the policy declared to new sessions. Invalid
// policies are rejected and the previous one stays in effect.
func (s *Server) SetPolicy(p domain.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.policy.Store(p)
	s.logger.Info("policy updated",
		ports.Duration("ack_timeout", p.AckTimeout),
		ports.Duration("heartbeat_interval", p.HeartbeatInterval),
	)
	return nil
}

// Policy returns the policy currently declared to new sessions.
func (s *Server) Policy() domain.Policy {
	return s.policy.Load().(domain.Policy)
}

// Handler returns the HTTP handler serving the upgrade path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleUpgrade)
	return mux
}

// Run binds the configured listen address and serves until the
// context is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until the context is canceled, then
// shuts down: the listener closes first, live sessions are asked to
// close with 1001 GoingAway, and the server waits up to
// ShutdownTimeout for them to drain.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("listening",
		ports.String("addr", ln.Addr().String()),
		ports.String("path", s.cfg.Path),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			s.logger.Warn("http shutdown", ports.Err(err))
		}

		s.sessions.closeAll(domain.CodeGoingAway)
		if err := s.sessions.waitWithTimeout(ShutdownTimeout); err != nil {
			s.logger.Warn("shutdown timeout, abandoning sessions",
				ports.Int("active", s.sessions.active()),
			)
		}
		return nil
	})

	return g.Wait()
}

// handleUpgrade upgrades one HTTP request and serves its session until
// the connection ends. The handler blocks for the connection lifetime,
// which is the usual shape for hijacked websocket handlers.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	policy := s.Policy()

	opts := ws.OptionsFromPolicy(policy)
	opts.WriteTimeout = s.cfg.WriteTimeout

	conn, err := ws.Upgrade(w, r, opts)
	if err != nil {
		s.logger.Warn("upgrade failed",
			ports.String("remote", r.RemoteAddr),
			ports.Err(err),
		)
		return
	}

	sess, err := session.Open(r.Context(), session.RoleServer, conn,
		session.Config{Policy: policy},
		session.WithLogger(s.logger),
	)
	if err != nil {
		s.logger.Warn("handshake failed",
			ports.String("remote", r.RemoteAddr),
			ports.Err(err),
		)
		return
	}

	if !s.sessions.add(sess) {
		// Shutdown began while the handshake was in flight.
		_ = sess.CloseWithCode(domain.CodeGoingAway)
		return
	}
	defer s.sessions.remove(sess)

	s.logger.Info("session started",
		ports.String("remote", r.RemoteAddr),
		ports.Int("active", s.sessions.active()),
	)

	s.serveSession(r.Context(), sess)

	if f := sess.Fault(); f != nil {
		s.logger.Warn("session faulted",
			ports.String("remote", r.RemoteAddr),
			ports.String("kind", f.Kind.String()),
			ports.Int("code", int(f.Code())),
		)
	} else {
		s.logger.Info("session ended", ports.String("remote", r.RemoteAddr))
	}
}

// serveSession acknowledges every inbound event and answers echo
// requests. It returns when the session's inbound stream closes.
func (s *Server) serveSession(ctx context.Context, sess *session.Session) {
	for ev := range sess.Inbound() {
		if err := sess.SendAck(ctx, ev.ID); err != nil {
			return
		}
		if op, ok := ev.Payload["op"].(string); ok && op == "echo" {
			if err := s.echo(ctx, sess, ev); err != nil {
				return
			}
		}
	}
}

// echo sends back a copy of the event's payload, tagged with the id it
// answers.
func (s *Server) echo(ctx context.Context, sess *session.Session, ev *domain.Event) error {
	payload := make(map[string]interface{}, len(ev.Payload)+1)
	for k, v := range ev.Payload {
		payload[k] = v
	}
	payload["op"] = "echo-reply"
	payload["re"] = ev.ID

	return sess.SendEvent(ctx, &domain.Event{Payload: payload})
}
