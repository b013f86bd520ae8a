// Package ws adapts a WebSocket connection to the transport port using
// gorilla/websocket.
//
// The adapter enforces the connection-level limits a policy declares:
// heartbeats with a read deadline, a maximum frame size and an incoming
// message rate limit. Protocol semantics stay out; the session decides
// what frames mean.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/ports"
)

// ErrRateLimited is returned by Receive when the peer exceeds the
// configured message rate. The connection is closed with a policy
// violation before the error surfaces.
var ErrRateLimited = errors.New("evlink: message rate exceeded")

// defaultWriteWait bounds writes when no explicit timeout is configured.
const defaultWriteWait = 10 * time.Second

// Options configures the connection-level limits of a Conn.
type Options struct {
	// HeartbeatInterval is the period between pings. Reads carry a
	// deadline of twice this interval, so a peer that stops answering is
	// disconnected. Zero disables heartbeats and read deadlines.
	HeartbeatInterval time.Duration

	// MaxMessageSize caps a single incoming frame in bytes. Zero means
	// no limit.
	MaxMessageSize int64

	// RateLimit admits at most this many incoming messages per
	// RateInterval, with bursts up to RateLimit. Zero disables rate
	// limiting.
	RateLimit int

	// RateInterval is the window RateLimit applies to. Zero means one
	// second.
	RateInterval time.Duration

	// WriteTimeout bounds a single frame write. Zero falls back to ten
	// seconds.
	WriteTimeout time.Duration
}

// OptionsFromPolicy derives connection limits from a session policy.
func OptionsFromPolicy(p domain.Policy) Options {
	return Options{
		HeartbeatInterval: p.HeartbeatInterval,
		MaxMessageSize:    p.MaxMessageSize,
		RateLimit:         p.MessageRateLimit,
		RateInterval:      p.MessageRateInterval,
	}
}

// Conn is a WebSocket-backed transport.
type Conn struct {
	ws      *websocket.Conn
	opts    Options
	limiter *rate.Limiter

	// writeMu serializes data writes; control frames go around it.
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

var _ ports.Transport = (*Conn)(nil)

// NewConn wraps an established WebSocket connection and applies the
// configured limits.
func NewConn(wsConn *websocket.Conn, opts Options) *Conn {
	c := &Conn{
		ws:     wsConn,
		opts:   opts,
		closed: make(chan struct{}),
	}
	if opts.MaxMessageSize > 0 {
		wsConn.SetReadLimit(opts.MaxMessageSize)
	}
	if opts.RateLimit > 0 {
		interval := opts.RateInterval
		if interval <= 0 {
			interval = time.Second
		}
		c.limiter = rate.NewLimiter(rate.Every(interval/time.Duration(opts.RateLimit)), opts.RateLimit)
	}
	if opts.HeartbeatInterval > 0 {
		_ = wsConn.SetReadDeadline(time.Now().Add(2 * opts.HeartbeatInterval))
		wsConn.SetPongHandler(func(string) error {
			return wsConn.SetReadDeadline(time.Now().Add(2 * opts.HeartbeatInterval))
		})
		go c.pingLoop()
	}
	return c
}

// Receive blocks for the next data frame. Close frames and failures come
// back as errors; a peer close surfaces as *ports.CloseError.
func (c *Conn) Receive(ctx context.Context) (ports.FrameKind, []byte, error) {
	if c.isClosed() {
		return 0, nil, ports.ErrTransportClosed
	}

	// ReadMessage has no context support; a cancellation pokes the read
	// deadline to unblock it.
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	mt, data, err := c.ws.ReadMessage()
	stop()
	if err != nil {
		return 0, nil, c.mapReadError(ctx, err)
	}

	if c.opts.HeartbeatInterval > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(2 * c.opts.HeartbeatInterval))
	}
	if c.limiter != nil && !c.limiter.Allow() {
		_ = c.Close(domain.CodePolicyViolation, "message rate exceeded")
		return 0, nil, ErrRateLimited
	}

	kind := ports.FrameBinary
	if mt == websocket.TextMessage {
		kind = ports.FrameText
	}
	return kind, data, nil
}

// Send writes one text frame.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if c.isClosed() {
		return ports.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait()))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if c.isClosed() || errors.Is(err, net.ErrClosed) {
			return ports.ErrTransportClosed
		}
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close sends a close frame with the given code and tears the connection
// down. Later calls are no-ops.
func (c *Conn) Close(code domain.CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(c.writeWait())
		msg := websocket.FormatCloseMessage(int(code), reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.ws.Close()
	})
	return nil
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.writeWait())
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) mapReadError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &ports.CloseError{Code: domain.CloseCode(ce.Code), Reason: ce.Text}
	}
	if c.isClosed() || errors.Is(err, net.ErrClosed) {
		return ports.ErrTransportClosed
	}
	return err
}

func (c *Conn) writeWait() time.Duration {
	if c.opts.WriteTimeout > 0 {
		return c.opts.WriteTimeout
	}
	return defaultWriteWait
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Dial connects to a WebSocket endpoint and wraps it as a transport. The
// context bounds the connection handshake.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	wsConn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewConn(wsConn, opts), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin checks belong to whatever HTTP stack sits in front.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Upgrade turns an incoming HTTP request into a WebSocket transport.
func Upgrade(w http.ResponseWriter, r *http.Request, opts Options) (*Conn, error) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return NewConn(wsConn, opts), nil
}
