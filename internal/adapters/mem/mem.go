// Package mem provides an in-process Transport: two connected endpoints
// that exchange frames through buffered channels. It backs tests and
// examples that need a real bidirectional connection without a network.
package mem

import (
	"context"
	"sync"

	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/ports"
)

const pipeBuffer = 64

// frame is one message crossing the pipe. A close frame carries the
// sender's status code instead of data.
type frame struct {
	kind   ports.FrameKind
	data   []byte
	close  bool
	code   domain.CloseCode
	reason string
}

// closeState records one endpoint's close, observable by both ends.
type closeState struct {
	mu     sync.Mutex
	closed bool
	code   domain.CloseCode
	reason string
	done   chan struct{}
}

func newCloseState() *closeState {
	return &closeState{done: make(chan struct{})}
}

// close records the code once; later calls report false.
func (s *closeState) close(code domain.CloseCode, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.code = code
	s.reason = reason
	close(s.done)
	return true
}

func (s *closeState) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *closeState) get() (domain.CloseCode, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.reason
}

// Conn is one end of an in-memory pipe.
type Conn struct {
	out    chan frame
	in     chan frame
	local  *closeState
	remote *closeState
}

var _ ports.Transport = (*Conn)(nil)

// Pipe creates two connected endpoints. Frames sent on one are received
// on the other in order; closing one end surfaces the close code at the
// other after buffered frames are drained.
func Pipe() (*Conn, *Conn) {
	ab := make(chan frame, pipeBuffer)
	ba := make(chan frame, pipeBuffer)
	aState := newCloseState()
	bState := newCloseState()

	a := &Conn{out: ab, in: ba, local: aState, remote: bState}
	b := &Conn{out: ba, in: ab, local: bState, remote: aState}
	return a, b
}

// Receive implements ports.Transport.
func (c *Conn) Receive(ctx context.Context) (ports.FrameKind, []byte, error) {
	if c.local.isClosed() {
		return 0, nil, ports.ErrTransportClosed
	}

	// Buffered frames win over a pending close notification so the peer's
	// final messages are not lost.
	select {
	case fr := <-c.in:
		return c.deliver(fr)
	default:
	}

	select {
	case fr := <-c.in:
		return c.deliver(fr)
	case <-c.local.done:
		return 0, nil, ports.ErrTransportClosed
	case <-c.remote.done:
		code, reason := c.remote.get()
		return 0, nil, &ports.CloseError{Code: code, Reason: reason}
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *Conn) deliver(fr frame) (ports.FrameKind, []byte, error) {
	if fr.close {
		return 0, nil, &ports.CloseError{Code: fr.code, Reason: fr.reason}
	}
	return fr.kind, fr.data, nil
}

// Send implements ports.Transport, transmitting a text frame.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	return c.send(ctx, ports.FrameText, data)
}

// SendFrame transmits a frame of the given kind. Tests use it to inject
// binary frames and other inputs a well-behaved peer would not produce.
func (c *Conn) SendFrame(ctx context.Context, kind ports.FrameKind, data []byte) error {
	return c.send(ctx, kind, data)
}

func (c *Conn) send(ctx context.Context, kind ports.FrameKind, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case <-c.local.done:
		return ports.ErrTransportClosed
	case <-c.remote.done:
		return ports.ErrTransportClosed
	default:
	}

	select {
	case c.out <- frame{kind: kind, data: buf}:
		return nil
	case <-c.local.done:
		return ports.ErrTransportClosed
	case <-c.remote.done:
		return ports.ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements ports.Transport. The code travels to the peer as an
// in-band close frame so it arrives after everything sent before it.
func (c *Conn) Close(code domain.CloseCode, reason string) error {
	if !c.local.close(code, reason) {
		return nil
	}
	select {
	case c.out <- frame{close: true, code: code, reason: reason}:
	default:
		// Buffer full; the peer still observes the close state once it
		// drains.
	}
	return nil
}
