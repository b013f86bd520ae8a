package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/evlink-labs/evlink/internal/adapters/mem"
	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/ports"
)

// tsWire is a fixed, well-formed timestamp for hand-built frames.
const tsWire = "2026-01-02T15:04:05.000000Z"

// rawPeer speaks the wire protocol by hand so tests can misbehave in
// ways the Session API never would.
type rawPeer struct {
	t  *testing.T
	tr *mem.Conn
}

func (p *rawPeer) send(frame string) {
	p.t.Helper()
	if err := p.tr.Send(context.Background(), []byte(frame)); err != nil {
		p.t.Fatalf("peer send: %v", err)
	}
}

func (p *rawPeer) sendBinary(data []byte) {
	p.t.Helper()
	if err := p.tr.SendFrame(context.Background(), ports.FrameBinary, data); err != nil {
		p.t.Fatalf("peer send binary: %v", err)
	}
}

func (p *rawPeer) recv() map[string]interface{} {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	kind, data, err := p.tr.Receive(ctx)
	if err != nil {
		p.t.Fatalf("peer receive: %v", err)
	}
	if kind != ports.FrameText {
		p.t.Fatalf("peer received frame kind %v", kind)
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		p.t.Fatalf("peer decode: %v", err)
	}
	return frame
}

// waitClose drains any remaining frames and asserts the close code the
// session terminated with.
func (p *rawPeer) waitClose(want domain.CloseCode) {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		_, _, err := p.tr.Receive(ctx)
		if err == nil {
			continue
		}
		var ce *ports.CloseError
		if !errors.As(err, &ce) {
			p.t.Fatalf("peer receive: %v", err)
		}
		if ce.Code != want {
			p.t.Fatalf("close code = %v, want %v", ce.Code, want)
		}
		return
	}
}

func ackFrame(id string) string {
	return fmt.Sprintf(`{"type":"ack","id":%q,"sent_at":%q}`, id, tsWire)
}

func eventFrame(id string, status domain.Status) string {
	return fmt.Sprintf(`{"type":"event","id":%q,"sent_at":%q,"status":%q,"payload":{}}`, id, tsWire, status)
}

// startServer opens a server session against a scripted peer and walks
// the peer through the policy handshake.
func startServer(t *testing.T, policy domain.Policy) (*Session, *rawPeer) {
	t.Helper()
	st, ct := mem.Pipe()
	peer := &rawPeer{t: t, tr: ct}

	type result struct {
		s   *Session
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		s, err := Open(context.Background(), RoleServer, st, Config{Policy: policy})
		resCh <- result{s, err}
	}()

	pol := peer.recv()
	id, _ := pol["id"].(string)
	if id == "" {
		t.Fatalf("policy event without id: %v", pol)
	}
	peer.send(ackFrame(id))

	res := <-resCh
	if res.err != nil {
		t.Fatalf("server open: %v", res.err)
	}
	t.Cleanup(func() { _ = res.s.Close() })
	return res.s, peer
}

func waitFault(t *testing.T, s *Session, want domain.FaultKind) *domain.Fault {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
	f := s.Fault()
	if f == nil {
		t.Fatalf("no fault recorded, err = %v", s.Err())
	}
	if f.Kind != want {
		t.Fatalf("fault kind = %v, want %v", f.Kind, want)
	}
	return f
}

func TestSession_BinaryFrame(t *testing.T) {
	server, peer := startServer(t, testPolicy())
	peer.sendBinary([]byte{0x1})

	f := waitFault(t, server, domain.FaultInvalidFrame)
	if f.Code() != domain.CodeInvalidFrame {
		t.Fatalf("close code = %v, want %v", f.Code(), domain.CodeInvalidFrame)
	}
	peer.waitClose(domain.CodeInvalidFrame)
}

func TestSession_FrameFaults(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		kind  domain.FaultKind
		code  domain.CloseCode
	}{
		{
			name:  "malformed json",
			frame: `{"type":`,
			kind:  domain.FaultInvalidJSON,
			code:  domain.CodeInvalidJSON,
		},
		{
			name:  "missing status",
			frame: `{"type":"event","id":"e1","sent_at":"` + tsWire + `","payload":{}}`,
			kind:  domain.FaultMissingField,
			code:  domain.CodeMissingField,
		},
		{
			name:  "id wrong type",
			frame: `{"type":"event","id":7,"sent_at":"` + tsWire + `","status":"normal","payload":{}}`,
			kind:  domain.FaultInvalidType,
			code:  domain.CodeInvalidType,
		},
		{
			name:  "unknown status",
			frame: eventFrame("e1", domain.Status("confused")),
			kind:  domain.FaultInvalidValue,
			code:  domain.CodeInvalidValue,
		},
		{
			name:  "ack for unknown event",
			frame: ackFrame("ghost"),
			kind:  domain.FaultUnknownEvent,
			code:  domain.CodeUnknownEvent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, peer := startServer(t, testPolicy())
			peer.send(tt.frame)

			f := waitFault(t, server, tt.kind)
			if f.Code() != tt.code {
				t.Fatalf("close code = %v, want %v", f.Code(), tt.code)
			}
			peer.waitClose(tt.code)
		})
	}
}

func TestSession_DuplicateEventID(t *testing.T) {
	server, peer := startServer(t, testPolicy())
	peer.send(eventFrame("dup-1", domain.StatusNormal))
	peer.send(eventFrame("dup-1", domain.StatusNormal))

	f := waitFault(t, server, domain.FaultDuplicateEventID)
	if f.EventID != "dup-1" {
		t.Fatalf("fault event id = %q, want %q", f.EventID, "dup-1")
	}
	peer.waitClose(domain.CodeDuplicateEventID)

	// The first copy was still queued when the fault hit; it dies with
	// the session instead of being delivered.
	if _, ok := <-server.Inbound(); ok {
		t.Fatal("event delivered after fault")
	}
}

func TestSession_AckTwice(t *testing.T) {
	server, peer := startServer(t, testPolicy())

	if err := server.SendEvent(context.Background(), &domain.Event{ID: "e-1", Payload: map[string]interface{}{}}); err != nil {
		t.Fatalf("send event: %v", err)
	}
	peer.recv()
	peer.send(ackFrame("e-1"))
	peer.send(ackFrame("e-1"))

	f := waitFault(t, server, domain.FaultUnknownEvent)
	if f.EventID != "e-1" {
		t.Fatalf("fault event id = %q, want %q", f.EventID, "e-1")
	}
	peer.waitClose(domain.CodeUnknownEvent)
}

func TestSession_FatalEvent(t *testing.T) {
	server, peer := startServer(t, testPolicy())
	peer.send(`{"type":"event","id":"f-1","sent_at":"` + tsWire + `","status":"fatal","reason":"shutting down","payload":{}}`)

	f := waitFault(t, server, domain.FaultFatalEvent)
	if f.EventID != "f-1" || f.Reason != "shutting down" {
		t.Fatalf("fault = %+v", f)
	}
	if _, ok := <-server.Inbound(); ok {
		t.Fatal("fatal event was delivered")
	}
	peer.waitClose(domain.CodeFatalEvent)
}

func TestSession_SendFatal(t *testing.T) {
	server, peer := startServer(t, testPolicy())

	err := server.SendEvent(context.Background(), &domain.Event{Status: domain.StatusFatal, Reason: "giving up"})
	if err != nil {
		t.Fatalf("send fatal: %v", err)
	}
	f := waitFault(t, server, domain.FaultFatalEvent)
	if f.Reason != "giving up" {
		t.Fatalf("fault reason = %q", f.Reason)
	}

	// The peer sees the fatal event first, then the close.
	frame := peer.recv()
	if frame["status"] != string(domain.StatusFatal) {
		t.Fatalf("peer received %v", frame)
	}
	peer.waitClose(domain.CodeFatalEvent)
}

func TestSession_AckTimeout(t *testing.T) {
	server, peer := startServer(t, domain.Policy{AckTimeout: 40 * time.Millisecond})

	if err := server.SendEvent(context.Background(), &domain.Event{ID: "slow-1", Payload: map[string]interface{}{}}); err != nil {
		t.Fatalf("send event: %v", err)
	}
	peer.recv() // the event goes out, no ack follows

	f := waitFault(t, server, domain.FaultAckTimeout)
	if f.EventID != "slow-1" {
		t.Fatalf("fault event id = %q, want %q", f.EventID, "slow-1")
	}
	if server.Outstanding() != 0 {
		t.Fatalf("outstanding = %d after expiry", server.Outstanding())
	}
	peer.waitClose(domain.CodeAckTimeout)
}

func TestSession_EventDuringHandshake(t *testing.T) {
	st, ct := mem.Pipe()
	peer := &rawPeer{t: t, tr: ct}

	resCh := make(chan error, 1)
	go func() {
		_, err := Open(context.Background(), RoleServer, st, Config{Policy: testPolicy()})
		resCh <- err
	}()

	peer.recv() // policy event, deliberately not acknowledged
	peer.send(eventFrame("early-1", domain.StatusNormal))

	err := <-resCh
	var f *domain.Fault
	if !errors.As(err, &f) {
		t.Fatalf("open error = %v, want a fault", err)
	}
	if f.Kind != domain.FaultPhaseViolation {
		t.Fatalf("fault kind = %v, want %v", f.Kind, domain.FaultPhaseViolation)
	}
	peer.waitClose(domain.CodeProtocolError)
}

func TestClient_AdoptsPolicy(t *testing.T) {
	st, ct := mem.Pipe()
	peer := &rawPeer{t: t, tr: st}

	type result struct {
		s   *Session
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		s, err := Open(context.Background(), RoleClient, ct, Config{})
		resCh <- result{s, err}
	}()

	peer.send(`{"type":"event","id":"pol-1","sent_at":"` + tsWire + `","status":"normal","payload":{"ack_timeout":2.5,"heartbeat_interval":10,"max_message_size":65536}}`)

	ack := peer.recv()
	if ack["type"] != "ack" || ack["id"] != "pol-1" {
		t.Fatalf("client reply = %v", ack)
	}

	res := <-resCh
	if res.err != nil {
		t.Fatalf("client open: %v", res.err)
	}
	defer res.s.Close()

	pol := res.s.Policy()
	if pol.AckTimeout != 2500*time.Millisecond {
		t.Fatalf("ack timeout = %v, want %v", pol.AckTimeout, 2500*time.Millisecond)
	}
	if pol.HeartbeatInterval != 10*time.Second {
		t.Fatalf("heartbeat interval = %v, want %v", pol.HeartbeatInterval, 10*time.Second)
	}
	if pol.MaxMessageSize != 65536 {
		t.Fatalf("max message size = %d, want %d", pol.MaxMessageSize, 65536)
	}
}

func TestClient_PolicyFaults(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    domain.FaultKind
		code    domain.CloseCode
	}{
		{
			name:    "missing ack timeout",
			payload: `{}`,
			kind:    domain.FaultMissingField,
			code:    domain.CodeMissingField,
		},
		{
			name:    "ack timeout wrong type",
			payload: `{"ack_timeout":"fast"}`,
			kind:    domain.FaultInvalidType,
			code:    domain.CodeInvalidType,
		},
		{
			name:    "ack timeout zero",
			payload: `{"ack_timeout":0}`,
			kind:    domain.FaultInvalidValue,
			code:    domain.CodeInvalidValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ct := mem.Pipe()
			peer := &rawPeer{t: t, tr: st}

			resCh := make(chan error, 1)
			go func() {
				_, err := Open(context.Background(), RoleClient, ct, Config{})
				resCh <- err
			}()

			peer.send(`{"type":"event","id":"pol-1","sent_at":"` + tsWire + `","status":"normal","payload":` + tt.payload + `}`)

			err := <-resCh
			var f *domain.Fault
			if !errors.As(err, &f) {
				t.Fatalf("open error = %v, want a fault", err)
			}
			if f.Kind != tt.kind {
				t.Fatalf("fault kind = %v, want %v", f.Kind, tt.kind)
			}
			if f.EventID != "pol-1" {
				t.Fatalf("fault event id = %q, want %q", f.EventID, "pol-1")
			}
			peer.waitClose(tt.code)
		})
	}
}

func TestClient_AckBeforePolicy(t *testing.T) {
	st, ct := mem.Pipe()
	peer := &rawPeer{t: t, tr: st}

	resCh := make(chan error, 1)
	go func() {
		_, err := Open(context.Background(), RoleClient, ct, Config{})
		resCh <- err
	}()

	peer.send(ackFrame("premature"))

	err := <-resCh
	var f *domain.Fault
	if !errors.As(err, &f) || f.Kind != domain.FaultUnknownEvent {
		t.Fatalf("open error = %v, want an unknown-event fault", err)
	}
	peer.waitClose(domain.CodeUnknownEvent)
}

func TestClient_FatalPolicyEvent(t *testing.T) {
	st, ct := mem.Pipe()
	peer := &rawPeer{t: t, tr: st}

	resCh := make(chan error, 1)
	go func() {
		_, err := Open(context.Background(), RoleClient, ct, Config{})
		resCh <- err
	}()

	// The fatal status outranks the missing policy fields.
	peer.send(`{"type":"event","id":"pol-1","sent_at":"` + tsWire + `","status":"fatal","reason":"no capacity","payload":{}}`)

	err := <-resCh
	var f *domain.Fault
	if !errors.As(err, &f) {
		t.Fatalf("open error = %v, want a fault", err)
	}
	if f.Kind != domain.FaultFatalEvent || f.Reason != "no capacity" {
		t.Fatalf("fault = %+v", f)
	}
	peer.waitClose(domain.CodeFatalEvent)
}
