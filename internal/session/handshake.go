package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/evlink-labs/evlink/internal/codec"
	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/ports"
)

// declarePolicy opens the server handshake. The policy event is
// registered like any other outgoing event, so a client that never
// acknowledges it runs into the ordinary ack deadline.
func (s *Session) declarePolicy(ctx context.Context) {
	policy := s.Policy()
	ev := &domain.Event{
		ID:      uuid.NewString(),
		SentAt:  s.clock(),
		Status:  domain.StatusNormal,
		Payload: policy.Payload(),
	}
	data, err := codec.MarshalEvent(ev)
	if err != nil {
		s.fail(&domain.Fault{Kind: domain.FaultInternal, Reason: err.Error()})
		return
	}
	if err := s.transport.Send(ctx, data); err != nil {
		s.finish(domain.CodeNormalClosure, err, "handshake send failed")
		return
	}

	_ = s.reg.RegisterOutgoing(ev.ID, ev.SentAt, ev.SentAt.Add(policy.AckTimeout))
	s.syncCounters()

	s.logger.Debug("policy declared",
		ports.String("event_id", ev.ID),
		ports.Duration("ack_timeout", policy.AckTimeout),
	)
}

// handleHandshakeMessage dispatches a message that arrived before the
// messaging phase opened.
func (s *Session) handleHandshakeMessage(ctx context.Context, msg domain.Message) {
	if s.role == RoleServer {
		s.serverAwaitPolicyAck(msg)
		return
	}
	s.clientAwaitPolicy(ctx, msg)
}

// serverAwaitPolicyAck expects the acknowledgement of the policy event.
// A fatal event outranks the phase check; any other event is a phase
// violation, and an ack for anything else is an unknown-event fault.
func (s *Session) serverAwaitPolicyAck(msg domain.Message) {
	switch m := msg.(type) {
	case *domain.Ack:
		if _, ok := s.reg.Resolve(m.ID); !ok {
			s.fail(&domain.Fault{Kind: domain.FaultUnknownEvent, EventID: m.ID})
			return
		}
		s.syncCounters()
		s.enterMessaging("policy acknowledged")
	case *domain.Event:
		if m.Fatal() {
			s.fail(&domain.Fault{Kind: domain.FaultFatalEvent, EventID: m.ID, Reason: m.Reason})
			return
		}
		s.fail(&domain.Fault{
			Kind:    domain.FaultPhaseViolation,
			EventID: m.ID,
			Reason:  "event before policy acknowledgement",
		})
	}
}

// clientAwaitPolicy expects the server's policy event. The client
// acknowledges it, adopts the declared policy and opens messaging.
func (s *Session) clientAwaitPolicy(ctx context.Context, msg domain.Message) {
	switch m := msg.(type) {
	case *domain.Event:
		if m.Fatal() {
			s.fail(&domain.Fault{Kind: domain.FaultFatalEvent, EventID: m.ID, Reason: m.Reason})
			return
		}
		policy, flt := domain.PolicyFromPayload(m.Payload)
		if flt != nil {
			flt.EventID = m.ID
			s.fail(flt)
			return
		}
		if err := s.reg.ObserveIncoming(m.ID); err != nil {
			s.fail(&domain.Fault{Kind: domain.FaultDuplicateEventID, EventID: m.ID})
			return
		}
		s.syncCounters()
		if err := s.sendAck(ctx, m.ID); err != nil {
			return
		}
		s.mu.Lock()
		s.policy = policy
		s.mu.Unlock()
		s.enterMessaging("policy adopted")
	case *domain.Ack:
		// Nothing of ours can be outstanding before the policy arrives.
		s.fail(&domain.Fault{Kind: domain.FaultUnknownEvent, EventID: m.ID})
	}
}

// enterMessaging opens the symmetric messaging phase and releases
// callers waiting in Open.
func (s *Session) enterMessaging(reason string) {
	s.setPhase(PhaseMessaging, reason)
	close(s.ready)
}
