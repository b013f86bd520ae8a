package session

import (
	"context"

	"github.com/evlink-labs/evlink/internal/codec"
	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/ports"
)

// handleMessage processes one validated message during messaging.
func (s *Session) handleMessage(msg domain.Message) {
	switch m := msg.(type) {
	case *domain.Event:
		s.processEvent(m)
	case *domain.Ack:
		s.processAck(m)
	}
}

// processEvent admits an incoming event. A fatal event terminates the
// session without being delivered; a duplicate of an unacknowledged id
// faults; anything else queues for delivery on Inbound.
func (s *Session) processEvent(ev *domain.Event) {
	if ev.Fatal() {
		s.fail(&domain.Fault{Kind: domain.FaultFatalEvent, EventID: ev.ID, Reason: ev.Reason})
		return
	}
	if err := s.reg.ObserveIncoming(ev.ID); err != nil {
		s.fail(&domain.Fault{Kind: domain.FaultDuplicateEventID, EventID: ev.ID})
		return
	}
	s.syncCounters()
	s.pendingIn = append(s.pendingIn, ev)
}

// processAck resolves the peer's acknowledgement of an event we sent.
// An ack matching nothing outstanding, including one already resolved,
// is an unknown-event fault.
func (s *Session) processAck(ack *domain.Ack) {
	sentAt, ok := s.reg.Resolve(ack.ID)
	if !ok {
		s.fail(&domain.Fault{Kind: domain.FaultUnknownEvent, EventID: ack.ID})
		return
	}
	s.syncCounters()

	latency := s.clock().Sub(sentAt)
	s.monitor.OnEventAcked(ack.ID, latency)
	s.logger.Debug("event acked",
		ports.String("event_id", ack.ID),
		ports.Duration("latency", latency),
	)
}

// handleSubmit executes a caller submission on the actor.
func (s *Session) handleSubmit(ctx context.Context, sub *submit) error {
	if s.Phase() != PhaseMessaging {
		return domain.ErrClosed
	}
	if sub.ev != nil {
		return s.sendEvent(ctx, sub.ev)
	}
	return s.sendAck(ctx, sub.ackID)
}

// sendEvent registers and transmits an outgoing event. Registration
// happens before the send; the peer's ack can race the frame.
func (s *Session) sendEvent(ctx context.Context, ev *domain.Event) error {
	deadline := ev.SentAt.Add(s.Policy().AckTimeout)
	if err := s.reg.RegisterOutgoing(ev.ID, ev.SentAt, deadline); err != nil {
		return err
	}
	s.syncCounters()

	data, err := codec.MarshalEvent(ev)
	if err != nil {
		_, _ = s.reg.Resolve(ev.ID)
		s.syncCounters()
		return err
	}
	if err := s.transport.Send(ctx, data); err != nil {
		s.fail(&domain.Fault{Kind: domain.FaultInternal, Reason: err.Error()})
		return err
	}

	s.logger.Debug("event sent",
		ports.String("event_id", ev.ID),
		ports.String("status", string(ev.Status)),
	)

	// A fatal status terminates the sender too, after the frame is out.
	if ev.Fatal() {
		s.fail(&domain.Fault{Kind: domain.FaultFatalEvent, EventID: ev.ID, Reason: ev.Reason})
	}
	return nil
}

// sendAck transmits an acknowledgement and releases the pending entry.
func (s *Session) sendAck(ctx context.Context, id string) error {
	if !s.reg.MarkAcked(id) {
		return domain.ErrNoPendingEvent
	}
	s.syncCounters()

	data, err := codec.MarshalAck(&domain.Ack{ID: id, SentAt: s.clock()})
	if err != nil {
		return err
	}
	if err := s.transport.Send(ctx, data); err != nil {
		s.fail(&domain.Fault{Kind: domain.FaultInternal, Reason: err.Error()})
		return err
	}
	return nil
}
