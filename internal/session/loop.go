package session

import (
	"context"
	"errors"
	"time"

	"github.com/evlink-labs/evlink/internal/codec"
	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/ports"
)

// run is the actor goroutine. All registry and phase mutations happen
// here, so none of them need locks.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	if s.role == RoleServer {
		s.declarePolicy(ctx)
	}

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for s.Phase() != PhaseClosed {
		timerC := s.armDeadline(timer)

		// Delivery is offered only while something is queued; a nil
		// channel keeps the case dormant otherwise.
		var deliverCh chan *domain.Event
		var next *domain.Event
		if len(s.pendingIn) > 0 {
			deliverCh = s.inbound
			next = s.pendingIn[0]
		}

		select {
		case <-ctx.Done():
			s.finish(domain.CodeGoingAway, ctx.Err(), "context ended")

		case fr := <-s.recvCh:
			if fr.err != nil {
				s.handleTransportError(fr.err)
			} else {
				s.handleFrame(ctx, fr.kind, fr.data)
			}

		case sub := <-s.submitCh:
			sub.resp <- s.handleSubmit(ctx, sub)

		case <-timerC:
			s.sweep()

		case code := <-s.closeCh:
			s.finish(code, nil, "local close")

		case deliverCh <- next:
			s.pendingIn = s.pendingIn[1:]
		}
	}

	close(s.inbound)
}

// readLoop pumps transport frames into the actor. The first receive
// error is delivered as the final frame and ends the pump.
func (s *Session) readLoop(ctx context.Context) {
	for {
		kind, data, err := s.transport.Receive(ctx)
		select {
		case s.recvCh <- inboundFrame{kind: kind, data: data, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// armDeadline resets the expiry timer to the earliest outstanding
// acknowledgement deadline. It returns nil when nothing is outstanding
// so the timer case stays dormant.
func (s *Session) armDeadline(timer *time.Timer) <-chan time.Time {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	next, ok := s.reg.NextDeadline()
	if !ok {
		return nil
	}
	d := next.Sub(s.clock())
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
	return timer.C
}

// handleFrame validates one inbound frame and dispatches it by phase.
func (s *Session) handleFrame(ctx context.Context, kind ports.FrameKind, data []byte) {
	if kind != ports.FrameText {
		s.fail(&domain.Fault{Kind: domain.FaultInvalidFrame})
		return
	}
	msg, flt := codec.Parse(data)
	if flt != nil {
		s.fail(flt)
		return
	}

	if s.Phase() == PhaseHandshake {
		s.handleHandshakeMessage(ctx, msg)
		return
	}
	s.handleMessage(msg)
}

// handleTransportError ends the session when the connection drops or the
// peer closes it. The peer's close code, if any, is preserved in Err.
func (s *Session) handleTransportError(err error) {
	if errors.Is(err, ports.ErrTransportClosed) || errors.Is(err, context.Canceled) {
		s.finish(domain.CodeNormalClosure, nil, "transport closed")
		return
	}
	s.finish(domain.CodeNormalClosure, err, "transport error")
}

// sweep expires overdue outgoing events. Expiry and resolution both run
// on the actor, so an event is acknowledged or expired, never both.
func (s *Session) sweep() {
	expired := s.reg.SweepExpired(s.clock())
	s.syncCounters()
	if len(expired) == 0 {
		return
	}
	s.fail(&domain.Fault{Kind: domain.FaultAckTimeout, EventID: expired[0]})
}

// fail terminates the session on a protocol fault. The transport closes
// with the fault's code and an empty reason; nothing else is sent or
// processed afterwards. The first fault wins.
func (s *Session) fail(f *domain.Fault) {
	if s.Phase() == PhaseClosed {
		return
	}
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
	s.setPhase(PhaseClosed, f.Kind.String())

	_ = s.transport.Close(f.Code(), "")
	s.monitor.OnFault(f)
	s.logger.Warn("protocol fault",
		ports.String("kind", f.Kind.String()),
		ports.Int("code", int(f.Code())),
		ports.String("event_id", f.EventID),
		ports.String("field", f.Field),
	)
}

// finish terminates the session without a protocol fault.
func (s *Session) finish(code domain.CloseCode, err error, reason string) {
	if s.Phase() == PhaseClosed {
		return
	}
	s.mu.Lock()
	s.closeErr = err
	s.mu.Unlock()
	s.setPhase(PhaseClosed, reason)

	_ = s.transport.Close(code, "")
	fields := []ports.Field{
		ports.String("code", code.String()),
		ports.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, ports.Err(err))
	}
	s.logger.Info("session ended", fields...)
}

// setPhase advances the phase and notifies the monitor. Phases only move
// forward.
func (s *Session) setPhase(next Phase, reason string) {
	prev := Phase(s.phase.Swap(int32(next)))
	if prev == next {
		return
	}
	s.monitor.OnPhaseChange(prev, next, reason)
	s.logger.Info("phase transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
}

// syncCounters refreshes the externally visible registry counts.
func (s *Session) syncCounters() {
	s.outstanding.Store(int32(s.reg.OutstandingSent()))
	s.pendingAcks.Store(int32(s.reg.PendingAcks()))
}
