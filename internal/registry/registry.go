// Package registry tracks the acknowledgement state of a session's events.
//
// A registry holds two id sets: events we sent that await the peer's
// acknowledgement, and events we received that await ours. Ids leave the
// sets eagerly, on acknowledgement or deadline expiry, and may be reused
// afterwards. The registry is not safe for concurrent use; the owning
// session serializes all access.
package registry

import (
	"sort"
	"time"

	"github.com/evlink-labs/evlink/internal/domain"
)

// sentEvent is an outgoing event awaiting the peer's acknowledgement.
type sentEvent struct {
	sentAt   time.Time
	deadline time.Time
}

// Registry tracks outstanding outgoing events and unacknowledged incoming
// event ids for one session.
type Registry struct {
	sent     map[string]sentEvent
	received map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sent:     make(map[string]sentEvent),
		received: make(map[string]struct{}),
	}
}

// RegisterOutgoing records an event we sent and the deadline by which the
// peer must acknowledge it. Returns ErrDuplicateEvent when the id is
// already outstanding.
func (r *Registry) RegisterOutgoing(id string, sentAt, deadline time.Time) error {
	if _, ok := r.sent[id]; ok {
		return domain.ErrDuplicateEvent
	}
	r.sent[id] = sentEvent{sentAt: sentAt, deadline: deadline}
	return nil
}

// ObserveIncoming records an event we received and must acknowledge.
// Returns ErrDuplicateEvent when the id collides with one still awaiting
// our acknowledgement.
func (r *Registry) ObserveIncoming(id string) error {
	if _, ok := r.received[id]; ok {
		return domain.ErrDuplicateEvent
	}
	r.received[id] = struct{}{}
	return nil
}

// MarkAcked releases an incoming id once our acknowledgement is on the
// wire, reporting whether the id was pending. A released id may be reused
// by the peer.
func (r *Registry) MarkAcked(id string) bool {
	if _, ok := r.received[id]; !ok {
		return false
	}
	delete(r.received, id)
	return true
}

// Resolve removes an outstanding outgoing event and returns when it was
// sent. ok is false when the id was never registered, already resolved,
// or already expired; the cases are deliberately indistinguishable.
func (r *Registry) Resolve(id string) (sentAt time.Time, ok bool) {
	e, found := r.sent[id]
	if !found {
		return time.Time{}, false
	}
	delete(r.sent, id)
	return e.sentAt, true
}

// SweepExpired removes every outgoing event whose deadline is at or before
// now and returns their ids in deadline order. An id is yielded by at most
// one sweep and never before its deadline.
func (r *Registry) SweepExpired(now time.Time) []string {
	var expired []string
	for id, e := range r.sent {
		if !e.deadline.After(now) {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	sort.Slice(expired, func(i, j int) bool {
		a := r.sent[expired[i]].deadline
		b := r.sent[expired[j]].deadline
		if a.Equal(b) {
			return expired[i] < expired[j]
		}
		return a.Before(b)
	})
	for _, id := range expired {
		delete(r.sent, id)
	}
	return expired
}

// NextDeadline returns the earliest outstanding acknowledgement deadline,
// if any. The owning session arms its expiry timer from this.
func (r *Registry) NextDeadline() (time.Time, bool) {
	var next time.Time
	for _, e := range r.sent {
		if next.IsZero() || e.deadline.Before(next) {
			next = e.deadline
		}
	}
	return next, !next.IsZero()
}

// OutstandingSent returns the number of outgoing events awaiting the
// peer's acknowledgement.
func (r *Registry) OutstandingSent() int {
	return len(r.sent)
}

// SentIDs returns the outstanding outgoing event ids in lexical order.
func (r *Registry) SentIDs() []string {
	if len(r.sent) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.sent))
	for id := range r.sent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PendingAcks returns the number of incoming events still awaiting our
// acknowledgement.
func (r *Registry) PendingAcks() int {
	return len(r.received)
}
