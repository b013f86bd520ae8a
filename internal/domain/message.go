package domain

import "time"

// MessageType identifies the two message kinds that travel on the wire.
type MessageType string

const (
	// MessageEvent is an application message requiring acknowledgement.
	MessageEvent MessageType = "event"

	// MessageAck acknowledges receipt of a single event.
	MessageAck MessageType = "ack"
)

// Status classifies an event's disposition.
type Status string

const (
	// StatusNormal is a routine application event.
	StatusNormal Status = "normal"

	// StatusError reports a recoverable failure. The event is surfaced to
	// the application and the connection stays open.
	StatusError Status = "error"

	// StatusFatal reports an unrecoverable failure and terminates the
	// session whether sent or received.
	StatusFatal Status = "fatal"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusNormal, StatusError, StatusFatal:
		return true
	}
	return false
}

// Message is a validated wire message: either an *Event or an *Ack.
type Message interface {
	Type() MessageType
}

// Event is an application message. Every event carries a sender-unique id
// and must be answered by an Ack referencing that id within the session's
// acknowledgement time limit.
type Event struct {
	// ID identifies the event; unique among the sender's unacknowledged
	// events. Ids may be reused once the previous entry is resolved.
	ID string

	// SentAt is the sender's transmission timestamp.
	SentAt time.Time

	// Status is the event disposition.
	Status Status

	// Reason optionally explains an error or fatal status. Empty when the
	// sender gave none.
	Reason string

	// Payload is the application data. Opaque to the protocol except for
	// the handshake policy event.
	Payload map[string]interface{}
}

// Type implements Message.
func (*Event) Type() MessageType { return MessageEvent }

// Fatal reports whether the event terminates the session.
func (e *Event) Fatal() bool { return e.Status == StatusFatal }

// Ack acknowledges receipt of exactly one event. Acks are never themselves
// acknowledged.
type Ack struct {
	// ID is the id of the event being acknowledged.
	ID string

	// SentAt is the acknowledging side's transmission timestamp.
	SentAt time.Time
}

// Type implements Message.
func (*Ack) Type() MessageType { return MessageAck }
