package domain

import "errors"

// Domain errors represent local usage failures returned by the public API;
// check them with errors.Is. Protocol violations detected on the wire are
// reported as *Fault instead.
var (
	// ErrClosed is returned when operating on a session that has ended.
	ErrClosed = errors.New("evlink: session closed")

	// ErrDuplicateEvent is returned when sending an event whose id is
	// already awaiting acknowledgement.
	ErrDuplicateEvent = errors.New("evlink: event id already outstanding")

	// ErrNoPendingEvent is returned when acknowledging an id that has no
	// unacknowledged incoming event.
	ErrNoPendingEvent = errors.New("evlink: no pending event with this id")

	// ErrInvalidStatus is returned when sending an event with an unknown
	// status value.
	ErrInvalidStatus = errors.New("evlink: invalid event status")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("evlink: invalid configuration")
)
