package domain

// FaultKind classifies the protocol violations that terminate a session.
type FaultKind int

const (
	// FaultInvalidFrame: the transport delivered a non-text frame.
	FaultInvalidFrame FaultKind = iota + 1

	// FaultInvalidJSON: a text frame did not parse as a JSON object.
	FaultInvalidJSON

	// FaultMissingField: a message lacked a required field.
	FaultMissingField

	// FaultInvalidType: a field carried the wrong JSON type.
	FaultInvalidType

	// FaultInvalidValue: a well-typed field held an invalid value.
	FaultInvalidValue

	// FaultDuplicateEventID: an incoming event reused an id still awaiting
	// our acknowledgement.
	FaultDuplicateEventID

	// FaultAckTimeout: the peer did not acknowledge an event in time.
	FaultAckTimeout

	// FaultUnknownEvent: an acknowledgement referenced no outstanding event.
	FaultUnknownEvent

	// FaultFatalEvent: an event with fatal status was sent or received.
	FaultFatalEvent

	// FaultPhaseViolation: a message arrived that the session's current
	// phase does not permit.
	FaultPhaseViolation

	// FaultInternal: an unexpected failure inside the session.
	FaultInternal
)

var faultKindNames = map[FaultKind]string{
	FaultInvalidFrame:     "invalid frame",
	FaultInvalidJSON:      "invalid json",
	FaultMissingField:     "missing field",
	FaultInvalidType:      "invalid type",
	FaultInvalidValue:     "invalid value",
	FaultDuplicateEventID: "duplicate event id",
	FaultAckTimeout:       "ack timeout",
	FaultUnknownEvent:     "unknown event",
	FaultFatalEvent:       "fatal event",
	FaultPhaseViolation:   "phase violation",
	FaultInternal:         "internal error",
}

// String returns the kind's short name.
func (k FaultKind) String() string {
	if name, ok := faultKindNames[k]; ok {
		return name
	}
	return "unknown fault"
}

// CloseCode returns the close status code a session sends when it
// terminates on this fault kind.
func (k FaultKind) CloseCode() CloseCode {
	switch k {
	case FaultInvalidFrame:
		return CodeInvalidFrame
	case FaultInvalidJSON:
		return CodeInvalidJSON
	case FaultMissingField:
		return CodeMissingField
	case FaultInvalidType:
		return CodeInvalidType
	case FaultInvalidValue:
		return CodeInvalidValue
	case FaultDuplicateEventID:
		return CodeDuplicateEventID
	case FaultAckTimeout:
		return CodeAckTimeout
	case FaultUnknownEvent:
		return CodeUnknownEvent
	case FaultFatalEvent:
		return CodeFatalEvent
	case FaultPhaseViolation:
		return CodeProtocolError
	}
	return CodeInternalError
}

// Fault describes a protocol violation. A session that detects one stops
// processing input, closes the transport with the mapped close code, and
// reports the fault through its monitor. Nothing else is sent: no closing
// event, no ack, including acks already owed to the peer.
type Fault struct {
	// Kind classifies the violation.
	Kind FaultKind

	// Field names the offending message field for structural faults.
	// Nested fields use dotted paths such as "payload.ack_timeout".
	Field string

	// EventID names the offending id for sequencing faults.
	EventID string

	// Reason carries free-form detail, such as the reason of a fatal event.
	Reason string
}

// Code returns the close status code mapped to the fault.
func (f *Fault) Code() CloseCode { return f.Kind.CloseCode() }

// Error implements the error interface.
func (f *Fault) Error() string {
	msg := "evlink: " + f.Kind.String()
	if f.Field != "" {
		msg += " (field " + f.Field + ")"
	}
	if f.EventID != "" {
		msg += " (event " + f.EventID + ")"
	}
	if f.Reason != "" {
		msg += ": " + f.Reason
	}
	return msg
}
