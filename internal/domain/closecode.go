package domain

import "strconv"

// CloseCode is a WebSocket-style close status code. Codes in the 4000-4999
// range are defined by this protocol; codes below 4000 follow RFC 6455.
type CloseCode int

// Protocol close codes. Every violation class maps to exactly one code so
// the peer can identify the failure from the close frame alone.
const (
	// CodeTokenExpired reports a rejected or expired credential during
	// connection establishment. Emitted by authentication layers in front
	// of the session, never by the session itself.
	CodeTokenExpired CloseCode = 4000

	// CodeInvalidFrame reports a transport frame that is not a text frame.
	CodeInvalidFrame CloseCode = 4001

	// CodeInvalidJSON reports a text frame that does not parse as a JSON
	// object.
	CodeInvalidJSON CloseCode = 4002

	// CodeMissingField reports a message lacking a required field.
	CodeMissingField CloseCode = 4003

	// CodeInvalidType reports a field carrying the wrong JSON type.
	CodeInvalidType CloseCode = 4004

	// CodeInvalidValue reports a well-typed field holding an invalid value,
	// such as an unknown enum member or an unparsable timestamp.
	CodeInvalidValue CloseCode = 4005

	// CodeDuplicateEventID reports an incoming event whose id collides with
	// one still awaiting our acknowledgement.
	CodeDuplicateEventID CloseCode = 4006

	// CodeAckTimeout reports an event that was not acknowledged within the
	// session's acknowledgement time limit.
	CodeAckTimeout CloseCode = 4007

	// CodeUnknownEvent reports an acknowledgement referencing no
	// outstanding event.
	CodeUnknownEvent CloseCode = 4008

	// CodeFatalEvent reports an event with fatal status, sent or received.
	CodeFatalEvent CloseCode = 4009

	// CodeInternalError reports an unexpected failure inside the session.
	CodeInternalError CloseCode = 4999
)

// Standard RFC 6455 close codes used by the library.
const (
	// CodeNormalClosure is a deliberate, fault-free local close.
	CodeNormalClosure CloseCode = 1000

	// CodeGoingAway is sent to live sessions when a server shuts down.
	CodeGoingAway CloseCode = 1001

	// CodeProtocolError reports a message that is valid in isolation but
	// not permitted in the session's current phase.
	CodeProtocolError CloseCode = 1002

	// CodePolicyViolation reports a transport-level policy breach such as
	// exceeding the message rate limit.
	CodePolicyViolation CloseCode = 1008
)

var closeCodeNames = map[CloseCode]string{
	CodeNormalClosure:    "normal closure",
	CodeGoingAway:        "going away",
	CodeProtocolError:    "protocol error",
	CodePolicyViolation:  "policy violation",
	CodeTokenExpired:     "token expired",
	CodeInvalidFrame:     "invalid frame",
	CodeInvalidJSON:      "invalid json",
	CodeMissingField:     "missing field",
	CodeInvalidType:      "invalid type",
	CodeInvalidValue:     "invalid value",
	CodeDuplicateEventID: "duplicate event id",
	CodeAckTimeout:       "ack timeout",
	CodeUnknownEvent:     "unknown event",
	CodeFatalEvent:       "fatal event",
	CodeInternalError:    "internal error",
}

// String returns the code's short name, or its numeric value for codes the
// protocol does not define.
func (c CloseCode) String() string {
	if name, ok := closeCodeNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}
