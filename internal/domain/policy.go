package domain

import (
	"fmt"
	"math"
	"time"
)

// Policy payload keys. Durations travel as seconds, sizes as bytes.
const (
	policyKeyAckTimeout   = "ack_timeout"
	policyKeyHeartbeat    = "heartbeat_interval"
	policyKeyMaxMsgSize   = "max_message_size"
	policyKeyRateLimit    = "message_rate_limit"
	policyKeyRateInterval = "message_rate_interval"
)

// Policy is the session policy a server declares in the payload of its
// handshake event. The acknowledgement time limit governs the core
// protocol on both sides; the remaining fields are transport hints the
// client may apply to its own connection handling.
type Policy struct {
	// AckTimeout is how long the sender of an event waits for the matching
	// acknowledgement before terminating the session. Required.
	AckTimeout time.Duration

	// HeartbeatInterval is the transport keepalive ping interval. Zero
	// means the server declares none.
	HeartbeatInterval time.Duration

	// MaxMessageSize is the largest message in bytes the server accepts.
	// Zero means unlimited.
	MaxMessageSize int64

	// MessageRateLimit is the number of inbound messages tolerated per
	// MessageRateInterval. Zero disables rate limiting.
	MessageRateLimit int

	// MessageRateInterval is the window for MessageRateLimit.
	MessageRateInterval time.Duration
}

// Validate checks that the policy can be declared to a client.
func (p Policy) Validate() error {
	if p.AckTimeout <= 0 {
		return fmt.Errorf("%w: ack timeout must be positive", ErrInvalidConfig)
	}
	if p.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: heartbeat interval cannot be negative", ErrInvalidConfig)
	}
	if p.MaxMessageSize < 0 {
		return fmt.Errorf("%w: max message size cannot be negative", ErrInvalidConfig)
	}
	if p.MessageRateLimit < 0 {
		return fmt.Errorf("%w: message rate limit cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Payload renders the policy as a handshake event payload. Numbers are
// emitted as float64 so the map matches what JSON decoding produces on the
// receiving side. Optional fields are omitted when unset.
func (p Policy) Payload() map[string]interface{} {
	m := map[string]interface{}{
		policyKeyAckTimeout: p.AckTimeout.Seconds(),
	}
	if p.HeartbeatInterval > 0 {
		m[policyKeyHeartbeat] = p.HeartbeatInterval.Seconds()
	}
	if p.MaxMessageSize > 0 {
		m[policyKeyMaxMsgSize] = float64(p.MaxMessageSize)
	}
	if p.MessageRateLimit > 0 {
		m[policyKeyRateLimit] = float64(p.MessageRateLimit)
		interval := p.MessageRateInterval
		if interval <= 0 {
			interval = time.Second
		}
		m[policyKeyRateInterval] = interval.Seconds()
	}
	return m
}

// PolicyFromPayload extracts the policy from a handshake event payload.
// The payload is the one payload the protocol inspects; its violations
// reuse the structural fault taxonomy with dotted field paths. A missing,
// mistyped, or non-positive ack_timeout faults the handshake; optional
// fields fault only when present with the wrong type or a negative value.
func PolicyFromPayload(payload map[string]interface{}) (Policy, *Fault) {
	var p Policy

	v, ok := payload[policyKeyAckTimeout]
	if !ok {
		return Policy{}, &Fault{Kind: FaultMissingField, Field: "payload." + policyKeyAckTimeout}
	}
	secs, ok := v.(float64)
	if !ok {
		return Policy{}, &Fault{Kind: FaultInvalidType, Field: "payload." + policyKeyAckTimeout}
	}
	if secs <= 0 {
		return Policy{}, &Fault{Kind: FaultInvalidValue, Field: "payload." + policyKeyAckTimeout}
	}
	p.AckTimeout = secondsToDuration(secs)

	var flt *Fault
	if p.HeartbeatInterval, flt = optionalSeconds(payload, policyKeyHeartbeat); flt != nil {
		return Policy{}, flt
	}
	if p.MaxMessageSize, flt = optionalInteger(payload, policyKeyMaxMsgSize); flt != nil {
		return Policy{}, flt
	}
	limit, flt := optionalInteger(payload, policyKeyRateLimit)
	if flt != nil {
		return Policy{}, flt
	}
	p.MessageRateLimit = int(limit)
	if p.MessageRateInterval, flt = optionalSeconds(payload, policyKeyRateInterval); flt != nil {
		return Policy{}, flt
	}
	if p.MessageRateLimit > 0 && p.MessageRateInterval <= 0 {
		p.MessageRateInterval = time.Second
	}
	return p, nil
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// optionalSeconds reads a non-negative duration-in-seconds field, treating
// absent and null as unset.
func optionalSeconds(payload map[string]interface{}, key string) (time.Duration, *Fault) {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0, nil
	}
	secs, ok := v.(float64)
	if !ok {
		return 0, &Fault{Kind: FaultInvalidType, Field: "payload." + key}
	}
	if secs < 0 {
		return 0, &Fault{Kind: FaultInvalidValue, Field: "payload." + key}
	}
	return secondsToDuration(secs), nil
}

// optionalInteger reads a non-negative whole-number field, treating absent
// and null as unset. JSON numbers arrive as float64; fractional values are
// rejected rather than truncated.
func optionalInteger(payload map[string]interface{}, key string) (int64, *Fault) {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, &Fault{Kind: FaultInvalidType, Field: "payload." + key}
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, &Fault{Kind: FaultInvalidValue, Field: "payload." + key}
	}
	return int64(f), nil
}
