// Package codec translates between wire text frames and validated protocol
// messages.
//
// Parsing is total: every input yields either a message or a *domain.Fault
// describing the first violation found. Checks run field by field in wire
// order (type, id, sent_at, then the schema of the identified type), and
// within each field: presence, JSON type, then value. Unknown extra fields
// are ignored.
package codec

import (
	"encoding/json"
	"time"

	"github.com/evlink-labs/evlink/internal/domain"
)

// Timestamp layouts. Messages are emitted with fixed microsecond precision
// in UTC. Parsing additionally accepts RFC 3339 at any precision, the
// colon-less zone offset, and zone-less timestamps (read as UTC).
const (
	timeLayout        = "2006-01-02T15:04:05.000000Z07:00"
	timeLayoutNoColon = "2006-01-02T15:04:05.999999999Z0700"
	timeLayoutNaive   = "2006-01-02T15:04:05.999999999"
)

// Parse turns a received text frame into a validated message.
func Parse(data []byte) (domain.Message, *domain.Fault) {
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, &domain.Fault{Kind: domain.FaultInvalidJSON, Reason: err.Error()}
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, &domain.Fault{Kind: domain.FaultInvalidJSON, Reason: "top-level value is not an object"}
	}

	typ, flt := stringField(obj, "type")
	if flt != nil {
		return nil, flt
	}

	switch domain.MessageType(typ) {
	case domain.MessageEvent:
		return parseEvent(obj)
	case domain.MessageAck:
		return parseAck(obj)
	}
	return nil, &domain.Fault{Kind: domain.FaultInvalidValue, Field: "type"}
}

func parseEvent(obj map[string]interface{}) (domain.Message, *domain.Fault) {
	ev := &domain.Event{}
	var flt *domain.Fault

	if ev.ID, flt = stringField(obj, "id"); flt != nil {
		return nil, flt
	}
	if ev.SentAt, flt = timeField(obj, "sent_at"); flt != nil {
		return nil, flt
	}

	status, flt := stringField(obj, "status")
	if flt != nil {
		return nil, flt
	}
	ev.Status = domain.Status(status)
	if !ev.Status.Valid() {
		return nil, &domain.Fault{Kind: domain.FaultInvalidValue, Field: "status"}
	}

	if ev.Reason, flt = optionalStringField(obj, "reason"); flt != nil {
		return nil, flt
	}

	payload, ok := obj["payload"]
	if !ok {
		return nil, &domain.Fault{Kind: domain.FaultMissingField, Field: "payload"}
	}
	m, ok := payload.(map[string]interface{})
	if !ok {
		return nil, &domain.Fault{Kind: domain.FaultInvalidType, Field: "payload"}
	}
	ev.Payload = m

	return ev, nil
}

func parseAck(obj map[string]interface{}) (domain.Message, *domain.Fault) {
	ack := &domain.Ack{}
	var flt *domain.Fault

	if ack.ID, flt = stringField(obj, "id"); flt != nil {
		return nil, flt
	}
	if ack.SentAt, flt = timeField(obj, "sent_at"); flt != nil {
		return nil, flt
	}

	return ack, nil
}

// stringField reads a required string field.
func stringField(obj map[string]interface{}, name string) (string, *domain.Fault) {
	v, ok := obj[name]
	if !ok {
		return "", &domain.Fault{Kind: domain.FaultMissingField, Field: name}
	}
	s, ok := v.(string)
	if !ok {
		return "", &domain.Fault{Kind: domain.FaultInvalidType, Field: name}
	}
	return s, nil
}

// optionalStringField treats absent and null as the empty string.
func optionalStringField(obj map[string]interface{}, name string) (string, *domain.Fault) {
	v, ok := obj[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &domain.Fault{Kind: domain.FaultInvalidType, Field: name}
	}
	return s, nil
}

// timeField reads a required timestamp field. A non-string is a type
// fault; a string that does not parse is a value fault.
func timeField(obj map[string]interface{}, name string) (time.Time, *domain.Fault) {
	s, flt := stringField(obj, name)
	if flt != nil {
		return time.Time{}, flt
	}
	ts, err := parseTime(s)
	if err != nil {
		return time.Time{}, &domain.Fault{Kind: domain.FaultInvalidValue, Field: name}
	}
	return ts, nil
}

func parseTime(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return ts, nil
	}
	if ts, err = time.Parse(timeLayoutNoColon, s); err == nil {
		return ts, nil
	}
	return time.Parse(timeLayoutNaive, s)
}

// wireEvent mirrors Event for JSON serialization.
type wireEvent struct {
	Type    string                 `json:"type"`
	ID      string                 `json:"id"`
	SentAt  string                 `json:"sent_at"`
	Status  domain.Status          `json:"status"`
	Reason  *string                `json:"reason,omitempty"`
	Payload map[string]interface{} `json:"payload"`
}

// wireAck mirrors Ack for JSON serialization.
type wireAck struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	SentAt string `json:"sent_at"`
}

// MarshalEvent renders an event as a wire text frame. A nil payload is
// emitted as an empty object so the frame stays parseable by the peer.
func MarshalEvent(ev *domain.Event) ([]byte, error) {
	w := wireEvent{
		Type:    string(domain.MessageEvent),
		ID:      ev.ID,
		SentAt:  formatTime(ev.SentAt),
		Status:  ev.Status,
		Payload: ev.Payload,
	}
	if ev.Reason != "" {
		w.Reason = &ev.Reason
	}
	if w.Payload == nil {
		w.Payload = map[string]interface{}{}
	}
	return json.Marshal(w)
}

// MarshalAck renders an acknowledgement as a wire text frame.
func MarshalAck(ack *domain.Ack) ([]byte, error) {
	return json.Marshal(wireAck{
		Type:   string(domain.MessageAck),
		ID:     ack.ID,
		SentAt: formatTime(ack.SentAt),
	})
}

// formatTime renders a timestamp in UTC with microsecond precision.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
