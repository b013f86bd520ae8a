package codec

import (
	"testing"
	"time"

	"github.com/evlink-labs/evlink/internal/domain"
)

func TestParse_Event(t *testing.T) {
	raw := `{
		"type": "event",
		"id": "550e8400-e29b-41d4-a716-446655440000",
		"sent_at": "2025-03-01T10:30:00.000000+00:00",
		"status": "normal",
		"reason": null,
		"payload": {"op": "echo", "n": 1}
	}`

	msg, fault := Parse([]byte(raw))
	if fault != nil {
		t.Fatalf("Parse() fault = %v, want nil", fault)
	}

	ev, ok := msg.(*domain.Event)
	if !ok {
		t.Fatalf("Parse() returned %T, want *domain.Event", msg)
	}
	if ev.ID != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("id = %q", ev.ID)
	}
	want := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	if !ev.SentAt.Equal(want) {
		t.Errorf("sent_at = %v, want %v", ev.SentAt, want)
	}
	if ev.Status != domain.StatusNormal {
		t.Errorf("status = %q, want normal", ev.Status)
	}
	if ev.Reason != "" {
		t.Errorf("reason = %q, want empty", ev.Reason)
	}
	if ev.Payload["op"] != "echo" {
		t.Errorf("payload op = %v, want echo", ev.Payload["op"])
	}
}

func TestParse_EventWithReason(t *testing.T) {
	raw := `{"type":"event","id":"e-1","sent_at":"2025-03-01T10:30:00Z","status":"error","reason":"backend degraded","payload":{}}`

	msg, fault := Parse([]byte(raw))
	if fault != nil {
		t.Fatalf("Parse() fault = %v, want nil", fault)
	}
	ev := msg.(*domain.Event)
	if ev.Status != domain.StatusError {
		t.Errorf("status = %q, want error", ev.Status)
	}
	if ev.Reason != "backend degraded" {
		t.Errorf("reason = %q", ev.Reason)
	}
}

func TestParse_Ack(t *testing.T) {
	raw := `{"type":"ack","id":"e-7","sent_at":"2025-03-01T10:30:01.250000Z"}`

	msg, fault := Parse([]byte(raw))
	if fault != nil {
		t.Fatalf("Parse() fault = %v, want nil", fault)
	}

	ack, ok := msg.(*domain.Ack)
	if !ok {
		t.Fatalf("Parse() returned %T, want *domain.Ack", msg)
	}
	if ack.ID != "e-7" {
		t.Errorf("id = %q, want e-7", ack.ID)
	}
	want := time.Date(2025, 3, 1, 10, 30, 1, 250000000, time.UTC)
	if !ack.SentAt.Equal(want) {
		t.Errorf("sent_at = %v, want %v", ack.SentAt, want)
	}
}

func TestParse_ExtraFieldsIgnored(t *testing.T) {
	raw := `{"type":"ack","id":"e-1","sent_at":"2025-03-01T10:30:00Z","trace_id":"abc","hops":3}`

	if _, fault := Parse([]byte(raw)); fault != nil {
		t.Errorf("Parse() fault = %v, want nil", fault)
	}
}

func TestParse_Faults(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantKind  domain.FaultKind
		wantField string
	}{
		{"not json", `{broken`, domain.FaultInvalidJSON, ""},
		{"top-level array", `[1,2,3]`, domain.FaultInvalidJSON, ""},
		{"top-level string", `"hello"`, domain.FaultInvalidJSON, ""},
		{"top-level null", `null`, domain.FaultInvalidJSON, ""},
		{"missing type", `{"id":"e-1"}`, domain.FaultMissingField, "type"},
		{"type not a string", `{"type":7}`, domain.FaultInvalidType, "type"},
		{"unknown type", `{"type":"ping","id":"e-1","sent_at":"2025-03-01T10:30:00Z"}`, domain.FaultInvalidValue, "type"},
		{"event missing id", `{"type":"event","sent_at":"2025-03-01T10:30:00Z","status":"normal","payload":{}}`, domain.FaultMissingField, "id"},
		{"event id not a string", `{"type":"event","id":42,"sent_at":"2025-03-01T10:30:00Z","status":"normal","payload":{}}`, domain.FaultInvalidType, "id"},
		{"event missing sent_at", `{"type":"event","id":"e-1","status":"normal","payload":{}}`, domain.FaultMissingField, "sent_at"},
		{"event sent_at not a string", `{"type":"event","id":"e-1","sent_at":1234,"status":"normal","payload":{}}`, domain.FaultInvalidType, "sent_at"},
		{"event sent_at unparsable", `{"type":"event","id":"e-1","sent_at":"yesterday","status":"normal","payload":{}}`, domain.FaultInvalidValue, "sent_at"},
		{"event missing status", `{"type":"event","id":"e-1","sent_at":"2025-03-01T10:30:00Z","payload":{}}`, domain.FaultMissingField, "status"},
		{"event status not a string", `{"type":"event","id":"e-1","sent_at":"2025-03-01T10:30:00Z","status":1,"payload":{}}`, domain.FaultInvalidType, "status"},
		{"event unknown status", `{"type":"event","id":"e-1","sent_at":"2025-03-01T10:30:00Z","status":"warning","payload":{}}`, domain.FaultInvalidValue, "status"},
		{"event reason not a string", `{"type":"event","id":"e-1","sent_at":"2025-03-01T10:30:00Z","status":"normal","reason":5,"payload":{}}`, domain.FaultInvalidType, "reason"},
		{"event missing payload", `{"type":"event","id":"e-1","sent_at":"2025-03-01T10:30:00Z","status":"normal"}`, domain.FaultMissingField, "payload"},
		{"event payload not an object", `{"type":"event","id":"e-1","sent_at":"2025-03-01T10:30:00Z","status":"normal","payload":[1]}`, domain.FaultInvalidType, "payload"},
		{"event payload null", `{"type":"event","id":"e-1","sent_at":"2025-03-01T10:30:00Z","status":"normal","payload":null}`, domain.FaultInvalidType, "payload"},
		{"ack missing id", `{"type":"ack","sent_at":"2025-03-01T10:30:00Z"}`, domain.FaultMissingField, "id"},
		{"ack missing sent_at", `{"type":"ack","id":"e-1"}`, domain.FaultMissingField, "sent_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, fault := Parse([]byte(tt.raw))
			if msg != nil {
				t.Errorf("Parse() message = %v, want nil", msg)
			}
			if fault == nil {
				t.Fatalf("Parse() fault = nil, want kind %v", tt.wantKind)
			}
			if fault.Kind != tt.wantKind {
				t.Errorf("fault kind = %v, want %v", fault.Kind, tt.wantKind)
			}
			if fault.Field != tt.wantField {
				t.Errorf("fault field = %q, want %q", fault.Field, tt.wantField)
			}
		})
	}
}

func TestParse_TimestampFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"utc zulu", "2025-03-01T10:30:00Z", time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"microseconds", "2025-03-01T10:30:00.123456Z", time.Date(2025, 3, 1, 10, 30, 0, 123456000, time.UTC)},
		{"offset with colon", "2025-03-01T12:30:00+02:00", time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"offset without colon", "2025-03-01T12:30:00.000000+0200", time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"no zone read as utc", "2025-03-01T10:30:00.500000", time.Date(2025, 3, 1, 10, 30, 0, 500000000, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTime(tt.raw)
			if err != nil {
				t.Fatalf("parseTime(%q) error = %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTime(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMarshalEvent(t *testing.T) {
	ev := &domain.Event{
		ID:      "e-1",
		SentAt:  time.Date(2025, 3, 1, 10, 30, 0, 123456000, time.UTC),
		Status:  domain.StatusNormal,
		Payload: map[string]interface{}{"op": "echo"},
	}

	data, err := MarshalEvent(ev)
	if err != nil {
		t.Fatalf("MarshalEvent() error = %v", err)
	}

	want := `{"type":"event","id":"e-1","sent_at":"2025-03-01T10:30:00.123456Z","status":"normal","payload":{"op":"echo"}}`
	if string(data) != want {
		t.Errorf("MarshalEvent() = %s, want %s", data, want)
	}
}

func TestMarshalEvent_NilPayload(t *testing.T) {
	ev := &domain.Event{
		ID:     "e-2",
		SentAt: time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
		Status: domain.StatusFatal,
		Reason: "shutting down",
	}

	data, err := MarshalEvent(ev)
	if err != nil {
		t.Fatalf("MarshalEvent() error = %v", err)
	}

	want := `{"type":"event","id":"e-2","sent_at":"2025-03-01T10:30:00.000000Z","status":"fatal","reason":"shutting down","payload":{}}`
	if string(data) != want {
		t.Errorf("MarshalEvent() = %s, want %s", data, want)
	}
}

func TestMarshalAck(t *testing.T) {
	ack := &domain.Ack{
		ID:     "e-1",
		SentAt: time.Date(2025, 3, 1, 10, 30, 1, 0, time.UTC),
	}

	data, err := MarshalAck(ack)
	if err != nil {
		t.Fatalf("MarshalAck() error = %v", err)
	}

	want := `{"type":"ack","id":"e-1","sent_at":"2025-03-01T10:30:01.000000Z"}`
	if string(data) != want {
		t.Errorf("MarshalAck() = %s, want %s", data, want)
	}
}

func TestMarshalEvent_ParsesBack(t *testing.T) {
	in := &domain.Event{
		ID:      "e-9",
		SentAt:  time.Date(2025, 3, 1, 10, 30, 0, 42999, time.UTC),
		Status:  domain.StatusError,
		Reason:  "degraded",
		Payload: map[string]interface{}{"attempt": 2.0},
	}

	data, err := MarshalEvent(in)
	if err != nil {
		t.Fatalf("MarshalEvent() error = %v", err)
	}
	msg, fault := Parse(data)
	if fault != nil {
		t.Fatalf("Parse() fault = %v", fault)
	}

	out := msg.(*domain.Event)
	if out.ID != in.ID || out.Status != in.Status || out.Reason != in.Reason {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	// Encoding truncates to microseconds.
	if !out.SentAt.Equal(time.Date(2025, 3, 1, 10, 30, 0, 42000, time.UTC)) {
		t.Errorf("sent_at = %v", out.SentAt)
	}
	if out.Payload["attempt"] != 2.0 {
		t.Errorf("payload = %v", out.Payload)
	}
}
