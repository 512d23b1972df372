package amqp

import (
	"testing"
	"time"
)

func TestApplicationRegisteredMessageRoundTrip(t *testing.T) {
	msg := NewApplicationRegisteredMessage("id-1", "Approved")
	if msg.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	back, err := ApplicationRegisteredMessageFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != "id-1" || back.Status != "Approved" {
		t.Errorf("round trip = %+v", back)
	}
	if !back.Timestamp.Truncate(time.Second).Equal(msg.Timestamp.Truncate(time.Second)) {
		t.Errorf("timestamp round trip mismatch")
	}
}

func TestApplicationRegisteredMessageFromJSONRejectsGarbage(t *testing.T) {
	if _, err := ApplicationRegisteredMessageFromJSON([]byte("not json")); err == nil {
		t.Error("expected error")
	}
}
