package amqp

import (
	"encoding/json"
	"time"
)

// ApplicationRegisteredMessage is the lightweight event published when an
// analysis run is registered. It carries only the ID and status; the worker
// fetches the full application from storage.
type ApplicationRegisteredMessage struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NewApplicationRegisteredMessage creates a registration event.
func NewApplicationRegisteredMessage(id, status string) *ApplicationRegisteredMessage {
	return &ApplicationRegisteredMessage{
		ID:        id,
		Status:    status,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ApplicationRegisteredMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ApplicationRegisteredMessageFromJSON creates a message from JSON bytes
func ApplicationRegisteredMessageFromJSON(data []byte) (*ApplicationRegisteredMessage, error) {
	var msg ApplicationRegisteredMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
