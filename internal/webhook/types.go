package webhook

import (
	"time"
)

type EventType string

const (
	EventMessageReceived     EventType = "message.received"
	EventSessionConnected    EventType = "session.connected"
	EventSessionDisconnected EventType = "session.disconnected"
	EventTestPing            EventType = "test.ping"
)

type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Event is the JSON body posted to registered webhook URLs.
type Event struct {
	EventType EventType              `json:"event_type"`
	ClientID  string                 `json:"client_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}
