package realtime

import "time"

// Message is the envelope for every frame pushed to admin sessions.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Server-to-client message types.
const (
	TypeConnectionEstablished = "connection_established"
	TypeNewEvent              = "new_event"
	TypeNewAlert              = "new_alert"
	TypeSystemStatus          = "system_status"
	TypePong                  = "pong"
	TypeSubscribed            = "subscribed"
)

// clientMessage is what connected sessions may send back. Timestamp is
// opaque; pings echo it back so the client can measure round trips.
type clientMessage struct {
	Type      string      `json:"type"`
	Channels  []string    `json:"channels,omitempty"`
	Timestamp interface{} `json:"timestamp,omitempty"`
}
