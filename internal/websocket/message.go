package websocket

import (
	"encoding/json"
	"strings"

	"github.com/isdelr/disaster-tracker-be/internal/models"
)

// Actions exchanged over the socket.
const (
	ActionNewEvent      = "newEvent"      // server -> global subscribers
	ActionLocationEvent = "locationEvent" // server -> subscribers of the event's country
	ActionJoinLocation  = "joinLocation"  // client -> server
	ActionLeaveLocation = "leaveLocation" // client -> server
	ActionSubscribed    = "subscribed"
	ActionError         = "error"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// CountryPayload extracts a country from an inbound payload, which may be a
// bare string or {"country": "..."}.
func (m Message) CountryPayload() string {
	switch p := m.Payload.(type) {
	case string:
		return strings.TrimSpace(p)
	case map[string]interface{}:
		if c, ok := p["country"].(string); ok {
			return strings.TrimSpace(c)
		}
	}
	return ""
}

// NewEventMessage encodes ev under the given action.
func NewEventMessage(action string, ev models.Event) ([]byte, error) {
	return json.Marshal(Message{Action: action, Payload: ev})
}

// NewErrorMessage creates a JSON-encoded error message.
func NewErrorMessage(text string) []byte {
	b, _ := json.Marshal(Message{Action: ActionError, Payload: map[string]string{"error": text}})
	return b
}

// NewSubscribedMessage acknowledges a room change.
func NewSubscribedMessage(countries []string) []byte {
	if countries == nil {
		countries = []string{}
	}
	b, _ := json.Marshal(Message{Action: ActionSubscribed, Payload: map[string][]string{"countries": countries}})
	return b
}
