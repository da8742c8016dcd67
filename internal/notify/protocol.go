package notify

import "encoding/json"

// Pusher protocol event names (protocol version 7).
const (
	evConnEstablished = "pusher:connection_established"
	evSubscribe       = "pusher:subscribe"
	evUnsubscribe     = "pusher:unsubscribe"
	evPing            = "pusher:ping"
	evPong            = "pusher:pong"
	evError           = "pusher:error"

	// evDeposit is the one application event the relay forwards.
	evDeposit = "deposit"
)

// frame is the wire envelope. Data is double-encoded for server-sent events
// (a JSON string containing JSON) but a plain object for client-sent ones,
// hence RawMessage.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type connEstablishedData struct {
	SocketID string `json:"socket_id"`
}

type subscribeData struct {
	Auth    string `json:"auth"`
	Channel string `json:"channel"`
}

type unsubscribeData struct {
	Channel string `json:"channel"`
}

// depositEvent carries the fields forwarded to the chat.
type depositEvent struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Network  string `json:"network"`
}

// decodeEventData unwraps the double encoding: try the payload as a JSON
// string first, then fall back to treating it as the object itself.
func decodeEventData(raw json.RawMessage, out any) error {
	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		return json.Unmarshal([]byte(inner), out)
	}
	return json.Unmarshal(raw, out)
}
