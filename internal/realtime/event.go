// Package realtime carries chat over an authenticated websocket. Messages
// go through the same assistant flow as the REST endpoints.
package realtime

// Client event types.
const (
	EventJoin    = "join"
	EventLeave   = "leave"
	EventMessage = "message"
	EventTyping  = "typing"
)

// Server event types. Typing is relayed in both directions.
const (
	EventJoined = "joined"
	EventLeft   = "left"
	EventChunk  = "chunk"
	EventReply  = "reply"
	EventError  = "error"
)

// Event is the JSON frame exchanged in both directions.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Role      string `json:"role,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

func errorEvent(sessionID, msg string) Event {
	return Event{Type: EventError, SessionID: sessionID, Error: msg}
}
