package chat

import "time"

// State is the chat widget's interaction state.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingReply State = "awaiting-reply"
)

// Session captures an anonymous assistant conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is a consistent read of a conversation.
type Snapshot struct {
	Session  Session   `json:"session"`
	State    State     `json:"state"`
	Messages []Message `json:"messages"`
}
