package api

import "time"

// Message is one conversation entry as the backend stores it.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// Conversation is the authoritative, ordered message list for one
// conversation.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Messages []Message `json:"messages"`
}

// SendMessageRequest is the payload for posting a new user message.
type SendMessageRequest struct {
	Content string `json:"content"`

	// Stream requests the line-delimited event stream reply. The backend
	// may still answer with a single JSON document.
	Stream bool `json:"stream"`
}

// envelope is the backend's standard JSON response wrapper.
type envelope[T any] struct {
	Data T `json:"data"`
}
