package chat

import (
	"time"
	"unicode/utf8"
)

const titleLimit = 30

// Conversation is a thread of user/assistant messages owned by one user.
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// LastMessage is the latest user message, shown as the thread snippet.
	LastMessage string    `json:"last_message,omitempty"`
}

// Transcript is a conversation together with its ordered messages.
type Transcript struct {
	Conversation
	Messages []Message `json:"messages"`
}

// DeriveTitle returns the first message unchanged when it fits in 30 characters,
// otherwise its first 30 characters followed by "...".
func DeriveTitle(firstMessage string) string {
	if utf8.RuneCountInString(firstMessage) <= titleLimit {
		return firstMessage
	}
	runes := []rune(firstMessage)
	return string(runes[:titleLimit]) + "..."
}
