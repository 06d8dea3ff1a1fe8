package chat

import (
	"time"

	"github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
)

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is a single immutable turn inside a conversation.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Sender         string            `json:"sender"`
	Content        string            `json:"content"`
	Timestamp      time.Time         `json:"timestamp"`
	Sentiment      *sentiment.Result `json:"sentiment"`
}

// Turn is the role/content pair handed to the response generator.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turns converts stored messages into generator turns, dropping empty content.
func Turns(messages []Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		role := SenderUser
		if msg.Sender != SenderUser {
			role = SenderAssistant
		}
		turns = append(turns, Turn{Role: role, Content: msg.Content})
	}
	return turns
}
