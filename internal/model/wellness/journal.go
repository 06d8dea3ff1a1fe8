package wellness

import "time"

// JournalEntry is a free-form diary entry. ShareWithAI records the owner's consent
// to hand the content to the response generator as context.
type JournalEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ShareWithAI bool      `json:"share_with_ai"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
