package firestore

import (
	"time"

	"github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
)

type conversationDoc struct {
	Title       string    `firestore:"title"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
	LastMessage string    `firestore:"last_message"`
}

func (d conversationDoc) model(id string) chat.Conversation {
	return chat.Conversation{
		ID:          id,
		Title:       d.Title,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		LastMessage: d.LastMessage,
	}
}

type sentimentDoc struct {
	Emotion    string             `firestore:"emotion"`
	Score      float64            `firestore:"sentiment_score"`
	Emotions   map[string]float64 `firestore:"emotions"`
	Confidence float64            `firestore:"confidence"`
	Note       string             `firestore:"note,omitempty"`
}

type messageDoc struct {
	Sender    string        `firestore:"sender"`
	Content   string        `firestore:"content"`
	Timestamp time.Time     `firestore:"timestamp"`
	Sentiment *sentimentDoc `firestore:"sentiment"`
}

func newMessageDoc(msg chat.Message, ts time.Time) messageDoc {
	doc := messageDoc{Sender: msg.Sender, Content: msg.Content, Timestamp: ts}
	if r := msg.Sentiment; r != nil {
		doc.Sentiment = &sentimentDoc{
			Emotion:    r.Emotion,
			Score:      r.Score,
			Emotions:   r.Emotions,
			Confidence: r.Confidence,
			Note:       r.Note,
		}
	}
	return doc
}

func (d messageDoc) model(id, conversationID string) chat.Message {
	msg := chat.Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         d.Sender,
		Content:        d.Content,
		Timestamp:      d.Timestamp,
	}
	if r := d.Sentiment; r != nil {
		msg.Sentiment = &sentiment.Result{
			Emotion:    r.Emotion,
			Score:      r.Score,
			Emotions:   r.Emotions,
			Confidence: r.Confidence,
			Note:       r.Note,
		}
	}
	return msg
}

type moodDoc struct {
	Mood      float64   `firestore:"mood"`
	Note      string    `firestore:"note"`
	Timestamp time.Time `firestore:"timestamp"`
}

func (d moodDoc) model(id string) wellness.MoodEntry {
	return wellness.MoodEntry{ID: id, Mood: d.Mood, Note: d.Note, Timestamp: d.Timestamp}
}

type journalDoc struct {
	Title       string    `firestore:"title"`
	Content     string    `firestore:"content"`
	ShareWithAI bool      `firestore:"share_with_ai"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func (d journalDoc) model(id string) wellness.JournalEntry {
	return wellness.JournalEntry{
		ID:          id,
		Title:       d.Title,
		Content:     d.Content,
		ShareWithAI: d.ShareWithAI,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type goalDoc struct {
	Title       string    `firestore:"title"`
	Description string    `firestore:"description"`
	Category    string    `firestore:"category"`
	TargetDate  string    `firestore:"target_date"`
	Completed   bool      `firestore:"completed"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func newGoalDoc(g wellness.Goal) goalDoc {
	return goalDoc{
		Title:       g.Title,
		Description: g.Description,
		Category:    g.Category,
		TargetDate:  g.TargetDate,
		Completed:   g.Completed,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func (d goalDoc) model(id string) wellness.Goal {
	return wellness.Goal{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		TargetDate:  d.TargetDate,
		Completed:   d.Completed,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
