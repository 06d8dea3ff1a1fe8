package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/serene/backend/internal/model"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
	"github.com/zhouzirui/serene/backend/internal/store"
)

const (
	// HistoryLimit is how many prior messages condition a reply.
	HistoryLimit = 20
	// SharedJournalLimit is how many shared journal entries are handed to the generator.
	SharedJournalLimit = 3
	defaultEmotion     = "neutral"
)

// Classifier labels a message with an emotion. It never fails.
type Classifier interface {
	Analyze(ctx context.Context, text string) sentiment.Result
}

// Generator produces the assistant reply. It never fails.
type Generator interface {
	Generate(ctx context.Context, req ai.Request) ai.Reply
}

// Repository is the part of the store the chat flow touches.
type Repository interface {
	store.Conversations
	SharedJournals(ctx context.Context, uid string, limit int) ([]wellness.JournalEntry, error)
}

// SendRequest is one user turn.
type SendRequest struct {
	UserID         string
	Message        string
	ConversationID string
	// Sentiment is used as-is when the caller already classified the message.
	Sentiment *sentiment.Result
}

// SendResult is the persisted outcome of a turn.
type SendResult struct {
	ConversationID string           `json:"conversation_id"`
	Response       string           `json:"response"`
	Sentiment      sentiment.Result `json:"sentiment"`
	Degraded       bool             `json:"-"`
}

// Service runs the send-message flow: classify, load history, generate, persist.
type Service struct {
	store      Repository
	classifier Classifier
	generator  Generator
}

// NewService wires the chat flow.
func NewService(repo Repository, classifier Classifier, generator Generator) *Service {
	return &Service{store: repo, classifier: classifier, generator: generator}
}

// Send answers one user message and stores both turns, creating the conversation on the
// first message. An unknown ConversationID yields model.ErrNotFound.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return SendResult{}, model.Invalid("No message provided")
	}

	var history []chat.Message
	if req.ConversationID != "" {
		recent, err := s.store.RecentMessages(ctx, req.UserID, req.ConversationID, HistoryLimit)
		if err != nil {
			return SendResult{}, fmt.Errorf("load history: %w", err)
		}
		history = recent
	}

	var result sentiment.Result
	if req.Sentiment != nil && req.Sentiment.Emotion != "" {
		result = *req.Sentiment
	} else {
		result = s.classifier.Analyze(ctx, message)
	}

	emotion := result.Emotion
	if emotion == "" {
		emotion = defaultEmotion
	}

	reply := s.generator.Generate(ctx, ai.Request{
		Message:  message,
		Emotion:  emotion,
		History:  chat.Turns(history),
		Journals: s.sharedJournals(ctx, req.UserID),
	})

	annotated := result
	conv, err := s.store.AppendMessages(ctx, req.UserID, req.ConversationID,
		chat.Message{Sender: chat.SenderUser, Content: message, Sentiment: &annotated},
		chat.Message{Sender: chat.SenderAssistant, Content: reply.Text},
	)
	if err != nil {
		return SendResult{}, fmt.Errorf("save messages: %w", err)
	}

	log.Info().
		Str("user_id", req.UserID).
		Str("conversation_id", conv.ID).
		Str("emotion", emotion).
		Bool("sentiment_degraded", result.Degraded()).
		Bool("response_degraded", reply.Degraded).
		Msg("chat turn stored")

	return SendResult{
		ConversationID: conv.ID,
		Response:       reply.Text,
		Sentiment:      result,
		Degraded:       reply.Degraded,
	}, nil
}

// Preview answers without authentication or persistence, using caller-supplied history.
func (s *Service) Preview(ctx context.Context, message string, history []chat.Turn) (sentiment.Result, ai.Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return sentiment.Result{}, ai.Reply{}, model.Invalid("No message provided")
	}

	result := s.classifier.Analyze(ctx, message)
	emotion := result.Emotion
	if emotion == "" {
		emotion = defaultEmotion
	}
	reply := s.generator.Generate(ctx, ai.Request{Message: message, Emotion: emotion, History: history})
	return result, reply, nil
}

// sharedJournals is best effort: journal context is optional for a reply.
func (s *Service) sharedJournals(ctx context.Context, uid string) []string {
	entries, err := s.store.SharedJournals(ctx, uid, SharedJournalLimit)
	if err != nil {
		log.Warn().Err(err).Str("user_id", uid).Msg("load shared journals failed, replying without them")
		return nil
	}
	contents := make([]string, 0, len(entries))
	for _, entry := range entries {
		text := entry.Content
		if entry.Title != "" {
			text = entry.Title + ": " + text
		}
		contents = append(contents, text)
	}
	return contents
}
