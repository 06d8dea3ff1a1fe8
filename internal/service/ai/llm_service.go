package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

const historyLimit = 20

// Request is everything the generator conditions a reply on.
type Request struct {
	Message string
	Emotion string
	History []chat.Turn
	// Journals holds entries the user agreed to share with the assistant.
	Journals []string
}

// Reply is a generated response. Degraded replies come from the canned fallback table.
type Reply struct {
	Text     string
	Degraded bool
}

// Service encapsulates supportive-listener response generation.
type Service struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	timeout time.Duration
}

// NewService compiles the prompt chain around chatModel. A nil chatModel yields a service
// that always answers from the fallback table.
func NewService(ctx context.Context, chatModel model.BaseChatModel, timeout time.Duration) (*Service, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	svc := &Service{timeout: timeout}
	if chatModel == nil {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	svc.chain = runnable
	return svc, nil
}

// Enabled reports whether a chat model is wired in.
func (s *Service) Enabled() bool {
	return s != nil && s.chain != nil
}

// Generate never fails: any problem with the chat model yields the fallback reply for the emotion.
func (s *Service) Generate(ctx context.Context, req Request) Reply {
	if !s.Enabled() {
		return Reply{Text: FallbackReply(req.Emotion), Degraded: true}
	}

	text, err := s.complete(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("emotion", req.Emotion).Msg("chat completion failed, using fallback")
		return Reply{Text: FallbackReply(req.Emotion), Degraded: true}
	}

	log.Debug().Str("emotion", req.Emotion).Int("history", len(req.History)).Int("length", len(text)).Msg("generated response")
	return Reply{Text: text}
}

func (s *Service) complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.chain.Invoke(ctx, buildChainInput(req))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", errors.New("empty completion")
	}

	text := strings.TrimSpace(response.Content)
	if text == "" {
		return "", errors.New("completion has no content")
	}
	return text, nil
}

func buildChainInput(req Request) map[string]any {
	return map[string]any{
		"system":  BuildSystemPrompt(req.Emotion, req.Journals),
		"history": buildHistoryMessages(req.History),
		"query":   req.Message,
	}
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.SenderAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}

	return history
}
