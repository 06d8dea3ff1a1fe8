package sentiment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	analysis "github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/serene/backend/internal/config"
)

// Service classifies message sentiment with a hosted go_emotions model and falls back to
// keyword scoring whenever the model cannot be reached or answers with something unusable.
type Service struct {
	client  *resty.Client
	model   string
	timeout time.Duration
	enabled bool
}

// NewService creates the classifier client. Without an API key every call uses the fallback.
func NewService(cfg config.SentimentConfig) *Service {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Service{
		client:  client,
		model:   cfg.Model,
		timeout: timeout,
		enabled: cfg.Enabled(),
	}
}

// Enabled reports whether the hosted classifier is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// Analyze never fails: the result is either the classifier's verdict or a degraded
// fallback carrying analysis.FallbackNote.
func (s *Service) Analyze(ctx context.Context, text string) analysis.Result {
	if !s.Enabled() {
		return analysis.Fallback(text)
	}

	result, err := s.classify(ctx, text)
	if err != nil {
		log.Warn().Err(err).Str("model", s.model).Msg("sentiment classifier failed, using fallback")
		return analysis.Fallback(text)
	}
	return result
}

type classifyRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters"`
}

func (s *Service) classify(ctx context.Context, text string) (analysis.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(&classifyRequest{
			Inputs:     text,
			Parameters: map[string]any{"truncation": true},
		}).
		Post("/models/" + s.model)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("classifier request: %w", err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return analysis.Result{}, fmt.Errorf("classifier status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	out, err := decodeOutput(resp.Body())
	if err != nil {
		return analysis.Result{}, err
	}
	return out.result()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
