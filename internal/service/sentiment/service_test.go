package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analysis "github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/serene/backend/internal/config"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewService(config.SentimentConfig{
		APIKey:  "hf-test",
		Model:   "org/model",
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	})
}

func TestAnalyzeNestedScores(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/org/model", r.URL.Path)
		assert.Equal(t, "Bearer hf-test", r.Header.Get("Authorization"))

		var body classifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what a day", body.Inputs)
		assert.Equal(t, true, body.Parameters["truncation"])

		_, _ = w.Write([]byte(`[[{"label":"gratitude","score":0.81},{"label":"joy","score":0.12}]]`))
	})

	result := svc.Analyze(context.Background(), "what a day")

	assert.Equal(t, "gratitude", result.Emotion)
	assert.Equal(t, 0.8, result.Score)
	assert.Equal(t, 0.81, result.Confidence)
	assert.False(t, result.Degraded())
	assert.Len(t, result.Emotions, len(analysis.Labels))
}

func TestAnalyzeFlatScores(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"fear","score":0.6},{"label":"nervousness","score":0.3}]`))
	})

	result := svc.Analyze(context.Background(), "exam tomorrow")

	assert.Equal(t, "fear", result.Emotion)
	assert.Equal(t, -0.7, result.Score)
	assert.False(t, result.Degraded())
}

func TestAnalyzeLogits(t *testing.T) {
	logits := make([]float64, len(analysis.Labels))
	logits[17] = 5 // joy
	payload, err := json.Marshal([][]float64{logits})
	require.NoError(t, err)

	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	})

	result := svc.Analyze(context.Background(), "great news")

	assert.Equal(t, "joy", result.Emotion)
	assert.Equal(t, 0.9, result.Score)

	var total float64
	for _, p := range result.Emotions {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Greater(t, result.Confidence, 0.8)
}

func TestAnalyzeFallsBackOnServerError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
	})

	result := svc.Analyze(context.Background(), "I am happy and love this")

	assert.True(t, result.Degraded())
	assert.Equal(t, analysis.Fallback("I am happy and love this"), result)
}

func TestAnalyzeFallsBackOnUnknownShape(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"label":"joy"}`))
	})

	result := svc.Analyze(context.Background(), "I hate this, it's terrible")

	assert.True(t, result.Degraded())
	assert.Equal(t, "grief", result.Emotion)
}

func TestAnalyzeFallsBackOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	svc := NewService(config.SentimentConfig{APIKey: "k", Model: "m", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	result := svc.Analyze(context.Background(), "hope")

	assert.True(t, result.Degraded())
}

func TestAnalyzeWithoutKeyUsesFallback(t *testing.T) {
	svc := NewService(config.SentimentConfig{BaseURL: "http://127.0.0.1:1"})

	assert.False(t, svc.Enabled())
	assert.True(t, svc.Analyze(context.Background(), "fine").Degraded())
}

func TestDecodeOutputRejectsUnknownShapes(t *testing.T) {
	bodies := []string{
		`{}`,
		`[]`,
		`[[]]`,
		`["joy"]`,
		`[[true, false]]`,
		`null`,
	}
	for _, body := range bodies {
		_, err := decodeOutput([]byte(body))
		assert.ErrorIs(t, err, ErrUnrecognizedShape, body)
	}
}

func TestResultRejectsWrongLogitCount(t *testing.T) {
	out, err := decodeOutput([]byte(`[[0.1, 0.2, 0.3]]`))
	require.NoError(t, err)
	assert.Equal(t, kindLogits, out.kind)

	_, err = out.result()
	assert.ErrorIs(t, err, ErrUnrecognizedShape)
}
