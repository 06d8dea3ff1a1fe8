package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/internal/store/memory"
)

const testSecret = "handler-test-secret"

type fixedClassifier struct{}

func (fixedClassifier) Analyze(_ context.Context, text string) sentiment.Result {
	return sentiment.Fallback(text)
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, req ai.Request) ai.Reply {
	return ai.Reply{Text: "[" + req.Emotion + "] " + req.Message}
}

type testEnv struct {
	router   *chi.Mux
	store    *memory.Store
	provider *auth.JWTProvider
}

func setupRouter() testEnv {
	st := memory.New()
	provider := auth.NewJWTProvider(testSecret, "")
	chatSvc := chatService.NewService(st, fixedClassifier{}, echoGenerator{})
	handler := New(chatSvc, fixedClassifier{}, st)

	r := chi.NewRouter()
	handler.RegisterPublicRoutes(r)
	r.Group(func(authed chi.Router) {
		authed.Use(auth.Middleware(provider))
		handler.RegisterRoutes(authed)
	})
	return testEnv{router: r, store: st, provider: provider}
}

func (e testEnv) token(t *testing.T, uid string) string {
	t.Helper()
	token, err := e.provider.Issue(uid, time.Hour)
	require.NoError(t, err)
	return token
}

func (e testEnv) do(t *testing.T, method, path, uid string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, uid))
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

func TestTestSentiment(t *testing.T) {
	env := setupRouter()

	resp := env.do(t, http.MethodPost, "/test_sentiment", "", map[string]string{"message": "I am happy and love this"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	body := decode[struct {
		Message   string           `json:"message"`
		Sentiment sentiment.Result `json:"sentiment"`
	}](t, resp)
	assert.Equal(t, "I am happy and love this", body.Message)
	assert.Equal(t, "joy", body.Sentiment.Emotion)
	assert.Equal(t, sentiment.FallbackNote, body.Sentiment.Note)
}

func TestTestSentimentMissingMessage(t *testing.T) {
	env := setupRouter()

	for _, body := range []any{map[string]string{}, map[string]string{"message": "  "}} {
		resp := env.do(t, http.MethodPost, "/test_sentiment", "", body)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.Code)
		}
		assert.Equal(t, "No message provided", decode[map[string]string](t, resp)["error"])
	}

	req := httptest.NewRequest(http.MethodPost, "/test_sentiment", bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestTestChat(t *testing.T) {
	env := setupRouter()

	resp := env.do(t, http.MethodPost, "/test_chat", "", map[string]any{
		"message": "I hate this, it's terrible",
		"conversation_history": []map[string]string{
			{"role": "user", "content": "hi"},
			{"role": "ai", "content": "hello"},
		},
	})
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "[grief] I hate this, it's terrible", body["response"])

	convs, err := env.store.ListConversations(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	env := setupRouter()

	resp := env.do(t, http.MethodPost, "/analyze_sentiment", "", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "No authorization header provided", decode[map[string]string](t, resp)["error"])

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", decode[map[string]string](t, rec)["error"])
}

func TestAnalyzeSentiment(t *testing.T) {
	env := setupRouter()

	resp := env.do(t, http.MethodPost, "/analyze_sentiment", "u1", map[string]string{"message": "The sky is blue"})
	require.Equal(t, http.StatusOK, resp.Code)

	result := decode[sentiment.Result](t, resp)
	assert.Equal(t, "sadness", result.Emotion)
	assert.Zero(t, result.Score)
	assert.Len(t, result.Emotions, len(sentiment.Labels))
}

func TestGenerateResponseFlow(t *testing.T) {
	env := setupRouter()

	resp := env.do(t, http.MethodPost, "/generate_response", "u1", map[string]any{
		"message":   "Today I feel great and hopeful about the future",
		"sentiment": map[string]any{"emotion": "joy", "sentiment_score": 1, "confidence": 0.9},
	})
	require.Equal(t, http.StatusOK, resp.Code)

	first := decode[map[string]string](t, resp)
	require.NotEmpty(t, first["conversation_id"])
	assert.Equal(t, "[joy] Today I feel great and hopeful about the future", first["response"])

	resp = env.do(t, http.MethodPost, "/generate_response", "u1", map[string]any{
		"message":         "still good",
		"conversation_id": first["conversation_id"],
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, first["conversation_id"], decode[map[string]string](t, resp)["conversation_id"])

	resp = env.do(t, http.MethodGet, "/conversations", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	convs := decode[[]chat.Conversation](t, resp)
	require.Len(t, convs, 1)
	assert.Equal(t, "Today I feel great and hopeful...", convs[0].Title)

	resp = env.do(t, http.MethodGet, "/conversation/"+first["conversation_id"], "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	transcript := decode[chat.Transcript](t, resp)
	require.Len(t, transcript.Messages, 4)
	assert.Equal(t, chat.SenderUser, transcript.Messages[0].Sender)
	require.NotNil(t, transcript.Messages[0].Sentiment)
	assert.Equal(t, "joy", transcript.Messages[0].Sentiment.Emotion)
	assert.Equal(t, chat.SenderAssistant, transcript.Messages[3].Sender)
}

func TestGenerateResponseUnknownConversation(t *testing.T) {
	env := setupRouter()

	resp := env.do(t, http.MethodPost, "/generate_response", "u1", map[string]any{
		"message":         "hello",
		"conversation_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Conversation not found", decode[map[string]string](t, resp)["error"])
}

func TestGenerateResponseRejectsInvalidSentiment(t *testing.T) {
	env := setupRouter()

	for name, supplied := range map[string]map[string]any{
		"score out of range": {"emotion": "joy", "sentiment_score": 5, "confidence": 0.9},
		"unknown label":      {"emotion": "ecstatic", "sentiment_score": 1, "confidence": 0.9},
		"bad breakdown":      {"emotion": "joy", "sentiment_score": 1, "confidence": 0.9, "emotions": map[string]float64{"joy": 3}},
	} {
		t.Run(name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/generate_response", "u1", map[string]any{
				"message":   "hello",
				"sentiment": supplied,
			})
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.NotEmpty(t, decode[map[string]string](t, resp)["error"])
		})
	}

	resp := env.do(t, http.MethodGet, "/conversations", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[[]chat.Conversation](t, resp))
}

func TestGetConversationOwnedByOtherUser(t *testing.T) {
	env := setupRouter()

	resp := env.do(t, http.MethodPost, "/generate_response", "owner", map[string]string{"message": "secret"})
	require.Equal(t, http.StatusOK, resp.Code)
	id := decode[map[string]string](t, resp)["conversation_id"]

	resp = env.do(t, http.MethodGet, "/conversation/"+id, "intruder", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.do(t, http.MethodGet, "/conversations", "intruder", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[[]chat.Conversation](t, resp))
}

func TestListConversationsLimit(t *testing.T) {
	env := setupRouter()

	for _, msg := range []string{"one", "two", "three"} {
		resp := env.do(t, http.MethodPost, "/generate_response", "u1", map[string]string{"message": msg})
		require.Equal(t, http.StatusOK, resp.Code)
	}

	resp := env.do(t, http.MethodGet, "/conversations?limit=2", "u1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]chat.Conversation](t, resp), 2)

	resp = env.do(t, http.MethodGet, "/conversations?limit=zero", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
