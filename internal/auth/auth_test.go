package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/serene/backend/internal/model"
)

type stubVerifier struct {
	tokens map[string]string
	calls  int
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, token string) (string, error) {
	s.calls++
	uid, ok := s.tokens[token]
	if !ok {
		return "", errors.New("token expired")
	}
	return uid, nil
}

func TestParseBearer(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"BEARER   abc", "abc", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Basic abc", "", false},
		{"Bearer abc def", "", false},
		{"abc", "", false},
	}
	for _, tc := range cases {
		token, ok := ParseBearer(tc.header)
		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.token, token, tc.header)
	}
}

func TestAuthenticate(t *testing.T) {
	v := &stubVerifier{tokens: map[string]string{"good": "user-1"}}
	ctx := context.Background()

	uid, err := Authenticate(ctx, v, "Bearer good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)

	_, err = Authenticate(ctx, v, "Bearer bad")
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	assert.NotContains(t, err.Error(), "expired")

	calls := v.calls
	_, err = Authenticate(ctx, v, "Token good")
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	assert.Equal(t, calls, v.calls, "malformed headers must not reach the identity service")

	_, err = Authenticate(ctx, nil, "Bearer good")
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestMiddleware(t *testing.T) {
	v := &stubVerifier{tokens: map[string]string{"good": "user-1"}}
	var seen string
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := map[string]int{
		"":            http.StatusUnauthorized,
		"Bearer bad":  http.StatusUnauthorized,
		"Bearer":      http.StatusUnauthorized,
		"Bearer good": http.StatusNoContent,
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, want, resp.Code, header)
	}
	assert.Equal(t, "user-1", seen)
}

func TestJWTProviderRoundTrip(t *testing.T) {
	p := NewJWTProvider("secret", "serene")
	token, err := p.Issue("user-42", time.Minute)
	require.NoError(t, err)

	uid, err := p.VerifyIDToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", uid)
}

func TestJWTProviderRejects(t *testing.T) {
	p := NewJWTProvider("secret", "serene")
	ctx := context.Background()

	expired, err := p.Issue("user-42", -time.Minute)
	require.NoError(t, err)
	_, err = p.VerifyIDToken(ctx, expired)
	assert.Error(t, err)

	foreign, err := NewJWTProvider("other", "serene").Issue("user-42", time.Minute)
	require.NoError(t, err)
	_, err = p.VerifyIDToken(ctx, foreign)
	assert.Error(t, err)

	wrongIssuer, err := NewJWTProvider("secret", "elsewhere").Issue("user-42", time.Minute)
	require.NoError(t, err)
	_, err = p.VerifyIDToken(ctx, wrongIssuer)
	assert.Error(t, err)

	_, err = p.VerifyIDToken(ctx, "not-a-jwt")
	assert.Error(t, err)
}
