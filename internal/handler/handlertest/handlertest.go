// Package handlertest wires handlers behind the auth middleware for HTTP tests.
package handlertest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/serene/backend/internal/auth"
)

const Secret = "handler-test-secret"

// Env is a router whose routes require a token issued by Provider.
type Env struct {
	Router   *chi.Mux
	Provider *auth.JWTProvider
}

// New mounts register inside an authenticated group.
func New(register func(chi.Router)) *Env {
	provider := auth.NewJWTProvider(Secret, "")
	r := chi.NewRouter()
	r.Group(func(authed chi.Router) {
		authed.Use(auth.Middleware(provider))
		register(authed)
	})
	return &Env{Router: r, Provider: provider}
}

// Token issues a one-hour token for uid.
func (e *Env) Token(t *testing.T, uid string) string {
	t.Helper()
	token, err := e.Provider.Issue(uid, time.Hour)
	require.NoError(t, err)
	return token
}

// Do sends body as JSON; a nil body sends nothing, a string is sent verbatim.
func (e *Env) Do(t *testing.T, method, path, uid string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return e.Send(t, req, uid)
}

// Send authenticates req as uid and serves it.
func (e *Env) Send(t *testing.T, req *http.Request, uid string) *httptest.ResponseRecorder {
	t.Helper()
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token(t, uid))
	}
	resp := httptest.NewRecorder()
	e.Router.ServeHTTP(resp, req)
	return resp
}

// Decode unmarshals the response body into T.
func Decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

// ErrorOf returns the "error" field of a JSON error body.
func ErrorOf(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	return Decode[map[string]string](t, resp)["error"]
}
