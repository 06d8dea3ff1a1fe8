package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/serene/backend/internal/logger"
	"github.com/zhouzirui/serene/backend/internal/model"
)

func errorBody(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body["error"]
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", fmt.Errorf("wrap: %w", model.Invalid("title is required")), http.StatusBadRequest, "title is required"},
		{"not found", fmt.Errorf("load: %w", model.ErrNotFound), http.StatusNotFound, "Goal not found"},
		{"unauthorized", model.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		{"storage", errors.New("firestore unavailable"), http.StatusInternalServerError, "firestore unavailable"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			RespondServiceError(resp, tc.err, "Goal not found")
			assert.Equal(t, tc.status, resp.Code)
			assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
			assert.Equal(t, tc.msg, errorBody(t, resp))
		})
	}
}

func TestRespondServiceErrorLogsStack(t *testing.T) {
	prevLogger, prevMarshaler := log.Logger, zerolog.ErrorStackMarshaler
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.ErrorStackMarshaler = prevMarshaler
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	logger.New("serene-test", "info")
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	resp := httptest.NewRecorder()
	RespondServiceError(resp, errors.New("firestore unavailable"), "")
	require.Equal(t, http.StatusInternalServerError, resp.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "firestore unavailable", entry[zerolog.ErrorFieldName])
	assert.NotEmpty(t, entry[zerolog.ErrorStackFieldName], "500s carry a stack")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Message string `json:"message"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "hi", dst.Message)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := DecodeJSON(req, &dst)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, "No data provided", err.Error())

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{broken"))
	err = DecodeJSON(req, &dst)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, "Invalid JSON body", err.Error())
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5", nil)
	n, err := QueryInt(req, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = QueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	for _, raw := range []string{"0", "-3", "abc"} {
		_, err = QueryInt(httptest.NewRequest(http.MethodGet, "/?days="+raw, nil), "days", 30)
		assert.ErrorIs(t, err, model.ErrValidation, raw)
	}
}
