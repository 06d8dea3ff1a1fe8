package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	New("serene-test", "debug")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	New("serene-test", "nonsense")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNewMarshalsErrorStacks(t *testing.T) {
	prevLogger, prevMarshaler := log.Logger, zerolog.ErrorStackMarshaler
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.ErrorStackMarshaler = prevMarshaler
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	New("serene-test", "info")

	var buf bytes.Buffer
	l := zerolog.New(&buf)
	l.Error().Stack().Err(errors.New("boom")).Msg("request failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "boom", entry[zerolog.ErrorFieldName])

	stack, ok := entry[zerolog.ErrorStackFieldName].([]any)
	require.True(t, ok, buf.String())
	assert.NotEmpty(t, stack)
}
