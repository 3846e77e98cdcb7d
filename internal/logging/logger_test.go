package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useGlobal(t *testing.T, l *Logger) {
	t.Helper()
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	SetGlobalLogger(l)
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestJSONOutputCarriesServiceAndContext(t *testing.T) {
	var buf bytes.Buffer
	useGlobal(t, New(Config{Level: "debug", Format: "json", Output: &buf, Service: "mintflip"}))

	ctx := WithWallet(WithRequestID(context.Background(), "req-1"), "0xabc")
	WithContext(ctx).Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "mintflip", entry["service"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "0xabc", entry["wallet"])
	assert.Equal(t, "hello", entry["message"])
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "chatty", Output: &buf})

	l.zl.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestTextFormatIsReadable(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "TEXT", Output: &buf})

	l.Info("ready")
	assert.Contains(t, buf.String(), "ready")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestContextHelpersWithoutValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, Wallet(ctx))
}
