package log

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleToken = "bot8462697481:AAEJSXuTcb2F1Js2sWiK0TVWvxbHL9xX05Q"

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew(t *testing.T) {
	t.Run("json format masks error attrs", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New("info", "json", &buf)

		logger.Debug("hidden")
		logger.Error("request failed", "error", fmt.Errorf("wrapped: %w", errors.New("Post https://api.telegram.org/"+sampleToken+"/getMe")))

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.NotContains(t, out, sampleToken)
		assert.Contains(t, out, `"msg":"request failed"`)
		assert.Contains(t, out, "***masked-token***")
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New("debug", "text", &buf)

		logger.Debug("starting", "component", "bot")

		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), "component=bot")
	})
}

func TestTGBotAPIAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewTGBotAPIAdapter(New("debug", "json", &buf))

	adapter.Printf("Endpoint: %s, params: %v", "https://api.telegram.org/"+sampleToken+"/getUpdates", map[string]string{"offset": "1"})
	adapter.Println("Failed to get updates, retrying in 3 seconds...")

	out := buf.String()
	assert.NotContains(t, out, sampleToken)
	assert.Contains(t, out, "Failed to get updates, retrying in 3 seconds...")
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, "Endpoint: https://api.telegram.org/bot***:***masked-token***/getUpdates")
	assert.Contains(t, out, `"component":"tgbotapi"`)
}
