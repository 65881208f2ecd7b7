package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenMaskerHandler_Handle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "mask telegram token in message",
			input:    `Post "https://api.telegram.org/bot8462697481:AAEJSXuTcb2F1Js2sWiK0TVWvxbHL9xX05Q/getUpdates": net/http: request canceled`,
			expected: `Post "https://api.telegram.org/bot***:***masked-token***/getUpdates": net/http: request canceled`,
		},
		{
			name:     "no token in message",
			input:    "This is a normal log message without tokens",
			expected: "This is a normal log message without tokens",
		},
		{
			name:     "multiple tokens in message",
			input:    "Token1: bot123456789:AAABCdEfGhIjKlMnOpQrStUvWxYz1234567, Token2: bot987654321:AAzZzYyXxWwVvUuTtSsRrQqPpOnNmLlKkJjI",
			expected: "Token1: bot***:***masked-token***, Token2: bot***:***masked-token***",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			logger := NewMaskedLogger(slog.NewJSONHandler(&buf, nil))

			logger.Info(tt.input)

			expectedEscaped := strings.ReplaceAll(tt.expected, "\"", "\\\"")
			assert.Contains(t, buf.String(), expectedEscaped)
		})
	}
}

func TestTokenMaskerHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewMaskedLogger(slog.NewJSONHandler(&buf, nil))

	logger = logger.With(slog.String("url", "https://api.telegram.org/"+sampleToken+"/getMe"))
	logger.Info("message with token in attr")

	assert.NotContains(t, buf.String(), sampleToken)
	assert.Contains(t, buf.String(), "***masked-token***")
}

func TestTokenMaskerHandler_SensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewMaskedLogger(slog.NewJSONHandler(&buf, nil), WithSensitiveKeys("Session"))

	logger.With("api_hash", "0123456789abcdef0123456789abcdef").
		WithGroup("auth").
		Info("login step",
			"phone", "+79990001122",
			"code", 12345,
			"password", "",
			"session", "blob",
			"state", "needs_code",
		)

	out := buf.String()
	assert.NotContains(t, out, "0123456789abcdef")
	assert.NotContains(t, out, "+79990001122")
	assert.NotContains(t, out, "blob")
	assert.Contains(t, out, `"api_hash":"***"`)
	assert.Contains(t, out, `"auth":{"phone":"***","code":"***","password":"","session":"***","state":"needs_code"}`)
}

func TestMaskTokens(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{
			input:    `Post "https://api.telegram.org/bot8462697481:AAEJSXuTcb2F1Js2sWiK0TVWvxbHL9xX05Q/getUpdates"`,
			expected: `Post "https://api.telegram.org/bot***:***masked-token***/getUpdates"`,
		},
		{
			input:    "No token here",
			expected: "No token here",
		},
		{
			input:    "bot123:short",
			expected: "bot123:short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, maskTokens(tt.input))
		})
	}
}
