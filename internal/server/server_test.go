package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/pkg/config"
	"telegram-mcp/internal/tools"
)

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) Call(ctx context.Context, name string, raw map[string]any) (any, error) {
	args := m.Called(ctx, name, raw)
	return args.Get(0), args.Error(1)
}

type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) Ingest(update tgbotapi.Update) bool {
	return m.Called(update).Bool(0)
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server:      config.Server{Host: "localhost", Port: 8080},
		Telegram:    config.Telegram{BotToken: "123:abc"},
	}
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.HTTPServer.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeProxy(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

func TestServer_Health(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	srv := New(testConfig(), nil, WithClock(func() time.Time { return fixed }))

	rr := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, HealthResponse{
		Status:        "ok",
		Service:       "telegram-mcp",
		Version:       "2.0.0",
		Timestamp:     "2024-05-01T10:00:00Z",
		Environment:   "test",
		BotConfigured: true,
	}, resp)

	cfg := testConfig()
	cfg.Telegram.BotToken = ""
	rr = do(t, New(cfg, nil), http.MethodGet, "/health", "")
	assert.Contains(t, rr.Body.String(), `"botConfigured":false`)
}

func TestServer_Webhook(t *testing.T) {
	ingester := new(mockIngester)
	srv := New(testConfig(), nil, WithIngester(ingester))

	t.Run("accepts update", func(t *testing.T) {
		ingester.On("Ingest", mock.MatchedBy(func(u tgbotapi.Update) bool {
			return u.UpdateID == 10 && u.Message != nil && u.Message.Text == "hi"
		})).Return(true).Once()

		rr := do(t, srv, http.MethodPost, "/webhook",
			`{"update_id":10,"message":{"message_id":1,"date":1700000000,"chat":{"id":5,"type":"private"},"text":"hi"}}`)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
	})

	t.Run("update without message is still ok", func(t *testing.T) {
		ingester.On("Ingest", mock.Anything).Return(false).Once()

		rr := do(t, srv, http.MethodPost, "/webhook", `{"update_id":11}`)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing update_id", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/webhook", `{"message":{}}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/webhook", `{"update_id":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bot not configured", func(t *testing.T) {
		rr := do(t, New(testConfig(), nil), http.MethodPost, "/webhook", `{"update_id":12}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	ingester.AssertExpectations(t)
}

func TestServer_Proxy(t *testing.T) {
	caller := new(mockCaller)
	srv := New(testConfig(), caller)

	t.Run("success", func(t *testing.T) {
		caller.On("Call", mock.Anything, tools.ToolSendMessage, mock.MatchedBy(func(p map[string]any) bool {
			return p["chat_id"] == json.Number("5") && p["text"] == "hi"
		})).Return(domain.SendResult{Success: true, MessageID: 3, ChatID: 5, Date: 1}, nil).Once()

		rr := do(t, srv, http.MethodPost, "/mcp-proxy", `{"action":"send_message","params":{"chat_id":5,"text":"hi"}}`)
		assert.Equal(t, http.StatusOK, rr.Code)

		resp := decodeProxy(t, rr)
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, float64(3), resp["data"].(map[string]any)["message_id"])
		assert.NotContains(t, resp, "error")
	})

	t.Run("validation error is 400 with fields", func(t *testing.T) {
		verr := &domain.ValidationError{}
		verr.Add("text", "must be a non-empty string")
		caller.On("Call", mock.Anything, tools.ToolSendMessage, mock.Anything).Return(nil, verr).Once()

		rr := do(t, srv, http.MethodPost, "/mcp-proxy", `{"action":"send_message","params":{"chat_id":5}}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		resp := decodeProxy(t, rr)
		assert.Equal(t, false, resp["success"])
		errObj := resp["error"].(map[string]any)
		assert.Equal(t, float64(-32602), errObj["code"])
		assert.Len(t, errObj["fields"], 1)
	})

	t.Run("unknown action is 400", func(t *testing.T) {
		caller.On("Call", mock.Anything, "delete_chat", mock.Anything).Return(nil, tools.MethodNotFound("delete_chat")).Once()

		rr := do(t, srv, http.MethodPost, "/mcp-proxy", `{"action":"delete_chat","params":{}}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, float64(-32601), decodeProxy(t, rr)["error"].(map[string]any)["code"])
	})

	t.Run("transport error is 500", func(t *testing.T) {
		caller.On("Call", mock.Anything, tools.ToolGetChatInfo, mock.Anything).
			Return(nil, &domain.TransportError{Op: "getChat", Err: errors.New("Bad Request: chat not found")}).Once()

		rr := do(t, srv, http.MethodPost, "/mcp-proxy", `{"action":"get_chat_info","params":{"chat_id":"@nope"}}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)

		errObj := decodeProxy(t, rr)["error"].(map[string]any)
		assert.Equal(t, float64(-32603), errObj["code"])
		assert.Contains(t, errObj["message"], "chat not found")
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/mcp-proxy", `not json`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = do(t, srv, http.MethodPost, "/mcp-proxy", `{"params":{}}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	caller.AssertExpectations(t)

	t.Run("no dispatcher", func(t *testing.T) {
		rr := do(t, New(testConfig(), nil), http.MethodPost, "/mcp-proxy", `{"action":"list_messages","params":{}}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestServer_MCPMount(t *testing.T) {
	var hit bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusAccepted)
	})
	srv := New(testConfig(), nil, WithMCPHandler(h))

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	srv.HTTPServer.Handler.ServeHTTP(rr, req)

	assert.True(t, hit)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = do(t, New(testConfig(), nil), http.MethodPost, "/mcp", `{}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
