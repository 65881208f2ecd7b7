// Package server реализует HTTP-границу для функциональной платформы:
// проверку работоспособности, прием webhook Bot API и прокси к инструментам.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"telegram-mcp/internal/pkg/config"
	"telegram-mcp/internal/tools"
)

// maxBodySize ограничивает тело запросов /webhook и /mcp-proxy.
const maxBodySize = 1 << 20

// ToolCaller выполняет инструмент по имени; реализуется tools.Dispatcher.
type ToolCaller interface {
	Call(ctx context.Context, name string, raw map[string]any) (any, error)
}

// UpdateIngester принимает обновление Bot API; реализуется botapi.Transport.
type UpdateIngester interface {
	Ingest(update tgbotapi.Update) bool
}

// Option определяет функциональную опцию для Server.
type Option func(*Server)

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithIngester включает прием обновлений на POST /webhook.
func WithIngester(i UpdateIngester) Option {
	return func(s *Server) {
		s.ingester = i
	}
}

// WithMCPHandler монтирует транспорт MCP (streamable HTTP) на /mcp.
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) {
		s.mcp = h
	}
}

// WithClock подменяет источник времени для /health.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	cfg        *config.Config
	caller     ToolCaller
	ingester   UpdateIngester
	mcp        http.Handler
	log        *slog.Logger
	now        func() time.Time
}

// New создает новый экземпляр Server. caller может быть nil, если токен бота не задан:
// тогда /mcp-proxy отвечает ошибкой InternalError.
func New(cfg *config.Config, caller ToolCaller, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		caller: caller,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "http")

	s.HTTPServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Промежуточное ПО
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(requestID)

	r.Get("/", s.handleInfo)
	r.Get("/health", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)
	r.Post("/mcp-proxy", s.handleProxy)
	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
	}
	return r
}

// ListenAndServe запускает HTTP-сервер
func (s *Server) ListenAndServe() error {
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	return s.HTTPServer.Shutdown(ctx)
}

type requestIDKey struct{}

// requestID присваивает запросу идентификатор (X-Request-ID), если клиент его не передал.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    tools.ServerName,
		"version": tools.ServerVersion,
		"status":  "running",
		"endpoints": []string{
			"GET /health", "POST /webhook", "POST /mcp-proxy", "/mcp",
		},
	})
}

// HealthResponse - ответ GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"`
	Environment   string `json:"environment"`
	BotConfigured bool   `json:"botConfigured"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Service:       tools.ServerName,
		Version:       tools.ServerVersion,
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		Environment:   s.cfg.Environment,
		BotConfigured: s.cfg.BotConfigured(),
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "cannot read request body"})
		return
	}

	var envelope struct {
		UpdateID *int `json:"update_id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "malformed JSON"})
		return
	}
	if envelope.UpdateID == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "update_id is required"})
		return
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "malformed update"})
		return
	}

	if s.ingester == nil {
		s.log.ErrorContext(r.Context(), "Webhook received but bot is not configured", "update_id", update.UpdateID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "bot is not configured"})
		return
	}

	cached := s.ingester.Ingest(update)
	s.log.DebugContext(r.Context(), "Webhook update processed",
		"update_id", update.UpdateID, "cached", cached, "request_id", requestIDFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ProxyRequest - тело POST /mcp-proxy.
type ProxyRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// ProxyResponse - ответ POST /mcp-proxy.
type ProxyResponse struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Error   *tools.ToolError `json:"error,omitempty"`
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := requestIDFrom(ctx)

	var req ProxyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		s.writeProxyError(w, reqID, tools.InvalidRequest("malformed JSON body"))
		return
	}
	if req.Action == "" {
		s.writeProxyError(w, reqID, tools.InvalidRequest("action is required"))
		return
	}
	if s.caller == nil {
		s.writeProxyError(w, reqID, tools.AsToolError(errors.New("bot is not configured")))
		return
	}

	data, err := s.caller.Call(ctx, req.Action, req.Params)
	if err != nil {
		s.writeProxyError(w, reqID, tools.AsToolError(err))
		return
	}

	s.log.InfoContext(ctx, "Proxy call completed", "action", req.Action, "request_id", reqID)
	writeJSON(w, http.StatusOK, ProxyResponse{Success: true, Data: data})
}

func (s *Server) writeProxyError(w http.ResponseWriter, reqID string, te *tools.ToolError) {
	status := http.StatusInternalServerError
	if te.IsClientError() {
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("Proxy call failed", "error", te.Message, "error_code", te.Code, "request_id", reqID)
	} else {
		s.log.Warn("Proxy call rejected", "error", te.Message, "error_code", te.Code, "request_id", reqID)
	}
	writeJSON(w, status, ProxyResponse{Success: false, Error: te})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
