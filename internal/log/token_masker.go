package log

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// redacted заменяет значения секретных атрибутов целиком.
const redacted = "***"

// defaultSensitiveKeys - атрибуты, значения которых никогда не попадают в лог:
// данные входа MTProto и токен бота.
var defaultSensitiveKeys = []string{"token", "bot_token", "api_hash", "password", "code", "phone", "phone_number"}

// TokenMaskerHandler - обертка для slog.Handler, которая маскирует токены бота в тексте
// и полностью скрывает значения секретных атрибутов.
type TokenMaskerHandler struct {
	handler   slog.Handler
	sensitive map[string]struct{}
}

// MaskerOption настраивает TokenMaskerHandler.
type MaskerOption func(*TokenMaskerHandler)

// WithSensitiveKeys добавляет имена атрибутов, значения которых нужно скрывать.
func WithSensitiveKeys(keys ...string) MaskerOption {
	return func(h *TokenMaskerHandler) {
		for _, k := range keys {
			h.sensitive[strings.ToLower(k)] = struct{}{}
		}
	}
}

// NewTokenMaskerHandler создает новый обработчик с маскировкой токенов
func NewTokenMaskerHandler(handler slog.Handler, opts ...MaskerOption) *TokenMaskerHandler {
	h := &TokenMaskerHandler{
		handler:   handler,
		sensitive: make(map[string]struct{}, len(defaultSensitiveKeys)),
	}
	WithSensitiveKeys(defaultSensitiveKeys...)(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// токен бота в формате bot<id>:<secret>; так он встречается в URL запросов Bot API
var telegramTokenRegex = regexp.MustCompile(`(\bbot\d+:[A-Za-z0-9_-]{35,})`)

// maskTokens заменяет найденные токены на маску
func maskTokens(text string) string {
	return telegramTokenRegex.ReplaceAllString(text, "bot***:***masked-token***")
}

// Enabled реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) Handle(ctx context.Context, record slog.Record) error {
	// Новая запись вместо исходной: slog может переиспользовать оригинал.
	r := slog.NewRecord(record.Time, record.Level, maskTokens(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(h.maskAttr(a))
		return true
	})

	return h.handler.Handle(ctx, r)
}

// WithAttrs реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		masked[i] = h.maskAttr(attr)
	}
	return &TokenMaskerHandler{
		handler:   h.handler.WithAttrs(masked),
		sensitive: h.sensitive,
	}
}

// WithGroup реализует интерфейс slog.Handler
func (h *TokenMaskerHandler) WithGroup(name string) slog.Handler {
	return &TokenMaskerHandler{
		handler:   h.handler.WithGroup(name),
		sensitive: h.sensitive,
	}
}

func (h *TokenMaskerHandler) maskAttr(a slog.Attr) slog.Attr {
	if _, ok := h.sensitive[strings.ToLower(a.Key)]; ok && a.Value.Kind() != slog.KindGroup {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, redacted)
	}
	return slog.Attr{Key: a.Key, Value: h.maskValue(a.Value)}
}

// maskValue рекурсивно маскирует значения атрибутов
func (h *TokenMaskerHandler) maskValue(value slog.Value) slog.Value {
	value = value.Resolve()

	switch value.Kind() {
	case slog.KindString:
		return slog.StringValue(maskTokens(value.String()))
	case slog.KindAny:
		// Ошибки tgbotapi содержат URL запроса вместе с токеном.
		if err, ok := value.Any().(error); ok {
			return slog.StringValue(maskTokens(err.Error()))
		}
		return value
	case slog.KindGroup:
		group := value.Group()
		masked := make([]slog.Attr, len(group))
		for i, attr := range group {
			masked[i] = h.maskAttr(attr)
		}
		return slog.GroupValue(masked...)
	default:
		return value
	}
}

// NewMaskedLogger создает новый экземпляр slog.Logger с маскировкой токенов
func NewMaskedLogger(handler slog.Handler, opts ...MaskerOption) *slog.Logger {
	return slog.New(NewTokenMaskerHandler(handler, opts...))
}
