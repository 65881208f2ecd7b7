package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// TGBotAPIAdapter адаптирует slog.Logger под интерфейс логгера,
// который ожидает библиотека go-telegram-bot-api/v5.
type TGBotAPIAdapter struct {
	Logger *slog.Logger
}

// NewTGBotAPIAdapter создает адаптер; все записи помечаются component=tgbotapi.
func NewTGBotAPIAdapter(l *slog.Logger) *TGBotAPIAdapter {
	return &TGBotAPIAdapter{Logger: l.With("component", "tgbotapi")}
}

// Println реализует метод интерфейса tgbotapi.Logger.
// Через Println библиотека сообщает об ошибках цикла getUpdates.
func (a *TGBotAPIAdapter) Println(v ...interface{}) {
	a.Logger.Warn(strings.TrimSpace(fmt.Sprintln(v...)))
}

// Printf реализует метод интерфейса tgbotapi.Logger.
// Printf используется только в режиме отладки (дампы запросов), поэтому уровень debug.
// URL запросов содержит токен, его скрывает основной маскировщик.
func (a *TGBotAPIAdapter) Printf(format string, v ...interface{}) {
	a.Logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
