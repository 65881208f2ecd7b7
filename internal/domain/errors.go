package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotSupported возвращается транспортом, который не умеет выполнять операцию.
var ErrNotSupported = errors.New("operation is not supported by this transport")

// ResolutionError возвращается, когда ссылку на чат нельзя сопоставить с пиром транспорта.
type ResolutionError struct {
	// Ref - исходная ссылка в том виде, в котором ее передал вызывающий.
	Ref    string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("cannot resolve chat %q: %s", e.Ref, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FieldError описывает нарушение схемы для одного поля.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError собирает все нарушения схемы аргументов инструмента.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "invalid arguments: " + strings.Join(parts, "; ")
}

// Add регистрирует нарушение для поля.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// OrNil возвращает nil, если нарушений нет.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// TransportError оборачивает отказ нижележащего транспорта Telegram.
type TransportError struct {
	Op string
	// Code - код ошибки, если транспорт его сообщает (HTTP-код Bot API или код RPC).
	Code       int
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("telegram %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
