package tools

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"telegram-mcp/internal/domain"
)

// ToolError - ошибка вызова инструмента с кодом JSON-RPC.
type ToolError struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s (%d): %s", codeName(e.Code), e.Code, e.Message)
}

// IsClientError сообщает, вызвана ли ошибка некорректным запросом.
func (e *ToolError) IsClientError() bool {
	switch e.Code {
	case mcp.INVALID_PARAMS, mcp.METHOD_NOT_FOUND, mcp.INVALID_REQUEST:
		return true
	default:
		return false
	}
}

// MethodNotFound создает ошибку для неизвестного инструмента.
func MethodNotFound(name string) *ToolError {
	return &ToolError{Code: mcp.METHOD_NOT_FOUND, Message: fmt.Sprintf("unknown tool: %s", name)}
}

// InvalidRequest создает ошибку для запроса, который не удалось разобрать.
func InvalidRequest(msg string) *ToolError {
	return &ToolError{Code: mcp.INVALID_REQUEST, Message: msg}
}

// AsToolError приводит любую ошибку к ToolError.
// ValidationError становится InvalidParams, все прочее - InternalError с исходным текстом.
func AsToolError(err error) *ToolError {
	if err == nil {
		return nil
	}

	var te *ToolError
	if errors.As(err, &te) {
		return te
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return &ToolError{Code: mcp.INVALID_PARAMS, Message: verr.Error(), Fields: verr.Fields}
	}

	return &ToolError{Code: mcp.INTERNAL_ERROR, Message: err.Error()}
}

func codeName(code int) string {
	switch code {
	case mcp.INVALID_PARAMS:
		return "InvalidParams"
	case mcp.METHOD_NOT_FOUND:
		return "MethodNotFound"
	case mcp.INVALID_REQUEST:
		return "InvalidRequest"
	default:
		return "InternalError"
	}
}
