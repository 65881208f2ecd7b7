// Package tools описывает инструменты MCP, проверяет их аргументы и направляет вызовы транспорту.
package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"telegram-mcp/internal/domain"
)

// Имена инструментов.
const (
	ToolListMessages   = "list_messages"
	ToolGetChatHistory = "get_chat_history"
	ToolSendMessage    = "send_message"
	ToolReplyToMessage = "reply_to_message"
	ToolGetDialogs     = "get_dialogs"
	ToolGetChatInfo    = "get_chat_info"
	ToolAuthenticate   = "authenticate"
)

// Допустимые значения parse_mode.
var ParseModes = []string{"Markdown", "MarkdownV2", "HTML"}

// ParamKind - тип параметра инструмента.
type ParamKind int

const (
	// KindChatRef - строка или целое число.
	KindChatRef ParamKind = iota
	KindString
	KindInteger
	KindBoolean
)

// Param описывает один аргумент инструмента.
type Param struct {
	Name        string
	Description string
	Kind        ParamKind
	Required    bool

	// Для KindInteger: значение по умолчанию и границы, к которым значение прижимается.
	Default int
	Min     int
	Max     int
	// Clamp включает прижатие к [Min, Max]; без него значение вне диапазона - ошибка.
	Clamp bool

	// Для KindString.
	NonEmpty bool
	Enum     []string
}

// Tool - определение инструмента.
type Tool struct {
	Name        string
	Description string
	Params      []Param
}

var chatIDParam = Param{
	Name:        "chat_id",
	Description: "Chat ID (integer) or username (@name)",
	Kind:        KindChatRef,
	Required:    true,
}

var parseModeParam = Param{
	Name:        "parse_mode",
	Description: "Message formatting mode",
	Kind:        KindString,
	Enum:        ParseModes,
}

// Definitions возвращает определения инструментов для транспорта.
// offsetParam - имя параметра смещения истории ("offset" или "offset_id").
func Definitions(offsetParam string, withDialogs, withAuth bool) []Tool {
	defs := []Tool{
		{
			Name:        ToolListMessages,
			Description: "List recent messages in a chat",
			Params: []Param{
				chatIDParam,
				{Name: "limit", Description: "Number of messages to return", Kind: KindInteger, Default: 10, Min: 1, Max: 100, Clamp: true},
			},
		},
		{
			Name:        ToolGetChatHistory,
			Description: "Get chat history with pagination",
			Params: []Param{
				chatIDParam,
				{Name: "limit", Description: "Number of messages to return", Kind: KindInteger, Default: 20, Min: 1, Max: 100, Clamp: true},
				{Name: offsetParam, Description: "Pagination offset", Kind: KindInteger, Default: 0, Min: 0, Max: math.MaxInt32, Clamp: true},
			},
		},
		{
			Name:        ToolSendMessage,
			Description: "Send a message to a chat",
			Params: []Param{
				chatIDParam,
				{Name: "text", Description: "Message text", Kind: KindString, Required: true, NonEmpty: true},
				parseModeParam,
				{Name: "disable_notification", Description: "Send silently", Kind: KindBoolean},
			},
		},
		{
			Name:        ToolReplyToMessage,
			Description: "Reply to a message in a chat",
			Params: []Param{
				chatIDParam,
				{Name: "message_id", Description: "ID of the message to reply to", Kind: KindInteger, Required: true, Min: 1, Max: math.MaxInt32},
				{Name: "text", Description: "Reply text", Kind: KindString, Required: true, NonEmpty: true},
				parseModeParam,
			},
		},
	}

	if withDialogs {
		defs = append(defs, Tool{
			Name:        ToolGetDialogs,
			Description: "List dialogs (chats, groups, channels) of the account",
			Params: []Param{
				{Name: "limit", Description: "Number of dialogs to return", Kind: KindInteger, Default: 100, Min: 1, Max: 200, Clamp: true},
			},
		})
	}

	defs = append(defs, Tool{
		Name:        ToolGetChatInfo,
		Description: "Get detailed information about a chat",
		Params:      []Param{chatIDParam},
	})

	if withAuth {
		defs = append(defs, Tool{
			Name:        ToolAuthenticate,
			Description: "Submit phone number, login code or 2FA password for the Telegram user session",
			Params: []Param{
				{Name: "phone", Description: "Phone number in international format", Kind: KindString},
				{Name: "code", Description: "Login code sent by Telegram", Kind: KindString},
				{Name: "password", Description: "Two-step verification password", Kind: KindString},
			},
		})
	}

	return defs
}

// Args - проверенные аргументы вызова.
type Args map[string]any

// Int возвращает целочисленный аргумент.
func (a Args) Int(name string) int {
	v, _ := a[name].(int)
	return v
}

// String возвращает строковый аргумент.
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// Bool возвращает логический аргумент.
func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

// Has сообщает, был ли аргумент передан или получил значение по умолчанию.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Validate проверяет аргументы по схеме и собирает все нарушения сразу.
// Неизвестные аргументы игнорируются.
func Validate(tool Tool, raw map[string]any) (Args, error) {
	args := make(Args, len(tool.Params))
	verr := &domain.ValidationError{}

	for _, p := range tool.Params {
		v, present := raw[p.Name]
		if !present || v == nil {
			if p.Required {
				verr.Add(p.Name, "is required")
				continue
			}
			if p.Kind == KindInteger {
				args[p.Name] = p.Default
			}
			continue
		}

		switch p.Kind {
		case KindChatRef:
			ref, reason := chatRefValue(v)
			if reason != "" {
				verr.Add(p.Name, reason)
				continue
			}
			args[p.Name] = ref
		case KindString:
			s, ok := v.(string)
			if !ok {
				verr.Add(p.Name, "must be a string")
				continue
			}
			if p.NonEmpty && strings.TrimSpace(s) == "" {
				verr.Add(p.Name, "must not be empty")
				continue
			}
			if len(p.Enum) > 0 && !contains(p.Enum, s) {
				verr.Add(p.Name, "must be one of "+strings.Join(p.Enum, ", "))
				continue
			}
			args[p.Name] = s
		case KindInteger:
			n, reason := integerValue(v)
			if reason != "" {
				verr.Add(p.Name, reason)
				continue
			}
			if n < int64(p.Min) || n > int64(p.Max) {
				if !p.Clamp {
					verr.Add(p.Name, "must be between "+strconv.Itoa(p.Min)+" and "+strconv.Itoa(p.Max))
					continue
				}
				n = clamp(n, int64(p.Min), int64(p.Max))
			}
			args[p.Name] = int(n)
		case KindBoolean:
			b, ok := v.(bool)
			if !ok {
				verr.Add(p.Name, "must be a boolean")
				continue
			}
			args[p.Name] = b
		}
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return args, nil
}

// chatRefValue пропускает строки и целые числа; разбор ссылки выполняет резолвер.
func chatRefValue(v any) (any, string) {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, "must not be empty"
		}
		return val, ""
	case json.Number:
		return val, ""
	case int, int32, int64:
		return val, ""
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) || val != math.Trunc(val) {
			return nil, "must be an integer or a string"
		}
		return val, ""
	default:
		return nil, "must be an integer or a string"
	}
}

func integerValue(v any) (int64, string) {
	switch val := v.(type) {
	case int:
		return int64(val), ""
	case int32:
		return int64(val), ""
	case int64:
		return val, ""
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) || val != math.Trunc(val) {
			return 0, "must be an integer"
		}
		if val > math.MaxInt64/2 || val < math.MinInt64/2 {
			return 0, "is out of range"
		}
		return int64(val), ""
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0, "must be an integer"
		}
		return n, ""
	default:
		return 0, "must be an integer"
	}
}

func clamp(n, lo, hi int64) int64 {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
