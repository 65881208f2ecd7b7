package resolver

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"telegram-mcp/internal/domain"
)

// ReferenceKind - вид ссылки на чат, переданной вызывающей стороной.
type ReferenceKind int

const (
	KindUsername ReferenceKind = iota
	KindNumericID
	KindPhone
)

func (k ReferenceKind) String() string {
	switch k {
	case KindUsername:
		return "username"
	case KindNumericID:
		return "numericId"
	case KindPhone:
		return "phone"
	default:
		return "unknown"
	}
}

// maxExactFloat - граница, до которой float64 из JSON точно представляет целое.
const maxExactFloat = 1 << 53

// ChatReference - размеченное объединение: имя пользователя, числовой ID или телефон.
// Создается один раз на вызов и не изменяется.
type ChatReference struct {
	Kind ReferenceKind
	// Username хранится без ведущего '@'.
	Username string
	ID       int64
	// Phone хранится в виде "+" и цифр.
	Phone string
	// Raw - исходное значение для сообщений об ошибках.
	Raw string
}

// String возвращает ссылку в исходном виде.
func (r ChatReference) String() string {
	if r.Raw != "" {
		return r.Raw
	}
	switch r.Kind {
	case KindUsername:
		return "@" + r.Username
	case KindPhone:
		return r.Phone
	default:
		return strconv.FormatInt(r.ID, 10)
	}
}

// Username создает ссылку на чат по имени пользователя.
func Username(name string) ChatReference {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	return ChatReference{Kind: KindUsername, Username: name, Raw: "@" + name}
}

// NumericID создает ссылку на чат по каноническому идентификатору.
func NumericID(id int64) ChatReference {
	return ChatReference{Kind: KindNumericID, ID: id, Raw: strconv.FormatInt(id, 10)}
}

// ParseChatReference разбирает значение chat_id из аргументов инструмента.
// Поддерживаются числа JSON, json.Number, целые Go и строки вида "@name", "name", "+79990001122", "-100123".
// Строка, похожая на число, но не разбираемая как int64, считается ошибкой и
// никогда не трактуется как имя пользователя.
func ParseChatReference(v any) (ChatReference, error) {
	switch val := v.(type) {
	case nil:
		return ChatReference{}, &domain.ResolutionError{Ref: "", Reason: "chat reference is empty"}
	case int:
		return NumericID(int64(val)), nil
	case int32:
		return NumericID(int64(val)), nil
	case int64:
		return NumericID(val), nil
	case float64:
		raw := strconv.FormatFloat(val, 'f', -1, 64)
		if math.IsNaN(val) || math.IsInf(val, 0) || val != math.Trunc(val) {
			return ChatReference{}, &domain.ResolutionError{Ref: raw, Reason: "numeric chat id must be an integer"}
		}
		if math.Abs(val) > maxExactFloat {
			return ChatReference{}, &domain.ResolutionError{Ref: raw, Reason: "numeric chat id exceeds exact JSON number range, pass it as a string"}
		}
		return NumericID(int64(val)), nil
	case json.Number:
		return parseString(val.String())
	case string:
		return parseString(val)
	default:
		raw := fmt.Sprintf("%v", v)
		return ChatReference{}, &domain.ResolutionError{Ref: raw, Reason: fmt.Sprintf("unsupported chat reference type %T", v)}
	}
}

func parseString(s string) (ChatReference, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return ChatReference{}, &domain.ResolutionError{Ref: raw, Reason: "chat reference is empty"}
	}

	switch {
	case strings.HasPrefix(s, "@"):
		name := strings.TrimPrefix(s, "@")
		if name == "" {
			return ChatReference{}, &domain.ResolutionError{Ref: raw, Reason: "username is empty"}
		}
		return ChatReference{Kind: KindUsername, Username: name, Raw: raw}, nil
	case strings.HasPrefix(s, "+"):
		phone, ok := normalizePhone(s)
		if !ok {
			return ChatReference{}, &domain.ResolutionError{Ref: raw, Reason: "malformed phone number"}
		}
		return ChatReference{Kind: KindPhone, Phone: phone, Raw: raw}, nil
	case looksNumeric(s):
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return ChatReference{}, &domain.ResolutionError{Ref: raw, Reason: "malformed numeric chat id", Err: err}
		}
		return ChatReference{Kind: KindNumericID, ID: id, Raw: raw}, nil
	default:
		return ChatReference{Kind: KindUsername, Username: s, Raw: raw}, nil
	}
}

// looksNumeric сообщает, начинается ли строка как целое число.
func looksNumeric(s string) bool {
	if s[0] == '-' {
		return true
	}
	return s[0] >= '0' && s[0] <= '9'
}

// normalizePhone убирает разделители и проверяет, что после '+' остались только цифры.
func normalizePhone(s string) (string, bool) {
	var b strings.Builder
	b.WriteByte('+')
	digits := 0
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", false
		}
	}
	if digits < 5 {
		return "", false
	}
	return b.String(), true
}
