package domain

// ChatType описывает тип чата в терминах Bot API.
type ChatType string

const (
	ChatTypePrivate    ChatType = "private"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
)

// User представляет отправителя сообщения.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat представляет чат, в котором находится сообщение.
// ID всегда хранится в каноническом виде (см. EncodeChatID).
type Chat struct {
	ID       int64    `json:"id"`
	Type     ChatType `json:"type"`
	Title    string   `json:"title,omitempty"`
	Username string   `json:"username,omitempty"`
}

// Message - каноническое представление сообщения, которое отдается вызывающей стороне.
// Создается нормализатором и после этого не изменяется.
type Message struct {
	MessageID      int      `json:"message_id"`
	From           *User    `json:"from,omitempty"`
	Chat           Chat     `json:"chat"`
	Date           int64    `json:"date"`
	Text           string   `json:"text,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	Media          any      `json:"media,omitempty"`
	ReplyToMessage *Message `json:"reply_to_message,omitempty"`
}

// LastMessage - краткая информация о последнем сообщении диалога.
type LastMessage struct {
	ID     int    `json:"id"`
	Text   string `json:"text"`
	Date   int64  `json:"date"`
	FromID *int64 `json:"from_id,omitempty"`
}

// Dialog - сводка по чату, в котором участвует авторизованный пользователь.
type Dialog struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Type        ChatType     `json:"type"`
	Username    string       `json:"username,omitempty"`
	UnreadCount int          `json:"unread_count"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
}

// ChatInfo содержит подробные сведения о чате.
type ChatInfo struct {
	ID           int64    `json:"id"`
	Type         ChatType `json:"type"`
	Title        string   `json:"title,omitempty"`
	Username     string   `json:"username,omitempty"`
	FirstName    string   `json:"first_name,omitempty"`
	LastName     string   `json:"last_name,omitempty"`
	Description  string   `json:"description,omitempty"`
	MembersCount int      `json:"members_count,omitempty"`
	InviteLink   string   `json:"invite_link,omitempty"`
}

// SendResult - результат отправки сообщения или ответа на него.
type SendResult struct {
	Success          bool  `json:"success"`
	MessageID        int   `json:"message_id"`
	ReplyToMessageID int   `json:"reply_to_message_id,omitempty"`
	ChatID           int64 `json:"chat_id"`
	Date             int64 `json:"date"`
}

// HistoryPage - страница истории чата.
// Total отражает размер известного окна сообщений, а не реальное количество сообщений в чате.
type HistoryPage struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
	Offset   *int      `json:"offset,omitempty"`
	OffsetID *int      `json:"offset_id,omitempty"`
	Limit    int       `json:"limit"`
}

// SendOptions содержит параметры отправки сообщения.
type SendOptions struct {
	Text                string
	ParseMode           string
	DisableNotification bool
	// ReplyToMessageID равен 0, если сообщение не является ответом.
	ReplyToMessageID int
}
