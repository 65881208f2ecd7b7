package ports

import (
	"context"

	"telegram-mcp/internal/domain"
)

// RawSender - сведения об отправителе, которые транспорт отдает "как есть".
type RawSender struct {
	ID        int64
	IsBot     bool
	FirstName string
	LastName  string
	Username  string
}

// RawChat - сведения о чате, которые транспорт знает в момент получения сообщения.
type RawChat struct {
	Peer     domain.Peer
	Title    string
	Username string
	// Megagroup отличает супергруппу от канала-витрины.
	Megagroup bool
}

// RawMessage - узкий интерфейс над сообщением конкретной библиотеки.
// Каждый адаптер транспорта реализует его, нормализатор от транспорта не зависит.
type RawMessage interface {
	ID() int
	// Sender возвращает nil, если отправитель неизвестен (например, пост канала).
	Sender() *RawSender
	Chat() RawChat
	Date() int64
	Text() string
	// Media возвращает nil, если во вложении ничего нет.
	Media() any
	// Reply возвращает nil, если транспорт не приложил сообщение, на которое отвечают.
	Reply() RawMessage
}

// EntityLookup разрешает имена пользователей и телефоны средствами транспорта.
type EntityLookup interface {
	LookupUsername(ctx context.Context, username string) (domain.Peer, error)
	LookupPhone(ctx context.Context, phone string) (domain.Peer, error)
}

// Transport определяет операции, которые диспетчер инструментов выполняет через Telegram.
// Все идентификаторы чатов передаются уже разрешенными.
type Transport interface {
	EntityLookup

	// Name возвращает имя варианта развертывания ("bot" или "user").
	Name() string
	ListMessages(ctx context.Context, peer domain.Peer, limit int) ([]domain.Message, error)
	// GetChatHistory возвращает страницу истории; offset трактуется транспортом
	// как смещение в окне (bot) или как offset_id (user).
	GetChatHistory(ctx context.Context, peer domain.Peer, limit, offset int) (domain.HistoryPage, error)
	SendMessage(ctx context.Context, peer domain.Peer, opts domain.SendOptions) (domain.SendResult, error)
	GetChatInfo(ctx context.Context, peer domain.Peer) (domain.ChatInfo, error)
}

// DialogLister реализуется транспортами, которые умеют перечислять диалоги.
type DialogLister interface {
	GetDialogs(ctx context.Context, limit int) ([]domain.Dialog, error)
}

// HistoryOffsetKind сообщает, как транспорт называет параметр смещения истории.
type HistoryOffsetKind interface {
	// HistoryOffsetParam возвращает "offset" или "offset_id".
	HistoryOffsetParam() string
}
