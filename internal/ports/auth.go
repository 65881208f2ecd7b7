package ports

import (
	"context"

	"telegram-mcp/internal/domain"
)

// CredentialProvider выдает данные для интерактивной аутентификации MTProto.
// Реализации: приглашение в терминале, значения из конфигурации, ящик для инструмента authenticate.
type CredentialProvider interface {
	Phone(ctx context.Context) (string, error)
	Code(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
}

// AuthInbox принимает данные аутентификации, присланные через инструмент authenticate.
// Пустые значения означают "не передано". Submit возвращает состояние после того,
// как процесс входа отреагировал на новые данные, либо текущее состояние по истечении ожидания.
type AuthInbox interface {
	Submit(ctx context.Context, phone, code, password string) domain.AuthStatus
}
