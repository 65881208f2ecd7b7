// Package credentials содержит поставщиков данных для входа в пользовательскую сессию Telegram.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"telegram-mcp/internal/ports"
)

// ErrNotProvided возвращается, когда значение не задано в конфигурации.
var ErrNotProvided = errors.New("credential is not provided")

// Static отдает значения, заданные заранее (конфигурация или переменные окружения).
// Код и пароль выдаются один раз: повторный запрос означает, что значение отклонено,
// и Chain переходит к следующему поставщику.
type Static struct {
	PhoneNumber   string
	LoginCode     string
	TwoFAPassword string

	mu           sync.Mutex
	codeUsed     bool
	passwordUsed bool
}

var _ ports.CredentialProvider = (*Static)(nil)

func (s *Static) Phone(_ context.Context) (string, error) {
	if s.PhoneNumber == "" {
		return "", fmt.Errorf("phone: %w", ErrNotProvided)
	}
	return s.PhoneNumber, nil
}

func (s *Static) Code(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoginCode == "" || s.codeUsed {
		return "", fmt.Errorf("login code: %w", ErrNotProvided)
	}
	s.codeUsed = true
	return s.LoginCode, nil
}

func (s *Static) Password(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TwoFAPassword == "" || s.passwordUsed {
		return "", fmt.Errorf("2FA password: %w", ErrNotProvided)
	}
	s.passwordUsed = true
	return s.TwoFAPassword, nil
}

// Chain опрашивает поставщиков по порядку и переходит к следующему,
// только если предыдущий вернул ErrNotProvided.
type Chain []ports.CredentialProvider

var _ ports.CredentialProvider = Chain(nil)

func (c Chain) Phone(ctx context.Context) (string, error) {
	return c.first(ctx, ports.CredentialProvider.Phone)
}

func (c Chain) Code(ctx context.Context) (string, error) {
	return c.first(ctx, ports.CredentialProvider.Code)
}

func (c Chain) Password(ctx context.Context) (string, error) {
	return c.first(ctx, ports.CredentialProvider.Password)
}

func (c Chain) first(ctx context.Context, get func(ports.CredentialProvider, context.Context) (string, error)) (string, error) {
	err := ErrNotProvided
	for _, p := range c {
		var v string
		v, err = get(p, ctx)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotProvided) {
			return "", err
		}
	}
	return "", err
}
