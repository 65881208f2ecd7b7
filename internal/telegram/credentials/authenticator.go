package credentials

import (
	"context"
	"errors"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"telegram-mcp/internal/ports"
)

// ErrSignUpNotSupported возвращается, если номер телефона не зарегистрирован в Telegram.
var ErrSignUpNotSupported = errors.New("sign up is not supported, register the account in an official client first")

// Authenticator адаптирует ports.CredentialProvider к auth.UserAuthenticator.
type Authenticator struct {
	provider ports.CredentialProvider
}

var _ auth.UserAuthenticator = (*Authenticator)(nil)

// NewAuthenticator создает адаптер над поставщиком.
func NewAuthenticator(p ports.CredentialProvider) *Authenticator {
	return &Authenticator{provider: p}
}

func (a *Authenticator) Phone(ctx context.Context) (string, error) {
	return a.provider.Phone(ctx)
}

func (a *Authenticator) Password(ctx context.Context) (string, error) {
	return a.provider.Password(ctx)
}

func (a *Authenticator) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.provider.Code(ctx)
}

// AcceptTermsOfService вызывается только при регистрации, которая не поддерживается.
func (a *Authenticator) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return ErrSignUpNotSupported
}

func (a *Authenticator) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, ErrSignUpNotSupported
}
