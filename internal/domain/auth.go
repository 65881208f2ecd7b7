package domain

// AuthState - состояние интерактивной аутентификации пользовательской сессии.
type AuthState string

const (
	AuthNeedsPhone    AuthState = "needs_phone"
	AuthNeedsCode     AuthState = "needs_code"
	AuthNeedsPassword AuthState = "needs_password"
	AuthAuthenticated AuthState = "authenticated"
	AuthError         AuthState = "error"
)

// AuthStatus возвращается инструментом authenticate.
type AuthStatus struct {
	State   AuthState `json:"state"`
	Message string    `json:"message,omitempty"`
}
