package credentials

import (
	"context"
	"sync"
	"time"

	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/ports"
)

// DefaultSettleTimeout - сколько Submit ждет реакции процесса входа.
const DefaultSettleTimeout = 10 * time.Second

// Mailbox - поставщик, которому значения присылает инструмент authenticate.
// Процесс входа блокируется в Phone/Code/Password, пока значение не придет.
type Mailbox struct {
	mu       sync.Mutex
	status   domain.AuthStatus
	version  uint64
	changed  chan struct{}
	arrived  chan struct{}
	phone    string
	code     string
	password string
	settle   time.Duration
	// waiting - число запросов процесса входа, заблокированных в ожидании данных.
	waiting int
}

var (
	_ ports.CredentialProvider = (*Mailbox)(nil)
	_ ports.AuthInbox          = (*Mailbox)(nil)
)

// Pending сообщает, ждет ли процесс входа данных от Submit.
// Канал закрывается при следующей смене состояния или числа ожидающих.
func (m *Mailbox) Pending() (domain.AuthStatus, bool, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.waiting > 0, m.changed
}

// MailboxOption настраивает Mailbox.
type MailboxOption func(*Mailbox)

// WithSettleTimeout задает время ожидания реакции процесса входа в Submit.
func WithSettleTimeout(d time.Duration) MailboxOption {
	return func(m *Mailbox) {
		m.settle = d
	}
}

// WithPhone заранее задает номер телефона.
func WithPhone(phone string) MailboxOption {
	return func(m *Mailbox) {
		m.phone = phone
	}
}

// NewMailbox создает пустой ящик в состоянии needs_phone.
func NewMailbox(opts ...MailboxOption) *Mailbox {
	m := &Mailbox{
		status:  domain.AuthStatus{State: domain.AuthNeedsPhone},
		changed: make(chan struct{}),
		arrived: make(chan struct{}),
		settle:  DefaultSettleTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status возвращает текущее состояние входа.
func (m *Mailbox) Status() domain.AuthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// MarkAuthenticated фиксирует успешный вход.
func (m *Mailbox) MarkAuthenticated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusLocked(domain.AuthStatus{State: domain.AuthAuthenticated})
}

// MarkFailed фиксирует ошибку входа.
func (m *Mailbox) MarkFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusLocked(domain.AuthStatus{State: domain.AuthError, Message: err.Error()})
}

func (m *Mailbox) Phone(ctx context.Context) (string, error) {
	// Номер не расходуется: он нужен при повторной отправке кода.
	return m.await(ctx, domain.AuthNeedsPhone, func() (string, bool) {
		return m.phone, m.phone != ""
	})
}

func (m *Mailbox) Code(ctx context.Context) (string, error) {
	return m.await(ctx, domain.AuthNeedsCode, func() (string, bool) {
		v := m.code
		m.code = ""
		return v, v != ""
	})
}

func (m *Mailbox) Password(ctx context.Context) (string, error) {
	return m.await(ctx, domain.AuthNeedsPassword, func() (string, bool) {
		v := m.password
		m.password = ""
		return v, v != ""
	})
}

// Submit принимает значения и ждет, пока процесс входа перейдет в следующее состояние.
func (m *Mailbox) Submit(ctx context.Context, phone, code, password string) domain.AuthStatus {
	m.mu.Lock()
	if phone != "" {
		m.phone = phone
	}
	if code != "" {
		m.code = code
	}
	if password != "" {
		m.password = password
	}
	start := m.version
	close(m.arrived)
	m.arrived = make(chan struct{})
	m.mu.Unlock()

	timer := time.NewTimer(m.settle)
	defer timer.Stop()

	for {
		m.mu.Lock()
		status, changed, ch := m.status, m.version != start, m.changed
		m.mu.Unlock()

		if changed || status.State == domain.AuthAuthenticated {
			return status
		}

		select {
		case <-ch:
		case <-timer.C:
			return m.Status()
		case <-ctx.Done():
			return m.Status()
		}
	}
}

func (m *Mailbox) await(ctx context.Context, state domain.AuthState, take func() (string, bool)) (string, error) {
	for {
		m.mu.Lock()
		if v, ok := take(); ok {
			m.mu.Unlock()
			return v, nil
		}
		next := domain.AuthStatus{State: state}
		if m.status.State == domain.AuthError {
			// Причина отказа остается видна до следующей попытки.
			next.Message = m.status.Message
		}
		m.setStatusLocked(next)
		m.waiting++
		m.notifyLocked()
		ch := m.arrived
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
		}

		m.mu.Lock()
		m.waiting--
		m.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

func (m *Mailbox) setStatusLocked(s domain.AuthStatus) {
	if m.status == s {
		return
	}
	m.status = s
	m.version++
	m.notifyLocked()
}

func (m *Mailbox) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}
