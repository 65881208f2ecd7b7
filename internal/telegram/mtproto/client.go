// Package mtproto реализует транспорт Telegram поверх пользовательской сессии MTProto (gotd/td).
package mtproto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/ports"
	"telegram-mcp/internal/telegram/credentials"
)

var (
	// ErrFloodWaitActive возвращается, когда клиент не может выполнить запрос из-за активного ограничения FLOOD_WAIT.
	ErrFloodWaitActive = errors.New("client is in flood wait")
	// ErrClientStopped возвращается, когда фоновый процесс клиента завершился.
	ErrClientStopped = errors.New("telegram client is not running")
	// ErrNoCredentials возвращается, если сессия недействительна, а поставщик данных для входа не задан.
	ErrNoCredentials = errors.New("session is invalid and no credentials provider is configured")
	// ErrLoginPending возвращается вызовам API, пока вход ждет данных от инструмента authenticate.
	ErrLoginPending = errors.New("login is waiting for credentials")
	// floodWaitRegex используется для парсинга длительности ожидания из сообщения об ошибке.
	floodWaitRegex = regexp.MustCompile(`FLOOD_WAIT \((\d+)\)`)
)

// telegramAPI представляет необработанные методы API, которые мы используем.
type telegramAPI interface {
	UsersGetUsers(ctx context.Context, request []tg.InputUserClass) ([]tg.UserClass, error)
	UsersGetFullUser(ctx context.Context, inputUser tg.InputUserClass) (*tg.UsersUserFull, error)
	ContactsResolveUsername(ctx context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	ContactsResolvePhone(ctx context.Context, phone string) (*tg.ContactsResolvedPeer, error)
	MessagesGetHistory(ctx context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
	MessagesSendMessage(ctx context.Context, req *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	MessagesGetDialogs(ctx context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
	MessagesGetFullChat(ctx context.Context, chatID int64) (*tg.MessagesChatFull, error)
	ChannelsGetFullChannel(ctx context.Context, channel tg.InputChannelClass) (*tg.MessagesChatFull, error)
	HelpGetConfig(ctx context.Context) (*tg.Config, error)
}

// telegramAuth представляет клиент аутентификации.
type telegramAuth interface {
	auth.FlowClient
}

// telegramRunner определяет зависимости от клиента gotd.
// Это позволяет создавать моки в тестах.
type telegramRunner interface {
	Run(ctx context.Context, f func(ctx context.Context) error) error
	API() telegramAPI
	Auth() telegramAuth
}

// prodRunner является оберткой вокруг реального *telegram.Client для удовлетворения интерфейса telegramRunner.
type prodRunner struct {
	*telegram.Client
}

func (p *prodRunner) API() telegramAPI {
	return p.Client.API()
}

func (p *prodRunner) Auth() telegramAuth {
	return p.Client.Auth()
}

// authFlow определяет интерфейс для процесса аутентификации.
type authFlow interface {
	Run(ctx context.Context, client auth.FlowClient) error
}

// AuthObserver получает итог входа (например, ящик инструмента authenticate).
type AuthObserver interface {
	MarkAuthenticated()
	MarkFailed(err error)
}

// LoginGate сообщает, ждет ли вход данных, которые может прислать только вызывающая сторона.
// Канал changed закрывается при следующей смене состояния.
type LoginGate interface {
	Pending() (status domain.AuthStatus, waiting bool, changed <-chan struct{})
}

// maxLoginAttempts ограничивает число попыток входа с неверным кодом или паролем.
const maxLoginAttempts = 5

// Client - пользовательский транспорт MTProto. Все вызовы API ждут однократной
// готовности клиента (проверки сессии или интерактивного входа).
type Client struct {
	id       string
	tgRunner telegramRunner
	authFlow authFlow // nil, если поставщик данных для входа не задан
	observer AuthObserver
	gate     LoginGate
	// creds и checkPassword используются для повторного ввода пароля 2FA.
	creds         ports.CredentialProvider
	checkPassword func(ctx context.Context, password string) error
	peers         *peerStore
	clock         func() time.Time
	log           *slog.Logger

	mu             sync.RWMutex
	unhealthyUntil time.Time
	selfID         int64

	startOnce sync.Once
	readyOnce sync.Once
	ready     chan struct{}
	done      chan struct{}
	runErr    error

	warmupMu sync.Mutex
	warmedUp bool
	randomID func() int64
}

// Config содержит конфигурацию для создания нового клиента.
type Config struct {
	APIID   int
	APIHash string
	// Storage хранит сессию; обычно sessionstore.File.
	Storage session.Storage
	// Credentials используется, если сохраненная сессия недействительна. Может быть nil.
	Credentials ports.CredentialProvider
}

// ClientOption определяет функциональную опцию для конфигурации клиента.
type ClientOption func(*Client)

// WithLogger устанавливает логгер для клиента.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithAuthObserver подписывает наблюдателя на итог входа.
func WithAuthObserver(o AuthObserver) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLoginGate не дает вызовам API ждать готовности, пока вход ждет данных через gate.
// Такие вызовы сразу завершаются ошибкой ErrLoginPending с текущим состоянием входа.
func WithLoginGate(g LoginGate) ClientOption {
	return func(c *Client) {
		c.gate = g
	}
}

// NewClient создает новый экземпляр Client. Соединение устанавливает Start.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	tgClient := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: cfg.Storage,
	})

	c := newClient(&prodRunner{Client: tgClient})
	if cfg.Credentials != nil {
		c.authFlow = auth.NewFlow(credentials.NewAuthenticator(cfg.Credentials), auth.SendCodeOptions{})
		c.creds = cfg.Credentials
		c.checkPassword = func(ctx context.Context, password string) error {
			_, err := tgClient.Auth().Password(ctx, password)
			return err
		}
	}

	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "mtproto", "client_id", c.id)
	return c
}

func newClient(runner telegramRunner) *Client {
	return &Client{
		id:       uuid.NewString(),
		tgRunner: runner,
		peers:    newPeerStore(),
		clock:    time.Now,
		log:      slog.Default(),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		randomID: randomInt64,
	}
}

// ID возвращает уникальный идентификатор клиента.
func (c *Client) ID() string {
	return c.id
}

// Start запускает фоновый процесс клиента, включая аутентификацию.
// Повторные вызовы ничего не делают.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.run(ctx)
	})
}

func (c *Client) run(ctx context.Context) {
	c.log.InfoContext(ctx, "Starting telegram client background runner")
	err := c.tgRunner.Run(ctx, func(runCtx context.Context) error {
		if err := c.authenticate(runCtx); err != nil {
			if c.observer != nil {
				c.observer.MarkFailed(err)
			}
			return err
		}
		if c.observer != nil {
			c.observer.MarkAuthenticated()
		}
		c.log.InfoContext(runCtx, "Telegram client authenticated and ready", "self_id", c.self())
		c.markReady()

		// Держим соединение активным, пока не завершится контекст.
		<-runCtx.Done()
		return runCtx.Err()
	})

	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.ErrorContext(ctx, "Telegram client background runner exited with error", "error", err)
	} else {
		c.log.InfoContext(ctx, "Telegram client background runner stopped")
	}

	c.runErr = err
	close(c.done)
}

// authenticate проверяет сохраненную сессию и при необходимости выполняет вход.
func (c *Client) authenticate(ctx context.Context) error {
	self, err := c.fetchSelf(ctx)
	if err == nil {
		c.setSelf(self)
		return nil
	}

	// Если ошибка - это ожидаемое отсутствие сессии, логируем кратко.
	if strings.Contains(err.Error(), "AUTH_KEY_UNREGISTERED") {
		c.log.WarnContext(ctx, "Session check failed, attempting auth", "reason", "AUTH_KEY_UNREGISTERED")
	} else {
		c.log.WarnContext(ctx, "Session check failed, attempting auth", "error", err)
	}
	if c.authFlow == nil {
		return fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	if authErr := c.login(ctx); authErr != nil {
		return fmt.Errorf("auth failed: %w", authErr)
	}
	c.log.InfoContext(ctx, "Auth successful, session saved")

	self, err = c.fetchSelf(ctx)
	if err != nil {
		return fmt.Errorf("fetch self after auth: %w", err)
	}
	c.setSelf(self)
	return nil
}

// login выполняет вход. Неверный код или пароль не останавливает клиент:
// наблюдатель получает ошибку, а данные запрашиваются у поставщика еще раз.
func (c *Client) login(ctx context.Context) error {
	err := c.authFlow.Run(ctx, c.tgRunner.Auth())
	for attempt := 1; err != nil; attempt++ {
		if attempt >= maxLoginAttempts || !retryableLoginError(err) {
			return err
		}
		c.log.WarnContext(ctx, "Login attempt rejected, asking for credentials again", "attempt", attempt, "error", err)
		if c.observer != nil {
			c.observer.MarkFailed(err)
		}

		if errors.Is(err, auth.ErrPasswordInvalid) && c.creds != nil && c.checkPassword != nil {
			// Код уже принят, повторяется только проверка пароля.
			err = c.retryPassword(ctx)
			continue
		}
		err = c.authFlow.Run(ctx, c.tgRunner.Auth())
	}
	return nil
}

func (c *Client) retryPassword(ctx context.Context) error {
	password, err := c.creds.Password(ctx)
	if err != nil {
		return fmt.Errorf("get password: %w", err)
	}
	return c.checkPassword(ctx, password)
}

// retryableLoginError сообщает, можно ли исправить ошибку входа новыми данными.
func retryableLoginError(err error) bool {
	return errors.Is(err, auth.ErrPasswordInvalid) ||
		tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EXPIRED", "PHONE_CODE_EMPTY", "PASSWORD_HASH_INVALID")
}

func (c *Client) fetchSelf(ctx context.Context) (*tg.User, error) {
	users, err := c.tgRunner.API().UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUserSelf{}})
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			c.peers.apply(users, nil)
			return user, nil
		}
	}
	return nil, errors.New("self user is missing in response")
}

func (c *Client) setSelf(u *tg.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfID = u.ID
}

func (c *Client) self() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}

func (c *Client) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// WaitReady блокируется до готовности клиента, его остановки или отмены ctx.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	default:
	}

	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return c.stoppedError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// awaitReady работает как WaitReady, но с заданным gate не ждет, пока вход стоит
// в ожидании данных: эти данные может прислать только следующий вызов инструмента.
func (c *Client) awaitReady(ctx context.Context) error {
	if c.gate == nil {
		return c.WaitReady(ctx)
	}

	for {
		status, waiting, changed := c.gate.Pending()
		select {
		case <-c.ready:
			return nil
		default:
		}
		if waiting {
			return fmt.Errorf("%w: state %s, submit it with the authenticate tool", ErrLoginPending, status.State)
		}

		select {
		case <-c.ready:
			return nil
		case <-c.done:
			return c.stoppedError()
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (c *Client) stoppedError() error {
	if c.runErr != nil {
		return fmt.Errorf("%w: %w", ErrClientStopped, c.runErr)
	}
	return ErrClientStopped
}

// Wait блокируется до остановки фонового процесса и возвращает его ошибку.
func (c *Client) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health проверяет работоспособность клиента.
// Если активен FLOOD_WAIT, возвращает ошибку.
// В противном случае выполняет легковесный запрос к API.
func (c *Client) Health(ctx context.Context) error {
	if err := c.checkHealthStatus(); err != nil {
		return err
	}

	// Метод do сам обработает и установит новый FLOOD_WAIT, если это необходимо.
	return c.do(ctx, "help.getConfig", func(ctx context.Context, api telegramAPI) error {
		_, err := api.HelpGetConfig(ctx)
		return err
	})
}

// do ждет готовности клиента, проверяет FLOOD_WAIT и выполняет операцию.
// Ошибки возвращаются как domain.TransportError.
func (c *Client) do(ctx context.Context, op string, f func(ctx context.Context, api telegramAPI) error) error {
	if err := c.checkHealthStatus(); err != nil {
		c.log.WarnContext(ctx, "Client is unhealthy, aborting call", "op", op, "error", err)
		return c.transportError(op, err)
	}
	if err := c.awaitReady(ctx); err != nil {
		if errors.Is(err, ErrLoginPending) {
			c.log.InfoContext(ctx, "Call rejected while login is pending", "op", op, "error", err)
		}
		return c.transportError(op, err)
	}

	c.log.DebugContext(ctx, "Executing API call", "op", op)
	opErr := f(ctx, c.tgRunner.API())
	if opErr == nil {
		return nil
	}

	// Обрабатываем специфичные ошибки, такие как FLOOD_WAIT.
	c.handleError(opErr)

	// Также проверяем, не отвалился ли сам клиент.
	select {
	case <-c.done:
		if c.runErr != nil {
			opErr = fmt.Errorf("%w: %v (operation error: %v)", ErrClientStopped, c.runErr, opErr)
		}
	default:
	}

	if !errors.Is(opErr, ErrFloodWaitActive) {
		c.log.WarnContext(ctx, "API call failed", "op", op, "error", opErr)
	}
	return c.transportError(op, opErr)
}

// checkHealthStatus проверяет, не находится ли клиент в состоянии FLOOD_WAIT.
func (c *Client) checkHealthStatus() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.unhealthyUntil.IsZero() && c.clock().Before(c.unhealthyUntil) {
		c.log.Debug("Health check failed: client is in flood wait", "until", c.unhealthyUntil)
		return fmt.Errorf("%w: active until %v", ErrFloodWaitActive, c.unhealthyUntil)
	}
	return nil
}

// handleError обрабатывает ошибки, ищет FLOOD_WAIT и обновляет состояние клиента.
func (c *Client) handleError(err error) {
	if waitDuration, ok := parseFloodWait(err); ok {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.unhealthyUntil = c.clock().Add(waitDuration)
		c.log.Warn("Client got FLOOD_WAIT, set unhealthy", "wait_duration", waitDuration, "until", c.unhealthyUntil)
	}
}

// retryAfter возвращает остаток активного FLOOD_WAIT.
func (c *Client) retryAfter() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.unhealthyUntil.IsZero() {
		return 0
	}
	if d := c.unhealthyUntil.Sub(c.clock()); d > 0 {
		return d
	}
	return 0
}

// parseFloodWait извлекает длительность ожидания из ошибки.
func parseFloodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	matches := floodWaitRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0, false
	}

	seconds, convErr := strconv.Atoi(matches[1])
	if convErr != nil {
		return 0, false
	}

	return time.Duration(seconds) * time.Second, true
}
