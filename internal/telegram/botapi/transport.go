// Package botapi реализует транспорт Telegram поверх Bot API.
package botapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"telegram-mcp/internal/cache"
	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/normalizer"
	"telegram-mcp/internal/ports"
)

// Mode определяет, как транспорт получает входящие сообщения.
type Mode string

const (
	// ModePolling - фоновый цикл getUpdates наполняет кэш.
	ModePolling Mode = "polling"
	// ModeWebhook - обновления приходят на POST /webhook.
	ModeWebhook Mode = "webhook"
	// ModeManual - входящие не принимаются; при пустом кэше выполняется разовый getUpdates.
	ModeManual Mode = "manual"
)

// ParseMode проверяет значение режима.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePolling, ModeWebhook, ModeManual:
		return Mode(s), nil
	case "":
		return ModePolling, nil
	default:
		return "", fmt.Errorf("unknown bot mode %q", s)
	}
}

// fetchLimit - максимум обновлений за один запрос getUpdates.
const fetchLimit = 100

// botAPI - используемая часть *tgbotapi.BotAPI.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMembersCount(config tgbotapi.ChatMemberCountConfig) (int, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// MessageSink принимает нормализованные входящие сообщения.
type MessageSink interface {
	Add(msg domain.Message)
}

// Option определяет функциональную опцию для Transport.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	sink        MessageSink
	mode        Mode
	apiEndpoint string
	httpClient  *http.Client
}

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSink задает получателя входящих сообщений (обычно кэш).
func WithSink(s MessageSink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithMode задает способ получения входящих сообщений.
func WithMode(m Mode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithAPIEndpoint переопределяет адрес Bot API (формат tgbotapi.APIEndpoint).
func WithAPIEndpoint(endpoint string) Option {
	return func(o *options) {
		o.apiEndpoint = endpoint
	}
}

// WithHTTPClient задает HTTP-клиент для запросов к Bot API.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// Transport - транспорт Bot API.
type Transport struct {
	id       string
	api      botAPI
	sink     MessageSink
	mode     Mode
	username string
	log      *slog.Logger
	polling  atomic.Bool
}

var (
	_ ports.Transport         = (*Transport)(nil)
	_ ports.HistoryOffsetKind = (*Transport)(nil)
)

// New авторизует бота по токену (выполняет getMe) и создает транспорт.
func New(token string, opts ...Option) (*Transport, error) {
	o := buildOptions(opts)

	endpoint := o.apiEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, mapError("getMe", err)
	}

	t := newTransport(api, o)
	t.username = api.Self.UserName
	t.log.Info("Authorized on account", slog.String("username", t.username), slog.String("mode", string(t.mode)))
	return t, nil
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		mode:   ModePolling,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newTransport(api botAPI, o options) *Transport {
	id := uuid.New().String()
	return &Transport{
		id:   id,
		api:  api,
		sink: o.sink,
		mode: o.mode,
		log:  o.logger.With("component", "botapi", "transport_id", id),
	}
}

// Name возвращает имя варианта развертывания.
func (t *Transport) Name() string { return "bot" }

// HistoryOffsetParam - Bot API листает историю по смещению в окне.
func (t *Transport) HistoryOffsetParam() string { return "offset" }

// Mode возвращает режим получения входящих.
func (t *Transport) Mode() Mode { return t.mode }

// Username возвращает имя бота.
func (t *Transport) Username() string { return t.username }

// Run принимает обновления long polling до отмены контекста.
// В режимах, отличных от ModePolling, сразу возвращает nil.
func (t *Transport) Run(ctx context.Context) error {
	if t.mode != ModePolling {
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	t.polling.Store(true)
	defer t.polling.Store(false)
	t.log.Info("Started receiving updates")

	for {
		select {
		case <-ctx.Done():
			t.log.Info("Context cancelled, stopping updates...")
			t.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.Ingest(update)
		}
	}
}

// Ingest нормализует сообщение из обновления и передает его в sink.
// Возвращает false, если обновление не содержит представимого сообщения.
func (t *Transport) Ingest(update tgbotapi.Update) bool {
	m := updateMessage(update)
	if m == nil {
		return false
	}

	msg := normalizer.Normalize(wrap(m))
	if msg == nil {
		t.log.Debug("Skipping message without content", "update_id", update.UpdateID)
		return false
	}

	if t.sink != nil {
		t.sink.Add(*msg)
	}
	t.log.Debug("Message cached", "update_id", update.UpdateID, "chat_id", msg.Chat.ID, "message_id", msg.MessageID)
	return true
}

func updateMessage(u tgbotapi.Update) *tgbotapi.Message {
	switch {
	case u.Message != nil:
		return u.Message
	case u.ChannelPost != nil:
		return u.ChannelPost
	default:
		return nil
	}
}

// LookupUsername разрешает публичное имя чата через getChat.
func (t *Transport) LookupUsername(ctx context.Context, username string) (domain.Peer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Peer{}, err
	}
	chat, err := t.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: "@" + username},
	})
	if err != nil {
		return domain.Peer{}, mapError("getChat", err)
	}
	return domain.DecodeChatID(chat.ID), nil
}

// LookupPhone не поддерживается Bot API.
func (t *Transport) LookupPhone(_ context.Context, phone string) (domain.Peer, error) {
	return domain.Peer{}, &domain.ResolutionError{
		Ref:    phone,
		Reason: "phone numbers cannot be resolved by a bot",
		Err:    domain.ErrNotSupported,
	}
}

// ListMessages возвращает последние сообщения чата, самые новые первыми.
// Bot API не отдает историю; в режиме ModeManual выполняется разовый getUpdates,
// в остальных режимах входящие уже попали в кэш и активный запрос не делается.
func (t *Transport) ListMessages(ctx context.Context, peer domain.Peer, limit int) ([]domain.Message, error) {
	if t.mode != ModeManual || t.polling.Load() {
		t.log.DebugContext(ctx, "No cached messages and no fallback in this mode", "chat_id", domain.EncodeChatID(peer), "mode", string(t.mode))
		return []domain.Message{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	updates, err := t.api.GetUpdates(tgbotapi.UpdateConfig{Limit: fetchLimit})
	if err != nil {
		return nil, mapError("getUpdates", err)
	}

	chatID := domain.EncodeChatID(peer)
	out := make([]domain.Message, 0, limit)
	// getUpdates отдает обновления от старых к новым.
	for i := len(updates) - 1; i >= 0 && len(out) < limit; i-- {
		m := updateMessage(updates[i])
		if m == nil || m.Chat == nil || m.Chat.ID != chatID {
			continue
		}
		if msg := normalizer.Normalize(wrap(m)); msg != nil {
			out = append(out, *msg)
		}
	}
	return out, nil
}

// GetChatHistory возвращает страницу известного окна сообщений.
// Диспетчер с кэшем сюда не обращается; метод нужен для работы без кэша.
func (t *Transport) GetChatHistory(ctx context.Context, peer domain.Peer, limit, offset int) (domain.HistoryPage, error) {
	known, err := t.ListMessages(ctx, peer, fetchLimit)
	if err != nil {
		return domain.HistoryPage{}, err
	}
	return cache.Page(known, limit, offset), nil
}

// SendMessage отправляет сообщение или ответ.
func (t *Transport) SendMessage(ctx context.Context, peer domain.Peer, opts domain.SendOptions) (domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{}, err
	}

	chatID := domain.EncodeChatID(peer)
	cfg := tgbotapi.NewMessage(chatID, opts.Text)
	cfg.ParseMode = opts.ParseMode
	cfg.DisableNotification = opts.DisableNotification
	cfg.ReplyToMessageID = opts.ReplyToMessageID

	sent, err := t.api.Send(cfg)
	if err != nil {
		op := "sendMessage"
		if opts.ReplyToMessageID != 0 {
			op = "replyToMessage"
		}
		return domain.SendResult{}, mapError(op, err)
	}

	res := domain.SendResult{
		Success:          true,
		MessageID:        sent.MessageID,
		ReplyToMessageID: opts.ReplyToMessageID,
		ChatID:           chatID,
		Date:             int64(sent.Date),
	}
	if sent.Chat != nil {
		res.ChatID = sent.Chat.ID
	}
	t.log.InfoContext(ctx, "Message sent", "chat_id", res.ChatID, "message_id", res.MessageID)
	return res, nil
}

// GetChatInfo возвращает сведения о чате; число участников запрашивается отдельно.
func (t *Transport) GetChatInfo(ctx context.Context, peer domain.Peer) (domain.ChatInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.ChatInfo{}, err
	}

	chatCfg := tgbotapi.ChatConfig{ChatID: domain.EncodeChatID(peer)}
	chat, err := t.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: chatCfg})
	if err != nil {
		return domain.ChatInfo{}, mapError("getChat", err)
	}

	info := domain.ChatInfo{
		ID:          chat.ID,
		Type:        domain.ChatType(chat.Type),
		Title:       chat.Title,
		Username:    chat.UserName,
		FirstName:   chat.FirstName,
		LastName:    chat.LastName,
		Description: chat.Description,
		InviteLink:  chat.InviteLink,
	}
	if info.Type != domain.ChatTypePrivate {
		count, err := t.api.GetChatMembersCount(tgbotapi.ChatMemberCountConfig{ChatConfig: chatCfg})
		if err != nil {
			t.log.WarnContext(ctx, "Failed to get members count", "chat_id", chat.ID, "error", err)
		} else {
			info.MembersCount = count
		}
	}

	return info, nil
}

// mapError переводит ошибку Bot API в domain.TransportError.
func mapError(op string, err error) error {
	te := &domain.TransportError{Op: op, Err: err}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		te.Code = apiErr.Code
		te.RetryAfter = time.Duration(apiErr.RetryAfter) * time.Second
	}
	return te
}
