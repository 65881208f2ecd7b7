package tools

import (
	"context"
	"log/slog"

	"telegram-mcp/internal/cache"
	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/ports"
	"telegram-mcp/internal/resolver"
)

// Option определяет функциональную опцию для Dispatcher.
type Option func(*Dispatcher)

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithCache подключает кэш последних сообщений; list_messages и get_chat_history
// сначала читают его и обращаются к транспорту, только если чат в кэше пуст.
func WithCache(c *cache.MessageCache) Option {
	return func(d *Dispatcher) {
		d.cache = c
	}
}

// WithAuthInbox регистрирует инструмент authenticate.
func WithAuthInbox(inbox ports.AuthInbox) Option {
	return func(d *Dispatcher) {
		d.auth = inbox
	}
}

// Dispatcher проверяет аргументы вызовов и направляет их транспорту.
type Dispatcher struct {
	transport   ports.Transport
	resolver    *resolver.Resolver
	cache       *cache.MessageCache
	auth        ports.AuthInbox
	log         *slog.Logger
	offsetParam string
	defs        []Tool
	byName      map[string]Tool
}

// NewDispatcher создает диспетчер для транспорта. get_dialogs доступен,
// только если транспорт реализует ports.DialogLister.
func NewDispatcher(transport ports.Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:   transport,
		log:         slog.Default(),
		offsetParam: "offset",
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "dispatcher", "transport", transport.Name())
	d.resolver = resolver.New(transport, resolver.WithLogger(d.log))

	if k, ok := transport.(ports.HistoryOffsetKind); ok {
		d.offsetParam = k.HistoryOffsetParam()
	}
	_, withDialogs := transport.(ports.DialogLister)

	d.defs = Definitions(d.offsetParam, withDialogs, d.auth != nil)
	d.byName = make(map[string]Tool, len(d.defs))
	for _, def := range d.defs {
		d.byName[def.Name] = def
	}
	return d
}

// Tools возвращает определения доступных инструментов в порядке регистрации.
func (d *Dispatcher) Tools() []Tool {
	out := make([]Tool, len(d.defs))
	copy(out, d.defs)
	return out
}

// Call выполняет инструмент. Ошибка всегда имеет тип *ToolError.
func (d *Dispatcher) Call(ctx context.Context, name string, raw map[string]any) (any, error) {
	def, ok := d.byName[name]
	if !ok {
		d.log.WarnContext(ctx, "Unknown tool requested", "tool", name)
		return nil, MethodNotFound(name)
	}

	args, err := Validate(def, raw)
	if err != nil {
		d.log.InfoContext(ctx, "Tool arguments rejected", "tool", name, "error", err)
		return nil, AsToolError(err)
	}

	result, err := d.route(ctx, name, args)
	if err != nil {
		d.log.ErrorContext(ctx, "Tool call failed", "tool", name, "error", err)
		return nil, AsToolError(err)
	}

	d.log.DebugContext(ctx, "Tool call completed", "tool", name)
	return result, nil
}

func (d *Dispatcher) route(ctx context.Context, name string, args Args) (any, error) {
	switch name {
	case ToolListMessages:
		return d.listMessages(ctx, args)
	case ToolGetChatHistory:
		return d.getChatHistory(ctx, args)
	case ToolSendMessage:
		return d.send(ctx, args, 0)
	case ToolReplyToMessage:
		return d.send(ctx, args, args.Int("message_id"))
	case ToolGetDialogs:
		return d.transport.(ports.DialogLister).GetDialogs(ctx, args.Int("limit"))
	case ToolGetChatInfo:
		peer, err := d.resolve(ctx, args)
		if err != nil {
			return nil, err
		}
		return d.transport.GetChatInfo(ctx, peer)
	case ToolAuthenticate:
		return d.auth.Submit(ctx, args.String("phone"), args.String("code"), args.String("password")), nil
	default:
		return nil, MethodNotFound(name)
	}
}

func (d *Dispatcher) resolve(ctx context.Context, args Args) (domain.Peer, error) {
	peer, _, err := d.resolver.ResolveValue(ctx, args["chat_id"])
	return peer, err
}

func (d *Dispatcher) listMessages(ctx context.Context, args Args) ([]domain.Message, error) {
	peer, err := d.resolve(ctx, args)
	if err != nil {
		return nil, err
	}
	limit := args.Int("limit")

	if d.cache != nil {
		if cached := d.cache.Read(cache.Key(domain.EncodeChatID(peer)), limit); len(cached) > 0 {
			return cached, nil
		}
	}

	msgs, err := d.transport.ListMessages(ctx, peer, limit)
	if err != nil {
		return nil, err
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (d *Dispatcher) getChatHistory(ctx context.Context, args Args) (domain.HistoryPage, error) {
	peer, err := d.resolve(ctx, args)
	if err != nil {
		return domain.HistoryPage{}, err
	}
	limit := args.Int("limit")
	offset := args.Int(d.offsetParam)

	if d.cache != nil {
		fill := func(ctx context.Context, n int) ([]domain.Message, error) {
			return d.transport.ListMessages(ctx, peer, n)
		}
		return d.cache.ReadPaged(ctx, cache.Key(domain.EncodeChatID(peer)), limit, offset, fill)
	}

	return d.transport.GetChatHistory(ctx, peer, limit, offset)
}

func (d *Dispatcher) send(ctx context.Context, args Args, replyTo int) (domain.SendResult, error) {
	peer, err := d.resolve(ctx, args)
	if err != nil {
		return domain.SendResult{}, err
	}

	return d.transport.SendMessage(ctx, peer, domain.SendOptions{
		Text:                args.String("text"),
		ParseMode:           args.String("parse_mode"),
		DisableNotification: args.Bool("disable_notification"),
		ReplyToMessageID:    replyTo,
	})
}
