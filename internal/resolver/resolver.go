package resolver

import (
	"context"
	"errors"
	"log/slog"

	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/ports"
)

// Option определяет функциональную опцию для резолвера.
type Option func(*Resolver)

// WithLogger устанавливает логгер для резолвера.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// Resolver переводит ссылку на чат в пира транспорта.
type Resolver struct {
	lookup ports.EntityLookup
	log    *slog.Logger
}

// New создает резолвер, делегирующий поиск по имени и телефону транспорту.
func New(lookup ports.EntityLookup, opts ...Option) *Resolver {
	r := &Resolver{
		lookup: lookup,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve возвращает пира для ссылки. Повторных попыток не делает.
func (r *Resolver) Resolve(ctx context.Context, ref ChatReference) (domain.Peer, error) {
	switch ref.Kind {
	case KindNumericID:
		peer := domain.DecodeChatID(ref.ID)
		r.log.DebugContext(ctx, "Resolved numeric chat id", "chat_id", ref.ID, "kind", peer.Kind.String(), "peer_id", peer.ID)
		return peer, nil
	case KindUsername:
		peer, err := r.lookup.LookupUsername(ctx, ref.Username)
		if err != nil {
			return domain.Peer{}, wrapLookupError(ref, "username lookup failed", err)
		}
		r.log.DebugContext(ctx, "Resolved username", "username", ref.Username, "kind", peer.Kind.String(), "peer_id", peer.ID)
		return peer, nil
	case KindPhone:
		peer, err := r.lookup.LookupPhone(ctx, ref.Phone)
		if err != nil {
			return domain.Peer{}, wrapLookupError(ref, "phone lookup failed", err)
		}
		r.log.DebugContext(ctx, "Resolved phone", "kind", peer.Kind.String(), "peer_id", peer.ID)
		return peer, nil
	default:
		return domain.Peer{}, &domain.ResolutionError{Ref: ref.String(), Reason: "unknown reference kind"}
	}
}

// ResolveValue разбирает значение chat_id и разрешает его.
func (r *Resolver) ResolveValue(ctx context.Context, v any) (domain.Peer, ChatReference, error) {
	ref, err := ParseChatReference(v)
	if err != nil {
		return domain.Peer{}, ChatReference{}, err
	}
	peer, err := r.Resolve(ctx, ref)
	return peer, ref, err
}

func wrapLookupError(ref ChatReference, reason string, err error) error {
	var resErr *domain.ResolutionError
	if errors.As(err, &resErr) {
		return resErr
	}
	return &domain.ResolutionError{Ref: ref.String(), Reason: reason, Err: err}
}
