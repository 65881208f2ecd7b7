// Package normalizer приводит сообщения транспортов к каноническому виду.
package normalizer

import (
	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/ports"
)

// maxReplyDepth ограничивает глубину цепочки ответов.
const maxReplyDepth = 16

// Normalize преобразует сообщение транспорта в каноническое.
// Возвращает nil для сообщений без текста и без вложений: такие сообщения отбрасываются.
func Normalize(raw ports.RawMessage) *domain.Message {
	return normalize(raw, 0)
}

// NormalizeAll нормализует список, пропуская непредставимые сообщения.
func NormalizeAll(raws []ports.RawMessage) []domain.Message {
	out := make([]domain.Message, 0, len(raws))
	for _, raw := range raws {
		if msg := Normalize(raw); msg != nil {
			out = append(out, *msg)
		}
	}
	return out
}

func normalize(raw ports.RawMessage, depth int) *domain.Message {
	if raw == nil {
		return nil
	}

	text := raw.Text()
	media := raw.Media()
	if text == "" && media == nil {
		return nil
	}

	chat := raw.Chat()
	msg := &domain.Message{
		MessageID: raw.ID(),
		Chat: domain.Chat{
			ID:       domain.EncodeChatID(chat.Peer),
			Type:     domain.ChatTypeOf(chat.Peer.Kind, chat.Megagroup),
			Title:    chat.Title,
			Username: chat.Username,
		},
		Date: raw.Date(),
		Text: text,
		// Текст дублируется в caption: клиенты, читающие любое из полей, получают значение.
		Caption: text,
		Media:   media,
	}

	if sender := raw.Sender(); sender != nil {
		msg.From = &domain.User{
			ID:        sender.ID,
			IsBot:     sender.IsBot,
			FirstName: sender.FirstName,
			LastName:  sender.LastName,
			Username:  sender.Username,
		}
	}

	if depth < maxReplyDepth {
		msg.ReplyToMessage = normalize(raw.Reply(), depth+1)
	}

	return msg
}
