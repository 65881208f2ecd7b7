package botapi

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/ports"
)

// Media описывает вложение сообщения Bot API.
type Media struct {
	Type         string `json:"type"`
	FileID       string `json:"file_id,omitempty"`
	FileUniqueID string `json:"file_unique_id,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int    `json:"file_size,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	Emoji        string `json:"emoji,omitempty"`
}

// rawMessage адаптирует tgbotapi.Message к ports.RawMessage.
type rawMessage struct {
	m *tgbotapi.Message
}

var _ ports.RawMessage = rawMessage{}

func wrap(m *tgbotapi.Message) ports.RawMessage {
	if m == nil {
		return nil
	}
	return rawMessage{m: m}
}

func (r rawMessage) ID() int { return r.m.MessageID }

func (r rawMessage) Sender() *ports.RawSender {
	if r.m.From == nil {
		return nil
	}
	return &ports.RawSender{
		ID:        r.m.From.ID,
		IsBot:     r.m.From.IsBot,
		FirstName: r.m.From.FirstName,
		LastName:  r.m.From.LastName,
		Username:  r.m.From.UserName,
	}
}

func (r rawMessage) Chat() ports.RawChat {
	if r.m.Chat == nil {
		return ports.RawChat{}
	}
	// Идентификаторы Bot API уже канонические.
	return ports.RawChat{
		Peer:      domain.DecodeChatID(r.m.Chat.ID),
		Title:     r.m.Chat.Title,
		Username:  r.m.Chat.UserName,
		Megagroup: r.m.Chat.Type == string(domain.ChatTypeSupergroup),
	}
}

func (r rawMessage) Date() int64 { return int64(r.m.Date) }

func (r rawMessage) Text() string {
	if r.m.Text != "" {
		return r.m.Text
	}
	return r.m.Caption
}

func (r rawMessage) Media() any {
	m := mediaOf(r.m)
	if m == nil {
		return nil
	}
	return m
}

func (r rawMessage) Reply() ports.RawMessage {
	return wrap(r.m.ReplyToMessage)
}

func mediaOf(m *tgbotapi.Message) *Media {
	switch {
	case len(m.Photo) > 0:
		// Размеры идут по возрастанию, берем самый большой.
		p := m.Photo[len(m.Photo)-1]
		return &Media{Type: "photo", FileID: p.FileID, FileUniqueID: p.FileUniqueID, FileSize: p.FileSize, Width: p.Width, Height: p.Height}
	case m.Animation != nil:
		a := m.Animation
		return &Media{Type: "animation", FileID: a.FileID, FileUniqueID: a.FileUniqueID, FileName: a.FileName, MimeType: a.MimeType, FileSize: a.FileSize, Width: a.Width, Height: a.Height, Duration: a.Duration}
	case m.Document != nil:
		d := m.Document
		return &Media{Type: "document", FileID: d.FileID, FileUniqueID: d.FileUniqueID, FileName: d.FileName, MimeType: d.MimeType, FileSize: d.FileSize}
	case m.Video != nil:
		v := m.Video
		return &Media{Type: "video", FileID: v.FileID, FileUniqueID: v.FileUniqueID, FileName: v.FileName, MimeType: v.MimeType, FileSize: v.FileSize, Width: v.Width, Height: v.Height, Duration: v.Duration}
	case m.Audio != nil:
		a := m.Audio
		return &Media{Type: "audio", FileID: a.FileID, FileUniqueID: a.FileUniqueID, FileName: a.FileName, MimeType: a.MimeType, FileSize: a.FileSize, Duration: a.Duration}
	case m.Voice != nil:
		v := m.Voice
		return &Media{Type: "voice", FileID: v.FileID, FileUniqueID: v.FileUniqueID, MimeType: v.MimeType, FileSize: v.FileSize, Duration: v.Duration}
	case m.VideoNote != nil:
		v := m.VideoNote
		return &Media{Type: "video_note", FileID: v.FileID, FileUniqueID: v.FileUniqueID, FileSize: v.FileSize, Duration: v.Duration}
	case m.Sticker != nil:
		s := m.Sticker
		return &Media{Type: "sticker", FileID: s.FileID, FileUniqueID: s.FileUniqueID, FileSize: s.FileSize, Width: s.Width, Height: s.Height, Emoji: s.Emoji}
	case m.Contact != nil:
		return &Media{Type: "contact"}
	case m.Location != nil:
		return &Media{Type: "location"}
	case m.Poll != nil:
		return &Media{Type: "poll"}
	default:
		return nil
	}
}
