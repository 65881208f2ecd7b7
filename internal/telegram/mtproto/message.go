package mtproto

import (
	"github.com/gotd/td/tg"

	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/ports"
)

// Media - непрозрачное описание вложения MTProto.
type Media struct {
	Type     string `json:"type"`
	HasMedia bool   `json:"has_media"`
}

// batch - сообщения одного ответа API; ответы нормализуются, только если цель есть в батче.
type batch struct {
	peers  *peerStore
	selfID int64
	byID   map[int]*tg.Message
}

func newBatch(peers *peerStore, selfID int64, msgs []tg.MessageClass) *batch {
	b := &batch{peers: peers, selfID: selfID, byID: make(map[int]*tg.Message, len(msgs))}
	for _, m := range msgs {
		if msg, ok := m.(*tg.Message); ok {
			b.byID[msg.ID] = msg
		}
	}
	return b
}

func (b *batch) wrap(m *tg.Message) ports.RawMessage {
	if m == nil {
		return nil
	}
	return rawMessage{m: m, b: b}
}

// rawMessage адаптирует tg.Message к ports.RawMessage.
type rawMessage struct {
	m *tg.Message
	b *batch
}

var _ ports.RawMessage = rawMessage{}

func (r rawMessage) ID() int { return r.m.ID }

func (r rawMessage) Sender() *ports.RawSender {
	var id int64
	if from, ok := r.m.GetFromID(); ok {
		u, ok := from.(*tg.PeerUser)
		if !ok {
			// От имени канала или группы.
			return nil
		}
		id = u.UserID
	} else if u, ok := r.m.PeerID.(*tg.PeerUser); ok {
		// В личном чате без from_id отправитель - собеседник или мы сами.
		id = u.UserID
		if r.m.Out {
			id = r.b.selfID
		}
	} else {
		return nil
	}

	sender := &ports.RawSender{ID: id}
	if info, ok := r.b.peers.get(domain.Peer{Kind: domain.PeerUser, ID: id}); ok {
		sender.IsBot = info.bot
		sender.FirstName = info.firstName
		sender.LastName = info.lastName
		sender.Username = info.username
	}
	return sender
}

func (r rawMessage) Chat() ports.RawChat {
	peer, _ := peerOf(r.m.PeerID)
	chat := ports.RawChat{Peer: peer}
	if info, ok := r.b.peers.get(peer); ok {
		chat.Title = info.title
		chat.Username = info.username
		chat.Megagroup = info.megagroup
	}
	return chat
}

func (r rawMessage) Date() int64 { return int64(r.m.Date) }

func (r rawMessage) Text() string { return r.m.Message }

func (r rawMessage) Media() any {
	media, ok := r.m.GetMedia()
	if !ok {
		return nil
	}
	if _, empty := media.(*tg.MessageMediaEmpty); empty {
		return nil
	}
	return &Media{Type: media.TypeName(), HasMedia: true}
}

func (r rawMessage) Reply() ports.RawMessage {
	hdr, ok := r.m.GetReplyTo()
	if !ok {
		return nil
	}
	reply, ok := hdr.(*tg.MessageReplyHeader)
	if !ok {
		return nil
	}
	id, ok := reply.GetReplyToMsgID()
	if !ok {
		return nil
	}
	target, ok := r.b.byID[id]
	if !ok || target == r.m {
		return nil
	}
	return r.b.wrap(target)
}
