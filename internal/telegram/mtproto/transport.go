package mtproto

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/mattn/go-runewidth"

	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/normalizer"
	"telegram-mcp/internal/ports"
)

const (
	// warmupDialogs - сколько диалогов загружается, чтобы узнать access hash неизвестного пира.
	warmupDialogs = 100
	// previewWidth - ширина превью последнего сообщения диалога.
	previewWidth  = 50
	floodWaitCode = 420
)

var (
	_ ports.Transport         = (*Client)(nil)
	_ ports.DialogLister      = (*Client)(nil)
	_ ports.HistoryOffsetKind = (*Client)(nil)
)

func randomInt64() int64 {
	return rand.Int64()
}

// Name возвращает имя варианта развертывания.
func (c *Client) Name() string { return "user" }

// HistoryOffsetParam - история MTProto листается по offset_id.
func (c *Client) HistoryOffsetParam() string { return "offset_id" }

// LookupUsername разрешает публичное имя через contacts.resolveUsername.
func (c *Client) LookupUsername(ctx context.Context, username string) (domain.Peer, error) {
	var resolved *tg.ContactsResolvedPeer
	err := c.do(ctx, "contacts.resolveUsername", func(ctx context.Context, api telegramAPI) error {
		res, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
		resolved = res
		return err
	})
	if err != nil {
		return domain.Peer{}, err
	}
	return c.applyResolved(username, resolved)
}

// LookupPhone разрешает номер телефона через contacts.resolvePhone.
func (c *Client) LookupPhone(ctx context.Context, phone string) (domain.Peer, error) {
	var resolved *tg.ContactsResolvedPeer
	err := c.do(ctx, "contacts.resolvePhone", func(ctx context.Context, api telegramAPI) error {
		res, err := api.ContactsResolvePhone(ctx, strings.TrimPrefix(phone, "+"))
		resolved = res
		return err
	})
	if err != nil {
		return domain.Peer{}, err
	}
	return c.applyResolved(phone, resolved)
}

func (c *Client) applyResolved(ref string, res *tg.ContactsResolvedPeer) (domain.Peer, error) {
	if res == nil {
		return domain.Peer{}, &domain.ResolutionError{Ref: ref, Reason: "empty response"}
	}
	c.peers.apply(res.Users, res.Chats)
	peer, ok := peerOf(res.Peer)
	if !ok {
		return domain.Peer{}, &domain.ResolutionError{Ref: ref, Reason: "unexpected peer type"}
	}
	return peer, nil
}

// ListMessages возвращает последние сообщения чата, самые новые первыми.
func (c *Client) ListMessages(ctx context.Context, peer domain.Peer, limit int) ([]domain.Message, error) {
	msgs, _, err := c.history(ctx, peer, limit, 0)
	return msgs, err
}

// GetChatHistory возвращает страницу истории, начиная с сообщений старше offsetID (0 - с последнего).
func (c *Client) GetChatHistory(ctx context.Context, peer domain.Peer, limit, offsetID int) (domain.HistoryPage, error) {
	msgs, total, err := c.history(ctx, peer, limit, offsetID)
	if err != nil {
		return domain.HistoryPage{}, err
	}
	off := offsetID
	return domain.HistoryPage{Messages: msgs, Total: total, OffsetID: &off, Limit: limit}, nil
}

func (c *Client) history(ctx context.Context, peer domain.Peer, limit, offsetID int) ([]domain.Message, int, error) {
	input, err := c.inputPeer(ctx, peer)
	if err != nil {
		return nil, 0, err
	}

	var result tg.MessagesMessagesClass
	err = c.do(ctx, "messages.getHistory", func(ctx context.Context, api telegramAPI) error {
		res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     input,
			OffsetID: offsetID,
			Limit:    limit,
		})
		result = res
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	var (
		raw   []tg.MessageClass
		total int
	)
	switch r := result.(type) {
	case *tg.MessagesMessages:
		c.peers.apply(r.Users, r.Chats)
		raw, total = r.Messages, len(r.Messages)
	case *tg.MessagesMessagesSlice:
		c.peers.apply(r.Users, r.Chats)
		raw, total = r.Messages, r.Count
	case *tg.MessagesChannelMessages:
		c.peers.apply(r.Users, r.Chats)
		raw, total = r.Messages, r.Count
	case *tg.MessagesMessagesNotModified:
		return []domain.Message{}, r.Count, nil
	default:
		return nil, 0, c.transportError("messages.getHistory", errors.New("unexpected response type"))
	}

	b := newBatch(c.peers, c.self(), raw)
	msgs := make([]domain.Message, 0, len(raw))
	for _, m := range raw {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		if norm := normalizer.Normalize(b.wrap(msg)); norm != nil {
			msgs = append(msgs, *norm)
		}
	}
	return msgs, total, nil
}

// SendMessage отправляет сообщение. parse_mode не применяется: текст уходит без разметки.
func (c *Client) SendMessage(ctx context.Context, peer domain.Peer, opts domain.SendOptions) (domain.SendResult, error) {
	input, err := c.inputPeer(ctx, peer)
	if err != nil {
		return domain.SendResult{}, err
	}
	if opts.ParseMode != "" {
		c.log.DebugContext(ctx, "parse_mode is ignored by the user transport", "parse_mode", opts.ParseMode)
	}

	req := &tg.MessagesSendMessageRequest{
		Peer:     input,
		Message:  opts.Text,
		RandomID: c.randomID(),
		Silent:   opts.DisableNotification,
	}
	op := "messages.sendMessage"
	if opts.ReplyToMessageID != 0 {
		req.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: opts.ReplyToMessageID}
		op = "messages.sendMessage(reply)"
	}

	var updates tg.UpdatesClass
	err = c.do(ctx, op, func(ctx context.Context, api telegramAPI) error {
		res, err := api.MessagesSendMessage(ctx, req)
		updates = res
		return err
	})
	if err != nil {
		return domain.SendResult{}, err
	}

	id, date := sentMessage(updates, req.RandomID)
	if date == 0 {
		date = int(c.clock().Unix())
	}

	res := domain.SendResult{
		Success:          true,
		MessageID:        id,
		ReplyToMessageID: opts.ReplyToMessageID,
		ChatID:           domain.EncodeChatID(peer),
		Date:             int64(date),
	}
	c.log.InfoContext(ctx, "Message sent", "chat_id", res.ChatID, "message_id", res.MessageID)
	return res, nil
}

// sentMessage находит ID и дату отправленного сообщения в ответе.
func sentMessage(u tg.UpdatesClass, randomID int64) (id, date int) {
	var list []tg.UpdateClass
	switch v := u.(type) {
	case *tg.UpdateShortSentMessage:
		return v.ID, v.Date
	case *tg.Updates:
		list = v.Updates
	case *tg.UpdatesCombined:
		list = v.Updates
	default:
		return 0, 0
	}

	for _, upd := range list {
		if v, ok := upd.(*tg.UpdateMessageID); ok && v.RandomID == randomID {
			id = v.ID
		}
	}
	for _, upd := range list {
		var m tg.MessageClass
		switch v := upd.(type) {
		case *tg.UpdateNewMessage:
			m = v.Message
		case *tg.UpdateNewChannelMessage:
			m = v.Message
		default:
			continue
		}
		if msg, ok := m.(*tg.Message); ok && (id == 0 || msg.ID == id) {
			return msg.ID, msg.Date
		}
	}
	return id, date
}

// GetDialogs возвращает сводку по диалогам аккаунта.
func (c *Client) GetDialogs(ctx context.Context, limit int) ([]domain.Dialog, error) {
	var result tg.MessagesDialogsClass
	err := c.do(ctx, "messages.getDialogs", func(ctx context.Context, api telegramAPI) error {
		res, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetPeer: &tg.InputPeerEmpty{},
			Limit:      limit,
		})
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		dialogs  []tg.DialogClass
		messages []tg.MessageClass
	)
	switch r := result.(type) {
	case *tg.MessagesDialogs:
		c.peers.apply(r.Users, r.Chats)
		dialogs, messages = r.Dialogs, r.Messages
	case *tg.MessagesDialogsSlice:
		c.peers.apply(r.Users, r.Chats)
		dialogs, messages = r.Dialogs, r.Messages
	case *tg.MessagesDialogsNotModified:
		return []domain.Dialog{}, nil
	default:
		return nil, c.transportError("messages.getDialogs", errors.New("unexpected response type"))
	}

	type msgKey struct {
		peer domain.Peer
		id   int
	}
	top := make(map[msgKey]*tg.Message, len(messages))
	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		if p, ok := peerOf(msg.PeerID); ok {
			top[msgKey{p, msg.ID}] = msg
		}
	}

	out := make([]domain.Dialog, 0, len(dialogs))
	for _, d := range dialogs {
		dlg, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}
		peer, ok := peerOf(dlg.Peer)
		if !ok {
			continue
		}

		info, _ := c.peers.get(peer)
		item := domain.Dialog{
			ID:          domain.EncodeChatID(peer),
			Name:        info.name(),
			Type:        domain.ChatTypeOf(peer.Kind, info.megagroup),
			Username:    info.username,
			UnreadCount: dlg.UnreadCount,
		}
		if msg, ok := top[msgKey{peer, dlg.TopMessage}]; ok {
			last := &domain.LastMessage{
				ID:   msg.ID,
				Text: runewidth.Truncate(msg.Message, previewWidth, "..."),
				Date: int64(msg.Date),
			}
			if from, ok := msg.GetFromID(); ok {
				if u, ok := from.(*tg.PeerUser); ok {
					id := u.UserID
					last.FromID = &id
				}
			}
			item.LastMessage = last
		}
		out = append(out, item)
	}
	return out, nil
}

// GetChatInfo возвращает подробные сведения о пользователе, группе или канале.
func (c *Client) GetChatInfo(ctx context.Context, peer domain.Peer) (domain.ChatInfo, error) {
	input, err := c.inputPeer(ctx, peer)
	if err != nil {
		return domain.ChatInfo{}, err
	}

	info := domain.ChatInfo{ID: domain.EncodeChatID(peer)}

	switch p := input.(type) {
	case *tg.InputPeerUser:
		var full *tg.UsersUserFull
		err = c.do(ctx, "users.getFullUser", func(ctx context.Context, api telegramAPI) error {
			res, err := api.UsersGetFullUser(ctx, &tg.InputUser{UserID: p.UserID, AccessHash: p.AccessHash})
			full = res
			return err
		})
		if err != nil {
			return domain.ChatInfo{}, err
		}
		c.peers.apply(full.Users, full.Chats)
		info.Type = domain.ChatTypePrivate
		info.Description = full.FullUser.About

	case *tg.InputPeerChat:
		var full *tg.MessagesChatFull
		err = c.do(ctx, "messages.getFullChat", func(ctx context.Context, api telegramAPI) error {
			res, err := api.MessagesGetFullChat(ctx, p.ChatID)
			full = res
			return err
		})
		if err != nil {
			return domain.ChatInfo{}, err
		}
		c.peers.apply(full.Users, full.Chats)
		info.Type = domain.ChatTypeGroup
		if chatFull, ok := full.FullChat.(*tg.ChatFull); ok {
			info.Description = chatFull.About
			info.InviteLink = inviteLink(chatFull.GetExportedInvite())
		}

	case *tg.InputPeerChannel:
		var full *tg.MessagesChatFull
		err = c.do(ctx, "channels.getFullChannel", func(ctx context.Context, api telegramAPI) error {
			res, err := api.ChannelsGetFullChannel(ctx, &tg.InputChannel{ChannelID: p.ChannelID, AccessHash: p.AccessHash})
			full = res
			return err
		})
		if err != nil {
			return domain.ChatInfo{}, err
		}
		c.peers.apply(full.Users, full.Chats)
		if channelFull, ok := full.FullChat.(*tg.ChannelFull); ok {
			info.Description = channelFull.About
			info.InviteLink = inviteLink(channelFull.GetExportedInvite())
			if count, ok := channelFull.GetParticipantsCount(); ok {
				info.MembersCount = count
			}
		}
	}

	if known, ok := c.peers.get(peer); ok {
		info.Title = known.title
		info.Username = known.username
		info.FirstName = known.firstName
		info.LastName = known.lastName
		if peer.Kind == domain.PeerChannel {
			info.Type = domain.ChatTypeOf(peer.Kind, known.megagroup)
		}
		if info.MembersCount == 0 {
			info.MembersCount = known.membersCount
		}
	} else if peer.Kind == domain.PeerChannel {
		info.Type = domain.ChatTypeChannel
	}
	return info, nil
}

func inviteLink(inv tg.ExportedChatInviteClass, ok bool) string {
	if !ok {
		return ""
	}
	if exported, isExported := inv.(*tg.ChatInviteExported); isExported {
		return exported.Link
	}
	return ""
}

// inputPeer строит адрес пира. Если access hash неизвестен, один раз загружаются диалоги;
// если и после этого пира нет, используется нулевой хеш и решение остается за сервером.
func (c *Client) inputPeer(ctx context.Context, peer domain.Peer) (tg.InputPeerClass, error) {
	if input, ok := c.peers.inputPeer(peer); ok {
		return input, nil
	}

	if err := c.warmup(ctx); err != nil {
		return nil, err
	}

	input, ok := c.peers.inputPeer(peer)
	if !ok {
		c.log.DebugContext(ctx, "Access hash is unknown, using placeholder", "kind", peer.Kind.String(), "peer_id", peer.ID)
	}
	return input, nil
}

func (c *Client) warmup(ctx context.Context) error {
	c.warmupMu.Lock()
	defer c.warmupMu.Unlock()
	if c.warmedUp {
		return nil
	}

	if _, err := c.GetDialogs(ctx, warmupDialogs); err != nil {
		return err
	}
	c.warmedUp = true
	c.log.DebugContext(ctx, "Peer cache warmed up from dialogs", "peers", c.peers.len())
	return nil
}

// transportError оборачивает ошибку вызова в domain.TransportError.
func (c *Client) transportError(op string, err error) error {
	var existing *domain.TransportError
	if errors.As(err, &existing) {
		return err
	}

	te := &domain.TransportError{Op: op, Err: err}
	if rpcErr, ok := tgerr.As(err); ok {
		te.Code = rpcErr.Code
	}
	switch {
	case errors.Is(err, ErrFloodWaitActive):
		te.Code = floodWaitCode
		te.RetryAfter = c.retryAfter()
	default:
		if d, ok := parseFloodWait(err); ok {
			te.Code = floodWaitCode
			te.RetryAfter = d
		}
	}
	return te
}
