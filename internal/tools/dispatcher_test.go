package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"telegram-mcp/internal/cache"
	"telegram-mcp/internal/domain"
)

// mockTransport - мок транспорта без списка диалогов (как у Bot API).
type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Name() string { return "mock" }

func (m *mockTransport) LookupUsername(ctx context.Context, username string) (domain.Peer, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(domain.Peer), args.Error(1)
}

func (m *mockTransport) LookupPhone(ctx context.Context, phone string) (domain.Peer, error) {
	args := m.Called(ctx, phone)
	return args.Get(0).(domain.Peer), args.Error(1)
}

func (m *mockTransport) ListMessages(ctx context.Context, peer domain.Peer, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, peer, limit)
	msgs, _ := args.Get(0).([]domain.Message)
	return msgs, args.Error(1)
}

func (m *mockTransport) GetChatHistory(ctx context.Context, peer domain.Peer, limit, offset int) (domain.HistoryPage, error) {
	args := m.Called(ctx, peer, limit, offset)
	return args.Get(0).(domain.HistoryPage), args.Error(1)
}

func (m *mockTransport) SendMessage(ctx context.Context, peer domain.Peer, opts domain.SendOptions) (domain.SendResult, error) {
	args := m.Called(ctx, peer, opts)
	return args.Get(0).(domain.SendResult), args.Error(1)
}

func (m *mockTransport) GetChatInfo(ctx context.Context, peer domain.Peer) (domain.ChatInfo, error) {
	args := m.Called(ctx, peer)
	return args.Get(0).(domain.ChatInfo), args.Error(1)
}

// mockUserTransport дополнительно перечисляет диалоги и использует offset_id.
type mockUserTransport struct {
	mockTransport
}

func (m *mockUserTransport) GetDialogs(ctx context.Context, limit int) ([]domain.Dialog, error) {
	args := m.Called(ctx, limit)
	dialogs, _ := args.Get(0).([]domain.Dialog)
	return dialogs, args.Error(1)
}

func (m *mockUserTransport) HistoryOffsetParam() string { return "offset_id" }

type stubInbox struct {
	phone, code, password string
}

func (s *stubInbox) Submit(_ context.Context, phone, code, password string) domain.AuthStatus {
	s.phone, s.code, s.password = phone, code, password
	return domain.AuthStatus{State: domain.AuthNeedsCode}
}

func toolNames(d *Dispatcher) []string {
	var names []string
	for _, t := range d.Tools() {
		names = append(names, t.Name)
	}
	return names
}

func requireToolError(t *testing.T, err error, code int) *ToolError {
	t.Helper()
	require.Error(t, err)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, code, te.Code)
	return te
}

func TestDispatcher_ToolSet(t *testing.T) {
	bot := NewDispatcher(&mockTransport{})
	assert.Equal(t, []string{ToolListMessages, ToolGetChatHistory, ToolSendMessage, ToolReplyToMessage, ToolGetChatInfo}, toolNames(bot))

	user := NewDispatcher(&mockUserTransport{}, WithAuthInbox(&stubInbox{}))
	assert.Equal(t, []string{ToolListMessages, ToolGetChatHistory, ToolSendMessage, ToolReplyToMessage, ToolGetDialogs, ToolGetChatInfo, ToolAuthenticate}, toolNames(user))
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d := NewDispatcher(&mockTransport{})

	_, err := d.Call(context.Background(), "delete_everything", nil)
	requireToolError(t, err, mcp.METHOD_NOT_FOUND)

	// get_dialogs не регистрируется для транспорта без списка диалогов.
	_, err = d.Call(context.Background(), ToolGetDialogs, map[string]any{})
	requireToolError(t, err, mcp.METHOD_NOT_FOUND)
}

func TestDispatcher_SendMessageValidation(t *testing.T) {
	tr := &mockTransport{}
	d := NewDispatcher(tr)

	t.Run("Пустой текст", func(t *testing.T) {
		_, err := d.Call(context.Background(), ToolSendMessage, map[string]any{"chat_id": float64(1), "text": ""})
		te := requireToolError(t, err, mcp.INVALID_PARAMS)
		require.Len(t, te.Fields, 1)
		assert.Equal(t, "text", te.Fields[0].Field)
	})

	t.Run("Все нарушения перечисляются", func(t *testing.T) {
		_, err := d.Call(context.Background(), ToolSendMessage, map[string]any{
			"text":                 42.0,
			"parse_mode":           "BBCode",
			"disable_notification": "yes",
		})
		te := requireToolError(t, err, mcp.INVALID_PARAMS)

		fields := map[string]string{}
		for _, f := range te.Fields {
			fields[f.Field] = f.Reason
		}
		assert.Equal(t, "is required", fields["chat_id"])
		assert.Equal(t, "must be a string", fields["text"])
		assert.Contains(t, fields["parse_mode"], "MarkdownV2")
		assert.Equal(t, "must be a boolean", fields["disable_notification"])
	})

	tr.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_ListMessagesClampsLimit(t *testing.T) {
	tr := &mockTransport{}
	d := NewDispatcher(tr)
	peer := domain.Peer{Kind: domain.PeerGroup, ID: 55}

	tr.On("ListMessages", mock.Anything, peer, 100).Return([]domain.Message{{MessageID: 1}}, nil).Once()
	tr.On("ListMessages", mock.Anything, peer, 1).Return([]domain.Message{}, nil).Once()
	tr.On("ListMessages", mock.Anything, peer, 10).Return([]domain.Message{}, nil).Once()

	res, err := d.Call(context.Background(), ToolListMessages, map[string]any{"chat_id": float64(-55), "limit": float64(500)})
	require.NoError(t, err)
	assert.Len(t, res, 1)

	_, err = d.Call(context.Background(), ToolListMessages, map[string]any{"chat_id": "-55", "limit": float64(-3)})
	require.NoError(t, err)

	_, err = d.Call(context.Background(), ToolListMessages, map[string]any{"chat_id": "-55"})
	require.NoError(t, err)

	_, err = d.Call(context.Background(), ToolListMessages, map[string]any{"chat_id": "-55", "limit": 2.5})
	requireToolError(t, err, mcp.INVALID_PARAMS)

	_, err = d.Call(context.Background(), ToolListMessages, map[string]any{"chat_id": "-55", "limit": "ten"})
	requireToolError(t, err, mcp.INVALID_PARAMS)

	tr.AssertExpectations(t)
}

func TestDispatcher_CacheFirst(t *testing.T) {
	tr := &mockTransport{}
	c := cache.New()
	d := NewDispatcher(tr, WithCache(c))

	for i := 1; i <= 5; i++ {
		c.Add(domain.Message{MessageID: i, Chat: domain.Chat{ID: 77, Type: domain.ChatTypePrivate}, Text: "x", Caption: "x"})
	}

	t.Run("list_messages читает кэш", func(t *testing.T) {
		res, err := d.Call(context.Background(), ToolListMessages, map[string]any{"chat_id": 77, "limit": 3})
		require.NoError(t, err)
		msgs := res.([]domain.Message)
		require.Len(t, msgs, 3)
		assert.Equal(t, 5, msgs[0].MessageID)
	})

	t.Run("get_chat_history: пять записей, total 5", func(t *testing.T) {
		res, err := d.Call(context.Background(), ToolGetChatHistory, map[string]any{"chat_id": "77", "offset": 0, "limit": 20})
		require.NoError(t, err)
		page := res.(domain.HistoryPage)
		assert.Len(t, page.Messages, 5)
		assert.Equal(t, 5, page.Total)
		require.NotNil(t, page.Offset)
		assert.Nil(t, page.OffsetID)
	})

	t.Run("Пустой кэш дополняется транспортом", func(t *testing.T) {
		peer := domain.Peer{Kind: domain.PeerUser, ID: 88}
		tr.On("ListMessages", mock.Anything, peer, cache.FillLimit).Return([]domain.Message{{MessageID: 9}}, nil).Once()

		res, err := d.Call(context.Background(), ToolGetChatHistory, map[string]any{"chat_id": 88})
		require.NoError(t, err)
		page := res.(domain.HistoryPage)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 20, page.Limit)
	})

	tr.AssertNotCalled(t, "GetChatHistory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_UserHistoryUsesOffsetID(t *testing.T) {
	tr := &mockUserTransport{}
	d := NewDispatcher(tr)
	peer := domain.Peer{Kind: domain.PeerChannel, ID: 1234567890}
	offsetID := 500

	tr.On("GetChatHistory", mock.Anything, peer, 20, 500).
		Return(domain.HistoryPage{Total: 0, OffsetID: &offsetID, Limit: 20, Messages: []domain.Message{}}, nil).Once()

	res, err := d.Call(context.Background(), ToolGetChatHistory, map[string]any{"chat_id": "-1001234567890", "offset_id": float64(500)})
	require.NoError(t, err)
	page := res.(domain.HistoryPage)
	require.NotNil(t, page.OffsetID)
	assert.Equal(t, 500, *page.OffsetID)
	tr.AssertExpectations(t)
}

func TestDispatcher_ReplyAndDialogs(t *testing.T) {
	tr := &mockUserTransport{}
	d := NewDispatcher(tr)

	tr.On("LookupUsername", mock.Anything, "durov").Return(domain.Peer{Kind: domain.PeerUser, ID: 1}, nil).Once()
	tr.On("SendMessage", mock.Anything, domain.Peer{Kind: domain.PeerUser, ID: 1}, domain.SendOptions{
		Text:             "hi",
		ParseMode:        "HTML",
		ReplyToMessageID: 10,
	}).Return(domain.SendResult{Success: true, MessageID: 11, ReplyToMessageID: 10, ChatID: 1}, nil).Once()

	res, err := d.Call(context.Background(), ToolReplyToMessage, map[string]any{
		"chat_id": "@durov", "message_id": float64(10), "text": "hi", "parse_mode": "HTML",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.(domain.SendResult).ReplyToMessageID)

	_, err = d.Call(context.Background(), ToolReplyToMessage, map[string]any{"chat_id": 1, "message_id": 0, "text": "hi"})
	te := requireToolError(t, err, mcp.INVALID_PARAMS)
	assert.Equal(t, "message_id", te.Fields[0].Field)

	tr.On("GetDialogs", mock.Anything, 200).Return([]domain.Dialog{{ID: 1, Name: "A"}}, nil).Once()
	res, err = d.Call(context.Background(), ToolGetDialogs, map[string]any{"limit": 1000})
	require.NoError(t, err)
	assert.Len(t, res, 1)

	tr.AssertExpectations(t)
}

func TestDispatcher_InternalErrors(t *testing.T) {
	tr := &mockTransport{}
	d := NewDispatcher(tr)

	t.Run("Ошибка транспорта сохраняет текст", func(t *testing.T) {
		peer := domain.Peer{Kind: domain.PeerUser, ID: 5}
		tr.On("GetChatInfo", mock.Anything, peer).
			Return(domain.ChatInfo{}, &domain.TransportError{Op: "getChat", Code: 400, Err: errors.New("Bad Request: chat not found")}).Once()

		_, err := d.Call(context.Background(), ToolGetChatInfo, map[string]any{"chat_id": 5})
		te := requireToolError(t, err, mcp.INTERNAL_ERROR)
		assert.Contains(t, te.Message, "chat not found")
	})

	t.Run("Некорректный числовой chat_id не ищется как имя", func(t *testing.T) {
		_, err := d.Call(context.Background(), ToolGetChatInfo, map[string]any{"chat_id": "-100abc"})
		te := requireToolError(t, err, mcp.INTERNAL_ERROR)
		assert.Contains(t, te.Message, "malformed numeric chat id")
		tr.AssertNotCalled(t, "LookupUsername", mock.Anything, mock.Anything)
	})

	t.Run("Дробный chat_id отклоняется схемой", func(t *testing.T) {
		_, err := d.Call(context.Background(), ToolGetChatInfo, map[string]any{"chat_id": 1.5})
		requireToolError(t, err, mcp.INVALID_PARAMS)
	})
}

func TestDispatcher_Authenticate(t *testing.T) {
	inbox := &stubInbox{}
	d := NewDispatcher(&mockUserTransport{}, WithAuthInbox(inbox))

	res, err := d.Call(context.Background(), ToolAuthenticate, map[string]any{"phone": "+10000000000"})
	require.NoError(t, err)
	assert.Equal(t, domain.AuthStatus{State: domain.AuthNeedsCode}, res)
	assert.Equal(t, "+10000000000", inbox.phone)
	assert.Empty(t, inbox.code)
}
