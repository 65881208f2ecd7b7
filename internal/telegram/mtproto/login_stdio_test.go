package mtproto

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/gotd/td/tgerr"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"telegram-mcp/internal/domain"
	"telegram-mcp/internal/telegram/credentials"
	"telegram-mcp/internal/tools"
)

type rpcResponse struct {
	ID     int64 `json:"id"`
	Result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
}

// stdioSession запускает MCP-сервер поверх пайпов, как это делает команда user.
type stdioSession struct {
	t         *testing.T
	in        *io.PipeWriter
	responses chan rpcResponse
}

func startStdio(ctx context.Context, t *testing.T, s *server.MCPServer) *stdioSession {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(log.New(io.Discard, "", 0))
	go func() {
		_ = stdio.Listen(ctx, inR, outW)
		outW.Close()
	}()

	responses := make(chan rpcResponse, 32)
	go func() {
		scanner := bufio.NewScanner(outR)
		for scanner.Scan() {
			var resp rpcResponse
			if err := json.Unmarshal(scanner.Bytes(), &resp); err == nil && resp.ID != 0 {
				responses <- resp
			}
		}
	}()

	t.Cleanup(func() { inW.Close() })
	return &stdioSession{t: t, in: inW, responses: responses}
}

func (s *stdioSession) call(id int, tool string, args map[string]any) {
	s.t.Helper()
	line, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	})
	require.NoError(s.t, err)
	_, err = s.in.Write(append(line, '\n'))
	require.NoError(s.t, err)
}

func (s *stdioSession) await(n int, timeout time.Duration) map[int64]rpcResponse {
	s.t.Helper()
	got := make(map[int64]rpcResponse, n)
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case resp := <-s.responses:
			got[resp.ID] = resp
		case <-deadline:
			s.t.Fatalf("got %d of %d responses within %v", len(got), n, timeout)
		}
	}
	return got
}

func TestLogin_AuthenticateOverStdioWhileToolsAreCalled(t *testing.T) {
	client, runner, authFlow, _ := newPendingClient(t)
	inbox := credentials.NewMailbox(credentials.WithPhone("+10000000000"), credentials.WithSettleTimeout(2*time.Second))
	client.observer = inbox
	client.gate = inbox

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner.On("Run", mock.Anything, mock.Anything).Return(nil).Once()
	runner.api.On("UsersGetUsers", mock.Anything, mock.Anything).Return(nil, errors.New("AUTH_KEY_UNREGISTERED")).Once()
	runner.api.On("UsersGetUsers", mock.Anything, mock.Anything).Return(selfUsers(), nil).Once()

	var submitted string
	authFlow.On("Run", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		code, err := inbox.Code(args.Get(0).(context.Context))
		if err == nil {
			submitted = code
		}
	}).Return(nil).Once()

	d := tools.NewDispatcher(client, tools.WithLogger(client.log), tools.WithAuthInbox(inbox))
	session := startStdio(ctx, t, tools.NewMCPServer(d))

	client.Start(ctx)
	require.Eventually(t, func() bool {
		_, waiting, _ := inbox.Pending()
		return waiting
	}, time.Second, 5*time.Millisecond)

	// Вызовов больше, чем обработчиков у stdio-сервера по умолчанию.
	const early = 6
	for id := 1; id <= early; id++ {
		session.call(id, tools.ToolListMessages, map[string]any{"chat_id": 42})
	}
	for id, resp := range session.await(early, 3*time.Second) {
		assert.True(t, resp.Result.IsError, "call %d", id)
		require.NotEmpty(t, resp.Result.Content)
		assert.Contains(t, resp.Result.Content[0].Text, string(domain.AuthNeedsCode), "call %d", id)
	}

	session.call(100, tools.ToolAuthenticate, map[string]any{"code": "12345"})
	resp := session.await(1, 3*time.Second)[100]
	require.False(t, resp.Result.IsError)
	require.NotEmpty(t, resp.Result.Content)

	var status domain.AuthStatus
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &status))
	assert.Equal(t, domain.AuthAuthenticated, status.State)

	require.NoError(t, client.WaitReady(ctx))
	assert.Equal(t, "12345", submitted)
	assert.Equal(t, domain.AuthAuthenticated, inbox.Status().State)
}

func TestLogin_RejectedCodeCanBeResubmitted(t *testing.T) {
	client, runner, authFlow, _ := newPendingClient(t)
	inbox := credentials.NewMailbox(credentials.WithPhone("+10000000000"), credentials.WithSettleTimeout(2*time.Second))
	client.observer = inbox
	client.gate = inbox

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner.On("Run", mock.Anything, mock.Anything).Return(nil).Once()
	runner.api.On("UsersGetUsers", mock.Anything, mock.Anything).Return(nil, errors.New("AUTH_KEY_UNREGISTERED")).Once()
	runner.api.On("UsersGetUsers", mock.Anything, mock.Anything).Return(selfUsers(), nil).Once()

	takeCode := func(args mock.Arguments) {
		_, _ = inbox.Code(args.Get(0).(context.Context))
	}
	authFlow.On("Run", mock.Anything, mock.Anything).Run(takeCode).
		Return(fmt.Errorf("sign in: %w", tgerr.New(400, "PHONE_CODE_INVALID"))).Once()
	authFlow.On("Run", mock.Anything, mock.Anything).Run(takeCode).Return(nil).Once()

	d := tools.NewDispatcher(client, tools.WithLogger(client.log), tools.WithAuthInbox(inbox))
	session := startStdio(ctx, t, tools.NewMCPServer(d))

	client.Start(ctx)
	require.Eventually(t, func() bool {
		_, waiting, _ := inbox.Pending()
		return waiting
	}, time.Second, 5*time.Millisecond)

	session.call(1, tools.ToolAuthenticate, map[string]any{"code": "00000"})
	var first domain.AuthStatus
	require.NoError(t, json.Unmarshal([]byte(session.await(1, 3*time.Second)[1].Result.Content[0].Text), &first))
	assert.Contains(t, first.Message, "PHONE_CODE_INVALID")

	require.Eventually(t, func() bool {
		status, waiting, _ := inbox.Pending()
		return waiting && status.State == domain.AuthNeedsCode
	}, time.Second, 5*time.Millisecond)

	session.call(2, tools.ToolAuthenticate, map[string]any{"code": "12345"})
	var second domain.AuthStatus
	require.NoError(t, json.Unmarshal([]byte(session.await(1, 3*time.Second)[2].Result.Content[0].Text), &second))
	assert.Equal(t, domain.AuthAuthenticated, second.State)

	require.NoError(t, client.WaitReady(ctx))
	authFlow.AssertNumberOfCalls(t, "Run", 2)
}
