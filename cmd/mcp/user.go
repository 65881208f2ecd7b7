package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"telegram-mcp/internal/pkg/config"
	"telegram-mcp/internal/pkg/term"
	"telegram-mcp/internal/ports"
	"telegram-mcp/internal/sessionstore"
	"telegram-mcp/internal/telegram/credentials"
	"telegram-mcp/internal/telegram/mtproto"
	"telegram-mcp/internal/tools"
)

// Способы интерактивного входа.
const (
	authViaTool = "tool"
	authViaTTY  = "tty"
	authNone    = "none"
)

func newUserCmd() *cobra.Command {
	var authMode string

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Serve MCP tools through an MTProto user session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateUser(); err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			static := staticCredentials(cfg)
			var (
				provider ports.CredentialProvider = static
				inbox    *credentials.Mailbox
			)
			switch authMode {
			case authViaTool:
				inbox = credentials.NewMailbox(credentials.WithPhone(cfg.Telegram.PhoneNumber))
				provider = credentials.Chain{static, inbox}
			case authViaTTY:
				tty, closer, err := term.OpenTTY(cfg.Telegram.PhoneNumber)
				if err != nil {
					return fmt.Errorf("open terminal: %w", err)
				}
				defer closeQuietly(closer, logger)
				provider = credentials.Chain{static, tty}
			case authNone:
			default:
				return fmt.Errorf("unknown --auth value %q (want %s, %s or %s)", authMode, authViaTool, authViaTTY, authNone)
			}

			clientOpts := []mtproto.ClientOption{mtproto.WithLogger(logger)}
			if inbox != nil {
				clientOpts = append(clientOpts, mtproto.WithAuthObserver(inbox), mtproto.WithLoginGate(inbox))
			}
			client := newUserClient(cfg, provider, clientOpts...)
			client.Start(ctx)

			clientErr := make(chan error, 1)
			go func() {
				// Ошибка фонового клиента завершает процесс: без соединения инструменты бесполезны.
				if err := client.Wait(ctx); err != nil && !isContextCanceled(err) {
					logger.Error("Telegram client stopped", "error", err)
					clientErr <- err
					stop()
				}
			}()

			dispatcherOpts := []tools.Option{tools.WithLogger(logger)}
			if inbox != nil {
				dispatcherOpts = append(dispatcherOpts, tools.WithAuthInbox(inbox))
			}
			d := tools.NewDispatcher(client, dispatcherOpts...)
			if err := serveStdio(ctx, tools.NewMCPServer(d), logger); err != nil {
				return err
			}

			select {
			case err := <-clientErr:
				return fmt.Errorf("telegram client stopped: %w", err)
			default:
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&authMode, "auth", authViaTool,
		"How to ask for login code and 2FA password when the session is missing: tool (authenticate MCP tool), tty, none.")
	return cmd
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in interactively and save the MTProto session file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateUser(); err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			provider := credentials.Chain{staticCredentials(cfg), term.Stdio(cfg.Telegram.PhoneNumber)}
			client := newUserClient(cfg, provider, mtproto.WithLogger(logger))
			client.Start(ctx)

			if err := client.WaitReady(ctx); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := client.Health(ctx); err != nil {
				return fmt.Errorf("health check after login failed: %w", err)
			}
			logger.Info("Logged in, session saved", "session_file", cfg.Telegram.SessionFile)

			stop()
			if err := client.Wait(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func staticCredentials(cfg *config.Config) *credentials.Static {
	return &credentials.Static{
		PhoneNumber:   cfg.Telegram.PhoneNumber,
		LoginCode:     cfg.Telegram.Code,
		TwoFAPassword: cfg.Telegram.Password,
	}
}

func newUserClient(cfg *config.Config, provider ports.CredentialProvider, opts ...mtproto.ClientOption) *mtproto.Client {
	return mtproto.NewClient(mtproto.Config{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		Storage:     sessionstore.NewFile(cfg.Telegram.SessionFile),
		Credentials: provider,
	}, opts...)
}

func closeQuietly(c io.Closer, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close terminal", "error", err)
	}
}
