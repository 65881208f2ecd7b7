package main

import (
	"fmt"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"telegram-mcp/internal/cache"
	"telegram-mcp/internal/log"
	"telegram-mcp/internal/telegram/botapi"
	"telegram-mcp/internal/tools"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Serve MCP tools through the Telegram Bot API",
		Long: "Serve MCP tools through the Telegram Bot API.\n" +
			"Incoming messages are collected by long polling (mode polling) or not at all (mode manual);\n" +
			"webhook mode is served by the HTTP server binary.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateBot(); err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}

			mode, err := botapi.ParseMode(cfg.Telegram.Mode)
			if err != nil {
				return err
			}
			if mode == botapi.ModeWebhook {
				return fmt.Errorf("webhook mode needs an HTTP endpoint, run the server binary instead")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := tgbotapi.SetLogger(log.NewTGBotAPIAdapter(logger)); err != nil {
				return fmt.Errorf("set tgbotapi logger: %w", err)
			}

			msgCache := cache.New(cache.WithCapacity(cfg.Cache.Capacity))
			transport, err := botapi.New(cfg.Telegram.BotToken,
				botapi.WithLogger(logger),
				botapi.WithSink(msgCache),
				botapi.WithMode(mode),
				botapi.WithAPIEndpoint(cfg.Telegram.APIEndpoint),
			)
			if err != nil {
				return fmt.Errorf("failed to create bot transport: %w", err)
			}

			go func() {
				if err := transport.Run(ctx); err != nil {
					logger.Error("Bot update loop failed", "error", err)
				}
			}()

			d := tools.NewDispatcher(transport,
				tools.WithLogger(logger),
				tools.WithCache(msgCache),
			)
			return serveStdio(ctx, tools.NewMCPServer(d), logger)
		},
	}
}
