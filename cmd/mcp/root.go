package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"telegram-mcp/internal/log"
	"telegram-mcp/internal/pkg/config"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "telegram-mcp",
		Short:        "Telegram tools for MCP clients",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Config file path (default config.yml).")
	cmd.PersistentFlags().String("env-file", "", "Env file path (default .env, optional).")

	cmd.AddCommand(newBotCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newLoginCmd())

	return cmd
}

// setup загружает конфигурацию и создает логгер. Логи пишутся в stderr:
// stdout занят протоколом MCP.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.LoadConfig(path, envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := log.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// serveStdio обслуживает MCP-сервер на stdin/stdout до отмены контекста.
func serveStdio(ctx context.Context, s *server.MCPServer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.With("component", "mcp").Handler(), slog.LevelError))

	logger.Info("Serving MCP over stdio")
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !isContextCanceled(err) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("MCP stdio server stopped")
	return nil
}

func isContextCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
