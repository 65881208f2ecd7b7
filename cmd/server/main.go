package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"telegram-mcp/internal/cache"
	"telegram-mcp/internal/log"
	"telegram-mcp/internal/pkg/config"
	"telegram-mcp/internal/server"
	"telegram-mcp/internal/telegram/botapi"
	"telegram-mcp/internal/tools"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run() error {
	configPath := flag.String("config", "", "Config file path (default config.yml)")
	envFile := flag.String("env-file", "", "Env file path (default .env, optional)")
	botMode := flag.String("mode", config.ModeWebhook, "Bot update mode: webhook, polling or manual")
	flag.Parse()

	// 1. Загрузка конфигурации
	cfg, err := config.LoadConfig(*configPath, *envFile)
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализация логгера
	logger := log.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	slog.SetDefault(logger)

	// 3. Валидация конфигурации (после инициализации логгера)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// 4. Транспорт Bot API поднимается, только если задан токен; /health отвечает в любом случае.
	var (
		serverOpts = []server.Option{server.WithLogger(logger)}
		dispatcher *tools.Dispatcher
		updates    = make(chan struct{})
	)
	if cfg.BotConfigured() {
		cfg.Telegram.Mode = *botMode
		if err := cfg.ValidateBot(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
		mode, err := botapi.ParseMode(cfg.Telegram.Mode)
		if err != nil {
			return err
		}
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
			defer close(updates)
			if err := transport.Run(appCtx); err != nil {
				logger.Error("Bot update loop failed", "error", err)
			}
		}()

		dispatcher = tools.NewDispatcher(transport, tools.WithLogger(logger), tools.WithCache(msgCache))
		mcpHandler := mcpserver.NewStreamableHTTPServer(tools.NewMCPServer(dispatcher), mcpserver.WithEndpointPath("/mcp"))
		serverOpts = append(serverOpts, server.WithIngester(transport), server.WithMCPHandler(mcpHandler))
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set, only /health is functional")
		close(updates)
	}

	// 5. Создание HTTP-сервера
	var caller server.ToolCaller
	if dispatcher != nil {
		caller = dispatcher
	}
	srv := server.New(cfg, caller, serverOpts...)

	// 6. Запуск сервера и graceful shutdown
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		logger.Info("Starting server", "addr", cfg.Address(), "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("Signal received, shutting down...")
	case <-serverDone:
		logger.Warn("Server stopped unexpectedly, shutting down...")
	}

	// Сначала отменяем контекст приложения, чтобы остановить цикл получения обновлений
	appCancel()

	// Затем останавливаем HTTP-сервер
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	<-serverDone
	<-updates
	logger.Info("Application exited gracefully")
	return nil
}
