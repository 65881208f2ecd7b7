// Package config предоставляет управление конфигурацией приложения
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Server содержит конфигурацию HTTP-сервера
type Server struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Telegram содержит параметры обоих вариантов подключения.
type Telegram struct {
	// Bot API
	BotToken    string `json:"-" yaml:"bot_token"`
	Mode        string `json:"mode" yaml:"mode"` // polling, webhook, manual
	APIEndpoint string `json:"api_endpoint,omitempty" yaml:"api_endpoint"`

	// MTProto
	APIID       int    `json:"api_id" yaml:"api_id"`
	APIHash     string `json:"-" yaml:"api_hash"`
	PhoneNumber string `json:"phone_number,omitempty" yaml:"phone_number"`
	Password    string `json:"-" yaml:"password"`
	Code        string `json:"-" yaml:"code"`
	SessionFile string `json:"session_file" yaml:"session_file"`
}

// Cache содержит конфигурацию кэша последних сообщений
type Cache struct {
	Capacity int `json:"capacity" yaml:"capacity"`
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// Config содержит конфигурацию приложения
type Config struct {
	Environment string   `json:"environment" yaml:"environment"`
	Server      Server   `json:"server" yaml:"server"`
	Telegram    Telegram `json:"telegram" yaml:"telegram"`
	Cache       Cache    `json:"cache" yaml:"cache"`
	Logging     Logging  `json:"logging" yaml:"logging"`
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем config.yml, затем переменные окружения.
// envFile - .env файл; пустая строка означает ".env" в текущем каталоге, отсутствие которого не ошибка.
// path - YAML-файл; пустая строка означает config.yml.
func LoadConfig(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("не удалось загрузить %s: %w", envFile, err)
		}
	} else {
		// Если .env файла не существует, это нормально, мы будем полагаться на переменные окружения или config.yml
		_ = godotenv.Load()
	}

	if path == "" {
		path = DefaultConfigFile
	}

	cfg := defaultConfig()
	if err := loadFromYAML(path, cfg); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию из env: %w", err)
	}
	return cfg, nil
}

// loadFromYAML накладывает значения из YAML-файла на cfg. Отсутствие файла не является ошибкой.
func loadFromYAML(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
	}
	return nil
}

// applyEnv переопределяет значения переменными окружения.
func applyEnv(cfg *Config) error {
	setString(&cfg.Environment, "APP_ENV")
	setString(&cfg.Server.Host, "SERVER_HOST")
	setString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Telegram.Mode, "TELEGRAM_MODE")
	setString(&cfg.Telegram.APIEndpoint, "TELEGRAM_API_ENDPOINT")
	setString(&cfg.Telegram.APIHash, "TELEGRAM_API_HASH")
	setString(&cfg.Telegram.PhoneNumber, "TELEGRAM_PHONE")
	setString(&cfg.Telegram.Password, "TELEGRAM_PASSWORD")
	setString(&cfg.Telegram.Code, "TELEGRAM_CODE")
	setString(&cfg.Telegram.SessionFile, "TELEGRAM_SESSION_FILE")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	if err := setInt(&cfg.Server.Port, "SERVER_PORT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Telegram.APIID, "TELEGRAM_API_ID"); err != nil {
		return err
	}
	if err := setInt(&cfg.Cache.Capacity, "CACHE_CAPACITY"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("недопустимый %s: %w", key, err)
	}
	*dst = n
	return nil
}

// Address возвращает адрес сервера в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BotConfigured сообщает, задан ли токен бота.
func (c *Config) BotConfigured() bool {
	return c.Telegram.BotToken != ""
}

// Validate проверяет общую часть конфигурации
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port должен быть действительным номером порта (1-65535)")
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout должно быть положительным")
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity должно быть положительным целым числом")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// all good
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format должен быть одним из: json, text")
	}

	return nil
}

// ValidateBot проверяет параметры варианта Bot API.
func (c *Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token (TELEGRAM_BOT_TOKEN) не может быть пустым")
	}
	switch c.Telegram.Mode {
	case ModePolling, ModeWebhook, ModeManual:
	default:
		return fmt.Errorf("telegram.mode должен быть одним из: polling, webhook, manual")
	}
	return nil
}

// ValidateUser проверяет параметры пользовательской сессии MTProto.
func (c *Config) ValidateUser() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Telegram.APIID <= 0 {
		return fmt.Errorf("telegram.api_id (TELEGRAM_API_ID) должно быть положительным целым числом")
	}
	if c.Telegram.APIHash == "" {
		return fmt.Errorf("telegram.api_hash (TELEGRAM_API_HASH) не может быть пустым")
	}
	if c.Telegram.SessionFile == "" {
		return fmt.Errorf("telegram.session_file не может быть пустым")
	}
	return nil
}
