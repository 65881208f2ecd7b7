// Package cache хранит последние сообщения каждого чата в памяти процесса.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"telegram-mcp/internal/domain"
)

// DefaultCapacity - максимальное число сообщений, хранимых на один чат.
const DefaultCapacity = 1000

// FillLimit - сколько сообщений запрашивается у транспорта, если кэш чата пуст.
const FillLimit = 100

// FillFunc активно запрашивает у транспорта последние сообщения чата
// (самые новые первыми), если в кэше для него ничего нет.
type FillFunc func(ctx context.Context, limit int) ([]domain.Message, error)

// Option настраивает MessageCache.
type Option func(*MessageCache)

// WithCapacity задает лимит сообщений на чат. Значения меньше 1 игнорируются.
func WithCapacity(n int) Option {
	return func(c *MessageCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// MessageCache - журнал последних сообщений по чатам, самые новые первыми.
// Вытеснение строго FIFO по порядку поступления.
type MessageCache struct {
	mu       sync.RWMutex
	logs     map[string][]domain.Message
	capacity int
}

// New создает пустой кэш.
func New(opts ...Option) *MessageCache {
	c := &MessageCache{
		logs:     make(map[string][]domain.Message),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key возвращает ключ журнала для канонического идентификатора чата.
func Key(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// Capacity возвращает лимит сообщений на чат.
func (c *MessageCache) Capacity() int {
	return c.capacity
}

// Add добавляет сообщение в начало журнала его чата и вытесняет самое старое при переполнении.
func (c *MessageCache) Add(msg domain.Message) {
	key := Key(msg.Chat.ID)

	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.logs[key]
	n := len(old) + 1
	if n > c.capacity {
		n = c.capacity
	}

	// Новый срез вместо сдвига на месте: ранее выданные снимки не меняются.
	entries := make([]domain.Message, n)
	entries[0] = msg
	copy(entries[1:], old)
	c.logs[key] = entries
}

// Read возвращает не более limit последних сообщений чата.
// Для неизвестного чата возвращается пустой срез.
func (c *MessageCache) Read(key string, limit int) []domain.Message {
	return window(c.snapshot(key), 0, limit)
}

// ReadPaged возвращает срез [offset, offset+limit) известного окна сообщений.
// Если кэш чата пуст, окно дополняется одним вызовом fill.
// Total - размер известного окна, а не настоящее число сообщений в чате.
func (c *MessageCache) ReadPaged(ctx context.Context, key string, limit, offset int, fill FillFunc) (domain.HistoryPage, error) {
	known := c.snapshot(key)
	if len(known) == 0 && fill != nil {
		fetched, err := fill(ctx, FillLimit)
		if err != nil {
			return domain.HistoryPage{}, fmt.Errorf("fill history for chat %s: %w", key, err)
		}
		if len(fetched) > FillLimit {
			fetched = fetched[:FillLimit]
		}
		known = fetched
	}

	return Page(known, limit, offset), nil
}

// Page возвращает срез [offset, offset+limit) окна known в виде страницы истории.
// Total - размер окна.
func Page(known []domain.Message, limit, offset int) domain.HistoryPage {
	off := offset
	return domain.HistoryPage{
		Messages: window(known, offset, limit),
		Total:    len(known),
		Offset:   &off,
		Limit:    limit,
	}
}

// Len возвращает число сообщений в журнале чата.
func (c *MessageCache) Len(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.logs[key])
}

// Chats возвращает число чатов, для которых есть журнал.
func (c *MessageCache) Chats() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.logs)
}

// snapshot возвращает журнал чата на момент вызова.
// Add никогда не изменяет уже опубликованный срез, поэтому копирование не требуется.
func (c *MessageCache) snapshot(key string) []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logs[key]
}

func window(msgs []domain.Message, offset, limit int) []domain.Message {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= len(msgs) {
		return []domain.Message{}
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	out := make([]domain.Message, end-offset)
	copy(out, msgs[offset:end])
	return out
}
