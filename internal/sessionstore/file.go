// Package sessionstore хранит сессию MTProto в одном файле.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gotd/td/session"
)

// File реализует session.Storage. Запись атомарна: данные пишутся во временный файл
// рядом с целевым и переименовываются поверх него.
type File struct {
	path string
	mu   sync.Mutex
}

var _ session.Storage = (*File)(nil)

// NewFile создает хранилище для пути path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path возвращает путь к файлу сессии.
func (f *File) Path() string {
	return f.path
}

// Exists сообщает, сохранена ли сессия.
func (f *File) Exists() bool {
	info, err := os.Stat(f.path)
	return err == nil && info.Size() > 0
}

// LoadSession возвращает session.ErrNotFound, если файла нет или он пуст.
func (f *File) LoadSession(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return nil, session.ErrNotFound
	}
	return data, nil
}

// StoreSession перезаписывает файл сессии.
func (f *File) StoreSession(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // после успешного переименования файла уже нет

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
