package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps accounts in a JSON document keyed by username, the
// format of the dashboard's users.json.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend creates a backend over path. The file is created on the
// first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Get(_ context.Context, username string) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	users, err := b.load()
	if err != nil {
		return Record{}, err
	}
	rec, ok := users[username]
	if !ok {
		return Record{}, ErrUserNotFound
	}
	return rec, nil
}

func (b *FileBackend) Put(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	users, err := b.load()
	if err != nil {
		return err
	}
	users[rec.Username] = rec
	return b.save(users)
}

func (b *FileBackend) Create(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	users, err := b.load()
	if err != nil {
		return err
	}
	if _, ok := users[rec.Username]; ok {
		return ErrUserExists
	}
	users[rec.Username] = rec
	return b.save(users)
}

func (b *FileBackend) Delete(_ context.Context, username string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	users, err := b.load()
	if err != nil {
		return err
	}
	if _, ok := users[username]; !ok {
		return ErrUserNotFound
	}
	delete(users, username)
	return b.save(users)
}

func (b *FileBackend) List(_ context.Context) ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	users, err := b.load()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(users))
	for _, rec := range users {
		records = append(records, rec)
	}
	return records, nil
}

// load reads the document; a missing file is an empty store
func (b *FileBackend) load() (map[string]Record, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]Record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	users := make(map[string]Record)
	if len(data) == 0 {
		return users, nil
	}
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}
	for name, rec := range users {
		rec.Username = name
		users[name] = rec
	}
	return users, nil
}

// save writes through a temp file so readers never see a partial document
func (b *FileBackend) save(users map[string]Record) error {
	data, err := json.MarshalIndent(users, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create users dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("failed to replace users file: %w", err)
	}
	return nil
}
