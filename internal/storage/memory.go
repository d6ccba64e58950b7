package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps accounts in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu    sync.RWMutex
	users map[string]Record
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{users: make(map[string]Record)}
}

func (b *MemoryBackend) Get(_ context.Context, username string) (Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.users[username]
	if !ok {
		return Record{}, ErrUserNotFound
	}
	return rec, nil
}

func (b *MemoryBackend) Put(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[rec.Username] = rec
	return nil
}

func (b *MemoryBackend) Create(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[rec.Username]; ok {
		return ErrUserExists
	}
	b.users[rec.Username] = rec
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, username string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[username]; !ok {
		return ErrUserNotFound
	}
	delete(b.users, username)
	return nil
}

func (b *MemoryBackend) List(_ context.Context) ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	records := make([]Record, 0, len(b.users))
	for _, rec := range b.users {
		records = append(records, rec)
	}
	return records, nil
}
