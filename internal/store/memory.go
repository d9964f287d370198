package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Nothing survives the process.
type Memory struct {
	mu    sync.Mutex
	rec   Record
	has   bool
	saves int
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) EnsureSchema(context.Context) error { return nil }

func (m *Memory) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = rec
	m.has = true
	m.saves++
	return nil
}

func (m *Memory) Load(context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.has {
		return Record{}, ErrNotFound
	}
	return m.rec, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = Record{}
	m.has = false
	return nil
}

func (m *Memory) Close() error { return nil }

// Saves reports how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
