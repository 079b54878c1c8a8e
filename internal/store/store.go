// Package store provides the durable per-session key-value store the engine
// persists its selector cache snapshots into.
package store

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrQuotaExceeded is returned when a write would exceed the store quota.
	ErrQuotaExceeded = errors.New("store: quota exceeded")
	// ErrDisabled is returned by a store that refuses all access.
	ErrDisabled = errors.New("store: storage disabled")
)

// Store is a string key-value store. Get reports absence with ok == false.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Memory is an in-memory store. A positive Quota bounds the total size of keys and
// values in bytes.
type Memory struct {
	Quota int

	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty memory store without quota.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	if m.Quota > 0 {
		size := len(key) + len(value)
		for k, v := range m.data {
			if k != key {
				size += len(k) + len(v)
			}
		}
		if size > m.Quota {
			return ErrQuotaExceeded
		}
	}
	m.data[key] = value
	return nil
}

// Disabled is a store that fails every operation, the way browser storage behaves
// when blocked by privacy settings.
type Disabled struct{}

func (Disabled) Get(string) (string, bool, error) { return "", false, ErrDisabled }
func (Disabled) Set(string, string) error         { return ErrDisabled }
