// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"sync"
)

// MemoryBackend is a Backend kept entirely in memory. Used in tests and as
// the fallback when no database path is configured.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[string]map[string][]byte)}
}

// PutRow implements Backend.
func (m *MemoryBackend) PutRow(_ context.Context, table, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables[table] == nil {
		m.tables[table] = make(map[string][]byte)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.tables[table][key] = cp
	return nil
}

// GetRow implements Backend.
func (m *MemoryBackend) GetRow(_ context.Context, table, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.tables[table][key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

// DeleteRow implements Backend.
func (m *MemoryBackend) DeleteRow(_ context.Context, table, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables[table], key)
	return nil
}

// ListRows implements Backend.
func (m *MemoryBackend) ListRows(_ context.Context, table string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.tables[table]))
	for k, v := range m.tables[table] {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }
