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

// MemoryMessageLog is an in-memory MessageLog for tests and database-less
// deployments.
type MemoryMessageLog struct {
	mu       sync.Mutex
	messages map[string][]MessageRecord
}

// NewMemoryMessageLog creates an empty message log.
func NewMemoryMessageLog() *MemoryMessageLog {
	return &MemoryMessageLog{messages: make(map[string][]MessageRecord)}
}

// AppendMessage implements MessageLog.
func (m *MemoryMessageLog) AppendMessage(_ context.Context, msg MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	return nil
}

// ListMessages implements MessageLog. Messages come back oldest first; limit
// keeps the newest entries, zero means all.
func (m *MemoryMessageLog) ListMessages(_ context.Context, sessionID string, limit int) ([]MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]MessageRecord, len(msgs))
	copy(out, msgs)
	return out, nil
}

// MemoryAuditLog is an in-memory AuditLog.
type MemoryAuditLog struct {
	mu      sync.Mutex
	records []AuditRecord
}

// NewMemoryAuditLog creates an empty audit log.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

// AppendAudit implements AuditLog.
func (m *MemoryAuditLog) AppendAudit(_ context.Context, rec AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (m *MemoryAuditLog) Records() []AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditRecord, len(m.records))
	copy(out, m.records)
	return out
}
