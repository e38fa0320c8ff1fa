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

// Package storage provides the persistence backend for the orchestrator.
// The core holds authoritative in-memory state; this layer is the durable
// key/value row store behind it.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("row not found")

// Well-known tables. Values are opaque JSON documents.
const (
	TableAgentStates   = "agent_states"
	TableActions       = "actions"
	TableScheduledJobs = "scheduled_jobs"
	TableSessions      = "sessions"
)

// Backend is the key/value row store the orchestrator persists into.
type Backend interface {
	// PutRow writes value under (table, key), replacing any previous value.
	PutRow(ctx context.Context, table, key string, value []byte) error

	// GetRow reads the value under (table, key). Returns ErrNotFound when
	// the row does not exist.
	GetRow(ctx context.Context, table, key string) ([]byte, error)

	// DeleteRow removes the row. Deleting a missing row is not an error.
	DeleteRow(ctx context.Context, table, key string) error

	// ListRows returns all rows of a table keyed by row key.
	ListRows(ctx context.Context, table string) (map[string][]byte, error)

	Close() error
}

// MessageRecord is one entry in the external chat log.
type MessageRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageLog persists user and assistant messages per session.
type MessageLog interface {
	AppendMessage(ctx context.Context, msg MessageRecord) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error)
}

// AuditRecord is one append-only audit entry.
type AuditRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	EventType string    `json:"eventType"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditLog persists an append-only record per visible domain event.
type AuditLog interface {
	AppendAudit(ctx context.Context, rec AuditRecord) error
}
