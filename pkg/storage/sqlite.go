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
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers "sqlite" driver
)

// SQLiteBackend implements Backend, MessageLog and AuditLog on a single
// SQLite database file.
type SQLiteBackend struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteBackend opens (and migrates) the database at dbPath.
func NewSQLiteBackend(ctx context.Context, dbPath string, logger *zap.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", dbPath, err)
	}

	// Single writer; WAL keeps readers unblocked during persists.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	b := &SQLiteBackend{db: db, logger: logger}
	if err := b.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return b, nil
}

func (b *SQLiteBackend) migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS rows (
			tbl        TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (tbl, key)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload    BLOB,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_id, created_at)`,
	}

	for _, stmt := range schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// PutRow implements Backend.
func (b *SQLiteBackend) PutRow(ctx context.Context, table, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO rows (tbl, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(tbl, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		table, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to put row %s/%s: %w", table, key, err)
	}
	return nil
}

// GetRow implements Backend.
func (b *SQLiteBackend) GetRow(ctx context.Context, table, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM rows WHERE tbl = ? AND key = ?`, table, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get row %s/%s: %w", table, key, err)
	}
	return value, nil
}

// DeleteRow implements Backend.
func (b *SQLiteBackend) DeleteRow(ctx context.Context, table, key string) error {
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM rows WHERE tbl = ? AND key = ?`, table, key); err != nil {
		return fmt.Errorf("failed to delete row %s/%s: %w", table, key, err)
	}
	return nil
}

// ListRows implements Backend.
func (b *SQLiteBackend) ListRows(ctx context.Context, table string) (map[string][]byte, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, value FROM rows WHERE tbl = ?`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", table, err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// AppendMessage implements MessageLog.
func (b *SQLiteBackend) AppendMessage(ctx context.Context, msg MessageRecord) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListMessages implements MessageLog. Messages are returned oldest first.
func (b *SQLiteBackend) ListMessages(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM (
			SELECT id, session_id, role, content, created_at
			FROM messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Role, &rec.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendAudit implements AuditLog.
func (b *SQLiteBackend) AppendAudit(ctx context.Context, rec AuditRecord) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, session_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.EventType, rec.Payload, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
