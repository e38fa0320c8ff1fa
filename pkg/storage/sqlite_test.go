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
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(context.Background(), filepath.Join(t.TempDir(), "chapo.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteBackend_RowRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	require.NoError(t, b.PutRow(ctx, TableAgentStates, "s1", []byte(`{"phase":"idle"}`)))

	value, err := b.GetRow(ctx, TableAgentStates, "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase":"idle"}`, string(value))

	// Overwrite replaces the row in place.
	require.NoError(t, b.PutRow(ctx, TableAgentStates, "s1", []byte(`{"phase":"working"}`)))
	value, err = b.GetRow(ctx, TableAgentStates, "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase":"working"}`, string(value))
}

func TestSQLiteBackend_GetMissingRow(t *testing.T) {
	b := setupBackend(t)
	_, err := b.GetRow(context.Background(), TableActions, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteBackend_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	require.NoError(t, b.PutRow(ctx, TableScheduledJobs, "j1", []byte(`{}`)))
	require.NoError(t, b.DeleteRow(ctx, TableScheduledJobs, "j1"))
	require.NoError(t, b.DeleteRow(ctx, TableScheduledJobs, "j1"))

	_, err := b.GetRow(ctx, TableScheduledJobs, "j1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteBackend_ListRowsIsScopedToTable(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	require.NoError(t, b.PutRow(ctx, TableActions, "a1", []byte(`1`)))
	require.NoError(t, b.PutRow(ctx, TableActions, "a2", []byte(`2`)))
	require.NoError(t, b.PutRow(ctx, TableScheduledJobs, "j1", []byte(`3`)))

	got, err := b.ListRows(ctx, TableActions)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "a1")
	assert.Contains(t, got, "a2")
}

func TestSQLiteBackend_MessageLogOrdering(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	base := time.Now()
	for i, content := range []string{"first", "second", "third"} {
		require.NoError(t, b.AppendMessage(ctx, MessageRecord{
			ID:        uuid.New().String(),
			SessionID: "s1",
			Role:      "user",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := b.ListMessages(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "third", msgs[2].Content)
}

func TestSQLiteBackend_AppendAudit(t *testing.T) {
	b := setupBackend(t)
	err := b.AppendAudit(context.Background(), AuditRecord{
		ID:        uuid.New().String(),
		SessionID: "s1",
		EventType: "wf.turn_started",
		Payload:   []byte(`{"agent":"chapo"}`),
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}
