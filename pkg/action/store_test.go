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

package action

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/tools"
)

// fakeExecutor records invocations and returns a scripted result.
type fakeExecutor struct {
	calls  []string
	bypass []bool
	result *tools.Result
	err    error
}

func (f *fakeExecutor) Execute(_ context.Context, toolName string, _ map[string]interface{}, opts tools.ExecOptions) (*tools.Result, error) {
	f.calls = append(f.calls, toolName)
	f.bypass = append(f.bypass, opts.BypassConfirmation)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &tools.Result{Success: true, Data: "ok"}, nil
}

func newTestStore(t *testing.T, exec *fakeExecutor) (*Store, *[]string) {
	t.Helper()
	var broadcasts []string
	s, err := NewStore(Config{
		Executor: exec,
		Logger:   zap.NewNop(),
		Broadcast: func(event string, _ Action) {
			broadcasts = append(broadcasts, event)
		},
	})
	require.NoError(t, err)
	return s, &broadcasts
}

func pendingAction(id string) Action {
	return Action{
		ID:          id,
		ToolName:    tools.ToolWriteFile,
		ToolArgs:    map[string]interface{}{"path": "notes.txt", "content": "ok"},
		Description: "Write file notes.txt (2 bytes)",
	}
}

func TestStore_ApproveAndExecuteHappyPath(t *testing.T) {
	exec := &fakeExecutor{}
	store, broadcasts := newTestStore(t, exec)
	ctx := context.Background()

	created, err := store.Create(ctx, pendingAction("a1"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, created.Status)

	final, err := store.ApproveAndExecute(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, final.Status)
	assert.Equal(t, "ok", final.Result)
	assert.NotNil(t, final.ApprovedAt)
	assert.NotNil(t, final.ExecutedAt)

	require.Equal(t, []string{tools.ToolWriteFile}, exec.calls)
	assert.True(t, exec.bypass[0], "approved execution must bypass executor confirmation")
	assert.Equal(t, []string{EventActionPending, EventActionUpdated}, *broadcasts)
}

func TestStore_ApproveAndExecuteFailure(t *testing.T) {
	exec := &fakeExecutor{result: &tools.Result{
		Success: false,
		Error:   &tools.Error{Code: "io_error", Message: "disk full"},
	}}
	store, _ := newTestStore(t, exec)
	ctx := context.Background()

	_, err := store.Create(ctx, pendingAction("a1"))
	require.NoError(t, err)

	final, err := store.ApproveAndExecute(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, "disk full", final.Error)
}

func TestStore_ApproveUnknownAction(t *testing.T) {
	store, _ := newTestStore(t, &fakeExecutor{})
	_, err := store.ApproveAndExecute(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Action not found")
}

func TestStore_RejectOnlyFromPending(t *testing.T) {
	exec := &fakeExecutor{}
	store, _ := newTestStore(t, exec)
	ctx := context.Background()

	_, err := store.Create(ctx, pendingAction("a1"))
	require.NoError(t, err)

	rejected, err := store.Reject(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.NotNil(t, rejected.RejectedAt)
	assert.Empty(t, exec.calls, "rejected action must never reach the executor")

	// Terminal: neither approve nor re-reject is legal.
	_, err = store.ApproveAndExecute(ctx, "a1")
	assert.Error(t, err)
	_, err = store.Reject(ctx, "a1")
	assert.Error(t, err)
}

func TestStore_DoubleApproveRejected(t *testing.T) {
	store, _ := newTestStore(t, &fakeExecutor{})
	ctx := context.Background()

	_, err := store.Create(ctx, pendingAction("a1"))
	require.NoError(t, err)
	_, err = store.ApproveAndExecute(ctx, "a1")
	require.NoError(t, err)

	_, err = store.ApproveAndExecute(ctx, "a1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only pending")
}

func TestStore_ExecutorErrorMarksFailed(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("executor blew up")}
	store, _ := newTestStore(t, exec)
	ctx := context.Background()

	_, err := store.Create(ctx, pendingAction("a1"))
	require.NoError(t, err)

	final, err := store.ApproveAndExecute(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Error, "executor blew up")
}

func TestStore_ListPending(t *testing.T) {
	store, _ := newTestStore(t, &fakeExecutor{})
	ctx := context.Background()

	_, err := store.Create(ctx, pendingAction("a1"))
	require.NoError(t, err)
	_, err = store.Create(ctx, pendingAction("a2"))
	require.NoError(t, err)
	_, err = store.Reject(ctx, "a2")
	require.NoError(t, err)

	pending := store.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, "a1", pending[0].ID)
}
