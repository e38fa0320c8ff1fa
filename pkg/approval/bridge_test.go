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

package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/action"
	"github.com/chapo-dev/chapo/pkg/tools"
)

type recordingExecutor struct {
	calls  []string
	bypass []bool
}

func (r *recordingExecutor) Execute(_ context.Context, toolName string, _ map[string]interface{}, opts tools.ExecOptions) (*tools.Result, error) {
	r.calls = append(r.calls, toolName)
	r.bypass = append(r.bypass, opts.BypassConfirmation)
	return &tools.Result{Success: true, Data: "done"}, nil
}

func newTestBridge(t *testing.T) (*Bridge, *recordingExecutor, *action.Store) {
	t.Helper()
	exec := &recordingExecutor{}
	actions, err := action.NewStore(action.Config{Executor: exec, Logger: zap.NewNop()})
	require.NoError(t, err)
	bridge, err := NewBridge(Config{
		Registry: tools.NewRegistry(),
		Policy:   NewStaticPolicy(DefaultPolicyConfig()),
		Executor: exec,
		Actions:  actions,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return bridge, exec, actions
}

func TestBridge_AutoApprovedToolRunsImmediately(t *testing.T) {
	bridge, exec, _ := newTestBridge(t)

	out := bridge.Execute(context.Background(), tools.ToolReadFile,
		map[string]interface{}{"path": "notes.txt"}, CallOptions{Agent: "devo"})

	assert.True(t, out.Success)
	assert.False(t, out.PendingApproval)
	assert.Equal(t, []string{tools.ToolReadFile}, exec.calls)
}

func TestBridge_MutatingToolIsParked(t *testing.T) {
	bridge, exec, actions := newTestBridge(t)
	var pending []action.Action

	out := bridge.Execute(context.Background(), tools.ToolWriteFile,
		map[string]interface{}{"path": "notes.txt", "content": "hello"},
		CallOptions{Agent: "devo", OnActionPending: func(a action.Action) {
			pending = append(pending, a)
		}})

	assert.True(t, out.Success)
	assert.True(t, out.PendingApproval)
	assert.NotEmpty(t, out.ActionID)
	assert.Contains(t, out.Result.Data, "awaiting user approval")
	assert.Empty(t, exec.calls, "parked tool must not execute")

	require.Len(t, pending, 1)
	assert.Equal(t, out.ActionID, pending[0].ID)
	assert.Equal(t, "Write file notes.txt (5 bytes)", pending[0].Description)

	stored, ok := actions.Get(out.ActionID)
	require.True(t, ok)
	assert.Equal(t, action.StatusPending, stored.Status)
}

func TestBridge_ApprovedParkedActionBypassesConfirmation(t *testing.T) {
	bridge, exec, actions := newTestBridge(t)

	out := bridge.Execute(context.Background(), tools.ToolShellExecute,
		map[string]interface{}{"command": "systemctl restart api"},
		CallOptions{Agent: "devo"})
	require.True(t, out.PendingApproval)

	final, err := actions.ApproveAndExecute(context.Background(), out.ActionID)
	require.NoError(t, err)
	assert.Equal(t, action.StatusDone, final.Status)
	require.Equal(t, []string{tools.ToolShellExecute}, exec.calls)
	assert.True(t, exec.bypass[0])
}

func TestBridge_UnauthorizedAgentRejected(t *testing.T) {
	bridge, exec, _ := newTestBridge(t)

	out := bridge.Execute(context.Background(), tools.ToolShellExecute,
		map[string]interface{}{"command": "rm -rf /"}, CallOptions{Agent: "caio"})

	assert.False(t, out.Success)
	assert.False(t, out.PendingApproval)
	require.NotNil(t, out.Result.Error)
	assert.Equal(t, "Tool shell_execute is not available to caio", out.Result.Error.Message)
	assert.Empty(t, exec.calls)
}

func TestBridge_AliasNormalizedBeforeAuthorization(t *testing.T) {
	bridge, _, _ := newTestBridge(t)

	out := bridge.Execute(context.Background(), "bash",
		map[string]interface{}{"command": "uptime"}, CallOptions{Agent: "devo"})

	assert.True(t, out.Success)
	assert.True(t, out.PendingApproval, "alias resolves to shell_execute which needs confirmation")
}

func TestBridge_SchemaViolationDenied(t *testing.T) {
	bridge, exec, _ := newTestBridge(t)

	out := bridge.Execute(context.Background(), tools.ToolWriteFile,
		map[string]interface{}{"path": "notes.txt"}, CallOptions{Agent: "devo"})

	assert.False(t, out.Success)
	require.NotNil(t, out.Result.Error)
	assert.Equal(t, "tool_denied", out.Result.Error.Code)
	assert.Contains(t, out.Result.Error.Message, "content")
	assert.Empty(t, exec.calls)
}

func TestStaticPolicy_DeniedTool(t *testing.T) {
	policy := NewStaticPolicy(StaticPolicyConfig{Denied: []string{tools.ToolGitPush}})
	d := policy.Check(context.Background(), tools.ToolGitPush, nil, "u1")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "denied by policy")
}

func TestValidateArgs(t *testing.T) {
	err := ValidateArgs(tools.ToolSSHExecute, map[string]interface{}{"host": "web1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command")

	assert.NoError(t, ValidateArgs(tools.ToolSSHExecute,
		map[string]interface{}{"host": "web1", "command": "df -h"}))
	assert.NoError(t, ValidateArgs("unknown_tool", nil))
}
