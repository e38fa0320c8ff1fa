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

package subagent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/action"
	"github.com/chapo-dev/chapo/pkg/approval"
	"github.com/chapo-dev/chapo/pkg/llm"
	"github.com/chapo-dev/chapo/pkg/tools"
)

// scriptedLLM returns canned responses in order. Safe for concurrent use.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	calls     int
}

func (s *scriptedLLM) Name() string  { return "scripted" }
func (s *scriptedLLM) Model() string { return "test" }
func (s *scriptedLLM) Chat(_ context.Context, _ []llm.Message, _ []llm.ToolDef) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &llm.Response{Content: "done"}, nil
}

type passthroughExecutor struct{ calls []string }

func (p *passthroughExecutor) Execute(_ context.Context, toolName string, _ map[string]interface{}, _ tools.ExecOptions) (*tools.Result, error) {
	p.calls = append(p.calls, toolName)
	return &tools.Result{Success: true, Data: "executed"}, nil
}

func newTestRunner(t *testing.T, provider llm.Provider) (*Runner, *passthroughExecutor) {
	t.Helper()
	exec := &passthroughExecutor{}
	registry := tools.NewRegistry()
	actions, err := action.NewStore(action.Config{Executor: exec, Logger: zap.NewNop()})
	require.NoError(t, err)
	// Everything auto-approved so loops run without parked actions.
	allTools := append(registry.ToolsForAgent("devo"), registry.ToolsForAgent("caio")...)
	bridge, err := approval.NewBridge(approval.Config{
		Registry: registry,
		Policy:   approval.NewStaticPolicy(approval.StaticPolicyConfig{AutoApprove: allTools}),
		Executor: exec,
		Actions:  actions,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	runner, err := NewRunner(Config{
		Provider: provider,
		Bridge:   bridge,
		Registry: registry,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return runner, exec
}

func TestRunner_CompletesAfterToolCalls(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: tools.ToolReadFile, Input: map[string]interface{}{"path": "a.txt"}}}},
		{Content: "file says hello"},
	}}
	runner, exec := newTestRunner(t, provider)

	res := runner.Run(context.Background(), "devo", Contract{Objective: "read a.txt"}, RunOptions{})
	assert.Equal(t, ExitCompleted, res.ExitReason)
	assert.Equal(t, "file says hello", res.Answer)
	assert.Equal(t, 2, res.Turns)
	require.Len(t, res.Evidence, 1)
	assert.True(t, res.Evidence[0].Success)
	assert.Equal(t, []string{tools.ToolReadFile}, exec.calls)
}

func TestRunner_EscalationHoisted(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: ToolEscalate, Input: map[string]interface{}{
			"reason": "needs credentials", "details": "no ssh key for web1",
		}}}},
	}}
	runner, exec := newTestRunner(t, provider)

	res := runner.Run(context.Background(), "devo", Contract{Objective: "restart web1"}, RunOptions{})
	assert.Equal(t, ExitEscalated, res.ExitReason)
	require.NotNil(t, res.Escalation)
	assert.Equal(t, "needs credentials", res.Escalation.Reason)
	assert.Empty(t, exec.calls)
}

func TestRunner_LLMErrorExits(t *testing.T) {
	provider := &scriptedLLM{errs: []error{fmt.Errorf("503 overloaded")}}
	runner, _ := newTestRunner(t, provider)

	res := runner.Run(context.Background(), "devo", Contract{Objective: "x"}, RunOptions{})
	assert.Equal(t, ExitLLMError, res.ExitReason)
	assert.Contains(t, res.Err, "overloaded")
}

func TestRunner_MaxTurnsCap(t *testing.T) {
	// Every turn issues another tool call; the loop must stop at the cap.
	var responses []*llm.Response
	for i := 0; i < 20; i++ {
		responses = append(responses, &llm.Response{ToolCalls: []llm.ToolCall{
			{ID: fmt.Sprintf("t%d", i), Name: tools.ToolReadFile, Input: map[string]interface{}{"path": "a"}},
		}})
	}
	runner, _ := newTestRunner(t, &scriptedLLM{responses: responses})

	res := runner.Run(context.Background(), "devo", Contract{Objective: "loop"}, RunOptions{})
	assert.Equal(t, ExitMaxTurns, res.ExitReason)
	assert.Equal(t, DefaultMaxTurns, res.Turns)
}

func TestStructuredStrategy_PreflightRejectsSchemaViolation(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		// Missing required "title" for board_createTicket.
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: tools.ToolBoardTicket, Input: map[string]interface{}{"description": "x"}}}},
		{Content: "could not create ticket"},
	}}
	runner, exec := newTestRunner(t, provider)

	res := runner.Run(context.Background(), "caio", Contract{Objective: "ticket"}, RunOptions{})
	assert.Equal(t, ExitCompleted, res.ExitReason)
	require.Len(t, res.Evidence, 1)
	assert.False(t, res.Evidence[0].Success)
	assert.Contains(t, res.Evidence[0].Error, "title")
	assert.Empty(t, exec.calls, "rejected call must not reach the executor")
}

func TestStructuredStrategy_EncodesJSONEvidence(t *testing.T) {
	s := StructuredStrategy{}
	encoded := s.EncodeResult(
		llm.ToolCall{ID: "t1", Name: tools.ToolBoardTicket},
		Evidence{Tool: tools.ToolBoardTicket, CallID: "t1", Success: true, Result: "TICKET-42"},
	)
	assert.Contains(t, encoded, `"success":true`)
	assert.Contains(t, encoded, "TICKET-42")
}

func TestRunParallel_ErrorIsolationAndSummary(t *testing.T) {
	// Shared provider: first call per goroutine order is not deterministic,
	// so use a provider that always answers without tools.
	okProvider := &scriptedLLM{responses: []*llm.Response{
		{Content: strings.Repeat("a", 2000)},
		{Content: strings.Repeat("b", 2000)},
	}}
	runner, _ := newTestRunner(t, okProvider)

	results := runner.RunParallel(context.Background(), []ParallelJob{
		{Agent: "devo", Contract: Contract{Objective: "one"}},
		{Agent: "scout", Contract: Contract{Objective: "two"}},
	}, RunOptions{})
	require.Len(t, results, 2)

	summary := SummarizeParallel(results)
	assert.Contains(t, summary, "2/2 successful")
	// Previews bounded to 1200 chars plus ellipsis.
	for _, line := range strings.Split(summary, "\n") {
		assert.LessOrEqual(t, len(line), parallelPreviewLimit+len("…"))
	}
}

func TestSummarizeParallel_ReportsFailures(t *testing.T) {
	summary := SummarizeParallel([]ParallelResult{
		{Job: ParallelJob{Agent: "devo"}, Result: &RunResult{ExitReason: ExitCompleted, Answer: "ok"}},
		{Job: ParallelJob{Agent: "caio"}, Result: &RunResult{ExitReason: ExitLLMError, Err: "503"}},
		{Job: ParallelJob{Agent: "scout"}, Result: &RunResult{
			ExitReason: ExitEscalated, Escalation: &Escalation{Reason: "out of scope"},
		}},
	})
	assert.Contains(t, summary, "1/3 successful")
	assert.Contains(t, summary, "escalated: out of scope")
	assert.Contains(t, summary, "503")
}
