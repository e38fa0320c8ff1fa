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

package turn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/action"
	"github.com/chapo-dev/chapo/pkg/approval"
	"github.com/chapo-dev/chapo/pkg/events"
	"github.com/chapo-dev/chapo/pkg/llm"
	"github.com/chapo-dev/chapo/pkg/state"
	"github.com/chapo-dev/chapo/pkg/storage"
	"github.com/chapo-dev/chapo/pkg/subagent"
	"github.com/chapo-dev/chapo/pkg/tools"
)

type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	calls     int
}

func (s *scriptedLLM) Name() string  { return "scripted" }
func (s *scriptedLLM) Model() string { return "test" }
func (s *scriptedLLM) Chat(_ context.Context, _ []llm.Message, _ []llm.ToolDef) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls < len(s.responses) {
		r := s.responses[s.calls]
		s.calls++
		return r, nil
	}
	s.calls++
	return &llm.Response{Content: "All done, nothing else to report here."}, nil
}

type recordingProjection struct {
	mu        sync.Mutex
	types     []events.Type
	envelopes []events.Envelope
}

func (r *recordingProjection) Name() string { return "recording" }
func (r *recordingProjection) Handle(_ context.Context, env events.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, env.Type)
	r.envelopes = append(r.envelopes, env)
	return nil
}

func (r *recordingProjection) has(t events.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, typ := range r.types {
		if typ == t {
			return true
		}
	}
	return false
}

func (r *recordingProjection) find(t events.Type) (events.Envelope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, env := range r.envelopes {
		if env.Type == t {
			return env, true
		}
	}
	return events.Envelope{}, false
}

type testEnv struct {
	engine  *Engine
	states  *state.Store
	inbox   *state.Inbox
	proj    *recordingProjection
	actions *action.Store
	exec    *countingExecutor
}

type countingExecutor struct {
	mu    sync.Mutex
	calls []string
}

func (c *countingExecutor) Execute(_ context.Context, toolName string, _ map[string]interface{}, _ tools.ExecOptions) (*tools.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, toolName)
	return &tools.Result{Success: true, Data: "ok"}, nil
}

func newTestEngine(t *testing.T, provider llm.Provider) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	backend := storage.NewMemoryBackend()
	states, err := state.NewStore(state.Config{Backend: backend, Logger: logger, Debounce: time.Millisecond})
	require.NoError(t, err)
	registry := tools.NewRegistry()
	exec := &countingExecutor{}
	actions, err := action.NewStore(action.Config{Backend: backend, Executor: exec, Logger: logger})
	require.NoError(t, err)
	bridge, err := approval.NewBridge(approval.Config{
		Registry: registry,
		Policy:   approval.NewStaticPolicy(approval.DefaultPolicyConfig()),
		Executor: exec,
		Actions:  actions,
		Logger:   logger,
	})
	require.NoError(t, err)
	runner, err := subagent.NewRunner(subagent.Config{
		Provider: provider, Bridge: bridge, Registry: registry, Logger: logger,
	})
	require.NoError(t, err)

	proj := &recordingProjection{}
	bus := events.NewBus(logger)
	bus.Register(proj)

	inbox := state.NewInbox()
	engine, err := NewEngine(Config{
		Provider: provider, Bridge: bridge, Runner: runner, Registry: registry,
		States: states, Inbox: inbox, Bus: bus, Logger: logger,
	})
	require.NoError(t, err)
	return &testEnv{engine: engine, states: states, inbox: inbox, proj: proj, actions: actions, exec: exec}
}

func TestEngine_PlainAnswerCompletes(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		{Content: "The api service on web1 is healthy, no restart was needed."},
	}}
	env := newTestEngine(t, provider)

	out := env.engine.RunTurn(context.Background(), Request{
		SessionID: "s1", RequestID: "r1",
		Message: "Is the api service on web1 healthy?",
	})
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Contains(t, out.Answer, "healthy")
	assert.True(t, env.proj.has(events.TypeTurnStarted))
	terminal, found := env.proj.find(events.TypeCompleted)
	require.True(t, found)
	assert.Equal(t, events.VisibilityUI, terminal.Visibility, "transcript and audit projections see the outcome")

	st, ok := env.states.Get("s1")
	require.True(t, ok)
	assert.False(t, st.IsLoopRunning)
	assert.Equal(t, state.PhaseIdle, st.Phase)
	// The blocking obligation seeded by the request resolves with the turn.
	for _, o := range st.Obligations {
		assert.NotEqual(t, state.ObligationOpen, o.Status)
	}
}

func TestEngine_AskUserSuspendsAndResumes(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: ToolAskUser, Input: map[string]interface{}{
			"question": "Which environment, staging or prod?",
		}}}},
		{Content: "Deployed the new build to staging environment, checks passed."},
	}}
	env := newTestEngine(t, provider)
	ctx := context.Background()

	out := env.engine.RunTurn(ctx, Request{SessionID: "s1", RequestID: "r1", Message: "Deploy the new build"})
	assert.Equal(t, StatusWaitingUser, out.Status)
	assert.True(t, env.proj.has(events.TypeQuestionQueued))

	st, ok := env.states.Get("s1")
	require.True(t, ok)
	assert.Equal(t, state.PhaseWaitingUser, st.Phase)
	require.Len(t, st.PendingQuestions, 1)
	assert.False(t, st.IsLoopRunning)

	// Resume with the user's answer.
	resumed := env.engine.Resume(ctx, Request{
		SessionID: "s1", RequestID: "r2",
		Message: "Answer to your question: staging",
	})
	assert.Equal(t, StatusCompleted, resumed.Status)
	assert.Contains(t, resumed.Answer, "staging")
}

func TestEngine_QueuesWhileRunning(t *testing.T) {
	env := newTestEngine(t, &scriptedLLM{})
	env.engine.mu.Lock()
	env.engine.running["s1"] = "another-turn"
	env.engine.mu.Unlock()

	out := env.engine.RunTurn(context.Background(), Request{SessionID: "s1", RequestID: "r1", Message: "second request"})
	assert.Equal(t, StatusQueued, out.Status)
	assert.Equal(t, 1, env.inbox.Len("s1"))
}

func TestEngine_DrainsInboxIntoFollowUpTurn(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		{Content: "I checked the api logs, no errors found in them."},
		{Content: "The backup job ran clean as well, second check finished."},
	}}
	env := newTestEngine(t, provider)
	env.inbox.Push("s1", "also check the backup job please", "test")

	out := env.engine.RunTurn(context.Background(), Request{
		SessionID: "s1", RequestID: "r1", Message: "Check the api logs for errors",
	})
	// The first turn keeps its own outcome; the queued message ran after it
	// as a separate turn.
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Contains(t, out.Answer, "api logs")
	assert.Zero(t, env.inbox.Len("s1"))

	provider.mu.Lock()
	calls := provider.calls
	provider.mu.Unlock()
	assert.Equal(t, 2, calls, "the queued message consumed its own model call")
}

func TestEngine_FollowUpHandlerOwnsQueuedTurn(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		{Content: "I checked the api logs, no errors found in them."},
		{Content: "The backup job ran clean as well, second check finished."},
	}}
	env := newTestEngine(t, provider)

	type followUpResult struct {
		request Request
		outcome Outcome
	}
	results := make(chan followUpResult, 1)
	env.engine.SetFollowUpHandler(func(ctx context.Context, req Request) {
		results <- followUpResult{request: req, outcome: env.engine.RunTurn(ctx, req)}
	})
	env.inbox.Push("s1", "also check the backup job please", "test")

	out := env.engine.RunTurn(context.Background(), Request{
		SessionID: "s1", RequestID: "r1", Message: "Check the api logs for errors",
	})
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Contains(t, out.Answer, "api logs", "the drained queue never rewrites the first answer")

	select {
	case got := <-results:
		assert.NotEqual(t, "r1", got.request.RequestID, "the follow-up is its own request")
		assert.Equal(t, "also check the backup job please", got.request.Message)
		assert.Equal(t, StatusCompleted, got.outcome.Status)
		assert.Contains(t, got.outcome.Answer, "backup")
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up handler never ran")
	}
	assert.Zero(t, env.inbox.Len("s1"))
}

func TestEngine_DelegationFlowsThroughRunner(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		// Chapo delegates to devo.
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: ToolDelegateDevo, Input: map[string]interface{}{
			"objective": "restart the api service",
		}}}},
		// Devo's loop answers immediately.
		{Content: "Service restarted, systemctl reports active."},
		// Chapo wraps up.
		{Content: "DEVO restarted the api service, result: active again."},
	}}
	env := newTestEngine(t, provider)

	out := env.engine.RunTurn(context.Background(), Request{
		SessionID: "s1", RequestID: "r1", Message: "Please restart the api service",
	})
	assert.Equal(t, StatusCompleted, out.Status)
	assert.True(t, env.proj.has(events.TypeAgentDelegated))
	assert.True(t, env.proj.has(events.TypeAgentCompleted))

	st, _ := env.states.Get("s1")
	var agents []string
	for _, h := range st.AgentHistory {
		agents = append(agents, h.Agent)
	}
	assert.Contains(t, agents, "devo")
}

func TestEngine_EscalationSurfacesToChapo(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: ToolDelegateDevo, Input: map[string]interface{}{
			"objective": "rotate the database credentials",
		}}}},
		// Devo escalates.
		{ToolCalls: []llm.ToolCall{{ID: "t2", Name: subagent.ToolEscalate, Input: map[string]interface{}{
			"reason": "no vault access",
		}}}},
		// Chapo asks the user instead.
		{ToolCalls: []llm.ToolCall{{ID: "t3", Name: ToolAskUser, Input: map[string]interface{}{
			"question": "DEVO has no vault access, can you grant it?",
		}}}},
	}}
	env := newTestEngine(t, provider)

	out := env.engine.RunTurn(context.Background(), Request{
		SessionID: "s1", RequestID: "r1", Message: "Rotate the database credentials",
	})
	assert.Equal(t, StatusWaitingUser, out.Status)
	assert.True(t, env.proj.has(events.TypeQuestionQueued))
}

func TestEngine_PendingActionContinuesTurn(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		// Chapo tries an auto-approved tool first, then one needing approval
		// is impossible for chapo's whitelist; use http_request (auto) and a
		// direct answer instead: exercise the bridged-tool path.
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: tools.ToolReadFile, Input: map[string]interface{}{
			"path": "status.txt",
		}}}},
		{Content: "The status file reports everything green and running."},
	}}
	env := newTestEngine(t, provider)

	out := env.engine.RunTurn(context.Background(), Request{
		SessionID: "s1", RequestID: "r1", Message: "Read the status file please",
	})
	assert.Equal(t, StatusCompleted, out.Status)
	assert.True(t, env.proj.has(events.TypeToolCallStarted))
	assert.True(t, env.proj.has(events.TypeToolCallCompleted))
	assert.Equal(t, []string{tools.ToolReadFile}, env.exec.calls)
}

func TestEngine_SetPlanValidatesAndEmits(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: ToolSetPlan, Input: map[string]interface{}{
			"title": "Fix the outage",
			"steps": []interface{}{
				map[string]interface{}{"id": "s1", "text": "Diagnose", "owner": "devo", "status": "doing"},
				map[string]interface{}{"id": "s2", "text": "Report", "owner": "chapo", "status": "todo"},
			},
		}}}},
		{Content: "Plan stored, starting with the diagnosis step now."},
	}}
	env := newTestEngine(t, provider)

	out := env.engine.RunTurn(context.Background(), Request{
		SessionID: "s1", RequestID: "r1", Message: "Fix the outage on web1",
	})
	assert.Equal(t, StatusCompleted, out.Status)
	assert.True(t, env.proj.has(events.TypePlanReady))

	st, _ := env.states.Get("s1")
	require.NotNil(t, st.CurrentPlan)
	assert.Equal(t, 1, st.CurrentPlan.Version)
	assert.Len(t, st.CurrentPlan.Steps, 2)
}

func TestEngine_NewRequestWaivesStaleObligations(t *testing.T) {
	provider := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: ToolAskUser, Input: map[string]interface{}{
			"question": "Which database do you mean?",
		}}}},
		{Content: "The backup job finished successfully last night."},
	}}
	env := newTestEngine(t, provider)
	ctx := context.Background()

	first := env.engine.RunTurn(ctx, Request{
		SessionID: "s1", RequestID: "r1", Message: "Please vacuum the database tables today",
	})
	require.Equal(t, StatusWaitingUser, first.Status)

	// Instead of answering, the user sends a brand new request. It is long
	// enough that intake reads it as a request, not a question answer.
	second := env.engine.RunTurn(ctx, Request{
		SessionID: "s1", RequestID: "r2",
		Message: "Forget the vacuum task for now, instead tell me whether the nightly backup job finished without problems",
	})
	assert.Equal(t, StatusCompleted, second.Status)

	st, _ := env.states.Get("s1")
	assert.Empty(t, st.PendingQuestions, "new explicit request clears pending questions")
	waived := 0
	for _, o := range st.Obligations {
		if o.Status == state.ObligationWaived {
			waived++
			assert.Equal(t, "superseded by explicit request", o.StatusReason)
		}
	}
	assert.Equal(t, 1, waived)
}
