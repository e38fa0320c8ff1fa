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

package projection

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/events"
	"github.com/chapo-dev/chapo/pkg/external"
	"github.com/chapo-dev/chapo/pkg/state"
	"github.com/chapo-dev/chapo/pkg/storage"
)

func newStates(t *testing.T) *state.Store {
	t.Helper()
	states, err := state.NewStore(state.Config{
		Backend:  storage.NewMemoryBackend(),
		Logger:   zap.NewNop(),
		Debounce: time.Millisecond,
	})
	require.NoError(t, err)
	return states
}

func envelope(typ events.Type, vis events.Visibility, payload interface{}) events.Envelope {
	return events.New("s1", "r1", "t1", "test", vis, typ, payload)
}

func TestStateProjection_DelegationHandoff(t *testing.T) {
	states := newStates(t)
	p := NewStateProjection(states, zap.NewNop())
	ctx := context.Background()
	_, err := states.EnsureLoaded(ctx, "s1")
	require.NoError(t, err)

	delegated := envelope(events.TypeAgentDelegated, events.VisibilityUI,
		events.AgentDelegated{From: "chapo", To: "devo", Objective: "restart service"})
	require.NoError(t, p.Handle(ctx, delegated))

	st, _ := states.Get("s1")
	assert.Equal(t, "devo", st.ActiveAgent)

	// Replaying the same envelope changes nothing.
	require.NoError(t, p.Handle(ctx, delegated))
	st, _ = states.Get("s1")
	assert.Equal(t, "devo", st.ActiveAgent)

	require.NoError(t, p.Handle(ctx, envelope(events.TypeAgentCompleted, events.VisibilityUI,
		events.AgentCompleted{Agent: "devo", ExitReason: "completed"})))
	st, _ = states.Get("s1")
	assert.Equal(t, "chapo", st.ActiveAgent)
}

func TestStateProjection_ParallelDelegationKeepsOrchestrator(t *testing.T) {
	states := newStates(t)
	p := NewStateProjection(states, zap.NewNop())
	ctx := context.Background()
	_, err := states.EnsureLoaded(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, p.Handle(ctx, envelope(events.TypeAgentDelegated, events.VisibilityUI,
		events.AgentDelegated{From: "chapo", To: "devo,scout", Parallel: true})))

	st, _ := states.Get("s1")
	assert.Equal(t, "chapo", st.ActiveAgent)
}

func TestStateProjection_TaskLedger(t *testing.T) {
	states := newStates(t)
	p := NewStateProjection(states, zap.NewNop())
	ctx := context.Background()
	_, err := states.EnsureLoaded(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, p.Handle(ctx, envelope(events.TypeTaskUpdated, events.VisibilityUI,
		events.TaskUpdated{TaskID: "task-1", Status: "running"})))
	require.NoError(t, p.Handle(ctx, envelope(events.TypeTaskCompleted, events.VisibilityUI,
		events.TaskCompleted{TaskID: "task-1", Result: "all green"})))

	st, _ := states.Get("s1")
	require.Contains(t, st.Tasks, "task-1")
	assert.Equal(t, "completed", st.Tasks["task-1"].Status)
	assert.Equal(t, "all green", st.Tasks["task-1"].Result)
	assert.Equal(t, []string{"task-1"}, st.TaskOrder)
}

type capturingSender struct {
	mu     sync.Mutex
	events []StreamEvent
}

func (c *capturingSender) SendEvent(_ string, event StreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func TestStreamProjection_MapsAndSkips(t *testing.T) {
	sender := &capturingSender{}
	p := NewStreamProjection(sender, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, envelope(events.TypeQuestionQueued, events.VisibilityUI,
		events.QuestionQueued{QuestionID: "q1", Question: "Which env?"})))
	require.NoError(t, p.Handle(ctx, envelope(events.TypeCompleted, events.VisibilityInternal,
		events.Completed{Answer: "done"})))
	require.NoError(t, p.Handle(ctx, envelope(events.TypeAgentThinking, events.VisibilityInternal,
		events.AgentThinking{Agent: "chapo", Text: "hmm"})))
	require.NoError(t, p.Handle(ctx, envelope(events.TypeAgentDelegated, events.VisibilityUI,
		events.AgentDelegated{From: "chapo", To: "devo,scout", Parallel: true})))

	require.Len(t, sender.events, 2, "terminal and internal envelopes are skipped")
	assert.Equal(t, StreamUserQuestion, sender.events[0].Category)
	assert.Equal(t, "r1", sender.events[0].RequestID)
	assert.Equal(t, "s1", sender.events[0].SessionID)
	assert.NotEmpty(t, sender.events[0].ID)
	assert.Equal(t, StreamParallelStart, sender.events[1].Category)
}

func TestStreamProjection_SkipsTerminalEvenWhenUIVisible(t *testing.T) {
	sender := &capturingSender{}
	p := NewStreamProjection(sender, zap.NewNop())

	require.NoError(t, p.Handle(context.Background(), envelope(events.TypeCompleted, events.VisibilityUI,
		events.Completed{Answer: "done"})))
	assert.Empty(t, sender.events)
}

type fakeChannel struct {
	mu    sync.Mutex
	texts []string
	docs  []string
}

func (c *fakeChannel) SendText(_ context.Context, _ string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeChannel) SendDocument(_ context.Context, _ string, filename string, _ []byte, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, filename)
	return nil
}

func TestExternalOutputProjection_SendsBoundSessionsOnly(t *testing.T) {
	channel := &fakeChannel{}
	fetcher := external.NewImageFetcher(external.FetcherConfig{})
	p := NewExternalOutputProjection(
		external.StaticBinding{"s1": "chan-1"}, channel, fetcher, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, envelope(events.TypeCompleted, events.VisibilityUI,
		events.Completed{Answer: "The deploy finished, see https://charts.example.com/cpu.png"})))
	require.Len(t, channel.texts, 1)
	assert.Contains(t, channel.texts[0], "deploy finished")
	assert.Empty(t, channel.docs, "image not on the allow-list is not forwarded")

	// A session without a binding produces no external output.
	unbound := events.New("s2", "r1", "t1", "test", events.VisibilityUI,
		events.TypeCompleted, events.Completed{Answer: "hello"})
	require.NoError(t, p.Handle(ctx, unbound))
	assert.Len(t, channel.texts, 1)
}

func TestExternalOutputProjection_IgnoresOtherEvents(t *testing.T) {
	channel := &fakeChannel{}
	p := NewExternalOutputProjection(external.StaticBinding{"s1": "chan-1"}, channel,
		external.NewImageFetcher(external.FetcherConfig{}), zap.NewNop())

	require.NoError(t, p.Handle(context.Background(), envelope(events.TypeFailed, events.VisibilityUI,
		events.Failed{Error: "boom"})))
	assert.Empty(t, channel.texts)
}

func TestMarkdownLogProjection_AppendsTranscript(t *testing.T) {
	dir := t.TempDir()
	p := NewMarkdownLogProjection(dir, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, envelope(events.TypeTurnStarted, events.VisibilityUI,
		events.TurnStarted{Agent: "chapo", Message: "Restart the api service"})))
	require.NoError(t, p.Handle(ctx, envelope(events.TypeAgentThinking, events.VisibilityUI,
		events.AgentThinking{Agent: "chapo", Text: "noise"})))
	require.NoError(t, p.Handle(ctx, envelope(events.TypeToolCallCompleted, events.VisibilityUI,
		events.ToolCallCompleted{Tool: "shell_execute", Agent: "devo", DurationMs: 42})))
	require.NoError(t, p.Handle(ctx, envelope(events.TypeCompleted, events.VisibilityUI,
		events.Completed{Answer: "Service restarted, all checks green.", Agent: "chapo"})))

	raw, err := os.ReadFile(filepath.Join(dir, "s1.md"))
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "turn started")
	assert.Contains(t, content, "Restart the api service")
	assert.Contains(t, content, "shell_execute")
	assert.Contains(t, content, "turn completed")
	assert.Contains(t, content, "all checks green")
	assert.NotContains(t, content, "noise", "thinking events stay out of the transcript")
}

func TestMarkdownLogProjection_RecordsFailures(t *testing.T) {
	dir := t.TempDir()
	p := NewMarkdownLogProjection(dir, zap.NewNop())

	require.NoError(t, p.Handle(context.Background(), envelope(events.TypeFailed, events.VisibilityUI,
		events.Failed{Error: "provider unreachable", Agent: "chapo"})))

	raw, err := os.ReadFile(filepath.Join(dir, "s1.md"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "turn failed")
	assert.Contains(t, string(raw), "provider unreachable")
}

type fakeAuditLog struct {
	mu      sync.Mutex
	records []storage.AuditRecord
}

func (f *fakeAuditLog) AppendAudit(_ context.Context, rec storage.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func TestAuditProjection_RecordsVisibleEvents(t *testing.T) {
	log := &fakeAuditLog{}
	p := NewAuditProjection(log, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, envelope(events.TypeToolCallStarted, events.VisibilityUI,
		events.ToolCallStarted{CallID: "c1", Tool: "fs_readFile", Agent: "chapo"})))
	require.NoError(t, p.Handle(ctx, envelope(events.TypeAgentThinking, events.VisibilityInternal,
		events.AgentThinking{Agent: "chapo", Text: "internal"})))

	require.Len(t, log.records, 1)
	assert.Equal(t, "tool.call.started", log.records[0].EventType)
	assert.Equal(t, "s1", log.records[0].SessionID)
	assert.Contains(t, string(log.records[0].Payload), "fs_readFile")
}
