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

package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProjection struct {
	name string
	seen []Type
	fail bool
}

func (p *recordingProjection) Name() string { return p.name }

func (p *recordingProjection) Handle(_ context.Context, env Envelope) error {
	p.seen = append(p.seen, env.Type)
	if p.fail {
		return fmt.Errorf("projection %s boom", p.name)
	}
	return nil
}

type panickyProjection struct{}

func (p *panickyProjection) Name() string                         { return "panicky" }
func (p *panickyProjection) Handle(context.Context, Envelope) error { panic("kaboom") }

func TestBus_FanOutOrder(t *testing.T) {
	bus := NewBus(zap.NewNop())
	first := &recordingProjection{name: "first"}
	second := &recordingProjection{name: "second"}
	bus.Register(first)
	bus.Register(second)

	bus.Emit(context.Background(), New("s1", "r1", "t1", "engine", VisibilityUI, TypeTurnStarted, TurnStarted{Agent: "chapo"}))
	bus.Emit(context.Background(), New("s1", "r1", "t1", "engine", VisibilityUI, TypeCompleted, Completed{Answer: "done"}))

	require.Equal(t, []Type{TypeTurnStarted, TypeCompleted}, first.seen)
	require.Equal(t, []Type{TypeTurnStarted, TypeCompleted}, second.seen)
}

func TestBus_FailureIsolated(t *testing.T) {
	bus := NewBus(zap.NewNop())
	failing := &recordingProjection{name: "failing", fail: true}
	healthy := &recordingProjection{name: "healthy"}
	bus.Register(failing)
	bus.Register(healthy)

	bus.Emit(context.Background(), New("s1", "r1", "t1", "engine", VisibilityUI, TypeTurnStarted, nil))

	assert.Len(t, failing.seen, 1)
	assert.Len(t, healthy.seen, 1, "healthy projection must still observe the event")
}

func TestBus_PanicIsolated(t *testing.T) {
	bus := NewBus(zap.NewNop())
	healthy := &recordingProjection{name: "healthy"}
	bus.Register(&panickyProjection{})
	bus.Register(healthy)

	bus.Emit(context.Background(), New("s1", "r1", "t1", "engine", VisibilityUI, TypeFailed, Failed{Error: "x"}))

	assert.Len(t, healthy.seen, 1)
}

func TestNew_PopulatesIdentity(t *testing.T) {
	env := New("s1", "r1", "t1", "dispatcher", VisibilityInternal, TypeQuestionQueued, QuestionQueued{QuestionID: "q1"})
	assert.NotEmpty(t, env.ID)
	assert.False(t, env.OccurredAt.IsZero())
	assert.Equal(t, "s1", env.SessionID)
	assert.Equal(t, VisibilityInternal, env.Visibility)
}
