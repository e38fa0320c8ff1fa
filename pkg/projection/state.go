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

// Package projection holds the event bus consumers: session state, the
// WebSocket stream, external channel delivery, the markdown transcript and
// the audit log.
package projection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/events"
	"github.com/chapo-dev/chapo/pkg/state"
)

// StateProjection applies the event-driven state transitions the emitting
// sites do not write themselves: the active-agent handoff around delegation
// and the task ledger. Gate queueing is written by the turn engine before the
// event is emitted, and gate resolutions are written by the dispatcher;
// this projection observes both without mutating, so each field keeps a
// single writer.
type StateProjection struct {
	states *state.Store
	logger *zap.Logger
}

// NewStateProjection creates the state projection.
func NewStateProjection(states *state.Store, logger *zap.Logger) *StateProjection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateProjection{states: states, logger: logger}
}

// Name implements events.Projection.
func (p *StateProjection) Name() string { return "state" }

// Handle implements events.Projection. Every transition is idempotent:
// replaying an envelope leaves the state unchanged.
func (p *StateProjection) Handle(ctx context.Context, env events.Envelope) error {
	switch env.Type {
	case events.TypeAgentDelegated:
		payload, ok := env.Payload.(events.AgentDelegated)
		if !ok || payload.Parallel {
			return nil
		}
		return p.states.Update(ctx, env.SessionID, func(st *state.ConversationState) {
			st.ActiveAgent = payload.To
		})

	case events.TypeAgentCompleted, events.TypeAgentFailed:
		return p.states.Update(ctx, env.SessionID, func(st *state.ConversationState) {
			st.ActiveAgent = "chapo"
		})

	case events.TypeAgentSwitched:
		payload, ok := env.Payload.(events.AgentSwitched)
		if !ok {
			return nil
		}
		return p.states.Update(ctx, env.SessionID, func(st *state.ConversationState) {
			st.ActiveAgent = payload.To
		})

	case events.TypeTaskUpdated:
		payload, ok := env.Payload.(events.TaskUpdated)
		if !ok {
			return nil
		}
		return p.upsertTask(ctx, env.SessionID, payload.TaskID, payload.Status, payload.Detail)

	case events.TypeTaskCompleted:
		payload, ok := env.Payload.(events.TaskCompleted)
		if !ok {
			return nil
		}
		return p.upsertTask(ctx, env.SessionID, payload.TaskID, "completed", payload.Result)

	case events.TypeTaskFailed:
		payload, ok := env.Payload.(events.TaskFailed)
		if !ok {
			return nil
		}
		return p.upsertTask(ctx, env.SessionID, payload.TaskID, "failed", payload.Error)
	}
	return nil
}

func (p *StateProjection) upsertTask(ctx context.Context, sessionID, taskID, status, detail string) error {
	if taskID == "" {
		return nil
	}
	return p.states.Update(ctx, sessionID, func(st *state.ConversationState) {
		if st.Tasks == nil {
			st.Tasks = map[string]state.Task{}
		}
		task, exists := st.Tasks[taskID]
		if !exists {
			task = state.Task{ID: taskID, CreatedAt: time.Now()}
			st.TaskOrder = append(st.TaskOrder, taskID)
		}
		task.Status = status
		if detail != "" {
			task.Result = detail
		}
		task.UpdatedAt = time.Now()
		st.Tasks[taskID] = task
	})
}
