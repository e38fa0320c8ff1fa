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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/storage"
	"github.com/chapo-dev/chapo/pkg/tools"
)

// ErrNotFound is returned for unknown action ids.
var ErrNotFound = fmt.Errorf("Action not found")

// Broadcast events emitted by the store.
const (
	EventActionPending = "action_pending"
	EventActionUpdated = "action_updated"
)

// BroadcastFunc receives store events for the UI/audit layer.
type BroadcastFunc func(event string, act Action)

// Config configures a Store.
type Config struct {
	Backend   storage.Backend
	Executor  tools.Executor
	Logger    *zap.Logger
	Broadcast BroadcastFunc
}

// Store keeps actions in memory with durable writes behind them. Persistence
// failures are non-fatal: the store logs and keeps running memory-only.
type Store struct {
	backend   storage.Backend
	executor  tools.Executor
	logger    *zap.Logger
	broadcast BroadcastFunc

	mu      sync.Mutex
	actions map[string]*Action
}

// NewStore creates an action store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Store{
		backend:   cfg.Backend,
		executor:  cfg.Executor,
		logger:    cfg.Logger,
		broadcast: cfg.Broadcast,
		actions:   make(map[string]*Action),
	}, nil
}

// Create stores a new pending action and broadcasts action_pending.
func (s *Store) Create(ctx context.Context, act Action) (Action, error) {
	if act.Status == "" {
		act.Status = StatusPending
	}
	if act.Status != StatusPending {
		return Action{}, fmt.Errorf("new actions must be pending, got %s", act.Status)
	}
	if act.CreatedAt.IsZero() {
		act.CreatedAt = time.Now()
	}

	s.mu.Lock()
	stored := act
	s.actions[act.ID] = &stored
	s.mu.Unlock()

	s.persist(ctx, &stored)
	s.audit("action created", &stored)
	s.emit(EventActionPending, stored)
	return stored, nil
}

// Get returns a copy of the action.
func (s *Store) Get(id string) (Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	act, ok := s.actions[id]
	if !ok {
		return Action{}, false
	}
	return *act, true
}

// ListPending returns all pending actions.
func (s *Store) ListPending() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Action
	for _, act := range s.actions {
		if act.Status == StatusPending {
			out = append(out, *act)
		}
	}
	return out
}

// ApproveAndExecute transitions pending → approved → executing, runs the
// tool with the executor confirmation bypassed, and records the outcome.
func (s *Store) ApproveAndExecute(ctx context.Context, id string) (Action, error) {
	s.mu.Lock()
	act, ok := s.actions[id]
	if !ok {
		s.mu.Unlock()
		return Action{}, ErrNotFound
	}
	if act.Status != StatusPending {
		status := act.Status
		s.mu.Unlock()
		return Action{}, fmt.Errorf("action %s is %s, only pending actions can be approved", id, status)
	}
	now := time.Now()
	act.Status = StatusApproved
	act.ApprovedAt = &now
	snapshot := *act
	s.mu.Unlock()

	s.audit("action approved", &snapshot)
	s.persist(ctx, &snapshot)

	s.mu.Lock()
	act.Status = StatusExecuting
	snapshot = *act
	s.mu.Unlock()
	s.persist(ctx, &snapshot)

	result, execErr := s.executor.Execute(ctx, snapshot.ToolName, snapshot.ToolArgs, tools.ExecOptions{
		BypassConfirmation: true,
		Agent:              snapshot.Agent,
	})

	s.mu.Lock()
	executed := time.Now()
	act.ExecutedAt = &executed
	switch {
	case execErr != nil:
		act.Status = StatusFailed
		act.Error = execErr.Error()
	case result != nil && !result.Success:
		act.Status = StatusFailed
		if result.Error != nil {
			act.Error = result.Error.Message
		} else {
			act.Error = "tool execution failed"
		}
	default:
		act.Status = StatusDone
		if result != nil {
			act.Result = result.Data
		}
	}
	snapshot = *act
	s.mu.Unlock()

	s.persist(ctx, &snapshot)
	s.audit("action executed", &snapshot)
	s.emit(EventActionUpdated, snapshot)
	return snapshot, nil
}

// Reject transitions pending → rejected. Illegal from any other state.
func (s *Store) Reject(ctx context.Context, id string) (Action, error) {
	s.mu.Lock()
	act, ok := s.actions[id]
	if !ok {
		s.mu.Unlock()
		return Action{}, ErrNotFound
	}
	if act.Status != StatusPending {
		status := act.Status
		s.mu.Unlock()
		return Action{}, fmt.Errorf("action %s is %s, only pending actions can be rejected", id, status)
	}
	now := time.Now()
	act.Status = StatusRejected
	act.RejectedAt = &now
	snapshot := *act
	s.mu.Unlock()

	s.persist(ctx, &snapshot)
	s.audit("action rejected", &snapshot)
	s.emit(EventActionUpdated, snapshot)
	return snapshot, nil
}

// LoadPersisted restores non-terminal actions from the backend, typically at
// startup.
func (s *Store) LoadPersisted(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	rows, err := s.backend.ListRows(ctx, storage.TableActions)
	if err != nil {
		return fmt.Errorf("failed to list persisted actions: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, raw := range rows {
		var act Action
		if err := json.Unmarshal(raw, &act); err != nil {
			s.logger.Warn("skipping corrupt persisted action", zap.String("action_id", id), zap.Error(err))
			continue
		}
		if act.Status.Terminal() {
			continue
		}
		stored := act
		s.actions[id] = &stored
	}
	return nil
}

func (s *Store) persist(ctx context.Context, act *Action) {
	if s.backend == nil {
		return
	}
	raw, err := json.Marshal(act)
	if err != nil {
		s.logger.Error("failed to encode action", zap.String("action_id", act.ID), zap.Error(err))
		return
	}
	if err := s.backend.PutRow(ctx, storage.TableActions, act.ID, raw); err != nil {
		s.logger.Warn("action persist failed, continuing memory-only",
			zap.String("action_id", act.ID), zap.Error(err))
	}
}

func (s *Store) audit(msg string, act *Action) {
	s.logger.Info(msg,
		zap.String("action_id", act.ID),
		zap.String("tool", act.ToolName),
		zap.String("status", string(act.Status)),
		zap.Any("args", tools.SanitizeArgs(act.ToolArgs)))
}

func (s *Store) emit(event string, act Action) {
	if s.broadcast != nil {
		s.broadcast(event, act)
	}
}
