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
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/action"
	"github.com/chapo-dev/chapo/pkg/tools"
)

// Outcome is what the agent loop gets back from the bridge. A parked call is
// still a success from the loop's point of view: the turn continues and the
// tool result tells the model the action awaits approval.
type Outcome struct {
	Success         bool
	PendingApproval bool
	ActionID        string
	Result          *tools.Result
	Err             error
}

// CallOptions identify the caller of a bridged tool invocation.
type CallOptions struct {
	Agent     string
	UserID    string
	SessionID string

	// OnActionPending fires after a pending action is created, before the
	// bridge returns. Used to queue the approval gate on the current turn.
	OnActionPending func(act action.Action)
}

// FileReader supplies current file contents for diff previews. Optional.
type FileReader func(path string) (string, bool)

// Config configures a Bridge.
type Config struct {
	Registry *tools.Registry
	Policy   Policy
	Executor tools.Executor
	Actions  *action.Store
	Logger   *zap.Logger
	ReadFile FileReader
}

// Bridge sits between the agent loop and the executor. Every tool call goes
// through Execute: normalization, agent authorization, policy, and either
// direct execution or a parked pending action.
type Bridge struct {
	registry *tools.Registry
	policy   Policy
	executor tools.Executor
	actions  *action.Store
	logger   *zap.Logger
	readFile FileReader
}

// NewBridge creates a bridge.
func NewBridge(cfg Config) (*Bridge, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Actions == nil {
		return nil, fmt.Errorf("action store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Bridge{
		registry: cfg.Registry,
		policy:   cfg.Policy,
		executor: cfg.Executor,
		actions:  cfg.Actions,
		logger:   cfg.Logger,
		readFile: cfg.ReadFile,
	}, nil
}

// Execute runs one tool call through the gate.
func (b *Bridge) Execute(ctx context.Context, toolName string, args map[string]interface{}, opts CallOptions) Outcome {
	canonical := b.registry.Normalize(toolName)

	if opts.Agent != "" && !b.registry.AllowedFor(opts.Agent, canonical) {
		return Outcome{
			Success: false,
			Result: &tools.Result{
				Success: false,
				Error: &tools.Error{
					Code:    "tool_not_allowed",
					Message: fmt.Sprintf("Tool %s is not available to %s", canonical, opts.Agent),
				},
			},
		}
	}

	decision := b.policy.Check(ctx, canonical, args, opts.UserID)
	if !decision.Allowed {
		b.logger.Info("tool call denied",
			zap.String("tool", canonical),
			zap.String("agent", opts.Agent),
			zap.String("reason", decision.Reason))
		return Outcome{
			Success: false,
			Result: &tools.Result{
				Success: false,
				Error:   &tools.Error{Code: "tool_denied", Message: decision.Reason},
			},
		}
	}

	if decision.RequiresConfirmation {
		return b.park(ctx, canonical, args, opts)
	}

	result, err := b.executor.Execute(ctx, canonical, args, tools.ExecOptions{
		BypassConfirmation: b.registry.IsConfirmationWrapped(canonical),
		Agent:              opts.Agent,
	})
	if err != nil {
		return Outcome{Success: false, Err: err, Result: &tools.Result{
			Success: false,
			Error:   &tools.Error{Code: "execution_error", Message: err.Error()},
		}}
	}
	return Outcome{Success: result == nil || result.Success, Result: result}
}

// park creates a pending action and returns an awaiting-approval result so
// the agent loop can keep going.
func (b *Bridge) park(ctx context.Context, toolName string, args map[string]interface{}, opts CallOptions) Outcome {
	act := action.Action{
		ID:          uuid.NewString(),
		ToolName:    toolName,
		ToolArgs:    args,
		Description: tools.Describe(toolName, args),
		Preview:     b.preview(toolName, args),
		Agent:       opts.Agent,
		SessionID:   opts.SessionID,
	}

	created, err := b.actions.Create(ctx, act)
	if err != nil {
		return Outcome{Success: false, Err: err, Result: &tools.Result{
			Success: false,
			Error:   &tools.Error{Code: "action_create_failed", Message: err.Error()},
		}}
	}

	if opts.OnActionPending != nil {
		opts.OnActionPending(created)
	}

	b.logger.Info("tool call parked for approval",
		zap.String("tool", toolName),
		zap.String("agent", opts.Agent),
		zap.String("action_id", created.ID))

	return Outcome{
		Success:         true,
		PendingApproval: true,
		ActionID:        created.ID,
		Result: &tools.Result{
			Success: true,
			Data:    fmt.Sprintf("Action awaiting user approval (id: %s)", created.ID),
			Metadata: map[string]interface{}{
				"pendingApproval": true,
				"actionId":        created.ID,
			},
		},
	}
}

func (b *Bridge) preview(toolName string, args map[string]interface{}) string {
	var old string
	if b.readFile != nil {
		if path, ok := args["path"].(string); ok {
			if current, found := b.readFile(path); found {
				old = current
			}
		}
	}
	return tools.Preview(toolName, args, old)
}
