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
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chapo-dev/chapo/pkg/action"
	"github.com/chapo-dev/chapo/pkg/approval"
	"github.com/chapo-dev/chapo/pkg/llm"
	"github.com/chapo-dev/chapo/pkg/tools"
)

// ToolEscalate is the gate tool a sub-agent calls to bail out.
const ToolEscalate = "escalateToChapo"

// DefaultMaxTurns bounds a delegated loop.
const DefaultMaxTurns = 10

// parallelPreviewLimit caps per-job result previews in parallel summaries.
const parallelPreviewLimit = 1200

// systemPrompts per agent kind.
var systemPrompts = map[string]string{
	"devo": "You are DEVO, the developer and operations agent. Complete the delegated objective using your tools. " +
		"Work step by step, verify the outcome of each command, and report what you actually did. " +
		"If the task needs a decision only the orchestrator can make, call escalateToChapo.",
	"caio": "You are CAIO, the administration agent. Handle tickets, calendar entries and administrative requests. " +
		"Every external action must come from a tool call; never claim an action you did not perform. " +
		"If the task is out of scope, call escalateToChapo.",
	"scout": "You are SCOUT, the research agent. Gather information with your tools and answer with sources. " +
		"Do not modify anything. If the question needs action rather than research, call escalateToChapo.",
}

// Config configures a Runner.
type Config struct {
	Provider llm.Provider
	Bridge   *approval.Bridge
	Registry *tools.Registry
	Logger   *zap.Logger
	MaxTurns int
}

// RunOptions carry per-delegation identifiers.
type RunOptions struct {
	SessionID string
	UserID    string

	// OnActionPending is forwarded to the bridge so parked actions queue
	// their approval gate on the delegating turn.
	OnActionPending func(actionID string)

	// OnEvent receives loop progress notifications (tool name, phase).
	// Optional.
	OnEvent func(event, detail string)
}

// Runner drives bounded sub-agent loops.
type Runner struct {
	provider llm.Provider
	bridge   *approval.Bridge
	registry *tools.Registry
	logger   *zap.Logger
	maxTurns int
	now      func() time.Time
}

// NewRunner creates a runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	return &Runner{
		provider: cfg.Provider,
		bridge:   cfg.Bridge,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		maxTurns: cfg.MaxTurns,
		now:      time.Now,
	}, nil
}

// Run executes one delegated loop for the given agent kind.
func (r *Runner) Run(ctx context.Context, agent string, contract Contract, opts RunOptions) *RunResult {
	strategy := StrategyFor(agent)
	result := &RunResult{Agent: agent}

	system := systemPrompts[agent]
	if system == "" {
		system = fmt.Sprintf("You are %s, a delegated agent. Complete the objective with your tools.", agent)
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: contract.Prompt()},
	}
	defs := toolDefsFor(r.registry, agent)

	for turn := 0; turn < r.maxTurns; turn++ {
		result.Turns = turn + 1

		resp, err := r.provider.Chat(ctx, messages, defs)
		if err != nil {
			r.logger.Warn("sub-agent llm call failed",
				zap.String("agent", agent), zap.Int("turn", turn+1), zap.Error(err))
			result.ExitReason = ExitLLMError
			result.Err = err.Error()
			return result
		}

		if len(resp.ToolCalls) == 0 {
			result.Answer = resp.Content
			result.ExitReason = ExitCompleted
			result.Answer = strategy.Summarize(result)
			return result
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			if call.Name == ToolEscalate {
				result.ExitReason = ExitEscalated
				result.Escalation = &Escalation{
					Reason:  stringArg(call.Input, "reason"),
					Details: stringArg(call.Input, "details"),
				}
				return result
			}

			ev := r.runToolCall(ctx, agent, strategy, call, opts)
			result.Evidence = append(result.Evidence, ev)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    strategy.EncodeResult(call, ev),
			})
		}
	}

	result.ExitReason = ExitMaxTurns
	result.Answer = strategy.Summarize(result)
	return result
}

func (r *Runner) runToolCall(ctx context.Context, agent string, strategy EvidenceStrategy, call llm.ToolCall, opts RunOptions) Evidence {
	if opts.OnEvent != nil {
		opts.OnEvent("tool.call.started", call.Name)
	}
	if err := strategy.Preflight(call); err != nil {
		r.logger.Info("sub-agent tool call rejected in preflight",
			zap.String("agent", agent), zap.String("tool", call.Name), zap.Error(err))
		return Evidence{
			Tool: call.Name, CallID: call.ID,
			Success: false, Error: err.Error(), OccurredAt: r.now(),
		}
	}

	out := r.bridge.Execute(ctx, call.Name, call.Input, approval.CallOptions{
		Agent:     agent,
		UserID:    opts.UserID,
		SessionID: opts.SessionID,
		OnActionPending: func(act action.Action) {
			if opts.OnActionPending != nil {
				opts.OnActionPending(act.ID)
			}
		},
	})

	ev := evidenceFrom(call, out)
	ev.OccurredAt = r.now()
	if opts.OnEvent != nil {
		if ev.Success {
			opts.OnEvent("tool.call.completed", call.Name)
		} else {
			opts.OnEvent("tool.call.failed", call.Name)
		}
	}
	return ev
}

// ParallelJob is one delegation in a delegateParallel fan-out.
type ParallelJob struct {
	Agent    string
	Contract Contract
}

// ParallelResult pairs a job with its outcome.
type ParallelResult struct {
	Job    ParallelJob
	Result *RunResult
}

// RunParallel executes jobs concurrently with independent error isolation:
// one job's failure never cancels the others.
func (r *Runner) RunParallel(ctx context.Context, jobs []ParallelJob, opts RunOptions) []ParallelResult {
	results := make([]ParallelResult, len(jobs))
	var mu sync.Mutex

	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			res := r.Run(ctx, job.Agent, job.Contract, opts)
			mu.Lock()
			results[i] = ParallelResult{Job: job, Result: res}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// SummarizeParallel renders a fan-out outcome for the delegating agent:
// success count plus a bounded preview per job.
func SummarizeParallel(results []ParallelResult) string {
	succeeded := 0
	for _, pr := range results {
		if pr.Result.Success() {
			succeeded++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Parallel delegation: %d/%d successful\n", succeeded, len(results))
	for _, pr := range results {
		status := string(pr.Result.ExitReason)
		preview := pr.Result.Answer
		if preview == "" && pr.Result.Err != "" {
			preview = pr.Result.Err
		}
		if pr.Result.Escalation != nil {
			preview = "escalated: " + pr.Result.Escalation.Reason
		}
		if len(preview) > parallelPreviewLimit {
			preview = preview[:parallelPreviewLimit] + "…"
		}
		fmt.Fprintf(&b, "\n[%s — %s]\n%s\n", pr.Job.Agent, status, preview)
	}
	return b.String()
}

func stringArg(args map[string]interface{}, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}
