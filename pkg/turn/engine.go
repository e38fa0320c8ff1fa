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
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/action"
	"github.com/chapo-dev/chapo/pkg/approval"
	"github.com/chapo-dev/chapo/pkg/events"
	"github.com/chapo-dev/chapo/pkg/llm"
	"github.com/chapo-dev/chapo/pkg/state"
	"github.com/chapo-dev/chapo/pkg/subagent"
	"github.com/chapo-dev/chapo/pkg/tools"
)

// Gate and control tools handled natively by the engine.
const (
	ToolAskUser          = "askUser"
	ToolRequestApproval  = "requestApproval"
	ToolSetPlan          = "setChapoPlan"
	ToolPreflightAnswer  = "preflightAnswer"
	ToolDelegateDevo     = "delegateToDevo"
	ToolDelegateCaio     = "delegateToCaio"
	ToolDelegateScout    = "delegateToScout"
	ToolDelegateParallel = "delegateParallel"
)

// DefaultMaxIterations bounds the orchestrator loop within one turn.
const DefaultMaxIterations = 24

const chapoSystemPrompt = "You are CHAPO, the orchestrator of a systems assistant. " +
	"You coordinate three sub-agents: DEVO (development and operations), CAIO (administration, tickets, calendar) " +
	"and SCOUT (research). Delegate work with the delegate tools, ask the user with askUser when you are blocked, " +
	"request approval for risky multi-step work with requestApproval, and keep your plan current with setChapoPlan. " +
	"Answer in the language the user writes in. Never claim an external action you have no tool evidence for."

// Status is the outcome class of a turn invocation.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusQueued      Status = "queued"
	StatusWaitingUser Status = "waiting_user"
)

// Request is one inbound user turn.
type Request struct {
	SessionID string
	RequestID string
	Message   string
	UserID    string
	Source    string
}

// Outcome is what the dispatcher gets back.
type Outcome struct {
	Status Status
	Answer string
	Error  string
	TurnID string
}

// Config configures an Engine.
type Config struct {
	Provider  llm.Provider
	Bridge    *approval.Bridge
	Runner    *subagent.Runner
	Registry  *tools.Registry
	States    *state.Store
	Inbox     *state.Inbox
	Bus       *events.Bus
	Compactor *Compactor
	Usage     *llm.UsageMeter
	Logger    *zap.Logger

	MaxIterations int
	QuestionTTL   time.Duration
}

// Engine drives the orchestrator loop for user turns. One turn runs per
// session at a time; concurrent arrivals queue in the inbox.
type Engine struct {
	provider  llm.Provider
	bridge    *approval.Bridge
	runner    *subagent.Runner
	registry  *tools.Registry
	states    *state.Store
	inbox     *state.Inbox
	bus       *events.Bus
	compactor *Compactor
	usage     *llm.UsageMeter
	logger    *zap.Logger

	maxIterations int
	questionTTL   time.Duration

	mu        sync.Mutex
	running   map[string]string // session id -> owning turn id
	histories map[string][]llm.Message
	followUp  func(ctx context.Context, req Request)
}

// NewEngine creates a turn engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.States == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if cfg.Inbox == nil {
		return nil, fmt.Errorf("inbox is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.QuestionTTL <= 0 {
		cfg.QuestionTTL = DefaultQuestionTTL
	}
	return &Engine{
		provider:      cfg.Provider,
		bridge:        cfg.Bridge,
		runner:        cfg.Runner,
		registry:      cfg.Registry,
		states:        cfg.States,
		inbox:         cfg.Inbox,
		bus:           cfg.Bus,
		compactor:     cfg.Compactor,
		usage:         cfg.Usage,
		logger:        cfg.Logger,
		maxIterations: cfg.MaxIterations,
		questionTTL:   cfg.QuestionTTL,
		running:       make(map[string]string),
		histories:     make(map[string][]llm.Message),
	}, nil
}

// SetFollowUpHandler installs the callback that runs turns drained from the
// inbox after a turn ends. The handler owns the follow-up turn end to end,
// including delivery of its terminal response. Without a handler the engine
// runs follow-ups inline and logs their outcome.
func (e *Engine) SetFollowUpHandler(fn func(ctx context.Context, req Request)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.followUp = fn
}

// IsRunning reports whether a turn loop is active for the session.
func (e *Engine) IsRunning(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[sessionID] != ""
}

// releaseTurn drops the loop guard, but only while the named turn still owns
// it. A follow-up turn that took the guard in the meantime keeps it.
func (e *Engine) releaseTurn(sessionID, turnID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[sessionID] == turnID {
		delete(e.running, sessionID)
	}
}

// RunTurn executes one full user turn.
func (e *Engine) RunTurn(ctx context.Context, req Request) Outcome {
	st, err := e.states.EnsureLoaded(ctx, req.SessionID)
	if err != nil {
		return Outcome{Status: StatusFailed, Error: err.Error()}
	}

	turnID := uuid.NewString()
	e.mu.Lock()
	if e.running[req.SessionID] != "" {
		e.mu.Unlock()
		e.inbox.Push(req.SessionID, req.Message, req.Source)
		return Outcome{Status: StatusQueued}
	}
	e.running[req.SessionID] = turnID
	e.mu.Unlock()
	defer e.releaseTurn(req.SessionID, turnID)

	kind := ClassifyIntake(req.Message, len(st.PendingQuestions) > 0, len(st.PendingApprovals) > 0)

	uerr := e.states.Update(ctx, req.SessionID, func(st *state.ConversationState) {
		if st.Phase == state.PhaseWaitingUser && kind == IntakeNewRequest {
			st.PendingQuestions = nil
			st.Phase = state.PhaseIdle
			st.WaiveStaleObligations(turnID, "superseded by explicit request")
		}
		if ShouldCreateObligation(kind) {
			st.Obligations = append(st.Obligations, state.Obligation{
				ID:          uuid.NewString(),
				TurnID:      turnID,
				Origin:      state.ObligationOriginPrimary,
				Blocking:    BlockingObligation(kind),
				Description: req.Message,
				Status:      state.ObligationOpen,
				CreatedAt:   time.Now(),
			})
		}
		if st.TaskContext.OriginalRequest == "" || kind == IntakeNewRequest {
			st.TaskContext.OriginalRequest = req.Message
		}
		st.IsLoopRunning = true
		st.ActiveTurnID = turnID
		st.Phase = state.PhaseWorking
		st.RecordAgent("chapo", "turn_started")
	})
	if uerr != nil {
		return Outcome{Status: StatusFailed, Error: uerr.Error()}
	}

	e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeTurnStarted,
		events.TurnStarted{Agent: "chapo", Message: req.Message})

	outcome := e.runLoop(ctx, req, turnID, llm.Message{Role: llm.RoleUser, Content: req.Message})
	outcome.TurnID = turnID
	return e.finishTurn(ctx, req, turnID, outcome)
}

// Resume continues a suspended turn after a gate resolution. The content is
// injected as a user message carrying the resolution.
func (e *Engine) Resume(ctx context.Context, req Request) Outcome {
	st, err := e.states.EnsureLoaded(ctx, req.SessionID)
	if err != nil {
		return Outcome{Status: StatusFailed, Error: err.Error()}
	}

	turnID := st.ActiveTurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}
	e.mu.Lock()
	if e.running[req.SessionID] != "" {
		e.mu.Unlock()
		e.inbox.Push(req.SessionID, req.Message, req.Source)
		return Outcome{Status: StatusQueued}
	}
	e.running[req.SessionID] = turnID
	e.mu.Unlock()
	defer e.releaseTurn(req.SessionID, turnID)

	uerr := e.states.Update(ctx, req.SessionID, func(st *state.ConversationState) {
		st.IsLoopRunning = true
		st.ActiveTurnID = turnID
		st.Phase = state.PhaseWorking
	})
	if uerr != nil {
		return Outcome{Status: StatusFailed, Error: uerr.Error()}
	}

	outcome := e.runLoop(ctx, req, turnID, llm.Message{Role: llm.RoleUser, Content: req.Message})
	outcome.TurnID = turnID
	return e.finishTurn(ctx, req, turnID, outcome)
}

// finishTurn records the terminal state, emits the terminal event and
// schedules a follow-up turn for drained inbox messages.
func (e *Engine) finishTurn(ctx context.Context, req Request, turnID string, outcome Outcome) Outcome {
	phase := state.PhaseIdle
	if outcome.Status == StatusWaitingUser {
		phase = state.PhaseWaitingUser
	}
	_ = e.states.Update(ctx, req.SessionID, func(st *state.ConversationState) {
		st.IsLoopRunning = false
		st.Phase = phase
		if outcome.Status == StatusCompleted {
			for i := range st.Obligations {
				o := &st.Obligations[i]
				if o.Status == state.ObligationOpen && o.TurnID == turnID {
					o.Resolve(state.ObligationSatisfied, "turn completed")
				}
			}
			st.ActiveTurnID = ""
		}
	})
	if err := e.states.Flush(ctx, req.SessionID); err != nil {
		e.logger.Warn("state flush at turn end failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
	}

	switch outcome.Status {
	case StatusCompleted:
		e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeCompleted,
			events.Completed{Answer: outcome.Answer, Agent: "chapo"})
	case StatusFailed:
		e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeFailed,
			events.Failed{Error: outcome.Error, Agent: "chapo"})
	}

	// A gate suspension keeps the queue for the resumption; only a finished
	// turn consumes it. The follow-up is a separate turn with its own request
	// id and its own terminal; the outcome returned here stays the one the
	// caller's request produced.
	if outcome.Status == StatusCompleted || outcome.Status == StatusFailed {
		if queued := e.inbox.Drain(req.SessionID); len(queued) > 0 {
			contents := make([]string, len(queued))
			for i, m := range queued {
				contents[i] = m.Content
			}
			followUp := req
			followUp.RequestID = uuid.NewString()
			followUp.Message = strings.Join(contents, "\n")
			e.logger.Info("scheduling follow-up turn for queued messages",
				zap.String("session_id", req.SessionID), zap.Int("messages", len(queued)))
			// Release the loop guard so the follow-up is not queued behind
			// the turn that just ended.
			e.releaseTurn(req.SessionID, turnID)
			e.mu.Lock()
			handler := e.followUp
			e.mu.Unlock()
			if handler != nil {
				go handler(context.WithoutCancel(ctx), followUp)
			} else {
				result := e.RunTurn(ctx, followUp)
				e.logger.Info("follow-up turn finished",
					zap.String("session_id", req.SessionID),
					zap.String("request_id", followUp.RequestID),
					zap.String("status", string(result.Status)))
			}
		}
	}
	return outcome
}

// runLoop is the agent loop for one turn.
func (e *Engine) runLoop(ctx context.Context, req Request, turnID string, userMsg llm.Message) Outcome {
	history := e.loadHistory(req.SessionID)
	history = append(history, userMsg)
	preflightRetried := false

	for iter := 0; iter < e.maxIterations; iter++ {
		history = e.maybeCompact(ctx, req, turnID, history)

		resp, err := e.provider.Chat(ctx, history, e.chapoToolDefs())
		if err != nil {
			e.saveHistory(req.SessionID, history)
			return Outcome{Status: StatusFailed, Error: err.Error()}
		}
		if e.usage != nil {
			e.usage.Record(ctx, "chapo", resp.Usage)
		}

		if len(resp.ToolCalls) == 0 {
			if !preflightRetried {
				if issueMsg, ok := e.preflightGap(ctx, req.SessionID, turnID, resp.Content); !ok {
					preflightRetried = true
					history = append(history,
						llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
						llm.Message{Role: llm.RoleUser, Content: issueMsg})
					continue
				}
			}
			history = append(history, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			e.saveHistory(req.SessionID, history)
			return Outcome{Status: StatusCompleted, Answer: resp.Content}
		}

		history = append(history, llm.Message{
			Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls,
		})

		suspended := false
		for _, call := range resp.ToolCalls {
			result, suspend := e.handleToolCall(ctx, req, turnID, call)
			history = append(history, llm.Message{
				Role: llm.RoleTool, ToolCallID: call.ID, Content: result,
			})
			if suspend {
				suspended = true
			}
		}
		if suspended {
			e.saveHistory(req.SessionID, history)
			return Outcome{Status: StatusWaitingUser}
		}
	}

	e.saveHistory(req.SessionID, nil)
	return Outcome{Status: StatusFailed, Error: fmt.Sprintf("turn budget exhausted after %d iterations", e.maxIterations)}
}

// handleToolCall dispatches one tool call. The bool return requests loop
// suspension (a gate is now waiting on the user).
func (e *Engine) handleToolCall(ctx context.Context, req Request, turnID string, call llm.ToolCall) (string, bool) {
	switch call.Name {
	case ToolAskUser:
		return e.handleAskUser(ctx, req, turnID, call)
	case ToolRequestApproval:
		return e.handleRequestApproval(ctx, req, turnID, call)
	case ToolSetPlan:
		return e.handleSetPlan(ctx, req, turnID, call), false
	case ToolPreflightAnswer:
		return e.handlePreflight(ctx, req.SessionID, turnID, call), false
	case ToolDelegateDevo:
		return e.handleDelegate(ctx, req, turnID, "devo", call), false
	case ToolDelegateCaio:
		return e.handleDelegate(ctx, req, turnID, "caio", call), false
	case ToolDelegateScout:
		return e.handleDelegate(ctx, req, turnID, "scout", call), false
	case ToolDelegateParallel:
		return e.handleDelegateParallel(ctx, req, turnID, call), false
	default:
		return e.handleBridgedTool(ctx, req, turnID, call), false
	}
}

func (e *Engine) handleAskUser(ctx context.Context, req Request, turnID string, call llm.ToolCall) (string, bool) {
	question := argString(call.Input, "question")
	if question == "" {
		return "askUser requires a question", false
	}
	kind := argString(call.Input, "kind")

	var queued state.UserQuestion
	var fresh bool
	_ = e.states.Update(ctx, req.SessionID, func(st *state.ConversationState) {
		queued, fresh = queueQuestion(st, question, "chapo", turnID, kind, e.questionTTL)
	})
	// Gate transitions flush before anything downstream sees the event.
	if err := e.states.Flush(ctx, req.SessionID); err != nil {
		e.logger.Warn("gate flush failed", zap.String("session_id", req.SessionID), zap.Error(err))
	}
	if fresh {
		e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeQuestionQueued, events.QuestionQueued{
			QuestionID: queued.QuestionID, Question: queued.Question,
			FromAgent: queued.FromAgent, Fingerprint: queued.Fingerprint,
		})
	}
	return fmt.Sprintf("Question queued (id: %s), waiting for the user", queued.QuestionID), true
}

func (e *Engine) handleRequestApproval(ctx context.Context, req Request, turnID string, call llm.ToolCall) (string, bool) {
	description := argString(call.Input, "description")
	if description == "" {
		return "requestApproval requires a description", false
	}

	var queued state.ApprovalRequest
	_ = e.states.Update(ctx, req.SessionID, func(st *state.ConversationState) {
		queued = queueApproval(st,
			description,
			argString(call.Input, "riskLevel"),
			"chapo",
			argString(call.Input, "context"),
			argStrings(call.Input, "actions"))
	})
	if err := e.states.Flush(ctx, req.SessionID); err != nil {
		e.logger.Warn("gate flush failed", zap.String("session_id", req.SessionID), zap.Error(err))
	}
	e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeApprovalQueued, events.ApprovalQueued{
		ApprovalID: queued.ApprovalID, Description: queued.Description,
		RiskLevel: queued.RiskLevel, Actions: queued.Actions, FromAgent: queued.FromAgent,
	})
	return fmt.Sprintf("Approval requested (id: %s), waiting for the user", queued.ApprovalID), true
}

func (e *Engine) handleSetPlan(ctx context.Context, req Request, turnID string, call llm.ToolCall) string {
	raw, err := json.Marshal(call.Input)
	if err != nil {
		return "invalid plan payload"
	}
	var in PlanInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Sprintf("invalid plan payload: %v", err)
	}
	if err := ValidatePlan(in); err != nil {
		return fmt.Sprintf("plan rejected: %v", err)
	}
	var plan state.Plan
	_ = e.states.Update(ctx, req.SessionID, func(st *state.ConversationState) {
		plan = ApplyPlan(st, in)
	})
	e.emit(ctx, req, turnID, events.VisibilityUI, events.TypePlanReady, events.PlanReady{
		PlanID: plan.PlanID, Version: plan.Version, Title: plan.Title,
	})
	return fmt.Sprintf("Plan %q stored as version %d", plan.Title, plan.Version)
}

func (e *Engine) handlePreflight(_ context.Context, sessionID, turnID string, call llm.ToolCall) string {
	draft := argString(call.Input, "draft")
	mustAddress := argStrings(call.Input, "mustAddress")
	strict, _ := call.Input["strict"].(bool)

	var original string
	if st, ok := e.states.Get(sessionID); ok {
		original = st.TaskContext.OriginalRequest
		if len(mustAddress) == 0 {
			for _, o := range st.OpenObligations(turnID) {
				if o.Blocking {
					mustAddress = append(mustAddress, o.Description)
				}
				if len(mustAddress) == maxPreflightItems {
					break
				}
			}
		}
	}

	result := PreflightAnswer(draft, mustAddress, strict, original)
	raw, err := json.Marshal(result)
	if err != nil {
		return `{"ok":false,"issues":[{"kind":"missing_answer","detail":"preflight encode failure"}]}`
	}
	return string(raw)
}

func (e *Engine) handleDelegate(ctx context.Context, req Request, turnID, agent string, call llm.ToolCall) string {
	contract := contractFrom(call.Input)
	e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeAgentDelegated, events.AgentDelegated{
		From: "chapo", To: agent, Objective: contract.Objective,
	})
	_ = e.states.Update(ctx, req.SessionID, func(st *state.ConversationState) {
		st.RecordAgent(agent, "delegated")
	})

	result := e.runner.Run(ctx, agent, contract, e.runOptions(ctx, req, turnID))

	switch result.ExitReason {
	case subagent.ExitLLMError:
		e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeAgentFailed,
			events.AgentFailed{Agent: agent, Error: result.Err})
	default:
		e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeAgentCompleted, events.AgentCompleted{
			Agent: agent, ExitReason: string(result.ExitReason), Summary: result.Answer,
		})
	}

	if result.Escalation != nil {
		// The sub-agent's escalation surfaces in the delegator's result.
		return fmt.Sprintf("%s escalated: %s\n%s", agent, result.Escalation.Reason, result.Escalation.Details)
	}
	if result.ExitReason == subagent.ExitLLMError {
		return fmt.Sprintf("%s failed: %s", agent, result.Err)
	}
	return fmt.Sprintf("[%s — %s]\n%s", agent, result.ExitReason, result.Answer)
}

func (e *Engine) handleDelegateParallel(ctx context.Context, req Request, turnID string, call llm.ToolCall) string {
	jobsRaw, ok := call.Input["jobs"].([]interface{})
	if !ok || len(jobsRaw) == 0 {
		return "delegateParallel requires a jobs array"
	}
	var jobs []subagent.ParallelJob
	var agents []string
	for _, j := range jobsRaw {
		jm, ok := j.(map[string]interface{})
		if !ok {
			continue
		}
		agent := argString(jm, "agent")
		if agent == "" {
			continue
		}
		jobs = append(jobs, subagent.ParallelJob{Agent: agent, Contract: contractFrom(jm)})
		agents = append(agents, agent)
	}
	if len(jobs) == 0 {
		return "delegateParallel requires at least one valid job"
	}

	execID := uuid.NewString()
	_ = e.states.Update(ctx, req.SessionID, func(st *state.ConversationState) {
		if st.ParallelExecutions == nil {
			st.ParallelExecutions = map[string]state.ParallelExecution{}
		}
		st.ParallelExecutions[execID] = state.ParallelExecution{
			ID: execID, Agents: agents, Status: "running", StartedAt: time.Now(),
		}
	})
	e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeAgentDelegated, events.AgentDelegated{
		From: "chapo", To: strings.Join(agents, ","), Parallel: true,
	})

	results := e.runner.RunParallel(ctx, jobs, e.runOptions(ctx, req, turnID))

	_ = e.states.Update(ctx, req.SessionID, func(st *state.ConversationState) {
		if pe, ok := st.ParallelExecutions[execID]; ok {
			pe.Status = "finished"
			st.ParallelExecutions[execID] = pe
		}
	})
	for _, pr := range results {
		e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeAgentCompleted, events.AgentCompleted{
			Agent: pr.Job.Agent, ExitReason: string(pr.Result.ExitReason),
		})
	}
	return subagent.SummarizeParallel(results)
}

func (e *Engine) handleBridgedTool(ctx context.Context, req Request, turnID string, call llm.ToolCall) string {
	started := time.Now()
	e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeToolCallStarted, events.ToolCallStarted{
		CallID: call.ID, Tool: call.Name, Agent: "chapo", Args: tools.SanitizeArgs(call.Input),
	})

	out := e.bridge.Execute(ctx, call.Name, call.Input, approval.CallOptions{
		Agent:     "chapo",
		UserID:    req.UserID,
		SessionID: req.SessionID,
		OnActionPending: func(act action.Action) {
			e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeActionPending, events.ActionPending{
				ActionID: act.ID, Tool: act.ToolName,
				Description: act.Description, Preview: act.Preview,
			})
		},
	})

	elapsed := time.Since(started).Milliseconds()
	if out.Success {
		e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeToolCallCompleted, events.ToolCallCompleted{
			CallID: call.ID, Tool: call.Name, Agent: "chapo",
			DurationMs: elapsed, Preview: out.Result.TextPreview(400),
		})
		return out.Result.TextPreview(8000)
	}

	errMsg := "tool failed"
	if out.Result != nil && out.Result.Error != nil {
		errMsg = out.Result.Error.Message
	} else if out.Err != nil {
		errMsg = out.Err.Error()
	}
	e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeToolCallFailed, events.ToolCallFailed{
		CallID: call.ID, Tool: call.Name, Agent: "chapo", DurationMs: elapsed, Error: errMsg,
	})
	return "Error: " + errMsg
}

// preflightGap checks a draft answer against the turn's blocking obligations.
// Returns a corrective message and false when the draft falls short.
func (e *Engine) preflightGap(_ context.Context, sessionID, turnID, draft string) (string, bool) {
	st, ok := e.states.Get(sessionID)
	if !ok {
		return "", true
	}
	var mustAddress []string
	for _, o := range st.OpenObligations(turnID) {
		if o.Blocking {
			mustAddress = append(mustAddress, o.Description)
		}
		if len(mustAddress) == maxPreflightItems {
			break
		}
	}
	result := PreflightAnswer(draft, mustAddress, false, st.TaskContext.OriginalRequest)
	if result.OK {
		return "", true
	}
	var issues []string
	for _, issue := range result.Issues {
		issues = append(issues, fmt.Sprintf("%s: %s", issue.Kind, issue.Detail))
	}
	return "Your draft answer has gaps, revise it before answering:\n- " +
		strings.Join(issues, "\n- "), false
}

// maybeCompact runs compaction at the checkpoint and drains queued inbox
// messages into the conversation.
func (e *Engine) maybeCompact(ctx context.Context, req Request, turnID string, history []llm.Message) []llm.Message {
	if e.compactor == nil || !e.compactor.NeedsCompaction(history) {
		return history
	}
	var original string
	if st, ok := e.states.Get(req.SessionID); ok {
		original = st.TaskContext.OriginalRequest
	}
	compacted, result, err := e.compactor.Compact(ctx, history, original)
	if err != nil {
		e.logger.Warn("compaction failed, continuing uncompacted",
			zap.String("session_id", req.SessionID), zap.Error(err))
		return history
	}
	e.emit(ctx, req, turnID, events.VisibilityInternal, events.TypeAgentThinking, events.AgentThinking{
		Agent: "chapo",
		Text: fmt.Sprintf("Compacted %d messages (%d tokens) into a %d token summary",
			result.DroppedCount, result.DroppedTokens, result.SummaryTokens),
	})

	// Compaction checkpoint doubles as an inbox drain point.
	for _, msg := range e.inbox.Drain(req.SessionID) {
		compacted = append(compacted, llm.Message{Role: llm.RoleUser, Content: msg.Content})
	}
	return compacted
}

func (e *Engine) runOptions(ctx context.Context, req Request, turnID string) subagent.RunOptions {
	return subagent.RunOptions{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		OnActionPending: func(actionID string) {
			e.emit(ctx, req, turnID, events.VisibilityUI, events.TypeActionPending,
				events.ActionPending{ActionID: actionID})
		},
		OnEvent: func(event, detail string) {
			e.logger.Debug("sub-agent progress",
				zap.String("session_id", req.SessionID),
				zap.String("event", event), zap.String("detail", detail))
		},
	}
}

// chapoToolDefs builds the orchestrator's tool surface: its whitelist tools
// plus the native gate and control tools.
func (e *Engine) chapoToolDefs() []llm.ToolDef {
	var defs []llm.ToolDef
	for _, name := range e.registry.ToolsForAgent("chapo") {
		def := llm.ToolDef{Name: name, Description: "Execute " + name}
		if tool, ok := e.registry.Get(name); ok {
			def.Description = tool.Description()
			if raw, err := tool.InputSchema().ToJSON(); err == nil {
				def.InputSchema = raw
			}
		}
		defs = append(defs, def)
	}
	defs = append(defs, gateToolDefs...)
	return defs
}

var delegateSchema = json.RawMessage(`{
	"type": "object",
	"required": ["objective"],
	"properties": {
		"objective": {"type": "string"},
		"constraints": {"type": "string"},
		"expectedOutcome": {"type": "string"},
		"contextFacts": {"type": "array", "items": {"type": "string"}}
	}
}`)

var gateToolDefs = []llm.ToolDef{
	{
		Name:        ToolAskUser,
		Description: "Ask the user a question and suspend until they answer.",
		InputSchema: json.RawMessage(`{"type":"object","required":["question"],"properties":{"question":{"type":"string"},"kind":{"type":"string"}}}`),
	},
	{
		Name:        ToolRequestApproval,
		Description: "Request user approval for risky or multi-step work and suspend until decided.",
		InputSchema: json.RawMessage(`{"type":"object","required":["description"],"properties":{"description":{"type":"string"},"riskLevel":{"type":"string","enum":["low","medium","high"]},"actions":{"type":"array","items":{"type":"string"}},"context":{"type":"string"}}}`),
	},
	{
		Name:        ToolSetPlan,
		Description: "Store or update the orchestration plan.",
		InputSchema: json.RawMessage(`{"type":"object","required":["title","steps"],"properties":{"title":{"type":"string"},"steps":{"type":"array","items":{"type":"object","required":["id","text","owner","status"],"properties":{"id":{"type":"string"},"text":{"type":"string"},"owner":{"type":"string","enum":["chapo","devo","scout","caio"]},"status":{"type":"string","enum":["todo","doing","done","blocked"]}}}}}}`),
	},
	{
		Name:        ToolPreflightAnswer,
		Description: "Check a draft answer for gaps before sending it to the user.",
		InputSchema: json.RawMessage(`{"type":"object","required":["draft"],"properties":{"draft":{"type":"string"},"mustAddress":{"type":"array","items":{"type":"string"}},"strict":{"type":"boolean"}}}`),
	},
	{Name: ToolDelegateDevo, Description: "Delegate a development or operations task to DEVO.", InputSchema: delegateSchema},
	{Name: ToolDelegateCaio, Description: "Delegate an administrative task to CAIO.", InputSchema: delegateSchema},
	{Name: ToolDelegateScout, Description: "Delegate a research task to SCOUT.", InputSchema: delegateSchema},
	{
		Name:        ToolDelegateParallel,
		Description: "Run several delegations concurrently.",
		InputSchema: json.RawMessage(`{"type":"object","required":["jobs"],"properties":{"jobs":{"type":"array","items":{"type":"object","required":["agent","objective"],"properties":{"agent":{"type":"string","enum":["devo","caio","scout"]},"objective":{"type":"string"},"constraints":{"type":"string"},"contextFacts":{"type":"array","items":{"type":"string"}}}}}}}`),
	},
}

func (e *Engine) emit(ctx context.Context, req Request, turnID string, vis events.Visibility, typ events.Type, payload interface{}) {
	e.bus.Emit(ctx, events.New(req.SessionID, req.RequestID, turnID, "turn-engine", vis, typ, payload))
}

func (e *Engine) loadHistory(sessionID string) []llm.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h := e.histories[sessionID]; len(h) > 0 {
		out := make([]llm.Message, len(h))
		copy(out, h)
		return out
	}
	return []llm.Message{{Role: llm.RoleSystem, Content: chapoSystemPrompt}}
}

func (e *Engine) saveHistory(sessionID string, history []llm.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if history == nil {
		delete(e.histories, sessionID)
		return
	}
	e.histories[sessionID] = history
}

func contractFrom(args map[string]interface{}) subagent.Contract {
	return subagent.Contract{
		Objective:       argString(args, "objective"),
		Constraints:     argString(args, "constraints"),
		ExpectedOutcome: argString(args, "expectedOutcome"),
		ContextFacts:    argStrings(args, "contextFacts"),
	}
}

func argString(args map[string]interface{}, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

func argStrings(args map[string]interface{}, key string) []string {
	if args == nil {
		return nil
	}
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
