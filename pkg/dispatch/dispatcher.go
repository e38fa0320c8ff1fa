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

package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/action"
	"github.com/chapo-dev/chapo/pkg/events"
	"github.com/chapo-dev/chapo/pkg/state"
	"github.com/chapo-dev/chapo/pkg/storage"
	"github.com/chapo-dev/chapo/pkg/turn"
)

// TerminalResponse is what the dispatcher hands to the transport when a turn
// reaches a terminal or queued state. Gate suspensions produce no terminal
// response; their events reach the client through the stream projection.
type TerminalResponse struct {
	RequestID      string          `json:"requestId,omitempty"`
	Status         string          `json:"status"`
	Message        string          `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
	PendingActions []action.Action `json:"pendingActions,omitempty"`
}

// ResponseSender delivers a terminal response to the client session.
type ResponseSender func(sessionID string, resp TerminalResponse)

// Config configures a Dispatcher.
type Config struct {
	Engine   *turn.Engine
	States   *state.Store
	Actions  *action.Store
	Bus      *events.Bus
	Messages storage.MessageLog
	Logger   *zap.Logger

	// AllowedRoots restricts the projectRoot a request may name. Empty
	// means no restriction.
	AllowedRoots []string

	Send ResponseSender
}

// Dispatcher routes typed commands into the turn engine and owns the
// terminal response back to the client.
type Dispatcher struct {
	engine       *turn.Engine
	states       *state.Store
	actions      *action.Store
	bus          *events.Bus
	messages     storage.MessageLog
	logger       *zap.Logger
	allowedRoots []string
	send         ResponseSender
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.States == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if cfg.Actions == nil {
		return nil, fmt.Errorf("action store is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Send == nil {
		cfg.Send = func(string, TerminalResponse) {}
	}
	d := &Dispatcher{
		engine:       cfg.Engine,
		states:       cfg.States,
		actions:      cfg.Actions,
		bus:          cfg.Bus,
		messages:     cfg.Messages,
		logger:       cfg.Logger,
		allowedRoots: cfg.AllowedRoots,
		send:         cfg.Send,
	}
	cfg.Engine.SetFollowUpHandler(d.runFollowUp)
	return d, nil
}

// runFollowUp executes a turn drained from the session inbox. It delivers
// its own terminal response under the follow-up's request id, so the turn
// that drained the queue keeps its original outcome.
func (d *Dispatcher) runFollowUp(ctx context.Context, req turn.Request) {
	outcome := d.engine.RunTurn(ctx, req)
	d.finish(ctx, req.SessionID, req.RequestID, outcome)
}

// Dispatch parses a raw transport message and executes the command it
// carries. Unknown message types are dropped without error.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, raw []byte) error {
	cmd, err := ParseCommand(raw)
	if err != nil {
		return err
	}
	switch c := cmd.(type) {
	case UserRequest:
		return d.HandleRequest(ctx, userID, c)
	case QuestionAnswered:
		return d.HandleQuestionAnswered(ctx, userID, c)
	case ApprovalDecided:
		return d.HandleApprovalDecided(ctx, userID, c)
	case PlanApprovalDecided:
		return d.HandlePlanApprovalDecided(ctx, userID, c)
	default:
		d.logger.Debug("ignoring unknown command", zap.ByteString("raw", raw))
		return nil
	}
}

// HandleRequest runs (or queues) a user turn.
func (d *Dispatcher) HandleRequest(ctx context.Context, userID string, cmd UserRequest) error {
	if cmd.SessionID == "" {
		cmd.SessionID = uuid.NewString()
	}
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}
	if err := d.checkProjectRoot(cmd.ProjectRoot); err != nil {
		d.send(cmd.SessionID, TerminalResponse{
			RequestID: cmd.RequestID, Status: string(turn.StatusFailed), Error: err.Error(),
		})
		return err
	}

	d.logMessage(ctx, cmd.SessionID, "user", cmd.Message)

	outcome := d.engine.RunTurn(ctx, turn.Request{
		SessionID: cmd.SessionID,
		RequestID: cmd.RequestID,
		Message:   augmentMessage(cmd),
		UserID:    userID,
		Source:    "ws",
	})
	d.finish(ctx, cmd.SessionID, cmd.RequestID, outcome)
	return nil
}

// HandleQuestionAnswered resolves a question gate and resumes the turn.
func (d *Dispatcher) HandleQuestionAnswered(ctx context.Context, userID string, cmd QuestionAnswered) error {
	var removed state.UserQuestion
	var found bool
	if err := d.states.Update(ctx, cmd.SessionID, func(st *state.ConversationState) {
		removed, found = st.RemoveQuestion(cmd.QuestionID)
	}); err != nil {
		return err
	}
	if err := d.states.Flush(ctx, cmd.SessionID); err != nil {
		d.logger.Warn("gate flush failed", zap.String("session_id", cmd.SessionID), zap.Error(err))
	}
	if !found {
		d.logger.Warn("answer for unknown question, resuming anyway",
			zap.String("session_id", cmd.SessionID), zap.String("question_id", cmd.QuestionID))
	}

	requestID := uuid.NewString()
	d.bus.Emit(ctx, events.New(cmd.SessionID, requestID, d.activeTurnID(cmd.SessionID), "dispatcher",
		events.VisibilityUI, events.TypeQuestionResolved,
		events.QuestionResolved{QuestionID: cmd.QuestionID, Answer: cmd.Answer}))

	d.logMessage(ctx, cmd.SessionID, "user", cmd.Answer)

	resume := fmt.Sprintf("The user answered your question: %s", cmd.Answer)
	if found && removed.Question != "" {
		resume = fmt.Sprintf("The user answered the question %q: %s", removed.Question, cmd.Answer)
	}
	outcome := d.engine.Resume(ctx, turn.Request{
		SessionID: cmd.SessionID,
		RequestID: requestID,
		Message:   resume,
		UserID:    userID,
		Source:    "gate",
	})
	d.finish(ctx, cmd.SessionID, requestID, outcome)
	return nil
}

// HandleApprovalDecided resolves an approval gate or a parked action and
// resumes the turn with the decision outcome.
func (d *Dispatcher) HandleApprovalDecided(ctx context.Context, userID string, cmd ApprovalDecided) error {
	var removed state.ApprovalRequest
	var gateFound bool
	if err := d.states.Update(ctx, cmd.SessionID, func(st *state.ConversationState) {
		removed, gateFound = st.RemoveApproval(cmd.ApprovalID)
		if gateFound && cmd.Approved {
			st.TaskContext.ApprovalGranted = true
		}
	}); err != nil {
		return err
	}
	if err := d.states.Flush(ctx, cmd.SessionID); err != nil {
		d.logger.Warn("gate flush failed", zap.String("session_id", cmd.SessionID), zap.Error(err))
	}

	requestID := uuid.NewString()
	d.bus.Emit(ctx, events.New(cmd.SessionID, requestID, d.activeTurnID(cmd.SessionID), "dispatcher",
		events.VisibilityUI, events.TypeApprovalResolved,
		events.ApprovalResolved{ApprovalID: cmd.ApprovalID, Approved: cmd.Approved}))

	resume := d.resolveApproval(ctx, cmd, removed, gateFound)

	outcome := d.engine.Resume(ctx, turn.Request{
		SessionID: cmd.SessionID,
		RequestID: requestID,
		Message:   resume,
		UserID:    userID,
		Source:    "gate",
	})
	d.finish(ctx, cmd.SessionID, requestID, outcome)
	return nil
}

// resolveApproval executes or rejects a parked action when the approval id
// names one, and builds the resume message for the engine.
func (d *Dispatcher) resolveApproval(ctx context.Context, cmd ApprovalDecided, gate state.ApprovalRequest, gateFound bool) string {
	if act, ok := d.actions.Get(cmd.ApprovalID); ok {
		if !cmd.Approved {
			if _, err := d.actions.Reject(ctx, act.ID); err != nil {
				d.logger.Warn("action reject failed", zap.String("action_id", act.ID), zap.Error(err))
			}
			return fmt.Sprintf("The user rejected the pending action %q. Do not retry it without new instructions.", act.Description)
		}
		done, err := d.actions.ApproveAndExecute(ctx, act.ID)
		if err != nil {
			return fmt.Sprintf("The user approved the action %q but execution failed: %v", act.Description, err)
		}
		if done.Status == action.StatusFailed {
			return fmt.Sprintf("The user approved the action %q but it failed: %s", done.Description, done.Error)
		}
		return fmt.Sprintf("The user approved the action %q and it executed successfully. Result:\n%v",
			done.Description, done.Result)
	}

	subject := "the requested work"
	if gateFound && gate.Description != "" {
		subject = fmt.Sprintf("%q", gate.Description)
	}
	if cmd.Approved {
		return fmt.Sprintf("The user approved %s. Proceed.", subject)
	}
	return fmt.Sprintf("The user declined %s. Do not proceed with it.", subject)
}

// HandlePlanApprovalDecided resolves a plan gate and resumes the turn.
func (d *Dispatcher) HandlePlanApprovalDecided(ctx context.Context, userID string, cmd PlanApprovalDecided) error {
	requestID := uuid.NewString()
	d.bus.Emit(ctx, events.New(cmd.SessionID, requestID, d.activeTurnID(cmd.SessionID), "dispatcher",
		events.VisibilityUI, events.TypePlanApprovalResolved,
		events.PlanApprovalResolved{PlanID: cmd.PlanID, Approved: cmd.Approved, Reason: cmd.Reason}))

	var resume string
	if cmd.Approved {
		resume = "The user approved the plan. Execute it."
	} else {
		resume = "The user rejected the plan."
		if cmd.Reason != "" {
			resume += " Reason: " + cmd.Reason
		}
		resume += " Revise the plan before continuing."
	}

	outcome := d.engine.Resume(ctx, turn.Request{
		SessionID: cmd.SessionID,
		RequestID: requestID,
		Message:   resume,
		UserID:    userID,
		Source:    "gate",
	})
	d.finish(ctx, cmd.SessionID, requestID, outcome)
	return nil
}

// finish persists the assistant side of the exchange and emits the terminal
// response. Suspended turns stay silent here; the gate event already told the
// client what is pending.
func (d *Dispatcher) finish(ctx context.Context, sessionID, requestID string, outcome turn.Outcome) {
	switch outcome.Status {
	case turn.StatusCompleted:
		d.logMessage(ctx, sessionID, "assistant", outcome.Answer)
		d.send(sessionID, TerminalResponse{
			RequestID:      requestID,
			Status:         string(outcome.Status),
			Message:        outcome.Answer,
			PendingActions: d.actions.ListPending(),
		})
	case turn.StatusFailed:
		d.send(sessionID, TerminalResponse{
			RequestID: requestID,
			Status:    string(outcome.Status),
			Error:     outcome.Error,
		})
	case turn.StatusQueued:
		d.send(sessionID, TerminalResponse{
			RequestID: requestID,
			Status:    string(outcome.Status),
			Message:   "Message queued, the assistant is still working on the previous request.",
		})
	case turn.StatusWaitingUser:
		// Gate events carry the question or approval to the client.
	}
}

// activeTurnID reports the turn a gate resolution belongs to, empty when the
// session has no suspended turn.
func (d *Dispatcher) activeTurnID(sessionID string) string {
	if st, ok := d.states.Get(sessionID); ok {
		return st.ActiveTurnID
	}
	return ""
}

// checkProjectRoot enforces the configured allow-list.
func (d *Dispatcher) checkProjectRoot(root string) error {
	if root == "" || len(d.allowedRoots) == 0 {
		return nil
	}
	cleaned := filepath.Clean(root)
	for _, allowed := range d.allowedRoots {
		allowed = filepath.Clean(allowed)
		if cleaned == allowed || strings.HasPrefix(cleaned, allowed+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("project root %s is not allowed", root)
}

// augmentMessage folds request context the engine should see into the user
// message.
func augmentMessage(cmd UserRequest) string {
	msg := cmd.Message
	if cmd.ProjectRoot != "" {
		msg += "\n\n[Project root: " + filepath.Clean(cmd.ProjectRoot) + "]"
	}
	if len(cmd.PinnedUserfileIDs) > 0 {
		msg += "\n[Pinned files: " + strings.Join(cmd.PinnedUserfileIDs, ", ") + "]"
	}
	return msg
}

func (d *Dispatcher) logMessage(ctx context.Context, sessionID, role, content string) {
	if d.messages == nil || content == "" {
		return
	}
	err := d.messages.AppendMessage(ctx, storage.MessageRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if err != nil {
		d.logger.Warn("message log append failed",
			zap.String("session_id", sessionID), zap.String("role", role), zap.Error(err))
	}
}
