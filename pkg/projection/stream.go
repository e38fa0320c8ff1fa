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
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/events"
)

// Stream event categories pushed over the WebSocket.
const (
	StreamAgentStart       = "agent_start"
	StreamAgentThinking    = "agent_thinking"
	StreamAgentSwitch      = "agent_switch"
	StreamDelegation       = "delegation"
	StreamToolCall         = "tool_call"
	StreamToolResult       = "tool_result"
	StreamUserQuestion     = "user_question"
	StreamApprovalRequest  = "approval_request"
	StreamActionPending    = "action_pending"
	StreamAgentComplete    = "agent_complete"
	StreamError            = "error"
	StreamResponse         = "response"
	StreamParallelStart    = "parallel_start"
	StreamParallelProgress = "parallel_progress"
	StreamParallelComplete = "parallel_complete"
	StreamInboxProcessing  = "inbox_processing"
	StreamMessageQueued    = "message_queued"
	StreamQuestionResolved = "question_resolved"
	StreamApprovalResolved = "approval_resolved"
	StreamPlanReady        = "plan_ready"
	StreamPlanResolved     = "plan_resolved"
)

// StreamEvent is the wire shape pushed to WebSocket clients.
type StreamEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Category  string      `json:"category"`
	SessionID string      `json:"sessionId"`
	RequestID string      `json:"requestId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// StreamSender pushes one stream event to the session's connected clients.
type StreamSender interface {
	SendEvent(sessionID string, event StreamEvent)
}

// StreamProjection maps domain events onto the WebSocket stream. Terminal
// wf.completed/wf.failed envelopes are skipped: the dispatcher sends the
// terminal response frame itself, with pending actions attached.
type StreamProjection struct {
	sender StreamSender
	logger *zap.Logger
}

// NewStreamProjection creates the stream projection.
func NewStreamProjection(sender StreamSender, logger *zap.Logger) *StreamProjection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamProjection{sender: sender, logger: logger}
}

// Name implements events.Projection.
func (p *StreamProjection) Name() string { return "stream" }

// Handle implements events.Projection.
func (p *StreamProjection) Handle(_ context.Context, env events.Envelope) error {
	if env.Visibility != events.VisibilityUI {
		return nil
	}
	category, ok := categoryFor(env)
	if !ok {
		return nil
	}
	p.sender.SendEvent(env.SessionID, StreamEvent{
		ID:        uuid.NewString(),
		Timestamp: env.OccurredAt,
		Category:  category,
		SessionID: env.SessionID,
		RequestID: env.RequestID,
		Payload:   env.Payload,
	})
	return nil
}

func categoryFor(env events.Envelope) (string, bool) {
	switch env.Type {
	case events.TypeTurnStarted, events.TypeAgentStarted:
		return StreamAgentStart, true
	case events.TypeAgentThinking:
		return StreamAgentThinking, true
	case events.TypeAgentSwitched:
		return StreamAgentSwitch, true
	case events.TypeAgentDelegated:
		if payload, ok := env.Payload.(events.AgentDelegated); ok && payload.Parallel {
			return StreamParallelStart, true
		}
		return StreamDelegation, true
	case events.TypeAgentCompleted:
		return StreamAgentComplete, true
	case events.TypeAgentFailed:
		return StreamError, true
	case events.TypeToolCallStarted:
		return StreamToolCall, true
	case events.TypeToolCallCompleted, events.TypeToolCallFailed:
		return StreamToolResult, true
	case events.TypeActionPending:
		return StreamActionPending, true
	case events.TypeQuestionQueued:
		return StreamUserQuestion, true
	case events.TypeQuestionResolved:
		return StreamQuestionResolved, true
	case events.TypeApprovalQueued:
		return StreamApprovalRequest, true
	case events.TypeApprovalResolved:
		return StreamApprovalResolved, true
	case events.TypePlanApprovalResolved:
		return StreamPlanResolved, true
	case events.TypePlanReady:
		return StreamPlanReady, true
	case events.TypeTaskUpdated:
		return StreamParallelProgress, true
	case events.TypeTaskCompleted, events.TypeTaskFailed:
		return StreamParallelComplete, true
	case events.TypeCompleted, events.TypeFailed:
		// Terminal frames come from the dispatcher only.
		return "", false
	default:
		return "", false
	}
}
