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

// Package events defines the domain event envelope and the in-process bus
// that fans events out to registered projections.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls whether an event is surfaced to the UI stream or kept
// internal to the workflow.
type Visibility string

const (
	VisibilityUI       Visibility = "ui"
	VisibilityInternal Visibility = "internal"
)

// Type identifies a domain event kind.
type Type string

// Domain event catalog.
const (
	TypeTurnStarted Type = "wf.turn_started"
	TypeCompleted   Type = "wf.completed"
	TypeFailed      Type = "wf.failed"

	TypeAgentStarted   Type = "agent.started"
	TypeAgentSwitched  Type = "agent.switched"
	TypeAgentDelegated Type = "agent.delegated"
	TypeAgentCompleted Type = "agent.completed"
	TypeAgentFailed    Type = "agent.failed"
	TypeAgentThinking  Type = "agent.thinking"
	TypeAgentHistory   Type = "agent.history"

	TypeToolCallStarted   Type = "tool.call.started"
	TypeToolCallCompleted Type = "tool.call.completed"
	TypeToolCallFailed    Type = "tool.call.failed"
	TypeActionPending     Type = "tool.action_pending"

	TypeQuestionQueued       Type = "gate.question.queued"
	TypeQuestionResolved     Type = "gate.question.resolved"
	TypeApprovalQueued       Type = "gate.approval.queued"
	TypeApprovalResolved     Type = "gate.approval.resolved"
	TypePlanApprovalResolved Type = "gate.plan_approval.resolved"

	TypeTaskUpdated   Type = "task.updated"
	TypeTaskCompleted Type = "task.completed"
	TypeTaskFailed    Type = "task.failed"
	TypePlanReady     Type = "plan.ready"

	TypeHeartbeat Type = "system.heartbeat"
)

// Envelope is the immutable record carried on the bus. It is created once at
// the emit site and handed to every projection unchanged.
type Envelope struct {
	ID         string      `json:"id"`
	OccurredAt time.Time   `json:"occurredAt"`
	SessionID  string      `json:"sessionId"`
	RequestID  string      `json:"requestId,omitempty"`
	TurnID     string      `json:"turnId,omitempty"`
	Source     string      `json:"source"`
	Visibility Visibility  `json:"visibility"`
	Type       Type        `json:"eventType"`
	Payload    interface{} `json:"payload,omitempty"`
}

// New builds an envelope with a fresh id and timestamp.
func New(sessionID, requestID, turnID, source string, vis Visibility, typ Type, payload interface{}) Envelope {
	return Envelope{
		ID:         uuid.New().String(),
		OccurredAt: time.Now(),
		SessionID:  sessionID,
		RequestID:  requestID,
		TurnID:     turnID,
		Source:     source,
		Visibility: vis,
		Type:       typ,
		Payload:    payload,
	}
}
