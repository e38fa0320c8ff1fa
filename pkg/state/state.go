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

// Package state holds the authoritative per-session conversation state and
// the store that persists it.
package state

import (
	"encoding/json"
	"time"
)

// Phase describes where a session currently is in its turn cycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseWorking     Phase = "working"
	PhaseWaitingUser Phase = "waiting_user"
)

// maxAgentHistory bounds agentHistory in persisted form.
const maxAgentHistory = 200

// AgentHistoryEntry records one agent activation.
type AgentHistoryEntry struct {
	Agent     string    `json:"agent"`
	Action    string    `json:"action,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskContext carries the durable context of the current task.
type TaskContext struct {
	OriginalRequest string                 `json:"originalRequest,omitempty"`
	GatheredInfo    map[string]interface{} `json:"gatheredInfo,omitempty"`
	GatheredFiles   []string               `json:"gatheredFiles,omitempty"`
	ApprovalGranted bool                   `json:"approvalGranted,omitempty"`
}

// ObligationStatus tracks the resolution of an obligation. Status only moves
// from open to one of the terminal values, never backwards.
type ObligationStatus string

const (
	ObligationOpen      ObligationStatus = "open"
	ObligationSatisfied ObligationStatus = "satisfied"
	ObligationFailed    ObligationStatus = "failed"
	ObligationWaived    ObligationStatus = "waived"
)

// ObligationOrigin records where an obligation came from.
type ObligationOrigin string

const (
	ObligationOriginPrimary ObligationOrigin = "primary"
	ObligationOriginInbox   ObligationOrigin = "inbox"
)

// Obligation is a tracked requirement derived from a user request that must
// eventually be satisfied, waived, or failed.
type Obligation struct {
	ID              string           `json:"id"`
	TurnID          string           `json:"turnId"`
	Origin          ObligationOrigin `json:"origin"`
	Blocking        bool             `json:"blocking"`
	RequiredOutcome string           `json:"requiredOutcome,omitempty"`
	Description     string           `json:"description"`
	Status          ObligationStatus `json:"status"`
	StatusReason    string           `json:"statusReason,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	ResolvedAt      *time.Time       `json:"resolvedAt,omitempty"`
	SourceAgent     string           `json:"sourceAgent,omitempty"`
}

// Resolve moves an open obligation to a terminal status. Transitions out of a
// terminal status are ignored.
func (o *Obligation) Resolve(status ObligationStatus, reason string) bool {
	if o.Status != ObligationOpen {
		return false
	}
	now := time.Now()
	o.Status = status
	o.StatusReason = reason
	o.ResolvedAt = &now
	return true
}

// UserQuestion is a pending question gate.
type UserQuestion struct {
	QuestionID   string     `json:"questionId"`
	Question     string     `json:"question"`
	FromAgent    string     `json:"fromAgent"`
	Timestamp    time.Time  `json:"timestamp"`
	TurnID       string     `json:"turnId,omitempty"`
	QuestionKind string     `json:"questionKind,omitempty"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the question's dedup window has passed.
func (q UserQuestion) Expired(now time.Time) bool {
	return q.ExpiresAt != nil && now.After(*q.ExpiresAt)
}

// ApprovalRequest is a pending approval gate.
type ApprovalRequest struct {
	ApprovalID  string    `json:"approvalId"`
	Description string    `json:"description"`
	RiskLevel   string    `json:"riskLevel"`
	Actions     []string  `json:"actions,omitempty"`
	FromAgent   string    `json:"fromAgent"`
	Context     string    `json:"context,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// PlanStepStatus is the lifecycle of a plan step.
type PlanStepStatus string

const (
	PlanStepTodo    PlanStepStatus = "todo"
	PlanStepDoing   PlanStepStatus = "doing"
	PlanStepDone    PlanStepStatus = "done"
	PlanStepBlocked PlanStepStatus = "blocked"
)

// PlanStep is one step of the orchestrator plan.
type PlanStep struct {
	ID     string         `json:"id"`
	Text   string         `json:"text"`
	Owner  string         `json:"owner"`
	Status PlanStepStatus `json:"status"`
}

// Plan is a versioned orchestrator plan.
type Plan struct {
	PlanID    string     `json:"planId"`
	Version   int        `json:"version"`
	Title     string     `json:"title"`
	Steps     []PlanStep `json:"steps"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Task tracks one unit of delegated or scheduled work within a session.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Agent       string    `json:"agent,omitempty"`
	Status      string    `json:"status"`
	Result      string    `json:"result,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ParallelExecution tracks a fan-out delegation in flight.
type ParallelExecution struct {
	ID        string    `json:"id"`
	Agents    []string  `json:"agents"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
}

// ConversationState is the root per-session aggregate. It is owned by the
// Store and mutated only through Store operations.
type ConversationState struct {
	Phase              Phase                        `json:"phase"`
	ActiveAgent        string                       `json:"activeAgent"`
	AgentHistory       []AgentHistoryEntry          `json:"agentHistory,omitempty"`
	TaskContext        TaskContext                  `json:"taskContext"`
	PendingApprovals   []ApprovalRequest            `json:"pendingApprovals,omitempty"`
	PendingQuestions   []UserQuestion               `json:"pendingQuestions,omitempty"`
	ParallelExecutions map[string]ParallelExecution `json:"parallelExecutions,omitempty"`
	Tasks              map[string]Task              `json:"tasks,omitempty"`
	TaskOrder          []string                     `json:"taskOrder,omitempty"`
	IsLoopRunning      bool                         `json:"isLoopRunning"`
	CurrentPlan        *Plan                        `json:"currentPlan,omitempty"`
	PlanHistory        []Plan                       `json:"planHistory,omitempty"`
	Obligations        []Obligation                 `json:"obligations,omitempty"`
	ActiveTurnID       string                       `json:"activeTurnId,omitempty"`
}

// NewConversationState returns the default state for a fresh session.
func NewConversationState() *ConversationState {
	return &ConversationState{
		Phase:       PhaseIdle,
		ActiveAgent: "chapo",
		TaskContext: TaskContext{GatheredInfo: map[string]interface{}{}},
	}
}

// RecordAgent appends to the agent history. The history is trimmed to the
// persisted bound on write, so unbounded growth between writes is fine.
func (s *ConversationState) RecordAgent(agent, action string) {
	s.AgentHistory = append(s.AgentHistory, AgentHistoryEntry{
		Agent:     agent,
		Action:    action,
		Timestamp: time.Now(),
	})
}

// OpenObligations returns open obligations, blocking first, for the given
// turn. Pass an empty turnID to get all open obligations.
func (s *ConversationState) OpenObligations(turnID string) []Obligation {
	var blocking, rest []Obligation
	for _, o := range s.Obligations {
		if o.Status != ObligationOpen {
			continue
		}
		if turnID != "" && o.TurnID != turnID {
			continue
		}
		if o.Blocking {
			blocking = append(blocking, o)
		} else {
			rest = append(rest, o)
		}
	}
	return append(blocking, rest...)
}

// WaiveStaleObligations waives every open obligation whose turn differs from
// currentTurnID. Returns the number of obligations waived.
func (s *ConversationState) WaiveStaleObligations(currentTurnID, reason string) int {
	waived := 0
	for i := range s.Obligations {
		o := &s.Obligations[i]
		if o.Status == ObligationOpen && o.TurnID != currentTurnID {
			if o.Resolve(ObligationWaived, reason) {
				waived++
			}
		}
	}
	return waived
}

// RemoveQuestion deletes a pending question by id and returns it.
func (s *ConversationState) RemoveQuestion(questionID string) (UserQuestion, bool) {
	for i, q := range s.PendingQuestions {
		if q.QuestionID == questionID {
			s.PendingQuestions = append(s.PendingQuestions[:i], s.PendingQuestions[i+1:]...)
			return q, true
		}
	}
	return UserQuestion{}, false
}

// RemoveApproval deletes a pending approval by id and returns it.
func (s *ConversationState) RemoveApproval(approvalID string) (ApprovalRequest, bool) {
	for i, a := range s.PendingApprovals {
		if a.ApprovalID == approvalID {
			s.PendingApprovals = append(s.PendingApprovals[:i], s.PendingApprovals[i+1:]...)
			return a, true
		}
	}
	return ApprovalRequest{}, false
}

// Clone returns a deep copy via JSON round-trip. Snapshots handed outside the
// store must never alias the live document.
func (s *ConversationState) Clone() *ConversationState {
	raw, err := json.Marshal(s)
	if err != nil {
		// ConversationState is a closed set of JSON-safe types; marshal
		// cannot fail on well-formed state.
		return NewConversationState()
	}
	var out ConversationState
	if err := json.Unmarshal(raw, &out); err != nil {
		return NewConversationState()
	}
	return &out
}

// encodeForPersist serializes the state with agentHistory pruned to the last
// persisted bound.
func (s *ConversationState) encodeForPersist() ([]byte, error) {
	snapshot := *s
	if len(snapshot.AgentHistory) > maxAgentHistory {
		snapshot.AgentHistory = snapshot.AgentHistory[len(snapshot.AgentHistory)-maxAgentHistory:]
	}
	return json.Marshal(&snapshot)
}
