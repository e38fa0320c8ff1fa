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

// Payload shapes for the domain event catalog. Each carries the essential
// identifiers so projections can render or persist the event without
// re-reading conversation state.

// TurnStarted is emitted when the turn engine begins a user turn.
type TurnStarted struct {
	Agent   string `json:"agent"`
	Message string `json:"message,omitempty"`
}

// Completed is the terminal success payload for a turn.
type Completed struct {
	Answer string `json:"answer"`
	Agent  string `json:"agent,omitempty"`
}

// Failed is the terminal failure payload for a turn.
type Failed struct {
	Error string `json:"error"`
	Agent string `json:"agent,omitempty"`
}

// AgentStarted marks an agent beginning work within a turn.
type AgentStarted struct {
	Agent string `json:"agent"`
	Task  string `json:"task,omitempty"`
}

// AgentSwitched marks the active agent changing.
type AgentSwitched struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// AgentDelegated marks a delegation to a sub-agent.
type AgentDelegated struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Objective string `json:"objective"`
	Parallel  bool   `json:"parallel,omitempty"`
}

// AgentCompleted marks a sub-agent finishing.
type AgentCompleted struct {
	Agent      string `json:"agent"`
	ExitReason string `json:"exitReason"`
	Summary    string `json:"summary,omitempty"`
}

// AgentFailed marks a sub-agent failing.
type AgentFailed struct {
	Agent string `json:"agent"`
	Error string `json:"error"`
}

// AgentThinking carries intermediate reasoning notes (internal noise for most
// projections).
type AgentThinking struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

// ToolCallStarted marks a tool invocation beginning.
type ToolCallStarted struct {
	CallID string                 `json:"callId"`
	Tool   string                 `json:"tool"`
	Agent  string                 `json:"agent"`
	Args   map[string]interface{} `json:"args,omitempty"`
}

// ToolCallCompleted marks a tool invocation finishing successfully.
type ToolCallCompleted struct {
	CallID     string `json:"callId"`
	Tool       string `json:"tool"`
	Agent      string `json:"agent"`
	DurationMs int64  `json:"durationMs"`
	Preview    string `json:"preview,omitempty"`
}

// ToolCallFailed marks a tool invocation failing.
type ToolCallFailed struct {
	CallID     string `json:"callId"`
	Tool       string `json:"tool"`
	Agent      string `json:"agent"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error"`
}

// ActionPending marks a tool call parked behind user approval.
type ActionPending struct {
	ActionID    string `json:"actionId"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	Preview     string `json:"preview,omitempty"`
}

// QuestionQueued marks a user question gate opening.
type QuestionQueued struct {
	QuestionID  string `json:"questionId"`
	Question    string `json:"question"`
	FromAgent   string `json:"fromAgent"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// QuestionResolved marks a user question being answered.
type QuestionResolved struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// ApprovalQueued marks an approval gate opening.
type ApprovalQueued struct {
	ApprovalID  string   `json:"approvalId"`
	Description string   `json:"description"`
	RiskLevel   string   `json:"riskLevel"`
	Actions     []string `json:"actions,omitempty"`
	FromAgent   string   `json:"fromAgent"`
}

// ApprovalResolved marks an approval gate closing.
type ApprovalResolved struct {
	ApprovalID string `json:"approvalId"`
	Approved   bool   `json:"approved"`
}

// PlanApprovalResolved marks a plan decision.
type PlanApprovalResolved struct {
	PlanID   string `json:"planId"`
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// TaskUpdated carries task progress.
type TaskUpdated struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// TaskCompleted marks a task done.
type TaskCompleted struct {
	TaskID string `json:"taskId"`
	Result string `json:"result,omitempty"`
}

// TaskFailed marks a task failed.
type TaskFailed struct {
	TaskID string `json:"taskId"`
	Error  string `json:"error"`
}

// PlanReady announces a new plan version.
type PlanReady struct {
	PlanID  string `json:"planId"`
	Version int    `json:"version"`
	Title   string `json:"title"`
}
