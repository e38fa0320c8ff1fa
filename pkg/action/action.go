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

// Package action tracks tool calls parked behind user approval and executes
// them once the user decides.
package action

import (
	"time"
)

// Status is the lifecycle of an action. Valid transitions:
// pending → approved → executing → {done | failed}, or pending → rejected.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusExecuting Status = "executing"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether no further transitions are valid.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusRejected
}

// Action is one tool call awaiting (or past) user approval.
type Action struct {
	ID          string                 `json:"id"`
	ToolName    string                 `json:"toolName"`
	ToolArgs    map[string]interface{} `json:"toolArgs"`
	Description string                 `json:"description"`
	Status      Status                 `json:"status"`
	CreatedAt   time.Time              `json:"createdAt"`
	Preview     string                 `json:"preview,omitempty"`
	Agent       string                 `json:"agent,omitempty"`
	SessionID   string                 `json:"sessionId,omitempty"`
	ApprovedAt  *time.Time             `json:"approvedAt,omitempty"`
	RejectedAt  *time.Time             `json:"rejectedAt,omitempty"`
	ExecutedAt  *time.Time             `json:"executedAt,omitempty"`
	Result      interface{}            `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
}
