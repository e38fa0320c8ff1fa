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

// Package dispatch maps transport messages to typed commands and drives the
// turn engine with them. It is the single emitter of terminal responses.
package dispatch

import (
	"encoding/json"
	"fmt"
)

// Inbound message types on the transport.
const (
	MsgRequest      = "request"
	MsgQuestion     = "question"
	MsgApproval     = "approval"
	MsgPlanApproval = "plan_approval"
)

// UserRequest starts (or queues) a turn.
type UserRequest struct {
	SessionID         string                 `json:"sessionId,omitempty"`
	RequestID         string                 `json:"requestId"`
	Message           string                 `json:"message"`
	ProjectRoot       string                 `json:"projectRoot,omitempty"`
	PinnedUserfileIDs []string               `json:"pinnedUserfileIds,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// QuestionAnswered resolves a question gate.
type QuestionAnswered struct {
	SessionID  string `json:"sessionId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// ApprovalDecided resolves an approval gate or a pending action.
type ApprovalDecided struct {
	SessionID  string `json:"sessionId"`
	ApprovalID string `json:"approvalId"`
	Approved   bool   `json:"approved"`
}

// PlanApprovalDecided resolves a plan gate.
type PlanApprovalDecided struct {
	SessionID string `json:"sessionId"`
	PlanID    string `json:"planId"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason,omitempty"`
}

type rawMessage struct {
	Type string `json:"type"`
}

// ParseCommand decodes a transport message into one of the typed commands.
// Unknown types yield (nil, nil): the dispatcher treats them as no-ops.
func ParseCommand(raw []byte) (interface{}, error) {
	var head rawMessage
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("malformed command: %w", err)
	}
	switch head.Type {
	case MsgRequest:
		var cmd UserRequest
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("malformed request command: %w", err)
		}
		return cmd, nil
	case MsgQuestion:
		var cmd QuestionAnswered
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("malformed question command: %w", err)
		}
		return cmd, nil
	case MsgApproval:
		var cmd ApprovalDecided
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("malformed approval command: %w", err)
		}
		return cmd, nil
	case MsgPlanApproval:
		var cmd PlanApprovalDecided
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("malformed plan approval command: %w", err)
		}
		return cmd, nil
	default:
		return nil, nil
	}
}
