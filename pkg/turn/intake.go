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

// Package turn drives the per-session agent loop: intake, the LLM
// conversation, gate tools, delegation, compaction and the answer preflight.
package turn

import (
	"strings"
)

// IntakeKind classifies an inbound user message before the loop starts.
type IntakeKind string

const (
	IntakeNewRequest IntakeKind = "new_request"
	IntakeAnswer     IntakeKind = "answer_to_question"
	IntakeApproveYes IntakeKind = "approval_yes"
	IntakeApproveNo  IntakeKind = "approval_no"
	IntakeClarify    IntakeKind = "clarification"
	IntakeCasual     IntakeKind = "casual_chat"
)

var approvalYesWords = map[string]bool{
	"yes": true, "y": true, "ok": true, "okay": true, "sure": true,
	"approve": true, "approved": true, "go": true, "do it": true,
	"ja": true, "mach": true, "passt": true, "genehmigt": true,
}

var approvalNoWords = map[string]bool{
	"no": true, "n": true, "stop": true, "cancel": true, "abort": true,
	"reject": true, "rejected": true, "don't": true,
	"nein": true, "abbrechen": true, "nicht": true,
}

var casualOpeners = []string{
	"hi", "hello", "hey", "thanks", "thank you", "good morning",
	"good night", "bye", "hallo", "moin", "danke", "servus",
}

// ClassifyIntake maps inbound text to an intake kind. It is a synchronous
// heuristic: cheap token checks, no LLM call.
//
// hasPendingQuestion and hasPendingApproval bias short confirmations toward
// gate resolutions instead of casual chat.
func ClassifyIntake(text string, hasPendingQuestion, hasPendingApproval bool) IntakeKind {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if trimmed == "" {
		return IntakeCasual
	}

	if hasPendingApproval {
		if approvalYesWords[trimmed] {
			return IntakeApproveYes
		}
		if approvalNoWords[trimmed] {
			return IntakeApproveNo
		}
	}

	wordCount := len(strings.Fields(trimmed))
	if hasPendingQuestion && wordCount <= 12 {
		return IntakeAnswer
	}

	for _, opener := range casualOpeners {
		if trimmed == opener || strings.HasPrefix(trimmed, opener+" ") || strings.HasPrefix(trimmed, opener+"!") {
			if wordCount <= 4 {
				return IntakeCasual
			}
		}
	}

	// Short follow-ups on an active conversation read as clarifications.
	if wordCount <= 3 && !strings.Contains(trimmed, "?") {
		if hasPendingQuestion || hasPendingApproval {
			return IntakeClarify
		}
	}

	return IntakeNewRequest
}

// ShouldCreateObligation reports whether this intake kind seeds a tracked
// obligation. Gate resolutions and small talk do not.
func ShouldCreateObligation(kind IntakeKind) bool {
	switch kind {
	case IntakeNewRequest, IntakeClarify:
		return true
	default:
		return false
	}
}

// BlockingObligation reports whether the obligation seeded for this intake
// kind blocks turn completion.
func BlockingObligation(kind IntakeKind) bool {
	return kind == IntakeNewRequest
}
