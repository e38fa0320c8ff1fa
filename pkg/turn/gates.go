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
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chapo-dev/chapo/pkg/state"
)

// DefaultQuestionTTL is the dedup window for repeated questions.
const DefaultQuestionTTL = 10 * time.Minute

// Fingerprint normalizes a question for dedup: lowercase, collapsed
// whitespace, hashed.
func Fingerprint(question string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:8])
}

// queueQuestion adds a question gate to the state, deduplicating on
// (turnID, fingerprint). Returns the effective question and whether it was
// newly queued (false means an equivalent pending question absorbed it).
func queueQuestion(st *state.ConversationState, question, fromAgent, turnID, kind string, ttl time.Duration) (state.UserQuestion, bool) {
	fp := Fingerprint(question)
	now := time.Now()

	for i, q := range st.PendingQuestions {
		if q.TurnID == turnID && q.Fingerprint == fp {
			if !q.Expired(now) {
				return q, false
			}
			st.PendingQuestions = append(st.PendingQuestions[:i], st.PendingQuestions[i+1:]...)
			break
		}
	}

	expires := now.Add(ttl)
	q := state.UserQuestion{
		QuestionID:   uuid.NewString(),
		Question:     question,
		FromAgent:    fromAgent,
		Timestamp:    now,
		TurnID:       turnID,
		QuestionKind: kind,
		Fingerprint:  fp,
		ExpiresAt:    &expires,
	}
	st.PendingQuestions = append(st.PendingQuestions, q)
	st.Phase = state.PhaseWaitingUser
	return q, true
}

// queueApproval adds an approval gate to the state.
func queueApproval(st *state.ConversationState, description, riskLevel, fromAgent, context string, actions []string) state.ApprovalRequest {
	if riskLevel == "" {
		riskLevel = "medium"
	}
	a := state.ApprovalRequest{
		ApprovalID:  uuid.NewString(),
		Description: description,
		RiskLevel:   riskLevel,
		Actions:     actions,
		FromAgent:   fromAgent,
		Context:     context,
		Timestamp:   time.Now(),
	}
	st.PendingApprovals = append(st.PendingApprovals, a)
	st.Phase = state.PhaseWaitingUser
	return a
}
