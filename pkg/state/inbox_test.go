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

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInbox_PushDrainFIFO(t *testing.T) {
	inbox := NewInbox()

	inbox.Push("s1", "first", "ws")
	inbox.Push("s1", "second", "ws")
	inbox.Push("s2", "other session", "external")

	msgs := inbox.Drain("s1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)

	// Drain clears the queue.
	assert.Empty(t, inbox.Drain("s1"))
	assert.Equal(t, 1, inbox.Len("s2"))
}

func TestInbox_SubscriberNotified(t *testing.T) {
	inbox := NewInbox()

	var seen []string
	inbox.OnMessage("s1", func(m InboxMessage) { seen = append(seen, m.Content) })

	inbox.Push("s1", "hello", "ws")
	inbox.Push("s2", "not for this subscriber", "ws")

	require.Equal(t, []string{"hello"}, seen)

	inbox.OffMessage("s1")
	inbox.Push("s1", "after off", "ws")
	assert.Equal(t, []string{"hello"}, seen)
}

func TestObligation_TerminalTransitionsOnly(t *testing.T) {
	o := Obligation{ID: "o1", Status: ObligationOpen}

	require.True(t, o.Resolve(ObligationSatisfied, "answered"))
	assert.Equal(t, ObligationSatisfied, o.Status)
	assert.NotNil(t, o.ResolvedAt)

	// A terminal obligation never moves again.
	assert.False(t, o.Resolve(ObligationFailed, "nope"))
	assert.Equal(t, ObligationSatisfied, o.Status)
}

func TestConversationState_WaiveStaleObligations(t *testing.T) {
	s := NewConversationState()
	s.Obligations = []Obligation{
		{ID: "o1", TurnID: "turn-1", Status: ObligationOpen},
		{ID: "o2", TurnID: "turn-2", Status: ObligationOpen},
		{ID: "o3", TurnID: "turn-1", Status: ObligationSatisfied},
	}

	waived := s.WaiveStaleObligations("turn-2", "superseded by explicit request")
	assert.Equal(t, 1, waived)
	assert.Equal(t, ObligationWaived, s.Obligations[0].Status)
	assert.Equal(t, "superseded by explicit request", s.Obligations[0].StatusReason)
	assert.Equal(t, ObligationOpen, s.Obligations[1].Status)
	assert.Equal(t, ObligationSatisfied, s.Obligations[2].Status)
}

func TestConversationState_OpenObligationsBlockingFirst(t *testing.T) {
	s := NewConversationState()
	s.Obligations = []Obligation{
		{ID: "o1", TurnID: "t1", Status: ObligationOpen, Blocking: false},
		{ID: "o2", TurnID: "t1", Status: ObligationOpen, Blocking: true},
		{ID: "o3", TurnID: "t2", Status: ObligationOpen, Blocking: true},
	}

	open := s.OpenObligations("t1")
	require.Len(t, open, 2)
	assert.Equal(t, "o2", open[0].ID)
	assert.Equal(t, "o1", open[1].ID)
}

func TestConversationState_RemoveQuestionAndApproval(t *testing.T) {
	s := NewConversationState()
	s.PendingQuestions = []UserQuestion{{QuestionID: "q1"}, {QuestionID: "q2"}}
	s.PendingApprovals = []ApprovalRequest{{ApprovalID: "a1"}}

	q, ok := s.RemoveQuestion("q1")
	require.True(t, ok)
	assert.Equal(t, "q1", q.QuestionID)
	assert.Len(t, s.PendingQuestions, 1)

	_, ok = s.RemoveQuestion("missing")
	assert.False(t, ok)

	a, ok := s.RemoveApproval("a1")
	require.True(t, ok)
	assert.Equal(t, "a1", a.ApprovalID)
	assert.Empty(t, s.PendingApprovals)
}
