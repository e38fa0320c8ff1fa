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

// Package subagent runs bounded delegated LLM loops for the worker agents.
package subagent

import (
	"fmt"
	"strings"
	"time"
)

// Contract is what the orchestrator hands a sub-agent: the objective plus
// the facts it needs to work without re-asking.
type Contract struct {
	Domain          string   `json:"domain"`
	Objective       string   `json:"objective"`
	Constraints     string   `json:"constraints,omitempty"`
	ExpectedOutcome string   `json:"expectedOutcome,omitempty"`
	ContextFacts    []string `json:"contextFacts,omitempty"`
}

// Prompt renders the contract as the sub-agent's opening user message.
func (c Contract) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", c.Objective)
	if c.Constraints != "" {
		fmt.Fprintf(&b, "Constraints: %s\n", c.Constraints)
	}
	if c.ExpectedOutcome != "" {
		fmt.Fprintf(&b, "Expected outcome: %s\n", c.ExpectedOutcome)
	}
	if len(c.ContextFacts) > 0 {
		b.WriteString("Context:\n")
		for _, fact := range c.ContextFacts {
			fmt.Fprintf(&b, "- %s\n", fact)
		}
	}
	return b.String()
}

// ExitReason says how a sub-agent loop ended.
type ExitReason string

const (
	ExitCompleted ExitReason = "completed"
	ExitEscalated ExitReason = "escalated"
	ExitLLMError  ExitReason = "llm_error"
	ExitMaxTurns  ExitReason = "max_turns"
)

// Evidence records one tool call's outcome so the sub-agent's answer can be
// checked against what actually happened.
type Evidence struct {
	Tool       string    `json:"tool"`
	CallID     string    `json:"callId"`
	Success    bool      `json:"success"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Escalation is a sub-agent handing the problem back to the orchestrator.
type Escalation struct {
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

// RunResult is the outcome of one delegated loop, hoisted to the delegator.
type RunResult struct {
	Agent      string      `json:"agent"`
	ExitReason ExitReason  `json:"exitReason"`
	Answer     string      `json:"answer,omitempty"`
	Evidence   []Evidence  `json:"evidence,omitempty"`
	Escalation *Escalation `json:"escalation,omitempty"`
	Turns      int         `json:"turns"`
	Err        string      `json:"error,omitempty"`
}

// Success reports whether the delegation produced a usable answer.
func (r *RunResult) Success() bool {
	return r != nil && r.ExitReason == ExitCompleted
}
