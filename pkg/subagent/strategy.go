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

package subagent

import (
	"encoding/json"
	"fmt"

	"github.com/chapo-dev/chapo/pkg/approval"
	"github.com/chapo-dev/chapo/pkg/llm"
	"github.com/chapo-dev/chapo/pkg/tools"
)

// EvidenceStrategy shapes how a sub-agent sees its tool results: preflight
// before the call, encoding of the outcome, and the closing summary envelope.
type EvidenceStrategy interface {
	// Preflight vets a tool call before it reaches the bridge. A non-nil
	// error rejects the call; the rejection is fed back as the tool result.
	Preflight(call llm.ToolCall) error

	// EncodeResult renders a tool outcome as the tool message content.
	EncodeResult(call llm.ToolCall, ev Evidence) string

	// Summarize wraps the loop's final answer for the delegator.
	Summarize(result *RunResult) string
}

// TextStrategy is the DEVO strategy: plain text results, no preflight.
type TextStrategy struct{}

// Preflight implements EvidenceStrategy.
func (TextStrategy) Preflight(llm.ToolCall) error { return nil }

// EncodeResult implements EvidenceStrategy.
func (TextStrategy) EncodeResult(_ llm.ToolCall, ev Evidence) string {
	if !ev.Success {
		return fmt.Sprintf("Error: %s", ev.Error)
	}
	return ev.Result
}

// Summarize implements EvidenceStrategy.
func (TextStrategy) Summarize(result *RunResult) string {
	return result.Answer
}

// StructuredStrategy is the CAIO strategy: schema preflight on every call
// and JSON-encoded evidence so administrative actions stay auditable.
type StructuredStrategy struct{}

// Preflight implements EvidenceStrategy. Calls violating the tool's argument
// schema never reach the executor.
func (StructuredStrategy) Preflight(call llm.ToolCall) error {
	return approval.ValidateArgs(call.Name, call.Input)
}

// EncodeResult implements EvidenceStrategy.
func (StructuredStrategy) EncodeResult(call llm.ToolCall, ev Evidence) string {
	record := map[string]interface{}{
		"tool":    call.Name,
		"callId":  ev.CallID,
		"success": ev.Success,
	}
	if ev.Result != "" {
		record["result"] = ev.Result
	}
	if ev.Error != "" {
		record["error"] = ev.Error
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"success":false,"error":"encode failure"}`, call.Name)
	}
	return string(raw)
}

// Summarize implements EvidenceStrategy.
func (StructuredStrategy) Summarize(result *RunResult) string {
	succeeded := 0
	for _, ev := range result.Evidence {
		if ev.Success {
			succeeded++
		}
	}
	if len(result.Evidence) == 0 {
		return result.Answer
	}
	return fmt.Sprintf("%s\n(%d/%d tool calls succeeded)", result.Answer, succeeded, len(result.Evidence))
}

// StrategyFor returns the evidence strategy for an agent kind.
func StrategyFor(agent string) EvidenceStrategy {
	if agent == "caio" {
		return StructuredStrategy{}
	}
	return TextStrategy{}
}

// evidenceFrom builds an Evidence record from a bridge outcome.
func evidenceFrom(call llm.ToolCall, out approval.Outcome) Evidence {
	ev := Evidence{Tool: call.Name, CallID: call.ID, Success: out.Success}
	if out.Result != nil {
		if out.Result.Error != nil {
			ev.Error = out.Result.Error.Message
		}
		ev.Result = out.Result.TextPreview(4000)
	}
	if out.Err != nil && ev.Error == "" {
		ev.Error = out.Err.Error()
	}
	return ev
}

// toolDefsFor builds the LLM tool definitions for an agent from the
// registry: registered tools contribute their real schemas, whitelist-only
// names get a permissive object schema.
func toolDefsFor(registry *tools.Registry, agent string) []llm.ToolDef {
	names := registry.ToolsForAgent(agent)
	defs := make([]llm.ToolDef, 0, len(names)+1)
	for _, name := range names {
		def := llm.ToolDef{Name: name, Description: "Execute " + name}
		if tool, ok := registry.Get(name); ok {
			def.Description = tool.Description()
			if raw, err := tool.InputSchema().ToJSON(); err == nil {
				def.InputSchema = raw
			}
		}
		defs = append(defs, def)
	}
	defs = append(defs, llm.ToolDef{
		Name:        ToolEscalate,
		Description: "Hand the task back to the orchestrator when it cannot be completed within this delegation.",
		InputSchema: json.RawMessage(`{"type":"object","required":["reason"],"properties":{"reason":{"type":"string"},"details":{"type":"string"}}}`),
	})
	return defs
}
