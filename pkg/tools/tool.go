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

// Package tools defines the tool interface, the registry with per-agent
// whitelists, and the executor the approval bridge forwards to.
package tools

import (
	"context"
	"encoding/json"
)

// Tool is one executable capability exposed to the agents.
type Tool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description returns a human-readable description for LLM context.
	Description() string

	// InputSchema returns the JSON Schema for tool parameters.
	InputSchema() *JSONSchema

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]interface{}) (*Result, error)
}

// Result is the outcome of a tool execution.
type Result struct {
	// Success indicates if the tool executed successfully.
	Success bool `json:"success"`

	// Data contains the result data (format varies by tool).
	Data interface{} `json:"data,omitempty"`

	// Error contains error information if execution failed.
	Error *Error `json:"error,omitempty"`

	// Metadata contains tool-specific metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// ExecutionTimeMs is the wall-clock execution time.
	ExecutionTimeMs int64 `json:"executionTimeMs,omitempty"`
}

// Error is a structured tool execution error.
type Error struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`

	// Suggestion provides a hint for fixing the error.
	Suggestion string `json:"suggestion,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// TextPreview renders the result data as a short string for event payloads
// and delegation summaries.
func (r *Result) TextPreview(limit int) string {
	if r == nil {
		return ""
	}
	var text string
	switch v := r.Data.(type) {
	case string:
		text = v
	case nil:
		if r.Error != nil {
			text = r.Error.Message
		}
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		text = string(raw)
	}
	if limit > 0 && len(text) > limit {
		return text[:limit] + "…"
	}
	return text
}

// JSONSchema is a minimal JSON Schema for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []interface{}          `json:"enum,omitempty"`
	Default     interface{}            `json:"default,omitempty"`
}

// ToJSON converts the schema to JSON bytes.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// NewObjectSchema creates an object schema with the given properties.
func NewObjectSchema(description string, properties map[string]*JSONSchema, required []string) *JSONSchema {
	return &JSONSchema{Type: "object", Description: description, Properties: properties, Required: required}
}

// NewStringSchema creates a string schema.
func NewStringSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: description}
}

// NewBooleanSchema creates a boolean schema.
func NewBooleanSchema(description string) *JSONSchema {
	return &JSONSchema{Type: "boolean", Description: description}
}

// ExecOptions tune a single executor invocation.
type ExecOptions struct {
	// BypassConfirmation suppresses the executor's own confirmation prompt
	// for confirmation-wrapped tools. Set after user approval.
	BypassConfirmation bool

	// Agent is the agent on whose behalf the tool runs (for logging).
	Agent string
}

// Executor runs tools by name. Implementations enforce per-tool timeouts.
type Executor interface {
	Execute(ctx context.Context, toolName string, args map[string]interface{}, opts ExecOptions) (*Result, error)
}
