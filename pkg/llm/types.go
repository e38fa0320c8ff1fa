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

// Package llm defines the provider abstraction the turn engine talks to,
// plus retry and usage metering around it.
package llm

import (
	"context"
	"encoding/json"
)

// Roles in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ImageSource references an image by URL or inline base64 data.
type ImageSource struct {
	Type      string `json:"type"` // "url" or "base64"
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Data      string `json:"data,omitempty"`
}

// ContentBlock is one part of a multi-modal message.
type ContentBlock struct {
	Type  string       `json:"type"` // "text" or "image"
	Text  string       `json:"text,omitempty"`
	Image *ImageSource `json:"image,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// Message is one turn in the conversation sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`

	// ContentBlocks carries multi-modal content. When set it takes
	// precedence over Content for user messages.
	ContentBlocks []ContentBlock `json:"contentBlocks,omitempty"`

	// ToolCalls are tool invocations on assistant messages.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"toolCallId,omitempty"`
}

// ToolDef describes a tool offered to the model.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Usage is the token accounting for one call.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Response is the provider's answer.
type Response struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	StopReason string     `json:"stopReason,omitempty"`
	Usage      Usage      `json:"usage"`
	Model      string     `json:"model,omitempty"`
}

// Provider is a chat-completion backend.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Model returns the model identifier.
	Model() string

	// Chat sends the conversation and tool definitions, returning the
	// model's next message.
	Chat(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error)
}
