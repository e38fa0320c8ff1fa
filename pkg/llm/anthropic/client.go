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

// Package anthropic adapts the Claude Messages API to the llm.Provider
// interface using github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chapo-dev/chapo/pkg/llm"
)

const (
	// DefaultModel is the default Claude model.
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultMaxTokens is the default completion cap.
	DefaultMaxTokens = 8192
)

// MessagesClient is the subset of the SDK client the adapter needs. It is
// satisfied by *sdk.MessageService so tests can substitute a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Config configures a Client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client implements llm.Provider on top of the Anthropic Messages API.
type Client struct {
	msg         MessagesClient
	model       string
	maxTokens   int
	temperature float64
}

// NewClient creates a client from an API key.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	return NewWithMessages(&ac.Messages, cfg)
}

// NewWithMessages creates a client on an existing Messages client.
func NewWithMessages(msg MessagesClient, cfg Config) (*Client, error) {
	if msg == nil {
		return nil, fmt.Errorf("messages client is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Client{
		msg:         msg,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "anthropic" }

// Model implements llm.Provider.
func (c *Client) Model() string { return c.model }

// Chat implements llm.Provider.
func (c *Client) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (*llm.Response, error) {
	apiMessages, system, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages:  apiMessages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if c.temperature > 0 {
		params.Temperature = sdk.Float(c.temperature)
	}
	apiTools, err := encodeTools(tools)
	if err != nil {
		return nil, err
	}
	if len(apiTools) > 0 {
		params.Tools = apiTools
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateResponse(msg), nil
}

func encodeMessages(messages []llm.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(messages))
	var system []sdk.TextBlockParam

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}

		case llm.RoleUser:
			var blocks []sdk.ContentBlockParamUnion
			if len(m.ContentBlocks) > 0 {
				for _, b := range m.ContentBlocks {
					switch b.Type {
					case "text":
						if b.Text != "" {
							blocks = append(blocks, sdk.NewTextBlock(b.Text))
						}
					case "image":
						if b.Image == nil {
							continue
						}
						if b.Image.Type == "url" {
							blocks = append(blocks, sdk.NewImageBlock(sdk.URLImageSourceParam{URL: b.Image.URL}))
						} else {
							blocks = append(blocks, sdk.NewImageBlockBase64(b.Image.MediaType, b.Image.Data))
						}
					}
				}
			} else {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			conversation = append(conversation, sdk.NewUserMessage(blocks...))

		case llm.RoleAssistant:
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := tc.Input
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))

		case llm.RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(
				sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))

		default:
			return nil, nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, fmt.Errorf("at least one user or assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(tools []llm.ToolDef) ([]sdk.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, def := range tools {
		schema := sdk.ToolInputSchemaParam{}
		if len(def.InputSchema) > 0 {
			var m map[string]interface{}
			if err := json.Unmarshal(def.InputSchema, &m); err != nil {
				return nil, fmt.Errorf("tool %q schema: %w", def.Name, err)
			}
			schema.ExtraFields = m
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil && def.Description != "" {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func translateResponse(msg *sdk.Message) *llm.Response {
	resp := &llm.Response{
		StopReason: string(msg.StopReason),
		Model:      string(msg.Model),
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			var input map[string]interface{}
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &input)
			}
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			})
		}
	}
	return resp
}
