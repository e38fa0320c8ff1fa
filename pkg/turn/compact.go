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
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/llm"
)

// CompactionThreshold is the token estimate at which the conversation is
// compacted.
const CompactionThreshold = 160000

// compactShare is the fraction of oldest messages folded into the summary.
const compactShare = 0.6

// CompactionResult reports what a compaction did.
type CompactionResult struct {
	Summary       string `json:"summary"`
	DroppedTokens int    `json:"droppedTokens"`
	SummaryTokens int    `json:"summaryTokens"`
	DroppedCount  int    `json:"droppedCount"`
}

// Compactor folds the oldest part of a conversation into an LLM-written
// summary once the token estimate crosses the threshold. The original user
// request is pinned verbatim so it survives any number of compactions.
type Compactor struct {
	provider  llm.Provider
	encoder   *tiktoken.Tiktoken
	threshold int
	logger    *zap.Logger
}

// NewCompactor creates a compactor. The provider is used for summarization
// calls.
func NewCompactor(provider llm.Provider, threshold int, logger *zap.Logger) (*Compactor, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if threshold <= 0 {
		threshold = CompactionThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoder: %w", err)
	}
	return &Compactor{
		provider:  provider,
		encoder:   encoder,
		threshold: threshold,
		logger:    logger,
	}, nil
}

// TokenCount estimates tokens across all messages, tool calls included.
func (c *Compactor) TokenCount(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += len(c.encoder.Encode(m.Content, nil, nil))
		for _, b := range m.ContentBlocks {
			total += len(c.encoder.Encode(b.Text, nil, nil))
		}
		for _, tc := range m.ToolCalls {
			total += len(c.encoder.Encode(tc.Name, nil, nil))
			total += len(c.encoder.Encode(fmt.Sprint(tc.Input), nil, nil))
		}
	}
	return total
}

// NeedsCompaction reports whether the conversation crossed the threshold.
func (c *Compactor) NeedsCompaction(messages []llm.Message) bool {
	return c.TokenCount(messages) >= c.threshold
}

// Compact replaces the oldest part of the conversation with a summary block
// and a pinned original-request block, keeping the tail verbatim. The system
// prompt (first message when role system) is always preserved.
func (c *Compactor) Compact(ctx context.Context, messages []llm.Message, originalRequest string) ([]llm.Message, CompactionResult, error) {
	var system *llm.Message
	body := messages
	if len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		system = &messages[0]
		body = messages[1:]
	}

	cut := int(float64(len(body)) * compactShare)
	if cut < 1 {
		return messages, CompactionResult{}, nil
	}
	oldest := body[:cut]
	tail := body[cut:]

	summary, err := c.summarize(ctx, oldest)
	if err != nil {
		return nil, CompactionResult{}, fmt.Errorf("compaction summarization failed: %w", err)
	}

	result := CompactionResult{
		Summary:       summary,
		DroppedTokens: c.TokenCount(oldest),
		SummaryTokens: len(c.encoder.Encode(summary, nil, nil)),
		DroppedCount:  len(oldest),
	}

	out := make([]llm.Message, 0, len(tail)+3)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, llm.Message{
		Role:    llm.RoleSystem,
		Content: "Conversation summary (older messages compacted):\n" + summary,
	})
	if originalRequest != "" {
		out = append(out, llm.Message{
			Role:    llm.RoleSystem,
			Content: "[ORIGINAL REQUEST — pinned]\n" + originalRequest,
		})
	}
	out = append(out, tail...)

	c.logger.Info("conversation compacted",
		zap.Int("dropped_messages", result.DroppedCount),
		zap.Int("dropped_tokens", result.DroppedTokens),
		zap.Int("summary_tokens", result.SummaryTokens))
	return out, result, nil
}

func (c *Compactor) summarize(ctx context.Context, messages []llm.Message) (string, error) {
	var transcript strings.Builder
	for _, m := range messages {
		if m.Content == "" && len(m.ToolCalls) == 0 {
			continue
		}
		fmt.Fprintf(&transcript, "[%s] %s\n", m.Role, m.Content)
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(&transcript, "[%s calls %s]\n", m.Role, tc.Name)
		}
	}

	resp, err := c.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Summarize the following conversation transcript. " +
			"Keep every decision, open question, file path, command, id and result. " +
			"Write a dense factual summary, no commentary."},
		{Role: llm.RoleUser, Content: transcript.String()},
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
