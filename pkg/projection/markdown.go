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

package projection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/events"
)

// markdownNoise lists UI events too chatty for the transcript.
var markdownNoise = map[events.Type]bool{
	events.TypeAgentThinking: true,
	events.TypeAgentHistory:  true,
	events.TypeHeartbeat:     true,
}

// MarkdownLogProjection appends a human-readable transcript per session,
// one markdown file under the configured directory.
type MarkdownLogProjection struct {
	dir    string
	logger *zap.Logger

	mu sync.Mutex
}

// NewMarkdownLogProjection creates the transcript projection. The directory
// is created on first write.
func NewMarkdownLogProjection(dir string, logger *zap.Logger) *MarkdownLogProjection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkdownLogProjection{dir: dir, logger: logger}
}

// Name implements events.Projection.
func (p *MarkdownLogProjection) Name() string { return "markdown-log" }

// Handle implements events.Projection.
func (p *MarkdownLogProjection) Handle(_ context.Context, env events.Envelope) error {
	if env.Visibility != events.VisibilityUI || markdownNoise[env.Type] {
		return nil
	}
	line := renderLine(env)
	if line == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}
	path := filepath.Join(p.dir, sanitizeSessionID(env.SessionID)+".md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append transcript line: %w", err)
	}
	return nil
}

func renderLine(env events.Envelope) string {
	ts := env.OccurredAt.Format("15:04:05")
	switch payload := env.Payload.(type) {
	case events.TurnStarted:
		return fmt.Sprintf("- %s **turn started** (%s): %s", ts, payload.Agent, oneLine(payload.Message))
	case events.Completed:
		return fmt.Sprintf("- %s **turn completed** (%s): %s", ts, payload.Agent, oneLine(payload.Answer))
	case events.Failed:
		return fmt.Sprintf("- %s **turn failed** (%s): %s", ts, payload.Agent, oneLine(payload.Error))
	case events.AgentDelegated:
		if payload.Parallel {
			return fmt.Sprintf("- %s **parallel delegation** %s → %s", ts, payload.From, payload.To)
		}
		return fmt.Sprintf("- %s **delegation** %s → %s: %s", ts, payload.From, payload.To, oneLine(payload.Objective))
	case events.AgentCompleted:
		return fmt.Sprintf("- %s **%s finished** (%s)", ts, payload.Agent, payload.ExitReason)
	case events.AgentFailed:
		return fmt.Sprintf("- %s **%s failed**: %s", ts, payload.Agent, oneLine(payload.Error))
	case events.ToolCallStarted:
		return fmt.Sprintf("- %s **tool** %s (%s)", ts, payload.Tool, payload.Agent)
	case events.ToolCallCompleted:
		return fmt.Sprintf("- %s **tool done** %s (%dms)", ts, payload.Tool, payload.DurationMs)
	case events.ToolCallFailed:
		return fmt.Sprintf("- %s **tool failed** %s: %s", ts, payload.Tool, oneLine(payload.Error))
	case events.ActionPending:
		return fmt.Sprintf("- %s **action pending** %s: %s", ts, payload.Tool, oneLine(payload.Description))
	case events.QuestionQueued:
		return fmt.Sprintf("- %s **question** (%s): %s", ts, payload.FromAgent, oneLine(payload.Question))
	case events.QuestionResolved:
		return fmt.Sprintf("- %s **question answered**: %s", ts, oneLine(payload.Answer))
	case events.ApprovalQueued:
		return fmt.Sprintf("- %s **approval requested** (%s risk): %s", ts, payload.RiskLevel, oneLine(payload.Description))
	case events.ApprovalResolved:
		decision := "approved"
		if !payload.Approved {
			decision = "rejected"
		}
		return fmt.Sprintf("- %s **approval %s** (%s)", ts, decision, payload.ApprovalID)
	case events.PlanReady:
		return fmt.Sprintf("- %s **plan v%d**: %s", ts, payload.Version, oneLine(payload.Title))
	case events.PlanApprovalResolved:
		decision := "approved"
		if !payload.Approved {
			decision = "rejected"
		}
		return fmt.Sprintf("- %s **plan %s**", ts, decision)
	default:
		return fmt.Sprintf("- %s %s", ts, env.Type)
	}
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 300 {
		s = s[:300] + "…"
	}
	return s
}

func sanitizeSessionID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
