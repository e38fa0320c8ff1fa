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

package llm

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/storage"
)

// DayUsage aggregates token spend for one calendar day.
type DayUsage struct {
	Date         string         `json:"date"`
	Calls        int            `json:"calls"`
	InputTokens  int            `json:"inputTokens"`
	OutputTokens int            `json:"outputTokens"`
	ByAgent      map[string]int `json:"byAgent,omitempty"`
}

// UsageMeter accumulates per-day token usage and persists it after every
// call. Metering must never break a turn: every failure here is logged and
// swallowed.
type UsageMeter struct {
	backend storage.Backend
	logger  *zap.Logger
	now     func() time.Time

	mu   sync.Mutex
	days map[string]*DayUsage
}

// NewUsageMeter creates a meter. The backend may be nil (memory-only).
func NewUsageMeter(backend storage.Backend, logger *zap.Logger) *UsageMeter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageMeter{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		days:    make(map[string]*DayUsage),
	}
}

// Record adds one call's usage to today's aggregate.
func (m *UsageMeter) Record(ctx context.Context, agent string, usage Usage) {
	date := m.now().Format("2006-01-02")

	m.mu.Lock()
	day, ok := m.days[date]
	if !ok {
		day = &DayUsage{Date: date, ByAgent: make(map[string]int)}
		m.days[date] = day
	}
	day.Calls++
	day.InputTokens += usage.InputTokens
	day.OutputTokens += usage.OutputTokens
	if agent != "" {
		day.ByAgent[agent] += usage.InputTokens + usage.OutputTokens
	}
	snapshot := *day
	m.mu.Unlock()

	if m.backend == nil {
		return
	}
	raw, err := json.Marshal(&snapshot)
	if err != nil {
		m.logger.Warn("usage encode failed", zap.Error(err))
		return
	}
	if err := m.backend.PutRow(ctx, storage.TableSessions, "usage:"+date, raw); err != nil {
		m.logger.Warn("usage persist failed", zap.String("date", date), zap.Error(err))
	}
}

// Today returns a copy of today's aggregate.
func (m *UsageMeter) Today() DayUsage {
	date := m.now().Format("2006-01-02")
	m.mu.Lock()
	defer m.mu.Unlock()
	if day, ok := m.days[date]; ok {
		out := *day
		out.ByAgent = make(map[string]int, len(day.ByAgent))
		for k, v := range day.ByAgent {
			out.ByAgent[k] = v
		}
		return out
	}
	return DayUsage{Date: date, ByAgent: map[string]int{}}
}
