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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedProvider struct {
	calls     int
	failUntil int
	err       error
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "test-model" }
func (p *scriptedProvider) Chat(_ context.Context, _ []Message, _ []ToolDef) (*Response, error) {
	p.calls++
	if p.calls <= p.failUntil {
		if p.err != nil {
			return nil, p.err
		}
		return nil, fmt.Errorf("503 overloaded")
	}
	return &Response{Content: "hi", Usage: Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 2}
}

func TestRetryingProvider_RecoversFromTransientFailure(t *testing.T) {
	inner := &scriptedProvider{failUntil: 2}
	p := NewRetryingProvider(inner, fastRetry(), zap.NewNop())

	resp, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingProvider_ExhaustsRetries(t *testing.T) {
	inner := &scriptedProvider{failUntil: 10}
	p := NewRetryingProvider(inner, fastRetry(), zap.NewNop())

	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingProvider_ClientErrorNotRetried(t *testing.T) {
	inner := &scriptedProvider{failUntil: 10, err: fmt.Errorf("401 unauthorized: bad key")}
	p := NewRetryingProvider(inner, fastRetry(), zap.NewNop())

	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls, "auth failures must not burn retries")
}

func TestRetryingProvider_ContextCancelStopsRetries(t *testing.T) {
	inner := &scriptedProvider{failUntil: 10}
	p := NewRetryingProvider(inner, RetryConfig{MaxRetries: 2, InitialDelay: time.Hour, Multiplier: 2}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Chat(ctx, []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.LessOrEqual(t, inner.calls, 2)
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(fmt.Errorf("status 400: invalid request")))
	assert.True(t, IsClientError(fmt.Errorf("Unauthorized")))
	assert.False(t, IsClientError(fmt.Errorf("503 service unavailable")))
	assert.False(t, IsClientError(fmt.Errorf("connection reset")))
	assert.False(t, IsClientError(nil))
}

func TestUsageMeter_AggregatesPerDay(t *testing.T) {
	m := NewUsageMeter(nil, zap.NewNop())
	m.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }

	m.Record(context.Background(), "chapo", Usage{InputTokens: 100, OutputTokens: 20})
	m.Record(context.Background(), "devo", Usage{InputTokens: 50, OutputTokens: 10})

	day := m.Today()
	assert.Equal(t, "2026-08-24", day.Date)
	assert.Equal(t, 2, day.Calls)
	assert.Equal(t, 150, day.InputTokens)
	assert.Equal(t, 30, day.OutputTokens)
	assert.Equal(t, 120, day.ByAgent["chapo"])
	assert.Equal(t, 60, day.ByAgent["devo"])
}
