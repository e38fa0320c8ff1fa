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
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls the backoff wrapper.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultRetryConfig retries twice with 1s, then 2s delays (a third failure
// would have waited 4s).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Second,
		Multiplier:   2,
	}
}

// RetryingProvider wraps a Provider with exponential backoff on transient
// failures. Client errors (auth, malformed request) are returned immediately.
type RetryingProvider struct {
	inner  Provider
	cfg    RetryConfig
	logger *zap.Logger
}

// NewRetryingProvider wraps a provider.
func NewRetryingProvider(inner Provider, cfg RetryConfig, logger *zap.Logger) *RetryingProvider {
	if cfg.MaxRetries == 0 && cfg.InitialDelay == 0 {
		cfg = DefaultRetryConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingProvider{inner: inner, cfg: cfg, logger: logger}
}

// Name implements Provider.
func (r *RetryingProvider) Name() string { return r.inner.Name() }

// Model implements Provider.
func (r *RetryingProvider) Model() string { return r.inner.Model() }

// Chat implements Provider with retries.
func (r *RetryingProvider) Chat(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error) {
	var lastErr error
	delay := r.cfg.InitialDelay

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		resp, err := r.inner.Chat(ctx, messages, tools)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("llm retry succeeded", zap.Int("attempt", attempt+1))
			}
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("llm call failed (attempt %d/%d): %w",
				attempt+1, r.cfg.MaxRetries+1, err)
		}
		if IsClientError(err) {
			r.logger.Warn("llm client error, not retrying", zap.Error(err))
			return nil, err
		}
		if attempt >= r.cfg.MaxRetries {
			break
		}

		r.logger.Warn("llm call failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", r.cfg.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("llm call failed (attempt %d/%d): %w",
				attempt+1, r.cfg.MaxRetries+1, ctx.Err())
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * r.cfg.Multiplier)
	}

	r.logger.Error("llm retries exhausted",
		zap.Int("max_retries", r.cfg.MaxRetries), zap.Error(lastErr))
	return nil, fmt.Errorf("llm call failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

// IsClientError reports whether the error is the caller's fault and a retry
// cannot help: bad credentials or a malformed request.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"401", "403", "400", "invalid", "unauthorized"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
