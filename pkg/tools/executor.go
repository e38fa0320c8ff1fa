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

package tools

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LocalExecutor dispatches to tools registered in the Registry, enforcing
// the per-tool timeout table.
type LocalExecutor struct {
	registry *Registry
	logger   *zap.Logger
}

// NewLocalExecutor creates an executor over the registry.
func NewLocalExecutor(registry *Registry, logger *zap.Logger) *LocalExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalExecutor{registry: registry, logger: logger}
}

// Execute implements Executor.
func (e *LocalExecutor) Execute(ctx context.Context, toolName string, args map[string]interface{}, opts ExecOptions) (*Result, error) {
	tool, ok := e.registry.Get(toolName)
	if !ok {
		return &Result{
			Success: false,
			Error:   &Error{Code: "tool_not_found", Message: fmt.Sprintf("tool not registered: %s", toolName)},
		}, nil
	}

	if timeout := e.registry.Timeout(toolName); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := tool.Execute(ctx, args)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Warn("tool execution errored",
			zap.String("tool", toolName),
			zap.String("agent", opts.Agent),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return &Result{
			Success:         false,
			Error:           &Error{Code: "execution_error", Message: err.Error(), Retryable: ctx.Err() != nil},
			ExecutionTimeMs: elapsed.Milliseconds(),
		}, nil
	}
	if result == nil {
		result = &Result{Success: true}
	}
	if result.ExecutionTimeMs == 0 {
		result.ExecutionTimeMs = elapsed.Milliseconds()
	}

	e.logger.Debug("tool executed",
		zap.String("tool", toolName),
		zap.String("agent", opts.Agent),
		zap.Bool("success", result.Success),
		zap.Duration("elapsed", elapsed))
	return result, nil
}
