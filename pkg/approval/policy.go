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

// Package approval gates tool execution: policy decides, the bridge either
// runs the tool or parks it as a pending action.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/chapo-dev/chapo/pkg/tools"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed              bool
	RequiresConfirmation bool
	Reason               string
}

// Policy decides whether a tool call may run and whether it needs user
// confirmation first.
type Policy interface {
	Check(ctx context.Context, toolName string, args map[string]interface{}, userID string) Decision
}

// argSchemas are per-tool JSON schemas validated before any policy verdict.
// A schema violation is a client error, never retried.
var argSchemas = map[string]string{
	tools.ToolWriteFile: `{
		"type": "object",
		"required": ["path", "content"],
		"properties": {
			"path": {"type": "string", "minLength": 1},
			"content": {"type": "string"}
		}
	}`,
	tools.ToolEditFile: `{
		"type": "object",
		"required": ["path"],
		"properties": {
			"path": {"type": "string", "minLength": 1},
			"search": {"type": "string"},
			"replacement": {"type": "string"}
		}
	}`,
	tools.ToolShellExecute: `{
		"type": "object",
		"required": ["command"],
		"properties": {"command": {"type": "string", "minLength": 1}}
	}`,
	tools.ToolSSHExecute: `{
		"type": "object",
		"required": ["host", "command"],
		"properties": {
			"host": {"type": "string", "minLength": 1},
			"command": {"type": "string", "minLength": 1}
		}
	}`,
	tools.ToolHTTPRequest: `{
		"type": "object",
		"required": ["url"],
		"properties": {
			"url": {"type": "string", "minLength": 1},
			"method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"]}
		}
	}`,
	tools.ToolBoardTicket: `{
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"description": {"type": "string"}
		}
	}`,
}

// ValidateArgs checks tool arguments against the per-tool schema, if one is
// registered. Returns nil for tools without a schema.
func ValidateArgs(toolName string, args map[string]interface{}) error {
	schemaSrc, ok := argSchemas[toolName]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode args for %s: %w", toolName, err)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaSrc),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to validate args for %s: %w", toolName, err)
	}
	if result.Valid() {
		return nil
	}
	var issues []string
	for _, e := range result.Errors() {
		issues = append(issues, e.String())
	}
	return fmt.Errorf("invalid arguments for %s: %s", toolName, strings.Join(issues, "; "))
}

// StaticPolicy is a table-driven Policy: read-only tools run immediately,
// mutating tools require confirmation, denied tools never run.
type StaticPolicy struct {
	autoApprove     map[string]bool
	needConfirm     map[string]bool
	denied          map[string]bool
	confirmUnlisted bool
}

// StaticPolicyConfig configures a StaticPolicy.
type StaticPolicyConfig struct {
	AutoApprove []string
	NeedConfirm []string
	Denied      []string

	// ConfirmUnlisted makes unknown tools require confirmation instead of
	// being denied outright.
	ConfirmUnlisted bool
}

// DefaultPolicyConfig is the stock policy: reads run free, mutations
// confirm.
func DefaultPolicyConfig() StaticPolicyConfig {
	return StaticPolicyConfig{
		AutoApprove: []string{
			tools.ToolReadFile, tools.ToolListDir, tools.ToolGitStatus,
			tools.ToolSearchWeb, tools.ToolHTTPRequest,
		},
		NeedConfirm: []string{
			tools.ToolWriteFile, tools.ToolEditFile,
			tools.ToolGitCommit, tools.ToolGitPush,
			tools.ToolShellExecute, tools.ToolSSHExecute,
			tools.ToolProcessRestart, tools.ToolProcessStop,
			tools.ToolPkgInstall, tools.ToolWorkflowTrigger,
			tools.ToolBoardTicket, tools.ToolBoardUpdate, tools.ToolCalendarEvent,
		},
		ConfirmUnlisted: true,
	}
}

// NewStaticPolicy creates a policy from the config.
func NewStaticPolicy(cfg StaticPolicyConfig) *StaticPolicy {
	toSet := func(names []string) map[string]bool {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		return set
	}
	return &StaticPolicy{
		autoApprove:     toSet(cfg.AutoApprove),
		needConfirm:     toSet(cfg.NeedConfirm),
		denied:          toSet(cfg.Denied),
		confirmUnlisted: cfg.ConfirmUnlisted,
	}
}

// Check implements Policy.
func (p *StaticPolicy) Check(_ context.Context, toolName string, args map[string]interface{}, _ string) Decision {
	if p.denied[toolName] {
		return Decision{Allowed: false, Reason: fmt.Sprintf("tool %s is denied by policy", toolName)}
	}
	if err := ValidateArgs(toolName, args); err != nil {
		return Decision{Allowed: false, Reason: err.Error()}
	}
	if p.autoApprove[toolName] {
		return Decision{Allowed: true}
	}
	if p.needConfirm[toolName] {
		return Decision{Allowed: true, RequiresConfirmation: true}
	}
	if p.confirmUnlisted {
		return Decision{Allowed: true, RequiresConfirmation: true}
	}
	return Decision{Allowed: false, Reason: fmt.Sprintf("tool %s is not covered by policy", toolName)}
}
