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
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Well-known tool names.
const (
	ToolWriteFile       = "fs_writeFile"
	ToolEditFile        = "fs_editFile"
	ToolReadFile        = "fs_readFile"
	ToolListDir         = "fs_listDir"
	ToolGitStatus       = "git_status"
	ToolGitCommit       = "git_commit"
	ToolGitPush         = "git_push"
	ToolHTTPRequest     = "http_request"
	ToolShellExecute    = "shell_execute"
	ToolSSHExecute      = "ssh_execute"
	ToolProcessRestart  = "process_restart"
	ToolProcessStop     = "process_stop"
	ToolPkgInstall      = "pkg_install"
	ToolWorkflowTrigger = "workflow_trigger"
	ToolSearchWeb       = "search_web"
	ToolBoardTicket     = "board_createTicket"
	ToolBoardUpdate     = "board_updateTicket"
	ToolCalendarEvent   = "calendar_createEvent"
)

// Default per-tool executor timeouts.
var defaultTimeouts = map[string]time.Duration{
	ToolShellExecute:    15 * time.Second,
	ToolSSHExecute:      30 * time.Second,
	ToolHTTPRequest:     30 * time.Second,
	ToolWorkflowTrigger: 30 * time.Second,
	ToolBoardTicket:     30 * time.Second,
	ToolBoardUpdate:     30 * time.Second,
	ToolCalendarEvent:   30 * time.Second,
	ToolSearchWeb:       30 * time.Second,
}

// defaultAliases maps common LLM misspellings and legacy names to canonical
// tool names. Keys are lower-cased.
var defaultAliases = map[string]string{
	"write_file":    ToolWriteFile,
	"writefile":     ToolWriteFile,
	"edit_file":     ToolEditFile,
	"read_file":     ToolReadFile,
	"bash":          ToolShellExecute,
	"sh":            ToolShellExecute,
	"shell":         ToolShellExecute,
	"exec":          ToolShellExecute,
	"ssh":           ToolSSHExecute,
	"fetch":         ToolHTTPRequest,
	"http":          ToolHTTPRequest,
	"web_search":    ToolSearchWeb,
	"create_ticket": ToolBoardTicket,
}

// defaultAgentTools is the static whitelist per agent. The orchestrator sees
// everything its sub-agents see; sub-agents are scoped to their domain.
var defaultAgentTools = map[string][]string{
	"chapo": {
		ToolReadFile, ToolListDir, ToolHTTPRequest, ToolSearchWeb,
	},
	"devo": {
		ToolWriteFile, ToolEditFile, ToolReadFile, ToolListDir,
		ToolGitStatus, ToolGitCommit, ToolGitPush,
		ToolShellExecute, ToolSSHExecute,
		ToolProcessRestart, ToolProcessStop, ToolPkgInstall,
		ToolWorkflowTrigger, ToolHTTPRequest,
	},
	"caio": {
		ToolBoardTicket, ToolBoardUpdate, ToolCalendarEvent, ToolHTTPRequest,
	},
	"scout": {
		ToolSearchWeb, ToolHTTPRequest, ToolReadFile,
	},
}

// confirmationWrapped lists tools whose executor runs its own confirmation
// prompt; the bridge sets BypassConfirmation when policy already decided.
var confirmationWrapped = map[string]bool{
	ToolShellExecute:   true,
	ToolSSHExecute:     true,
	ToolProcessRestart: true,
	ToolProcessStop:    true,
	ToolPkgInstall:     true,
}

// Registry holds registered tools, alias normalization, per-agent whitelists
// and the per-agent external (MCP-sourced) tool map.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]Tool
	aliases       map[string]string
	agentTools    map[string]map[string]bool
	externalTools map[string]map[string]bool
	timeouts      map[string]time.Duration
}

// NewRegistry creates a registry seeded with the default whitelists.
func NewRegistry() *Registry {
	r := &Registry{
		tools:         make(map[string]Tool),
		aliases:       make(map[string]string, len(defaultAliases)),
		agentTools:    make(map[string]map[string]bool, len(defaultAgentTools)),
		externalTools: make(map[string]map[string]bool),
		timeouts:      make(map[string]time.Duration, len(defaultTimeouts)),
	}
	for alias, canonical := range defaultAliases {
		r.aliases[alias] = canonical
	}
	for agent, names := range defaultAgentTools {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		r.agentTools[agent] = set
	}
	for name, d := range defaultTimeouts {
		r.timeouts[name] = d
	}
	return r
}

// Register adds a tool implementation.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns a registered tool by canonical name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Normalize resolves aliases and capitalization to the canonical tool name.
// Unknown names are returned lower-cased as-is so policy can still reject
// them with a useful message.
func (r *Registry) Normalize(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.tools[name]; ok {
		return name
	}
	lower := strings.ToLower(name)
	if canonical, ok := r.aliases[lower]; ok {
		return canonical
	}
	// Case-insensitive match against canonical names.
	for canonical := range r.knownNamesLocked() {
		if strings.EqualFold(canonical, name) {
			return canonical
		}
	}
	return name
}

func (r *Registry) knownNamesLocked() map[string]bool {
	names := make(map[string]bool)
	for n := range r.tools {
		names[n] = true
	}
	for _, set := range r.agentTools {
		for n := range set {
			names[n] = true
		}
	}
	return names
}

// AllowedFor reports whether the agent may call the (already normalized)
// tool, combining the static whitelist with the external-tool map.
func (r *Registry) AllowedFor(agent, toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if set, ok := r.agentTools[agent]; ok && set[toolName] {
		return true
	}
	if set, ok := r.externalTools[agent]; ok && set[toolName] {
		return true
	}
	return false
}

// ToolsForAgent returns the sorted union of whitelist and external tools.
func (r *Registry) ToolsForAgent(agent string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]bool)
	for n := range r.agentTools[agent] {
		set[n] = true
	}
	for n := range r.externalTools[agent] {
		set[n] = true
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GrantExternal adds an external (MCP-sourced) tool to an agent's map.
func (r *Registry) GrantExternal(agent, toolName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.externalTools[agent] == nil {
		r.externalTools[agent] = make(map[string]bool)
	}
	r.externalTools[agent][toolName] = true
}

// IsConfirmationWrapped reports whether the tool's executor runs its own
// confirmation prompt.
func (r *Registry) IsConfirmationWrapped(toolName string) bool {
	return confirmationWrapped[toolName]
}

// Timeout returns the executor timeout for a tool (zero means no per-tool
// timeout beyond the caller's context).
func (r *Registry) Timeout(toolName string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timeouts[toolName]
}
