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
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const sanitizeMaxString = 200

// Describe builds a human description of a tool call for approval prompts
// and audit entries.
func Describe(toolName string, args map[string]interface{}) string {
	str := func(key string) string {
		v, _ := args[key].(string)
		return v
	}

	switch toolName {
	case ToolWriteFile:
		return fmt.Sprintf("Write file %s (%d bytes)", str("path"), len(str("content")))
	case ToolEditFile:
		return fmt.Sprintf("Edit file %s", str("path"))
	case ToolGitCommit:
		return fmt.Sprintf("Create git commit: %q", str("message"))
	case ToolGitPush:
		target := str("remote")
		if target == "" {
			target = "origin"
		}
		return fmt.Sprintf("Push commits to %s", target)
	case ToolWorkflowTrigger:
		return fmt.Sprintf("Trigger workflow %s", str("workflow"))
	case ToolShellExecute:
		return fmt.Sprintf("Run shell command: %s", truncate(str("command"), 120))
	case ToolSSHExecute:
		return fmt.Sprintf("Run on %s via SSH: %s", str("host"), truncate(str("command"), 120))
	case ToolProcessRestart:
		return fmt.Sprintf("Restart process %s", str("name"))
	case ToolProcessStop:
		return fmt.Sprintf("Stop process %s", str("name"))
	case ToolPkgInstall:
		return fmt.Sprintf("Install package(s): %s", str("packages"))
	case ToolBoardTicket:
		return fmt.Sprintf("Create board ticket: %q", truncate(str("title"), 120))
	case ToolBoardUpdate:
		return fmt.Sprintf("Update board ticket %s", str("ticketId"))
	case ToolCalendarEvent:
		return fmt.Sprintf("Create calendar event: %q", truncate(str("title"), 120))
	case ToolHTTPRequest:
		method := strings.ToUpper(str("method"))
		if method == "" {
			method = "GET"
		}
		return fmt.Sprintf("%s %s", method, str("url"))
	default:
		return fmt.Sprintf("Execute tool %s", toolName)
	}
}

// Preview builds an optional preview for an action awaiting approval. File
// writes and edits get a unified-style diff against the provided previous
// content; everything else gets nothing.
func Preview(toolName string, args map[string]interface{}, previousContent string) string {
	switch toolName {
	case ToolWriteFile, ToolEditFile:
		next, _ := args["content"].(string)
		if next == "" {
			if repl, ok := args["replacement"].(string); ok {
				next = repl
			}
		}
		if next == "" && previousContent == "" {
			return ""
		}
		return diffPreview(previousContent, next)
	default:
		return ""
	}
}

func diffPreview(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		text := d.Text
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			writePrefixedLines(&b, "+", text)
		case diffmatchpatch.DiffDelete:
			writePrefixedLines(&b, "-", text)
		case diffmatchpatch.DiffEqual:
			// Keep equal context short.
			if len(text) > 80 {
				text = text[:40] + "\n…\n" + text[len(text)-40:]
			}
			writePrefixedLines(&b, " ", text)
		}
	}
	preview := b.String()
	if len(preview) > 4000 {
		preview = preview[:4000] + "\n… (preview truncated)"
	}
	return preview
}

func writePrefixedLines(b *strings.Builder, prefix, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// SanitizeArgs returns a copy of args safe for audit logs and event
// payloads: long strings are truncated and content fields are elided to a
// length marker.
func SanitizeArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}
	out := make(map[string]interface{}, len(args))
	for key, value := range args {
		if key == "content" || key == "replacement" {
			if s, ok := value.(string); ok {
				out[key] = fmt.Sprintf("<%d chars>", len(s))
				continue
			}
		}
		if s, ok := value.(string); ok && len(s) > sanitizeMaxString {
			out[key] = s[:sanitizeMaxString] + "…"
			continue
		}
		out[key] = value
	}
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
