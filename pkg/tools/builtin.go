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
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// maxToolOutput bounds text captured from shell and HTTP tools.
const maxToolOutput = 64 * 1024

// RegisterBuiltins registers the local filesystem, shell and HTTP tools.
// root scopes all filesystem paths; an empty root allows absolute paths.
func RegisterBuiltins(registry *Registry, root string) error {
	builtins := []Tool{
		&readFileTool{root: root},
		&listDirTool{root: root},
		&writeFileTool{root: root},
		&editFileTool{root: root},
		&shellTool{dir: root},
		&httpTool{client: &http.Client{}},
	}
	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// resolvePath joins a tool path argument with the configured root and
// refuses escapes above it.
func resolvePath(root, p string) (string, error) {
	if root == "" {
		return p, nil
	}
	joined := filepath.Join(root, p)
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the project root", p)
	}
	return joined, nil
}

func argText(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func failure(code, msg string) *Result {
	return &Result{Success: false, Error: &Error{Code: code, Message: msg}}
}

type readFileTool struct{ root string }

func (t *readFileTool) Name() string        { return ToolReadFile }
func (t *readFileTool) Description() string { return "Read a text file and return its content." }
func (t *readFileTool) InputSchema() *JSONSchema {
	return NewObjectSchema("Read a file",
		map[string]*JSONSchema{"path": NewStringSchema("File path")}, []string{"path"})
}

func (t *readFileTool) Execute(_ context.Context, args map[string]interface{}) (*Result, error) {
	path, err := resolvePath(t.root, argText(args, "path"))
	if err != nil {
		return failure("path_denied", err.Error()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return failure("read_failed", err.Error()), nil
	}
	return &Result{Success: true, Data: string(data)}, nil
}

type listDirTool struct{ root string }

func (t *listDirTool) Name() string        { return ToolListDir }
func (t *listDirTool) Description() string { return "List the entries of a directory." }
func (t *listDirTool) InputSchema() *JSONSchema {
	return NewObjectSchema("List a directory",
		map[string]*JSONSchema{"path": NewStringSchema("Directory path")}, nil)
}

func (t *listDirTool) Execute(_ context.Context, args map[string]interface{}) (*Result, error) {
	p := argText(args, "path")
	if p == "" {
		p = "."
	}
	path, err := resolvePath(t.root, p)
	if err != nil {
		return failure("path_denied", err.Error()), nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return failure("list_failed", err.Error()), nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &Result{Success: true, Data: strings.Join(names, "\n")}, nil
}

type writeFileTool struct{ root string }

func (t *writeFileTool) Name() string        { return ToolWriteFile }
func (t *writeFileTool) Description() string { return "Write content to a file, creating it if needed." }
func (t *writeFileTool) InputSchema() *JSONSchema {
	return NewObjectSchema("Write a file", map[string]*JSONSchema{
		"path":    NewStringSchema("File path"),
		"content": NewStringSchema("Full file content"),
	}, []string{"path", "content"})
}

func (t *writeFileTool) Execute(_ context.Context, args map[string]interface{}) (*Result, error) {
	path, err := resolvePath(t.root, argText(args, "path"))
	if err != nil {
		return failure("path_denied", err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return failure("write_failed", err.Error()), nil
	}
	content := argText(args, "content")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return failure("write_failed", err.Error()), nil
	}
	return &Result{Success: true, Data: fmt.Sprintf("Wrote %d bytes to %s", len(content), argText(args, "path"))}, nil
}

type editFileTool struct{ root string }

func (t *editFileTool) Name() string { return ToolEditFile }
func (t *editFileTool) Description() string {
	return "Replace an exact text fragment in a file with new text."
}
func (t *editFileTool) InputSchema() *JSONSchema {
	return NewObjectSchema("Edit a file", map[string]*JSONSchema{
		"path":    NewStringSchema("File path"),
		"oldText": NewStringSchema("Exact text to replace"),
		"newText": NewStringSchema("Replacement text"),
	}, []string{"path", "oldText", "newText"})
}

func (t *editFileTool) Execute(_ context.Context, args map[string]interface{}) (*Result, error) {
	path, err := resolvePath(t.root, argText(args, "path"))
	if err != nil {
		return failure("path_denied", err.Error()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return failure("read_failed", err.Error()), nil
	}
	oldText := argText(args, "oldText")
	content := string(data)
	if !strings.Contains(content, oldText) {
		return failure("edit_failed", "oldText not found in file"), nil
	}
	updated := strings.Replace(content, oldText, argText(args, "newText"), 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return failure("write_failed", err.Error()), nil
	}
	return &Result{Success: true, Data: fmt.Sprintf("Edited %s", argText(args, "path"))}, nil
}

type shellTool struct{ dir string }

func (t *shellTool) Name() string        { return ToolShellExecute }
func (t *shellTool) Description() string { return "Run a shell command and return its output." }
func (t *shellTool) InputSchema() *JSONSchema {
	return NewObjectSchema("Run a shell command",
		map[string]*JSONSchema{"command": NewStringSchema("Command line to run")}, []string{"command"})
}

func (t *shellTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	command := argText(args, "command")
	if strings.TrimSpace(command) == "" {
		return failure("invalid_args", "command is required"), nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = t.dir
	out, err := cmd.CombinedOutput()
	if len(out) > maxToolOutput {
		out = out[:maxToolOutput]
	}
	if err != nil {
		return &Result{
			Success: false,
			Data:    string(out),
			Error:   &Error{Code: "command_failed", Message: err.Error(), Retryable: ctx.Err() != nil},
		}, nil
	}
	return &Result{Success: true, Data: string(out)}, nil
}

type httpTool struct{ client *http.Client }

func (t *httpTool) Name() string        { return ToolHTTPRequest }
func (t *httpTool) Description() string { return "Perform an HTTP request and return the response body." }
func (t *httpTool) InputSchema() *JSONSchema {
	return NewObjectSchema("HTTP request", map[string]*JSONSchema{
		"url":    NewStringSchema("Request URL"),
		"method": NewStringSchema("HTTP method, defaults to GET"),
		"body":   NewStringSchema("Request body"),
	}, []string{"url"})
}

func (t *httpTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	method := strings.ToUpper(argText(args, "method"))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if b := argText(args, "body"); b != "" {
		body = strings.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, argText(args, "url"), body)
	if err != nil {
		return failure("invalid_args", err.Error()), nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return &Result{
			Success: false,
			Error:   &Error{Code: "request_failed", Message: err.Error(), Retryable: true},
		}, nil
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxToolOutput))
	if err != nil {
		return failure("read_failed", err.Error()), nil
	}
	return &Result{
		Success:  resp.StatusCode < 400,
		Data:     string(data),
		Metadata: map[string]interface{}{"statusCode": resp.StatusCode},
	}, nil
}
