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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8420", cfg.Server.Addr())
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 160000, cfg.Engine.CompactionThreshold)
	assert.Equal(t, 10, cfg.Engine.AgentMaxTurns)
	assert.Equal(t, 300*time.Millisecond, cfg.Engine.StateDebounce)
	assert.Equal(t, time.Minute, cfg.Scheduler.RetryDelay)
	assert.Empty(t, cfg.Database.Path)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chapo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
llm:
  model: claude-opus-4
database:
  path: /var/lib/chapo/chapo.db
dispatcher:
  allowed_project_roots:
    - /srv/projects
external:
  allowed_image_hosts:
    - files.example.com
  session_channels:
    s1: chan-42
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "claude-opus-4", cfg.LLM.Model)
	assert.Equal(t, "/var/lib/chapo/chapo.db", cfg.Database.Path)
	assert.Equal(t, []string{"/srv/projects"}, cfg.Dispatcher.AllowedProjectRoots)
	assert.Equal(t, "chan-42", cfg.External.SessionChannels["s1"])
	// Untouched sections keep their defaults.
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CHAPO_SERVER_PORT", "7001")
	t.Setenv("CHAPO_LLM_ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("CHAPO_LOGGING_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.LLM.AnthropicAPIKey)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestConfig_Validate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Server.Port = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.LLM.Provider = "gpt9"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Logging.Format = "xml"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Engine.CompactionThreshold = 0
	assert.Error(t, bad.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
