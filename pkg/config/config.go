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

// Package config loads server configuration from a YAML file and CHAPO_*
// environment variables. Priority: config file > env vars > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the base name of the config file (chapo.yaml).
const DefaultConfigFileName = "chapo"

// Config holds all configuration for the chapo server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Dispatcher  DispatcherConfig  `mapstructure:"dispatcher"`
	External    ExternalConfig    `mapstructure:"external"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Transcripts TranscriptsConfig `mapstructure:"transcripts"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the WebSocket gateway listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LLMConfig holds provider settings.
type LLMConfig struct {
	// Provider selects the backend ("anthropic" or "scripted" for tests).
	Provider string `mapstructure:"provider"`

	// AnthropicAPIKey is read from CHAPO_LLM_ANTHROPIC_API_KEY when unset.
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`

	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// DatabaseConfig holds persistence settings. An empty path keeps everything
// in memory.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig holds turn-engine tuning knobs.
type EngineConfig struct {
	// CompactionThreshold is the token count at which conversation history
	// is compacted.
	CompactionThreshold int `mapstructure:"compaction_threshold"`

	// MaxIterations bounds the orchestrator's tool loop per turn.
	MaxIterations int `mapstructure:"max_iterations"`

	// AgentMaxTurns bounds each sub-agent run.
	AgentMaxTurns int `mapstructure:"agent_max_turns"`

	// QuestionTTL is how long a question fingerprint suppresses duplicates.
	QuestionTTL time.Duration `mapstructure:"question_ttl"`

	// StateDebounce is the state persistence debounce window.
	StateDebounce time.Duration `mapstructure:"state_debounce"`
}

// DispatcherConfig holds inbound command policy.
type DispatcherConfig struct {
	// AllowedProjectRoots restricts the projectRoot a request may carry.
	// Empty allows any root.
	AllowedProjectRoots []string `mapstructure:"allowed_project_roots"`
}

// ExternalConfig holds the outbound channel settings. The external channel
// is active only when WebhookURL is set.
type ExternalConfig struct {
	// WebhookURL is the base URL of the outbound channel endpoint.
	WebhookURL string `mapstructure:"webhook_url"`

	// WebhookToken is sent as a bearer token on channel requests.
	WebhookToken string `mapstructure:"webhook_token"`

	// AllowedImageHosts is the https host allow-list for forwarded images.
	AllowedImageHosts []string `mapstructure:"allowed_image_hosts"`

	// SessionChannels maps session ids to external channel ids.
	SessionChannels map[string]string `mapstructure:"session_channels"`
}

// SchedulerConfig holds the job fabric settings.
type SchedulerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// TranscriptsConfig holds markdown transcript output settings.
type TranscriptsConfig struct {
	// Dir is where per-session transcripts are written. Empty disables them.
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds zap settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Format is "console" or "json".
	Format string `mapstructure:"format"`
}

// Load reads configuration. cfgFile may be empty, in which case chapo.yaml is
// searched in the working directory and /etc/chapo/.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(GetDataDir())
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/chapo/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	v.SetEnvPrefix("CHAPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not populate Unmarshal for unset keys, so bind the
	// ones operators set most often.
	for _, key := range []string{
		"server.host", "server.port",
		"llm.provider", "llm.anthropic_api_key", "llm.model",
		"database.path", "logging.level", "logging.format",
		"transcripts.dir",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8420)

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-5-20250514")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 1.0)

	v.SetDefault("database.path", "")

	v.SetDefault("engine.compaction_threshold", 160000)
	v.SetDefault("engine.max_iterations", 24)
	v.SetDefault("engine.agent_max_turns", 10)
	v.SetDefault("engine.question_ttl", 10*time.Minute)
	v.SetDefault("engine.state_debounce", 300*time.Millisecond)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.retry_delay", time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate checks settings that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.LLM.Provider {
	case "anthropic", "scripted":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown logging format: %s", c.Logging.Format)
	}
	if c.Engine.CompactionThreshold <= 0 {
		return fmt.Errorf("compaction threshold must be positive")
	}
	return nil
}

// Addr returns the listener address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
