// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the daemon's configuration by layering defaults,
// an optional YAML file, and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// Config is the daemon's full configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	WS       WSConfig       `yaml:"ws"`
	Auth     AuthConfig     `yaml:"auth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// TestProtect records the test_protect setting (GOBBY_TEST_PROTECT).
	// Nothing in the daemon reads it: it does not restrict the database
	// path or change any other default.
	TestProtect bool `yaml:"test_protect"`
}

// LogConfig configures the structured logger (see internal/log).
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// DatabaseConfig configures the embedded SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	WAL  bool   `yaml:"wal"`
}

// HTTPConfig configures the REST control-plane listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// WSConfig configures the WebSocket control-plane listener.
type WSConfig struct {
	Addr  string      `yaml:"addr"`
	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig configures the WebSocket server's voice sub-protocol,
// disabled by default (the daemon never assumes a microphone/speaker are
// available).
type VoiceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AuthConfig configures optional control-plane authentication.
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	APIKeyHash    string `yaml:"api_key_hash,omitempty"`
	JWTSigningKey string `yaml:"jwt_signing_key,omitempty"`
}

// SchedulerConfig configures the cron/interval/one-shot job dispatcher.
type SchedulerConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	MaxConcurrentRuns  int           `yaml:"max_concurrent_runs"`
	RunRetention       time.Duration `yaml:"run_retention"`
	FailureThreshold   int           `yaml:"failure_threshold"`
}

// WorkflowsConfig configures workflow/pipeline/prompt definition discovery.
type WorkflowsConfig struct {
	Dir    string `yaml:"dir"`
	Pipelines string `yaml:"pipelines_dir"`
	Prompts   string `yaml:"prompts_dir"`
	MaxAgentDepth        int `yaml:"max_agent_depth"`
	MaxPipelineDepth     int `yaml:"max_pipeline_depth"`
	MaxTransitionDepth   int `yaml:"max_transition_depth"`
}

// TelemetryConfig configures OpenTelemetry tracing/metrics export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	// OTLPProtocol selects the span exporter's transport when OTLPEndpoint
	// is set: "grpc" (default) or "http".
	OTLPProtocol string `yaml:"otlp_protocol,omitempty"`
	UseStdout    bool   `yaml:"use_stdout"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Log: LogConfig{Level: "info", Format: "json", AddSource: false},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "gobby.db"),
			WAL:  true,
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8787"},
		WS:   WSConfig{Addr: "127.0.0.1:8788"},
		Auth: AuthConfig{Enabled: false},
		Scheduler: SchedulerConfig{
			PollInterval:      5 * time.Second,
			MaxConcurrentRuns: 4,
			RunRetention:      7 * 24 * time.Hour,
			FailureThreshold:  5,
		},
		Workflows: WorkflowsConfig{
			Dir:                filepath.Join(dataDir, "workflows"),
			Pipelines:          filepath.Join(dataDir, "pipelines"),
			Prompts:            filepath.Join(dataDir, "prompts"),
			MaxAgentDepth:      4,
			MaxPipelineDepth:   4,
			MaxTransitionDepth: 10,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "gobby",
			UseStdout:   true,
		},
	}
}

// Load builds a Config by layering Default(), an optional YAML file at
// configPath (or, when configPath is empty, GOBBY_CONFIG_FILE if set,
// else the XDG default path if that file exists), and environment
// variable overrides, in that order.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if p := os.Getenv("GOBBY_CONFIG_FILE"); p != "" {
			configPath = p
		} else if p := defaultConfigPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				configPath = p
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, gobbyerrors.Wrapf(err, "loading config from %s", configPath)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GOBBY_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("GOBBY_LOGGING_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("GOBBY_LOGGING_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("GOBBY_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("GOBBY_WS_ADDR"); v != "" {
		c.WS.Addr = v
	}
	if v := os.Getenv("GOBBY_WORKFLOWS_DIR"); v != "" {
		c.Workflows.Dir = v
	}
	if v := os.Getenv("GOBBY_TELEMETRY_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
		c.Telemetry.Enabled = true
		c.Telemetry.UseStdout = false
	}
	if v := os.Getenv("GOBBY_TEST_PROTECT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.TestProtect = b
		}
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "gobby")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gobby"
	}
	return filepath.Join(home, ".local", "share", "gobby")
}

func defaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gobby", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gobby", "config.yaml")
}
