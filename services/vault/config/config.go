// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates CodeVault configuration.
//
// Configuration lives at <repo>/.codevault/config.yaml and is created
// with defaults on first run. Environment variables with the CV_ prefix
// override individual file values. There is no global config instance:
// Load returns a *Config, and callers pass it down explicitly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// StateDirName is the sidecar directory CodeVault keeps inside the
// target repository.
const StateDirName = ".codevault"

// configValidate validates Config structs via struct tags.
var configValidate = validator.New()

// Config is the root configuration for all vault components.
type Config struct {
	Repo      RepoConfig      `yaml:"repo"`
	Sync      SyncConfig      `yaml:"sync"`
	Reader    ReaderConfig    `yaml:"reader"`
	Lock      LockConfig      `yaml:"lock"`
	Graph     GraphConfig     `yaml:"graph"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RepoConfig identifies the repository being indexed.
type RepoConfig struct {
	// Root is the absolute path to the repository root. Filled in by
	// Load from its argument; not normally written to the file.
	Root string `yaml:"root,omitempty" validate:"required"`
}

// SyncConfig tunes the synchronization engine.
type SyncConfig struct {
	// Workers is the parse worker pool size. 0 means NumCPU.
	Workers int `yaml:"workers" validate:"gte=0,lte=64"`

	// ChunkSize is the number of files per slice in chunked full sync.
	ChunkSize int `yaml:"chunk_size" validate:"gte=1"`

	// CommitLimit caps how many commits a history sync walks.
	CommitLimit int `yaml:"commit_limit" validate:"gte=1"`

	// EmbedBatchSize is how many chunks go to the embedder per request.
	EmbedBatchSize int `yaml:"embed_batch_size" validate:"gte=1,lte=512"`

	// MaxErrorLogSize caps sync-errors.log before it is trimmed.
	MaxErrorLogSize int64 `yaml:"max_error_log_size" validate:"gte=4096"`
}

// ReaderConfig controls which files are eligible for indexing.
type ReaderConfig struct {
	// MaxFileSize is the per-file size cap in bytes.
	MaxFileSize int64 `yaml:"max_file_size" validate:"gt=0"`

	// DeniedExtensions extends the built-in binary extension denylist.
	DeniedExtensions []string `yaml:"denied_extensions"`
}

// LockConfig tunes the sync lock.
type LockConfig struct {
	// StaleTimeout is the age after which a foreign lock is reclaimed.
	StaleTimeout time.Duration `yaml:"stale_timeout" validate:"gt=0"`

	// RetryInterval is the poll interval while waiting for the lock.
	RetryInterval time.Duration `yaml:"retry_interval" validate:"gt=0"`

	// AcquireTimeout bounds how long acquisition waits overall.
	AcquireTimeout time.Duration `yaml:"acquire_timeout" validate:"gt=0"`
}

// GraphConfig tunes the embedded graph store.
type GraphConfig struct {
	// InMemory runs the store without disk persistence. Tests only.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites forces fsync on every write batch.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often value-log garbage collection runs.
	// 0 disables background GC.
	GCInterval time.Duration `yaml:"gc_interval"`
}

// VectorConfig points at the vector store.
type VectorConfig struct {
	// Enabled toggles the embedding pipeline. When false, sync skips
	// vector upserts entirely.
	Enabled bool `yaml:"enabled"`

	// Host is the vector store host:port.
	Host string `yaml:"host" validate:"required_if=Enabled true"`

	// Scheme is http or https.
	Scheme string `yaml:"scheme" validate:"omitempty,oneof=http https"`

	// Class is the collection name chunks are stored under.
	Class string `yaml:"class"`
}

// EmbedderConfig configures the embedding backend.
type EmbedderConfig struct {
	// Model is the embedding model identifier.
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint for OpenAI-compatible local
	// backends. Empty means the upstream default.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// RequestsPerSecond rate-limits embedding calls. 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`

	// Burst is the rate limiter burst size.
	Burst int `yaml:"burst" validate:"gte=0"`

	// Dimensions pins the expected vector width. 0 accepts whatever
	// the model returns.
	Dimensions int `yaml:"dimensions" validate:"gte=0"`
}

// ServerConfig configures the optional HTTP API.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:7337".
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables file logging when non-empty. Supports ~ expansion.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	// Enabled turns the OpenTelemetry pipeline on.
	Enabled bool `yaml:"enabled"`

	// Exporter is otlp, stdout, or none.
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector address when Exporter is otlp.
	Endpoint string `yaml:"endpoint"`

	// Environment tags telemetry (development, staging, production).
	Environment string `yaml:"environment"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		Sync: SyncConfig{
			Workers:         0, // NumCPU
			ChunkSize:       200,
			CommitLimit:     500,
			EmbedBatchSize:  64,
			MaxErrorLogSize: 256 * 1024,
		},
		Reader: ReaderConfig{
			MaxFileSize: 1024 * 1024, // 1 MiB
		},
		Lock: LockConfig{
			StaleTimeout:   10 * time.Minute,
			RetryInterval:  100 * time.Millisecond,
			AcquireTimeout: 30 * time.Second,
		},
		Graph: GraphConfig{
			SyncWrites: false,
			GCInterval: 5 * time.Minute,
		},
		Vector: VectorConfig{
			Enabled: false,
			Host:    "localhost:8080",
			Scheme:  "http",
			Class:   "CodeChunk",
		},
		Embedder: EmbedderConfig{
			Model:             "text-embedding-3-small",
			RequestsPerSecond: 8,
			Burst:             16,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7337",
		},
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Exporter:    "none",
			Environment: "development",
		},
	}
}

// Load reads the configuration for the repository rooted at root,
// creating a default config file on first run. Environment overrides
// are applied after the file is parsed, and the result is validated.
func Load(root string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving repo root %q: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("repo root %q: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repo root %q: %w", absRoot, ErrNotADirectory)
	}

	cfg := DefaultConfig()
	configPath := filepath.Join(absRoot, StateDirName, "config.yaml")

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, configPath, err)
		}
	case os.IsNotExist(err):
		if err := writeDefault(configPath); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("reading config %s: %w", configPath, err)
	}

	cfg.Repo.Root = absRoot
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

// applyEnv overlays CV_-prefixed environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("CV_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CV_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Reader.MaxFileSize = n
		}
	}
	if v := os.Getenv("CV_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Sync.Workers = n
		}
	}
	if v := os.Getenv("CV_VECTOR_HOST"); v != "" {
		c.Vector.Host = v
		c.Vector.Enabled = true
	}
	if v := os.Getenv("CV_EMBED_BASE_URL"); v != "" {
		c.Embedder.BaseURL = v
	}
	if v := os.Getenv("CV_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// writeDefault creates the state directory and writes a default
// config.yaml for the user to edit.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// =============================================================================
// State Path Helpers
// =============================================================================

// StateDir returns <root>/.codevault.
func (c *Config) StateDir() string {
	return filepath.Join(c.Repo.Root, StateDirName)
}

// DeltaStatePath returns the delta state file location.
func (c *Config) DeltaStatePath() string {
	return filepath.Join(c.StateDir(), "delta_state.json")
}

// LockPath returns the sync lock sidecar location.
func (c *Config) LockPath() string {
	return c.DeltaStatePath() + ".lock"
}

// SyncStatePath returns the coarse sync state file location.
func (c *Config) SyncStatePath() string {
	return filepath.Join(c.StateDir(), "sync_state.json")
}

// ReportPath returns the last sync report location.
func (c *Config) ReportPath() string {
	return filepath.Join(c.StateDir(), "sync-report.json")
}

// ErrorLogPath returns the rolling error log location.
func (c *Config) ErrorLogPath() string {
	return filepath.Join(c.StateDir(), "sync-errors.log")
}

// ProgressPath returns the chunked-sync progress file location.
func (c *Config) ProgressPath() string {
	return filepath.Join(c.StateDir(), "chunked_progress.json")
}

// GraphDir returns the embedded graph database directory.
func (c *Config) GraphDir() string {
	return filepath.Join(c.StateDir(), "graph")
}

// LogDir returns the log file directory, honoring an explicit override.
func (c *Config) LogDir() string {
	if c.Log.Dir != "" {
		return c.Log.Dir
	}
	return filepath.Join(c.StateDir(), "logs")
}
