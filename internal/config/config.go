// Package config handles loading and validating shellguide configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jkaninda/shellguide/internal/storage"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for shellguide.
type Config struct {
	Workspace     string               `json:"workspace,omitempty" yaml:"workspace,omitempty"` // Workspace root. Default: ~/.shellguide/workspace. Override: SHELLGUIDE_WORKSPACE env var.
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`   // Persistent data directory. Default: ~/.shellguide/data. Override: SHELLGUIDE_DATA_DIR env var.
	Learner       string               `json:"learner,omitempty" yaml:"learner,omitempty"`     // Learner id for local sessions. Default: "local".
	Storage       *storage.Config      `json:"storage,omitempty" yaml:"storage,omitempty"`     // nil = SQLite default (derived from data dir)
	Sandbox       SandboxConfig        `json:"sandbox" yaml:"sandbox"`
	Lessons       LessonsConfig        `json:"lessons" yaml:"lessons"`
	Sessions      SessionsConfig       `json:"sessions" yaml:"sessions"`
	Audit         AuditConfig          `json:"audit" yaml:"audit"`
	Logging       LoggingConfig        `json:"logging" yaml:"logging"`
	Gateways      GatewaysConfig       `json:"gateways" yaml:"gateways"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// SandboxConfig configures command execution inside learner sandboxes.
type SandboxConfig struct {
	MaxExecutionSeconds int      `json:"max_execution_seconds" yaml:"max_execution_seconds"` // Per-step limit. Default: 5.
	MaxOutputBytes      int      `json:"max_output_bytes" yaml:"max_output_bytes"`           // Per-stream capture limit. Default: 64 KiB.
	AllowedCommands     []string `json:"allowed_commands" yaml:"allowed_commands"`           // Empty = the full built-in allowlist.
	DeniedCommands      []string `json:"denied_commands" yaml:"denied_commands"`             // Removed from the allowlist.
}

// Timeout returns the per-step execution limit.
func (s SandboxConfig) Timeout() time.Duration {
	if s.MaxExecutionSeconds > 0 {
		return time.Duration(s.MaxExecutionSeconds) * time.Second
	}
	return 5 * time.Second
}

// OutputLimit returns the per-stream capture limit in bytes.
func (s SandboxConfig) OutputLimit() int {
	if s.MaxOutputBytes > 0 {
		return s.MaxOutputBytes
	}
	return 64 << 10
}

// LessonsConfig configures where lesson packs are loaded from.
type LessonsConfig struct {
	Dirs        []string `json:"dirs" yaml:"dirs"`                 // Extra lesson pack directories.
	SkipBuiltin bool     `json:"skip_builtin" yaml:"skip_builtin"` // Do not load the embedded curriculum.
}

// SessionsConfig bounds server-mode sessions.
type SessionsConfig struct {
	MaxActive          int    `json:"max_active" yaml:"max_active"`                     // 0 = unlimited.
	IdleTimeoutMinutes int    `json:"idle_timeout_minutes" yaml:"idle_timeout_minutes"` // Default: 30.
	ReapSchedule       string `json:"reap_schedule" yaml:"reap_schedule"`               // Cron expression. Default: every minute.
}

// IdleTimeout returns how long a server session may stay inactive.
func (s SessionsConfig) IdleTimeout() time.Duration {
	if s.IdleTimeoutMinutes > 0 {
		return time.Duration(s.IdleTimeoutMinutes) * time.Minute
	}
	return 30 * time.Minute
}

// AuditConfig configures the attempt audit trail.
type AuditConfig struct {
	Disabled bool   `json:"disabled" yaml:"disabled"`
	LogPath  string `json:"log_path,omitempty" yaml:"log_path,omitempty"` // JSONL file. Default: <data_dir>/audit.jsonl.
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error. Default: info. Override: SHELLGUIDE_LOG_LEVEL.
	Format string `json:"format" yaml:"format"` // json (default) or text.
}

// SlogLevel converts the configured level to a slog.Level.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ObservabilityConfig configures metrics, tracing, health checks, and anomaly detection.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// MetricsPath returns the metrics path with a default of "/metrics".
func (m *MetricsConfig) MetricsPath() string {
	if m != nil && m.Path != "" {
		return m.Path
	}
	return "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "shellguide"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0-1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeDB        bool `json:"include_db" yaml:"include_db"`
	IncludeWorkspace bool `json:"include_workspace" yaml:"include_workspace"`
}

// AnomalyConfig configures threshold-based detection of learners hammering
// the sandbox with refused commands.
type AnomalyConfig struct {
	Enabled                bool    `json:"enabled" yaml:"enabled"`
	RefusalRateThreshold   float64 `json:"refusal_rate_threshold" yaml:"refusal_rate_threshold"`     // e.g. 0.5 = half of attempts refused
	AttemptsPerMinuteLimit int     `json:"attempts_per_minute_limit" yaml:"attempts_per_minute_limit"` // per session
	WindowSeconds          int     `json:"window_seconds" yaml:"window_seconds"`                       // Default: 60
}

// GatewaysConfig defines which gateways are enabled and their settings.
// Nil pointers mean the gateway is not configured.
type GatewaysConfig struct {
	CLI       *CLIGatewayConfig       `json:"cli,omitempty" yaml:"cli,omitempty"`
	HTTP      *HTTPGatewayConfig      `json:"http,omitempty" yaml:"http,omitempty"`
	WebSocket *WebSocketGatewayConfig `json:"websocket,omitempty" yaml:"websocket,omitempty"`
}

// CLIGatewayConfig configures the interactive terminal.
type CLIGatewayConfig struct {
	Prompt string `json:"prompt" yaml:"prompt"` // Default: "$ ".
}

// PromptText returns the prompt with a default of "$ ".
func (c *CLIGatewayConfig) PromptText() string {
	if c != nil && c.Prompt != "" {
		return c.Prompt
	}
	return "$ "
}

// HTTPGatewayConfig configures the HTTP API gateway.
type HTTPGatewayConfig struct {
	Enabled             bool              `json:"enabled" yaml:"enabled"`
	EnableDocs          bool              `json:"enable_docs" yaml:"enable_docs"`
	ListenAddr          string            `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
	MaxRequestSizeBytes int64             `json:"max_request_size_bytes" yaml:"max_request_size_bytes"`
	APIKeyUserMapping   map[string]string `json:"api_key_user_mapping" yaml:"api_key_user_mapping"` // API key → learner id.
	RateLimit           RateLimitConfig   `json:"rate_limit" yaml:"rate_limit"`
}

// Addr returns the listen address with a default of ":8080".
func (h *HTTPGatewayConfig) Addr() string {
	if h != nil && h.ListenAddr != "" {
		return h.ListenAddr
	}
	return ":8080"
}

// MaxBodyBytes returns the request body limit with a default of 64 KiB.
func (h *HTTPGatewayConfig) MaxBodyBytes() int64 {
	if h != nil && h.MaxRequestSizeBytes > 0 {
		return h.MaxRequestSizeBytes
	}
	return 64 << 10
}

// WebSocketGatewayConfig configures the browser terminal endpoint.
type WebSocketGatewayConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Path           string   `json:"path" yaml:"path"`                       // URL path. Default: "/ws/terminal".
	OriginPatterns []string `json:"origin_patterns" yaml:"origin_patterns"` // Allowed cross-origin hosts.
	PingSeconds    int      `json:"ping_seconds" yaml:"ping_seconds"`       // Default: 30.
}

// WSPath returns the WebSocket path with a default of "/ws/terminal".
func (w *WebSocketGatewayConfig) WSPath() string {
	if w != nil && w.Path != "" {
		return w.Path
	}
	return "/ws/terminal"
}

// WSPingInterval returns the keepalive interval with a default of 30s.
func (w *WebSocketGatewayConfig) WSPingInterval() time.Duration {
	if w != nil && w.PingSeconds > 0 {
		return time.Duration(w.PingSeconds) * time.Second
	}
	return 30 * time.Second
}

// RateLimitConfig configures per-session rate limiting for a gateway.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// DefaultConfigPath returns the default config file path (~/.shellguide/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/shellguide.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".shellguide", "config.yaml")
}

// Default returns the configuration used when no config file exists.
func Default() (*Config, error) {
	cfg := &Config{}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when path is the
// default location and no file exists there.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg, err := Load(path)
	if err != nil && errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath() {
		return Default()
	}
	return cfg, err
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything else for JSON.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SHELLGUIDE_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("SHELLGUIDE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SHELLGUIDE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	// A DSN in the environment selects postgres.
	if v := os.Getenv("SHELLGUIDE_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &storage.Config{}
		}
		c.Storage.Driver = storage.DriverPostgres
		c.Storage.Postgres.DSN = v
	}
	// A single API key maps to the default learner.
	if v := os.Getenv("SHELLGUIDE_API_KEY"); v != "" {
		if c.Gateways.HTTP == nil {
			c.Gateways.HTTP = &HTTPGatewayConfig{}
		}
		if c.Gateways.HTTP.APIKeyUserMapping == nil {
			c.Gateways.HTTP.APIKeyUserMapping = make(map[string]string)
		}
		c.Gateways.HTTP.APIKeyUserMapping[v] = c.LearnerID()
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.DataDir = filepath.Join(home, ".shellguide", "data")
		}
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// LearnerID returns the configured learner, defaulting to "local".
func (c *Config) LearnerID() string {
	if c.Learner != "" {
		return c.Learner
	}
	return "local"
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".shellguide", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the SQLite database path, defaulting to the data directory.
func (c *Config) DatabasePath() string {
	if c.Storage != nil && c.Storage.SQLite.Path != "" {
		if p, err := resolvePath(c.Storage.SQLite.Path); err == nil {
			return p
		}
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "shellguide.db")
}

// AuditLogPath returns the audit log path, defaulting to the data directory.
// Empty when auditing is disabled.
func (c *Config) AuditLogPath() string {
	if c.Audit.Disabled {
		return ""
	}
	if c.Audit.LogPath != "" {
		if p, err := resolvePath(c.Audit.LogPath); err == nil {
			return p
		}
		return c.Audit.LogPath
	}
	return filepath.Join(c.ResolvedDataDir(), "audit.jsonl")
}

// StorageDriverName returns the effective storage driver name.
func (c *Config) StorageDriverName() string {
	if c.Storage != nil && c.Storage.Driver != "" {
		return c.Storage.Driver
	}
	return storage.DefaultDriver
}

func (c *Config) validate() error {
	if c.Sandbox.MaxExecutionSeconds < 0 {
		return fmt.Errorf("sandbox.max_execution_seconds must not be negative")
	}
	if c.Sandbox.MaxOutputBytes < 0 {
		return fmt.Errorf("sandbox.max_output_bytes must not be negative")
	}
	for _, name := range c.Sandbox.DeniedCommands {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("sandbox.denied_commands must not contain empty names")
		}
	}
	if c.Sessions.MaxActive < 0 {
		return fmt.Errorf("sessions.max_active must not be negative")
	}
	if c.Sessions.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("sessions.idle_timeout_minutes must not be negative")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not supported (use json or text)", c.Logging.Format)
	}
	// Storage driver validation.
	switch c.StorageDriverName() {
	case storage.DriverSQLite, storage.DriverNone:
	case storage.DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required (set SHELLGUIDE_DB_DSN env var)")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported (use sqlite, postgres or none)", c.Storage.Driver)
	}
	if h := c.Gateways.HTTP; h != nil && h.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("gateways.http.rate_limit.requests_per_minute must not be negative")
	}
	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		switch c.Observability.Tracing.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", c.Observability.Tracing.Protocol)
		}
	}
	if a := c.Observability; a != nil && a.Anomaly != nil && a.Anomaly.Enabled {
		if a.Anomaly.RefusalRateThreshold < 0 || a.Anomaly.RefusalRateThreshold > 1 {
			return fmt.Errorf("observability.anomaly.refusal_rate_threshold must be between 0 and 1")
		}
	}
	return nil
}
