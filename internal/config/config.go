// Package config provides hierarchical configuration loading for BrainStem.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds all runtime configuration for the BrainStem core service.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	NATS     NATS     `yaml:"nats"`
	Logging  Logging  `yaml:"logging"`
	Breaker  Breaker  `yaml:"breaker"`
	Rate     Rate     `yaml:"rate"`
	Guard    Guard    `yaml:"guard"`
	Exec     Exec     `yaml:"exec"`
	MCP      MCP      `yaml:"mcp"`
	Node     Node     `yaml:"node"`
	Auth     Auth     `yaml:"auth"`
	Otel     Otel     `yaml:"otel"`
	Vault    Vault    `yaml:"vault"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Database holds the embedded SQLite store configuration.
type Database struct {
	Path string `yaml:"path"`
}

// NATS holds the registry sync bus configuration. The bus is optional;
// a standalone gateway runs fine without it.
type NATS struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds per-provider circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds per-caller rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// Guard holds guard engine configuration.
type Guard struct {
	Profile         string        `yaml:"profile"`
	RulesDir        string        `yaml:"rules_dir"`
	ScratchDir      string        `yaml:"scratch_dir"`
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
}

// Exec holds bounded command executor configuration.
type Exec struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	Timeout        time.Duration `yaml:"timeout"`
}

// MCP holds protocol engine configuration.
type MCP struct {
	// DefaultCaller identifies unauthenticated protocol callers in
	// guard requests and audit entries.
	DefaultCaller string        `yaml:"default_caller"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

// Node holds this gateway's own registry record configuration.
type Node struct {
	ID                string        `yaml:"id"`
	Role              string        `yaml:"role"`
	Trust             string        `yaml:"trust"`
	AdvertiseURL      string        `yaml:"advertise_url"`
	Capabilities      []string      `yaml:"capabilities"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
}

// APIKey is one gateway API key: a caller identity and the bcrypt hash
// of the secret. Raw secrets never appear in configuration.
type APIKey struct {
	Caller string `yaml:"caller"`
	Hash   string `yaml:"hash"`
}

// Auth holds HTTP surface authentication configuration. Auth is
// disabled while no keys are configured.
type Auth struct {
	APIKeys []APIKey `yaml:"api_keys"`
}

// Enabled reports whether API key auth is active.
func (a Auth) Enabled() bool {
	return len(a.APIKeys) > 0
}

// Otel holds OpenTelemetry exporter configuration.
type Otel struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Vault holds credential vault configuration.
type Vault struct {
	CredentialsFile string `yaml:"credentials_file"`
	EnvPrefix       string `yaml:"env_prefix"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Database: Database{
			Path: "brainstem.db",
		},
		NATS: NATS{
			Enabled: false,
			URL:     "nats://localhost:4222",
		},
		Logging: Logging{
			Level:   "info",
			Service: "brainstem-core",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             100,
			CleanupInterval:   time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
		Guard: Guard{
			Profile:         "core-safe",
			ScratchDir:      filepath.Join(os.TempDir(), "brainstem-scratch"),
			ApprovalTimeout: 60 * time.Second,
		},
		Exec: Exec{
			MaxConcurrent:  4,
			MaxOutputBytes: 64 * 1024,
			Timeout:        30 * time.Second,
		},
		MCP: MCP{
			DefaultCaller: "planner",
			CallTimeout:   60 * time.Second,
		},
		Node: Node{
			Role:              "core",
			Trust:             "trusted",
			HeartbeatInterval: 30 * time.Second,
			StaleAfter:        5 * time.Minute,
		},
		Otel: Otel{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
		Vault: Vault{
			EnvPrefix: "BRAINSTEM_SECRET_",
		},
	}
}
