package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "brainstem.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// A .env file in the working directory is read first so that env
// overrides work the same in containers and on laptops. Both files are
// optional; a missing file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "BRAINSTEM_PORT")
	setString(&cfg.Server.CORSOrigin, "BRAINSTEM_CORS_ORIGIN")
	setString(&cfg.Database.Path, "DATABASE_PATH")
	setBool(&cfg.NATS.Enabled, "BRAINSTEM_NATS_ENABLED")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "BRAINSTEM_LOG_LEVEL")
	setString(&cfg.Logging.Service, "BRAINSTEM_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "BRAINSTEM_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "BRAINSTEM_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "BRAINSTEM_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "BRAINSTEM_RATE_RPS")
	setInt(&cfg.Rate.Burst, "BRAINSTEM_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "BRAINSTEM_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "BRAINSTEM_RATE_MAX_IDLE_TIME")
	setString(&cfg.Guard.Profile, "BRAINSTEM_GUARD_PROFILE")
	setString(&cfg.Guard.RulesDir, "BRAINSTEM_GUARD_RULES_DIR")
	setString(&cfg.Guard.ScratchDir, "BRAINSTEM_SCRATCH_DIR")
	setDuration(&cfg.Guard.ApprovalTimeout, "BRAINSTEM_APPROVAL_TIMEOUT")
	setInt(&cfg.Exec.MaxConcurrent, "BRAINSTEM_EXEC_MAX_CONCURRENT")
	setInt(&cfg.Exec.MaxOutputBytes, "BRAINSTEM_EXEC_MAX_OUTPUT_BYTES")
	setDuration(&cfg.Exec.Timeout, "BRAINSTEM_EXEC_TIMEOUT")
	setString(&cfg.MCP.DefaultCaller, "BRAINSTEM_MCP_DEFAULT_CALLER")
	setDuration(&cfg.MCP.CallTimeout, "BRAINSTEM_MCP_CALL_TIMEOUT")
	setString(&cfg.Node.ID, "BRAINSTEM_NODE_ID")
	setString(&cfg.Node.Role, "BRAINSTEM_NODE_ROLE")
	setString(&cfg.Node.Trust, "BRAINSTEM_NODE_TRUST")
	setString(&cfg.Node.AdvertiseURL, "BRAINSTEM_ADVERTISE_URL")
	setStringSlice(&cfg.Node.Capabilities, "BRAINSTEM_NODE_CAPABILITIES")
	setDuration(&cfg.Node.HeartbeatInterval, "BRAINSTEM_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Node.StaleAfter, "BRAINSTEM_STALE_AFTER")
	setBool(&cfg.Otel.Enabled, "BRAINSTEM_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Vault.CredentialsFile, "BRAINSTEM_CREDENTIALS_FILE")
	setString(&cfg.Vault.EnvPrefix, "BRAINSTEM_VAULT_ENV_PREFIX")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be > 0")
	}
	if cfg.Exec.MaxConcurrent < 1 {
		return errors.New("exec.max_concurrent must be >= 1")
	}
	for i, key := range cfg.Auth.APIKeys {
		if key.Caller == "" || key.Hash == "" {
			return fmt.Errorf("auth.api_keys[%d]: caller and hash are required", i)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
