package config

// Field describes one configuration key for the config-schema export.
type Field struct {
	Path        string `json:"path"`
	Type        string `json:"type"`
	Default     string `json:"default"`
	Env         string `json:"env,omitempty"`
	Description string `json:"description"`
}

// Schema returns a machine-readable description of every configuration
// key, its type, default, and environment override. The dashboard and
// deployment tooling render this instead of parsing Go source.
func Schema() []Field {
	return []Field{
		{Path: "server.port", Type: "string", Default: "8080", Env: "BRAINSTEM_PORT", Description: "HTTP listen port"},
		{Path: "server.cors_origin", Type: "string", Default: "http://localhost:3000", Env: "BRAINSTEM_CORS_ORIGIN", Description: "Allowed CORS origin for the dashboard"},
		{Path: "database.path", Type: "string", Default: "brainstem.db", Env: "DATABASE_PATH", Description: "SQLite database file for nodes and audit log"},
		{Path: "nats.enabled", Type: "bool", Default: "false", Env: "BRAINSTEM_NATS_ENABLED", Description: "Enable the NATS registry sync bus"},
		{Path: "nats.url", Type: "string", Default: "nats://localhost:4222", Env: "NATS_URL", Description: "NATS server URL"},
		{Path: "logging.level", Type: "string", Default: "info", Env: "BRAINSTEM_LOG_LEVEL", Description: "Log level: debug, info, warn, error"},
		{Path: "logging.service", Type: "string", Default: "brainstem-core", Env: "BRAINSTEM_LOG_SERVICE", Description: "Service name attached to every log record"},
		{Path: "logging.async", Type: "bool", Default: "false", Env: "BRAINSTEM_LOG_ASYNC", Description: "Buffer log records through a background writer"},
		{Path: "breaker.max_failures", Type: "int", Default: "5", Env: "BRAINSTEM_BREAKER_MAX_FAILURES", Description: "Consecutive failures before a provider circuit opens"},
		{Path: "breaker.timeout", Type: "duration", Default: "30s", Env: "BRAINSTEM_BREAKER_TIMEOUT", Description: "Cool-down before an open circuit half-opens"},
		{Path: "rate.requests_per_second", Type: "float", Default: "10", Env: "BRAINSTEM_RATE_RPS", Description: "Token bucket refill rate per caller"},
		{Path: "rate.burst", Type: "int", Default: "100", Env: "BRAINSTEM_RATE_BURST", Description: "Token bucket capacity per caller"},
		{Path: "rate.cleanup_interval", Type: "duration", Default: "1m", Env: "BRAINSTEM_RATE_CLEANUP_INTERVAL", Description: "How often idle buckets are swept"},
		{Path: "rate.max_idle_time", Type: "duration", Default: "10m", Env: "BRAINSTEM_RATE_MAX_IDLE_TIME", Description: "Idle time before a caller's bucket is dropped"},
		{Path: "guard.profile", Type: "string", Default: "core-safe", Env: "BRAINSTEM_GUARD_PROFILE", Description: "Active guard profile name"},
		{Path: "guard.rules_dir", Type: "string", Default: "", Env: "BRAINSTEM_GUARD_RULES_DIR", Description: "Directory of YAML guard profiles loaded over the presets"},
		{Path: "guard.scratch_dir", Type: "string", Default: "$TMPDIR/brainstem-scratch", Env: "BRAINSTEM_SCRATCH_DIR", Description: "Directory scratch_fs-confined writes must land in"},
		{Path: "guard.approval_timeout", Type: "duration", Default: "60s", Env: "BRAINSTEM_APPROVAL_TIMEOUT", Description: "How long an invocation may block on human approval"},
		{Path: "exec.max_concurrent", Type: "int", Default: "4", Env: "BRAINSTEM_EXEC_MAX_CONCURRENT", Description: "Concurrent tool command executions"},
		{Path: "exec.max_output_bytes", Type: "int", Default: "65536", Env: "BRAINSTEM_EXEC_MAX_OUTPUT_BYTES", Description: "Combined output cap per command"},
		{Path: "exec.timeout", Type: "duration", Default: "30s", Env: "BRAINSTEM_EXEC_TIMEOUT", Description: "Default command deadline when the caller supplies none"},
		{Path: "mcp.default_caller", Type: "string", Default: "planner", Env: "BRAINSTEM_MCP_DEFAULT_CALLER", Description: "Caller identity for unauthenticated protocol sessions"},
		{Path: "mcp.call_timeout", Type: "duration", Default: "60s", Env: "BRAINSTEM_MCP_CALL_TIMEOUT", Description: "Default tool call deadline"},
		{Path: "node.id", Type: "string", Default: "", Env: "BRAINSTEM_NODE_ID", Description: "This gateway's node id; generated when empty"},
		{Path: "node.role", Type: "string", Default: "core", Env: "BRAINSTEM_NODE_ROLE", Description: "Node role: brain, core, or edge"},
		{Path: "node.trust", Type: "string", Default: "trusted", Env: "BRAINSTEM_NODE_TRUST", Description: "Trust tier: untrusted, verified, or trusted"},
		{Path: "node.advertise_url", Type: "string", Default: "", Env: "BRAINSTEM_ADVERTISE_URL", Description: "Base URL peers use to reach this gateway"},
		{Path: "node.capabilities", Type: "[]string", Default: "", Env: "BRAINSTEM_NODE_CAPABILITIES", Description: "Capabilities advertised in the node registry (comma-separated in env)"},
		{Path: "node.heartbeat_interval", Type: "duration", Default: "30s", Env: "BRAINSTEM_HEARTBEAT_INTERVAL", Description: "Self-heartbeat and sweep period"},
		{Path: "node.stale_after", Type: "duration", Default: "5m", Env: "BRAINSTEM_STALE_AFTER", Description: "Silence before a node is evicted as stale"},
		{Path: "auth.api_keys", Type: "[]{caller,hash}", Default: "", Description: "Gateway API keys: caller identity plus bcrypt hash; auth is disabled while empty"},
		{Path: "otel.enabled", Type: "bool", Default: "false", Env: "BRAINSTEM_OTEL_ENABLED", Description: "Export traces and metrics over OTLP"},
		{Path: "otel.endpoint", Type: "string", Default: "localhost:4317", Env: "OTEL_EXPORTER_OTLP_ENDPOINT", Description: "OTLP gRPC collector endpoint"},
		{Path: "vault.credentials_file", Type: "string", Default: "", Env: "BRAINSTEM_CREDENTIALS_FILE", Description: "TOML file of provider secrets loaded into the vault"},
		{Path: "vault.env_prefix", Type: "string", Default: "BRAINSTEM_SECRET_", Env: "BRAINSTEM_VAULT_ENV_PREFIX", Description: "Environment prefix scanned for provider secrets"},
	}
}
