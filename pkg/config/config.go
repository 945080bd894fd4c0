// Package config provides unified configuration for the runcode service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (RUNCODE_ prefix, plus E2B_API_KEY)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the runcode service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Runner        RunnerConfig        `yaml:"runner"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     Duration      `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    Duration      `yaml:"write_timeout"`    // default: 120s
	ShutdownTimeout Duration      `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 2 MiB
}

// SandboxConfig selects and configures the sandbox backend.
type SandboxConfig struct {
	Backend    string           `yaml:"backend"` // "e2b", "server" or "kubernetes", default: "e2b"
	E2B        E2BConfig        `yaml:"e2b"`
	Server     SandboxServer    `yaml:"server"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
}

// E2BConfig holds hosted E2B settings.
type E2BConfig struct {
	APIKey         string        `yaml:"api_key"`
	APIKeyFile     string        `yaml:"api_key_file"`
	Domain         string        `yaml:"domain"`   // default: "e2b.app"
	Template       string        `yaml:"template"` // default: "code-interpreter-v1"
	Lifetime       Duration      `yaml:"lifetime"` // default: 5m
	APIURL         string        `yaml:"api_url"`
	InterpreterURL string        `yaml:"interpreter_url"`
}

// SandboxServer points at a running sandbox server.
type SandboxServer struct {
	URL string `yaml:"url"`
}

// KubernetesConfig holds agent-sandbox claim settings.
type KubernetesConfig struct {
	Template     string        `yaml:"template"`
	Namespace    string        `yaml:"namespace"`     // default: "default"
	ReadyTimeout Duration      `yaml:"ready_timeout"` // default: 2m
}

// RunnerConfig holds run_python_code behaviour.
type RunnerConfig struct {
	DefaultSilentMode bool          `yaml:"default_silent_mode"` // default: true
	Timeout           Duration      `yaml:"timeout"`             // default: 30s
	OverallTimeout    Duration      `yaml:"overall_timeout"`     // default: timeout + 30s
	MaxOutputLength   int           `yaml:"max_output_length"`   // default: 2000
	StripCodeFences   bool          `yaml:"strip_code_fences"`   // default: true
	DedupWindow       Duration      `yaml:"dedup_window"`        // default: 60s, 0 disables
	SendImages        bool          `yaml:"send_images"`         // default: true
	MaxImages         int           `yaml:"max_images"`          // default: 4
	Locale            string        `yaml:"locale"`              // "en" or "zh", default: "en"
	SystemNote        bool          `yaml:"system_note"`         // default: true
}

// StorageConfig holds execution history settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "none", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string        `yaml:"dsn"`
	DSNFile        string        `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32         `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool          `yaml:"migrate_on_start"` // default: true
	Retention      Duration      `yaml:"retention"`        // 0 keeps records forever
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Bypass lists paths served without authentication. Entries ending in
	// "/" match every path below them. Empty uses /healthz, /readyz and
	// /metrics.
	Bypass []string `yaml:"bypass"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds JWKS-backed bearer token settings.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`
	TenantClaim string        `yaml:"tenant_claim"`
	TierClaim   string        `yaml:"tier_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	CacheTTL    Duration      `yaml:"cache_ttl"`
}

// RateLimitConfig holds per-tier request limits. Zero RPM disables limiting.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"` // tier name -> requests per minute
}

// MCPConfig holds the MCP server endpoint settings.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/mcp"
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// LoggingConfig holds log output settings. RUNCODE_DEBUG, RUNCODE_LOG_LEVEL
// and RUNCODE_LOG_FORMAT take precedence.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "INFO"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(120 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
			MaxBodySize:     2 << 20,
		},
		Sandbox: SandboxConfig{
			Backend: "e2b",
			E2B: E2BConfig{
				Domain:   "e2b.app",
				Template: "code-interpreter-v1",
				Lifetime: Duration(5 * time.Minute),
			},
			Kubernetes: KubernetesConfig{
				Namespace:    "default",
				ReadyTimeout: Duration(2 * time.Minute),
			},
		},
		Runner: RunnerConfig{
			DefaultSilentMode: true,
			Timeout:           Duration(30 * time.Second),
			MaxOutputLength:   2000,
			StripCodeFences:   true,
			DedupWindow:       Duration(60 * time.Second),
			SendImages:        true,
			MaxImages:         4,
			Locale:            "en",
			SystemNote:        true,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns:       10,
				MigrateOnStart: true,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		MCP: MCPConfig{
			Enabled: true,
			Path:    "/mcp",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
