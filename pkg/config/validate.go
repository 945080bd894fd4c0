package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// It reports every problem at once, each with its field path.
//
// A missing E2B API key is not an error here: the service still starts and
// every run_python_code call reports the configuration problem.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	switch c.Sandbox.Backend {
	case "e2b":
	case "server":
		if c.Sandbox.Server.URL == "" {
			errs = append(errs, fmt.Errorf("sandbox.server.url is required when sandbox.backend is \"server\""))
		}
	case "kubernetes":
		if c.Sandbox.Kubernetes.Template == "" {
			errs = append(errs, fmt.Errorf("sandbox.kubernetes.template is required when sandbox.backend is \"kubernetes\""))
		}
	default:
		errs = append(errs, fmt.Errorf("sandbox.backend must be \"e2b\", \"server\", or \"kubernetes\", got %q", c.Sandbox.Backend))
	}

	if c.Runner.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("runner.timeout must be > 0, got %s", c.Runner.Timeout))
	}
	if c.Runner.DedupWindow < 0 {
		errs = append(errs, fmt.Errorf("runner.dedup_window must be >= 0, got %s", c.Runner.DedupWindow))
	}
	switch strings.ToLower(c.Runner.Locale) {
	case "en", "zh", "":
	default:
		errs = append(errs, fmt.Errorf("runner.locale must be \"en\" or \"zh\", got %q", c.Runner.Locale))
	}

	switch c.Storage.Type {
	case "memory", "none":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\", or \"none\", got %q", c.Storage.Type))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path must start with \"/\", got %q", c.MCP.Path))
	}

	return errors.Join(errs...)
}
