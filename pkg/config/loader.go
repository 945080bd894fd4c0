package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/runcode/pkg/debug"
)

// searchPaths are tried in order when neither an explicit path nor
// RUNCODE_CONFIG names a config file.
var searchPaths = []string{"config.yaml", "/etc/runcode/config.yaml"}

// Load builds the configuration in layers: defaults, the YAML file,
// environment variables, then *_file secret references. The result is
// validated before it is returned.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := findConfigFile(configPath); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		debug.Log("config", "config file loaded", "path", path)
	}

	applyEnv(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// findConfigFile returns the explicit path, else RUNCODE_CONFIG, else the
// first existing search path, else "".
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("RUNCODE_CONFIG"); env != "" {
		return env
	}
	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// decodeFile overlays the YAML file onto cfg. Unknown keys are errors so
// that misspelled settings do not silently fall back to defaults.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays environment variables. Unparsable values are logged
// and skipped. Later entries win, so RUNCODE_E2B_API_KEY beats E2B_API_KEY.
func applyEnv(cfg *Config) {
	setFromEnv("RUNCODE_PORT", &cfg.Server.Port, strconv.Atoi)

	setFromEnv("RUNCODE_SANDBOX_BACKEND", &cfg.Sandbox.Backend, asString)
	setFromEnv("E2B_API_KEY", &cfg.Sandbox.E2B.APIKey, asString)
	setFromEnv("RUNCODE_E2B_API_KEY", &cfg.Sandbox.E2B.APIKey, asString)
	setFromEnv("RUNCODE_E2B_TEMPLATE", &cfg.Sandbox.E2B.Template, asString)
	setFromEnv("RUNCODE_SANDBOX_URL", &cfg.Sandbox.Server.URL, asString)
	setFromEnv("RUNCODE_K8S_TEMPLATE", &cfg.Sandbox.Kubernetes.Template, asString)
	setFromEnv("RUNCODE_K8S_NAMESPACE", &cfg.Sandbox.Kubernetes.Namespace, asString)

	setFromEnv("RUNCODE_DEFAULT_SILENT", &cfg.Runner.DefaultSilentMode, strconv.ParseBool)
	setFromEnv("RUNCODE_TIMEOUT", &cfg.Runner.Timeout, parseSeconds)
	setFromEnv("RUNCODE_MAX_OUTPUT_LENGTH", &cfg.Runner.MaxOutputLength, strconv.Atoi)
	setFromEnv("RUNCODE_DEDUP_WINDOW", &cfg.Runner.DedupWindow, parseSeconds)
	setFromEnv("RUNCODE_SEND_IMAGES", &cfg.Runner.SendImages, strconv.ParseBool)
	setFromEnv("RUNCODE_LOCALE", &cfg.Runner.Locale, asString)

	setFromEnv("RUNCODE_STORAGE", &cfg.Storage.Type, asString)
	setFromEnv("RUNCODE_STORAGE_SIZE", &cfg.Storage.MaxSize, strconv.Atoi)
	setFromEnv("RUNCODE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN, asString)

	setFromEnv("RUNCODE_AUTH_TYPE", &cfg.Auth.Type, asString)
	setFromEnv("RUNCODE_JWKS_URL", &cfg.Auth.JWT.JWKSURL, asString)
	setFromEnv("RUNCODE_RATE_LIMIT_RPM", &cfg.Auth.RateLimit.DefaultRPM, strconv.Atoi)
	setFromEnv("RUNCODE_API_KEYS", &cfg.Auth.APIKeys, parseAPIKeys)

	setFromEnv("RUNCODE_MCP_ENABLED", &cfg.MCP.Enabled, strconv.ParseBool)
}

// setFromEnv parses the variable into dst when it is set and non-empty.
func setFromEnv[T any](name string, dst *T, parse func(string) (T, error)) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	v, err := parse(raw)
	if err != nil {
		slog.Warn("ignoring invalid environment variable", "name", name, "error", err)
		return
	}
	*dst = v
}

func asString(s string) (string, error) { return s, nil }

// parseAPIKeys decodes a JSON array of api_keys entries. An empty array
// is an error so that it cannot wipe keys set in the file.
func parseAPIKeys(s string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(s), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	if len(keys) == 0 {
		return nil, errors.New("empty API key list")
	}
	return keys, nil
}

// fileRef is a secret that may be given inline or as a path to a file
// holding it.
type fileRef struct {
	field string
	path  string
	value *string
}

func (c *Config) fileRefs() []fileRef {
	refs := []fileRef{
		{"sandbox.e2b.api_key_file", c.Sandbox.E2B.APIKeyFile, &c.Sandbox.E2B.APIKey},
		{"storage.postgres.dsn_file", c.Storage.Postgres.DSNFile, &c.Storage.Postgres.DSN},
	}
	for i := range c.Auth.APIKeys {
		k := &c.Auth.APIKeys[i]
		refs = append(refs, fileRef{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}
	return refs
}

// resolveFileReferences fills each empty secret from its file, trimming
// surrounding whitespace. Inline values are left alone.
func resolveFileReferences(cfg *Config) error {
	for _, ref := range cfg.fileRefs() {
		if ref.path == "" || *ref.value != "" {
			continue
		}
		data, err := os.ReadFile(ref.path)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.field, err)
		}
		*ref.value = strings.TrimSpace(string(data))
	}
	return nil
}
