// Package config loads mindful.yaml, applies environment overrides and
// validates the result.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for Config.
const (
	DefaultPort         = 3000
	DefaultBackendURL   = "http://localhost:8080/api/"
	DefaultLogLevel     = "info"
	DefaultTokenTTL     = 2 * time.Hour
	DefaultMaxBodyBytes = 1 << 20
	DefaultStorage      = "file"
)

// Environment variables read by ApplyEnv.
const (
	EnvPort         = "PORT"
	EnvBackendURL   = "MINDFUL_BACKEND_URL"
	EnvJWTSecret    = "MINDFUL_JWT_SECRET"
	EnvRedisAddr    = "MINDFUL_REDIS_ADDR"
	EnvLogLevel     = "MINDFUL_LOG_LEVEL"
	EnvStorage      = "MINDFUL_STORAGE"
	EnvStoragePath  = "MINDFUL_STORAGE_PATH"
	EnvForwardCreds = "MINDFUL_FORWARD_CREDENTIALS"
)

// Files looked up in the working directory.
const (
	DefaultEnvFile  = ".env"
	DefaultFileName = "mindful.yaml"
)

// DefaultGatewayConfig returns a GatewayConfig with sensible default values.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Port:         DefaultPort,
		TokenTTL:     DefaultTokenTTL,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// DefaultClientConfig returns a ClientConfig with sensible default values.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BackendURL: DefaultBackendURL,
		Storage: StorageConfig{
			Backend: DefaultStorage,
		},
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Gateway:  DefaultGatewayConfig(),
		Client:   DefaultClientConfig(),
	}
}

// DefaultStoragePath returns the per-user location of the session store for
// backend, under os.UserConfigDir()/mindful. LoadConfig uses it when no
// storage path is configured.
func DefaultStoragePath(backend string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	name := "storage.json"
	if backend == "sqlite" {
		name = "storage.db"
	}
	return filepath.Join(dir, "mindful", name)
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// LoadConfig reads path, applies environment overrides and validates the
// result. A missing file yields the defaults (plus environment).
func LoadConfig(path string) (*Config, error) {
	return LoadConfigWithEnv(path, os.LookupEnv)
}

// LoadConfigWithEnv is LoadConfig with an injectable environment lookup.
func LoadConfigWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := ApplyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	if cfg.Client.Storage.Path == "" {
		cfg.Client.Storage.Path = DefaultStoragePath(cfg.Client.Storage.Backend)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides cfg with any of the Env* variables that are set.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ValidationError{Field: EnvPort, Message: "must be an integer"}
		}
		cfg.Gateway.Port = port
	}
	if v, ok := lookup(EnvBackendURL); ok && v != "" {
		cfg.Client.BackendURL = v
	}
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		cfg.Gateway.JWTSecret = v
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		cfg.Gateway.RedisAddr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvStorage); ok && v != "" {
		cfg.Client.Storage.Backend = v
	}
	if v, ok := lookup(EnvStoragePath); ok && v != "" {
		cfg.Client.Storage.Path = v
	}
	if v, ok := lookup(EnvForwardCreds); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ValidationError{Field: EnvForwardCreds, Message: "must be a boolean"}
		}
		cfg.Client.ForwardCredentials = b
	}
	return nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if err := ValidateGatewayConfig(&cfg.Gateway); err != nil {
		return err
	}
	return ValidateClientConfig(&cfg.Client)
}

// ValidateGatewayConfig checks that gateway config values are valid.
func ValidateGatewayConfig(cfg *GatewayConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ValidationError{Field: "gateway.port", Message: "must be between 0 and 65535"}
	}
	if cfg.TokenTTL < 0 {
		return ValidationError{Field: "gateway.token_ttl", Message: "must not be negative"}
	}
	if cfg.MaxBodyBytes < 0 {
		return ValidationError{Field: "gateway.max_body_bytes", Message: "must not be negative"}
	}
	if _, err := ParseTrustedProxies(cfg.TrustedProxies); err != nil {
		return ValidationError{Field: "gateway.trusted_proxies", Message: err.Error()}
	}
	return nil
}

// ParseTrustedProxies parses proxy entries given as bare IPs or CIDR
// prefixes. A bare IP becomes a single-address prefix.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy %q", entry)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q", entry)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// ValidateClientConfig checks that client config values are valid.
func ValidateClientConfig(cfg *ClientConfig) error {
	u, err := url.Parse(cfg.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ValidationError{Field: "client.backend_url", Message: "must be an absolute http(s) URL"}
	}
	switch cfg.Storage.Backend {
	case "file", "sqlite", "memory":
	default:
		return ValidationError{Field: "client.storage.backend", Message: "must be one of file, sqlite, memory"}
	}
	if cfg.Storage.Backend != "memory" && cfg.Storage.Path == "" {
		return ValidationError{Field: "client.storage.path", Message: "required field is empty"}
	}
	return nil
}

// LoadEnvFile parses a dotenv file into a map of key-value pairs.
// The file format is KEY=VALUE per line, optionally prefixed with "export".
// Lines starting with # are comments. Empty lines are ignored.
// A missing file yields an empty map.
func LoadEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	env := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		idx := strings.Index(line, "=")
		if idx == -1 {
			return nil, fmt.Errorf("invalid env file line %d: missing '='", lineNum)
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if key == "" {
			return nil, fmt.Errorf("invalid env file line %d: empty key", lineNum)
		}

		env[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return env, nil
}

// LoadDotEnv reads the dotenv file at path into the process environment.
// Variables already present in the environment win.
func LoadDotEnv(path string) error {
	env, err := LoadEnvFile(path)
	if err != nil {
		return err
	}
	for k, v := range env {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to set %s: %w", k, err)
		}
	}
	return nil
}
