package config

import "time"

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Port int `yaml:"port"`

	// JWTSecret is the base64 encoded HS256 key. The /api routes are only
	// mounted when it is set.
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	// RedisAddr selects the redis user directory; empty keeps users in memory.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// AdminEmails register with ROLE_ADMIN instead of the default role.
	AdminEmails []string `yaml:"admin_emails,omitempty"`

	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// TrustedProxies lists reverse proxies (IPs or CIDR prefixes) whose
	// X-Forwarded-For and X-Real-IP headers identify the client. Headers
	// from any other peer are ignored.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// StorageConfig selects where the client keeps its session.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "file", "sqlite" or "memory"
	Path    string `yaml:"path"`
}

// ClientConfig configures the session client.
type ClientConfig struct {
	BackendURL string `yaml:"backend_url"`

	// ForwardCredentials keeps cookies set by the API and sends them back,
	// the equivalent of a browser's credentials: "include".
	ForwardCredentials bool `yaml:"forward_credentials"`

	Storage StorageConfig `yaml:"storage"`
}

// Config represents the mindful.yaml file.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Client   ClientConfig  `yaml:"client"`
}
