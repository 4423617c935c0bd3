// Package config loads the YAML configuration file that wires together
// every component cmd/corebridge's composition root constructs: rate-limit
// tiers, cache categories, the task queue backend, the conversation store,
// the token vault, and the two ingress transports. Grounded on the
// teacher's internal/config package: the $include + os.ExpandEnv loader
// (loader.go) and its required-field validation discipline are kept, the
// Config struct itself is rebuilt from scratch around this repo's
// components rather than the teacher's channel/LLM/workspace settings.
package config

import (
	"fmt"
	"time"

	"github.com/corebridge/platform-core/internal/apperr"
)

// Config is the root configuration document.
type Config struct {
	AppID     string `yaml:"app_id"`
	AppSecret string `yaml:"app_secret"`

	RateLimit     map[string]RateLimitTierConfig `yaml:"rate_limit"`
	Cache         map[string]CacheCategoryConfig `yaml:"cache"`
	HTTPCore      HTTPCoreConfig                 `yaml:"http_core"`
	TokenVault    TokenVaultConfig               `yaml:"token_vault"`
	TaskQueue     TaskQueueConfig                `yaml:"task_queue"`
	Conversation  ConversationConfig             `yaml:"conversation"`
	Transport     TransportConfig                `yaml:"transport"`
	Observability ObservabilityConfig            `yaml:"observability"`
}

// RateLimitTierConfig is one tier's bucket budget (spec.md §4.2's Bucket).
type RateLimitTierConfig struct {
	Capacity       int64         `yaml:"capacity"`
	RefillTokens   int64         `yaml:"refill_tokens"`
	RefillInterval time.Duration `yaml:"refill_interval"`
	MaxWait        time.Duration `yaml:"max_wait"`
}

// CacheCategoryConfig is one cache partition's budget (spec.md §4.3).
type CacheCategoryConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	MaxBytes   int64         `yaml:"max_bytes"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// HTTPCoreConfig configures the shared outbound client (internal/httpcore).
type HTTPCoreConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryBase  time.Duration `yaml:"retry_base"`
}

// OAuthProviderConfig configures one credential kind's refresh-token
// exchange for the token vault's Rotate operation.
type OAuthProviderConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// TokenVaultConfig configures internal/tokenvault.
type TokenVaultConfig struct {
	// EncryptionKeyHex is a 32-byte AES-256 key, hex-encoded.
	EncryptionKeyHex string                         `yaml:"encryption_key_hex"`
	OAuth            map[string]OAuthProviderConfig `yaml:"oauth"`
	AuditLogSize     int                            `yaml:"audit_log_size"`
}

// TaskQueueConfig configures internal/taskqueue.
type TaskQueueConfig struct {
	Backend           string           `yaml:"backend"` // "memory" | "redis"
	RedisAddr         string           `yaml:"redis_addr"`
	RedisPrefix       string           `yaml:"redis_prefix"`
	VisibilityTimeout time.Duration    `yaml:"visibility_timeout"`
	RetryBase         time.Duration    `yaml:"retry_base"`
	MaxScanPerPop     int              `yaml:"max_scan_per_pop"`
	Worker            WorkerPoolConfig `yaml:"worker"`
}

// WorkerPoolConfig configures internal/taskqueue's Pool.
type WorkerPoolConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	PollInterval time.Duration `yaml:"poll_interval"`
	RecoverEvery time.Duration `yaml:"recover_every"`
}

// ConversationConfig configures internal/conversation.
type ConversationConfig struct {
	Backend          string `yaml:"backend"` // "file" | "sql"
	Dir              string `yaml:"dir"`
	SQLitePath       string `yaml:"sqlite_path"`
	EncryptionKeyHex string `yaml:"encryption_key_hex"`
	RetentionDays    int    `yaml:"retention_days"`
}

// TransportConfig configures internal/transport's two ingress surfaces.
type TransportConfig struct {
	Stdio StdioTransportConfig `yaml:"stdio"`
	HTTP  HTTPTransportConfig  `yaml:"http"`
}

// StdioTransportConfig toggles the line-delimited JSON-RPC stdio server.
type StdioTransportConfig struct {
	Enabled bool `yaml:"enabled"`
}

// HTTPTransportConfig configures the GET /events + POST /rpc surface.
type HTTPTransportConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	PairingKeyHex   string        `yaml:"pairing_key_hex"`
	PairingTokenTTL time.Duration `yaml:"pairing_token_ttl"`
}

// ObservabilityConfig configures internal/observability.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	ServiceName    string `yaml:"service_name"`
	MetricsAddr    string `yaml:"metrics_addr"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
}

// Load reads path (resolving $include directives and expanding environment
// variables, see loader.go), decodes it into a Config, and validates
// required fields.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the required fields spec.md assumes are always present:
// an app identity and secret for the deployment's own credentials.
func (c *Config) Validate() error {
	if c.AppID == "" {
		return apperr.Misconfigured("config: app_id is required")
	}
	if c.AppSecret == "" {
		return apperr.Misconfigured("config: app_secret is required")
	}
	return nil
}
