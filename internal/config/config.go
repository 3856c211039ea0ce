// Package config defines GatewayConfig (spec §3) and loads it from a YAML
// file with environment-variable overrides, following the same two-layer
// pattern the teacher uses for its Redis-backed session host
// (sessions/redishost.Config: struct tags + github.com/joeshaw/envdecode).
// Config *file* loading is an external collaborator per spec §1, but the
// GatewayConfig type, its defaults, and its validation are in scope.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Protocol selects the wire protocol used to talk to Odoo.
type Protocol string

const (
	ProtocolXMLRPC  Protocol = "xmlrpc"
	ProtocolJSONRPC Protocol = "jsonrpc"
)

// Transport selects the MCP-facing transport this process serves.
type Transport string

const (
	TransportStdio         Transport = "stdio"
	TransportHTTP          Transport = "http"
	TransportStreamableHTTP Transport = "streamable_http"
	TransportSSE           Transport = "sse"
)

// TLSConfig carries the optional TLS options for connecting to Odoo over
// JSON-RPC (spec §3, GatewayConfig.TLS options).
type TLSConfig struct {
	MinVersion     string `yaml:"tls_version" env:"ODOO_TLS_VERSION"`
	CACertPath     string `yaml:"ca_cert_path" env:"ODOO_CA_CERT_PATH"`
	ClientCertPath string `yaml:"client_cert_path" env:"ODOO_CLIENT_CERT_PATH"`
	ClientKeyPath  string `yaml:"client_key_path" env:"ODOO_CLIENT_KEY_PATH"`
}

// HTTPConfig configures the HTTP-family transports.
type HTTPConfig struct {
	Host       string `yaml:"host" env:"HTTP_HOST,default=0.0.0.0"`
	Port       int    `yaml:"port" env:"HTTP_PORT,default=8080"`
	Streamable bool   `yaml:"streamable" env:"HTTP_STREAMABLE,default=true"`
}

// LoggingConfig configures the log/slog handler construction.
type LoggingConfig struct {
	Level     string `yaml:"level" env:"LOG_LEVEL,default=info"`
	Format    string `yaml:"format" env:"LOG_FORMAT,default=json"`
	AddSource bool   `yaml:"add_source" env:"LOG_ADD_SOURCE,default=false"`
}

// PIIRule is one row of the data-driven PII detector table (spec §9: "keep
// the regex/name list data-driven in a config table; do not hardcode").
type PIIRule struct {
	FieldPattern string `yaml:"field_pattern"`
	KeepSuffix   int    `yaml:"keep_suffix"`
}

// ImplicitDomainRule configures per-model implicit domain injection
// (spec §4.7).
type ImplicitDomainRule struct {
	Model            string `yaml:"model"`
	InjectCompany    bool   `yaml:"inject_company"`
	InjectOwnRecords bool   `yaml:"inject_own_records"`
}

// GatewayConfig is the immutable, process-wide configuration (spec §3).
// It is loaded once at startup and passed by reference to every component;
// no component may mutate it (spec §9, "restrict global state to an
// immutable GatewayConfig").
type GatewayConfig struct {
	OdooURL  string   `yaml:"odoo_url" env:"ODOO_URL"`
	Database string   `yaml:"database" env:"ODOO_DATABASE"`
	Username string   `yaml:"username" env:"ODOO_USERNAME"`
	APIKey   string   `yaml:"api_key" env:"ODOO_API_KEY"`
	Protocol Protocol `yaml:"protocol" env:"ODOO_PROTOCOL,default=xmlrpc"`

	Transport      Transport  `yaml:"connection_type" env:"MCP_TRANSPORT,default=stdio"`
	HTTP           HTTPConfig `yaml:"http"`
	AllowedOrigins []string   `yaml:"allowed_origins"`

	PoolSize                 int           `yaml:"pool_size" env:"POOL_SIZE,default=5"`
	Timeout                  time.Duration `yaml:"timeout" env:"TIMEOUT,default=30s"`
	RetryCount               int           `yaml:"retry_count" env:"RETRY_COUNT,default=3"`
	BaseRetryDelay           time.Duration `yaml:"base_retry_delay" env:"BASE_RETRY_DELAY,default=200ms"`
	ConnectionHealthInterval time.Duration `yaml:"connection_health_interval" env:"CONN_HEALTH_INTERVAL,default=60s"`

	SessionTimeoutMinutes  int           `yaml:"session_timeout_minutes" env:"SESSION_TIMEOUT_MINUTES,default=30"`
	SessionCleanupInterval time.Duration `yaml:"session_cleanup_interval" env:"SESSION_CLEANUP_INTERVAL,default=1m"`

	RequestsPerMinute        float64 `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE,default=120"`
	RateLimitMaxWaitSeconds  float64 `yaml:"rate_limit_max_wait_seconds" env:"RATE_LIMIT_MAX_WAIT_SECONDS,default=0"`

	CacheTTL       time.Duration `yaml:"cache_ttl" env:"CACHE_TTL,default=30s"`
	CacheMaxItems  int           `yaml:"cache_max_items" env:"CACHE_MAX_ITEMS,default=10000"`
	SchemaCacheTTL time.Duration `yaml:"schema_cache_ttl" env:"SCHEMA_CACHE_TTL,default=5m"`

	MaxPayloadSize int `yaml:"max_payload_size" env:"MAX_PAYLOAD_SIZE,default=65536"`
	MaxFieldsLimit int `yaml:"max_fields_limit" env:"MAX_FIELDS_LIMIT,default=200"`
	MaxRecordsLimit int `yaml:"max_records_limit" env:"MAX_RECORDS_LIMIT,default=200"`

	PIIMasking       bool      `yaml:"pii_masking" env:"PII_MASKING,default=true"`
	PIIRules         []PIIRule `yaml:"pii_rules"`
	AuditLogging     bool      `yaml:"audit_logging" env:"AUDIT_LOGGING,default=true"`
	ImplicitDomains  bool      `yaml:"implicit_domains" env:"IMPLICIT_DOMAINS,default=true"`
	ImplicitDomainRules []ImplicitDomainRule `yaml:"implicit_domain_rules"`

	SSEQueueMaxSize int `yaml:"sse_queue_maxsize" env:"SSE_QUEUE_MAXSIZE,default=256"`

	// RedisAddr, when non-empty, switches the session store and cache to
	// their Redis-backed implementations (spec §3.1 additional field).
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR"`

	TLS TLSConfig `yaml:"tls"`

	Logging LoggingConfig `yaml:"logging"`

	// APIBearerPassphrase, when non-empty, turns on lightweight bearer-token
	// auth for the HTTP-family transports (spec §4.9 note: the gateway
	// itself may guard its own listener even though it delegates identity
	// policy to Odoo). The passphrase is hashed with bcrypt rather than
	// compared directly.
	APIBearerPassphrase string `yaml:"api_bearer_passphrase" env:"API_BEARER_PASSPHRASE"`

	// APIJWTSecret, when non-empty, switches HTTP-family auth to HS256 JWT
	// bearer verification instead of the shared-passphrase BearerGuard.
	APIJWTSecret string `yaml:"api_jwt_secret" env:"API_JWT_SECRET"`

	// OdooBusEnabled turns on the optional upstream Odoo long-poll bus
	// listener (spec §4.12(b)).
	OdooBusEnabled bool `yaml:"odoo_bus_enabled" env:"ODOO_BUS_ENABLED,default=false"`
}

// Load reads a YAML config file (if path is non-empty and exists) and then
// overlays environment variables via envdecode, matching the teacher's
// "struct tags define both YAML keys and env fallback" idiom.
func Load(path string) (*GatewayConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("config: decode env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a GatewayConfig with the same defaults envdecode would
// apply, so callers that skip Load (tests, embedders) still get sane values.
func Default() *GatewayConfig {
	return &GatewayConfig{
		Protocol:                 ProtocolXMLRPC,
		Transport:                TransportStdio,
		HTTP:                     HTTPConfig{Host: "0.0.0.0", Port: 8080, Streamable: true},
		PoolSize:                 5,
		Timeout:                  30 * time.Second,
		RetryCount:               3,
		BaseRetryDelay:           200 * time.Millisecond,
		ConnectionHealthInterval: 60 * time.Second,
		SessionTimeoutMinutes:    30,
		SessionCleanupInterval:   time.Minute,
		RequestsPerMinute:        120,
		CacheTTL:                 30 * time.Second,
		CacheMaxItems:            10000,
		SchemaCacheTTL:           5 * time.Minute,
		MaxPayloadSize:           65536,
		MaxFieldsLimit:           200,
		MaxRecordsLimit:          200,
		PIIMasking:               true,
		AuditLogging:             true,
		ImplicitDomains:          true,
		SSEQueueMaxSize:          256,
		Logging:                  LoggingConfig{Level: "info", Format: "json"},
	}
}

// Validate checks the invariants spec §3 requires before the config is
// frozen and handed to every component.
func (c *GatewayConfig) Validate() error {
	if c.OdooURL == "" {
		return fmt.Errorf("config: odoo_url is required")
	}
	if c.Database == "" {
		return fmt.Errorf("config: database is required")
	}
	if c.Protocol != ProtocolXMLRPC && c.Protocol != ProtocolJSONRPC {
		return fmt.Errorf("config: protocol must be %q or %q", ProtocolXMLRPC, ProtocolJSONRPC)
	}
	switch c.Transport {
	case TransportStdio, TransportHTTP, TransportStreamableHTTP, TransportSSE:
	default:
		return fmt.Errorf("config: unsupported transport %q", c.Transport)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("config: pool_size must be positive")
	}
	return nil
}

// SessionTTL is the configured session inactivity TTL as a duration.
func (c *GatewayConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}
